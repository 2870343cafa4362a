package application

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/neocommercepay/commerce-system/inventory-service/domain"
	"github.com/neocommercepay/commerce-system/shared/clock"
	"github.com/neocommercepay/commerce-system/shared/events"
	"github.com/neocommercepay/commerce-system/shared/telemetry"
)

// AdjustStockCommand changes a product's stock by Quantity units
type AdjustStockCommand struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// DecrementStock takes units out of stock and announces InventoryDepleted
// when the remaining availability is low.
type DecrementStock struct {
	inventoryRepository domain.InventoryRepository
	unitOfWork          domain.UnitOfWork
	eventPublisher      events.Publisher
	clock               clock.Clock
	logger              *slog.Logger
}

func NewDecrementStock(
	inventoryRepository domain.InventoryRepository,
	unitOfWork domain.UnitOfWork,
	eventPublisher events.Publisher,
	clk clock.Clock,
	logger *slog.Logger,
) *DecrementStock {
	return &DecrementStock{
		inventoryRepository: inventoryRepository,
		unitOfWork:          unitOfWork,
		eventPublisher:      eventPublisher,
		clock:               clk,
		logger:              logger,
	}
}

// Execute returns domain.ErrInventoryNotFound or domain.ErrInsufficientStock
// without changing anything.
func (uc *DecrementStock) Execute(ctx context.Context, cmd *AdjustStockCommand) (*InventoryResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "DecrementStock.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", cmd.ProductID), attribute.Int("quantity", cmd.Quantity))

	now := uc.clock.Now()
	var updated domain.Inventory
	err := uc.unitOfWork.WithTx(ctx, func(ctx context.Context) error {
		inventory, err := uc.inventoryRepository.FindByProductIDForUpdate(ctx, cmd.ProductID)
		if err != nil {
			return err
		}
		if updated, err = inventory.Decrement(cmd.Quantity, now); err != nil {
			return err
		}
		return uc.inventoryRepository.Update(ctx, updated)
	})
	if err != nil {
		return nil, err
	}

	uc.logger.InfoContext(ctx, "stock decremented",
		slog.String("product_id", updated.ProductID),
		slog.Int("quantity", cmd.Quantity),
		slog.Int("available", updated.AvailableQuantity))

	if updated.IsLow() {
		if err := announceDepleted(ctx, uc.eventPublisher, []domain.LowStock{updated.LowStock()}, now); err != nil {
			return nil, err
		}
	}
	return toInventoryResponse(updated), nil
}

// IncrementStock restocks a product. It publishes nothing.
type IncrementStock struct {
	inventoryRepository domain.InventoryRepository
	unitOfWork          domain.UnitOfWork
	clock               clock.Clock
	logger              *slog.Logger
}

func NewIncrementStock(inventoryRepository domain.InventoryRepository, unitOfWork domain.UnitOfWork, clk clock.Clock, logger *slog.Logger) *IncrementStock {
	return &IncrementStock{
		inventoryRepository: inventoryRepository,
		unitOfWork:          unitOfWork,
		clock:               clk,
		logger:              logger,
	}
}

func (uc *IncrementStock) Execute(ctx context.Context, cmd *AdjustStockCommand) (*InventoryResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "IncrementStock.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", cmd.ProductID), attribute.Int("quantity", cmd.Quantity))

	var updated domain.Inventory
	err := uc.unitOfWork.WithTx(ctx, func(ctx context.Context) error {
		inventory, err := uc.inventoryRepository.FindByProductIDForUpdate(ctx, cmd.ProductID)
		if err != nil {
			return err
		}
		if updated, err = inventory.Increment(cmd.Quantity, uc.clock.Now()); err != nil {
			return err
		}
		return uc.inventoryRepository.Update(ctx, updated)
	})
	if err != nil {
		return nil, err
	}

	uc.logger.InfoContext(ctx, "stock incremented",
		slog.String("product_id", updated.ProductID),
		slog.Int("quantity", cmd.Quantity))
	return toInventoryResponse(updated), nil
}
