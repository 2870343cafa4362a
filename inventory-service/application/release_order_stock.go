package application

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/neocommercepay/commerce-system/inventory-service/domain"
	"github.com/neocommercepay/commerce-system/shared/clock"
	"github.com/neocommercepay/commerce-system/shared/models"
	"github.com/neocommercepay/commerce-system/shared/retry"
	"github.com/neocommercepay/commerce-system/shared/telemetry"
)

// ReleaseOrderStockCommand is built from an OrderCancelled event
type ReleaseOrderStockCommand struct {
	OrderID models.ID
}

// ReleaseOrderStock gives a cancelled order's stock back, at most once.
// It does nothing unless enabled: stock taken for an order is kept by
// default whatever happens to the order.
type ReleaseOrderStock struct {
	enabled             bool
	consumer            string
	inventoryRepository domain.InventoryRepository
	unitOfWork          domain.UnitOfWork
	retry               *retry.Executor
	clock               clock.Clock
	logger              *slog.Logger
}

func NewReleaseOrderStock(
	enabled bool,
	consumer string,
	inventoryRepository domain.InventoryRepository,
	unitOfWork domain.UnitOfWork,
	retryExecutor *retry.Executor,
	clk clock.Clock,
	logger *slog.Logger,
) *ReleaseOrderStock {
	return &ReleaseOrderStock{
		enabled:             enabled,
		consumer:            consumer,
		inventoryRepository: inventoryRepository,
		unitOfWork:          unitOfWork,
		retry:               retryExecutor,
		clock:               clk,
		logger:              logger,
	}
}

// Execute reports whether stock was given back.
func (uc *ReleaseOrderStock) Execute(ctx context.Context, cmd *ReleaseOrderStockCommand) (bool, error) {
	if !uc.enabled {
		return false, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "ReleaseOrderStock.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", cmd.OrderID.String()))

	var released bool
	err := uc.retry.Execute(ctx, func(ctx context.Context) error {
		released = false
		return uc.unitOfWork.WithTx(ctx, func(ctx context.Context) error {
			reservation, err := uc.inventoryRepository.FindReservationForUpdate(ctx, uc.consumer, cmd.OrderID)
			if errors.Is(err, domain.ErrReservationMissing) {
				return nil
			}
			if err != nil {
				return err
			}
			if reservation.Status == domain.ReservationReleased {
				return nil
			}

			now := uc.clock.Now()
			restocked := make([]domain.Inventory, 0, len(reservation.Items))
			for _, item := range reservation.Items {
				inventory, err := uc.inventoryRepository.FindByProductIDForUpdate(ctx, item.ProductID)
				if err != nil {
					return err
				}
				next, err := inventory.Increment(item.Quantity, now)
				if err != nil {
					return err
				}
				restocked = append(restocked, next)
			}
			for _, inventory := range restocked {
				if err := uc.inventoryRepository.Update(ctx, inventory); err != nil {
					return err
				}
			}

			next, err := reservation.Release(now)
			if err != nil {
				return err
			}
			if err := uc.inventoryRepository.UpdateReservation(ctx, next); err != nil {
				return err
			}
			released = true
			return nil
		})
	})
	if err != nil {
		return false, err
	}

	if released {
		uc.logger.InfoContext(ctx, "order stock released", slog.String("order_id", cmd.OrderID.String()))
	}
	return released, nil
}
