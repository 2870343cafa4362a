package application

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/neocommercepay/commerce-system/inventory-service/domain"
	"github.com/neocommercepay/commerce-system/shared/clock"
	"github.com/neocommercepay/commerce-system/shared/telemetry"
)

// CreateInventoryCommand represents the command to stock a new product
type CreateInventoryCommand struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
}

type CreateInventory struct {
	inventoryRepository domain.InventoryRepository
	clock               clock.Clock
	logger              *slog.Logger
}

func NewCreateInventory(inventoryRepository domain.InventoryRepository, clk clock.Clock, logger *slog.Logger) *CreateInventory {
	return &CreateInventory{inventoryRepository: inventoryRepository, clock: clk, logger: logger}
}

// Execute fails with domain.ErrInventoryExists when the product is stocked.
func (uc *CreateInventory) Execute(ctx context.Context, cmd *CreateInventoryCommand) (*InventoryResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "CreateInventory.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", cmd.ProductID))

	inventory, err := domain.NewInventory(cmd.ProductID, cmd.ProductName, cmd.Quantity, uc.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := uc.inventoryRepository.Save(ctx, inventory); err != nil {
		return nil, err
	}

	uc.logger.InfoContext(ctx, "inventory created",
		slog.String("product_id", inventory.ProductID),
		slog.Int("quantity", inventory.Quantity))
	return toInventoryResponse(inventory), nil
}

// GetInventory use case for retrieving a product's stock
type GetInventory struct {
	inventoryRepository domain.InventoryRepository
}

func NewGetInventory(inventoryRepository domain.InventoryRepository) *GetInventory {
	return &GetInventory{inventoryRepository: inventoryRepository}
}

func (uc *GetInventory) Execute(ctx context.Context, productID string) (*InventoryResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "GetInventory.Execute")
	defer span.End()

	inventory, err := uc.inventoryRepository.FindByProductID(ctx, productID)
	if err != nil {
		return nil, err
	}
	return toInventoryResponse(inventory), nil
}
