package domain

import (
	"context"
	"time"

	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/models"
)

// LowStockThreshold is the available quantity at or below which a decrement
// announces InventoryDepleted.
const LowStockThreshold = 5

var (
	ErrInventoryNotFound  = apperrors.New(apperrors.KindNotFound, "inventory_not_found", "inventory not found")
	ErrInsufficientStock  = apperrors.New(apperrors.KindBusinessRule, "insufficient_stock", "insufficient stock")
	ErrInventoryExists    = apperrors.New(apperrors.KindBusinessRule, "inventory_exists", "inventory already exists for product")
	ErrInvalidInventory   = apperrors.New(apperrors.KindInvalid, "invalid_inventory", "invalid inventory")
	ErrInvalidQuantity    = apperrors.New(apperrors.KindInvalid, "invalid_quantity", "quantity must be positive")
	ErrReservationExists  = apperrors.New(apperrors.KindBusinessRule, "reservation_exists", "stock already reserved for order")
	ErrReservationMissing = apperrors.New(apperrors.KindNotFound, "reservation_not_found", "stock reservation not found")
)

// Inventory is the stock of one product. AvailableQuantity is always
// Quantity minus ReservedQuantity and never negative.
type Inventory struct {
	ID                models.ID
	ProductID         string
	ProductName       string
	Quantity          int
	ReservedQuantity  int
	AvailableQuantity int
	LastUpdated       time.Time
}

func NewInventory(productID, productName string, quantity int, now time.Time) (Inventory, error) {
	if productID == "" {
		return Inventory{}, apperrors.With(ErrInvalidInventory, "product id is required")
	}
	if quantity < 0 {
		return Inventory{}, apperrors.With(ErrInvalidInventory, "quantity cannot be negative")
	}
	return Inventory{
		ID:                models.GenerateUUID(),
		ProductID:         productID,
		ProductName:       productName,
		Quantity:          quantity,
		AvailableQuantity: quantity,
		LastUpdated:       now,
	}, nil
}

// Decrement removes quantity units. When fewer are available the inventory
// is returned unchanged with ErrInsufficientStock.
func (i Inventory) Decrement(quantity int, now time.Time) (Inventory, error) {
	if quantity <= 0 {
		return i, apperrors.With(ErrInvalidQuantity, "decrement %s by %d", i.ProductID, quantity)
	}
	if i.AvailableQuantity < quantity {
		return i, apperrors.With(ErrInsufficientStock, "product %s has %d available, %d requested",
			i.ProductID, i.AvailableQuantity, quantity)
	}
	i.Quantity -= quantity
	i.AvailableQuantity -= quantity
	i.LastUpdated = now
	return i, nil
}

// Increment restocks quantity units.
func (i Inventory) Increment(quantity int, now time.Time) (Inventory, error) {
	if quantity <= 0 {
		return i, apperrors.With(ErrInvalidQuantity, "increment %s by %d", i.ProductID, quantity)
	}
	i.Quantity += quantity
	i.AvailableQuantity += quantity
	i.LastUpdated = now
	return i, nil
}

func (i Inventory) IsLow() bool {
	return i.AvailableQuantity <= LowStockThreshold
}

// LowStock snapshots the inventory for an InventoryDepleted alert.
func (i Inventory) LowStock() LowStock {
	return LowStock{ProductID: i.ProductID, ProductName: i.DisplayName(), CurrentStock: i.AvailableQuantity}
}

// DisplayName falls back to "Product-<id>" for inventories created without
// a name.
func (i Inventory) DisplayName() string {
	if i.ProductName != "" {
		return i.ProductName
	}
	return "Product-" + i.ProductID
}

// InventoryRepository persists inventories and stock reservations.
// ProductID is unique; a reservation is unique per (consumer, order).
type InventoryRepository interface {
	Save(ctx context.Context, inventory Inventory) error
	Update(ctx context.Context, inventory Inventory) error
	FindByProductID(ctx context.Context, productID string) (Inventory, error)
	// FindByProductIDForUpdate locks the row until the unit of work ends.
	FindByProductIDForUpdate(ctx context.Context, productID string) (Inventory, error)

	SaveReservation(ctx context.Context, reservation StockReservation) error
	UpdateReservation(ctx context.Context, reservation StockReservation) error
	FindReservationForUpdate(ctx context.Context, consumer string, orderID models.ID) (StockReservation, error)
}

// UnitOfWork runs fn atomically.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
