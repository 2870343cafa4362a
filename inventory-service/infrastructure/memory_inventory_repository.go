package infrastructure

import (
	"context"
	"sync"

	"github.com/neocommercepay/commerce-system/inventory-service/domain"
	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/models"
)

var _ domain.InventoryRepository = (*MemoryInventoryRepository)(nil)

type reservationKey struct {
	consumer string
	orderID  models.ID
}

// MemoryInventoryRepository keeps inventories in process memory. Writes are
// not rolled back, so callers compute every value before the first write.
type MemoryInventoryRepository struct {
	mu           sync.RWMutex
	inventories  map[string]domain.Inventory
	reservations map[reservationKey]domain.StockReservation
}

func NewMemoryInventoryRepository() *MemoryInventoryRepository {
	return &MemoryInventoryRepository{
		inventories:  make(map[string]domain.Inventory),
		reservations: make(map[reservationKey]domain.StockReservation),
	}
}

func (r *MemoryInventoryRepository) Save(_ context.Context, inventory domain.Inventory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inventories[inventory.ProductID]; ok {
		return apperrors.With(domain.ErrInventoryExists, "product %s", inventory.ProductID)
	}
	r.inventories[inventory.ProductID] = inventory
	return nil
}

func (r *MemoryInventoryRepository) Update(_ context.Context, inventory domain.Inventory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inventories[inventory.ProductID]; !ok {
		return apperrors.With(domain.ErrInventoryNotFound, "product %s", inventory.ProductID)
	}
	r.inventories[inventory.ProductID] = inventory
	return nil
}

func (r *MemoryInventoryRepository) FindByProductID(_ context.Context, productID string) (domain.Inventory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inventory, ok := r.inventories[productID]
	if !ok {
		return domain.Inventory{}, apperrors.With(domain.ErrInventoryNotFound, "product %s", productID)
	}
	return inventory, nil
}

func (r *MemoryInventoryRepository) FindByProductIDForUpdate(ctx context.Context, productID string) (domain.Inventory, error) {
	return r.FindByProductID(ctx, productID)
}

func (r *MemoryInventoryRepository) SaveReservation(_ context.Context, reservation domain.StockReservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := reservationKey{consumer: reservation.Consumer, orderID: reservation.OrderID}
	if _, ok := r.reservations[key]; ok {
		return apperrors.With(domain.ErrReservationExists, "order %s", reservation.OrderID)
	}
	r.reservations[key] = copyReservation(reservation)
	return nil
}

func (r *MemoryInventoryRepository) UpdateReservation(_ context.Context, reservation domain.StockReservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := reservationKey{consumer: reservation.Consumer, orderID: reservation.OrderID}
	if _, ok := r.reservations[key]; !ok {
		return apperrors.With(domain.ErrReservationMissing, "order %s", reservation.OrderID)
	}
	r.reservations[key] = copyReservation(reservation)
	return nil
}

func (r *MemoryInventoryRepository) FindReservationForUpdate(_ context.Context, consumer string, orderID models.ID) (domain.StockReservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reservation, ok := r.reservations[reservationKey{consumer: consumer, orderID: orderID}]
	if !ok {
		return domain.StockReservation{}, apperrors.With(domain.ErrReservationMissing, "order %s", orderID)
	}
	return copyReservation(reservation), nil
}

func copyReservation(r domain.StockReservation) domain.StockReservation {
	r.Items = append([]domain.ReservedItem(nil), r.Items...)
	r.PendingAlerts = append([]domain.LowStock(nil), r.PendingAlerts...)
	return r
}
