package domain

import (
	"sort"
	"time"

	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/models"
)

type ReservationStatus string

const (
	ReservationCommitted ReservationStatus = "COMMITTED"
	ReservationReleased  ReservationStatus = "RELEASED"
)

type ReservedItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// LowStock is an InventoryDepleted alert, captured with the availability
// the decrement left.
type LowStock struct {
	ProductID    string `json:"productId"`
	ProductName  string `json:"productName"`
	CurrentStock int    `json:"currentStock"`
}

// StockReservation records that a consumer already took the stock of an
// order. Its presence turns redeliveries of the same order into no-ops.
// PendingAlerts holds the low-stock alerts not yet handed to the channel; a
// redelivery publishes them again.
type StockReservation struct {
	Consumer      string
	OrderID       models.ID
	EventID       models.ID
	Items         []ReservedItem
	Status        ReservationStatus
	PendingAlerts []LowStock
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewStockReservation merges lines of the same product and orders items by
// product id, which is also the order rows are locked in.
func NewStockReservation(consumer string, orderID, eventID models.ID, items []ReservedItem, now time.Time) (StockReservation, error) {
	if orderID.IsZero() {
		return StockReservation{}, apperrors.With(ErrInvalidInventory, "order id is required")
	}
	if len(items) == 0 {
		return StockReservation{}, apperrors.With(ErrInvalidInventory, "order %s has no items", orderID)
	}

	totals := make(map[string]int, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			return StockReservation{}, apperrors.With(ErrInvalidInventory, "order %s has an item without product", orderID)
		}
		if item.Quantity <= 0 {
			return StockReservation{}, apperrors.With(ErrInvalidQuantity, "order %s product %s quantity %d", orderID, item.ProductID, item.Quantity)
		}
		totals[item.ProductID] += item.Quantity
	}
	merged := make([]ReservedItem, 0, len(totals))
	for productID, quantity := range totals {
		merged = append(merged, ReservedItem{ProductID: productID, Quantity: quantity})
	}
	sort.Slice(merged, func(a, b int) bool { return merged[a].ProductID < merged[b].ProductID })

	return StockReservation{
		Consumer:  consumer,
		OrderID:   orderID,
		EventID:   eventID,
		Items:     merged,
		Status:    ReservationCommitted,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Release marks the stock as given back. A released reservation cannot be
// released again.
func (r StockReservation) Release(now time.Time) (StockReservation, error) {
	if r.Status == ReservationReleased {
		return r, apperrors.BusinessRule("reservation_released", "stock of order %s already released", r.OrderID)
	}
	r.Status = ReservationReleased
	r.UpdatedAt = now
	return r, nil
}

// Owe records the alerts that must be published for this reservation.
func (r StockReservation) Owe(alerts []LowStock) StockReservation {
	r.PendingAlerts = append([]LowStock(nil), alerts...)
	return r
}

// AlertsSent clears the pending alerts.
func (r StockReservation) AlertsSent(now time.Time) StockReservation {
	r.PendingAlerts = nil
	r.UpdatedAt = now
	return r
}
