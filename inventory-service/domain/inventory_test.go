package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neocommercepay/commerce-system/shared/apperrors"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestInventory_Decrement(t *testing.T) {
	inv, err := NewInventory("sku-1", "Widget", 10, now)
	require.NoError(t, err)

	later := now.Add(time.Minute)
	next, err := inv.Decrement(4, later)
	require.NoError(t, err)
	assert.Equal(t, 6, next.Quantity)
	assert.Equal(t, 6, next.AvailableQuantity)
	assert.Equal(t, later, next.LastUpdated)
	assert.False(t, next.IsLow())
	assert.Equal(t, 10, inv.AvailableQuantity, "receiver is not modified")

	low, err := next.Decrement(1, later)
	require.NoError(t, err)
	assert.True(t, low.IsLow())
}

func TestInventory_DecrementInsufficient(t *testing.T) {
	inv, _ := NewInventory("sku-1", "", 3, now)

	next, err := inv.Decrement(4, now.Add(time.Minute))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, "insufficient_stock", apperrors.CodeOf(err))
	assert.Equal(t, inv, next)
}

func TestInventory_QuantityValidation(t *testing.T) {
	inv, _ := NewInventory("sku-1", "", 3, now)

	_, err := inv.Decrement(0, now)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = inv.Increment(-2, now)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = NewInventory("", "x", 1, now)
	assert.ErrorIs(t, err, ErrInvalidInventory)
	_, err = NewInventory("sku", "x", -1, now)
	assert.ErrorIs(t, err, ErrInvalidInventory)
}

func TestInventory_Increment(t *testing.T) {
	inv, _ := NewInventory("sku-1", "", 0, now)
	next, err := inv.Increment(7, now)
	require.NoError(t, err)
	assert.Equal(t, 7, next.Quantity)
	assert.Equal(t, 7, next.AvailableQuantity)
}

func TestInventory_DisplayName(t *testing.T) {
	named, _ := NewInventory("sku-1", "Widget", 1, now)
	unnamed, _ := NewInventory("sku-2", "", 1, now)
	assert.Equal(t, "Widget", named.DisplayName())
	assert.Equal(t, "Product-sku-2", unnamed.DisplayName())
}

func TestNewStockReservation_MergesAndSortsLines(t *testing.T) {
	r, err := NewStockReservation("inventory-service", "order-1", "evt-1", []ReservedItem{
		{ProductID: "sku-b", Quantity: 1},
		{ProductID: "sku-a", Quantity: 2},
		{ProductID: "sku-b", Quantity: 3},
	}, now)
	require.NoError(t, err)
	assert.Equal(t, []ReservedItem{{ProductID: "sku-a", Quantity: 2}, {ProductID: "sku-b", Quantity: 4}}, r.Items)
	assert.Equal(t, ReservationCommitted, r.Status)
}

func TestNewStockReservation_Validation(t *testing.T) {
	tests := []struct {
		name  string
		items []ReservedItem
	}{
		{"no items", nil},
		{"missing product", []ReservedItem{{Quantity: 1}}},
		{"zero quantity", []ReservedItem{{ProductID: "sku", Quantity: 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStockReservation("c", "order-1", "evt", tt.items, now)
			require.Error(t, err)
			assert.Equal(t, apperrors.KindInvalid, apperrors.KindOf(err))
		})
	}
}

func TestStockReservation_ReleaseOnce(t *testing.T) {
	r, _ := NewStockReservation("c", "order-1", "evt", []ReservedItem{{ProductID: "sku", Quantity: 1}}, now)

	released, err := r.Release(now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, ReservationReleased, released.Status)

	_, err = released.Release(now)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindBusinessRule, apperrors.KindOf(err))
}

func TestStockReservation_PendingAlerts(t *testing.T) {
	inv, err := NewInventory("sku-1", "", 6, now)
	require.NoError(t, err)
	low, err := inv.Decrement(1, now)
	require.NoError(t, err)

	r, _ := NewStockReservation("c", "order-1", "evt", []ReservedItem{{ProductID: "sku-1", Quantity: 1}}, now)
	alerts := []LowStock{low.LowStock()}
	owed := r.Owe(alerts)
	assert.Equal(t, []LowStock{{ProductID: "sku-1", ProductName: "Product-sku-1", CurrentStock: 5}}, owed.PendingAlerts)

	alerts[0].CurrentStock = 0
	assert.Equal(t, 5, owed.PendingAlerts[0].CurrentStock)

	sent := owed.AlertsSent(now.Add(time.Minute))
	assert.Empty(t, sent.PendingAlerts)
	assert.Equal(t, now.Add(time.Minute), sent.UpdatedAt)
	assert.Len(t, owed.PendingAlerts, 1)
}
