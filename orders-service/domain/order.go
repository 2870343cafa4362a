package domain

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/models"
)

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
)

// ParseOrderStatus accepts any letter case.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch status := OrderStatus(strings.ToUpper(strings.TrimSpace(s))); status {
	case OrderStatusPending, OrderStatusPaid, OrderStatusCancelled, OrderStatusShipped, OrderStatusDelivered:
		return status, nil
	}
	return "", apperrors.With(ErrInvalidStatus, "status %q", s)
}

// IsFulfilled reports whether the order left the warehouse.
func (s OrderStatus) IsFulfilled() bool {
	return s == OrderStatusShipped || s == OrderStatusDelivered
}

var (
	ErrOrderNotFound         = apperrors.New(apperrors.KindNotFound, "order_not_found", "order not found")
	ErrCannotCancelFulfilled = apperrors.New(apperrors.KindBusinessRule, "cannot_cancel_fulfilled", "cannot cancel a fulfilled order")
	ErrInvalidStatus         = apperrors.New(apperrors.KindInvalid, "invalid_status", "invalid order status")
	ErrInvalidOrder          = apperrors.New(apperrors.KindInvalid, "invalid_order", "invalid order")
)

// OrderItem is an ordered line. Immutable after creation.
type OrderItem struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}

// Subtotal is price × quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is a value: transitions return a new Order and leave the receiver
// untouched.
type Order struct {
	ID           models.ID
	UserID       string
	TotalAmount  decimal.Decimal
	Status       OrderStatus
	Items        []OrderItem
	CancelReason string
	models.Timestamps
}

// StatusHistory is one append-only entry of an order's transitions.
// OldStatus is nil for the entry written at creation.
type StatusHistory struct {
	ID        models.ID
	OrderID   models.ID
	OldStatus *OrderStatus
	NewStatus OrderStatus
	ChangedAt time.Time
}

// NewOrder validates the items, computes the total once and returns the
// PENDING order together with its first history entry.
func NewOrder(userID string, items []OrderItem, now time.Time) (Order, StatusHistory, error) {
	if strings.TrimSpace(userID) == "" {
		return Order{}, StatusHistory{}, apperrors.With(ErrInvalidOrder, "user id is required")
	}
	if len(items) == 0 {
		return Order{}, StatusHistory{}, apperrors.With(ErrInvalidOrder, "order must contain at least one item")
	}

	total := decimal.Zero
	lines := make([]OrderItem, len(items))
	for i, item := range items {
		switch {
		case strings.TrimSpace(item.ProductID) == "":
			return Order{}, StatusHistory{}, apperrors.With(ErrInvalidOrder, "item %d: product id is required", i)
		case item.Quantity <= 0:
			return Order{}, StatusHistory{}, apperrors.With(ErrInvalidOrder, "item %d: quantity must be positive", i)
		case item.Price.IsNegative():
			return Order{}, StatusHistory{}, apperrors.With(ErrInvalidOrder, "item %d: price must not be negative", i)
		}
		lines[i] = item
		total = total.Add(item.Subtotal())
	}

	order := Order{
		ID:          models.GenerateUUID(),
		UserID:      userID,
		TotalAmount: total,
		Status:      OrderStatusPending,
		Items:       lines,
		Timestamps:  models.NewTimestamps(now),
	}
	return order, order.historyEntry(nil, now), nil
}

// TransitionTo moves the order to status. Moving to the current status is a
// no-op and returns a nil history entry.
func (o Order) TransitionTo(status OrderStatus, now time.Time) (Order, *StatusHistory) {
	if o.Status == status {
		return o, nil
	}
	old := o.Status
	next := o
	next.Items = append([]OrderItem(nil), o.Items...)
	next.Status = status
	next.Timestamps = o.Timestamps.Touch(now)
	entry := next.historyEntry(&old, now)
	return next, &entry
}

// Cancel moves the order to CANCELLED. Fulfilled orders cannot be cancelled;
// an already cancelled order is returned unchanged with a nil entry.
func (o Order) Cancel(reason string, now time.Time) (Order, *StatusHistory, error) {
	if o.Status.IsFulfilled() {
		return o, nil, apperrors.With(ErrCannotCancelFulfilled, "order %s is %s", o.ID, o.Status)
	}
	next, entry := o.TransitionTo(OrderStatusCancelled, now)
	if entry != nil {
		next.CancelReason = reason
	}
	return next, entry, nil
}

func (o Order) historyEntry(old *OrderStatus, now time.Time) StatusHistory {
	return StatusHistory{
		ID:        models.GenerateUUID(),
		OrderID:   o.ID,
		OldStatus: old,
		NewStatus: o.Status,
		ChangedAt: now,
	}
}

// OrderRepository persists orders and their history.
type OrderRepository interface {
	Save(ctx context.Context, order Order) error
	Update(ctx context.Context, order Order) error
	// FindByID returns ErrOrderNotFound when absent.
	FindByID(ctx context.Context, id models.ID) (Order, error)
	// FindByIDForUpdate is FindByID holding a row lock until the unit of
	// work ends.
	FindByIDForUpdate(ctx context.Context, id models.ID) (Order, error)
	FindByUserID(ctx context.Context, userID string) ([]Order, error)
	FindByStatus(ctx context.Context, status OrderStatus) ([]Order, error)
	AppendHistory(ctx context.Context, entry StatusHistory) error
	History(ctx context.Context, orderID models.ID) ([]StatusHistory, error)
}

// UnitOfWork runs fn atomically.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
