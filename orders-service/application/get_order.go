package application

import (
	"context"

	"github.com/neocommercepay/commerce-system/orders-service/domain"
	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/models"
	"github.com/neocommercepay/commerce-system/shared/telemetry"
)

// GetOrder use case for retrieving orders
type GetOrder struct {
	orderRepository domain.OrderRepository
}

func NewGetOrder(orderRepository domain.OrderRepository) *GetOrder {
	return &GetOrder{orderRepository: orderRepository}
}

func (uc *GetOrder) Execute(ctx context.Context, orderID models.ID) (*OrderResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "GetOrder.Execute")
	defer span.End()

	order, err := uc.orderRepository.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return toOrderResponse(order), nil
}

// ListOrdersQuery filters by user or by status. Exactly one must be set.
type ListOrdersQuery struct {
	UserID string
	Status string
}

// ListOrders use case
type ListOrders struct {
	orderRepository domain.OrderRepository
}

func NewListOrders(orderRepository domain.OrderRepository) *ListOrders {
	return &ListOrders{orderRepository: orderRepository}
}

func (uc *ListOrders) Execute(ctx context.Context, query ListOrdersQuery) ([]*OrderResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "ListOrders.Execute")
	defer span.End()

	var (
		orders []domain.Order
		err    error
	)
	switch {
	case query.UserID != "" && query.Status != "":
		return nil, apperrors.With(domain.ErrInvalidOrder, "filter by user or by status, not both")
	case query.UserID != "":
		orders, err = uc.orderRepository.FindByUserID(ctx, query.UserID)
	case query.Status != "":
		status, parseErr := domain.ParseOrderStatus(query.Status)
		if parseErr != nil {
			return nil, parseErr
		}
		orders, err = uc.orderRepository.FindByStatus(ctx, status)
	default:
		return nil, apperrors.With(domain.ErrInvalidOrder, "a user or status filter is required")
	}
	if err != nil {
		return nil, err
	}
	return toOrderResponses(orders), nil
}

// GetOrderHistory returns an order's status transitions, oldest first.
type GetOrderHistory struct {
	orderRepository domain.OrderRepository
}

func NewGetOrderHistory(orderRepository domain.OrderRepository) *GetOrderHistory {
	return &GetOrderHistory{orderRepository: orderRepository}
}

func (uc *GetOrderHistory) Execute(ctx context.Context, orderID models.ID) ([]StatusHistoryResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "GetOrderHistory.Execute")
	defer span.End()

	if _, err := uc.orderRepository.FindByID(ctx, orderID); err != nil {
		return nil, err
	}
	history, err := uc.orderRepository.History(ctx, orderID)
	if err != nil {
		return nil, err
	}
	out := make([]StatusHistoryResponse, len(history))
	for i, entry := range history {
		out[i] = toHistoryResponse(entry)
	}
	return out, nil
}
