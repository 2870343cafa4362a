package application

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/neocommercepay/commerce-system/orders-service/domain"
	"github.com/neocommercepay/commerce-system/shared/models"
)

// OrderItemResponse is one line of OrderResponse.
type OrderItemResponse struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// OrderResponse is the read model returned by every order use case.
type OrderResponse struct {
	ID           models.ID           `json:"id"`
	UserID       string              `json:"userId"`
	TotalAmount  decimal.Decimal     `json:"totalAmount"`
	Status       string              `json:"status"`
	Items        []OrderItemResponse `json:"items"`
	CancelReason string              `json:"cancelReason,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

// StatusHistoryResponse is one entry of an order's history.
type StatusHistoryResponse struct {
	OldStatus *string   `json:"oldStatus"`
	NewStatus string    `json:"newStatus"`
	ChangedAt time.Time `json:"changedAt"`
}

func toOrderResponse(order domain.Order) *OrderResponse {
	items := make([]OrderItemResponse, len(order.Items))
	for i, item := range order.Items {
		items[i] = OrderItemResponse{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price}
	}
	return &OrderResponse{
		ID:           order.ID,
		UserID:       order.UserID,
		TotalAmount:  order.TotalAmount,
		Status:       string(order.Status),
		Items:        items,
		CancelReason: order.CancelReason,
		CreatedAt:    order.CreatedAt,
		UpdatedAt:    order.UpdatedAt,
	}
}

func toOrderResponses(orders []domain.Order) []*OrderResponse {
	out := make([]*OrderResponse, len(orders))
	for i, order := range orders {
		out[i] = toOrderResponse(order)
	}
	return out
}

func toHistoryResponse(entry domain.StatusHistory) StatusHistoryResponse {
	var old *string
	if entry.OldStatus != nil {
		s := string(*entry.OldStatus)
		old = &s
	}
	return StatusHistoryResponse{OldStatus: old, NewStatus: string(entry.NewStatus), ChangedAt: entry.ChangedAt}
}
