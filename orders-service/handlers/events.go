package handlers

import (
	"context"

	"github.com/neocommercepay/commerce-system/orders-service/application"
	"github.com/neocommercepay/commerce-system/orders-service/domain"
	"github.com/neocommercepay/commerce-system/shared/events"
	"github.com/neocommercepay/commerce-system/shared/saga"
)

// OrderEventHandlers reacts to payment outcomes.
type OrderEventHandlers struct {
	updateOrderStatus *application.UpdateOrderStatus
	cancelOrder       *application.CancelOrder
}

func NewOrderEventHandlers(
	updateOrderStatus *application.UpdateOrderStatus,
	cancelOrder *application.CancelOrder,
) *OrderEventHandlers {
	return &OrderEventHandlers{
		updateOrderStatus: updateOrderStatus,
		cancelOrder:       cancelOrder,
	}
}

// Register binds the reactions to the router of the order-service group.
func (h *OrderEventHandlers) Register(router *saga.EventRouter) *saga.EventRouter {
	return router.
		On(events.TopicPaymentCompleted, events.EventHandlerFunc(h.HandlePaymentCompleted)).
		On(events.TopicPaymentFailed, events.EventHandlerFunc(h.HandlePaymentFailed))
}

// HandlePaymentCompleted marks the order PAID.
func (h *OrderEventHandlers) HandlePaymentCompleted(ctx context.Context, event *events.Event) error {
	payload, err := events.Decode[events.PaymentCompleted](event)
	if err != nil {
		return err
	}
	_, err = h.updateOrderStatus.Execute(ctx, &application.UpdateOrderStatusCommand{
		OrderID: payload.OrderID,
		Status:  string(domain.OrderStatusPaid),
	})
	return err
}

// HandlePaymentFailed cancels the order with the failure reason.
func (h *OrderEventHandlers) HandlePaymentFailed(ctx context.Context, event *events.Event) error {
	payload, err := events.Decode[events.PaymentFailed](event)
	if err != nil {
		return err
	}
	_, err = h.cancelOrder.Execute(ctx, &application.CancelOrderCommand{
		OrderID: payload.OrderID,
		Reason:  "payment failed: " + payload.Reason,
	})
	return err
}
