package handlers

import (
	"context"

	"github.com/neocommercepay/commerce-system/payments-service/application"
	"github.com/neocommercepay/commerce-system/shared/events"
	"github.com/neocommercepay/commerce-system/shared/saga"
)

// PaymentEventHandlers handles the events the payment service consumes
type PaymentEventHandlers struct {
	payForOrder *application.PayForOrder
}

func NewPaymentEventHandlers(payForOrder *application.PayForOrder) *PaymentEventHandlers {
	return &PaymentEventHandlers{payForOrder: payForOrder}
}

// Register binds the reactions to the router of the payment-service group.
func (h *PaymentEventHandlers) Register(router *saga.EventRouter) *saga.EventRouter {
	return router.On(events.TopicOrderCreated, events.EventHandlerFunc(h.HandleOrderCreated))
}

// HandleOrderCreated pays for a new order.
func (h *PaymentEventHandlers) HandleOrderCreated(ctx context.Context, event *events.Event) error {
	payload, err := events.Decode[events.OrderCreated](event)
	if err != nil {
		return err
	}
	_, err = h.payForOrder.Execute(ctx, &application.PayForOrderCommand{
		OrderID: payload.OrderID,
		Amount:  payload.TotalAmount,
	})
	return err
}
