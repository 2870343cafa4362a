package handlers

import (
	"context"

	"github.com/neocommercepay/commerce-system/inventory-service/application"
	"github.com/neocommercepay/commerce-system/inventory-service/domain"
	"github.com/neocommercepay/commerce-system/shared/events"
	"github.com/neocommercepay/commerce-system/shared/saga"
)

// InventoryEventHandlers handles the events the inventory service consumes
type InventoryEventHandlers struct {
	reserveOrderStock *application.ReserveOrderStock
	releaseOrderStock *application.ReleaseOrderStock
}

func NewInventoryEventHandlers(reserve *application.ReserveOrderStock, release *application.ReleaseOrderStock) *InventoryEventHandlers {
	return &InventoryEventHandlers{reserveOrderStock: reserve, releaseOrderStock: release}
}

func (h *InventoryEventHandlers) Register(router *saga.EventRouter) *saga.EventRouter {
	return router.
		On(events.TopicOrderCreated, events.EventHandlerFunc(h.HandleOrderCreated)).
		On(events.TopicOrderCancelled, events.EventHandlerFunc(h.HandleOrderCancelled))
}

// HandleOrderCreated takes the order's stock, whatever the payment outcome.
func (h *InventoryEventHandlers) HandleOrderCreated(ctx context.Context, event *events.Event) error {
	payload, err := events.Decode[events.OrderCreated](event)
	if err != nil {
		return err
	}
	items := make([]domain.ReservedItem, len(payload.Items))
	for i, item := range payload.Items {
		items[i] = domain.ReservedItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	_, err = h.reserveOrderStock.Execute(ctx, &application.ReserveOrderStockCommand{
		OrderID: payload.OrderID,
		EventID: event.ID,
		Items:   items,
	})
	return err
}

func (h *InventoryEventHandlers) HandleOrderCancelled(ctx context.Context, event *events.Event) error {
	payload, err := events.Decode[events.OrderCancelled](event)
	if err != nil {
		return err
	}
	_, err = h.releaseOrderStock.Execute(ctx, &application.ReleaseOrderStockCommand{OrderID: payload.OrderID})
	return err
}
