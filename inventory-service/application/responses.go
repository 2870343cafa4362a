package application

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/neocommercepay/commerce-system/inventory-service/domain"
	"github.com/neocommercepay/commerce-system/shared/correlation"
	"github.com/neocommercepay/commerce-system/shared/events"
	"github.com/neocommercepay/commerce-system/shared/models"
)

// InventoryResponse represents an inventory as returned by the use cases
type InventoryResponse struct {
	ID                models.ID `json:"id"`
	ProductID         string    `json:"productId"`
	ProductName       string    `json:"productName,omitempty"`
	Quantity          int       `json:"quantity"`
	ReservedQuantity  int       `json:"reservedQuantity"`
	AvailableQuantity int       `json:"availableQuantity"`
	LastUpdated       time.Time `json:"lastUpdated"`
}

func toInventoryResponse(i domain.Inventory) *InventoryResponse {
	return &InventoryResponse{
		ID:                i.ID,
		ProductID:         i.ProductID,
		ProductName:       i.ProductName,
		Quantity:          i.Quantity,
		ReservedQuantity:  i.ReservedQuantity,
		AvailableQuantity: i.AvailableQuantity,
		LastUpdated:       i.LastUpdated,
	}
}

// announceDepleted publishes one InventoryDepleted per alert, keyed by
// product. Call it once the decrement committed.
func announceDepleted(ctx context.Context, publisher events.Publisher, alerts []domain.LowStock, now time.Time) error {
	if len(alerts) == 0 {
		return nil
	}
	ctx, correlationID := correlation.Ensure(ctx)
	evts := make([]*events.Event, len(alerts))
	for i, alert := range alerts {
		evts[i] = events.NewEvent(models.ID(alert.ProductID), events.TopicInventoryDepleted, events.InventoryDepleted{
			ProductID:     alert.ProductID,
			ProductName:   alert.ProductName,
			CurrentStock:  alert.CurrentStock,
			Timestamp:     now,
			CorrelationID: correlationID,
		}, now).WithCorrelationID(correlationID)
	}
	return errors.Wrap(publisher.Publish(ctx, evts...), "stock saved but inventory.depleted was not published")
}
