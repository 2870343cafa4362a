// Package saga holds the fixed choreography between the order, payment and
// inventory services: who reacts to which event. There is no coordinator;
// each service subscribes with its own consumer group and routes deliveries
// to its reactions.
package saga

import (
	"github.com/neocommercepay/commerce-system/shared/events"
)

// Consumer groups, one per participant. Each group has a dead-letter topic
// named "<group>-dlq".
const (
	OrderService     = "order-service"
	PaymentService   = "payment-service"
	InventoryService = "inventory-service"
)

// Route is one edge of the choreography.
type Route struct {
	Topic    events.Topic
	Group    string
	Reaction string
}

// Routes is the complete routing table.
var Routes = []Route{
	{Topic: events.TopicOrderCreated, Group: PaymentService, Reaction: "initiate and process the order's payment"},
	{Topic: events.TopicOrderCreated, Group: InventoryService, Reaction: "decrement stock for every line item"},
	{Topic: events.TopicPaymentCompleted, Group: OrderService, Reaction: "mark the order PAID"},
	{Topic: events.TopicPaymentFailed, Group: OrderService, Reaction: "cancel the order with the failure reason"},
	{Topic: events.TopicOrderCancelled, Group: InventoryService, Reaction: "release the order's stock when compensation is enabled"},
}

// TopicsFor returns the topics a group consumes, in table order.
func TopicsFor(group string) []events.Topic {
	var topics []events.Topic
	for _, route := range Routes {
		if route.Group == group {
			topics = append(topics, route.Topic)
		}
	}
	return topics
}
