package saga

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/neocommercepay/commerce-system/shared/events"
)

// EventRouter dispatches a consumer group's deliveries by topic. Handler
// errors are returned unchanged so the channel adapter can classify them.
type EventRouter struct {
	group    string
	handlers map[events.Topic]events.EventHandler
	logger   *slog.Logger
}

func NewEventRouter(group string, logger *slog.Logger) *EventRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventRouter{
		group:    group,
		handlers: make(map[events.Topic]events.EventHandler),
		logger:   logger,
	}
}

// On registers the reaction to topic.
func (r *EventRouter) On(topic events.Topic, handler events.EventHandler) *EventRouter {
	r.handlers[topic] = handler
	return r
}

// Group is the consumer group the router serves.
func (r *EventRouter) Group() string {
	return r.group
}

// Topics returns the routed topics for the group, in routing table order.
func (r *EventRouter) Topics() []events.Topic {
	return TopicsFor(r.group)
}

// Validate checks that every route of the group has a handler.
func (r *EventRouter) Validate() error {
	for _, topic := range r.Topics() {
		if _, ok := r.handlers[topic]; !ok {
			return errors.Errorf("%s has no reaction to %s", r.group, topic)
		}
	}
	return nil
}

// Handle implements events.EventHandler. Topics without a reaction are
// acknowledged.
func (r *EventRouter) Handle(ctx context.Context, event *events.Event) error {
	handler, ok := r.handlers[event.Topic]
	if !ok {
		r.logger.DebugContext(ctx, "no reaction registered",
			slog.String("consumer_group", r.group),
			slog.String("topic", event.Topic.String()))
		return nil
	}
	return handler.Handle(ctx, event)
}

// Subscribe validates the router and subscribes it with its group's topics.
// It blocks like events.Subscriber.
func (r *EventRouter) Subscribe(ctx context.Context, subscriber events.Subscriber) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return subscriber.Subscribe(ctx, r.group, r.Topics(), r)
}
