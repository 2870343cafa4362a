package infrastructure

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/correlation"
	"github.com/neocommercepay/commerce-system/shared/events"
	"github.com/neocommercepay/commerce-system/shared/telemetry"
)

// consumer applies the acknowledgement policy every channel adapter shares:
// ack on success, leave for redelivery on transient failure, otherwise
// publish to the group's dead-letter topic and ack only once that worked.
type consumer struct {
	group         string
	topics        []events.Topic
	handler       events.EventHandler
	deadLetters   events.Publisher
	maxDeliveries int
	logger        *slog.Logger
}

func newConsumer(group string, topics []events.Topic, handler events.EventHandler, deadLetters events.Publisher, maxDeliveries int, logger *slog.Logger) *consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &consumer{
		group:         group,
		topics:        topics,
		handler:       handler,
		deadLetters:   deadLetters,
		maxDeliveries: maxDeliveries,
		logger:        logger.With(slog.String("consumer_group", group)),
	}
}

// wants reports whether the event's topic is one the group subscribed to.
func (c *consumer) wants(event *events.Event) bool {
	for _, pattern := range c.topics {
		if event.Topic.Matches(pattern) {
			return true
		}
	}
	return false
}

// consume runs the handler for one delivery and reports whether the message
// may be acknowledged. deliveries counts this delivery, starting at 1.
func (c *consumer) consume(ctx context.Context, event *events.Event, deliveries int) bool {
	if event.CorrelationID != "" {
		ctx = correlation.WithID(ctx, event.CorrelationID)
	}

	ctx, span := telemetry.StartSpan(ctx, "consume "+event.Topic.String(),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.consumer_group", c.group),
			attribute.String("messaging.message_id", event.ID.String()),
			attribute.Int("messaging.deliveries", deliveries),
		),
	)
	defer span.End()

	err := c.handler.Handle(ctx, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return c.settle(ctx, event, err, deliveries)
}

// settle decides the fate of a delivery given the handler result.
func (c *consumer) settle(ctx context.Context, event *events.Event, err error, deliveries int) bool {
	outcome := events.OutcomeOf(err)
	if outcome == events.OutcomeRetry && c.maxDeliveries > 0 && deliveries >= c.maxDeliveries {
		err = apperrors.Exhausted(err, uint(deliveries))
		outcome = events.OutcomeDeadLetter
	}

	telemetry.RecordCounter(ctx, "events_consumed_total", "Events consumed by outcome", 1,
		attribute.String("consumer_group", c.group),
		attribute.String("topic", event.Topic.String()),
		attribute.String("outcome", outcome.String()),
	)

	log := c.logger.With(
		slog.String("event_id", event.ID.String()),
		slog.String("topic", event.Topic.String()),
		slog.Int("deliveries", deliveries),
	)

	switch outcome {
	case events.OutcomeAck:
		log.DebugContext(ctx, "event handled")
		return true
	case events.OutcomeRetry:
		log.WarnContext(ctx, "event left for redelivery", slog.String("error", err.Error()))
		return false
	}

	if c.deadLetters == nil {
		log.ErrorContext(ctx, "no dead-letter publisher, leaving event for redelivery", slog.String("error", err.Error()))
		return false
	}
	if pubErr := c.deadLetters.Publish(ctx, events.NewDeadLetter(event, c.group, err, deliveries)); pubErr != nil {
		log.ErrorContext(ctx, "dead-letter publish failed", slog.String("error", pubErr.Error()))
		return false
	}
	log.ErrorContext(ctx, "event dead-lettered",
		slog.String("error", err.Error()),
		slog.String("error_kind", apperrors.KindOf(err).String()),
		slog.String("dead_letter_topic", events.DeadLetterTopic(c.group).String()),
	)
	return true
}
