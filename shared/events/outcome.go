package events

import (
	"strconv"

	"github.com/neocommercepay/commerce-system/shared/apperrors"
)

// Outcome is what a channel adapter does with a delivered message once the
// handler returned.
type Outcome int

const (
	// OutcomeAck acknowledges the message.
	OutcomeAck Outcome = iota
	// OutcomeRetry leaves the message for redelivery.
	OutcomeRetry
	// OutcomeDeadLetter publishes the message to the group's dead-letter
	// topic and acknowledges it only afterwards.
	OutcomeDeadLetter
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAck:
		return "ack"
	case OutcomeRetry:
		return "retry"
	default:
		return "dead_letter"
	}
}

// OutcomeOf classifies a handler result.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeAck
	}
	if apperrors.KindOf(err) == apperrors.KindTransient {
		return OutcomeRetry
	}
	return OutcomeDeadLetter
}

// Dead-letter metadata keys.
const (
	MetaOriginalTopic = "dlq_original_topic"
	MetaConsumerGroup = "dlq_consumer_group"
	MetaError         = "dlq_error"
	MetaErrorKind     = "dlq_error_kind"
	MetaDeliveries    = "dlq_deliveries"
)

// DeadLetterTopic is the dead-letter destination of a consumer group,
// e.g. "payment-service-dlq".
func DeadLetterTopic(group string) Topic {
	return Topic(group + "-dlq")
}

// NewDeadLetter copies event onto the group's dead-letter topic, recording
// why and after how many deliveries it was given up on.
func NewDeadLetter(event *Event, group string, cause error, deliveries int) *Event {
	dead := event.Clone()
	dead.Topic = DeadLetterTopic(group)
	dead.WithMetadata(MetaOriginalTopic, event.Topic.String()).
		WithMetadata(MetaConsumerGroup, group).
		WithMetadata(MetaDeliveries, strconv.Itoa(deliveries))
	if cause != nil {
		dead.WithMetadata(MetaError, cause.Error()).
			WithMetadata(MetaErrorKind, apperrors.KindOf(cause).String())
	}
	return dead
}
