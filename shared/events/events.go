package events

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/neocommercepay/commerce-system/shared/models"
)

var ErrInvalidReceiver = errors.New("receiver should be a pointer")

// Topic represents an event topic with pattern matching support.
// Patterns: "order.*" matches one segment, "payment.#" matches any suffix.
type Topic string

func (t Topic) Matches(pattern Topic) bool {
	topicStr := t.String()
	patternStr := pattern.String()

	if strings.HasPrefix(patternStr, "#") && strings.HasSuffix(patternStr, "#") && len(patternStr) > 1 {
		return strings.Contains(topicStr, strings.Trim(patternStr, "#"))
	}
	if strings.HasPrefix(patternStr, "#") && len(patternStr) > 1 {
		return strings.HasSuffix(topicStr, strings.TrimPrefix(patternStr, "#"))
	}
	if strings.HasSuffix(patternStr, "#") && len(patternStr) > 1 {
		return strings.HasPrefix(topicStr, strings.TrimSuffix(patternStr, "#"))
	}

	return matchPattern(strings.Split(patternStr, "."), strings.Split(topicStr, "."))
}

func (t Topic) String() string {
	return string(t)
}

func matchPattern(patternParts, topicParts []string) bool {
	if len(patternParts) == 1 && patternParts[0] == "#" {
		return true
	}
	if len(patternParts) != len(topicParts) {
		return false
	}
	if len(patternParts) == 0 {
		return true
	}
	if patternParts[0] == "*" || patternParts[0] == topicParts[0] {
		return matchPattern(patternParts[1:], topicParts[1:])
	}
	return false
}

// Metadata represents event metadata carried as transport attributes
type Metadata map[string]string

func (m Metadata) Clone() Metadata {
	clone := make(Metadata, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

// Event is the envelope every message travels in. AggregateID is the
// partition key: events sharing it are delivered in publish order.
type Event struct {
	ID            models.ID   `json:"id"`
	AggregateID   models.ID   `json:"aggregate_id"`
	Topic         Topic       `json:"topic"`
	Version       string      `json:"version"`
	Data          interface{} `json:"data"`
	Metadata      Metadata    `json:"metadata,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// Publisher hands events to the transport. A returned error means at least
// one event was not accepted.
type Publisher interface {
	Publish(ctx context.Context, events ...*Event) error
}

// Subscriber delivers events of the given topics to one member of the
// consumer group, at least once, acknowledging only after handler success.
// Subscribe blocks until ctx is cancelled.
type Subscriber interface {
	Subscribe(ctx context.Context, group string, topics []Topic, handler EventHandler) error
}

// EventHandler handles domain events. The returned error is classified with
// OutcomeOf to decide between ack, redelivery and dead-lettering.
type EventHandler interface {
	Handle(ctx context.Context, event *Event) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event *Event) error

func (f EventHandlerFunc) Handle(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// NewEvent creates a new domain event
func NewEvent(aggregateID models.ID, topic Topic, data interface{}, now time.Time) *Event {
	return &Event{
		ID:          models.GenerateUUID(),
		AggregateID: aggregateID,
		Topic:       topic,
		Version:     "1.0",
		Data:        data,
		Metadata:    make(Metadata),
		Timestamp:   now,
	}
}

// WithCorrelationID sets correlation ID
func (e *Event) WithCorrelationID(correlationID string) *Event {
	e.CorrelationID = correlationID
	return e
}

// WithMetadata adds metadata
func (e *Event) WithMetadata(key string, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(Metadata)
	}
	e.Metadata[key] = value
	return e
}

// Key returns the partition/ordering key.
func (e *Event) Key() string {
	return e.AggregateID.String()
}

// ToJSON converts event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON creates event from JSON. Data is left as json.RawMessage.
func FromJSON(data []byte) (*Event, error) {
	var wire struct {
		Event
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	event := wire.Event
	event.Data = wire.Data
	return &event, nil
}

// MarshalPayload marshals the event payload
func (e *Event) MarshalPayload() (json.RawMessage, error) {
	switch b := e.Data.(type) {
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	}
	return json.Marshal(e.Data)
}

// UnmarshalPayload unmarshals the event payload into the given pointer
func (e *Event) UnmarshalPayload(v interface{}) error {
	vValue := reflect.ValueOf(v)
	if vValue.Kind() != reflect.Ptr || vValue.IsNil() {
		return ErrInvalidReceiver
	}

	vValue = vValue.Elem()
	payloadValue := reflect.ValueOf(e.Data)
	if payloadValue.IsValid() && vValue.Type() == payloadValue.Type() {
		vValue.Set(payloadValue)
		return nil
	}

	raw, err := e.MarshalPayload()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Clone creates a copy of the event
func (e *Event) Clone() *Event {
	clone := *e
	clone.Metadata = e.Metadata.Clone()
	return &clone
}
