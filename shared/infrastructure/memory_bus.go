package infrastructure

import (
	"context"
	"log/slog"
	"sync"

	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/events"
	"github.com/neocommercepay/commerce-system/shared/models"
)

var (
	_ events.Publisher  = (*InMemoryBus)(nil)
	_ events.Subscriber = (*InMemoryBus)(nil)
)

// InMemoryBus is a single-process event channel. Published events are
// serialized to JSON and dispatched in FIFO order to every consumer group
// whose topics match. A failed delivery is retried in place, so later events
// never overtake it.
type InMemoryBus struct {
	mu            sync.Mutex
	consumers     []*consumer
	queue         []queued
	dispatching   bool
	published     []*events.Event
	publishErr    error
	maxDeliveries int
	logger        *slog.Logger
}

// queued is an event as it sits on the channel: its wire form plus the
// routing keys a broker would carry outside the body.
type queued struct {
	id    models.ID
	topic events.Topic
	raw   []byte
}

// NewInMemoryBus creates a bus that dead-letters an event after
// maxDeliveries transient failures.
func NewInMemoryBus(maxDeliveries int, logger *slog.Logger) *InMemoryBus {
	if maxDeliveries <= 0 {
		maxDeliveries = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryBus{maxDeliveries: maxDeliveries, logger: logger}
}

// Register adds a consumer group without blocking.
func (b *InMemoryBus) Register(group string, topics []events.Topic, handler events.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumers = append(b.consumers, newConsumer(group, topics, handler, b, b.maxDeliveries, b.logger))
}

// Subscribe registers the group and blocks until ctx is done.
func (b *InMemoryBus) Subscribe(ctx context.Context, group string, topics []events.Topic, handler events.EventHandler) error {
	b.Register(group, topics, handler)
	<-ctx.Done()
	return nil
}

// FailPublishes makes every following Publish return err. Pass nil to reset.
func (b *InMemoryBus) FailPublishes(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishErr = err
}

func (b *InMemoryBus) Publish(ctx context.Context, evts ...*events.Event) error {
	wire := make([]queued, 0, len(evts))
	for _, event := range evts {
		raw, err := event.ToJSON()
		if err != nil {
			return apperrors.Invalid(err, "marshal event "+event.Topic.String())
		}
		wire = append(wire, queued{id: event.ID, topic: event.Topic, raw: raw})
	}

	b.mu.Lock()
	if b.publishErr != nil {
		err := b.publishErr
		b.mu.Unlock()
		return apperrors.Transient(err, "publish")
	}
	for _, event := range evts {
		b.published = append(b.published, event.Clone())
	}
	b.mu.Unlock()

	b.dispatch(ctx, wire...)
	return nil
}

// dispatch queues the messages and drains the queue unless a delivery
// further up the stack is already doing so.
func (b *InMemoryBus) dispatch(ctx context.Context, messages ...queued) {
	b.mu.Lock()
	b.queue = append(b.queue, messages...)
	if b.dispatching {
		b.mu.Unlock()
		return
	}
	b.dispatching = true
	b.mu.Unlock()

	b.drain(context.WithoutCancel(ctx))
}

func (b *InMemoryBus) drain(ctx context.Context) {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.dispatching = false
			b.mu.Unlock()
			return
		}
		msg := b.queue[0]
		b.queue = b.queue[1:]
		consumers := append([]*consumer(nil), b.consumers...)
		b.mu.Unlock()

		for _, c := range consumers {
			b.deliver(ctx, c, msg)
		}
	}
}

func (b *InMemoryBus) deliver(ctx context.Context, c *consumer, msg queued) {
	if !c.wants(&events.Event{Topic: msg.topic}) {
		return
	}

	for deliveries := 1; ; deliveries++ {
		var ack bool
		// decoded per delivery so every attempt gets its own copy
		event, err := events.FromJSON(msg.raw)
		if err != nil {
			undecodable := &events.Event{ID: msg.id, Topic: msg.topic, Data: msg.raw}
			ack = c.settle(ctx, undecodable, apperrors.Invalid(err, "decode event"), deliveries)
		} else {
			ack = c.consume(ctx, event, deliveries)
		}
		if ack {
			return
		}
		if deliveries > c.maxDeliveries {
			b.logger.ErrorContext(ctx, "event could not be settled, dropping",
				slog.String("consumer_group", c.group),
				slog.String("event_id", msg.id.String()))
			return
		}
	}
}

// Published returns copies of every event accepted so far, dead letters included.
func (b *InMemoryBus) Published() []*events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*events.Event, len(b.published))
	for i, e := range b.published {
		out[i] = e.Clone()
	}
	return out
}

// PublishedOn returns the accepted events of one topic.
func (b *InMemoryBus) PublishedOn(topic events.Topic) []*events.Event {
	var out []*events.Event
	for _, e := range b.Published() {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

// DeadLetters returns what the group dead-lettered.
func (b *InMemoryBus) DeadLetters(group string) []*events.Event {
	return b.PublishedOn(events.DeadLetterTopic(group))
}

// Close is a no-op kept for symmetry with the broker-backed adapters.
func (b *InMemoryBus) Close() error {
	return nil
}
