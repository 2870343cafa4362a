package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/correlation"
	"github.com/neocommercepay/commerce-system/shared/events"
	"github.com/neocommercepay/commerce-system/shared/models"
)

func newOrderCreated(orderID models.ID) *events.Event {
	return events.NewEvent(orderID, events.TopicOrderCreated, events.OrderCreated{
		OrderID: orderID,
		UserID:  "user-1",
		Status:  "PENDING",
	}, time.Now()).WithCorrelationID("corr-1")
}

func TestInMemoryBus_DeliversToEveryMatchingGroup(t *testing.T) {
	bus := NewInMemoryBus(3, nil)
	var payments, inventory, orders []string

	bus.Register("payment-service", []events.Topic{events.TopicOrderCreated}, events.EventHandlerFunc(
		func(ctx context.Context, e *events.Event) error {
			payload, err := events.Decode[events.OrderCreated](e)
			require.NoError(t, err)
			payments = append(payments, payload.UserID)
			assert.Equal(t, "corr-1", correlation.FromContext(ctx))
			return nil
		}))
	bus.Register("inventory-service", []events.Topic{"order.*"}, events.EventHandlerFunc(
		func(ctx context.Context, e *events.Event) error {
			inventory = append(inventory, e.Topic.String())
			return nil
		}))
	bus.Register("order-service", []events.Topic{events.TopicPaymentCompleted}, events.EventHandlerFunc(
		func(ctx context.Context, e *events.Event) error {
			orders = append(orders, e.Topic.String())
			return nil
		}))

	require.NoError(t, bus.Publish(context.Background(), newOrderCreated(models.GenerateUUID())))

	assert.Equal(t, []string{"user-1"}, payments)
	assert.Equal(t, []string{"order.created"}, inventory)
	assert.Empty(t, orders)
}

func TestInMemoryBus_EventsPublishedByHandlersKeepFIFOOrder(t *testing.T) {
	bus := NewInMemoryBus(1, nil)
	var seen []events.Topic

	bus.Register("payment-service", []events.Topic{events.TopicOrderCreated}, events.EventHandlerFunc(
		func(ctx context.Context, e *events.Event) error {
			seen = append(seen, e.Topic)
			return bus.Publish(ctx,
				events.NewEvent(e.AggregateID, events.TopicPaymentInitiated, nil, time.Now()),
				events.NewEvent(e.AggregateID, events.TopicPaymentCompleted, nil, time.Now()),
			)
		}))
	bus.Register("audit", []events.Topic{"payment.#"}, events.EventHandlerFunc(
		func(ctx context.Context, e *events.Event) error {
			seen = append(seen, e.Topic)
			return nil
		}))

	require.NoError(t, bus.Publish(context.Background(), newOrderCreated(models.GenerateUUID())))

	assert.Equal(t, []events.Topic{
		events.TopicOrderCreated,
		events.TopicPaymentInitiated,
		events.TopicPaymentCompleted,
	}, seen)
}

func TestInMemoryBus_RedeliversTransientFailures(t *testing.T) {
	bus := NewInMemoryBus(5, nil)
	attempts := 0

	bus.Register("inventory-service", []events.Topic{events.TopicOrderCreated}, events.EventHandlerFunc(
		func(ctx context.Context, e *events.Event) error {
			attempts++
			if attempts < 3 {
				return errors.New("deadlock detected")
			}
			return nil
		}))

	require.NoError(t, bus.Publish(context.Background(), newOrderCreated(models.GenerateUUID())))

	assert.Equal(t, 3, attempts)
	assert.Empty(t, bus.DeadLetters("inventory-service"))
}

func TestInMemoryBus_DeadLetters(t *testing.T) {
	tests := []struct {
		name         string
		handlerErr   error
		wantAttempts int
		wantKind     string
	}{
		{
			name:         "permanent failure goes straight to the dead-letter topic",
			handlerErr:   apperrors.NotFound("inventory_not_found", "inventory for product P9 not found"),
			wantAttempts: 1,
			wantKind:     "not_found",
		},
		{
			name:         "transient failure is dead-lettered once deliveries run out",
			handlerErr:   errors.New("connection refused"),
			wantAttempts: 3,
			wantKind:     "exhausted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := NewInMemoryBus(3, nil)
			attempts := 0
			bus.Register("inventory-service", []events.Topic{events.TopicOrderCreated}, events.EventHandlerFunc(
				func(ctx context.Context, e *events.Event) error {
					attempts++
					return tt.handlerErr
				}))

			event := newOrderCreated(models.GenerateUUID())
			require.NoError(t, bus.Publish(context.Background(), event))

			assert.Equal(t, tt.wantAttempts, attempts)
			dead := bus.DeadLetters("inventory-service")
			require.Len(t, dead, 1)
			assert.Equal(t, event.ID, dead[0].ID)
			assert.Equal(t, events.Topic("inventory-service-dlq"), dead[0].Topic)
			assert.Equal(t, tt.wantKind, dead[0].Metadata[events.MetaErrorKind])
			assert.Equal(t, "order.created", dead[0].Metadata[events.MetaOriginalTopic])
		})
	}
}

func TestInMemoryBus_PublishFailurePropagates(t *testing.T) {
	bus := NewInMemoryBus(1, nil)
	bus.FailPublishes(errors.New("broker unavailable"))

	err := bus.Publish(context.Background(), newOrderCreated(models.GenerateUUID()))

	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Empty(t, bus.Published())

	bus.FailPublishes(nil)
	require.NoError(t, bus.Publish(context.Background(), newOrderCreated(models.GenerateUUID())))
	assert.Len(t, bus.Published(), 1)
}

func TestInMemoryBus_HandlersReceiveIndependentCopies(t *testing.T) {
	bus := NewInMemoryBus(1, nil)
	var second *events.Event

	bus.Register("a", []events.Topic{"#"}, events.EventHandlerFunc(func(ctx context.Context, e *events.Event) error {
		e.Metadata = events.Metadata{"touched": "yes"}
		return nil
	}))
	bus.Register("b", []events.Topic{"#"}, events.EventHandlerFunc(func(ctx context.Context, e *events.Event) error {
		second = e
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), newOrderCreated(models.GenerateUUID())))

	require.NotNil(t, second)
	_, touched := second.Metadata["touched"]
	assert.False(t, touched)
}

func TestInMemoryBus_UndecodableEventIsDeadLettered(t *testing.T) {
	bus := NewInMemoryBus(3, nil)
	handled := 0
	bus.Register("payment-service", []events.Topic{events.TopicOrderCreated}, events.EventHandlerFunc(
		func(ctx context.Context, e *events.Event) error {
			handled++
			return nil
		}))

	id := models.GenerateUUID()
	bus.dispatch(context.Background(), queued{id: id, topic: events.TopicOrderCreated, raw: []byte(`{"id":`)})

	assert.Zero(t, handled)
	dead := bus.DeadLetters("payment-service")
	require.Len(t, dead, 1)
	assert.Equal(t, id, dead[0].ID)
	assert.Equal(t, "invalid", dead[0].Metadata[events.MetaErrorKind])
	assert.Equal(t, "order.created", dead[0].Metadata[events.MetaOriginalTopic])
	assert.Equal(t, "1", dead[0].Metadata[events.MetaDeliveries])
}
