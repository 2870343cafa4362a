package saga_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inventoryapp "github.com/neocommercepay/commerce-system/inventory-service/application"
	inventoryconfig "github.com/neocommercepay/commerce-system/inventory-service/config"
	orderapp "github.com/neocommercepay/commerce-system/orders-service/application"
	orderconfig "github.com/neocommercepay/commerce-system/orders-service/config"
	paymentconfig "github.com/neocommercepay/commerce-system/payments-service/config"
	"github.com/neocommercepay/commerce-system/shared/clock"
	sharedconfig "github.com/neocommercepay/commerce-system/shared/config"
	"github.com/neocommercepay/commerce-system/shared/events"
	sharedinfra "github.com/neocommercepay/commerce-system/shared/infrastructure"
	"github.com/neocommercepay/commerce-system/shared/logging"
	"github.com/neocommercepay/commerce-system/shared/saga"
)

type system struct {
	bus       *sharedinfra.InMemoryBus
	orders    *orderconfig.Dependencies
	payments  *paymentconfig.Dependencies
	inventory *inventoryconfig.Dependencies
}

func baseConfig(service string) sharedconfig.Base {
	return sharedconfig.Base{
		ServiceName: service,
		Env:         "test",
		LogLevel:    "error",
		Database:    sharedconfig.Database{Driver: sharedconfig.DatabaseMemory},
		Broker:      sharedconfig.Broker{Driver: sharedconfig.BrokerMemory, MaxDeliveries: 3},
		Retry:       sharedconfig.Retry{MaxAttempts: 3, Interval: time.Millisecond},
	}
}

// newSystem wires the three services onto one in-memory bus, the way they
// run together in a single process.
func newSystem(t *testing.T, approvalRate float64) *system {
	t.Helper()
	ctx := context.Background()
	logger := logging.New(io.Discard, "saga-test", "error")
	clk := clock.NewStepping(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Millisecond)
	bus := sharedinfra.NewInMemoryBus(3, logger)

	orders, err := orderconfig.BuildDependencies(ctx, &orderconfig.Config{Base: baseConfig(saga.OrderService)}, bus, clk, logger)
	require.NoError(t, err)

	payments, err := paymentconfig.BuildDependencies(ctx, &paymentconfig.Config{
		Base: baseConfig(saga.PaymentService),
		Processor: paymentconfig.Processor{
			Timeout:      time.Second,
			ApprovalRate: approvalRate,
			Seed:         1,
		},
	}, bus, clk, logger)
	require.NoError(t, err)

	inventory, err := inventoryconfig.BuildDependencies(ctx, &inventoryconfig.Config{Base: baseConfig(saga.InventoryService)}, bus, clk, logger)
	require.NoError(t, err)

	for _, router := range []*saga.EventRouter{orders.EventRouter, payments.EventRouter, inventory.EventRouter} {
		require.NoError(t, router.Validate())
		bus.Register(router.Group(), router.Topics(), router)
	}

	t.Cleanup(func() {
		assert.NoError(t, orders.Close())
		assert.NoError(t, payments.Close())
		assert.NoError(t, inventory.Close())
	})

	return &system{bus: bus, orders: orders, payments: payments, inventory: inventory}
}

func (s *system) stock(t *testing.T, productID string, quantity int) {
	t.Helper()
	_, err := s.inventory.CreateInventory.Execute(context.Background(), &inventoryapp.CreateInventoryCommand{
		ProductID:   productID,
		ProductName: "Product " + productID,
		Quantity:    quantity,
	})
	require.NoError(t, err)
}

func (s *system) available(t *testing.T, productID string) int {
	t.Helper()
	inv, err := s.inventory.GetInventory.Execute(context.Background(), productID)
	require.NoError(t, err)
	return inv.AvailableQuantity
}

func (s *system) placeOrder(t *testing.T, items ...orderapp.CreateOrderItem) *orderapp.OrderResponse {
	t.Helper()
	order, err := s.orders.CreateOrder.Execute(context.Background(), &orderapp.CreateOrderCommand{
		UserID: "user-1",
		Items:  items,
	})
	require.NoError(t, err)
	return order
}

func (s *system) orderStatus(t *testing.T, order *orderapp.OrderResponse) *orderapp.OrderResponse {
	t.Helper()
	current, err := s.orders.GetOrder.Execute(context.Background(), order.ID)
	require.NoError(t, err)
	return current
}

func item(productID string, quantity int, price string) orderapp.CreateOrderItem {
	return orderapp.CreateOrderItem{ProductID: productID, Quantity: quantity, Price: decimal.RequireFromString(price)}
}

func TestSaga_ApprovedPaymentMarksOrderPaid(t *testing.T) {
	s := newSystem(t, 1)
	s.stock(t, "p1", 10)

	order := s.placeOrder(t, item("p1", 2, "12.50"))
	assert.True(t, decimal.RequireFromString("25.00").Equal(order.TotalAmount))
	assert.Equal(t, "PENDING", order.Status)

	assert.Equal(t, "PAID", s.orderStatus(t, order).Status)
	assert.Equal(t, 8, s.available(t, "p1"))

	payment, err := s.payments.GetPayment.ByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", payment.Status)
	assert.True(t, decimal.RequireFromString("25.00").Equal(payment.Amount))
	assert.NotEmpty(t, payment.TransactionID)

	created := s.bus.PublishedOn(events.TopicOrderCreated)
	require.Len(t, created, 1)
	for _, event := range s.bus.Published() {
		assert.Equal(t, created[0].CorrelationID, event.CorrelationID, "topic %s", event.Topic)
	}
	assert.Len(t, s.bus.PublishedOn(events.TopicPaymentCompleted), 1)
	assert.Empty(t, s.bus.PublishedOn(events.TopicInventoryDepleted))
	assert.Empty(t, s.bus.DeadLetters(saga.InventoryService))
	assert.Empty(t, s.bus.DeadLetters(saga.PaymentService))
}

func TestSaga_DeclinedPaymentCancelsOrder(t *testing.T) {
	s := newSystem(t, 0)
	s.stock(t, "P1", 10)
	s.stock(t, "P2", 10)

	order := s.placeOrder(t, item("P1", 2, "10.00"), item("P2", 1, "5.00"))
	assert.True(t, decimal.RequireFromString("25.00").Equal(order.TotalAmount))

	current := s.orderStatus(t, order)
	assert.Equal(t, "CANCELLED", current.Status)
	assert.Equal(t, "payment failed: Payment processor declined", current.CancelReason)

	payment, err := s.payments.GetPayment.ByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "FAILED", payment.Status)
	assert.True(t, decimal.RequireFromString("25.00").Equal(payment.Amount))

	assert.Len(t, s.bus.PublishedOn(events.TopicPaymentFailed), 1)
	assert.Len(t, s.bus.PublishedOn(events.TopicOrderCancelled), 1)
	// stock is not given back unless compensation is switched on
	assert.Equal(t, 8, s.available(t, "P1"))
	assert.Equal(t, 9, s.available(t, "P2"))
}

func TestSaga_InsufficientStockChangesNothing(t *testing.T) {
	s := newSystem(t, 1)
	s.stock(t, "p1", 10)
	s.stock(t, "p2", 1)

	order := s.placeOrder(t, item("p1", 2, "5.00"), item("p2", 3, "1.00"))

	assert.Equal(t, 10, s.available(t, "p1"))
	assert.Equal(t, 1, s.available(t, "p2"))

	dead := s.bus.DeadLetters(saga.InventoryService)
	require.Len(t, dead, 1)
	assert.Equal(t, order.ID, dead[0].AggregateID)
	assert.Empty(t, s.bus.PublishedOn(events.TopicInventoryDepleted))

	// the reactions are independent; payment still goes through
	assert.Equal(t, "PAID", s.orderStatus(t, order).Status)
}

func TestSaga_LowStockAnnouncedOnce(t *testing.T) {
	s := newSystem(t, 1)
	s.stock(t, "p1", 6)

	s.placeOrder(t, item("p1", 1, "3.00"))

	depleted := s.bus.PublishedOn(events.TopicInventoryDepleted)
	require.Len(t, depleted, 1)
	payload, err := events.Decode[events.InventoryDepleted](depleted[0])
	require.NoError(t, err)
	assert.Equal(t, "p1", payload.ProductID)
	assert.Equal(t, 5, payload.CurrentStock)
}

func TestSaga_RedeliveredOrderCreatedChargesOnce(t *testing.T) {
	s := newSystem(t, 1)
	s.stock(t, "p1", 10)

	order := s.placeOrder(t, item("p1", 2, "12.50"))
	created := s.bus.PublishedOn(events.TopicOrderCreated)
	require.Len(t, created, 1)

	require.NoError(t, s.bus.Publish(context.Background(), created[0]))

	assert.Equal(t, 8, s.available(t, "p1"))
	assert.Equal(t, "PAID", s.orderStatus(t, order).Status)
	assert.Len(t, s.bus.PublishedOn(events.TopicPaymentInitiated), 1)
	assert.Len(t, s.bus.PublishedOn(events.TopicPaymentProcessing), 1)
	// the outcome is announced again and the order takes it as a no-op
	assert.Len(t, s.bus.PublishedOn(events.TopicPaymentCompleted), 2)
	assert.Empty(t, s.bus.PublishedOn(events.TopicOrderCancelled))
	assert.Empty(t, s.bus.DeadLetters(saga.InventoryService))
	assert.Empty(t, s.bus.DeadLetters(saga.PaymentService))
	assert.Empty(t, s.bus.DeadLetters(saga.OrderService))
}
