package application

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/neocommercepay/commerce-system/orders-service/domain"
	"github.com/neocommercepay/commerce-system/orders-service/infrastructure"
	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/clock"
	"github.com/neocommercepay/commerce-system/shared/correlation"
	"github.com/neocommercepay/commerce-system/shared/events"
	sharedinfra "github.com/neocommercepay/commerce-system/shared/infrastructure"
	"github.com/neocommercepay/commerce-system/shared/mocks"
	"github.com/neocommercepay/commerce-system/shared/models"
)

type fixture struct {
	repo      *infrastructure.MemoryOrderRepository
	publisher *mocks.MockPublisher
	create    *CreateOrder
	update    *UpdateOrderStatus
	cancel    *CancelOrder
	history   *GetOrderHistory
}

func newFixture(t *testing.T) *fixture {
	repo := infrastructure.NewMemoryOrderRepository()
	uow := sharedinfra.NewMemoryUnitOfWork()
	publisher := mocks.NewMockPublisher(t)
	clk := clock.NewStepping(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), time.Second)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &fixture{
		repo:      repo,
		publisher: publisher,
		create:    NewCreateOrder(repo, uow, publisher, clk, logger),
		update:    NewUpdateOrderStatus(repo, uow, publisher, clk, logger),
		cancel:    NewCancelOrder(repo, uow, publisher, clk, logger),
		history:   NewGetOrderHistory(repo),
	}
}

func topicIs(topic events.Topic) interface{} {
	return mock.MatchedBy(func(e *events.Event) bool { return e.Topic == topic })
}

func (f *fixture) placeOrder(t *testing.T) *OrderResponse {
	f.publisher.EXPECT().Publish(mock.Anything, topicIs(events.TopicOrderCreated)).Return(nil).Once()
	order, err := f.create.Execute(context.Background(), &CreateOrderCommand{
		UserID: "user-1",
		Items: []CreateOrderItem{
			{ProductID: "sku-1", Quantity: 2, Price: models.MustAmount("10.00")},
			{ProductID: "sku-2", Quantity: 1, Price: models.MustAmount("5.00")},
		},
	})
	require.NoError(t, err)
	return order
}

func TestCreateOrder_Execute(t *testing.T) {
	f := newFixture(t)
	ctx := correlation.WithID(context.Background(), "corr-42")

	var published *events.Event
	f.publisher.EXPECT().Publish(mock.Anything, topicIs(events.TopicOrderCreated)).
		Run(func(_ context.Context, evts ...*events.Event) { published = evts[0] }).
		Return(nil).Once()

	order, err := f.create.Execute(ctx, &CreateOrderCommand{
		UserID: "user-1",
		Items:  []CreateOrderItem{{ProductID: "sku-1", Quantity: 2, Price: models.MustAmount("12.50")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "PENDING", order.Status)
	assert.True(t, order.TotalAmount.Equal(models.MustAmount("25.00")))

	require.NotNil(t, published)
	assert.Equal(t, order.ID, published.AggregateID)
	assert.Equal(t, "corr-42", published.CorrelationID)
	payload, err := events.Decode[events.OrderCreated](published)
	require.NoError(t, err)
	assert.Equal(t, order.ID, payload.OrderID)
	assert.Equal(t, "corr-42", payload.CorrelationID)
	require.Len(t, payload.Items, 1)
	assert.Equal(t, 2, payload.Items[0].Quantity)

	history, err := f.history.Execute(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].OldStatus)
	assert.Equal(t, "PENDING", history[0].NewStatus)
}

func TestCreateOrder_InvalidCommandPublishesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.create.Execute(context.Background(), &CreateOrderCommand{UserID: "user-1"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalid, apperrors.KindOf(err))
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestCreateOrder_PublishFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	f.publisher.EXPECT().Publish(mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	_, err := f.create.Execute(context.Background(), &CreateOrderCommand{
		UserID: "user-1",
		Items:  []CreateOrderItem{{ProductID: "sku-1", Quantity: 1, Price: models.MustAmount("1")}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")

	orders, err := f.repo.FindByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, orders, 1, "order stays persisted")
}

func TestUpdateOrderStatus_Execute(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t)
	ctx := context.Background()

	f.publisher.EXPECT().Publish(mock.Anything, topicIs(events.TopicOrderUpdated)).Return(nil).Once()
	updated, err := f.update.Execute(ctx, &UpdateOrderStatusCommand{OrderID: order.ID, Status: "PAID"})
	require.NoError(t, err)
	assert.Equal(t, "PAID", updated.Status)

	// same status: no event, no history
	_, err = f.update.Execute(ctx, &UpdateOrderStatusCommand{OrderID: order.ID, Status: "paid"})
	require.NoError(t, err)

	history, err := f.history.Execute(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "PENDING", *history[1].OldStatus)
	assert.Equal(t, "PAID", history[1].NewStatus)
	assert.True(t, history[1].ChangedAt.After(history[0].ChangedAt))
}

func TestUpdateOrderStatus_Errors(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t)

	tests := []struct {
		name string
		cmd  UpdateOrderStatusCommand
		kind apperrors.Kind
	}{
		{"unknown order", UpdateOrderStatusCommand{OrderID: models.GenerateUUID(), Status: "PAID"}, apperrors.KindNotFound},
		{"unknown status", UpdateOrderStatusCommand{OrderID: order.ID, Status: "LOST"}, apperrors.KindInvalid},
		{"missing id", UpdateOrderStatusCommand{Status: "PAID"}, apperrors.KindInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.update.Execute(context.Background(), &tt.cmd)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
		})
	}
}

func TestCancelOrder_Execute(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t)
	ctx := context.Background()

	var published *events.Event
	f.publisher.EXPECT().Publish(mock.Anything, topicIs(events.TopicOrderCancelled)).
		Run(func(_ context.Context, evts ...*events.Event) { published = evts[0] }).
		Return(nil).Once()

	cancelled, err := f.cancel.Execute(ctx, &CancelOrderCommand{OrderID: order.ID, Reason: "payment failed: declined"})
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", cancelled.Status)
	assert.Equal(t, "payment failed: declined", cancelled.CancelReason)

	payload, err := events.Decode[events.OrderCancelled](published)
	require.NoError(t, err)
	assert.Equal(t, "payment failed: declined", payload.Reason)
	assert.Equal(t, "user-1", payload.UserID)

	// second cancel is a no-op
	again, err := f.cancel.Execute(ctx, &CancelOrderCommand{OrderID: order.ID, Reason: "again"})
	require.NoError(t, err)
	assert.Equal(t, "payment failed: declined", again.CancelReason)

	history, err := f.history.Execute(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestCancelOrder_FulfilledOrderIsRejected(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t)
	ctx := context.Background()

	f.publisher.EXPECT().Publish(mock.Anything, topicIs(events.TopicOrderUpdated)).Return(nil).Once()
	_, err := f.update.Execute(ctx, &UpdateOrderStatusCommand{OrderID: order.ID, Status: "SHIPPED"})
	require.NoError(t, err)

	_, err = f.cancel.Execute(ctx, &CancelOrderCommand{OrderID: order.ID, Reason: "too late"})
	require.ErrorIs(t, err, domain.ErrCannotCancelFulfilled)

	stored, err := f.repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, stored.Status)
}

func TestListOrders_Execute(t *testing.T) {
	f := newFixture(t)
	first := f.placeOrder(t)
	f.placeOrder(t)
	list := NewListOrders(f.repo)
	ctx := context.Background()

	f.publisher.EXPECT().Publish(mock.Anything, topicIs(events.TopicOrderUpdated)).Return(nil).Once()
	_, err := f.update.Execute(ctx, &UpdateOrderStatusCommand{OrderID: first.ID, Status: "PAID"})
	require.NoError(t, err)

	byUser, err := list.Execute(ctx, ListOrdersQuery{UserID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	paid, err := list.Execute(ctx, ListOrdersQuery{Status: "PAID"})
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, first.ID, paid[0].ID)

	_, err = list.Execute(ctx, ListOrdersQuery{})
	assert.Equal(t, apperrors.KindInvalid, apperrors.KindOf(err))
}
