package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/neocommercepay/commerce-system/orders-service/domain"
	"github.com/neocommercepay/commerce-system/shared/clock"
	"github.com/neocommercepay/commerce-system/shared/correlation"
	"github.com/neocommercepay/commerce-system/shared/events"
	"github.com/neocommercepay/commerce-system/shared/telemetry"
)

// CreateOrderItem is one requested line.
type CreateOrderItem struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// CreateOrderCommand represents the command to place an order
type CreateOrderCommand struct {
	UserID string            `json:"userId"`
	Items  []CreateOrderItem `json:"items"`
}

// CreateOrder places an order and announces it with OrderCreated, which
// starts the payment and inventory reactions.
type CreateOrder struct {
	orderRepository domain.OrderRepository
	unitOfWork      domain.UnitOfWork
	eventPublisher  events.Publisher
	clock           clock.Clock
	logger          *slog.Logger
}

func NewCreateOrder(
	orderRepository domain.OrderRepository,
	unitOfWork domain.UnitOfWork,
	eventPublisher events.Publisher,
	clk clock.Clock,
	logger *slog.Logger,
) *CreateOrder {
	return &CreateOrder{
		orderRepository: orderRepository,
		unitOfWork:      unitOfWork,
		eventPublisher:  eventPublisher,
		clock:           clk,
		logger:          logger,
	}
}

// Execute persists the order with its first history entry, then publishes.
// A publish failure is returned; the order stays persisted.
func (uc *CreateOrder) Execute(ctx context.Context, cmd *CreateOrderCommand) (*OrderResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "CreateOrder.Execute")
	defer span.End()

	items := make([]domain.OrderItem, len(cmd.Items))
	for i, item := range cmd.Items {
		items[i] = domain.OrderItem{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price}
	}

	now := uc.clock.Now()
	order, history, err := domain.NewOrder(cmd.UserID, items, now)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", order.ID.String()))

	err = uc.unitOfWork.WithTx(ctx, func(ctx context.Context) error {
		if err := uc.orderRepository.Save(ctx, order); err != nil {
			return errors.Wrap(err, "failed to save order")
		}
		return errors.Wrap(uc.orderRepository.AppendHistory(ctx, history), "failed to append history")
	})
	if err != nil {
		return nil, err
	}

	ctx, correlationID := correlation.Ensure(ctx)
	event := events.NewEvent(order.ID, events.TopicOrderCreated, orderCreatedPayload(order, correlationID, now), now).
		WithCorrelationID(correlationID)
	if err := uc.eventPublisher.Publish(ctx, event); err != nil {
		return nil, errors.Wrap(err, "order persisted but OrderCreated was not published")
	}

	telemetry.RecordCounter(ctx, "orders_created_total", "Orders placed", 1)
	uc.logger.InfoContext(ctx, "order created",
		slog.String("order_id", order.ID.String()),
		slog.String("total", order.TotalAmount.StringFixed(2)))

	return toOrderResponse(order), nil
}

func orderCreatedPayload(order domain.Order, correlationID string, now time.Time) events.OrderCreated {
	items := make([]events.OrderItem, len(order.Items))
	for i, item := range order.Items {
		items[i] = events.OrderItem{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price}
	}
	return events.OrderCreated{
		OrderID:       order.ID,
		UserID:        order.UserID,
		TotalAmount:   order.TotalAmount,
		Status:        string(order.Status),
		Items:         items,
		Timestamp:     now,
		CorrelationID: correlationID,
	}
}
