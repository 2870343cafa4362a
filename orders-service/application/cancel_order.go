package application

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/neocommercepay/commerce-system/orders-service/domain"
	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/clock"
	"github.com/neocommercepay/commerce-system/shared/correlation"
	"github.com/neocommercepay/commerce-system/shared/events"
	"github.com/neocommercepay/commerce-system/shared/models"
	"github.com/neocommercepay/commerce-system/shared/telemetry"
)

// CancelOrderCommand represents the command to cancel an order
type CancelOrderCommand struct {
	OrderID models.ID `json:"orderId"`
	Reason  string    `json:"reason"`
}

// CancelOrder cancels an order that has not been shipped. Cancelling a
// cancelled order is a no-op.
type CancelOrder struct {
	orderRepository domain.OrderRepository
	unitOfWork      domain.UnitOfWork
	eventPublisher  events.Publisher
	clock           clock.Clock
	logger          *slog.Logger
}

func NewCancelOrder(
	orderRepository domain.OrderRepository,
	unitOfWork domain.UnitOfWork,
	eventPublisher events.Publisher,
	clk clock.Clock,
	logger *slog.Logger,
) *CancelOrder {
	return &CancelOrder{
		orderRepository: orderRepository,
		unitOfWork:      unitOfWork,
		eventPublisher:  eventPublisher,
		clock:           clk,
		logger:          logger,
	}
}

func (uc *CancelOrder) Execute(ctx context.Context, cmd *CancelOrderCommand) (*OrderResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "CancelOrder.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", cmd.OrderID.String()))

	if cmd.OrderID.IsZero() {
		return nil, apperrors.With(domain.ErrInvalidOrder, "order id is required")
	}

	var (
		cancelled domain.Order
		entry     *domain.StatusHistory
	)
	now := uc.clock.Now()
	err := uc.unitOfWork.WithTx(ctx, func(ctx context.Context) error {
		order, err := uc.orderRepository.FindByIDForUpdate(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		cancelled, entry, err = order.Cancel(cmd.Reason, now)
		if err != nil || entry == nil {
			return err
		}
		if err := uc.orderRepository.Update(ctx, cancelled); err != nil {
			return errors.Wrap(err, "failed to update order")
		}
		return errors.Wrap(uc.orderRepository.AppendHistory(ctx, *entry), "failed to append history")
	})
	if err != nil {
		return nil, err
	}
	if entry == nil {
		uc.logger.DebugContext(ctx, "order already cancelled", slog.String("order_id", cmd.OrderID.String()))
		return toOrderResponse(cancelled), nil
	}

	ctx, correlationID := correlation.Ensure(ctx)
	event := events.NewEvent(cancelled.ID, events.TopicOrderCancelled, events.OrderCancelled{
		OrderID:       cancelled.ID,
		UserID:        cancelled.UserID,
		Reason:        cmd.Reason,
		Timestamp:     now,
		CorrelationID: correlationID,
	}, now).WithCorrelationID(correlationID)
	if err := uc.eventPublisher.Publish(ctx, event); err != nil {
		return nil, errors.Wrap(err, "order cancelled but OrderCancelled was not published")
	}

	telemetry.RecordCounter(ctx, "orders_cancelled_total", "Orders cancelled", 1)
	uc.logger.InfoContext(ctx, "order cancelled",
		slog.String("order_id", cancelled.ID.String()),
		slog.String("reason", cmd.Reason))

	return toOrderResponse(cancelled), nil
}
