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

// UpdateOrderStatusCommand represents the command to move an order to a new status
type UpdateOrderStatusCommand struct {
	OrderID models.ID `json:"orderId"`
	Status  string    `json:"status"`
}

// UpdateOrderStatus changes an order's status. Any status may follow any
// other; moving to the current status changes nothing and publishes nothing.
type UpdateOrderStatus struct {
	orderRepository domain.OrderRepository
	unitOfWork      domain.UnitOfWork
	eventPublisher  events.Publisher
	clock           clock.Clock
	logger          *slog.Logger
}

func NewUpdateOrderStatus(
	orderRepository domain.OrderRepository,
	unitOfWork domain.UnitOfWork,
	eventPublisher events.Publisher,
	clk clock.Clock,
	logger *slog.Logger,
) *UpdateOrderStatus {
	return &UpdateOrderStatus{
		orderRepository: orderRepository,
		unitOfWork:      unitOfWork,
		eventPublisher:  eventPublisher,
		clock:           clk,
		logger:          logger,
	}
}

func (uc *UpdateOrderStatus) Execute(ctx context.Context, cmd *UpdateOrderStatusCommand) (*OrderResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "UpdateOrderStatus.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", cmd.OrderID.String()))

	if cmd.OrderID.IsZero() {
		return nil, apperrors.With(domain.ErrInvalidOrder, "order id is required")
	}
	status, err := domain.ParseOrderStatus(cmd.Status)
	if err != nil {
		return nil, err
	}

	var (
		updated domain.Order
		entry   *domain.StatusHistory
	)
	now := uc.clock.Now()
	err = uc.unitOfWork.WithTx(ctx, func(ctx context.Context) error {
		order, err := uc.orderRepository.FindByIDForUpdate(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		updated, entry = order.TransitionTo(status, now)
		if entry == nil {
			return nil
		}
		if err := uc.orderRepository.Update(ctx, updated); err != nil {
			return errors.Wrap(err, "failed to update order")
		}
		return errors.Wrap(uc.orderRepository.AppendHistory(ctx, *entry), "failed to append history")
	})
	if err != nil {
		return nil, err
	}
	if entry == nil {
		uc.logger.DebugContext(ctx, "order already in requested status",
			slog.String("order_id", cmd.OrderID.String()),
			slog.String("status", string(status)))
		return toOrderResponse(updated), nil
	}

	ctx, correlationID := correlation.Ensure(ctx)
	event := events.NewEvent(updated.ID, events.TopicOrderUpdated, events.OrderUpdated{
		OrderID:       updated.ID,
		OldStatus:     string(*entry.OldStatus),
		NewStatus:     string(entry.NewStatus),
		Timestamp:     now,
		CorrelationID: correlationID,
	}, now).WithCorrelationID(correlationID)
	if err := uc.eventPublisher.Publish(ctx, event); err != nil {
		return nil, errors.Wrap(err, "order updated but OrderUpdated was not published")
	}

	telemetry.RecordCounter(ctx, "order_status_changes_total", "Order status transitions", 1,
		attribute.String("status", string(status)))
	uc.logger.InfoContext(ctx, "order status updated",
		slog.String("order_id", updated.ID.String()),
		slog.String("old_status", string(*entry.OldStatus)),
		slog.String("new_status", string(entry.NewStatus)))

	return toOrderResponse(updated), nil
}
