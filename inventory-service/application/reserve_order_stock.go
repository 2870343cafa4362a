package application

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/neocommercepay/commerce-system/inventory-service/domain"
	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/clock"
	"github.com/neocommercepay/commerce-system/shared/events"
	"github.com/neocommercepay/commerce-system/shared/models"
	"github.com/neocommercepay/commerce-system/shared/retry"
	"github.com/neocommercepay/commerce-system/shared/telemetry"
)

// ReserveOrderStockCommand is built from an OrderCreated event
type ReserveOrderStockCommand struct {
	OrderID models.ID
	EventID models.ID
	Items   []domain.ReservedItem
}

// ReserveOrderStockResult tells whether this call took the stock.
type ReserveOrderStockResult struct {
	Reserved  bool
	Duplicate bool
	Depleted  []string
}

// ReserveOrderStock decrements every line of an order in one unit of work
// and records the reservation in the same transaction. An order whose
// reservation already exists is skipped. If any line is short nothing is
// written.
type ReserveOrderStock struct {
	consumer            string
	inventoryRepository domain.InventoryRepository
	unitOfWork          domain.UnitOfWork
	retry               *retry.Executor
	eventPublisher      events.Publisher
	clock               clock.Clock
	logger              *slog.Logger
}

func NewReserveOrderStock(
	consumer string,
	inventoryRepository domain.InventoryRepository,
	unitOfWork domain.UnitOfWork,
	retryExecutor *retry.Executor,
	eventPublisher events.Publisher,
	clk clock.Clock,
	logger *slog.Logger,
) *ReserveOrderStock {
	return &ReserveOrderStock{
		consumer:            consumer,
		inventoryRepository: inventoryRepository,
		unitOfWork:          unitOfWork,
		retry:               retryExecutor,
		eventPublisher:      eventPublisher,
		clock:               clk,
		logger:              logger,
	}
}

func (uc *ReserveOrderStock) Execute(ctx context.Context, cmd *ReserveOrderStockCommand) (*ReserveOrderStockResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "ReserveOrderStock.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", cmd.OrderID.String()))

	now := uc.clock.Now()
	reservation, err := domain.NewStockReservation(uc.consumer, cmd.OrderID, cmd.EventID, cmd.Items, now)
	if err != nil {
		return nil, err
	}

	var alerts []domain.LowStock
	err = uc.retry.Execute(ctx, func(ctx context.Context) error {
		alerts = nil
		return uc.unitOfWork.WithTx(ctx, func(ctx context.Context) error {
			var err error
			alerts, err = uc.reserve(ctx, reservation)
			return err
		})
	})
	if errors.Is(err, domain.ErrReservationExists) {
		uc.logger.InfoContext(ctx, "order stock already reserved",
			slog.String("order_id", cmd.OrderID.String()),
			slog.String("event_id", cmd.EventID.String()))
		telemetry.RecordCounter(ctx, "inventory_duplicate_reservations_total", "Redelivered orders skipped", 1)
		return uc.resendAlerts(ctx, cmd.OrderID)
	}
	if err != nil {
		return nil, err
	}

	uc.logger.InfoContext(ctx, "order stock reserved",
		slog.String("order_id", cmd.OrderID.String()),
		slog.Int("lines", len(reservation.Items)),
		slog.Int("depleted", len(alerts)))

	if err := uc.publishAlerts(ctx, cmd.OrderID, alerts); err != nil {
		return nil, err
	}
	return &ReserveOrderStockResult{Reserved: true, Depleted: productIDs(alerts)}, nil
}

// reserve runs inside the unit of work. Every new value is computed before
// the first write so a short line leaves the store untouched. The low-stock
// alerts are stored on the reservation until they are published.
func (uc *ReserveOrderStock) reserve(ctx context.Context, reservation domain.StockReservation) ([]domain.LowStock, error) {
	if _, err := uc.inventoryRepository.FindReservationForUpdate(ctx, reservation.Consumer, reservation.OrderID); err == nil {
		return nil, apperrors.With(domain.ErrReservationExists, "order %s", reservation.OrderID)
	} else if !errors.Is(err, domain.ErrReservationMissing) {
		return nil, err
	}

	updated := make([]domain.Inventory, 0, len(reservation.Items))
	for _, item := range reservation.Items {
		inventory, err := uc.inventoryRepository.FindByProductIDForUpdate(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		next, err := inventory.Decrement(item.Quantity, reservation.CreatedAt)
		if err != nil {
			return nil, errors.Wrapf(err, "order %s", reservation.OrderID)
		}
		updated = append(updated, next)
	}

	var alerts []domain.LowStock
	for _, inventory := range updated {
		if err := uc.inventoryRepository.Update(ctx, inventory); err != nil {
			return nil, err
		}
		if inventory.IsLow() {
			alerts = append(alerts, inventory.LowStock())
		}
	}
	if err := uc.inventoryRepository.SaveReservation(ctx, reservation.Owe(alerts)); err != nil {
		return nil, err
	}
	return alerts, nil
}

// resendAlerts publishes the alerts a previous delivery committed but could
// not hand to the channel.
func (uc *ReserveOrderStock) resendAlerts(ctx context.Context, orderID models.ID) (*ReserveOrderStockResult, error) {
	reservation, err := uc.inventoryRepository.FindReservationForUpdate(ctx, uc.consumer, orderID)
	if err != nil {
		return nil, err
	}
	if len(reservation.PendingAlerts) == 0 {
		return &ReserveOrderStockResult{Duplicate: true}, nil
	}

	uc.logger.WarnContext(ctx, "republishing low stock alerts",
		slog.String("order_id", orderID.String()),
		slog.Int("alerts", len(reservation.PendingAlerts)))
	if err := uc.publishAlerts(ctx, orderID, reservation.PendingAlerts); err != nil {
		return nil, err
	}
	return &ReserveOrderStockResult{Duplicate: true, Depleted: productIDs(reservation.PendingAlerts)}, nil
}

// publishAlerts hands the alerts to the channel and then clears them from the
// reservation. A failed publish keeps them for the redelivery. A failed clear
// only means a redelivery publishes them twice.
func (uc *ReserveOrderStock) publishAlerts(ctx context.Context, orderID models.ID, alerts []domain.LowStock) error {
	if len(alerts) == 0 {
		return nil
	}
	now := uc.clock.Now()
	if err := announceDepleted(ctx, uc.eventPublisher, alerts, now); err != nil {
		return err
	}

	err := uc.retry.Execute(ctx, func(ctx context.Context) error {
		return uc.unitOfWork.WithTx(ctx, func(ctx context.Context) error {
			reservation, err := uc.inventoryRepository.FindReservationForUpdate(ctx, uc.consumer, orderID)
			if err != nil {
				return err
			}
			return uc.inventoryRepository.UpdateReservation(ctx, reservation.AlertsSent(now))
		})
	})
	if err != nil {
		uc.logger.WarnContext(ctx, "low stock alerts published but not cleared",
			slog.String("order_id", orderID.String()),
			slog.String("error", err.Error()))
	}
	return nil
}

func productIDs(alerts []domain.LowStock) []string {
	if len(alerts) == 0 {
		return nil
	}
	ids := make([]string, len(alerts))
	for i, alert := range alerts {
		ids[i] = alert.ProductID
	}
	return ids
}
