package application

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/neocommercepay/commerce-system/payments-service/domain"
	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/clock"
	"github.com/neocommercepay/commerce-system/shared/events"
	"github.com/neocommercepay/commerce-system/shared/idempotency"
	"github.com/neocommercepay/commerce-system/shared/models"
	"github.com/neocommercepay/commerce-system/shared/telemetry"
)

// InitiatePaymentCommand represents the command to open a payment for an order
type InitiatePaymentCommand struct {
	OrderID        models.ID       `json:"orderId"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

// InitiatePayment creates an INITIATED payment once per idempotency key.
type InitiatePayment struct {
	paymentRepository domain.PaymentRepository
	unitOfWork        domain.UnitOfWork
	guard             *idempotency.Guard
	eventPublisher    events.Publisher
	clock             clock.Clock
	logger            *slog.Logger
}

func NewInitiatePayment(
	paymentRepository domain.PaymentRepository,
	unitOfWork domain.UnitOfWork,
	guard *idempotency.Guard,
	eventPublisher events.Publisher,
	clk clock.Clock,
	logger *slog.Logger,
) *InitiatePayment {
	return &InitiatePayment{
		paymentRepository: paymentRepository,
		unitOfWork:        unitOfWork,
		guard:             guard,
		eventPublisher:    eventPublisher,
		clock:             clk,
		logger:            logger,
	}
}

// Execute returns an error matching domain.ErrDuplicatePayment when the key
// or the order already has a payment; nothing is written in that case.
func (uc *InitiatePayment) Execute(ctx context.Context, cmd *InitiatePaymentCommand) (*PaymentResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "InitiatePayment.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", cmd.OrderID.String()))

	now := uc.clock.Now()
	payment, err := domain.NewPayment(cmd.OrderID, cmd.Amount, cmd.IdempotencyKey, now)
	if err != nil {
		return nil, err
	}

	decision, err := uc.guard.Admit(ctx, cmd.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if decision == idempotency.Duplicate {
		uc.logger.InfoContext(ctx, "duplicate payment initiation",
			slog.String("order_id", cmd.OrderID.String()),
			slog.String("idempotency_key", cmd.IdempotencyKey))
		return nil, apperrors.With(domain.ErrDuplicatePayment, "idempotency key %s", cmd.IdempotencyKey)
	}

	err = uc.unitOfWork.WithTx(ctx, func(ctx context.Context) error {
		if err := uc.paymentRepository.Save(ctx, payment); err != nil {
			return err
		}
		audit := domain.NewAuditLog(payment.ID, domain.AuditPaymentInitiated, "amount "+payment.Amount.StringFixed(2), now)
		return errors.Wrap(uc.paymentRepository.AppendAudit(ctx, audit), "failed to append audit log")
	})
	if err != nil {
		return nil, err
	}
	uc.guard.Remember(ctx, cmd.IdempotencyKey)

	if err := announce(ctx, uc.eventPublisher, payment, "", now); err != nil {
		return nil, err
	}

	telemetry.RecordCounter(ctx, "payments_initiated_total", "Payments initiated", 1)
	uc.logger.InfoContext(ctx, "payment initiated",
		slog.String("payment_id", payment.ID.String()),
		slog.String("order_id", payment.OrderID.String()))

	return toPaymentResponse(payment), nil
}
