package application

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/neocommercepay/commerce-system/payments-service/domain"
	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/clock"
	"github.com/neocommercepay/commerce-system/shared/events"
	"github.com/neocommercepay/commerce-system/shared/models"
	"github.com/neocommercepay/commerce-system/shared/telemetry"
)

// RefundPaymentCommand represents the command to refund a payment
type RefundPaymentCommand struct {
	PaymentID models.ID `json:"paymentId"`
	Reason    string    `json:"reason"`
}

// RefundPayment refunds a COMPLETED payment in full and records a REFUND
// ledger entry with a new transaction id.
type RefundPayment struct {
	paymentRepository domain.PaymentRepository
	unitOfWork        domain.UnitOfWork
	eventPublisher    events.Publisher
	clock             clock.Clock
	logger            *slog.Logger
}

func NewRefundPayment(
	paymentRepository domain.PaymentRepository,
	unitOfWork domain.UnitOfWork,
	eventPublisher events.Publisher,
	clk clock.Clock,
	logger *slog.Logger,
) *RefundPayment {
	return &RefundPayment{
		paymentRepository: paymentRepository,
		unitOfWork:        unitOfWork,
		eventPublisher:    eventPublisher,
		clock:             clk,
		logger:            logger,
	}
}

func (uc *RefundPayment) Execute(ctx context.Context, cmd *RefundPaymentCommand) (*PaymentResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "RefundPayment.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", cmd.PaymentID.String()))

	if cmd.Reason == "" {
		return nil, apperrors.With(domain.ErrInvalidPayment, "reason is required")
	}

	var refunded domain.Payment
	now := uc.clock.Now()
	err := uc.unitOfWork.WithTx(ctx, func(ctx context.Context) error {
		payment, err := uc.paymentRepository.FindByIDForUpdate(ctx, cmd.PaymentID)
		if err != nil {
			return err
		}
		if refunded, err = payment.Refund(now); err != nil {
			return err
		}
		if err := uc.paymentRepository.Update(ctx, refunded); err != nil {
			return err
		}
		refund := domain.NewTransaction(refunded, domain.TransactionTypeRefund, "REF-"+models.GenerateUUID().String(), now)
		if err := uc.paymentRepository.SaveTransaction(ctx, refund); err != nil {
			return errors.Wrap(err, "failed to record refund")
		}
		audit := domain.NewAuditLog(refunded.ID, domain.AuditPaymentRefunded, cmd.Reason, now)
		return errors.Wrap(uc.paymentRepository.AppendAudit(ctx, audit), "failed to append audit log")
	})
	if err != nil {
		return nil, err
	}

	if err := announce(ctx, uc.eventPublisher, refunded, cmd.Reason, now); err != nil {
		return nil, err
	}

	telemetry.RecordCounter(ctx, "payments_refunded_total", "Payments refunded", 1)
	uc.logger.InfoContext(ctx, "payment refunded",
		slog.String("payment_id", refunded.ID.String()),
		slog.String("reason", cmd.Reason))

	return toPaymentResponse(refunded), nil
}
