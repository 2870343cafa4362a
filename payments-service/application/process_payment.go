package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/neocommercepay/commerce-system/payments-service/domain"
	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/clock"
	"github.com/neocommercepay/commerce-system/shared/events"
	"github.com/neocommercepay/commerce-system/shared/models"
	"github.com/neocommercepay/commerce-system/shared/retry"
	"github.com/neocommercepay/commerce-system/shared/telemetry"
)

// ProcessPaymentCommand represents the command to charge an initiated payment
type ProcessPaymentCommand struct {
	PaymentID models.ID `json:"paymentId"`
}

// ProcessPayment charges an INITIATED payment.
//
// PROCESSING is committed before the processor is called, and the call itself
// runs outside any transaction with a per-attempt timeout. The outcome is
// written in a second unit of work: approved payments complete, declined
// ones fail with ReasonDeclined, and a processor that keeps erroring until
// the retry budget is spent fails the payment with ReasonUnavailable.
type ProcessPayment struct {
	paymentRepository domain.PaymentRepository
	unitOfWork        domain.UnitOfWork
	processor         domain.PaymentProcessor
	retry             *retry.Executor
	timeout           time.Duration
	eventPublisher    events.Publisher
	clock             clock.Clock
	logger            *slog.Logger
}

func NewProcessPayment(
	paymentRepository domain.PaymentRepository,
	unitOfWork domain.UnitOfWork,
	processor domain.PaymentProcessor,
	retryExecutor *retry.Executor,
	timeout time.Duration,
	eventPublisher events.Publisher,
	clk clock.Clock,
	logger *slog.Logger,
) *ProcessPayment {
	return &ProcessPayment{
		paymentRepository: paymentRepository,
		unitOfWork:        unitOfWork,
		processor:         processor,
		retry:             retryExecutor,
		timeout:           timeout,
		eventPublisher:    eventPublisher,
		clock:             clk,
		logger:            logger,
	}
}

func (uc *ProcessPayment) Execute(ctx context.Context, cmd *ProcessPaymentCommand) (*PaymentResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "ProcessPayment.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", cmd.PaymentID.String()))

	processing, err := uc.startProcessing(ctx, cmd.PaymentID)
	if err != nil {
		return nil, err
	}
	return uc.run(ctx, processing)
}

// Resume finishes a payment a previous attempt left PROCESSING, for instance
// because PaymentProcessing could not be published after the commit. The
// processor receives the payment's idempotency key again.
func (uc *ProcessPayment) Resume(ctx context.Context, paymentID models.ID) (*PaymentResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "ProcessPayment.Resume")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", paymentID.String()))

	payment, err := uc.paymentRepository.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != domain.PaymentStatusProcessing {
		return nil, apperrors.With(domain.ErrInvalidTransition, "cannot resume payment in status %s", payment.Status)
	}
	uc.logger.WarnContext(ctx, "resuming payment left in processing",
		slog.String("payment_id", payment.ID.String()),
		slog.String("order_id", payment.OrderID.String()))
	return uc.run(ctx, payment)
}

// Reannounce publishes the outcome event of a settled payment again.
func (uc *ProcessPayment) Reannounce(ctx context.Context, payment domain.Payment) error {
	if payment.Status != domain.PaymentStatusCompleted && payment.Status != domain.PaymentStatusFailed {
		return apperrors.With(domain.ErrInvalidTransition, "payment in status %s has no outcome", payment.Status)
	}
	return announce(ctx, uc.eventPublisher, payment, "", payment.UpdatedAt)
}

func (uc *ProcessPayment) run(ctx context.Context, processing domain.Payment) (*PaymentResponse, error) {
	if err := announce(ctx, uc.eventPublisher, processing, "", processing.UpdatedAt); err != nil {
		return nil, err
	}

	result, chargeErr := uc.charge(ctx, processing)
	if chargeErr != nil && ctx.Err() != nil {
		// shutting down: the payment stays PROCESSING
		return nil, chargeErr
	}

	settled, err := uc.settle(ctx, processing.ID, result, chargeErr)
	if err != nil {
		return nil, err
	}
	if err := announce(ctx, uc.eventPublisher, settled, "", settled.UpdatedAt); err != nil {
		return nil, err
	}

	telemetry.RecordCounter(ctx, "payments_processed_total", "Payments settled by the processor", 1,
		attribute.String("status", string(settled.Status)))
	uc.logger.InfoContext(ctx, "payment processed",
		slog.String("payment_id", settled.ID.String()),
		slog.String("order_id", settled.OrderID.String()),
		slog.String("status", string(settled.Status)),
		slog.String("failure_reason", settled.FailureReason))

	return toPaymentResponse(settled), nil
}

func (uc *ProcessPayment) startProcessing(ctx context.Context, paymentID models.ID) (domain.Payment, error) {
	var processing domain.Payment
	err := uc.unitOfWork.WithTx(ctx, func(ctx context.Context) error {
		payment, err := uc.paymentRepository.FindByIDForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		now := uc.clock.Now()
		if processing, err = payment.StartProcessing(now); err != nil {
			return err
		}
		if err := uc.paymentRepository.Update(ctx, processing); err != nil {
			return err
		}
		audit := domain.NewAuditLog(payment.ID, domain.AuditPaymentProcessing, "sent to processor", now)
		return errors.Wrap(uc.paymentRepository.AppendAudit(ctx, audit), "failed to append audit log")
	})
	return processing, err
}

// charge calls the processor through the retry executor. Every processor
// error counts as transient.
func (uc *ProcessPayment) charge(ctx context.Context, payment domain.Payment) (domain.ChargeResult, error) {
	start := time.Now()
	defer func() {
		telemetry.RecordHistogram(ctx, "payment_processor_duration_seconds", "Processor call duration including retries",
			time.Since(start).Seconds())
	}()

	return retry.Do(ctx, uc.retry, func(ctx context.Context) (domain.ChargeResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, uc.timeout)
		defer cancel()

		result, err := uc.processor.Charge(callCtx, payment)
		if err != nil {
			return result, apperrors.Transient(err, "payment processor")
		}
		return result, nil
	})
}

func (uc *ProcessPayment) settle(ctx context.Context, paymentID models.ID, result domain.ChargeResult, chargeErr error) (domain.Payment, error) {
	var settled domain.Payment
	err := uc.unitOfWork.WithTx(ctx, func(ctx context.Context) error {
		payment, err := uc.paymentRepository.FindByIDForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}

		now := uc.clock.Now()
		var audit domain.AuditLog
		switch {
		case chargeErr != nil:
			settled, err = payment.Fail(domain.ReasonUnavailable, now)
			audit = domain.NewAuditLog(payment.ID, domain.AuditPaymentFailed, chargeErr.Error(), now)
		case result.Approved:
			settled, err = payment.Complete(result.TransactionID, now)
			audit = domain.NewAuditLog(payment.ID, domain.AuditPaymentCompleted, "transaction "+result.TransactionID, now)
		default:
			settled, err = payment.Fail(domain.ReasonDeclined, now)
			audit = domain.NewAuditLog(payment.ID, domain.AuditPaymentFailed, result.DeclineReason, now)
		}
		if err != nil {
			return err
		}

		if err := uc.paymentRepository.Update(ctx, settled); err != nil {
			return err
		}
		if settled.Status == domain.PaymentStatusCompleted {
			charge := domain.NewTransaction(settled, domain.TransactionTypeCharge, result.TransactionID, now)
			if err := uc.paymentRepository.SaveTransaction(ctx, charge); err != nil {
				return errors.Wrap(err, "failed to record charge")
			}
		}
		return errors.Wrap(uc.paymentRepository.AppendAudit(ctx, audit), "failed to append audit log")
	})
	return settled, err
}
