package application

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/neocommercepay/commerce-system/payments-service/domain"
	"github.com/neocommercepay/commerce-system/shared/models"
	"github.com/neocommercepay/commerce-system/shared/retry"
	"github.com/neocommercepay/commerce-system/shared/telemetry"
)

const idempotencyNamespace = "payment-idempotency"

// IdempotencyKeyFor derives the initiation key of an order's payment. The
// key only depends on the order id, so every delivery of the same
// OrderCreated maps to the same key.
func IdempotencyKeyFor(orderID models.ID) string {
	return models.DeriveID(idempotencyNamespace, orderID.String()).String()
}

// PayForOrderCommand is built from an OrderCreated event
type PayForOrderCommand struct {
	OrderID models.ID
	Amount  decimal.Decimal
}

// PayForOrder is the payment service's reaction to a new order: initiate the
// payment, then process it. A redelivered order picks up where the last
// delivery stopped: an INITIATED or PROCESSING payment is driven to its
// outcome and a settled one has its outcome published again. The processor
// is never asked twice for a payment that already settled.
type PayForOrder struct {
	paymentRepository domain.PaymentRepository
	initiatePayment   *InitiatePayment
	processPayment    *ProcessPayment
	retry             *retry.Executor
	logger            *slog.Logger
}

func NewPayForOrder(
	paymentRepository domain.PaymentRepository,
	initiatePayment *InitiatePayment,
	processPayment *ProcessPayment,
	retryExecutor *retry.Executor,
	logger *slog.Logger,
) *PayForOrder {
	return &PayForOrder{
		paymentRepository: paymentRepository,
		initiatePayment:   initiatePayment,
		processPayment:    processPayment,
		retry:             retryExecutor,
		logger:            logger,
	}
}

func (uc *PayForOrder) Execute(ctx context.Context, cmd *PayForOrderCommand) (*PaymentResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "PayForOrder.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", cmd.OrderID.String()))

	return retry.Do(ctx, uc.retry, func(ctx context.Context) (*PaymentResponse, error) {
		return uc.pay(ctx, cmd)
	})
}

func (uc *PayForOrder) pay(ctx context.Context, cmd *PayForOrderCommand) (*PaymentResponse, error) {
	initiated, err := uc.initiatePayment.Execute(ctx, &InitiatePaymentCommand{
		OrderID:        cmd.OrderID,
		Amount:         cmd.Amount,
		IdempotencyKey: IdempotencyKeyFor(cmd.OrderID),
	})
	if err == nil {
		processed, err := uc.processPayment.Execute(ctx, &ProcessPaymentCommand{PaymentID: initiated.ID})
		return uc.settled(ctx, initiated.ID, processed, err)
	}
	if !errors.Is(err, domain.ErrDuplicatePayment) {
		return nil, err
	}

	existing, err := uc.paymentRepository.FindByOrderID(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	switch existing.Status {
	case domain.PaymentStatusInitiated:
		processed, err := uc.processPayment.Execute(ctx, &ProcessPaymentCommand{PaymentID: existing.ID})
		return uc.settled(ctx, existing.ID, processed, err)
	case domain.PaymentStatusProcessing:
		resumed, err := uc.processPayment.Resume(ctx, existing.ID)
		return uc.settled(ctx, existing.ID, resumed, err)
	case domain.PaymentStatusCompleted, domain.PaymentStatusFailed:
		// the outcome may never have reached the channel; the order's
		// reactions to it are idempotent
		if err := uc.processPayment.Reannounce(ctx, existing); err != nil {
			return nil, err
		}
		uc.logger.InfoContext(ctx, "payment already settled, outcome announced again",
			slog.String("order_id", cmd.OrderID.String()),
			slog.String("payment_id", existing.ID.String()),
			slog.String("status", string(existing.Status)))
		return toPaymentResponse(existing), nil
	default:
		uc.logger.InfoContext(ctx, "order already has a payment",
			slog.String("order_id", cmd.OrderID.String()),
			slog.String("payment_id", existing.ID.String()),
			slog.String("status", string(existing.Status)))
		return toPaymentResponse(existing), nil
	}
}

// settled turns a lost race into the current state of the payment: a
// concurrent delivery moved it first and announces the outcome itself.
func (uc *PayForOrder) settled(ctx context.Context, paymentID models.ID, processed *PaymentResponse, err error) (*PaymentResponse, error) {
	if !errors.Is(err, domain.ErrInvalidTransition) {
		return processed, err
	}
	current, findErr := uc.paymentRepository.FindByID(ctx, paymentID)
	if findErr != nil {
		return nil, findErr
	}
	return toPaymentResponse(current), nil
}
