package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/models"
)

// PaymentStatus represents the status of a payment
type PaymentStatus string

const (
	PaymentStatusInitiated  PaymentStatus = "INITIATED"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

// Failure reasons recorded on FAILED payments and sent in PaymentFailed.
const (
	ReasonDeclined    = "Payment processor declined"
	ReasonUnavailable = "payment processor unavailable"
)

var (
	ErrPaymentNotFound   = apperrors.New(apperrors.KindNotFound, "payment_not_found", "payment not found")
	ErrDuplicatePayment  = apperrors.New(apperrors.KindBusinessRule, "duplicate_payment", "payment already exists")
	ErrInvalidTransition = apperrors.New(apperrors.KindBusinessRule, "invalid_payment_status", "invalid payment status transition")
	ErrRefundNotAllowed  = apperrors.New(apperrors.KindBusinessRule, "refund_not_allowed", "only completed payments can be refunded")
	ErrInvalidPayment    = apperrors.New(apperrors.KindInvalid, "invalid_payment", "invalid payment")
)

// Payment is a value: every transition returns a new Payment.
//
//	INITIATED -> PROCESSING -> COMPLETED -> REFUNDED
//	                        \-> FAILED
type Payment struct {
	ID             models.ID
	OrderID        models.ID
	Amount         decimal.Decimal
	Status         PaymentStatus
	TransactionID  string
	IdempotencyKey string
	FailureReason  string
	models.Timestamps
	Version models.Version
}

// NewPayment creates an INITIATED payment.
func NewPayment(orderID models.ID, amount decimal.Decimal, idempotencyKey string, now time.Time) (Payment, error) {
	switch {
	case orderID.IsZero():
		return Payment{}, apperrors.With(ErrInvalidPayment, "order id is required")
	case !amount.IsPositive():
		return Payment{}, apperrors.With(ErrInvalidPayment, "amount must be positive")
	case idempotencyKey == "":
		return Payment{}, apperrors.With(ErrInvalidPayment, "idempotency key is required")
	}
	return Payment{
		ID:             models.GenerateUUID(),
		OrderID:        orderID,
		Amount:         amount,
		Status:         PaymentStatusInitiated,
		IdempotencyKey: idempotencyKey,
		Timestamps:     models.NewTimestamps(now),
		Version:        models.NewVersion(),
	}, nil
}

// StartProcessing moves an INITIATED payment to PROCESSING.
func (p Payment) StartProcessing(now time.Time) (Payment, error) {
	if p.Status != PaymentStatusInitiated {
		return p, apperrors.With(ErrInvalidTransition, "cannot process payment in status %s", p.Status)
	}
	return p.moveTo(PaymentStatusProcessing, now), nil
}

// Complete records the processor's transaction id on a PROCESSING payment.
func (p Payment) Complete(transactionID string, now time.Time) (Payment, error) {
	if p.Status != PaymentStatusProcessing {
		return p, apperrors.With(ErrInvalidTransition, "cannot complete payment in status %s", p.Status)
	}
	next := p.moveTo(PaymentStatusCompleted, now)
	next.TransactionID = transactionID
	return next, nil
}

// Fail moves a PROCESSING payment to FAILED.
func (p Payment) Fail(reason string, now time.Time) (Payment, error) {
	if p.Status != PaymentStatusProcessing {
		return p, apperrors.With(ErrInvalidTransition, "cannot fail payment in status %s", p.Status)
	}
	next := p.moveTo(PaymentStatusFailed, now)
	next.FailureReason = reason
	return next, nil
}

// Refund moves a COMPLETED payment to REFUNDED.
func (p Payment) Refund(now time.Time) (Payment, error) {
	if p.Status != PaymentStatusCompleted {
		return p, apperrors.With(ErrRefundNotAllowed, "payment %s is %s", p.ID, p.Status)
	}
	return p.moveTo(PaymentStatusRefunded, now), nil
}

func (p Payment) moveTo(status PaymentStatus, now time.Time) Payment {
	p.Status = status
	p.Timestamps = p.Timestamps.Touch(now)
	p.Version = p.Version.Next()
	return p
}

// PaymentRepository persists payments with their ledger and audit trail.
// OrderID and IdempotencyKey are unique: Save reports a clash as
// ErrDuplicatePayment.
type PaymentRepository interface {
	Save(ctx context.Context, payment Payment) error
	// Update fails with a transient conflict when payment.Version is not the
	// successor of the stored version.
	Update(ctx context.Context, payment Payment) error
	FindByID(ctx context.Context, id models.ID) (Payment, error)
	FindByIDForUpdate(ctx context.Context, id models.ID) (Payment, error)
	FindByOrderID(ctx context.Context, orderID models.ID) (Payment, error)
	ExistsByIdempotencyKey(ctx context.Context, key string) (bool, error)
	SaveTransaction(ctx context.Context, tx Transaction) error
	Transactions(ctx context.Context, paymentID models.ID) ([]Transaction, error)
	AppendAudit(ctx context.Context, entry AuditLog) error
	AuditLog(ctx context.Context, paymentID models.ID) ([]AuditLog, error)
}

// UnitOfWork runs fn atomically.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
