package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/neocommercepay/commerce-system/shared/models"
)

// TransactionType classifies ledger entries
type TransactionType string

const (
	TransactionTypeCharge        TransactionType = "CHARGE"
	TransactionTypeRefund        TransactionType = "REFUND"
	TransactionTypeAuthorization TransactionType = "AUTHORIZATION"
	TransactionTypeCapture       TransactionType = "CAPTURE"
)

// Transaction is an immutable money movement recorded against a payment.
type Transaction struct {
	ID                    models.ID
	PaymentID             models.ID
	Type                  TransactionType
	Amount                decimal.Decimal
	ExternalTransactionID string
	CreatedAt             time.Time
}

func NewTransaction(payment Payment, txType TransactionType, externalID string, now time.Time) Transaction {
	return Transaction{
		ID:                    models.GenerateUUID(),
		PaymentID:             payment.ID,
		Type:                  txType,
		Amount:                payment.Amount,
		ExternalTransactionID: externalID,
		CreatedAt:             now,
	}
}

// AuditAction names an audited step
type AuditAction string

const (
	AuditPaymentInitiated  AuditAction = "PAYMENT_INITIATED"
	AuditPaymentProcessing AuditAction = "PAYMENT_PROCESSING"
	AuditPaymentCompleted  AuditAction = "PAYMENT_COMPLETED"
	AuditPaymentFailed     AuditAction = "PAYMENT_FAILED"
	AuditPaymentRefunded   AuditAction = "PAYMENT_REFUNDED"
)

// AuditLog is an append-only record of what happened to a payment.
type AuditLog struct {
	ID        models.ID
	PaymentID models.ID
	Action    AuditAction
	Details   string
	CreatedAt time.Time
}

func NewAuditLog(paymentID models.ID, action AuditAction, details string, now time.Time) AuditLog {
	return AuditLog{
		ID:        models.GenerateUUID(),
		PaymentID: paymentID,
		Action:    action,
		Details:   details,
		CreatedAt: now,
	}
}
