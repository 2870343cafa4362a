package domain

import "context"

// ChargeResult is the processor's answer. A decline is not an error.
type ChargeResult struct {
	Approved      bool
	TransactionID string
	DeclineReason string
}

// PaymentProcessor charges payments with an external provider. Errors are
// treated as transient and retried; the caller bounds each call with a
// timeout.
type PaymentProcessor interface {
	Charge(ctx context.Context, payment Payment) (ChargeResult, error)
}
