package application

import (
	"context"

	"github.com/neocommercepay/commerce-system/payments-service/domain"
	"github.com/neocommercepay/commerce-system/shared/models"
	"github.com/neocommercepay/commerce-system/shared/telemetry"
)

// GetPayment use case for retrieving payments
type GetPayment struct {
	paymentRepository domain.PaymentRepository
}

func NewGetPayment(paymentRepository domain.PaymentRepository) *GetPayment {
	return &GetPayment{paymentRepository: paymentRepository}
}

// Execute returns the payment by id
func (uc *GetPayment) Execute(ctx context.Context, paymentID models.ID) (*PaymentResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "GetPayment.Execute")
	defer span.End()

	payment, err := uc.paymentRepository.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return toPaymentResponse(payment), nil
}

// ByOrder returns the payment of an order
func (uc *GetPayment) ByOrder(ctx context.Context, orderID models.ID) (*PaymentResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "GetPayment.ByOrder")
	defer span.End()

	payment, err := uc.paymentRepository.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return toPaymentResponse(payment), nil
}

// Transactions returns the payment's ledger entries, oldest first
func (uc *GetPayment) Transactions(ctx context.Context, paymentID models.ID) ([]TransactionResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "GetPayment.Transactions")
	defer span.End()

	if _, err := uc.paymentRepository.FindByID(ctx, paymentID); err != nil {
		return nil, err
	}
	txs, err := uc.paymentRepository.Transactions(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	out := make([]TransactionResponse, len(txs))
	for i, tx := range txs {
		out[i] = TransactionResponse{
			ID:                    tx.ID,
			Type:                  string(tx.Type),
			Amount:                tx.Amount,
			ExternalTransactionID: tx.ExternalTransactionID,
			CreatedAt:             tx.CreatedAt,
		}
	}
	return out, nil
}

// AuditLog returns the payment's audit trail, oldest first
func (uc *GetPayment) AuditLog(ctx context.Context, paymentID models.ID) ([]AuditLogResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "GetPayment.AuditLog")
	defer span.End()

	entries, err := uc.paymentRepository.AuditLog(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	out := make([]AuditLogResponse, len(entries))
	for i, entry := range entries {
		out[i] = AuditLogResponse{Action: string(entry.Action), Details: entry.Details, CreatedAt: entry.CreatedAt}
	}
	return out, nil
}
