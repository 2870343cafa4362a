package application

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/neocommercepay/commerce-system/payments-service/domain"
	"github.com/neocommercepay/commerce-system/shared/events"
	"github.com/neocommercepay/commerce-system/shared/models"
)

// PaymentResponse represents a payment as returned by the use cases
type PaymentResponse struct {
	ID             models.ID       `json:"id"`
	OrderID        models.ID       `json:"orderId"`
	Amount         decimal.Decimal `json:"amount"`
	Status         string          `json:"status"`
	TransactionID  string          `json:"transactionId,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey"`
	FailureReason  string          `json:"failureReason,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type TransactionResponse struct {
	ID                    models.ID       `json:"id"`
	Type                  string          `json:"type"`
	Amount                decimal.Decimal `json:"amount"`
	ExternalTransactionID string          `json:"externalTransactionId"`
	CreatedAt             time.Time       `json:"createdAt"`
}

type AuditLogResponse struct {
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"createdAt"`
}

func toPaymentResponse(p domain.Payment) *PaymentResponse {
	return &PaymentResponse{
		ID:             p.ID,
		OrderID:        p.OrderID,
		Amount:         p.Amount,
		Status:         string(p.Status),
		TransactionID:  p.TransactionID,
		IdempotencyKey: p.IdempotencyKey,
		FailureReason:  p.FailureReason,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

// paymentEvent builds the event announcing the payment's current status.
// Events are keyed by order id so that one order's payment events keep
// their order on the channel. reason is only used for refunds.
func paymentEvent(p domain.Payment, reason, correlationID string, now time.Time) *events.Event {
	var (
		topic   events.Topic
		payload interface{}
	)
	switch p.Status {
	case domain.PaymentStatusInitiated:
		topic = events.TopicPaymentInitiated
		payload = events.PaymentInitiated{PaymentID: p.ID, OrderID: p.OrderID, Amount: p.Amount, Status: string(p.Status), Timestamp: now, CorrelationID: correlationID}
	case domain.PaymentStatusProcessing:
		topic = events.TopicPaymentProcessing
		payload = events.PaymentProcessing{PaymentID: p.ID, OrderID: p.OrderID, Amount: p.Amount, Timestamp: now, CorrelationID: correlationID}
	case domain.PaymentStatusCompleted:
		topic = events.TopicPaymentCompleted
		payload = events.PaymentCompleted{PaymentID: p.ID, OrderID: p.OrderID, Amount: p.Amount, TransactionID: p.TransactionID, Timestamp: now, CorrelationID: correlationID}
	case domain.PaymentStatusFailed:
		topic = events.TopicPaymentFailed
		payload = events.PaymentFailed{PaymentID: p.ID, OrderID: p.OrderID, Amount: p.Amount, Reason: p.FailureReason, Timestamp: now, CorrelationID: correlationID}
	case domain.PaymentStatusRefunded:
		topic = events.TopicPaymentRefunded
		payload = events.PaymentRefunded{PaymentID: p.ID, OrderID: p.OrderID, Amount: p.Amount, Reason: reason, Timestamp: now, CorrelationID: correlationID}
	}
	return events.NewEvent(p.OrderID, topic, payload, now).WithCorrelationID(correlationID)
}
