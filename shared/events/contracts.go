package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/models"
)

// Topics exchanged by the order, payment and inventory services.
const (
	TopicOrderCreated   Topic = "order.created"
	TopicOrderUpdated   Topic = "order.updated"
	TopicOrderCancelled Topic = "order.cancelled"

	TopicPaymentInitiated  Topic = "payment.initiated"
	TopicPaymentProcessing Topic = "payment.processing"
	TopicPaymentCompleted  Topic = "payment.completed"
	TopicPaymentFailed     Topic = "payment.failed"
	TopicPaymentRefunded   Topic = "payment.refunded"

	TopicInventoryDepleted Topic = "inventory.depleted"
)

// AllTopics lists every business topic, in the order they are provisioned.
var AllTopics = []Topic{
	TopicOrderCreated, TopicOrderUpdated, TopicOrderCancelled,
	TopicPaymentInitiated, TopicPaymentProcessing, TopicPaymentCompleted,
	TopicPaymentFailed, TopicPaymentRefunded,
	TopicInventoryDepleted,
}

type OrderItem struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderCreated struct {
	OrderID       models.ID       `json:"orderId"`
	UserID        string          `json:"userId"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Status        string          `json:"status"`
	Items         []OrderItem     `json:"items"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlationId"`
}

type OrderUpdated struct {
	OrderID       models.ID `json:"orderId"`
	OldStatus     string    `json:"oldStatus"`
	NewStatus     string    `json:"newStatus"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlationId"`
}

type OrderCancelled struct {
	OrderID       models.ID `json:"orderId"`
	UserID        string    `json:"userId"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlationId"`
}

type PaymentInitiated struct {
	PaymentID     models.ID       `json:"paymentId"`
	OrderID       models.ID       `json:"orderId"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlationId"`
}

type PaymentProcessing struct {
	PaymentID     models.ID       `json:"paymentId"`
	OrderID       models.ID       `json:"orderId"`
	Amount        decimal.Decimal `json:"amount"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlationId"`
}

type PaymentCompleted struct {
	PaymentID     models.ID       `json:"paymentId"`
	OrderID       models.ID       `json:"orderId"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transactionId"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlationId"`
}

type PaymentFailed struct {
	PaymentID     models.ID       `json:"paymentId"`
	OrderID       models.ID       `json:"orderId"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlationId"`
}

type PaymentRefunded struct {
	PaymentID     models.ID       `json:"paymentId"`
	OrderID       models.ID       `json:"orderId"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlationId"`
}

type InventoryDepleted struct {
	ProductID     string    `json:"productId"`
	ProductName   string    `json:"productName"`
	CurrentStock  int       `json:"currentStock"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlationId"`
}

// Decode reads the payload of event into T. A payload that cannot be decoded
// is malformed and will never succeed, so it is reported as Invalid.
func Decode[T any](event *Event) (T, error) {
	var payload T
	if err := event.UnmarshalPayload(&payload); err != nil {
		return payload, apperrors.Invalid(err, "decode "+event.Topic.String()+" payload")
	}
	return payload, nil
}
