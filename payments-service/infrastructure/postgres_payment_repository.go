package infrastructure

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/neocommercepay/commerce-system/payments-service/domain"
	"github.com/neocommercepay/commerce-system/shared/apperrors"
	sharedinfra "github.com/neocommercepay/commerce-system/shared/infrastructure"
	"github.com/neocommercepay/commerce-system/shared/models"
)

var _ domain.PaymentRepository = (*PostgresPaymentRepository)(nil)

// PostgresPaymentRepository implements PaymentRepository using PostgreSQL
type PostgresPaymentRepository struct {
	uow *sharedinfra.UnitOfWork
}

// NewPostgresPaymentRepository creates a new PostgresPaymentRepository
func NewPostgresPaymentRepository(uow *sharedinfra.UnitOfWork) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{uow: uow}
}

// postgresPayment represents payment in database
type postgresPayment struct {
	ID             string          `db:"id"`
	OrderID        string          `db:"order_id"`
	Amount         decimal.Decimal `db:"amount"`
	Status         string          `db:"status"`
	TransactionID  sql.NullString  `db:"transaction_id"`
	IdempotencyKey string          `db:"idempotency_key"`
	FailureReason  string          `db:"failure_reason"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
	Version        int             `db:"version"`
}

type postgresTransaction struct {
	ID                    string          `db:"id"`
	PaymentID             string          `db:"payment_id"`
	Type                  string          `db:"type"`
	Amount                decimal.Decimal `db:"amount"`
	ExternalTransactionID string          `db:"external_transaction_id"`
	CreatedAt             time.Time       `db:"created_at"`
}

type postgresAuditLog struct {
	ID        string    `db:"id"`
	PaymentID string    `db:"payment_id"`
	Action    string    `db:"action"`
	Details   string    `db:"details"`
	CreatedAt time.Time `db:"created_at"`
}

const selectPayment = `
	SELECT id, order_id, amount, status, transaction_id, idempotency_key,
	       failure_reason, created_at, updated_at, version
	FROM payments`

// Save inserts a new payment
func (r *PostgresPaymentRepository) Save(ctx context.Context, payment domain.Payment) error {
	query := `
		INSERT INTO payments (
			id, order_id, amount, status, transaction_id, idempotency_key,
			failure_reason, created_at, updated_at, version
		) VALUES (
			:id, :order_id, :amount, :status, :transaction_id, :idempotency_key,
			:failure_reason, :created_at, :updated_at, :version
		)`

	if _, err := r.uow.Querier(ctx).NamedExecContext(ctx, query, toPostgresPayment(payment)); err != nil {
		if sharedinfra.IsUniqueViolation(err) {
			return apperrors.With(domain.ErrDuplicatePayment, "order %s", payment.OrderID)
		}
		return errors.Wrap(err, "failed to insert payment")
	}
	return nil
}

// Update updates an existing payment with optimistic locking on version
func (r *PostgresPaymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	query := `
		UPDATE payments
		SET status = :status, transaction_id = :transaction_id, failure_reason = :failure_reason,
		    updated_at = :updated_at, version = :version
		WHERE id = :id AND version = :old_version`

	row := toPostgresPayment(payment)
	res, err := r.uow.Querier(ctx).NamedExecContext(ctx, query, map[string]interface{}{
		"id":             row.ID,
		"status":         row.Status,
		"transaction_id": row.TransactionID,
		"failure_reason": row.FailureReason,
		"updated_at":     row.UpdatedAt,
		"version":        row.Version,
		"old_version":    row.Version - 1,
	})
	if err != nil {
		return errors.Wrap(err, "failed to update payment")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.Transient(nil, "payment "+payment.ID.String()+" was modified concurrently")
	}
	return nil
}

// FindByID finds a payment by ID
func (r *PostgresPaymentRepository) FindByID(ctx context.Context, id models.ID) (domain.Payment, error) {
	return r.findOne(ctx, selectPayment+` WHERE id = $1`, id.String(), "payment "+id.String())
}

func (r *PostgresPaymentRepository) FindByIDForUpdate(ctx context.Context, id models.ID) (domain.Payment, error) {
	return r.findOne(ctx, selectPayment+` WHERE id = $1 FOR UPDATE`, id.String(), "payment "+id.String())
}

func (r *PostgresPaymentRepository) FindByOrderID(ctx context.Context, orderID models.ID) (domain.Payment, error) {
	return r.findOne(ctx, selectPayment+` WHERE order_id = $1`, orderID.String(), "order "+orderID.String())
}

func (r *PostgresPaymentRepository) ExistsByIdempotencyKey(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.uow.Querier(ctx).GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE idempotency_key = $1)`, key)
	if err != nil {
		return false, errors.Wrap(err, "failed to check idempotency key")
	}
	return exists, nil
}

func (r *PostgresPaymentRepository) SaveTransaction(ctx context.Context, tx domain.Transaction) error {
	query := `
		INSERT INTO payment_transactions (id, payment_id, type, amount, external_transaction_id, created_at)
		VALUES (:id, :payment_id, :type, :amount, :external_transaction_id, :created_at)`
	_, err := r.uow.Querier(ctx).NamedExecContext(ctx, query, postgresTransaction{
		ID:                    tx.ID.String(),
		PaymentID:             tx.PaymentID.String(),
		Type:                  string(tx.Type),
		Amount:                tx.Amount,
		ExternalTransactionID: tx.ExternalTransactionID,
		CreatedAt:             tx.CreatedAt,
	})
	return errors.Wrap(err, "failed to insert transaction")
}

func (r *PostgresPaymentRepository) Transactions(ctx context.Context, paymentID models.ID) ([]domain.Transaction, error) {
	query := `
		SELECT id, payment_id, type, amount, external_transaction_id, created_at
		FROM payment_transactions
		WHERE payment_id = $1
		ORDER BY created_at, id`

	var rows []postgresTransaction
	if err := r.uow.Querier(ctx).SelectContext(ctx, &rows, query, paymentID.String()); err != nil {
		return nil, errors.Wrap(err, "failed to load transactions")
	}
	out := make([]domain.Transaction, len(rows))
	for i, row := range rows {
		out[i] = domain.Transaction{
			ID:                    models.ID(row.ID),
			PaymentID:             models.ID(row.PaymentID),
			Type:                  domain.TransactionType(row.Type),
			Amount:                row.Amount,
			ExternalTransactionID: row.ExternalTransactionID,
			CreatedAt:             row.CreatedAt,
		}
	}
	return out, nil
}

func (r *PostgresPaymentRepository) AppendAudit(ctx context.Context, entry domain.AuditLog) error {
	query := `
		INSERT INTO payment_audit_log (id, payment_id, action, details, created_at)
		VALUES (:id, :payment_id, :action, :details, :created_at)`
	_, err := r.uow.Querier(ctx).NamedExecContext(ctx, query, postgresAuditLog{
		ID:        entry.ID.String(),
		PaymentID: entry.PaymentID.String(),
		Action:    string(entry.Action),
		Details:   entry.Details,
		CreatedAt: entry.CreatedAt,
	})
	return errors.Wrap(err, "failed to insert audit log")
}

func (r *PostgresPaymentRepository) AuditLog(ctx context.Context, paymentID models.ID) ([]domain.AuditLog, error) {
	query := `
		SELECT id, payment_id, action, details, created_at
		FROM payment_audit_log
		WHERE payment_id = $1
		ORDER BY created_at, id`

	var rows []postgresAuditLog
	if err := r.uow.Querier(ctx).SelectContext(ctx, &rows, query, paymentID.String()); err != nil {
		return nil, errors.Wrap(err, "failed to load audit log")
	}
	out := make([]domain.AuditLog, len(rows))
	for i, row := range rows {
		out[i] = domain.AuditLog{
			ID:        models.ID(row.ID),
			PaymentID: models.ID(row.PaymentID),
			Action:    domain.AuditAction(row.Action),
			Details:   row.Details,
			CreatedAt: row.CreatedAt,
		}
	}
	return out, nil
}

func (r *PostgresPaymentRepository) findOne(ctx context.Context, query, arg, what string) (domain.Payment, error) {
	var row postgresPayment
	if err := r.uow.Querier(ctx).GetContext(ctx, &row, query, arg); err != nil {
		if sharedinfra.IsNoRows(err) {
			return domain.Payment{}, apperrors.With(domain.ErrPaymentNotFound, "%s", what)
		}
		return domain.Payment{}, errors.Wrap(err, "failed to find payment")
	}
	return toDomainPayment(row), nil
}

// toPostgresPayment converts domain payment to postgres model
func toPostgresPayment(p domain.Payment) postgresPayment {
	return postgresPayment{
		ID:             p.ID.String(),
		OrderID:        p.OrderID.String(),
		Amount:         p.Amount,
		Status:         string(p.Status),
		TransactionID:  sql.NullString{String: p.TransactionID, Valid: p.TransactionID != ""},
		IdempotencyKey: p.IdempotencyKey,
		FailureReason:  p.FailureReason,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
		Version:        p.Version.Value,
	}
}

// toDomainPayment converts postgres model to domain payment
func toDomainPayment(row postgresPayment) domain.Payment {
	return domain.Payment{
		ID:             models.ID(row.ID),
		OrderID:        models.ID(row.OrderID),
		Amount:         row.Amount,
		Status:         domain.PaymentStatus(row.Status),
		TransactionID:  row.TransactionID.String,
		IdempotencyKey: row.IdempotencyKey,
		FailureReason:  row.FailureReason,
		Timestamps:     models.Timestamps{CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt},
		Version:        models.Version{Value: row.Version},
	}
}
