package infrastructure

import (
	"context"
	"sync"

	"github.com/neocommercepay/commerce-system/payments-service/domain"
	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/models"
)

var _ domain.PaymentRepository = (*MemoryPaymentRepository)(nil)

// MemoryPaymentRepository keeps payments in process memory with the same
// uniqueness and version rules as the Postgres schema.
type MemoryPaymentRepository struct {
	mu           sync.RWMutex
	payments     map[models.ID]domain.Payment
	byOrder      map[models.ID]models.ID
	byKey        map[string]models.ID
	transactions map[models.ID][]domain.Transaction
	audit        map[models.ID][]domain.AuditLog
}

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{
		payments:     make(map[models.ID]domain.Payment),
		byOrder:      make(map[models.ID]models.ID),
		byKey:        make(map[string]models.ID),
		transactions: make(map[models.ID][]domain.Transaction),
		audit:        make(map[models.ID][]domain.AuditLog),
	}
}

func (r *MemoryPaymentRepository) Save(_ context.Context, payment domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byOrder[payment.OrderID]; ok {
		return apperrors.With(domain.ErrDuplicatePayment, "order %s", payment.OrderID)
	}
	if _, ok := r.byKey[payment.IdempotencyKey]; ok {
		return apperrors.With(domain.ErrDuplicatePayment, "idempotency key %s", payment.IdempotencyKey)
	}
	r.payments[payment.ID] = payment
	r.byOrder[payment.OrderID] = payment.ID
	r.byKey[payment.IdempotencyKey] = payment.ID
	return nil
}

func (r *MemoryPaymentRepository) Update(_ context.Context, payment domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.payments[payment.ID]
	if !ok {
		return apperrors.With(domain.ErrPaymentNotFound, "payment %s", payment.ID)
	}
	if stored.Version.Next() != payment.Version {
		return apperrors.Transient(nil, "payment "+payment.ID.String()+" was modified concurrently")
	}
	r.payments[payment.ID] = payment
	return nil
}

func (r *MemoryPaymentRepository) FindByID(_ context.Context, id models.ID) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	payment, ok := r.payments[id]
	if !ok {
		return domain.Payment{}, apperrors.With(domain.ErrPaymentNotFound, "payment %s", id)
	}
	return payment, nil
}

func (r *MemoryPaymentRepository) FindByIDForUpdate(ctx context.Context, id models.ID) (domain.Payment, error) {
	return r.FindByID(ctx, id)
}

func (r *MemoryPaymentRepository) FindByOrderID(ctx context.Context, orderID models.ID) (domain.Payment, error) {
	r.mu.RLock()
	id, ok := r.byOrder[orderID]
	r.mu.RUnlock()
	if !ok {
		return domain.Payment{}, apperrors.With(domain.ErrPaymentNotFound, "order %s", orderID)
	}
	return r.FindByID(ctx, id)
}

func (r *MemoryPaymentRepository) ExistsByIdempotencyKey(_ context.Context, key string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byKey[key]
	return ok, nil
}

func (r *MemoryPaymentRepository) SaveTransaction(_ context.Context, tx domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions[tx.PaymentID] = append(r.transactions[tx.PaymentID], tx)
	return nil
}

func (r *MemoryPaymentRepository) Transactions(_ context.Context, paymentID models.ID) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Transaction(nil), r.transactions[paymentID]...), nil
}

func (r *MemoryPaymentRepository) AppendAudit(_ context.Context, entry domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audit[entry.PaymentID] = append(r.audit[entry.PaymentID], entry)
	return nil
}

func (r *MemoryPaymentRepository) AuditLog(_ context.Context, paymentID models.ID) ([]domain.AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.AuditLog(nil), r.audit[paymentID]...), nil
}
