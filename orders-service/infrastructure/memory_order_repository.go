package infrastructure

import (
	"context"
	"sort"
	"sync"

	"github.com/neocommercepay/commerce-system/orders-service/domain"
	"github.com/neocommercepay/commerce-system/shared/apperrors"
	"github.com/neocommercepay/commerce-system/shared/models"
)

var _ domain.OrderRepository = (*MemoryOrderRepository)(nil)

// MemoryOrderRepository keeps orders in process memory. Callers serialize
// read-decide-write sequences through a MemoryUnitOfWork.
type MemoryOrderRepository struct {
	mu      sync.RWMutex
	orders  map[models.ID]domain.Order
	history map[models.ID][]domain.StatusHistory
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders:  make(map[models.ID]domain.Order),
		history: make(map[models.ID][]domain.StatusHistory),
	}
}

func (r *MemoryOrderRepository) Save(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; ok {
		return apperrors.BusinessRule("order_exists", "order %s already exists", order.ID)
	}
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *MemoryOrderRepository) Update(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; !ok {
		return apperrors.With(domain.ErrOrderNotFound, "order %s", order.ID)
	}
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *MemoryOrderRepository) FindByID(_ context.Context, id models.ID) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, apperrors.With(domain.ErrOrderNotFound, "order %s", id)
	}
	return cloneOrder(order), nil
}

func (r *MemoryOrderRepository) FindByIDForUpdate(ctx context.Context, id models.ID) (domain.Order, error) {
	return r.FindByID(ctx, id)
}

func (r *MemoryOrderRepository) FindByUserID(_ context.Context, userID string) ([]domain.Order, error) {
	return r.filter(func(o domain.Order) bool { return o.UserID == userID }), nil
}

func (r *MemoryOrderRepository) FindByStatus(_ context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	return r.filter(func(o domain.Order) bool { return o.Status == status }), nil
}

func (r *MemoryOrderRepository) AppendHistory(_ context.Context, entry domain.StatusHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history[entry.OrderID] = append(r.history[entry.OrderID], entry)
	return nil
}

func (r *MemoryOrderRepository) History(_ context.Context, orderID models.ID) ([]domain.StatusHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.StatusHistory(nil), r.history[orderID]...), nil
}

// filter returns matches newest first, like the Postgres queries.
func (r *MemoryOrderRepository) filter(match func(domain.Order) bool) []domain.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Order
	for _, order := range r.orders {
		if match(order) {
			out = append(out, cloneOrder(order))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func cloneOrder(order domain.Order) domain.Order {
	order.Items = append([]domain.OrderItem(nil), order.Items...)
	return order
}
