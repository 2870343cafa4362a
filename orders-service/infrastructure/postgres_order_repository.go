package infrastructure

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/neocommercepay/commerce-system/orders-service/domain"
	"github.com/neocommercepay/commerce-system/shared/apperrors"
	sharedinfra "github.com/neocommercepay/commerce-system/shared/infrastructure"
	"github.com/neocommercepay/commerce-system/shared/models"
)

var _ domain.OrderRepository = (*PostgresOrderRepository)(nil)

// PostgresOrderRepository implements OrderRepository using PostgreSQL. It
// runs inside the transaction carried by ctx when there is one.
type PostgresOrderRepository struct {
	uow *sharedinfra.UnitOfWork
}

func NewPostgresOrderRepository(uow *sharedinfra.UnitOfWork) *PostgresOrderRepository {
	return &PostgresOrderRepository{uow: uow}
}

type postgresOrder struct {
	ID           string          `db:"id"`
	UserID       string          `db:"user_id"`
	TotalAmount  decimal.Decimal `db:"total_amount"`
	Status       string          `db:"status"`
	CancelReason string          `db:"cancel_reason"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

type postgresOrderItem struct {
	OrderID   string          `db:"order_id"`
	Line      int             `db:"line"`
	ProductID string          `db:"product_id"`
	Quantity  int             `db:"quantity"`
	Price     decimal.Decimal `db:"price"`
}

type postgresStatusHistory struct {
	ID        string    `db:"id"`
	OrderID   string    `db:"order_id"`
	OldStatus *string   `db:"old_status"`
	NewStatus string    `db:"new_status"`
	ChangedAt time.Time `db:"changed_at"`
}

const selectOrder = `
	SELECT id, user_id, total_amount, status, cancel_reason, created_at, updated_at
	FROM orders`

// Save inserts the order and its items
func (r *PostgresOrderRepository) Save(ctx context.Context, order domain.Order) error {
	q := r.uow.Querier(ctx)

	query := `
		INSERT INTO orders (id, user_id, total_amount, status, cancel_reason, created_at, updated_at)
		VALUES (:id, :user_id, :total_amount, :status, :cancel_reason, :created_at, :updated_at)`
	if _, err := q.NamedExecContext(ctx, query, toPostgresOrder(order)); err != nil {
		if sharedinfra.IsUniqueViolation(err) {
			return apperrors.BusinessRule("order_exists", "order %s already exists", order.ID)
		}
		return errors.Wrap(err, "failed to insert order")
	}

	itemQuery := `
		INSERT INTO order_items (order_id, line, product_id, quantity, price)
		VALUES (:order_id, :line, :product_id, :quantity, :price)`
	for i, item := range order.Items {
		row := postgresOrderItem{
			OrderID:   order.ID.String(),
			Line:      i,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		}
		if _, err := q.NamedExecContext(ctx, itemQuery, row); err != nil {
			return errors.Wrap(err, "failed to insert order item")
		}
	}
	return nil
}

// Update writes the mutable columns. Items never change after creation.
func (r *PostgresOrderRepository) Update(ctx context.Context, order domain.Order) error {
	query := `
		UPDATE orders
		SET status = :status, cancel_reason = :cancel_reason, updated_at = :updated_at
		WHERE id = :id`

	res, err := r.uow.Querier(ctx).NamedExecContext(ctx, query, toPostgresOrder(order))
	if err != nil {
		return errors.Wrap(err, "failed to update order")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.With(domain.ErrOrderNotFound, "order %s", order.ID)
	}
	return nil
}

func (r *PostgresOrderRepository) FindByID(ctx context.Context, id models.ID) (domain.Order, error) {
	return r.findOne(ctx, selectOrder+` WHERE id = $1`, id)
}

func (r *PostgresOrderRepository) FindByIDForUpdate(ctx context.Context, id models.ID) (domain.Order, error) {
	return r.findOne(ctx, selectOrder+` WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresOrderRepository) FindByUserID(ctx context.Context, userID string) ([]domain.Order, error) {
	return r.findMany(ctx, selectOrder+` WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *PostgresOrderRepository) FindByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	return r.findMany(ctx, selectOrder+` WHERE status = $1 ORDER BY created_at DESC`, string(status))
}

func (r *PostgresOrderRepository) AppendHistory(ctx context.Context, entry domain.StatusHistory) error {
	var old *string
	if entry.OldStatus != nil {
		s := string(*entry.OldStatus)
		old = &s
	}
	query := `
		INSERT INTO order_status_history (id, order_id, old_status, new_status, changed_at)
		VALUES (:id, :order_id, :old_status, :new_status, :changed_at)`
	_, err := r.uow.Querier(ctx).NamedExecContext(ctx, query, postgresStatusHistory{
		ID:        entry.ID.String(),
		OrderID:   entry.OrderID.String(),
		OldStatus: old,
		NewStatus: string(entry.NewStatus),
		ChangedAt: entry.ChangedAt,
	})
	return errors.Wrap(err, "failed to insert status history")
}

func (r *PostgresOrderRepository) History(ctx context.Context, orderID models.ID) ([]domain.StatusHistory, error) {
	query := `
		SELECT id, order_id, old_status, new_status, changed_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY changed_at, id`

	var rows []postgresStatusHistory
	if err := r.uow.Querier(ctx).SelectContext(ctx, &rows, query, orderID.String()); err != nil {
		return nil, errors.Wrap(err, "failed to load status history")
	}

	history := make([]domain.StatusHistory, len(rows))
	for i, row := range rows {
		var old *domain.OrderStatus
		if row.OldStatus != nil {
			s := domain.OrderStatus(*row.OldStatus)
			old = &s
		}
		history[i] = domain.StatusHistory{
			ID:        models.ID(row.ID),
			OrderID:   models.ID(row.OrderID),
			OldStatus: old,
			NewStatus: domain.OrderStatus(row.NewStatus),
			ChangedAt: row.ChangedAt,
		}
	}
	return history, nil
}

func (r *PostgresOrderRepository) findOne(ctx context.Context, query string, id models.ID) (domain.Order, error) {
	var row postgresOrder
	if err := r.uow.Querier(ctx).GetContext(ctx, &row, query, id.String()); err != nil {
		if sharedinfra.IsNoRows(err) {
			return domain.Order{}, apperrors.With(domain.ErrOrderNotFound, "order %s", id)
		}
		return domain.Order{}, errors.Wrap(err, "failed to find order")
	}
	orders, err := r.withItems(ctx, []postgresOrder{row})
	if err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

func (r *PostgresOrderRepository) findMany(ctx context.Context, query string, arg interface{}) ([]domain.Order, error) {
	var rows []postgresOrder
	if err := r.uow.Querier(ctx).SelectContext(ctx, &rows, query, arg); err != nil {
		return nil, errors.Wrap(err, "failed to find orders")
	}
	return r.withItems(ctx, rows)
}

// withItems loads the items of all rows with one query.
func (r *PostgresOrderRepository) withItems(ctx context.Context, rows []postgresOrder) ([]domain.Order, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	var items []postgresOrderItem
	query := `
		SELECT order_id, line, product_id, quantity, price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, line`
	if err := r.uow.Querier(ctx).SelectContext(ctx, &items, query, pq.Array(ids)); err != nil {
		return nil, errors.Wrap(err, "failed to load order items")
	}

	byOrder := make(map[string][]domain.OrderItem, len(rows))
	for _, item := range items {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], domain.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	orders := make([]domain.Order, len(rows))
	for i, row := range rows {
		orders[i] = domain.Order{
			ID:           models.ID(row.ID),
			UserID:       row.UserID,
			TotalAmount:  row.TotalAmount,
			Status:       domain.OrderStatus(row.Status),
			Items:        byOrder[row.ID],
			CancelReason: row.CancelReason,
			Timestamps:   models.Timestamps{CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt},
		}
	}
	return orders, nil
}

func toPostgresOrder(order domain.Order) postgresOrder {
	return postgresOrder{
		ID:           order.ID.String(),
		UserID:       order.UserID,
		TotalAmount:  order.TotalAmount,
		Status:       string(order.Status),
		CancelReason: order.CancelReason,
		CreatedAt:    order.CreatedAt,
		UpdatedAt:    order.UpdatedAt,
	}
}
