package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/neocommercepay/commerce-system/inventory-service/domain"
	"github.com/neocommercepay/commerce-system/shared/apperrors"
	sharedinfra "github.com/neocommercepay/commerce-system/shared/infrastructure"
	"github.com/neocommercepay/commerce-system/shared/models"
)

var _ domain.InventoryRepository = (*PostgresInventoryRepository)(nil)

// PostgresInventoryRepository implements InventoryRepository using PostgreSQL
type PostgresInventoryRepository struct {
	uow *sharedinfra.UnitOfWork
}

func NewPostgresInventoryRepository(uow *sharedinfra.UnitOfWork) *PostgresInventoryRepository {
	return &PostgresInventoryRepository{uow: uow}
}

type postgresInventory struct {
	ID                string    `db:"id"`
	ProductID         string    `db:"product_id"`
	ProductName       string    `db:"product_name"`
	Quantity          int       `db:"quantity"`
	ReservedQuantity  int       `db:"reserved_quantity"`
	AvailableQuantity int       `db:"available_quantity"`
	LastUpdated       time.Time `db:"last_updated"`
}

type postgresReservation struct {
	Consumer      string    `db:"consumer"`
	OrderID       string    `db:"order_id"`
	EventID       string    `db:"event_id"`
	Items         []byte    `db:"items"`
	Status        string    `db:"status"`
	PendingAlerts []byte    `db:"pending_alerts"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

const selectInventory = `
	SELECT id, product_id, product_name, quantity, reserved_quantity, available_quantity, last_updated
	FROM inventory`

func (r *PostgresInventoryRepository) Save(ctx context.Context, inventory domain.Inventory) error {
	query := `
		INSERT INTO inventory (id, product_id, product_name, quantity, reserved_quantity, available_quantity, last_updated)
		VALUES (:id, :product_id, :product_name, :quantity, :reserved_quantity, :available_quantity, :last_updated)`

	if _, err := r.uow.Querier(ctx).NamedExecContext(ctx, query, toPostgresInventory(inventory)); err != nil {
		if sharedinfra.IsUniqueViolation(err) {
			return apperrors.With(domain.ErrInventoryExists, "product %s", inventory.ProductID)
		}
		return errors.Wrap(err, "failed to insert inventory")
	}
	return nil
}

func (r *PostgresInventoryRepository) Update(ctx context.Context, inventory domain.Inventory) error {
	query := `
		UPDATE inventory
		SET product_name = :product_name, quantity = :quantity, reserved_quantity = :reserved_quantity,
		    available_quantity = :available_quantity, last_updated = :last_updated
		WHERE product_id = :product_id`

	res, err := r.uow.Querier(ctx).NamedExecContext(ctx, query, toPostgresInventory(inventory))
	if err != nil {
		return errors.Wrap(err, "failed to update inventory")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.With(domain.ErrInventoryNotFound, "product %s", inventory.ProductID)
	}
	return nil
}

func (r *PostgresInventoryRepository) FindByProductID(ctx context.Context, productID string) (domain.Inventory, error) {
	return r.findOne(ctx, selectInventory+` WHERE product_id = $1`, productID)
}

func (r *PostgresInventoryRepository) FindByProductIDForUpdate(ctx context.Context, productID string) (domain.Inventory, error) {
	return r.findOne(ctx, selectInventory+` WHERE product_id = $1 FOR UPDATE`, productID)
}

func (r *PostgresInventoryRepository) SaveReservation(ctx context.Context, reservation domain.StockReservation) error {
	row, err := toPostgresReservation(reservation)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO stock_reservations (consumer, order_id, event_id, items, status, pending_alerts, created_at, updated_at)
		VALUES (:consumer, :order_id, :event_id, :items, :status, :pending_alerts, :created_at, :updated_at)`

	if _, err := r.uow.Querier(ctx).NamedExecContext(ctx, query, row); err != nil {
		if sharedinfra.IsUniqueViolation(err) {
			return apperrors.With(domain.ErrReservationExists, "order %s", reservation.OrderID)
		}
		return errors.Wrap(err, "failed to insert stock reservation")
	}
	return nil
}

func (r *PostgresInventoryRepository) UpdateReservation(ctx context.Context, reservation domain.StockReservation) error {
	row, err := toPostgresReservation(reservation)
	if err != nil {
		return err
	}
	query := `
		UPDATE stock_reservations
		SET status = :status, pending_alerts = :pending_alerts, updated_at = :updated_at
		WHERE consumer = :consumer AND order_id = :order_id`

	res, err := r.uow.Querier(ctx).NamedExecContext(ctx, query, row)
	if err != nil {
		return errors.Wrap(err, "failed to update stock reservation")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.With(domain.ErrReservationMissing, "order %s", reservation.OrderID)
	}
	return nil
}

func (r *PostgresInventoryRepository) FindReservationForUpdate(ctx context.Context, consumer string, orderID models.ID) (domain.StockReservation, error) {
	query := `
		SELECT consumer, order_id, event_id, items, status, pending_alerts, created_at, updated_at
		FROM stock_reservations
		WHERE consumer = $1 AND order_id = $2
		FOR UPDATE`

	var row postgresReservation
	if err := r.uow.Querier(ctx).GetContext(ctx, &row, query, consumer, orderID.String()); err != nil {
		if sharedinfra.IsNoRows(err) {
			return domain.StockReservation{}, apperrors.With(domain.ErrReservationMissing, "order %s", orderID)
		}
		return domain.StockReservation{}, errors.Wrap(err, "failed to find stock reservation")
	}

	var items []domain.ReservedItem
	if err := json.Unmarshal(row.Items, &items); err != nil {
		return domain.StockReservation{}, errors.Wrap(err, "failed to decode reserved items")
	}
	var alerts []domain.LowStock
	if err := json.Unmarshal(row.PendingAlerts, &alerts); err != nil {
		return domain.StockReservation{}, errors.Wrap(err, "failed to decode pending alerts")
	}
	return domain.StockReservation{
		Consumer:      row.Consumer,
		OrderID:       models.ID(row.OrderID),
		EventID:       models.ID(row.EventID),
		Items:         items,
		Status:        domain.ReservationStatus(row.Status),
		PendingAlerts: alerts,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}, nil
}

func (r *PostgresInventoryRepository) findOne(ctx context.Context, query, productID string) (domain.Inventory, error) {
	var row postgresInventory
	if err := r.uow.Querier(ctx).GetContext(ctx, &row, query, productID); err != nil {
		if sharedinfra.IsNoRows(err) {
			return domain.Inventory{}, apperrors.With(domain.ErrInventoryNotFound, "product %s", productID)
		}
		return domain.Inventory{}, errors.Wrap(err, "failed to find inventory")
	}
	return domain.Inventory{
		ID:                models.ID(row.ID),
		ProductID:         row.ProductID,
		ProductName:       row.ProductName,
		Quantity:          row.Quantity,
		ReservedQuantity:  row.ReservedQuantity,
		AvailableQuantity: row.AvailableQuantity,
		LastUpdated:       row.LastUpdated,
	}, nil
}

func toPostgresInventory(i domain.Inventory) postgresInventory {
	return postgresInventory{
		ID:                i.ID.String(),
		ProductID:         i.ProductID,
		ProductName:       i.ProductName,
		Quantity:          i.Quantity,
		ReservedQuantity:  i.ReservedQuantity,
		AvailableQuantity: i.AvailableQuantity,
		LastUpdated:       i.LastUpdated,
	}
}

func toPostgresReservation(r domain.StockReservation) (postgresReservation, error) {
	items, err := json.Marshal(r.Items)
	if err != nil {
		return postgresReservation{}, errors.Wrap(err, "failed to encode reserved items")
	}
	alerts := r.PendingAlerts
	if alerts == nil {
		alerts = []domain.LowStock{}
	}
	pending, err := json.Marshal(alerts)
	if err != nil {
		return postgresReservation{}, errors.Wrap(err, "failed to encode pending alerts")
	}
	return postgresReservation{
		Consumer:      r.Consumer,
		OrderID:       r.OrderID.String(),
		EventID:       r.EventID.String(),
		Items:         items,
		Status:        string(r.Status),
		PendingAlerts: pending,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}, nil
}
