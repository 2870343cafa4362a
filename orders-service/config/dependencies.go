package config

import (
	"context"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/neocommercepay/commerce-system/orders-service/application"
	"github.com/neocommercepay/commerce-system/orders-service/domain"
	"github.com/neocommercepay/commerce-system/orders-service/handlers"
	"github.com/neocommercepay/commerce-system/orders-service/infrastructure"
	"github.com/neocommercepay/commerce-system/shared/clock"
	sharedconfig "github.com/neocommercepay/commerce-system/shared/config"
	sharedinfra "github.com/neocommercepay/commerce-system/shared/infrastructure"
	"github.com/neocommercepay/commerce-system/shared/saga"
)

type Dependencies struct {
	// Database, nil with the memory driver
	DB *sqlx.DB

	// Repositories
	OrderRepository domain.OrderRepository
	UnitOfWork      domain.UnitOfWork

	// Use Cases
	CreateOrder       *application.CreateOrder
	UpdateOrderStatus *application.UpdateOrderStatus
	CancelOrder       *application.CancelOrder
	GetOrder          *application.GetOrder
	ListOrders        *application.ListOrders
	GetOrderHistory   *application.GetOrderHistory

	// HTTP Handlers
	OrderHandlers *handlers.OrderHandlers

	// Event Handlers
	OrderEventHandlers *handlers.OrderEventHandlers
	EventRouter        *saga.EventRouter

	// Infrastructure
	Broker *sharedconfig.BrokerClients
}

// BuildDependencies wires the service. bus is only used with the memory
// broker driver and may be nil.
func BuildDependencies(ctx context.Context, cfg *Config, bus *sharedinfra.InMemoryBus, clk clock.Clock, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	switch cfg.Database.Driver {
	case sharedconfig.DatabaseMemory:
		deps.OrderRepository = infrastructure.NewMemoryOrderRepository()
		deps.UnitOfWork = sharedinfra.NewMemoryUnitOfWork()
	default:
		db, err := sharedconfig.OpenDatabase(ctx, &cfg.Base, infrastructure.Schema)
		if err != nil {
			return nil, err
		}
		deps.DB = db
		uow := sharedinfra.NewUnitOfWork(db)
		deps.OrderRepository = infrastructure.NewPostgresOrderRepository(uow)
		deps.UnitOfWork = uow
	}

	broker, err := sharedconfig.NewBrokerClients(ctx, &cfg.Base, bus, logger)
	if err != nil {
		deps.Close()
		return nil, errors.Wrap(err, "failed to create event broker")
	}
	deps.Broker = broker

	// Initialize use cases
	deps.CreateOrder = application.NewCreateOrder(deps.OrderRepository, deps.UnitOfWork, broker.Publisher, clk, logger)
	deps.UpdateOrderStatus = application.NewUpdateOrderStatus(deps.OrderRepository, deps.UnitOfWork, broker.Publisher, clk, logger)
	deps.CancelOrder = application.NewCancelOrder(deps.OrderRepository, deps.UnitOfWork, broker.Publisher, clk, logger)
	deps.GetOrder = application.NewGetOrder(deps.OrderRepository)
	deps.ListOrders = application.NewListOrders(deps.OrderRepository)
	deps.GetOrderHistory = application.NewGetOrderHistory(deps.OrderRepository)

	// Initialize handlers
	deps.OrderHandlers = handlers.NewOrderHandlers(
		deps.CreateOrder,
		deps.UpdateOrderStatus,
		deps.CancelOrder,
		deps.GetOrder,
		deps.ListOrders,
		deps.GetOrderHistory,
	)
	deps.OrderEventHandlers = handlers.NewOrderEventHandlers(deps.UpdateOrderStatus, deps.CancelOrder)
	deps.EventRouter = deps.OrderEventHandlers.Register(saga.NewEventRouter(saga.OrderService, logger))

	return deps, nil
}

// Close closes all dependencies
func (d *Dependencies) Close() error {
	var errs []error

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "failed to close database"))
		}
	}
	if d.Broker != nil {
		if err := d.Broker.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Errorf("errors closing dependencies: %v", errs)
	}
	return nil
}
