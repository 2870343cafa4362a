package config

import (
	"context"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/neocommercepay/commerce-system/inventory-service/application"
	"github.com/neocommercepay/commerce-system/inventory-service/domain"
	"github.com/neocommercepay/commerce-system/inventory-service/handlers"
	"github.com/neocommercepay/commerce-system/inventory-service/infrastructure"
	"github.com/neocommercepay/commerce-system/shared/clock"
	sharedconfig "github.com/neocommercepay/commerce-system/shared/config"
	sharedinfra "github.com/neocommercepay/commerce-system/shared/infrastructure"
	"github.com/neocommercepay/commerce-system/shared/retry"
	"github.com/neocommercepay/commerce-system/shared/saga"
)

type Dependencies struct {
	// Database, nil with the memory driver
	DB *sqlx.DB

	// Repositories
	InventoryRepository domain.InventoryRepository
	UnitOfWork          domain.UnitOfWork
	RetryExecutor       *retry.Executor

	// Use Cases
	CreateInventory   *application.CreateInventory
	GetInventory      *application.GetInventory
	DecrementStock    *application.DecrementStock
	IncrementStock    *application.IncrementStock
	ReserveOrderStock *application.ReserveOrderStock
	ReleaseOrderStock *application.ReleaseOrderStock

	// HTTP Handlers
	InventoryHandlers *handlers.InventoryHandlers

	// Event Handlers
	InventoryEventHandlers *handlers.InventoryEventHandlers
	EventRouter            *saga.EventRouter

	// Infrastructure
	Broker *sharedconfig.BrokerClients
}

// BuildDependencies wires the service. bus is only used with the memory
// broker driver and may be nil.
func BuildDependencies(ctx context.Context, cfg *Config, bus *sharedinfra.InMemoryBus, clk clock.Clock, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	switch cfg.Database.Driver {
	case sharedconfig.DatabaseMemory:
		deps.InventoryRepository = infrastructure.NewMemoryInventoryRepository()
		deps.UnitOfWork = sharedinfra.NewMemoryUnitOfWork()
	default:
		db, err := sharedconfig.OpenDatabase(ctx, &cfg.Base, infrastructure.Schema)
		if err != nil {
			return nil, err
		}
		deps.DB = db
		uow := sharedinfra.NewUnitOfWork(db)
		deps.InventoryRepository = infrastructure.NewPostgresInventoryRepository(uow)
		deps.UnitOfWork = uow
	}

	broker, err := sharedconfig.NewBrokerClients(ctx, &cfg.Base, bus, logger)
	if err != nil {
		deps.Close()
		return nil, errors.Wrap(err, "failed to create event broker")
	}
	deps.Broker = broker
	deps.RetryExecutor = retry.NewExecutor(cfg.Retry.Executor(), logger)

	// Initialize use cases
	deps.CreateInventory = application.NewCreateInventory(deps.InventoryRepository, clk, logger)
	deps.GetInventory = application.NewGetInventory(deps.InventoryRepository)
	deps.DecrementStock = application.NewDecrementStock(deps.InventoryRepository, deps.UnitOfWork, broker.Publisher, clk, logger)
	deps.IncrementStock = application.NewIncrementStock(deps.InventoryRepository, deps.UnitOfWork, clk, logger)
	deps.ReserveOrderStock = application.NewReserveOrderStock(
		saga.InventoryService,
		deps.InventoryRepository,
		deps.UnitOfWork,
		deps.RetryExecutor,
		broker.Publisher,
		clk,
		logger,
	)
	deps.ReleaseOrderStock = application.NewReleaseOrderStock(
		cfg.Inventory.CompensateOnCancel,
		saga.InventoryService,
		deps.InventoryRepository,
		deps.UnitOfWork,
		deps.RetryExecutor,
		clk,
		logger,
	)

	// Initialize handlers
	deps.InventoryHandlers = handlers.NewInventoryHandlers(deps.CreateInventory, deps.GetInventory, deps.DecrementStock, deps.IncrementStock)
	deps.InventoryEventHandlers = handlers.NewInventoryEventHandlers(deps.ReserveOrderStock, deps.ReleaseOrderStock)
	deps.EventRouter = deps.InventoryEventHandlers.Register(saga.NewEventRouter(saga.InventoryService, logger))

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
