package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/neocommercepay/commerce-system/payments-service/application"
	"github.com/neocommercepay/commerce-system/payments-service/domain"
	"github.com/neocommercepay/commerce-system/payments-service/handlers"
	"github.com/neocommercepay/commerce-system/payments-service/infrastructure"
	"github.com/neocommercepay/commerce-system/shared/clock"
	sharedconfig "github.com/neocommercepay/commerce-system/shared/config"
	"github.com/neocommercepay/commerce-system/shared/idempotency"
	sharedinfra "github.com/neocommercepay/commerce-system/shared/infrastructure"
	"github.com/neocommercepay/commerce-system/shared/retry"
	"github.com/neocommercepay/commerce-system/shared/saga"
)

type Dependencies struct {
	// Database, nil with the memory driver
	DB *sqlx.DB

	// Repositories
	PaymentRepository domain.PaymentRepository
	UnitOfWork        domain.UnitOfWork

	// Collaborators
	Processor        domain.PaymentProcessor
	IdempotencyGuard *idempotency.Guard
	RetryExecutor    *retry.Executor

	// Use Cases
	InitiatePayment *application.InitiatePayment
	ProcessPayment  *application.ProcessPayment
	RefundPayment   *application.RefundPayment
	GetPayment      *application.GetPayment
	PayForOrder     *application.PayForOrder

	// HTTP Handlers
	PaymentHandlers *handlers.PaymentHandlers

	// Event Handlers
	PaymentEventHandlers *handlers.PaymentEventHandlers
	EventRouter          *saga.EventRouter

	// Infrastructure
	Broker     *sharedconfig.BrokerClients
	closeCache func() error
}

// BuildDependencies wires the service. bus is only used with the memory
// broker driver and may be nil.
func BuildDependencies(ctx context.Context, cfg *Config, bus *sharedinfra.InMemoryBus, clk clock.Clock, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	switch cfg.Database.Driver {
	case sharedconfig.DatabaseMemory:
		deps.PaymentRepository = infrastructure.NewMemoryPaymentRepository()
		deps.UnitOfWork = sharedinfra.NewMemoryUnitOfWork()
	default:
		db, err := sharedconfig.OpenDatabase(ctx, &cfg.Base, infrastructure.Schema)
		if err != nil {
			return nil, err
		}
		deps.DB = db
		uow := sharedinfra.NewUnitOfWork(db)
		deps.PaymentRepository = infrastructure.NewPostgresPaymentRepository(uow)
		deps.UnitOfWork = uow
	}

	cache, closeCache, err := sharedconfig.NewIdempotencyCache(ctx, &cfg.Base)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.closeCache = closeCache

	broker, err := sharedconfig.NewBrokerClients(ctx, &cfg.Base, bus, logger)
	if err != nil {
		deps.Close()
		return nil, errors.Wrap(err, "failed to create event broker")
	}
	deps.Broker = broker

	seed := cfg.Processor.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	deps.Processor = infrastructure.NewMockPaymentProcessor(cfg.Processor.Latency, cfg.Processor.ApprovalRate, seed)
	deps.IdempotencyGuard = idempotency.NewGuard("initiate_payment", deps.PaymentRepository.ExistsByIdempotencyKey, cache, cfg.Redis.TTL, logger)
	deps.RetryExecutor = retry.NewExecutor(cfg.Retry.Executor(), logger)

	// Initialize use cases
	deps.InitiatePayment = application.NewInitiatePayment(deps.PaymentRepository, deps.UnitOfWork, deps.IdempotencyGuard, broker.Publisher, clk, logger)
	deps.ProcessPayment = application.NewProcessPayment(
		deps.PaymentRepository,
		deps.UnitOfWork,
		deps.Processor,
		deps.RetryExecutor,
		cfg.Processor.Timeout,
		broker.Publisher,
		clk,
		logger,
	)
	deps.RefundPayment = application.NewRefundPayment(deps.PaymentRepository, deps.UnitOfWork, broker.Publisher, clk, logger)
	deps.GetPayment = application.NewGetPayment(deps.PaymentRepository)
	deps.PayForOrder = application.NewPayForOrder(deps.PaymentRepository, deps.InitiatePayment, deps.ProcessPayment, deps.RetryExecutor, logger)

	// Initialize handlers
	deps.PaymentHandlers = handlers.NewPaymentHandlers(deps.InitiatePayment, deps.ProcessPayment, deps.RefundPayment, deps.GetPayment)
	deps.PaymentEventHandlers = handlers.NewPaymentEventHandlers(deps.PayForOrder)
	deps.EventRouter = deps.PaymentEventHandlers.Register(saga.NewEventRouter(saga.PaymentService, logger))

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
	if d.closeCache != nil {
		if err := d.closeCache(); err != nil {
			errs = append(errs, errors.Wrap(err, "failed to close redis"))
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
