package config

import (
	"context"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/neocommercepay/commerce-system/shared/events"
	"github.com/neocommercepay/commerce-system/shared/idempotency"
	"github.com/neocommercepay/commerce-system/shared/infrastructure"
)

// BrokerClients is the event channel selected by broker.driver.
type BrokerClients struct {
	Publisher  events.Publisher
	Subscriber events.Subscriber
	closers    []func() error
}

// NewBrokerClients connects to the configured broker. bus is used for the
// memory driver; when nil a private bus is created.
func NewBrokerClients(ctx context.Context, cfg *Base, bus *infrastructure.InMemoryBus, logger *slog.Logger) (*BrokerClients, error) {
	switch cfg.Broker.Driver {
	case BrokerMemory:
		if bus == nil {
			bus = infrastructure.NewInMemoryBus(cfg.Broker.MaxDeliveries, logger)
		}
		return &BrokerClients{Publisher: bus, Subscriber: bus, closers: []func() error{bus.Close}}, nil

	case BrokerSNSSQS:
		settings := infrastructure.AWSSettings{Region: cfg.AWS.Region, Endpoint: cfg.AWS.Endpoint}
		awsCfg, err := infrastructure.LoadAWSConfig(ctx, settings)
		if err != nil {
			return nil, err
		}
		publisher := infrastructure.NewSNSEventPublisher(infrastructure.NewSNSClient(awsCfg, settings), cfg.AWS.SNSTopicArn)
		subscriber := infrastructure.NewSQSSubscriber(
			infrastructure.NewSQSClient(awsCfg, settings),
			cfg.AWS.SQSQueueURLs,
			publisher,
			logger,
			infrastructure.WithWorkers(cfg.AWS.SQSWorkers),
			infrastructure.WithReaders(cfg.AWS.SQSReaders),
			infrastructure.WithVisibilityTimeout(cfg.AWS.VisibilityTimeout),
			infrastructure.WithMaxReceiveCount(cfg.Broker.MaxDeliveries),
		)
		return &BrokerClients{Publisher: publisher, Subscriber: subscriber}, nil

	case BrokerKafka:
		brokers := infrastructure.ParseBrokers(cfg.Kafka.Brokers)
		if len(brokers) == 0 {
			return nil, errors.New("kafka.brokers is empty")
		}
		publisher := infrastructure.NewKafkaPublisher(brokers)
		subscriber := infrastructure.NewKafkaSubscriber(brokers, publisher, cfg.Broker.MaxDeliveries, cfg.Broker.RetryInterval, logger)
		return &BrokerClients{Publisher: publisher, Subscriber: subscriber, closers: []func() error{publisher.Close}}, nil
	}

	return nil, errors.Errorf("unknown broker driver %q", cfg.Broker.Driver)
}

// Close releases broker connections.
func (b *BrokerClients) Close() error {
	var errs []error
	for _, closeFn := range b.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("errors closing broker: %v", errs)
	}
	return nil
}

// NewIdempotencyCache returns the Redis cache when redis.enabled, else nil.
func NewIdempotencyCache(ctx context.Context, cfg *Base) (idempotency.Cache, func() error, error) {
	if !cfg.Redis.Enabled {
		return nil, func() error { return nil }, nil
	}
	cache := infrastructure.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.ServiceName)
	if err := cache.Ping(ctx); err != nil {
		_ = cache.Close()
		return nil, nil, errors.Wrap(err, "failed to ping redis")
	}
	return cache, cache.Close, nil
}

// OpenDatabase connects to Postgres and, when database.auto_migrate is set,
// applies schema.
func OpenDatabase(ctx context.Context, cfg *Base, schema string) (*sqlx.DB, error) {
	db, err := infrastructure.OpenPostgres(ctx, cfg.GetDatabaseURL(), cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate && schema != "" {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "failed to apply schema")
		}
	}
	return db, nil
}
