// Package config holds the configuration sections every service shares and
// the viper loading they all go through.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/neocommercepay/commerce-system/shared/retry"
)

const (
	BrokerMemory = "memory"
	BrokerSNSSQS = "sns_sqs"
	BrokerKafka  = "kafka"

	DatabasePostgres = "postgres"
	DatabaseMemory   = "memory"
)

// Base is embedded (squashed) by every service's Config.
type Base struct {
	ServiceName string    `mapstructure:"service_name"`
	Env         string    `mapstructure:"env"`
	Port        string    `mapstructure:"port"`
	LogLevel    string    `mapstructure:"log_level"`
	Database    Database  `mapstructure:"database"`
	Broker      Broker    `mapstructure:"broker"`
	AWS         AWS       `mapstructure:"aws"`
	Kafka       Kafka     `mapstructure:"kafka"`
	Redis       Redis     `mapstructure:"redis"`
	Retry       Retry     `mapstructure:"retry"`
	Telemetry   Telemetry `mapstructure:"telemetry"`
}

type Database struct {
	Driver       string `mapstructure:"driver"`
	URL          string `mapstructure:"url"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

type Broker struct {
	Driver        string        `mapstructure:"driver"`
	MaxDeliveries int           `mapstructure:"max_deliveries"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

type AWS struct {
	Region            string            `mapstructure:"region"`
	Endpoint          string            `mapstructure:"endpoint"`
	SNSTopicArn       string            `mapstructure:"sns_topic_arn"`
	SQSQueueURLs      map[string]string `mapstructure:"sqs_queue_urls"`
	SQSWorkers        int32             `mapstructure:"sqs_workers"`
	SQSReaders        int32             `mapstructure:"sqs_readers"`
	VisibilityTimeout int32             `mapstructure:"visibility_timeout"`
}

type Kafka struct {
	Brokers string `mapstructure:"brokers"`
}

type Redis struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type Retry struct {
	MaxAttempts uint          `mapstructure:"max_attempts"`
	Interval    time.Duration `mapstructure:"interval"`
	Exponential bool          `mapstructure:"exponential"`
	MaxInterval time.Duration `mapstructure:"max_interval"`
}

type Telemetry struct {
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	ServiceVersion string `mapstructure:"service_version"`
}

// Executor returns the retry policy in the shape the retry package wants.
func (r Retry) Executor() retry.Config {
	return retry.Config{
		MaxAttempts: r.MaxAttempts,
		Interval:    r.Interval,
		Exponential: r.Exponential,
		MaxInterval: r.MaxInterval,
	}
}

// GetDatabaseURL returns database.url when set, else builds it from parts.
func (b *Base) GetDatabaseURL() string {
	if b.Database.URL != "" {
		return b.Database.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		b.Database.User,
		b.Database.Password,
		b.Database.Host,
		b.Database.Port,
		b.Database.Database,
		b.Database.SSLMode,
	)
}

// Options control Load.
type Options struct {
	ServiceName string
	EnvPrefix   string
	ConfigDir   string
	DefaultPort string
	// Defaults sets service specific defaults.
	Defaults func(v *viper.Viper)
}

// Load reads <ConfigDir>/<ENVIRONMENT>.json (ENVIRONMENT defaults to
// "local"), applies <PREFIX>_SECTION_KEY environment overrides and decodes
// the result into target. A missing config file is not an error.
func Load(opts Options, target interface{}) error {
	v := viper.New()
	v.SetConfigName(configName())
	v.SetConfigType("json")
	if opts.ConfigDir != "" {
		v.AddConfigPath(opts.ConfigDir)
	}

	v.SetEnvPrefix(opts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, opts)
	if opts.Defaults != nil {
		opts.Defaults(v)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errors.Wrap(err, "error reading config file")
		}
	}

	if err := v.Unmarshal(target); err != nil {
		return errors.Wrap(err, "error unmarshaling config")
	}
	return nil
}

func configName() string {
	return getEnv("ENVIRONMENT", "local")
}

func setDefaults(v *viper.Viper, opts Options) {
	v.SetDefault("service_name", opts.ServiceName)
	v.SetDefault("env", configName())
	v.SetDefault("port", getEnv("PORT", opts.DefaultPort))
	v.SetDefault("log_level", "info")

	v.SetDefault("database.driver", DatabasePostgres)
	v.SetDefault("database.url", os.Getenv("DATABASE_URL"))
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.database", "commerce")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("broker.driver", BrokerSNSSQS)
	v.SetDefault("broker.max_deliveries", 5)
	v.SetDefault("broker.retry_interval", "2s")

	v.SetDefault("aws.region", getEnv("AWS_DEFAULT_REGION", "us-east-1"))
	v.SetDefault("aws.endpoint", getEnv("AWS_ENDPOINT_URL", ""))
	v.SetDefault("aws.sns_topic_arn", "arn:aws:sns:us-east-1:000000000000:commerce-events.fifo")
	v.SetDefault("aws.sqs_queue_urls", map[string]string{
		opts.ServiceName: "http://localhost:4566/000000000000/" + opts.ServiceName + ".fifo",
	})
	v.SetDefault("aws.sqs_workers", 10)
	v.SetDefault("aws.sqs_readers", 1)
	v.SetDefault("aws.visibility_timeout", 30)

	v.SetDefault("kafka.brokers", "localhost:9092")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "24h")

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.interval", "1s")
	v.SetDefault("retry.exponential", false)
	v.SetDefault("retry.max_interval", "10s")

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_version", "1.0.0")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
