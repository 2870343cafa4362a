// Package retry runs operations that may fail transiently with a bounded
// number of attempts.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/neocommercepay/commerce-system/shared/apperrors"
)

// Config is the retry policy.
type Config struct {
	MaxAttempts uint          `mapstructure:"max_attempts"`
	Interval    time.Duration `mapstructure:"interval"`
	Exponential bool          `mapstructure:"exponential"`
	MaxInterval time.Duration `mapstructure:"max_interval"`
}

// DefaultConfig is three attempts one second apart.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Interval:    time.Second,
		MaxInterval: 10 * time.Second,
	}
}

// Executor retries operations according to Config.
type Executor struct {
	cfg    Config
	logger *slog.Logger
}

func NewExecutor(cfg Config, logger *slog.Logger) *Executor {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{cfg: cfg, logger: logger}
}

// Execute runs op until it succeeds, fails with a non-transient error, or the
// attempt budget is spent. In the last case the final error is returned
// wrapped as apperrors.KindExhausted.
func (e *Executor) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Do(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do is Execute for operations that produce a value.
func Do[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	var attempts uint
	result, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		res, err := op(ctx)
		if err != nil && !apperrors.IsRetryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(e.newBackOff()),
		backoff.WithMaxTries(e.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			e.logger.WarnContext(ctx, "operation failed, retrying",
				slog.Uint64("attempt", uint64(attempts)),
				slog.Duration("next_in", next),
				slog.String("error", err.Error()))
		}),
	)
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil || !apperrors.IsRetryable(err) {
		return result, err
	}
	return result, apperrors.Exhausted(err, attempts)
}

func (e *Executor) newBackOff() backoff.BackOff {
	if !e.cfg.Exponential {
		return backoff.NewConstantBackOff(e.cfg.Interval)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.Interval
	if e.cfg.MaxInterval > 0 {
		b.MaxInterval = e.cfg.MaxInterval
	}
	return b
}
