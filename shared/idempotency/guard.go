// Package idempotency decides whether a side-effecting operation keyed by a
// natural key has already been applied.
//
// The store's uniqueness constraint is the source of truth. Admit is a
// pre-check that lets callers short-circuit obvious duplicates; two racing
// admits may both be Admitted, and the loser is rejected by the store on
// insert.
package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/neocommercepay/commerce-system/shared/apperrors"
)

// Decision is the result of Admit.
type Decision int

const (
	Admitted Decision = iota
	Duplicate
)

func (d Decision) String() string {
	if d == Duplicate {
		return "duplicate"
	}
	return "admitted"
}

// Lookup reports whether an entity already exists for key in the store.
type Lookup func(ctx context.Context, key string) (bool, error)

// Cache remembers committed keys. Implemented by the Redis cache.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	GenerateKey(operation, key string) string
}

// Guard checks natural keys for one operation, e.g. "initiate_payment".
type Guard struct {
	operation string
	lookup    Lookup
	cache     Cache
	ttl       time.Duration
	logger    *slog.Logger
}

// NewGuard creates a guard. cache may be nil.
func NewGuard(operation string, lookup Lookup, cache Cache, ttl time.Duration, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{operation: operation, lookup: lookup, cache: cache, ttl: ttl, logger: logger}
}

// Admit returns Duplicate when key was already applied.
func (g *Guard) Admit(ctx context.Context, key string) (Decision, error) {
	if key == "" {
		return Admitted, apperrors.New(apperrors.KindInvalid, "idempotency_key_required", "idempotency key is required")
	}

	if g.cache != nil {
		cached, err := g.cache.Get(ctx, g.cache.GenerateKey(g.operation, key))
		if err != nil {
			g.logger.WarnContext(ctx, "idempotency cache lookup failed", slog.String("error", err.Error()))
		} else if cached != "" {
			return Duplicate, nil
		}
	}

	exists, err := g.lookup(ctx, key)
	if err != nil {
		return Admitted, apperrors.Transient(errors.Wrap(err, "idempotency lookup"), g.operation)
	}
	if exists {
		g.Remember(ctx, key)
		return Duplicate, nil
	}
	return Admitted, nil
}

// Remember records a committed key in the cache. Failures are logged only.
func (g *Guard) Remember(ctx context.Context, key string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Set(ctx, g.cache.GenerateKey(g.operation, key), "1", g.ttl); err != nil {
		g.logger.WarnContext(ctx, "idempotency cache write failed", slog.String("error", err.Error()))
	}
}
