package idempotency

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neocommercepay/commerce-system/shared/apperrors"
)

type memoryCache struct {
	values map[string]string
	getErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]string{}}
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.values[key] = fmt.Sprint(value)
	return nil
}

func (c *memoryCache) Get(_ context.Context, key string) (string, error) {
	if c.getErr != nil {
		return "", c.getErr
	}
	return c.values[key], nil
}

func (c *memoryCache) GenerateKey(operation, key string) string {
	return "payment:" + operation + ":" + key
}

func storeWith(keys ...string) (Lookup, *int) {
	calls := 0
	set := map[string]bool{}
	for _, k := range keys {
		set[k] = true
	}
	return func(ctx context.Context, key string) (bool, error) {
		calls++
		return set[key], nil
	}, &calls
}

func TestGuard_Admit(t *testing.T) {
	t.Run("new key is admitted", func(t *testing.T) {
		lookup, _ := storeWith()
		guard := NewGuard("initiate_payment", lookup, nil, time.Hour, nil)

		decision, err := guard.Admit(context.Background(), "k1")

		require.NoError(t, err)
		assert.Equal(t, Admitted, decision)
	})

	t.Run("existing key is duplicate and gets cached", func(t *testing.T) {
		lookup, calls := storeWith("k1")
		cache := newMemoryCache()
		guard := NewGuard("initiate_payment", lookup, cache, time.Hour, nil)

		first, err := guard.Admit(context.Background(), "k1")
		require.NoError(t, err)
		second, err := guard.Admit(context.Background(), "k1")
		require.NoError(t, err)

		assert.Equal(t, Duplicate, first)
		assert.Equal(t, Duplicate, second)
		assert.Equal(t, 1, *calls, "second admit is answered by the cache")
		assert.Equal(t, "1", cache.values["payment:initiate_payment:k1"])
	})

	t.Run("cache failure falls back to the store", func(t *testing.T) {
		lookup, calls := storeWith("k1")
		cache := newMemoryCache()
		cache.getErr = errors.New("redis down")
		guard := NewGuard("initiate_payment", lookup, cache, time.Hour, nil)

		decision, err := guard.Admit(context.Background(), "k1")

		require.NoError(t, err)
		assert.Equal(t, Duplicate, decision)
		assert.Equal(t, 1, *calls)
	})

	t.Run("store failure is transient", func(t *testing.T) {
		guard := NewGuard("initiate_payment", func(ctx context.Context, key string) (bool, error) {
			return false, errors.New("connection reset")
		}, nil, time.Hour, nil)

		_, err := guard.Admit(context.Background(), "k1")

		require.Error(t, err)
		assert.True(t, apperrors.IsRetryable(err))
	})

	t.Run("empty key is invalid", func(t *testing.T) {
		lookup, _ := storeWith()
		guard := NewGuard("initiate_payment", lookup, nil, time.Hour, nil)

		_, err := guard.Admit(context.Background(), "")

		assert.Equal(t, apperrors.KindInvalid, apperrors.KindOf(err))
	})
}
