package infrastructure

import (
	"context"
	"sync"
)

type memoryTxKey struct{}

// MemoryUnitOfWork serializes units of work for in-memory repositories.
// Nested calls join the outer unit.
type MemoryUnitOfWork struct {
	mu sync.Mutex
}

func NewMemoryUnitOfWork() *MemoryUnitOfWork {
	return &MemoryUnitOfWork{}
}

func (u *MemoryUnitOfWork) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memoryTxKey{}) == u {
		return fn(ctx)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return fn(context.WithValue(ctx, memoryTxKey{}, u))
}
