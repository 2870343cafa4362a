package retry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neocommercepay/commerce-system/shared/apperrors"
)

func fastExecutor(attempts uint) *Executor {
	return NewExecutor(Config{MaxAttempts: attempts, Interval: time.Millisecond}, nil)
}

func TestExecutor_Execute(t *testing.T) {
	errTransient := errors.New("connection refused")

	tests := []struct {
		name         string
		failures     []error
		wantCalls    int
		wantErr      bool
		wantKind     apperrors.Kind
		wantContains string
	}{
		{
			name:      "succeeds first time",
			wantCalls: 1,
		},
		{
			name:      "recovers from transient failures",
			failures:  []error{errTransient, errTransient},
			wantCalls: 3,
		},
		{
			name:         "gives up as exhausted",
			failures:     []error{errTransient, errTransient, errTransient, errTransient},
			wantCalls:    3,
			wantErr:      true,
			wantKind:     apperrors.KindExhausted,
			wantContains: "retry exhausted after 3 attempts: connection refused",
		},
		{
			name:         "business errors are not retried",
			failures:     []error{apperrors.BusinessRule("insufficient_stock", "insufficient stock")},
			wantCalls:    1,
			wantErr:      true,
			wantKind:     apperrors.KindBusinessRule,
			wantContains: "insufficient stock",
		},
		{
			name:      "not found is not retried",
			failures:  []error{errors.Wrap(apperrors.NotFound("inventory_not_found", "missing"), "decrement")},
			wantCalls: 1,
			wantErr:   true,
			wantKind:  apperrors.KindNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := fastExecutor(3).Execute(context.Background(), func(ctx context.Context) error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperrors.KindOf(err))
			if tt.wantContains != "" {
				assert.Contains(t, err.Error(), tt.wantContains)
			}
		})
	}
}

func TestDo_ReturnsValue(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastExecutor(2), func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", context.DeadlineExceeded
		}
		return "tx-1", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "tx-1", got)
	assert.Equal(t, 2, calls)
}

func TestExecutor_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	executor := NewExecutor(Config{MaxAttempts: 5, Interval: time.Hour}, nil)

	err := executor.Execute(ctx, func(ctx context.Context) error {
		cancel()
		return errors.New("flaky")
	})

	require.Error(t, err)
	assert.NotEqual(t, apperrors.KindExhausted, apperrors.KindOf(err))
}
