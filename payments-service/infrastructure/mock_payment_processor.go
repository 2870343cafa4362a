package infrastructure

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neocommercepay/commerce-system/payments-service/domain"
)

var _ domain.PaymentProcessor = (*MockPaymentProcessor)(nil)

// MockPaymentProcessor simulates an external gateway: every charge takes
// latency and is approved with probability approvalRate.
type MockPaymentProcessor struct {
	mu           sync.Mutex
	rnd          *rand.Rand
	latency      time.Duration
	approvalRate float64
}

// NewMockPaymentProcessor seeds its generator with seed, so a given seed
// always yields the same sequence of decisions.
func NewMockPaymentProcessor(latency time.Duration, approvalRate float64, seed int64) *MockPaymentProcessor {
	return &MockPaymentProcessor{
		rnd:          rand.New(rand.NewSource(seed)),
		latency:      latency,
		approvalRate: approvalRate,
	}
}

func (p *MockPaymentProcessor) Charge(ctx context.Context, _ domain.Payment) (domain.ChargeResult, error) {
	if p.latency > 0 {
		timer := time.NewTimer(p.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return domain.ChargeResult{}, ctx.Err()
		}
	}

	p.mu.Lock()
	approved := p.rnd.Float64() < p.approvalRate
	p.mu.Unlock()

	if !approved {
		return domain.ChargeResult{DeclineReason: "card declined by issuer"}, nil
	}
	return domain.ChargeResult{Approved: true, TransactionID: "TXN-" + uuid.NewString()}, nil
}
