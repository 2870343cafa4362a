package clock

import (
	"sync"
	"time"
)

// Clock allows injecting time into domain code and use cases.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem returns a clock backed by time.Now.
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Stepping is a test clock that advances by a fixed step on every read, so
// consecutive timestamps are strictly increasing.
type Stepping struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewStepping returns a clock starting at start and advancing by step.
func NewStepping(start time.Time, step time.Duration) *Stepping {
	return &Stepping{now: start.UTC(), step: step}
}

func (s *Stepping) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now
	s.now = s.now.Add(s.step)
	return now
}
