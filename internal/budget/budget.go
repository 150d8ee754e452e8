// Package budget derives deadline-bound execution scopes from per-request
// latency budgets and reports whether the deadline fired.
package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kailas-cloud/fusegate/internal/metrics"
)

// Scope is a cancellable execution scope bounded by a wall-clock budget.
// Created per request; not shared.
type Scope struct {
	ctx     context.Context
	cancel  context.CancelFunc
	hitOnce sync.Once
}

// New derives a scope from parent that auto-cancels after d. d == 0 means no
// deadline; d < 0 is a validation error.
func New(parent context.Context, d time.Duration) (*Scope, error) {
	if d < 0 {
		return nil, fmt.Errorf("budget must not be negative, got %v", d)
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if d == 0 {
		ctx, cancel = context.WithCancel(parent)
	} else {
		ctx, cancel = context.WithTimeout(parent, d)
	}

	return &Scope{ctx: ctx, cancel: cancel}, nil
}

// Context returns the deadline-bound context.
func (s *Scope) Context() context.Context { return s.ctx }

// Remaining returns the time left before the deadline, or 0 when the scope has
// no deadline.
func (s *Scope) Remaining(now time.Time) time.Duration {
	dl, ok := s.ctx.Deadline()
	if !ok {
		return 0
	}
	if rem := dl.Sub(now); rem > 0 {
		return rem
	}
	return 0
}

// Cancel releases the scope. Safe to call multiple times and concurrently with
// the deadline firing.
func (s *Scope) Cancel() {
	s.cancel()
	if s.deadlineFired() {
		s.hitOnce.Do(metrics.BudgetExhaustedTotal.Inc)
	}
}

// Hit reports whether the scope ended because the deadline fired, as opposed
// to explicit cancellation or normal completion.
func (s *Scope) Hit() bool {
	return s.deadlineFired()
}

func (s *Scope) deadlineFired() bool {
	return errors.Is(s.ctx.Err(), context.DeadlineExceeded)
}
