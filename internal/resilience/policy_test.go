package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fusegate/internal/domain"
	"github.com/kailas-cloud/fusegate/internal/resilience/breaker"
	"github.com/kailas-cloud/fusegate/internal/resilience/ratelimit"
)

func newTestPolicy(brk *breaker.Breaker, bucket *ratelimit.Bucket) *Policy {
	return New("test-src", 100*time.Millisecond, brk, bucket, zap.NewNop())
}

func trippedBreaker() *breaker.Breaker {
	b := breaker.New(breaker.Config{
		Window:      10 * time.Second,
		FailureRate: 0.5,
		MinSamples:  2,
		Cooldown:    time.Hour,
	})
	now := time.Now()
	b.Record(now, false)
	b.Record(now, false)
	return b
}

func TestExecute_Success(t *testing.T) {
	p := newTestPolicy(breaker.New(breaker.Config{}), nil)

	called := false
	err := p.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		if _, ok := ctx.Deadline(); !ok {
			t.Error("call context must carry the source timeout")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("fn was not invoked")
	}
}

func TestExecute_CircuitOpenRejectsWithoutCall(t *testing.T) {
	p := newTestPolicy(trippedBreaker(), nil)

	called := false
	err := p.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn must not run when the circuit is open")
	}
}

func TestExecute_RateLimitedDoesNotFeedBreaker(t *testing.T) {
	brk := breaker.New(breaker.Config{
		Window:      10 * time.Second,
		FailureRate: 0.5,
		MinSamples:  1,
	})
	bucket := ratelimit.New(1, 1, time.Hour)
	p := newTestPolicy(brk, bucket)

	// First call drains the bucket.
	if err := p.Execute(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("first call: %v", err)
	}

	called := false
	err := p.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if called {
		t.Error("fn must not run when rate limited")
	}
	if brk.State() != breaker.StateClosed {
		t.Error("rate-limit rejections must not trip the breaker")
	}
}

func TestExecute_RateLimitedInHalfOpenReleasesProbeSlot(t *testing.T) {
	brk := breaker.New(breaker.Config{
		Window:           10 * time.Second,
		FailureRate:      0.5,
		MinSamples:       2,
		Cooldown:         10 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	})
	bucket := ratelimit.New(1, 0, 0) // one token, never refills
	p := newTestPolicy(brk, bucket)

	now := time.Now()
	brk.Record(now, false)
	brk.Record(now, false)
	bucket.Allow(now) // drain
	time.Sleep(15 * time.Millisecond)

	// The post-cooldown probe is admitted by the breaker but rejected by the
	// rate limiter; its slot must go back or the breaker is wedged half-open.
	err := p.Execute(context.Background(), func(context.Context) error { return nil })
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	err = p.Execute(context.Background(), func(context.Context) error { return nil })
	if errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatal("breaker must still admit a probe after a rate-limited rejection")
	}
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if brk.State() != breaker.StateHalfOpen {
		t.Errorf("expected half-open, got %v", brk.State())
	}
	if !brk.Allow(time.Now()) {
		t.Error("probe slot must be free for the next call")
	}
}

func TestExecute_TimeoutMapped(t *testing.T) {
	p := newTestPolicy(breaker.New(breaker.Config{}), nil)

	err := p.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, domain.ErrUpstreamTimeout) {
		t.Fatalf("expected ErrUpstreamTimeout, got %v", err)
	}
}

func TestExecute_FailuresTripBreaker(t *testing.T) {
	brk := breaker.New(breaker.Config{
		Window:      10 * time.Second,
		FailureRate: 0.5,
		MinSamples:  2,
		Cooldown:    time.Hour,
	})
	p := newTestPolicy(brk, nil)

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		err := p.Execute(context.Background(), func(context.Context) error { return boom })
		if !errors.Is(err, domain.ErrUpstream) {
			t.Fatalf("expected ErrUpstream, got %v", err)
		}
	}

	if brk.State() != breaker.StateOpen {
		t.Fatalf("two failures must open the breaker, got %v", brk.State())
	}

	err := p.Execute(context.Background(), func(context.Context) error { return nil })
	if !errors.Is(err, domain.ErrCircuitOpen) {
		t.Errorf("expected circuit-open rejection, got %v", err)
	}
}

func TestExecute_ParentDeadlineWins(t *testing.T) {
	p := New("test-src", time.Hour, breaker.New(breaker.Config{}), nil, zap.NewNop())

	parent, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Execute(parent, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, domain.ErrUpstreamTimeout) {
		t.Fatalf("expected ErrUpstreamTimeout from the parent deadline, got %v", err)
	}
}
