// Package resilience composes per-source admission control (circuit breaker,
// token bucket) and a per-call timeout around a single upstream call.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fusegate/internal/domain"
	"github.com/kailas-cloud/fusegate/internal/metrics"
	"github.com/kailas-cloud/fusegate/internal/resilience/breaker"
	"github.com/kailas-cloud/fusegate/internal/resilience/ratelimit"
)

// Policy guards calls to one source. Durable state (breaker window, bucket
// tokens) is shared across all requests; Execute itself is stateless.
type Policy struct {
	source  string
	timeout time.Duration
	breaker *breaker.Breaker
	bucket  *ratelimit.Bucket
	logger  *zap.Logger
}

// New creates a policy for the named source. bucket may be nil (no rate limit).
func New(
	source string,
	timeout time.Duration,
	brk *breaker.Breaker,
	bucket *ratelimit.Bucket,
	logger *zap.Logger,
) *Policy {
	return &Policy{
		source:  source,
		timeout: timeout,
		breaker: brk,
		bucket:  bucket,
		logger:  logger,
	}
}

// Source returns the guarded source name.
func (p *Policy) Source() string { return p.source }

// Execute runs fn under the policy: circuit gate, rate gate, then a sub-context
// bounded by the source timeout (and, via nesting, by any remaining budget on
// ctx). The outcome and latency are recorded for every path, including the
// synthetic zero-duration observation for circuit rejections.
func (p *Policy) Execute(ctx context.Context, fn func(context.Context) error) error {
	now := time.Now()

	if !p.breaker.Allow(now) {
		metrics.SourceRequestDuration.WithLabelValues(p.source, "rejected").Observe(0)
		metrics.SourceErrorsTotal.WithLabelValues(p.source, "circuit_open").Inc()
		return fmt.Errorf("source %s: %w", p.source, domain.ErrCircuitOpen)
	}

	// A throttle is not a fault: rejected calls never feed the breaker. The
	// admitted probe slot goes back, or a half-open breaker would wait forever
	// for an outcome that never comes.
	if !p.bucket.Allow(now) {
		p.breaker.ReleaseProbe()
		metrics.SourceErrorsTotal.WithLabelValues(p.source, "rate_limited").Inc()
		return fmt.Errorf("source %s: %w", p.source, domain.ErrRateLimited)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	elapsed := time.Since(start)

	p.breaker.Record(time.Now(), err == nil)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.SourceRequestDuration.WithLabelValues(p.source, status).Observe(elapsed.Seconds())

	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		metrics.SourceErrorsTotal.WithLabelValues(p.source, "timeout").Inc()
		p.logger.Warn("source call timed out",
			zap.String("source", p.source),
			zap.Duration("elapsed", elapsed),
			zap.Duration("timeout", p.timeout),
		)
		return fmt.Errorf("source %s: %w", p.source, domain.ErrUpstreamTimeout)
	}

	metrics.SourceErrorsTotal.WithLabelValues(p.source, "upstream").Inc()
	p.logger.Warn("source call failed",
		zap.String("source", p.source),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
	)
	return fmt.Errorf("source %s: %w: %w", p.source, domain.ErrUpstream, err)
}
