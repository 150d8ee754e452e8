package request

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/fusegate/internal/domain"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 4096
	DefaultK       = 10
	DefaultMaxK    = 100
	MaxBudget      = 60 * time.Second
)

// Request is a validated search query. Out-of-range values are rejected at
// construction, never clamped.
type Request struct {
	query   string
	k       int
	budget  time.Duration
	traceID string
}

// New validates search parameters. maxK is the configured upper bound for k.
func New(query string, k int, budget time.Duration, traceID string, maxK int) (Request, error) {
	if maxK <= 0 {
		maxK = DefaultMaxK
	}
	if query == "" {
		return Request{}, fmt.Errorf("%w: query is required", domain.ErrInvalidRequest)
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrInvalidRequest, MaxQueryLength)
	}
	if k < 1 || k > maxK {
		return Request{}, fmt.Errorf("%w: k must be between 1 and %d, got %d", domain.ErrInvalidRequest, maxK, k)
	}
	if budget <= 0 {
		return Request{}, fmt.Errorf("%w: budget_ms must be positive", domain.ErrInvalidRequest)
	}
	if budget > MaxBudget {
		return Request{}, fmt.Errorf("%w: budget_ms exceeds %dms", domain.ErrInvalidRequest, MaxBudget.Milliseconds())
	}

	return Request{query: query, k: k, budget: budget, traceID: traceID}, nil
}

// Query returns the search query text.
func (r *Request) Query() string { return r.query }

// K returns the requested result count.
func (r *Request) K() int { return r.k }

// Budget returns the caller's wall-clock budget.
func (r *Request) Budget() time.Duration { return r.budget }

// TraceID returns the request trace identifier.
func (r *Request) TraceID() string { return r.traceID }
