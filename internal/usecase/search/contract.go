package search

import (
	"context"

	"github.com/kailas-cloud/fusegate/internal/domain/search/result"
)

// Source is a retrieval backend. The gateway depends on it only through this
// contract: issue a query and return ranked hits, or answer a liveness probe.
type Source interface {
	// Name identifies the source in timings, metrics, and cache keys.
	Name() string

	// Query returns up to topK ranked hits for the query text.
	Query(ctx context.Context, query string, topK int) ([]result.Result, error)

	// Ping answers a bounded liveness probe.
	Ping(ctx context.Context) error
}
