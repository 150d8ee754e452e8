package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/fusegate/internal/budget"
	"github.com/kailas-cloud/fusegate/internal/cache"
	"github.com/kailas-cloud/fusegate/internal/domain"
	"github.com/kailas-cloud/fusegate/internal/domain/search/request"
	"github.com/kailas-cloud/fusegate/internal/domain/search/result"
	"github.com/kailas-cloud/fusegate/internal/metrics"
	"github.com/kailas-cloud/fusegate/internal/resilience"
)

// GuardedSource pairs a source with the policy that gates calls to it.
type GuardedSource struct {
	Source Source
	Policy *resilience.Policy
}

// Config holds fusion and versioning settings.
type Config struct {
	// RRFK flattens rank influence in fusion; 0 means DefaultRRFK.
	RRFK int
	// TopKMax caps the fused result count regardless of the requested k.
	TopKMax int
	// PolicyVersion tags cache keys so policy rollouts invalidate prior entries.
	PolicyVersion string
}

// Response is the assembled gateway answer for one search request.
type Response struct {
	Items       []result.Result
	PerSourceMS map[string]int64
	TotalMS     int64
	CacheHit    bool
	Degraded    bool
	Code        domain.ResultCode
}

// Service orchestrates cache lookup, policy-wrapped source fan-out, fusion,
// and cache population.
type Service struct {
	sources []GuardedSource
	names   []string
	cache   *cache.Cache
	cfg     Config
	logger  *zap.Logger
}

// New creates a search service over one or more guarded sources.
func New(sources []GuardedSource, c *cache.Cache, cfg Config, logger *zap.Logger) *Service {
	if cfg.RRFK <= 0 {
		cfg.RRFK = DefaultRRFK
	}
	names := make([]string, len(sources))
	for i, gs := range sources {
		names[i] = gs.Source.Name()
	}
	return &Service{sources: sources, names: names, cache: c, cfg: cfg, logger: logger}
}

// Search executes one search request. Transient upstream failures (policy
// rejections, timeouts, exhausted retries) come back as a degraded Response
// with an empty item list; only internal errors are returned as error.
func (s *Service) Search(ctx context.Context, req request.Request) (Response, error) {
	start := time.Now()

	key := cache.Key(req.Query(), req.K(), s.names, s.cfg.RRFK, s.cfg.PolicyVersion)
	if e, ok := s.cache.Get(key, start); ok {
		metrics.SearchRequestsTotal.WithLabelValues(string(e.Code)).Inc()
		return Response{
			Items:       e.Items,
			PerSourceMS: e.PerSourceMS,
			TotalMS:     e.TotalMS,
			CacheHit:    true,
			Degraded:    e.Degraded,
			Code:        e.Code,
		}, nil
	}

	scope, err := budget.New(ctx, req.Budget())
	if err != nil {
		return Response{}, fmt.Errorf("%w: %s", domain.ErrInvalidRequest, err)
	}
	defer scope.Cancel()

	lists, perSource, qerr := s.queryAll(scope.Context(), req.Query(), req.K())

	resp := Response{PerSourceMS: perSource}

	switch {
	case qerr == nil:
		topK := req.K()
		if s.cfg.TopKMax > 0 && topK > s.cfg.TopKMax {
			topK = s.cfg.TopKMax
		}
		resp.Items = fuseRRF(lists, s.cfg.RRFK, topK)
		resp.Code = domain.CodeOK
	default:
		resp.Code = domain.CodeForError(qerr)
		if resp.Code == domain.CodeError {
			// Programming or config error, not a transient upstream condition.
			metrics.SearchRequestsTotal.WithLabelValues(string(domain.CodeError)).Inc()
			return Response{}, qerr
		}
		resp.Degraded = true
		s.logger.Warn("search degraded",
			zap.String("trace_id", req.TraceID()),
			zap.String("code", string(resp.Code)),
			zap.Error(qerr),
		)
	}

	// A result produced under budget pressure is degraded even when the
	// upstream call nominally succeeded.
	if scope.Hit() {
		resp.Degraded = true
	}

	resp.TotalMS = time.Since(start).Milliseconds()
	metrics.SearchRequestsTotal.WithLabelValues(string(resp.Code)).Inc()

	if resp.Code == domain.CodeOK && !resp.Degraded {
		s.cache.Set(key, cache.Entry{
			Items:       resp.Items,
			PerSourceMS: resp.PerSourceMS,
			TotalMS:     resp.TotalMS,
			Degraded:    resp.Degraded,
			Code:        resp.Code,
		}, time.Now())
	}

	return resp, nil
}

// queryAll fans out to every source concurrently and fails fast: the first
// failure cancels the sibling calls through the group context. Per-source
// elapsed time is recorded for every call, failed or cancelled included.
func (s *Service) queryAll(
	ctx context.Context, query string, topK int,
) ([][]result.Result, map[string]int64, error) {
	lists := make([][]result.Result, len(s.sources))
	perSource := make(map[string]int64, len(s.sources))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, gs := range s.sources {
		i, gs := i, gs
		g.Go(func() error {
			callStart := time.Now()
			var hits []result.Result
			err := gs.Policy.Execute(gctx, func(callCtx context.Context) error {
				var qerr error
				hits, qerr = gs.Source.Query(callCtx, query, topK)
				return qerr
			})

			mu.Lock()
			perSource[gs.Source.Name()] = time.Since(callStart).Milliseconds()
			mu.Unlock()

			if err != nil {
				return err
			}
			lists[i] = hits
			return nil
		})
	}

	err := g.Wait()
	return lists, perSource, err
}
