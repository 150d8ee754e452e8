// Package chi is the HTTP transport for the gateway API.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fusegate/internal/domain"
	"github.com/kailas-cloud/fusegate/internal/domain/search/request"
	"github.com/kailas-cloud/fusegate/internal/metrics"
	healthuc "github.com/kailas-cloud/fusegate/internal/usecase/health"
	searchuc "github.com/kailas-cloud/fusegate/internal/usecase/search"
)

// Defaults holds request parameter defaults applied when the caller omits them.
type Defaults struct {
	K             int
	MaxK          int
	DefaultBudget time.Duration
}

// Server handles the gateway HTTP API.
type Server struct {
	search   *searchuc.Service
	health   *healthuc.Service
	defaults Defaults
	viewer   *metrics.TraceViewer
	logger   *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(
	search *searchuc.Service,
	health *healthuc.Service,
	defaults Defaults,
	viewer *metrics.TraceViewer,
	logger *zap.Logger,
) *Server {
	if defaults.K <= 0 {
		defaults.K = request.DefaultK
	}
	if defaults.MaxK <= 0 {
		defaults.MaxK = request.DefaultMaxK
	}
	if defaults.DefaultBudget <= 0 {
		defaults.DefaultBudget = time.Second
	}
	return &Server{
		search:   search,
		health:   health,
		defaults: defaults,
		viewer:   viewer,
		logger:   logger,
	}
}

// Routes mounts the API routes on a chi router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/v1/search", s.SearchDocuments)
	r.Get("/healthz", s.Liveness)
	r.Get("/readyz", s.Readiness)
}

type searchItem struct {
	ID      string          `json:"id"`
	Score   float64         `json:"score"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type searchTimings struct {
	TotalMS     int64            `json:"total_ms"`
	PerSourceMS map[string]int64 `json:"per_source_ms"`
	CacheHit    bool             `json:"cache_hit"`
}

type searchResponse struct {
	Items    []searchItem  `json:"items"`
	Timings  searchTimings `json:"timings"`
	RetCode  string        `json:"ret_code"`
	Degraded bool          `json:"degraded"`
	TraceURL string        `json:"trace_url,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SearchDocuments handles GET /v1/search.
func (s *Server) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	traceID := resolveTraceID(r)
	w.Header().Set("X-Trace-Id", traceID)

	req, err := s.parseSearchRequest(r, traceID)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(domain.CodeBadRequest), err.Error())
		return
	}

	resp, err := s.search.Search(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, string(domain.CodeBadRequest), err.Error())
			return
		}
		s.logger.Error("search failed",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, string(domain.CodeError), "internal error")
		return
	}

	items := make([]searchItem, len(resp.Items))
	for i := range resp.Items {
		items[i] = searchItem{
			ID:      resp.Items[i].ID(),
			Score:   resp.Items[i].Score(),
			Payload: resp.Items[i].Payload(),
		}
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Items: items,
		Timings: searchTimings{
			TotalMS:     resp.TotalMS,
			PerSourceMS: resp.PerSourceMS,
			CacheHit:    resp.CacheHit,
		},
		RetCode:  string(resp.Code),
		Degraded: resp.Degraded,
		TraceURL: s.viewer.URL(traceID),
	})
}

func (s *Server) parseSearchRequest(r *http.Request, traceID string) (request.Request, error) {
	q := r.URL.Query()

	k := s.defaults.K
	if raw := q.Get("k"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return request.Request{}, errors.New("k must be an integer")
		}
		k = v
	}

	budget := s.defaults.DefaultBudget
	if raw := q.Get("budget_ms"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return request.Request{}, errors.New("budget_ms must be an integer")
		}
		budget = time.Duration(v) * time.Millisecond
	}

	return request.New(q.Get("q"), k, budget, traceID, s.defaults.MaxK)
}

// resolveTraceID picks the trace id from the X-Trace-Id header, then the
// trace_id query parameter, then generates one.
func resolveTraceID(r *http.Request) string {
	if id := r.Header.Get("X-Trace-Id"); id != "" {
		return id
	}
	if id := r.URL.Query().Get("trace_id"); id != "" {
		return id
	}
	return uuid.NewString()
}

// Liveness handles GET /healthz.
func (s *Server) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readinessResponse struct {
	SourceOK    bool                            `json:"source_ok"`
	LastProbeMS int64                           `json:"last_probe_ms"`
	Checks      map[string]healthuc.CheckResult `json:"checks"`
}

// Readiness handles GET /readyz.
func (s *Server) Readiness(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if !report.SourceOK {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, readinessResponse{
		SourceOK:    report.SourceOK,
		LastProbeMS: report.ProbeMS,
		Checks:      report.Checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
