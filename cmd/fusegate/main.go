package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fusegate/internal/cache"
	"github.com/kailas-cloud/fusegate/internal/config"
	logpkg "github.com/kailas-cloud/fusegate/internal/logger"
	"github.com/kailas-cloud/fusegate/internal/metrics"
	"github.com/kailas-cloud/fusegate/internal/resilience"
	"github.com/kailas-cloud/fusegate/internal/resilience/breaker"
	"github.com/kailas-cloud/fusegate/internal/resilience/ratelimit"
	chiTransport "github.com/kailas-cloud/fusegate/internal/transport/chi"
	"github.com/kailas-cloud/fusegate/internal/transport/httpsource"
	"github.com/kailas-cloud/fusegate/internal/transport/redisource"
	healthuc "github.com/kailas-cloud/fusegate/internal/usecase/health"
	searchuc "github.com/kailas-cloud/fusegate/internal/usecase/search"
	"github.com/kailas-cloud/fusegate/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting fusegate API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Int("sources", len(cfg.Sources)),
	)

	// Register gateway metrics explicitly (no init())
	metrics.RegisterGatewayMetrics()

	// Build guarded sources — composition root
	guarded := make([]searchuc.GuardedSource, 0, len(cfg.Sources))
	pingers := make([]healthuc.SourcePinger, 0, len(cfg.Sources))
	var closers []func()

	for _, sc := range cfg.Sources {
		src, closer, err := buildSource(sc, logger)
		if err != nil {
			logger.Fatal("Failed to create source",
				zap.String("source", sc.Name),
				zap.Error(err),
			)
		}
		if closer != nil {
			closers = append(closers, closer)
		}

		guarded = append(guarded, searchuc.GuardedSource{
			Source: src,
			Policy: buildPolicy(sc, logger),
		})
		pingers = append(pingers, src)

		logger.Info("Source configured",
			zap.String("source", sc.Name),
			zap.String("driver", sc.Driver),
			zap.Int("timeout_ms", sc.TimeoutMS),
		)
	}
	defer func() {
		for _, c := range closers {
			c()
		}
	}()

	respCache := cache.New(time.Duration(cfg.Cache.TTLSec) * time.Second)

	searchSvc := searchuc.New(guarded, respCache, searchuc.Config{
		RRFK:          cfg.Search.RRFK,
		TopKMax:       cfg.Search.MaxK,
		PolicyVersion: cfg.Search.PolicyVersion,
	}, logger)

	healthSvc := healthuc.New(pingers, time.Duration(cfg.Search.ProbeTimeoutMS)*time.Millisecond)

	viewer := metrics.NewTraceViewer(cfg.Trace.ViewerHost, cfg.Trace.Project)

	server := chiTransport.NewServer(searchSvc, healthSvc, chiTransport.Defaults{
		K:             cfg.Search.DefaultK,
		MaxK:          cfg.Search.MaxK,
		DefaultBudget: time.Duration(cfg.Search.DefaultBudgetMS) * time.Millisecond,
	}, viewer, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildSource creates the concrete retrieval source for one config entry.
// The second return value is a close function for drivers that hold
// connections, nil otherwise.
func buildSource(sc config.SourceConfig, logger *zap.Logger) (searchuc.Source, func(), error) {
	switch sc.Driver {
	case "http":
		return httpsource.New(httpsource.Config{
			Name:       sc.Name,
			BaseURL:    sc.URL,
			Collection: sc.Collection,
			MaxRetries: sc.Retry.MaxRetries,
			BackoffMin: time.Duration(sc.Retry.BackoffMinMS) * time.Millisecond,
			BackoffMax: time.Duration(sc.Retry.BackoffMaxMS) * time.Millisecond,
			Logger:     logger,
		}), nil, nil
	case "redis":
		src, err := redisource.New(redisource.Config{
			Name:     sc.Name,
			Addrs:    sc.Addrs,
			Password: sc.Password,
			Index:    sc.Index,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("redis source %s: %w", sc.Name, err)
		}

		// Wait for the backend before serving traffic.
		readiness := time.Duration(sc.ReadinessTimeoutSec) * time.Second
		if err := src.WaitForReady(context.Background(), readiness); err != nil {
			src.Close()
			return nil, nil, fmt.Errorf("redis source %s: %w", sc.Name, err)
		}
		return src, src.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown source driver %q", sc.Driver)
	}
}

// buildPolicy wires the breaker, rate limiter, and timeout for one source.
// Breaker transitions feed the circuit state gauge.
func buildPolicy(sc config.SourceConfig, logger *zap.Logger) *resilience.Policy {
	name := sc.Name

	brkCfg := breaker.Config{
		Window:           time.Duration(sc.Breaker.WindowSec) * time.Second,
		FailureRate:      sc.Breaker.FailureRate,
		MinSamples:       sc.Breaker.MinSamples,
		Cooldown:         time.Duration(sc.Breaker.CooldownSec) * time.Second,
		HalfOpenMaxCalls: sc.Breaker.HalfOpenMaxCalls,
		OnStateChange: func(from, to breaker.State) {
			metrics.CircuitState.WithLabelValues(name).Set(circuitGaugeValue(to))
			logger.Warn("circuit state changed",
				zap.String("source", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	var bucket *ratelimit.Bucket
	if sc.RateLimit.Capacity > 0 {
		bucket = ratelimit.New(
			sc.RateLimit.Capacity,
			sc.RateLimit.RefillAmount,
			time.Duration(sc.RateLimit.RefillIntervalMS)*time.Millisecond,
		)
	}

	return resilience.New(
		name,
		time.Duration(sc.TimeoutMS)*time.Millisecond,
		breaker.New(brkCfg),
		bucket,
		logger,
	)
}

func circuitGaugeValue(s breaker.State) float64 {
	switch s {
	case breaker.StateHalfOpen:
		return 1
	case breaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
