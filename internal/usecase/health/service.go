package health

import (
	"context"
	"time"
)

// DefaultProbeTimeout bounds the readiness probe against each source.
const DefaultProbeTimeout = 200 * time.Millisecond

// CheckResult represents an individual source probe outcome.
type CheckResult string

const (
	// CheckOK indicates a passing probe.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing probe.
	CheckError CheckResult = "error"
)

// Report aggregates readiness probe results.
type Report struct {
	SourceOK bool
	ProbeMS  int64
	Checks   map[string]CheckResult
}

// Service coordinates readiness probes against the configured sources.
type Service struct {
	sources      []SourcePinger
	probeTimeout time.Duration
}

// New creates a Service. probeTimeout <= 0 falls back to DefaultProbeTimeout.
func New(sources []SourcePinger, probeTimeout time.Duration) *Service {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	return &Service{sources: sources, probeTimeout: probeTimeout}
}

// Check probes every source with a bounded deadline and reports the outcome.
func (s *Service) Check(ctx context.Context) Report {
	start := time.Now()
	checks := make(map[string]CheckResult, len(s.sources))
	ok := true

	for _, src := range s.sources {
		probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
		if err := src.Ping(probeCtx); err != nil {
			checks[src.Name()] = CheckError
			ok = false
		} else {
			checks[src.Name()] = CheckOK
		}
		cancel()
	}

	return Report{
		SourceOK: ok,
		ProbeMS:  time.Since(start).Milliseconds(),
		Checks:   checks,
	}
}
