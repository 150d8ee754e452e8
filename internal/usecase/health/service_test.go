package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

// --- Mocks ---

type mockPinger struct {
	name string
	err  error
	slow bool
}

func (m *mockPinger) Name() string { return m.name }

func (m *mockPinger) Ping(ctx context.Context) error {
	if m.slow {
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New([]SourcePinger{&mockPinger{name: "s1"}, &mockPinger{name: "s2"}}, 0)
	r := svc.Check(context.Background())

	if !r.SourceOK {
		t.Error("expected source_ok=true")
	}
	if r.Checks["s1"] != CheckOK || r.Checks["s2"] != CheckOK {
		t.Errorf("unexpected checks: %v", r.Checks)
	}
}

func TestCheck_OneSourceDown(t *testing.T) {
	svc := New([]SourcePinger{
		&mockPinger{name: "s1"},
		&mockPinger{name: "s2", err: errors.New("conn refused")},
	}, 0)
	r := svc.Check(context.Background())

	if r.SourceOK {
		t.Error("expected source_ok=false")
	}
	if r.Checks["s1"] != CheckOK {
		t.Errorf("expected s1 ok, got %v", r.Checks["s1"])
	}
	if r.Checks["s2"] != CheckError {
		t.Errorf("expected s2 error, got %v", r.Checks["s2"])
	}
}

func TestCheck_ProbeIsBounded(t *testing.T) {
	svc := New([]SourcePinger{&mockPinger{name: "s1", slow: true}}, 50*time.Millisecond)

	start := time.Now()
	r := svc.Check(context.Background())
	elapsed := time.Since(start)

	if r.SourceOK {
		t.Error("a hanging source must fail the probe")
	}
	if elapsed > time.Second {
		t.Errorf("probe must be bounded by the timeout, took %v", elapsed)
	}
	if r.ProbeMS < 0 {
		t.Errorf("unexpected probe duration %d", r.ProbeMS)
	}
}

func TestCheck_NoSources(t *testing.T) {
	svc := New(nil, 0)
	r := svc.Check(context.Background())

	if !r.SourceOK {
		t.Error("no sources configured means ready")
	}
	if len(r.Checks) != 0 {
		t.Errorf("unexpected checks: %v", r.Checks)
	}
}
