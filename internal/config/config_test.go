package config

import "testing"

func validConfig() Config {
	return Config{
		HTTP: HTTPConfig{Port: 8080},
		Sources: []SourceConfig{
			{Name: "docs", Driver: "http", URL: "http://localhost:9200", Collection: "articles"},
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_NoSources(t *testing.T) {
	cfg := validConfig()
	cfg.Sources = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing sources")
	}
}

func TestValidate_HTTPSourceRequiresURL(t *testing.T) {
	cfg := validConfig()
	cfg.Sources[0].URL = ""
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for http source without url")
	}
}

func TestValidate_RedisSourceRequiresIndex(t *testing.T) {
	cfg := validConfig()
	cfg.Sources[0] = SourceConfig{
		Name:   "kw",
		Driver: "redis",
		Addrs:  []string{"localhost:6379"},
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for redis source without index")
	}
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Sources[0].Driver = "grpc"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}

	expected := `sources.docs.driver must be "http" or "redis", got "grpc"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_DuplicateSourceNames(t *testing.T) {
	cfg := validConfig()
	cfg.Sources = append(cfg.Sources, cfg.Sources[0])

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for duplicate source name")
	}
}

func TestValidate_DefaultKOverMaxK(t *testing.T) {
	cfg := validConfig()
	cfg.Search.DefaultK = 200
	cfg.Search.MaxK = 100

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for default_k > max_k")
	}
}

func TestValidate_FailureRateOverOne(t *testing.T) {
	cfg := validConfig()
	cfg.Sources[0].Breaker.FailureRate = 1.5

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for failure_rate > 1")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.ApplyDefaults()

	if cfg.Search.DefaultK != 10 || cfg.Search.MaxK != 100 {
		t.Errorf("unexpected search defaults: %+v", cfg.Search)
	}
	if cfg.Search.RRFK != 60 {
		t.Errorf("expected rrf_k default 60, got %d", cfg.Search.RRFK)
	}
	if cfg.Sources[0].TimeoutMS != 500 {
		t.Errorf("expected source timeout default 500, got %d", cfg.Sources[0].TimeoutMS)
	}
	if cfg.Sources[0].ReadinessTimeoutSec != 10 {
		t.Errorf("expected readiness timeout default 10, got %d", cfg.Sources[0].ReadinessTimeoutSec)
	}
	if cfg.Sources[0].Breaker.MinSamples != 5 {
		t.Errorf("unexpected breaker defaults: %+v", cfg.Sources[0].Breaker)
	}
}

func TestApplyDefaults_RateLimitDisabledStaysDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.ApplyDefaults()

	if cfg.Sources[0].RateLimit.Capacity != 0 {
		t.Error("zero capacity must stay zero (rate limiting off)")
	}
	if cfg.Sources[0].RateLimit.RefillAmount != 0 {
		t.Error("refill defaults must not apply to a disabled limiter")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FUSEGATE_TEST_HOST", "redis.internal")

	out := string(expandEnvVars([]byte("addr: ${FUSEGATE_TEST_HOST}:6379\nother: ${FUSEGATE_MISSING:-fallback}")))
	if out != "addr: redis.internal:6379\nother: fallback" {
		t.Errorf("unexpected expansion: %q", out)
	}
}
