package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the fusegate API configuration.
type Config struct {
	HTTP    HTTPConfig     `yaml:"http"`
	Search  SearchConfig   `yaml:"search"`
	Cache   CacheConfig    `yaml:"cache"`
	Trace   TraceConfig    `yaml:"trace"`
	Sources []SourceConfig `yaml:"sources"`
	Logging LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// SearchConfig holds request defaults and fusion settings.
type SearchConfig struct {
	DefaultK        int    `yaml:"default_k"`
	MaxK            int    `yaml:"max_k"`
	DefaultBudgetMS int    `yaml:"default_budget_ms"`
	RRFK            int    `yaml:"rrf_k"`
	PolicyVersion   string `yaml:"policy_version"`
	ProbeTimeoutMS  int    `yaml:"probe_timeout_ms"`
}

// CacheConfig holds response cache settings. TTLSec <= 0 disables caching.
type CacheConfig struct {
	TTLSec int `yaml:"ttl_sec"`
}

// TraceConfig holds external trace-viewer settings.
type TraceConfig struct {
	ViewerHost string `yaml:"viewer_host"`
	Project    string `yaml:"project"`
}

// SourceConfig holds per-source connection and policy settings.
type SourceConfig struct {
	Name   string `yaml:"name"`
	Driver string `yaml:"driver"` // http, redis (default: http)

	// http driver
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"`

	// redis driver
	Addrs               []string `yaml:"addrs"`
	Password            string   `yaml:"password"`
	Index               string   `yaml:"index"`
	ReadinessTimeoutSec int      `yaml:"readiness_timeout_sec"`

	TimeoutMS int             `yaml:"timeout_ms"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Retry     RetryConfig     `yaml:"retry"`
}

// RateLimitConfig holds token bucket settings. Capacity 0 disables rate limiting.
type RateLimitConfig struct {
	Capacity         int `yaml:"capacity"`
	RefillAmount     int `yaml:"refill_amount"`
	RefillIntervalMS int `yaml:"refill_interval_ms"`
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	WindowSec        int     `yaml:"window_sec"`
	FailureRate      float64 `yaml:"failure_rate"`
	MinSamples       int     `yaml:"min_samples"`
	CooldownSec      int     `yaml:"cooldown_sec"`
	HalfOpenMaxCalls int     `yaml:"half_open_max_calls"`
}

// RetryConfig holds upstream retry settings (http driver only).
type RetryConfig struct {
	MaxRetries   int `yaml:"max_retries"`
	BackoffMinMS int `yaml:"backoff_min_ms"`
	BackoffMaxMS int `yaml:"backoff_max_ms"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Search.DefaultK <= 0 {
		c.Search.DefaultK = 10
	}
	if c.Search.MaxK <= 0 {
		c.Search.MaxK = 100
	}
	if c.Search.DefaultBudgetMS <= 0 {
		c.Search.DefaultBudgetMS = 1000
	}
	if c.Search.RRFK <= 0 {
		c.Search.RRFK = 60
	}
	if c.Search.PolicyVersion == "" {
		c.Search.PolicyVersion = "v1"
	}
	if c.Search.ProbeTimeoutMS <= 0 {
		c.Search.ProbeTimeoutMS = 200
	}

	for i := range c.Sources {
		s := &c.Sources[i]
		if s.Driver == "" {
			s.Driver = "http"
		}
		if s.TimeoutMS <= 0 {
			s.TimeoutMS = 500
		}
		if s.ReadinessTimeoutSec <= 0 {
			s.ReadinessTimeoutSec = 10
		}
		if s.Breaker.WindowSec <= 0 {
			s.Breaker.WindowSec = 30
		}
		if s.Breaker.FailureRate <= 0 {
			s.Breaker.FailureRate = 0.5
		}
		if s.Breaker.MinSamples <= 0 {
			s.Breaker.MinSamples = 5
		}
		if s.Breaker.CooldownSec <= 0 {
			s.Breaker.CooldownSec = 15
		}
		if s.Breaker.HalfOpenMaxCalls <= 0 {
			s.Breaker.HalfOpenMaxCalls = 2
		}
		if s.RateLimit.Capacity > 0 {
			if s.RateLimit.RefillAmount <= 0 {
				s.RateLimit.RefillAmount = s.RateLimit.Capacity
			}
			if s.RateLimit.RefillIntervalMS <= 0 {
				s.RateLimit.RefillIntervalMS = 1000
			}
		}
		if s.Retry.MaxRetries <= 0 {
			s.Retry.MaxRetries = 2
		}
		if s.Retry.BackoffMinMS <= 0 {
			s.Retry.BackoffMinMS = 50
		}
		if s.Retry.BackoffMaxMS <= 0 {
			s.Retry.BackoffMaxMS = 1000
		}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	if c.Search.DefaultK > c.Search.MaxK {
		return fmt.Errorf("search.default_k %d exceeds search.max_k %d", c.Search.DefaultK, c.Search.MaxK)
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("sources[%d].name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate source name %q", s.Name)
		}
		seen[s.Name] = true

		switch s.Driver {
		case "http":
			if s.URL == "" {
				return fmt.Errorf("sources.%s.url is required for the http driver", s.Name)
			}
			if s.Collection == "" {
				return fmt.Errorf("sources.%s.collection is required for the http driver", s.Name)
			}
		case "redis":
			if len(s.Addrs) == 0 {
				return fmt.Errorf("sources.%s.addrs is required for the redis driver", s.Name)
			}
			if s.Index == "" {
				return fmt.Errorf("sources.%s.index is required for the redis driver", s.Name)
			}
		default:
			return fmt.Errorf("sources.%s.driver must be \"http\" or \"redis\", got %q", s.Name, s.Driver)
		}

		if s.Breaker.FailureRate > 1 {
			return fmt.Errorf("sources.%s.breaker.failure_rate must be in (0, 1], got %g", s.Name, s.Breaker.FailureRate)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
