// Package redisource is a retrieval source backed by a RediSearch (Redis 8+)
// full-text index, queried via FT.SEARCH over rueidis.
package redisource

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/fusegate/internal/domain/search/result"
)

// Config holds connection and index settings.
type Config struct {
	Name     string
	Addrs    []string
	Username string
	Password string
	Index    string
}

// Source implements the gateway source contract over a RediSearch index.
type Source struct {
	name   string
	index  string
	client rueidis.Client
}

// New connects to the RediSearch backend.
func New(cfg Config) (*Source, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	if cfg.Index == "" {
		return nil, fmt.Errorf("index is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Source{name: cfg.Name, index: cfg.Index, client: client}, nil
}

// Name identifies the source.
func (s *Source) Name() string { return s.name }

// Query runs a scored full-text search via FT.SEARCH.
func (s *Source) Query(ctx context.Context, query string, topK int) ([]result.Result, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive")
	}

	cmd := s.client.B().Arbitrary("FT.SEARCH").Args(
		s.index, escapeQuery(query),
		"WITHSCORES",
		"LIMIT", "0", strconv.Itoa(topK),
		"DIALECT", "2",
	).Build()

	raw, err := s.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("ft.search %s: %w", s.index, err)
	}

	return parseScoredResult(raw)
}

// Ping checks connectivity.
func (s *Source) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Source) Close() {
	s.client.Close()
}

// WaitForReady polls Ping until the backend responds or timeout expires.
func (s *Source) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for source %s: %w", s.name, ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// parseScoredResult decodes a WITHSCORES FT.SEARCH reply.
// 3-stride: [total, key1, score1, fields1, key2, score2, fields2, ...].
// Document fields are folded into the opaque payload as a JSON object.
func parseScoredResult(raw []rueidis.RedisMessage) ([]result.Result, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	hits := make([]result.Result, 0, total)
	for i := 1; i+2 < len(raw); i += 3 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		scoreStr, err := raw[i+1].ToString()
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(scoreStr, 64)
		if err != nil {
			continue
		}

		fields, err := raw[i+2].ToArray()
		if err != nil {
			continue
		}

		payload, err := json.Marshal(parseFieldPairs(fields))
		if err != nil {
			continue
		}

		hits = append(hits, result.New(key, score, payload))
	}

	return hits, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// escapeQuery neutralizes RediSearch query syntax in user text.
var queryEscaper = strings.NewReplacer(
	"@", "\\@", "{", "\\{", "}", "\\}", "(", "\\(", ")", "\\)",
	"|", "\\|", "-", "\\-", "~", "\\~", "\"", "\\\"", "'", "\\'",
	":", "\\:", "*", "\\*", "%", "\\%",
)

func escapeQuery(q string) string {
	return queryEscaper.Replace(q)
}
