package domain

import "errors"

var (
	// ErrInvalidRequest signals a malformed search request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrCircuitOpen signals a call rejected by an open circuit breaker.
	ErrCircuitOpen = errors.New("circuit open")
	// ErrRateLimited signals a call rejected by the rate limiter.
	ErrRateLimited = errors.New("rate limited")
	// ErrUpstreamTimeout signals a call cut off by the budget or source timeout.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrUpstream signals a source failure after retries were exhausted.
	ErrUpstream = errors.New("upstream error")
)
