package domain

import (
	"context"
	"errors"
)

// ResultCode classifies the outcome of a search request.
type ResultCode string

const (
	// CodeOK indicates a fully successful response.
	CodeOK ResultCode = "OK"
	// CodeBadRequest indicates a validation failure.
	CodeBadRequest ResultCode = "BAD_REQUEST"
	// CodeUpstreamTimeout indicates the budget or source timeout fired mid-call.
	CodeUpstreamTimeout ResultCode = "UPSTREAM_TIMEOUT"
	// CodeDegraded indicates a policy rejection or exhausted upstream retries.
	CodeDegraded ResultCode = "DEGRADED"
	// CodeError indicates an internal error.
	CodeError ResultCode = "ERROR"
)

// CodeForError maps a pipeline error to a result code.
func CodeForError(err error) ResultCode {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrInvalidRequest):
		return CodeBadRequest
	case errors.Is(err, ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		return CodeUpstreamTimeout
	case errors.Is(err, ErrCircuitOpen), errors.Is(err, ErrRateLimited), errors.Is(err, ErrUpstream):
		return CodeDegraded
	default:
		return CodeError
	}
}
