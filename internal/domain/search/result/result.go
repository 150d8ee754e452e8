package result

import "encoding/json"

// Result is a single ranked hit. The payload is opaque to the gateway and is
// passed through to the caller untouched.
type Result struct {
	id      string
	score   float64
	payload json.RawMessage
}

// New creates a ranked hit.
func New(id string, score float64, payload json.RawMessage) Result {
	return Result{id: id, score: score, payload: payload}
}

// ID returns the hit identifier.
func (r *Result) ID() string { return r.id }

// Score returns the relevance score.
func (r *Result) Score() float64 { return r.score }

// Payload returns the opaque source payload.
func (r *Result) Payload() json.RawMessage { return r.payload }
