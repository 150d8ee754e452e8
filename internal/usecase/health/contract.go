package health

import "context"

// SourcePinger answers a liveness probe for one retrieval source.
type SourcePinger interface {
	Name() string
	Ping(ctx context.Context) error
}
