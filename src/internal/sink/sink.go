// FILE: thermwatch/src/internal/sink/sink.go
package sink

import (
	"context"
	"time"

	"thermwatch/src/internal/core"
)

// Fallback log record reasons
const (
	ReasonUnconfigured     = "unconfigured"
	ReasonRetriesExhausted = "retries_exhausted"
	ReasonShutdown         = "shutdown"
)

// Sink records enriched alerts durably
type Sink interface {
	// Persist records one alert and reports where it ended up
	Persist(ctx context.Context, alert core.Alert) core.PersistResult

	// Name identifies the sink in logs
	Name() string

	// Close releases the sink and its store
	Close() error

	// GetStats returns sink statistics
	GetStats() SinkStats
}

// Store is a durable append-only alert table. Write returns the transport
// status code; a non-nil error means the outcome is unknown and retryable.
type Store interface {
	Write(ctx context.Context, alert core.Alert) (statusCode int, err error)
	Name() string
	Close() error
}

// SinkStats contains statistics about a sink
type SinkStats struct {
	Type           string
	TotalProcessed uint64
	StartTime      time.Time
	LastProcessed  time.Time
	Details        map[string]any
}
