// FILE: thermwatch/src/internal/source/source.go
package source

import (
	"context"
	"time"

	"thermwatch/src/internal/core"
)

// Source yields raw lines from an input stream in order
type Source interface {
	// Blocks until a complete line is available or ctx is cancelled
	Next(ctx context.Context) (core.Line, error)

	// Persists the current read position
	Checkpoint() error

	// Checkpoints and releases resources
	Close() error

	// Returns source statistics
	GetStats() SourceStats
}

// SourceStats contains statistics about a source
type SourceStats struct {
	Type           string
	TotalEntries   uint64
	DroppedEntries uint64
	StartTime      time.Time
	LastEntryTime  time.Time
	Details        map[string]any
}
