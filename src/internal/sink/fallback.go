// FILE: thermwatch/src/internal/sink/fallback.go
package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"thermwatch/src/internal/clock"
	"thermwatch/src/internal/config"
	"thermwatch/src/internal/core"
	"thermwatch/src/internal/format"

	"github.com/lixenwraith/log"
)

// FallbackLog is the local append-only alert log. Each record is one JSON
// line written with a single Write call, so concurrent appends never interleave.
type FallbackLog struct {
	path   string
	sync   bool
	runID  string
	clock  clock.Clock
	logger *log.Logger

	mu     sync.Mutex
	file   *os.File
	closed bool

	totalWritten atomic.Uint64
	totalFailed  atomic.Uint64
}

// OpenFallbackLog opens, creating if needed, the fallback log file
func OpenFallbackLog(cfg config.FallbackConfig, runID string, clk clock.Clock, logger *log.Logger) (*FallbackLog, error) {
	if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create fallback directory %s: %w", cfg.Directory, err)
	}

	path := filepath.Join(cfg.Directory, cfg.Name)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open fallback log %s: %w", path, err)
	}

	logger.Debug("msg", "Fallback log opened",
		"component", "fallback",
		"path", path,
		"sync", cfg.Sync)

	return &FallbackLog{
		path:   path,
		sync:   cfg.Sync,
		runID:  runID,
		clock:  clk,
		logger: logger,
		file:   file,
	}, nil
}

// Append writes one record for alert
func (f *FallbackLog) Append(alert core.Alert, reason string) error {
	line, err := format.JSONLine(alert, format.RecordMeta{
		Reason:    reason,
		RunID:     f.runID,
		WrittenAt: f.clock.Now(),
	})
	if err != nil {
		f.totalFailed.Add(1)
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		f.totalFailed.Add(1)
		return fmt.Errorf("fallback log %s is closed", f.path)
	}

	if _, err := f.file.Write(line); err != nil {
		f.totalFailed.Add(1)
		return fmt.Errorf("failed to append to fallback log: %w", err)
	}
	if f.sync {
		if err := f.file.Sync(); err != nil {
			f.totalFailed.Add(1)
			return fmt.Errorf("failed to sync fallback log: %w", err)
		}
	}

	f.totalWritten.Add(1)
	return nil
}

func (f *FallbackLog) Path() string {
	return f.path
}

// Written returns the number of records appended since open
func (f *FallbackLog) Written() uint64 {
	return f.totalWritten.Load()
}

func (f *FallbackLog) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	return f.file.Close()
}

func (f *FallbackLog) stats() map[string]any {
	return map[string]any{
		"path":          f.path,
		"total_written": f.totalWritten.Load(),
		"total_failed":  f.totalFailed.Load(),
	}
}
