// FILE: thermwatch/src/internal/sink/local.go
package sink

import (
	"context"
	"sync/atomic"
	"time"

	"thermwatch/src/internal/core"

	"github.com/lixenwraith/log"
)

// LocalSink records every alert in the fallback log. Used when no durable
// store is configured.
type LocalSink struct {
	fallback *FallbackLog
	logger   *log.Logger

	startTime      time.Time
	totalProcessed atomic.Uint64
	totalFailed    atomic.Uint64
	lastProcessed  atomic.Value // time.Time
}

func NewLocalSink(fallback *FallbackLog, logger *log.Logger) *LocalSink {
	s := &LocalSink{
		fallback:  fallback,
		logger:    logger,
		startTime: time.Now(),
	}
	s.lastProcessed.Store(time.Time{})

	logger.Info("msg", "No durable store configured, alerts are recorded locally only",
		"component", "local_sink",
		"path", fallback.Path())

	return s
}

func (s *LocalSink) Persist(_ context.Context, alert core.Alert) core.PersistResult {
	s.totalProcessed.Add(1)
	s.lastProcessed.Store(time.Now())

	if err := s.fallback.Append(alert, ReasonUnconfigured); err != nil {
		s.totalFailed.Add(1)
		s.logger.Error("msg", "Failed to record alert locally",
			"component", "local_sink",
			"alert_id", alert.ID,
			"sensor_id", alert.SensorID,
			"observed_at", alert.ObservedAt,
			"error", err)
		return core.Failed
	}

	return core.CommittedLocal
}

func (s *LocalSink) Name() string { return "local" }

func (s *LocalSink) Close() error {
	return s.fallback.Close()
}

func (s *LocalSink) GetStats() SinkStats {
	lastProc, _ := s.lastProcessed.Load().(time.Time)
	return SinkStats{
		Type:           "local",
		TotalProcessed: s.totalProcessed.Load(),
		StartTime:      s.startTime,
		LastProcessed:  lastProc,
		Details: map[string]any{
			"total_failed": s.totalFailed.Load(),
			"fallback":     s.fallback.stats(),
		},
	}
}
