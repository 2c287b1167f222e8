// FILE: thermwatch/src/internal/sink/remote.go
package sink

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"thermwatch/src/internal/clock"
	"thermwatch/src/internal/config"
	"thermwatch/src/internal/core"

	"github.com/cenkalti/backoff/v5"
	"github.com/lixenwraith/log"
)

// RemoteSink writes alerts to a durable store, retrying transient failures
// with exponential backoff and degrading to the fallback log when the store
// stays unavailable.
type RemoteSink struct {
	store       Store
	fallback    *FallbackLog
	maxAttempts int
	timeout     time.Duration
	base        time.Duration
	maxDelay    time.Duration
	clock       clock.Clock
	logger      *log.Logger

	// Statistics
	startTime      time.Time
	totalProcessed atomic.Uint64
	totalCommitted atomic.Uint64
	totalDegraded  atomic.Uint64
	totalFailed    atomic.Uint64
	totalRetries   atomic.Uint64
	lastProcessed  atomic.Value // time.Time
}

// NewRemoteSink wraps store with retry and fallback semantics
func NewRemoteSink(store Store, cfg config.StoreConfig, fallback *FallbackLog, clk clock.Clock, logger *log.Logger) *RemoteSink {
	attempts := int(cfg.MaxAttempts)
	if attempts < 1 {
		attempts = 1
	}

	s := &RemoteSink{
		store:       store,
		fallback:    fallback,
		maxAttempts: attempts,
		timeout:     cfg.Timeout(),
		base:        cfg.BackoffBase(),
		maxDelay:    cfg.BackoffMax(),
		clock:       clk,
		logger:      logger,
		startTime:   clk.Now(),
	}
	s.lastProcessed.Store(time.Time{})

	logger.Info("msg", "Durable store configured",
		"component", "remote_sink",
		"store", store.Name(),
		"max_attempts", attempts,
		"backoff_base", s.base,
		"backoff_max", s.maxDelay)

	return s
}

func (s *RemoteSink) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     s.base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         s.maxDelay,
	}
	b.Reset()
	return b
}

// Persist writes alert to the store. 2xx commits; errors and 5xx are retried
// up to the attempt cap, then the alert goes to the fallback log. Other
// statuses are rejections and are neither retried nor logged locally.
func (s *RemoteSink) Persist(ctx context.Context, alert core.Alert) core.PersistResult {
	s.totalProcessed.Add(1)
	s.lastProcessed.Store(s.clock.Now())

	b := s.newBackOff()
	var lastErr error

	for attempt := 1; ; attempt++ {
		code, err := s.write(ctx, alert)

		switch {
		case err == nil && code >= 200 && code < 300:
			s.totalCommitted.Add(1)
			if attempt > 1 {
				s.logger.Info("msg", "Alert committed after retry",
					"component", "remote_sink",
					"alert_id", alert.ID,
					"sensor_id", alert.SensorID,
					"attempt", attempt)
			}
			return core.Committed

		case err == nil && (code < 500 || code > 599):
			s.totalFailed.Add(1)
			s.logger.Error("msg", "Alert rejected by store",
				"component", "remote_sink",
				"store", s.store.Name(),
				"alert_id", alert.ID,
				"sensor_id", alert.SensorID,
				"observed_at", alert.ObservedAt,
				"status_code", code)
			return core.Failed

		case err == nil:
			lastErr = fmt.Errorf("store returned status %d", code)
		default:
			lastErr = err
		}

		if ctx.Err() != nil {
			return s.degrade(alert, ReasonShutdown, lastErr, attempt)
		}

		if attempt >= s.maxAttempts {
			break
		}

		delay := b.NextBackOff()
		s.totalRetries.Add(1)
		s.logger.Warn("msg", "Store write failed, retrying",
			"component", "remote_sink",
			"store", s.store.Name(),
			"alert_id", alert.ID,
			"sensor_id", alert.SensorID,
			"attempt", attempt,
			"max_attempts", s.maxAttempts,
			"retry_in", delay,
			"error", lastErr)

		select {
		case <-s.clock.After(delay):
		case <-ctx.Done():
			return s.degrade(alert, ReasonShutdown, lastErr, attempt)
		}
	}

	return s.degrade(alert, ReasonRetriesExhausted, lastErr, s.maxAttempts)
}

func (s *RemoteSink) write(ctx context.Context, alert core.Alert) (int, error) {
	if s.timeout <= 0 {
		return s.store.Write(ctx, alert)
	}
	writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.Write(writeCtx, alert)
}

func (s *RemoteSink) degrade(alert core.Alert, reason string, cause error, attempts int) core.PersistResult {
	if err := s.fallback.Append(alert, reason); err != nil {
		s.totalFailed.Add(1)
		s.logger.Error("msg", "Alert lost: store unavailable and fallback append failed",
			"component", "remote_sink",
			"alert_id", alert.ID,
			"sensor_id", alert.SensorID,
			"observed_at", alert.ObservedAt,
			"store_error", cause,
			"error", err)
		return core.Failed
	}

	s.totalDegraded.Add(1)
	s.logger.Warn("msg", "Alert written to fallback log",
		"component", "remote_sink",
		"alert_id", alert.ID,
		"sensor_id", alert.SensorID,
		"observed_at", alert.ObservedAt,
		"reason", reason,
		"attempts", attempts,
		"error", cause)
	return core.Degraded
}

func (s *RemoteSink) Name() string { return "remote:" + s.store.Name() }

func (s *RemoteSink) Close() error {
	return errors.Join(s.store.Close(), s.fallback.Close())
}

func (s *RemoteSink) GetStats() SinkStats {
	lastProc, _ := s.lastProcessed.Load().(time.Time)
	return SinkStats{
		Type:           "remote",
		TotalProcessed: s.totalProcessed.Load(),
		StartTime:      s.startTime,
		LastProcessed:  lastProc,
		Details: map[string]any{
			"store":           s.store.Name(),
			"total_committed": s.totalCommitted.Load(),
			"total_degraded":  s.totalDegraded.Load(),
			"total_failed":    s.totalFailed.Load(),
			"total_retries":   s.totalRetries.Load(),
			"fallback":        s.fallback.stats(),
		},
	}
}
