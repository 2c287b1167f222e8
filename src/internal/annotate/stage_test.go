// FILE: thermwatch/src/internal/annotate/stage_test.go
package annotate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"thermwatch/src/internal/config"
	"thermwatch/src/internal/core"

	"github.com/lixenwraith/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *log.Logger {
	return log.NewLogger()
}

// fakeAnnotator returns a fixed answer and tracks concurrency
type fakeAnnotator struct {
	text    string
	err     error
	delay   time.Duration
	block   chan struct{}
	calls   atomic.Int64
	active  atomic.Int64
	maxSeen atomic.Int64
}

func (f *fakeAnnotator) Annotate(ctx context.Context, temperature, vibration float64) (string, error) {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		old := f.maxSeen.Load()
		if n <= old || f.maxSeen.CompareAndSwap(old, n) {
			break
		}
	}

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

func (f *fakeAnnotator) Name() string { return "fake" }

// stubbornAnnotator ignores its context and answers only when released
type stubbornAnnotator struct {
	text    string
	release chan struct{}
	calls   atomic.Int64
}

func newStubbornAnnotator(t *testing.T, text string) *stubbornAnnotator {
	a := &stubbornAnnotator{text: text, release: make(chan struct{})}
	t.Cleanup(func() { close(a.release) })
	return a
}

func (a *stubbornAnnotator) Annotate(context.Context, float64, float64) (string, error) {
	a.calls.Add(1)
	<-a.release
	return a.text, nil
}

func (a *stubbornAnnotator) Name() string { return "stubborn" }

type recordingObserver struct {
	mu       sync.Mutex
	statuses []core.AnnotationStatus
}

func (o *recordingObserver) ObserveAnnotation(status core.AnnotationStatus, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

func testConfig(workers int64) config.AnnotateConfig {
	return config.AnnotateConfig{
		APIKey:    "key",
		Workers:   workers,
		TimeoutMS: 1000,
	}
}

var turbine = core.Reading{SensorID: "TURBINE-3", Timestamp: 1700000000000, Temperature: 955.2, Vibration: 62.1}

func TestStage_Enrich(t *testing.T) {
	logger := newTestLogger()

	t.Run("OK", func(t *testing.T) {
		obs := &recordingObserver{}
		s := NewStage(testConfig(1), &fakeAnnotator{text: "  ACTION REQUIRED: inspect bearing.\n"}, logger)
		s.SetObserver(obs)

		alert := s.Enrich(context.Background(), turbine)
		assert.Equal(t, core.AnnotationOK, alert.AnnotationStatus)
		assert.Equal(t, "ACTION REQUIRED: inspect bearing.", alert.RepairAction)
		assert.Equal(t, "TURBINE-3", alert.SensorID)
		assert.Equal(t, turbine.Timestamp, alert.ObservedAt)
		assert.Equal(t, core.AlertID(turbine), alert.ID)
		assert.Equal(t, []core.AnnotationStatus{core.AnnotationOK}, obs.statuses)
	})

	t.Run("ProviderError", func(t *testing.T) {
		s := NewStage(testConfig(1), &fakeAnnotator{err: errors.New("503 from provider")}, logger)

		alert := s.Enrich(context.Background(), turbine)
		assert.Equal(t, core.AnnotationDegraded, alert.AnnotationStatus)
		assert.Equal(t, "CRITICAL: Check Manual (annotation failed: 503 from provider)", alert.RepairAction)
		assert.Equal(t, 955.2, alert.Temperature)
	})

	t.Run("EmptyResponse", func(t *testing.T) {
		s := NewStage(testConfig(1), &fakeAnnotator{text: "   "}, logger)

		alert := s.Enrich(context.Background(), turbine)
		assert.Equal(t, core.AnnotationDegraded, alert.AnnotationStatus)
		assert.Contains(t, alert.RepairAction, "empty response")
	})

	t.Run("Timeout", func(t *testing.T) {
		cfg := testConfig(1)
		cfg.TimeoutMS = 20
		s := NewStage(cfg, &fakeAnnotator{text: "late", delay: time.Second}, logger)

		start := time.Now()
		alert := s.Enrich(context.Background(), turbine)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
		assert.Equal(t, core.AnnotationDegraded, alert.AnnotationStatus)
		assert.Contains(t, alert.RepairAction, "timed out after 20ms")
	})

	t.Run("TimeoutIgnoredByProvider", func(t *testing.T) {
		cfg := testConfig(1)
		cfg.TimeoutMS = 50
		obs := &recordingObserver{}
		s := NewStage(cfg, newStubbornAnnotator(t, "late"), logger)
		s.SetObserver(obs)

		start := time.Now()
		alert := s.Enrich(context.Background(), turbine)
		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, core.AnnotationDegraded, alert.AnnotationStatus)
		assert.Equal(t, "CRITICAL: Check Manual (annotation failed: timed out after 50ms)", alert.RepairAction)
		assert.Equal(t, uint64(1), s.GetStats()["total_degraded"])
		assert.Equal(t, uint64(0), s.GetStats()["total_ok"])
		assert.Equal(t, []core.AnnotationStatus{core.AnnotationDegraded}, obs.statuses)
	})

	t.Run("Unconfigured", func(t *testing.T) {
		s := NewStage(testConfig(1), Unconfigured(), logger)

		alert := s.Enrich(context.Background(), turbine)
		assert.Equal(t, core.AnnotationUnconfigured, alert.AnnotationStatus)
		assert.Equal(t, "CRITICAL: Check Manual (annotation provider not configured)", alert.RepairAction)
		assert.Equal(t, uint64(1), s.GetStats()["total_unconfigured"])
	})

	t.Run("WrappedUnconfiguredError", func(t *testing.T) {
		s := NewStage(testConfig(1), &fakeAnnotator{err: fmt.Errorf("wrapped: %w", ErrUnconfigured)}, logger)

		alert := s.Enrich(context.Background(), turbine)
		assert.Equal(t, core.AnnotationUnconfigured, alert.AnnotationStatus)
	})

	t.Run("RateLimited", func(t *testing.T) {
		cfg := testConfig(1)
		cfg.RatePerSec = 0.001
		cfg.Burst = 1
		s := NewStage(cfg, &fakeAnnotator{text: "ACTION REQUIRED: ok."}, logger)

		first := s.Enrich(context.Background(), turbine)
		assert.Equal(t, core.AnnotationOK, first.AnnotationStatus)

		// The bucket is empty and the refill is far beyond the deadline
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		second := s.Enrich(ctx, turbine)
		assert.Equal(t, core.AnnotationDegraded, second.AnnotationStatus)
		assert.Contains(t, second.RepairAction, "rate limit wait")
	})
}

func TestNew_SelectsAnnotator(t *testing.T) {
	logger := newTestLogger()

	a := New(config.AnnotateConfig{}, 900, logger)
	assert.Equal(t, "unconfigured", a.Name())
	_, err := a.Annotate(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrUnconfigured)

	a = New(config.AnnotateConfig{APIKey: "k", Model: "gemini-2.0-flash", BaseURL: "http://localhost:1"}, 900, logger)
	assert.Equal(t, "openai:gemini-2.0-flash", a.Name())
}

func TestStage_Run(t *testing.T) {
	logger := newTestLogger()

	t.Run("AllEnrichedBoundedConcurrency", func(t *testing.T) {
		fake := &fakeAnnotator{text: "ACTION REQUIRED: cool down.", delay: 10 * time.Millisecond}
		s := NewStage(testConfig(3), fake, logger)

		const n = 30
		in := make(chan core.Reading, n)
		out := make(chan core.Alert, n)
		for i := 0; i < n; i++ {
			in <- core.Reading{SensorID: fmt.Sprintf("S-%d", i), Timestamp: int64(i), Temperature: 950}
		}
		close(in)

		require.NoError(t, s.Run(context.Background(), in, out))
		close(out)

		seen := make(map[string]bool)
		for alert := range out {
			assert.Equal(t, core.AnnotationOK, alert.AnnotationStatus)
			seen[alert.SensorID] = true
		}
		assert.Len(t, seen, n, "every reading is enriched exactly once")
		assert.LessOrEqual(t, fake.maxSeen.Load(), int64(3))
		assert.Equal(t, int64(n), fake.calls.Load())
	})

	t.Run("FailuresStillProduceAlerts", func(t *testing.T) {
		s := NewStage(testConfig(2), &fakeAnnotator{err: errors.New("down")}, logger)

		in := make(chan core.Reading, 5)
		out := make(chan core.Alert, 5)
		for i := 0; i < 5; i++ {
			in <- turbine
		}
		close(in)

		require.NoError(t, s.Run(context.Background(), in, out))
		close(out)

		count := 0
		for alert := range out {
			count++
			assert.Equal(t, core.AnnotationDegraded, alert.AnnotationStatus)
			assert.True(t, strings.HasPrefix(alert.RepairAction, "CRITICAL: Check Manual"))
		}
		assert.Equal(t, 5, count)
	})

	t.Run("CancelDropsQueuedAndInFlight", func(t *testing.T) {
		fake := &fakeAnnotator{text: "never", block: make(chan struct{})}
		s := NewStage(testConfig(1), fake, logger)

		var mu sync.Mutex
		var dropped []string
		s.SetDropHandler(func(r core.Reading, reason string) {
			mu.Lock()
			defer mu.Unlock()
			dropped = append(dropped, r.SensorID)
		})

		in := make(chan core.Reading, 3)
		out := make(chan core.Alert, 3)
		in <- core.Reading{SensorID: "A"}
		in <- core.Reading{SensorID: "B"}
		in <- core.Reading{SensorID: "C"}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Run(ctx, in, out) }()

		require.Eventually(t, func() bool { return fake.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return after cancellation")
		}

		assert.Empty(t, out)
		mu.Lock()
		assert.ElementsMatch(t, []string{"A", "B", "C"}, dropped)
		mu.Unlock()
		assert.Equal(t, uint64(3), s.GetStats()["total_dropped"])
		assert.Equal(t, int64(0), s.InFlight())
	})

	t.Run("CancelBoundedWhenProviderIgnoresContext", func(t *testing.T) {
		cfg := testConfig(2)
		cfg.TimeoutMS = 0
		stubborn := newStubbornAnnotator(t, "late")
		obs := &recordingObserver{}
		s := NewStage(cfg, stubborn, logger)
		s.SetObserver(obs)

		var dropped atomic.Int64
		s.SetDropHandler(func(core.Reading, string) { dropped.Add(1) })

		in := make(chan core.Reading, 2)
		out := make(chan core.Alert, 2)
		in <- core.Reading{SensorID: "A"}
		in <- core.Reading{SensorID: "B"}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Run(ctx, in, out) }()

		require.Eventually(t, func() bool { return stubborn.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("Run blocked on a provider that ignores cancellation")
		}

		assert.Empty(t, out)
		assert.Equal(t, int64(2), dropped.Load())

		// Dropped readings are not also counted as annotated
		stats := s.GetStats()
		assert.Equal(t, uint64(0), stats["total_processed"])
		assert.Equal(t, uint64(0), stats["total_degraded"])
		obs.mu.Lock()
		assert.Empty(t, obs.statuses)
		obs.mu.Unlock()
	})
}
