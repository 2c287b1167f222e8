// FILE: thermwatch/src/internal/filter/filter.go
package filter

import (
	"thermwatch/src/internal/config"
	"thermwatch/src/internal/core"

	"github.com/lixenwraith/log"
)

// Filter decides whether a reading is an anomaly
type Filter struct {
	threshold float64
	logger    *log.Logger
}

// New creates a new filter from configuration
func New(cfg config.DetectConfig, logger *log.Logger) *Filter {
	f := &Filter{
		threshold: cfg.TemperatureThreshold,
		logger:    logger,
	}

	logger.Debug("msg", "Filter created",
		"component", "filter",
		"temperature_threshold", cfg.TemperatureThreshold)

	return f
}

// Threshold returns the configured critical temperature
func (f *Filter) Threshold() float64 {
	return f.threshold
}

// IsAnomaly reports whether the reading exceeds the critical temperature.
// Vibration is never considered. It has no side effects; callers count.
func (f *Filter) IsAnomaly(r core.Reading) bool {
	return r.Temperature > f.threshold
}

// GetStats returns filter settings
func (f *Filter) GetStats() map[string]any {
	return map[string]any{
		"temperature_threshold": f.threshold,
	}
}
