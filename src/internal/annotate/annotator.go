// FILE: thermwatch/src/internal/annotate/annotator.go
package annotate

import (
	"context"
	"errors"

	"thermwatch/src/internal/config"

	"github.com/lixenwraith/log"
)

// ErrUnconfigured is returned by the annotator used when no provider credential is set
var ErrUnconfigured = errors.New("annotation provider not configured")

// Annotator produces a repair instruction for an anomalous reading.
// Implementations must be safe for concurrent use.
type Annotator interface {
	Annotate(ctx context.Context, temperature, vibration float64) (string, error)
	Name() string
}

// New selects the annotator for the configuration. Without a credential the
// returned annotator always fails with ErrUnconfigured.
func New(cfg config.AnnotateConfig, threshold float64, logger *log.Logger) Annotator {
	if !cfg.Configured() {
		logger.Warn("msg", "No annotation provider credential, alerts will be recorded as UNCONFIGURED",
			"component", "annotate")
		return Unconfigured()
	}
	return NewOpenAIAnnotator(cfg, threshold, logger)
}

// Unconfigured returns an annotator that always fails with ErrUnconfigured
func Unconfigured() Annotator {
	return unconfigured{}
}

type unconfigured struct{}

func (unconfigured) Annotate(context.Context, float64, float64) (string, error) {
	return "", ErrUnconfigured
}

func (unconfigured) Name() string { return "unconfigured" }

func isUnconfigured(a Annotator) bool {
	_, ok := a.(unconfigured)
	return ok
}
