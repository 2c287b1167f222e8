// FILE: thermwatch/src/internal/sink/factory.go
package sink

import (
	"fmt"

	"thermwatch/src/internal/clock"
	"thermwatch/src/internal/config"

	"github.com/lixenwraith/log"
)

// New builds the sink for the resolved store type. The choice is made once
// here; callers only see the Sink interface.
func New(cfg *config.Config, runID string, clk clock.Clock, logger *log.Logger) (Sink, error) {
	fallback, err := OpenFallbackLog(cfg.Fallback, runID, clk, logger)
	if err != nil {
		return nil, err
	}

	var store Store
	switch cfg.Store.Type {
	case config.StoreNone, "":
		return NewLocalSink(fallback, logger), nil
	case config.StoreREST:
		store = NewRESTStore(cfg.Store, logger)
	case config.StorePostgres:
		store, err = OpenPostgresStore(cfg.Store, logger)
		if err != nil {
			fallback.Close()
			return nil, err
		}
	default:
		fallback.Close()
		return nil, fmt.Errorf("unknown store type: %s", cfg.Store.Type)
	}

	return NewRemoteSink(store, cfg.Store, fallback, clk, logger), nil
}
