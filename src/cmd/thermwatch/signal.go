// FILE: thermwatch/src/cmd/thermwatch/signal.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lixenwraith/log"
)

// Manages OS termination signals
type SignalHandler struct {
	logger  *log.Logger
	sigChan chan os.Signal
}

func NewSignalHandler(logger *log.Logger) *SignalHandler {
	sh := &SignalHandler{
		logger:  logger,
		sigChan: make(chan os.Signal, 1),
	}
	signal.Notify(sh.sigChan, syscall.SIGINT, syscall.SIGTERM)
	return sh
}

// Wait blocks until a termination signal arrives, ctx is done, or the
// pipeline exits on its own
func (sh *SignalHandler) Wait(ctx context.Context, done <-chan struct{}) os.Signal {
	select {
	case sig := <-sh.sigChan:
		sh.logger.Info("msg", "Termination signal received",
			"component", "signal",
			"signal", sig)
		return sig
	case <-done:
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (sh *SignalHandler) Stop() {
	signal.Stop(sh.sigChan)
}
