package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// shutdownContext derives a context that is cancelled by the first
// SIGINT/SIGTERM. The watcher gets a chance to finish its current refresh
// and close the draft database cleanly; a second signal skips the drain
// and kills the process.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)

		select {
		case sig := <-signals:
			logger.Info("shutting down", slog.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-signals:
			logger.Warn("second signal, exiting immediately",
				slog.String("signal", sig.String()))
			os.Exit(1)
		case <-parent.Done():
			return
		}
	}()

	return ctx
}
