package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gobby-dev/gobby/internal/config"
)

// shutdownTimeout bounds how long Shutdown is given to drain before the
// process exits anyway, grounded on the teacher's run.go signal handler.
const shutdownTimeout = 15 * time.Second

// RunOptions configures Run's config loading and daemon construction.
type RunOptions struct {
	ConfigPath string
	Options
}

// Run loads configuration, constructs a Daemon, and runs it to completion:
// it blocks until SIGINT/SIGTERM or a fatal startup error, then shuts down
// gracefully before returning.
func Run(opts RunOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("daemon: load config: %w", err)
	}

	d, err := New(cfg, opts.Options)
	if err != nil {
		return fmt.Errorf("daemon: construct: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	startErrCh := make(chan error, 1)
	go func() {
		startErrCh <- d.Start(ctx)
	}()

	select {
	case sig := <-sigCh:
		d.logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	case err := <-startErrCh:
		if err != nil {
			return fmt.Errorf("daemon: start: %w", err)
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	return d.Shutdown(shutdownCtx)
}
