package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/bunmyaku/internal/server"
	"github.com/hyperjump/bunmyaku/internal/watcher"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()
	cfg, logger := c.Config, c.Logger

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Index.EagerLoad {
		start := time.Now()
		if err := c.Registry.LoadAll(ctx); err != nil {
			return err
		}
		logger.Info("indices loaded", zap.Strings("scopes", c.Registry.Scopes()), zap.Duration("took", time.Since(start)))
	}

	if cfg.Watch.Enabled {
		keys := make([]string, 0, len(cfg.Index.Scopes))
		for _, key := range cfg.Index.Scopes {
			keys = append(keys, key)
		}
		w := watcher.NewWatcher(c.Store.BaseDir(), keys,
			watcher.ScopeReloader(ctx, c.Registry, logger),
			watcher.WithDebounce(cfg.Watch.Debounce()),
			watcher.WithLogger(logger),
		)
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
	}

	srv := server.NewServer(c.Registry, c.Embedder, c.Assembler, c.Resources, cfg, logger)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}
