package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yanyan-huang/pmpal/internal/observability"
)

// Run serves the HTTP API until ctx is done, then shuts down gracefully.
func (b *BuildResult) Run(ctx context.Context) error {
	log := observability.Logger()
	httpServer := &http.Server{
		Addr:              b.Config.BindAddr,
		Handler:           b.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("server listening", "addr", b.Config.BindAddr)
		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received")
		timeout := b.Config.ShutdownTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("graceful shutdown failed", "error", err)
			_ = httpServer.Close()
			return err
		}
		log.Info("shutdown complete")
		return nil
	})
	return group.Wait()
}
