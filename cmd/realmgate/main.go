// Command realmgate serves the token validation endpoint and the
// role-gated routes in front of a Keycloak realm.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonwraymond/realmgate/config"
	"github.com/jonwraymond/realmgate/observe"
)

const (
	// missBurst is how many unknown-kid refreshes may run back to back.
	missBurst = 5

	// cachedKeySetTTL caps how long replicas share one key set document.
	cachedKeySetTTL = 5 * time.Minute

	// fetchAttempts is how many tries one key set refresh gets.
	fetchAttempts = 3
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "realmgate:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	obs, err := observe.NewObserver(ctx, cfg.Observe(os.Stderr))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()
	logger := obs.Logger()

	a, err := build(ctx, cfg, obs)
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.KeySetRefreshSchedule != "" {
		scheduler, err := scheduleRefresh(cfg.KeySetRefreshSchedule, a.resolver, cfg.KeySetFetchTimeout, logger)
		if err != nil {
			return fmt.Errorf("key set refresh schedule: %w", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening",
			observe.F("addr", cfg.Addr),
			observe.F("issuer", cfg.Issuer),
			observe.F("protected_paths", cfg.ProtectedPaths),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
