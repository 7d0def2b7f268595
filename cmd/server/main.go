package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/lukasbauer/lucilta/internal/app"
	"github.com/lukasbauer/lucilta/internal/consultation"
	"github.com/lukasbauer/lucilta/internal/logging"
)

func main() {
	dotenvErr := app.LoadDotEnv()
	cfg := app.LoadConfigFromEnv()

	logger := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if dotenvErr != nil {
		logger.Warn("failed to read .env", "error", dotenvErr)
	}

	// Initialize Sentry for error monitoring
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		})
		if err != nil {
			logger.Error("sentry init failed", "error", err)
		} else {
			logger.Info("sentry initialized", "environment", cfg.Environment)
			defer sentry.Flush(2 * time.Second)
		}
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		if cfg.SentryDSN != "" {
			sentry.CaptureException(err)
			sentry.Flush(2 * time.Second)
		}
		logger.Error("init app", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	drain(a, cfg.ShutdownDrainTimeout, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Warn("close app", "error", err)
	}
	logger.Info("stopped")
}

// drain stops new consultations and gives live ones up to timeout to finish
// before ending them.
func drain(a *app.App, timeout time.Duration, logger *slog.Logger) {
	sessions := a.Sessions()
	sessions.StartDraining()
	logger.Info("draining consultations", "active", sessions.ActiveCount(), "timeout", timeout)

	done := make(chan struct{})
	go func() {
		sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(timeout):
	}

	logger.Warn("drain timeout, ending live consultations", "active", sessions.ActiveCount())
	sessions.EndAll(consultation.ReasonShutdown)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn("consultations still open after shutdown", "active", sessions.ActiveCount())
	}
}
