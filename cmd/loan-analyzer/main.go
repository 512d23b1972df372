package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ledaniel0/ml-loan-analyzer/internal/backend"
	"github.com/ledaniel0/ml-loan-analyzer/internal/config"
	"github.com/ledaniel0/ml-loan-analyzer/internal/extract"
	applog "github.com/ledaniel0/ml-loan-analyzer/internal/log"
	"github.com/ledaniel0/ml-loan-analyzer/internal/scoring"
	"github.com/ledaniel0/ml-loan-analyzer/internal/server"
)

func main() {
	// Load .env for local development; absent in containers.
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	res, err := backend.Build(cfg, logger)
	if err != nil {
		logger.Error("backend initialization failed", applog.FieldError, err)
		os.Exit(1)
	}
	if res.Cleanup != nil {
		defer func() {
			if err := res.Cleanup(); err != nil {
				logger.Error("backend cleanup failed", applog.FieldError, err)
			}
		}()
	}

	opts := server.Options{
		Addr:               ":" + cfg.Port,
		Store:              res.Store,
		RecurringTopK:      cfg.RecurringTopK,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}
	if cfg.ExtractorURL != "" {
		opts.Extractor = extract.NewClient(cfg.ExtractorURL, nil)
	} else {
		logger.Info("no extractor configured, statement uploads disabled")
	}
	if cfg.ScorerURL != "" {
		opts.Scorer = scoring.NewClient(cfg.ScorerURL, nil)
	} else {
		logger.Info("no scorer configured, serving local analysis only")
	}
	if res.Events != nil {
		opts.Events = res.Events
	}

	srv := server.New(opts)
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 3 * time.Minute
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting loan-analyzer server",
			"port", cfg.Port,
			"backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("server stopped gracefully")
}
