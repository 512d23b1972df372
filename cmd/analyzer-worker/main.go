package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ledaniel0/ml-loan-analyzer/internal/amqp"
	"github.com/ledaniel0/ml-loan-analyzer/internal/config"
	"github.com/ledaniel0/ml-loan-analyzer/internal/export/sheets"
	applog "github.com/ledaniel0/ml-loan-analyzer/internal/log"
	"github.com/ledaniel0/ml-loan-analyzer/internal/registry"
	"github.com/ledaniel0/ml-loan-analyzer/internal/storage"
	"github.com/ledaniel0/ml-loan-analyzer/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentWorker)
	applog.SetDefault(logger)

	logger.Info("starting analyzer-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	if cfg.GoogleSpreadsheetID == "" {
		logger.Error("GOOGLE_SPREADSHEET_ID is required, the worker has no export sink without it")
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, registry.UUIDGenerator{}, time.Now)
	if err != nil {
		logger.Error("sqlite initialization failed",
			applog.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	writer, err := sheets.NewFromEnv(context.Background())
	if err != nil {
		logger.Error("sheets initialization failed", applog.FieldError, err)
		os.Exit(1)
	}

	exportWorker := worker.NewExportWorker(repo, writer, cfg.ExportBatchSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Catch up on applications registered while the worker was down.
	if err := exportWorker.ProcessPendingApplications(ctx); err != nil {
		logger.Error("startup pending scan failed", applog.FieldError, err)
	}

	g, ctx := errgroup.WithContext(ctx)

	// Registration events are the fast path; AMQP being down just leaves
	// everything to the periodic scan.
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, relying on periodic scan only",
				applog.FieldError, err)
		} else {
			defer amqpClient.Close()
			g.Go(func() error {
				err := amqpClient.ConsumeApplicationRegistered(ctx, func(msg *amqp.ApplicationRegisteredMessage) error {
					return exportWorker.HandleRegisteredMessage(ctx, msg)
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		}
	} else {
		logger.Info("AMQP disabled, relying on periodic scan only")
	}

	g.Go(func() error {
		ticker := time.NewTicker(cfg.ExportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := exportWorker.ProcessPendingApplications(ctx); err != nil {
					logger.Error("periodic pending scan failed", applog.FieldError, err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("worker error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("worker stopped gracefully")
}
