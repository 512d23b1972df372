// Package backend wires the configured registry store and its optional
// registration-event publisher.
package backend

import (
	"fmt"
	"time"

	"github.com/ledaniel0/ml-loan-analyzer/internal/amqp"
	"github.com/ledaniel0/ml-loan-analyzer/internal/config"
	applog "github.com/ledaniel0/ml-loan-analyzer/internal/log"
	"github.com/ledaniel0/ml-loan-analyzer/internal/registry"
	"github.com/ledaniel0/ml-loan-analyzer/internal/storage"
)

type Type string

const (
	MemoryBackend Type = "memory"
	SQLiteBackend Type = "sqlite"
)

func (t Type) IsValid() bool {
	switch t {
	case MemoryBackend, SQLiteBackend:
		return true
	default:
		return false
	}
}

// CleanupFunc releases backend resources.
type CleanupFunc func() error

// Result bundles the store with the optional event publisher and cleanup.
// Events is nil when AMQP is not configured or unreachable.
type Result struct {
	Store   registry.Store
	Events  *amqp.Client
	Cleanup CleanupFunc
}

// Build creates the registry backend selected by cfg.DataBackend.
func Build(cfg *config.Config, logger *applog.Logger) (*Result, error) {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentRegistry)

	t := Type(cfg.DataBackend)
	if !t.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", cfg.DataBackend)
	}

	switch t {
	case SQLiteBackend:
		return buildSQLite(cfg, logger)
	default:
		logger.Info("initialized memory backend")
		return &Result{
			Store: registry.NewMemory(registry.UUIDGenerator{}, time.Now),
		}, nil
	}
}

func buildSQLite(cfg *config.Config, logger *applog.Logger) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, registry.UUIDGenerator{}, time.Now)
	if err != nil {
		return nil, fmt.Errorf("initialize sqlite repository: %w", err)
	}

	// AMQP is optional. The server works without registration events; the
	// export worker's pending scan picks up what the events would have
	// delivered.
	var events *amqp.Client
	if cfg.AMQPURL != "" {
		events, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, continuing without registration events",
				applog.FieldError, err)
			events = nil
		} else {
			logger.Info("initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	}

	logger.Info("initialized sqlite backend",
		"db_path", cfg.SQLiteDBPath,
		"amqp_enabled", events != nil)

	return &Result{
		Store:  repo,
		Events: events,
		Cleanup: func() error {
			if events != nil {
				events.Close()
			}
			return repo.Close()
		},
	}, nil
}
