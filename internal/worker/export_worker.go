// Package worker moves registered applications from local storage into the
// export sink.
package worker

import (
	"context"
	"fmt"

	"github.com/ledaniel0/ml-loan-analyzer/internal/amqp"
	"github.com/ledaniel0/ml-loan-analyzer/internal/core"
	"github.com/ledaniel0/ml-loan-analyzer/internal/export"
	applog "github.com/ledaniel0/ml-loan-analyzer/internal/log"
)

// Storage is the subset of the sqlite repository the worker needs.
type Storage interface {
	GetApplication(ctx context.Context, id string) (core.Application, error)
	PendingExport(ctx context.Context, limit int) ([]core.Application, error)
	MarkExported(ctx context.Context, id string) error
	MarkExportError(ctx context.Context, id string) error
}

// ExportWorker handles registration events and the pending-scan backup.
type ExportWorker struct {
	storage   Storage
	writer    export.ApplicationWriter
	batchSize int
	logger    *applog.Logger
}

func NewExportWorker(storage Storage, writer export.ApplicationWriter, batchSize int) *ExportWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &ExportWorker{
		storage:   storage,
		writer:    writer,
		batchSize: batchSize,
		logger:    applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentWorker),
	}
}

// HandleRegisteredMessage processes a single registration event.
func (w *ExportWorker) HandleRegisteredMessage(ctx context.Context, msg *amqp.ApplicationRegisteredMessage) error {
	w.logger.InfoContext(ctx, "processing registration event",
		applog.FieldApplicationID, msg.ID,
		applog.FieldStatus, msg.Status)

	app, err := w.storage.GetApplication(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("get application from storage: %w", err)
	}

	return w.exportOne(ctx, app)
}

// ProcessPendingApplications exports applications that never got an event,
// e.g. when a message was lost. Individual failures are marked and skipped.
func (w *ExportWorker) ProcessPendingApplications(ctx context.Context) error {
	pending, err := w.storage.PendingExport(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending applications: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	w.logger.InfoContext(ctx, "processing pending applications", "count", len(pending))

	for _, app := range pending {
		if err := w.exportOne(ctx, app); err != nil {
			w.logger.ErrorContext(ctx, "failed to export application",
				applog.FieldApplicationID, app.ID,
				applog.FieldError, err)
			continue
		}
	}
	return nil
}

func (w *ExportWorker) exportOne(ctx context.Context, app core.Application) error {
	if err := w.writer.Append(ctx, app); err != nil {
		if markErr := w.storage.MarkExportError(ctx, app.ID); markErr != nil {
			w.logger.ErrorContext(ctx, "failed to mark export error",
				applog.FieldApplicationID, app.ID,
				applog.FieldError, markErr)
		}
		return fmt.Errorf("append to export sink: %w", err)
	}

	if err := w.storage.MarkExported(ctx, app.ID); err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}

	w.logger.InfoContext(ctx, "application exported",
		applog.FieldApplicationID, app.ID,
		applog.FieldStatus, string(app.Status))
	return nil
}
