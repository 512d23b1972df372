package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ledaniel0/ml-loan-analyzer/internal/core"
	applog "github.com/ledaniel0/ml-loan-analyzer/internal/log"
	"github.com/ledaniel0/ml-loan-analyzer/internal/registry"
)

// Export states for the audit-export worker.
const (
	ExportPending = "pending"
	ExportDone    = "done"
	ExportError   = "error"
)

// SQLiteRepository is the persistent registry backend. It implements
// registry.Store and adds the export bookkeeping the worker needs.
type SQLiteRepository struct {
	db     *sql.DB
	gen    registry.IDGenerator
	now    func() time.Time
	logger *applog.Logger
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// runs pending migrations. Nil generator or clock fall back to defaults.
func NewSQLiteRepository(dbPath string, gen registry.IDGenerator, now func() time.Time) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if gen == nil {
		gen = registry.UUIDGenerator{}
	}
	if now == nil {
		now = time.Now
	}

	return &SQLiteRepository{
		db:     db,
		gen:    gen,
		now:    now,
		logger: applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentStorage),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Register implements registry.Store.
func (r *SQLiteRepository) Register(ctx context.Context, result core.AnalysisResult) (core.Application, error) {
	app := registry.Build(r.gen, r.now, result)

	analysisJSON, err := json.Marshal(app.Analysis)
	if err != nil {
		return core.Application{}, fmt.Errorf("encode analysis: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO applications (id, application_number, submitted_at, status, analysis_json, export_status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		app.ID, app.ApplicationNumber, app.Date.UTC(), string(app.Status), string(analysisJSON), ExportPending)
	if err != nil {
		return core.Application{}, fmt.Errorf("insert application: %w", err)
	}

	r.logger.InfoContext(ctx, "application saved",
		applog.FieldApplicationID, app.ID,
		applog.FieldAppNumber, app.ApplicationNumber,
		applog.FieldStatus, string(app.Status))
	return app, nil
}

// List implements registry.Store: most-recent-first (insertion order).
func (r *SQLiteRepository) List(ctx context.Context) ([]core.Application, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, application_number, submitted_at, status, analysis_json
		FROM applications ORDER BY rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var apps []core.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// Reset implements registry.Store.
func (r *SQLiteRepository) Reset(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM applications`); err != nil {
		return fmt.Errorf("reset applications: %w", err)
	}
	return nil
}

// GetApplication loads one application by ID.
func (r *SQLiteRepository) GetApplication(ctx context.Context, id string) (core.Application, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, application_number, submitted_at, status, analysis_json
		FROM applications WHERE id = ?`, id)
	return scanApplication(row)
}

// PendingExport returns up to limit applications not yet exported. This is
// the backup path in case event messages are lost.
func (r *SQLiteRepository) PendingExport(ctx context.Context, limit int) ([]core.Application, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, application_number, submitted_at, status, analysis_json
		FROM applications WHERE export_status = ? ORDER BY rowid ASC LIMIT ?`,
		ExportPending, limit)
	if err != nil {
		return nil, fmt.Errorf("pending export: %w", err)
	}
	defer rows.Close()

	var apps []core.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// MarkExported records a successful export.
func (r *SQLiteRepository) MarkExported(ctx context.Context, id string) error {
	return r.setExportStatus(ctx, id, ExportDone)
}

// MarkExportError records a failed export attempt.
func (r *SQLiteRepository) MarkExportError(ctx context.Context, id string) error {
	return r.setExportStatus(ctx, id, ExportError)
}

func (r *SQLiteRepository) setExportStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE applications SET export_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("set export status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (core.Application, error) {
	var (
		app          core.Application
		status       string
		analysisJSON string
	)
	if err := row.Scan(&app.ID, &app.ApplicationNumber, &app.Date, &status, &analysisJSON); err != nil {
		return core.Application{}, fmt.Errorf("scan application: %w", err)
	}
	app.Status = core.Decision(status)
	if err := json.Unmarshal([]byte(analysisJSON), &app.Analysis); err != nil {
		return core.Application{}, fmt.Errorf("decode analysis: %w", err)
	}
	return app, nil
}
