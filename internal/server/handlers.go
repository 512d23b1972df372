package server

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/ledaniel0/ml-loan-analyzer/internal/analysis"
	"github.com/ledaniel0/ml-loan-analyzer/internal/cache"
	"github.com/ledaniel0/ml-loan-analyzer/internal/core"
	"github.com/ledaniel0/ml-loan-analyzer/internal/extract"
	applog "github.com/ledaniel0/ml-loan-analyzer/internal/log"
	"github.com/ledaniel0/ml-loan-analyzer/internal/normalize"
	"github.com/ledaniel0/ml-loan-analyzer/internal/scoring"
)

const maxUploadBytes = 20 << 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleExtract uploads a statement and returns the normalized transactions
// without running an analysis, so the user can review and edit them first.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	file, filename, ok := s.statementFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	raw, ok := s.extractRecords(r.Context(), w, filename, file)
	if !ok {
		return
	}
	if len(raw) == 0 {
		// An empty set is a valid outcome, not an error. Clients decide
		// whether to treat it as one.
		writeJSON(w, http.StatusOK, map[string]any{"transactions": core.Ledger{}})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"transactions": normalize.Records(raw)})
}

// handleAnalyzeTransactions analyzes a pasted or pre-extracted transaction
// set and registers the resulting application.
func (s *Server) handleAnalyzeTransactions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body could not be read")
		return
	}

	ledger, err := normalize.ParseRecords(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "transactions payload is malformed")
		return
	}

	result, ok := s.runAnalysis(r.Context(), w, ledger)
	if !ok {
		return
	}

	app, ok := s.register(r.Context(), w, result)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": ledger,
		"analysis":     s.serveResult(result),
		"application":  app,
	})
}

// handleAnalyzeStatement runs the combined pipeline: extract, normalize,
// analyze, register.
func (s *Server) handleAnalyzeStatement(w http.ResponseWriter, r *http.Request) {
	file, filename, ok := s.statementFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	raw, ok := s.extractRecords(r.Context(), w, filename, file)
	if !ok {
		return
	}
	if len(raw) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "no transactions could be extracted from the statement")
		return
	}

	ledger := normalize.Records(raw)
	result, ok := s.runAnalysis(r.Context(), w, ledger)
	if !ok {
		return
	}

	app, ok := s.register(r.Context(), w, result)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": ledger,
		"analysis":     s.serveResult(result),
		"application":  app,
	})
}

func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := s.store.List(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "listing applications failed", applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "applications could not be listed")
		return
	}
	if apps == nil {
		apps = []core.Application{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": apps})
}

func (s *Server) handleResetApplications(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Reset(r.Context()); err != nil {
		s.logger.ErrorContext(r.Context(), "resetting applications failed", applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "applications could not be reset")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statementFile pulls the uploaded file out of the multipart form. A missing
// or empty file part is the client's mistake, reported before any upstream
// call.
func (s *Server) statementFile(w http.ResponseWriter, r *http.Request) (multipart.File, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no statement file provided")
		return nil, "", false
	}
	if header.Filename == "" {
		file.Close()
		writeError(w, http.StatusBadRequest, "no statement file provided")
		return nil, "", false
	}
	return file, header.Filename, true
}

func (s *Server) extractRecords(ctx context.Context, w http.ResponseWriter, filename string, file io.Reader) ([]map[string]any, bool) {
	if s.extractor == nil {
		writeError(w, http.StatusServiceUnavailable, "statement extraction is not configured")
		return nil, false
	}

	raw, err := s.extractor.Extract(ctx, filename, file)
	if err != nil {
		if errors.Is(err, extract.ErrRateLimited) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "extraction rate limit reached, try again shortly")
			return nil, false
		}
		s.logger.ErrorContext(ctx, "statement extraction failed",
			"filename", filename, applog.FieldError, err)
		writeError(w, http.StatusBadGateway, "statement could not be processed")
		return nil, false
	}
	return raw, true
}

// runAnalysis computes aggregates locally and, when a scorer is configured,
// promotes the result with the remote verdict. Identical ledgers within the
// cache window reuse the previous verdict instead of paying for another
// scoring call.
func (s *Server) runAnalysis(ctx context.Context, w http.ResponseWriter, ledger core.Ledger) (core.AnalysisResult, bool) {
	key := cache.LedgerKey(ledger)
	if key != "" {
		if cached, ok := s.results.Get(key); ok {
			return cached, true
		}
	}

	result := analysis.Analyze(ledger)
	if s.scorer != nil {
		scored, err := s.scorer.Score(ctx, result)
		switch {
		case err == nil:
			result = scored
		case errors.Is(err, scoring.ErrRateLimited):
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "analysis rate limit reached, try again shortly")
			return core.AnalysisResult{}, false
		default:
			// Scoring outages degrade to the local placeholder result
			// rather than failing the whole request.
			s.logger.WarnContext(ctx, "scoring unavailable, serving local result",
				applog.FieldError, err)
		}
	}

	if key != "" {
		s.results.Set(key, result)
	}
	return result, true
}

// serveResult caps the recurring list for the response. The registry keeps
// the full set.
func (s *Server) serveResult(result core.AnalysisResult) core.AnalysisResult {
	result.RecurringExpenses = analysis.TopK(result.RecurringExpenses, s.topK)
	return result
}

func (s *Server) register(ctx context.Context, w http.ResponseWriter, result core.AnalysisResult) (core.Application, bool) {
	app, err := s.store.Register(ctx, result)
	if err != nil {
		s.logger.ErrorContext(ctx, "registering application failed", applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "application could not be registered")
		return core.Application{}, false
	}

	if s.events != nil {
		// Fire-and-forget: a lost event is recovered by the worker's
		// pending scan.
		go func() {
			if err := s.events.PublishApplicationRegistered(context.WithoutCancel(ctx), app.ID, string(app.Status)); err != nil {
				s.logger.Warn("publishing registration event failed",
					applog.FieldApplicationID, app.ID, applog.FieldError, err)
			}
		}()
	}

	s.logger.InfoContext(ctx, "application registered",
		applog.FieldApplicationID, app.ID,
		applog.FieldAppNumber, app.ApplicationNumber,
		applog.FieldStatus, string(app.Status),
		applog.FieldSource, string(result.Source))
	return app, true
}
