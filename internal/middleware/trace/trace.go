// Package trace assigns request IDs and logs request lifecycles.
package trace

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	applog "github.com/ledaniel0/ml-loan-analyzer/internal/log"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// Middleware logs the start and completion of every request with a unique
// request ID attached to the context.
type Middleware struct {
	extractIP func(*http.Request) string
	logger    *applog.Logger
}

func NewMiddleware(extractIP func(*http.Request) string) *Middleware {
	return &Middleware{
		extractIP: extractIP,
		logger:    applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP),
	}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		requestID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		m.logger.InfoContext(ctx, "request started",
			applog.FieldRequestID, requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"client_ip", clientIP,
			"content_length", r.ContentLength)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		logFn := m.logger.InfoContext
		switch {
		case rw.statusCode >= 500:
			logFn = m.logger.ErrorContext
		case rw.statusCode >= 400:
			logFn = m.logger.WarnContext
		}

		logFn(ctx, "request completed",
			applog.FieldRequestID, requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", rw.statusCode,
			"duration_ms", duration.Milliseconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RequestID extracts the request ID from ctx, or "" when absent.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
