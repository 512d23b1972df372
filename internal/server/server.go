// Package server exposes the loan-analysis HTTP API: statement extraction,
// transaction analysis, and the application registry.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ledaniel0/ml-loan-analyzer/internal/cache"
	"github.com/ledaniel0/ml-loan-analyzer/internal/core"
	applog "github.com/ledaniel0/ml-loan-analyzer/internal/log"
	"github.com/ledaniel0/ml-loan-analyzer/internal/middleware/ratelimit"
	"github.com/ledaniel0/ml-loan-analyzer/internal/middleware/trace"
	"github.com/ledaniel0/ml-loan-analyzer/internal/registry"
)

// Extractor turns an uploaded statement into raw transaction records.
type Extractor interface {
	Extract(ctx context.Context, filename string, file io.Reader) ([]map[string]any, error)
}

// Scorer merges an authoritative decision into a locally computed result.
type Scorer interface {
	Score(ctx context.Context, result core.AnalysisResult) (core.AnalysisResult, error)
}

// Publisher emits registration events.
type Publisher interface {
	PublishApplicationRegistered(ctx context.Context, id, status string) error
}

// Options configures the server. Extractor, Scorer, and Events are optional;
// a nil Scorer means analyses stay on the local fallback path.
type Options struct {
	Addr               string
	Store              registry.Store
	Extractor          Extractor
	Scorer             Scorer
	Events             Publisher
	RecurringTopK      int
	RateLimitPerMinute int
}

type Server struct {
	http.Server

	store     registry.Store
	extractor Extractor
	scorer    Scorer
	events    Publisher
	topK      int

	results  *cache.LRUCache[core.AnalysisResult]
	cacheMgr *cache.Manager
	limiter  *ratelimit.Limiter
	logger   *applog.Logger

	shutdownOnce sync.Once
}

// New configures routes and middleware, returning a ready-to-run server.
func New(opts Options) *Server {
	s := &Server{
		store:     opts.Store,
		extractor: opts.Extractor,
		scorer:    opts.Scorer,
		events:    opts.Events,
		topK:      opts.RecurringTopK,
		results:   cache.NewLRUCache[core.AnalysisResult](200, 5*time.Minute),
		cacheMgr:  cache.NewManager(),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
		}),
		logger: applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP),
	}

	s.cacheMgr.Register(s.results)
	s.cacheMgr.StartCleanup(10 * time.Minute)

	mux := http.NewServeMux()
	limited := s.limiter.Middleware(clientIP)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("POST /v1/statements/extract", limited(http.HandlerFunc(s.handleExtract)))
	mux.Handle("POST /v1/transactions/analyze", limited(http.HandlerFunc(s.handleAnalyzeTransactions)))
	mux.Handle("POST /v1/statements/analyze", limited(http.HandlerFunc(s.handleAnalyzeStatement)))
	mux.HandleFunc("GET /v1/applications", s.handleListApplications)
	mux.HandleFunc("DELETE /v1/applications", s.handleResetApplications)

	// Aliases kept for clients that predate the versioned API.
	mux.Handle("POST /upload-statement", limited(http.HandlerFunc(s.handleExtract)))
	mux.Handle("POST /upload-pdf", limited(http.HandlerFunc(s.handleExtract)))
	mux.Handle("POST /analyze-transactions", limited(http.HandlerFunc(s.handleAnalyzeTransactions)))
	mux.Handle("POST /analyze-statement", limited(http.HandlerFunc(s.handleAnalyzeStatement)))

	tracer := trace.NewMiddleware(clientIP)
	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           tracer.Middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown stops the HTTP listener and background maintenance.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.cacheMgr.Stop()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// clientIP prefers forwarding headers, falling back to the socket peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError uses the single error envelope the whole API speaks.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
