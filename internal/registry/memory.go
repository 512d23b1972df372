package registry

import (
	"context"
	"sync"
	"time"

	"github.com/ledaniel0/ml-loan-analyzer/internal/core"
)

// Memory is the in-process session registry, the default backend.
type Memory struct {
	mu   sync.Mutex
	gen  IDGenerator
	now  func() time.Time
	apps []core.Application
}

// NewMemory creates a memory registry. Nil generator or clock fall back to
// the defaults.
func NewMemory(gen IDGenerator, now func() time.Time) *Memory {
	if gen == nil {
		gen = UUIDGenerator{}
	}
	if now == nil {
		now = time.Now
	}
	return &Memory{gen: gen, now: now}
}

// Register creates a fresh Application and prepends it.
func (m *Memory) Register(_ context.Context, result core.AnalysisResult) (core.Application, error) {
	app := Build(m.gen, m.now, result)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.apps = append([]core.Application{app}, m.apps...)
	return app, nil
}

// List returns applications most-recent-first.
func (m *Memory) List(_ context.Context) ([]core.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Application, len(m.apps))
	copy(out, m.apps)
	return out, nil
}

// Reset clears the session.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apps = nil
	return nil
}
