// Package workflow owns the session state machine that sequences ingestion,
// analysis, and result presentation. The controller is the single source of
// truth for what the user is doing now.
package workflow

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/ledaniel0/ml-loan-analyzer/internal/core"
	"github.com/ledaniel0/ml-loan-analyzer/internal/gateway"
	applog "github.com/ledaniel0/ml-loan-analyzer/internal/log"
	"github.com/ledaniel0/ml-loan-analyzer/internal/registry"
)

// State is the session's workflow position. Exactly one is active.
type State string

const (
	StateDashboard     State = "Dashboard"
	StateEnteringData  State = "EnteringData"
	StateShowingResult State = "ShowingResult"
)

var (
	ErrInvalidTransition  = errors.New("invalid workflow transition")
	ErrSubmissionInFlight = errors.New("a submission is already in flight")
)

// Analyzer is the gateway surface the controller drives.
type Analyzer interface {
	Analyze(ctx context.Context, ledger core.Ledger) (core.AnalysisResult, error)
	AnalyzeStatement(ctx context.Context, filename string, file io.Reader) (core.AnalysisResult, error)
}

// Controller sequences one interactive session. All mutations run under a
// single lock; gateway completions are the only cross-goroutine entry and
// they apply exactly once, only for the most recent submission.
type Controller struct {
	mu       sync.Mutex
	state    State
	ledger   core.Ledger
	result   *core.AnalysisResult
	current  *core.Application
	lastErr  *gateway.Error
	seq      uint64
	inFlight bool

	gateway  Analyzer
	registry registry.Store
	logger   *applog.Logger
}

func NewController(gw Analyzer, store registry.Store) *Controller {
	return &Controller{
		state:    StateDashboard,
		gateway:  gw,
		registry: store,
		logger:   applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentWorkflow),
	}
}

// State returns the active workflow state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StartApplication moves Dashboard -> EnteringData and seeds the editable
// ledger with the single default row.
func (c *Controller) StartApplication() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateDashboard {
		return ErrInvalidTransition
	}
	c.state = StateEnteringData
	c.ledger = core.DefaultLedger()
	c.result = nil
	c.current = nil
	c.lastErr = nil
	return nil
}

// SetLedger replaces the in-progress ledger. Row editing stays responsive
// while a remote call is outstanding.
func (c *Controller) SetLedger(ledger core.Ledger) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateEnteringData {
		return ErrInvalidTransition
	}
	if len(ledger) == 0 {
		ledger = core.DefaultLedger()
	}
	c.ledger = ledger
	return nil
}

// Ledger returns a copy of the in-progress ledger.
func (c *Controller) Ledger() core.Ledger {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(core.Ledger, len(c.ledger))
	copy(out, c.ledger)
	return out
}

// Submit sends the current ledger for analysis. It returns the submission
// token; the outcome arrives asynchronously via ResolveSubmission.
func (c *Controller) Submit(ctx context.Context) (uint64, error) {
	token, ledger, err := c.begin()
	if err != nil {
		return 0, err
	}
	go func() {
		res, aerr := c.gateway.Analyze(ctx, ledger)
		c.ResolveSubmission(token, res, aerr)
	}()
	return token, nil
}

// SubmitStatement uploads a statement file for combined extraction and
// analysis.
func (c *Controller) SubmitStatement(ctx context.Context, filename string, file io.Reader) (uint64, error) {
	token, _, err := c.begin()
	if err != nil {
		return 0, err
	}
	go func() {
		res, aerr := c.gateway.AnalyzeStatement(ctx, filename, file)
		c.ResolveSubmission(token, res, aerr)
	}()
	return token, nil
}

// begin validates the transition and issues a fresh submission token.
// Exactly one gateway call may be in flight per session; a second submission
// is rejected before any network activity.
func (c *Controller) begin() (uint64, core.Ledger, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateEnteringData {
		return 0, nil, ErrInvalidTransition
	}
	if c.inFlight {
		return 0, nil, ErrSubmissionInFlight
	}
	c.seq++
	c.inFlight = true
	c.lastErr = nil
	ledger := make(core.Ledger, len(c.ledger))
	copy(ledger, c.ledger)
	return c.seq, ledger, nil
}

// ResolveSubmission applies the outcome of a submission. A response whose
// token is not the latest issued one is stale, meaning the user has since
// abandoned that call, and is dropped without touching state.
func (c *Controller) ResolveSubmission(token uint64, result core.AnalysisResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if token != c.seq || c.state != StateEnteringData {
		c.logger.Debug("dropping stale submission response",
			applog.FieldToken, token,
			applog.FieldWorkflowState, string(c.state))
		return
	}
	c.inFlight = false

	if err != nil {
		ge, ok := gateway.AsError(err)
		if !ok {
			ge = &gateway.Error{Kind: gateway.KindTransport, Message: "analysis failed, try again"}
		}
		c.lastErr = ge
		if ge.Kind == gateway.KindEmptyResult {
			c.ledger = core.DefaultLedger()
		}
		c.logger.Warn("submission failed",
			applog.FieldToken, token,
			applog.FieldErrorKind, string(ge.Kind))
		return
	}

	app, regErr := c.registry.Register(context.Background(), result)
	if regErr != nil {
		c.lastErr = &gateway.Error{Kind: gateway.KindRejected, Message: "analysis completed but the application could not be recorded"}
		c.logger.Error("registration failed",
			applog.FieldToken, token,
			applog.FieldError, regErr)
		return
	}

	c.result = &result
	c.current = &app
	c.state = StateShowingResult
	c.logger.Info("submission succeeded",
		applog.FieldToken, token,
		applog.FieldApplicationID, app.ID,
		applog.FieldStatus, string(app.Status))
}

// Acknowledge moves ShowingResult -> Dashboard.
func (c *Controller) Acknowledge() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateShowingResult {
		return ErrInvalidTransition
	}
	c.state = StateDashboard
	c.ledger = nil
	c.result = nil
	c.lastErr = nil
	return nil
}

// ForceDashboard returns to Dashboard from any state, discarding unsubmitted
// edits without confirmation. Bumping the token supersedes any outstanding
// call, so its late result is ignored.
func (c *Controller) ForceDashboard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.inFlight = false
	c.state = StateDashboard
	c.ledger = nil
	c.result = nil
	c.current = nil
	c.lastErr = nil
}

// Result returns the analysis shown in ShowingResult, or nil.
func (c *Controller) Result() *core.AnalysisResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// CurrentApplication returns the application registered by the last
// successful submission, or nil.
func (c *Controller) CurrentApplication() *core.Application {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// LastError returns the classified error surfaced by the last failed
// submission, or nil.
func (c *Controller) LastError() *gateway.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Snapshot is a serializable view of the session for deterministic testing
// and debugging.
type Snapshot struct {
	State     State                `json:"state"`
	Ledger    core.Ledger          `json:"ledger,omitempty"`
	Result    *core.AnalysisResult `json:"result,omitempty"`
	ErrorKind gateway.Kind         `json:"error_kind,omitempty"`
	InFlight  bool                 `json:"in_flight"`
}

// Snapshot captures the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{State: c.state, InFlight: c.inFlight}
	s.Ledger = append(core.Ledger(nil), c.ledger...)
	s.Result = c.result
	if c.lastErr != nil {
		s.ErrorKind = c.lastErr.Kind
	}
	return s
}
