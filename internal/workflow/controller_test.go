package workflow

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledaniel0/ml-loan-analyzer/internal/core"
	"github.com/ledaniel0/ml-loan-analyzer/internal/gateway"
	"github.com/ledaniel0/ml-loan-analyzer/internal/registry"
)

// blockingGateway parks every call until the test releases it through the
// per-call channel, so tests control completion order.
type blockingGateway struct {
	calls   chan chan outcome
	stmCall chan chan outcome
}

type outcome struct {
	result core.AnalysisResult
	err    error
}

func newBlockingGateway() *blockingGateway {
	return &blockingGateway{
		calls:   make(chan chan outcome, 4),
		stmCall: make(chan chan outcome, 4),
	}
}

func (g *blockingGateway) Analyze(_ context.Context, _ core.Ledger) (core.AnalysisResult, error) {
	release := make(chan outcome)
	g.calls <- release
	o := <-release
	return o.result, o.err
}

func (g *blockingGateway) AnalyzeStatement(_ context.Context, _ string, _ io.Reader) (core.AnalysisResult, error) {
	release := make(chan outcome)
	g.stmCall <- release
	o := <-release
	return o.result, o.err
}

func approvedResult() core.AnalysisResult {
	return core.AnalysisResult{
		TotalIncome:     decimal.NewFromInt(100),
		TotalExpenses:   decimal.NewFromInt(80),
		NetFlow:         decimal.NewFromInt(20),
		Decision:        core.DecisionApproved,
		ConfidenceScore: 0.91,
		Source:          core.SourceRemote,
	}
}

func newTestController(gw Analyzer) (*Controller, *registry.Memory) {
	store := registry.NewMemory(registry.UUIDGenerator{}, time.Now)
	return NewController(gw, store), store
}

func waitForState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if c.State() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("state = %s, want %s", c.State(), want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func waitForNotInFlight(t *testing.T, c *Controller) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if !c.Snapshot().InFlight {
			return
		}
		select {
		case <-deadline:
			t.Fatal("submission still in flight")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestTransitions(t *testing.T) {
	c, _ := newTestController(newBlockingGateway())

	assert.Equal(t, StateDashboard, c.State())
	require.NoError(t, c.StartApplication())
	assert.Equal(t, StateEnteringData, c.State())

	// The editable ledger starts as the single default row.
	ledger := c.Ledger()
	require.Len(t, ledger, 1)
	assert.Equal(t, core.DefaultTransaction(), ledger[0])
}

func TestInvalidTransitions(t *testing.T) {
	c, _ := newTestController(newBlockingGateway())

	assert.ErrorIs(t, c.Acknowledge(), ErrInvalidTransition)
	_, err := c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, c.StartApplication())
	assert.ErrorIs(t, c.StartApplication(), ErrInvalidTransition)
}

func TestSubmitSuccessRegistersApplication(t *testing.T) {
	gw := newBlockingGateway()
	c, store := newTestController(gw)
	require.NoError(t, c.StartApplication())

	_, err := c.Submit(context.Background())
	require.NoError(t, err)

	release := <-gw.calls
	release <- outcome{result: approvedResult()}

	waitForState(t, c, StateShowingResult)

	res := c.Result()
	require.NotNil(t, res)
	assert.Equal(t, core.DecisionApproved, res.Decision)

	app := c.CurrentApplication()
	require.NotNil(t, app)
	assert.Equal(t, core.DecisionApproved, app.Status)

	apps, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, app.ID, apps[0].ID)

	require.NoError(t, c.Acknowledge())
	assert.Equal(t, StateDashboard, c.State())
	assert.Nil(t, c.Result())
}

func TestSubmitFailureStaysInEnteringData(t *testing.T) {
	gw := newBlockingGateway()
	c, store := newTestController(gw)
	require.NoError(t, c.StartApplication())

	edited := core.Ledger{{
		Date:        "2024-03-01",
		Description: "Salary",
		Credit:      decimal.NewFromInt(100),
	}}
	require.NoError(t, c.SetLedger(edited))

	_, err := c.Submit(context.Background())
	require.NoError(t, err)

	release := <-gw.calls
	release <- outcome{err: &gateway.Error{Kind: gateway.KindRateLimited, Message: "analysis rate limit reached, try again shortly"}}

	waitForNotInFlight(t, c)

	// No result view, no registration, edits preserved.
	assert.Equal(t, StateEnteringData, c.State())
	require.NotNil(t, c.LastError())
	assert.Equal(t, gateway.KindRateLimited, c.LastError().Kind)
	assert.Equal(t, edited, c.Ledger())

	apps, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, apps)

	// Retry after the failure succeeds.
	_, err = c.Submit(context.Background())
	require.NoError(t, err)
	release = <-gw.calls
	release <- outcome{result: approvedResult()}
	waitForState(t, c, StateShowingResult)
	assert.Nil(t, c.LastError())
}

func TestEmptyResultResetsLedger(t *testing.T) {
	gw := newBlockingGateway()
	c, _ := newTestController(gw)
	require.NoError(t, c.StartApplication())

	_, err := c.Submit(context.Background())
	require.NoError(t, err)

	release := <-gw.calls
	release <- outcome{err: &gateway.Error{Kind: gateway.KindEmptyResult, Message: "no transactions found"}}

	waitForNotInFlight(t, c)
	assert.Equal(t, StateEnteringData, c.State())
	assert.Equal(t, core.DefaultLedger(), c.Ledger())
}

func TestSingleSubmissionInFlight(t *testing.T) {
	gw := newBlockingGateway()
	c, _ := newTestController(gw)
	require.NoError(t, c.StartApplication())

	_, err := c.Submit(context.Background())
	require.NoError(t, err)

	_, err = c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	release := <-gw.calls
	release <- outcome{result: approvedResult()}
	waitForState(t, c, StateShowingResult)
}

func TestForceDashboardSuppressesLateResponse(t *testing.T) {
	gw := newBlockingGateway()
	c, store := newTestController(gw)
	require.NoError(t, c.StartApplication())

	_, err := c.Submit(context.Background())
	require.NoError(t, err)
	release := <-gw.calls

	// The user bails out while the call is outstanding.
	c.ForceDashboard()
	assert.Equal(t, StateDashboard, c.State())

	// The response arrives late and must be dropped entirely.
	release <- outcome{result: approvedResult()}

	// Start a fresh session; the stale response must not surface in it.
	require.NoError(t, c.StartApplication())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateEnteringData, c.State())
	assert.Nil(t, c.Result())
	assert.Nil(t, c.LastError())

	apps, listErr := store.List(context.Background())
	require.NoError(t, listErr)
	assert.Empty(t, apps, "stale response must not register an application")
}

func TestStaleTokenIgnored(t *testing.T) {
	gw := newBlockingGateway()
	c, _ := newTestController(gw)
	require.NoError(t, c.StartApplication())

	token, err := c.Submit(context.Background())
	require.NoError(t, err)
	release := <-gw.calls

	c.ForceDashboard()
	require.NoError(t, c.StartApplication())

	// Resolving the abandoned token directly has no effect either.
	c.ResolveSubmission(token, approvedResult(), nil)
	assert.Equal(t, StateEnteringData, c.State())
	assert.Nil(t, c.Result())

	release <- outcome{err: &gateway.Error{Kind: gateway.KindTransport, Message: "canceled"}}
}

func TestSubmitStatement(t *testing.T) {
	gw := newBlockingGateway()
	c, _ := newTestController(gw)
	require.NoError(t, c.StartApplication())

	_, err := c.SubmitStatement(context.Background(), "statement.csv", nil)
	require.NoError(t, err)

	release := <-gw.stmCall
	release <- outcome{result: approvedResult()}
	waitForState(t, c, StateShowingResult)
}

func TestSetLedgerEmptyFallsBackToDefault(t *testing.T) {
	c, _ := newTestController(newBlockingGateway())
	require.NoError(t, c.StartApplication())
	require.NoError(t, c.SetLedger(nil))
	assert.Equal(t, core.DefaultLedger(), c.Ledger())
}

func TestSnapshot(t *testing.T) {
	gw := newBlockingGateway()
	c, _ := newTestController(gw)
	require.NoError(t, c.StartApplication())

	_, err := c.Submit(context.Background())
	require.NoError(t, err)

	snap := c.Snapshot()
	assert.Equal(t, StateEnteringData, snap.State)
	assert.True(t, snap.InFlight)
	assert.Len(t, snap.Ledger, 1)

	release := <-gw.calls
	release <- outcome{result: approvedResult()}
	waitForState(t, c, StateShowingResult)

	snap = c.Snapshot()
	assert.False(t, snap.InFlight)
	require.NotNil(t, snap.Result)
}
