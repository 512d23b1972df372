package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ledaniel0/ml-loan-analyzer/internal/core"
)

func localResult() core.AnalysisResult {
	return core.AnalysisResult{
		TotalIncome:   decimal.NewFromInt(100),
		TotalExpenses: decimal.NewFromInt(80),
		NetFlow:       decimal.NewFromInt(20),
		Decision:      core.DecisionApproved,
		Source:        core.SourceLocal,
	}
}

func TestScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["net_flow"] != "20" {
			t.Errorf("net_flow = %v", req["net_flow"])
		}
		w.Write([]byte(`{"decision":"Denied","confidence_score":0.31,"raw_completion":"income too volatile"}`))
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL, srv.Client()).Score(context.Background(), localResult())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Decision != core.DecisionDenied {
		t.Errorf("decision = %q", got.Decision)
	}
	if got.ConfidenceScore != 0.31 {
		t.Errorf("confidence = %v", got.ConfidenceScore)
	}
	if got.RawCompletion != "income too volatile" {
		t.Errorf("raw completion = %q", got.RawCompletion)
	}
	if got.Source != core.SourceRemote {
		t.Errorf("source = %q, want remote", got.Source)
	}
	// Totals pass through untouched.
	if !got.NetFlow.Equal(decimal.NewFromInt(20)) {
		t.Errorf("net flow = %s", got.NetFlow)
	}
}

func TestScoreRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, srv.Client()).Score(context.Background(), localResult())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestScoreFailureLeavesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL, srv.Client()).Score(context.Background(), localResult())
	if err == nil {
		t.Fatal("expected error")
	}
	if got.Source != core.SourceLocal {
		t.Errorf("failed scoring must not promote the result, got %q", got.Source)
	}
}

func TestClamp(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0.5, 0.5},
		{0, 0},
		{1, 1},
		{85, 0.85},
		{150, 1},
		{-0.2, 0},
	}
	for _, tc := range cases {
		if got := clamp(tc.in); got != tc.want {
			t.Errorf("clamp(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
