package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ledaniel0/ml-loan-analyzer/internal/core"
)

func serve(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, srv.Client())
}

func sampleLedger() core.Ledger {
	tx := core.DefaultTransaction()
	tx.Description = "Gym"
	tx.Debit = decimal.NewFromInt(40)
	return core.Ledger{tx}
}

func TestAnalyzeSuccess(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transactions/analyze" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		w.Write([]byte(`{
			"transactions": [{"description":"Gym","debit":40}],
			"analysis": {
				"total_income": 0, "total_expenses": 40, "net_flow": -40,
				"recurring_expenses": [],
				"decision": "Approved", "confidence_score": 0.9
			}
		}`))
	})

	res, err := c.Analyze(context.Background(), sampleLedger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Decision != core.DecisionApproved {
		t.Errorf("decision = %q", res.Decision)
	}
	if res.Source != core.SourceRemote {
		t.Errorf("remote results must carry the remote marker, got %q", res.Source)
	}
	if res.ConfidenceScore != 0.9 {
		t.Errorf("confidence = %v", res.ConfidenceScore)
	}
}

func TestAnalyzeConfidenceClamping(t *testing.T) {
	// Some service revisions report percentages instead of fractions.
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"analysis": {"decision": "Denied", "confidence_score": 85}}`))
	})

	res, err := c.Analyze(context.Background(), sampleLedger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ConfidenceScore != 0.85 {
		t.Errorf("confidence = %v, want 0.85", res.ConfidenceScore)
	}
}

func TestAnalyzeEmptyLedgerIsLocalError(t *testing.T) {
	called := false
	c := serve(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := c.Analyze(context.Background(), nil)
	ge, ok := AsError(err)
	if !ok || ge.Kind != KindMalformedInput {
		t.Fatalf("err = %v, want malformed input", err)
	}
	if called {
		t.Error("no network call may be attempted for local failures")
	}
}

func TestRateLimited(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Analyze(context.Background(), sampleLedger())
	ge, ok := AsError(err)
	if !ok || ge.Kind != KindRateLimited {
		t.Fatalf("err = %v, want rate limited", err)
	}
	if !ge.Retryable() {
		t.Error("rate limiting must be retryable")
	}
}

func TestRejectedWithDetail(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail": "statement could not be read"}`))
	})

	_, err := c.Analyze(context.Background(), sampleLedger())
	ge, ok := AsError(err)
	if !ok || ge.Kind != KindRejected {
		t.Fatalf("err = %v, want rejected", err)
	}
	if ge.Message != "statement could not be read" {
		t.Errorf("detail must be surfaced verbatim, got %q", ge.Message)
	}
	if ge.Retryable() {
		t.Error("rejections are not retryable")
	}
}

func TestRejectedWithoutDetail(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Analyze(context.Background(), sampleLedger())
	ge, ok := AsError(err)
	if !ok || ge.Kind != KindRejected {
		t.Fatalf("err = %v, want rejected", err)
	}
	if !strings.Contains(ge.Message, "500") {
		t.Errorf("generic message should mention the status, got %q", ge.Message)
	}
}

func TestEmptyAnalysis(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transactions": []}`))
	})

	_, err := c.Analyze(context.Background(), sampleLedger())
	if ge, ok := AsError(err); !ok || ge.Kind != KindEmptyResult {
		t.Fatalf("err = %v, want empty result", err)
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := NewClient(srv.URL, nil)
	srv.Close() // connection refused from here on

	_, err := c.Analyze(context.Background(), sampleLedger())
	ge, ok := AsError(err)
	if !ok || ge.Kind != KindTransport {
		t.Fatalf("err = %v, want transport failure", err)
	}
	if !ge.Retryable() {
		t.Error("transport failures must be retryable")
	}
}

func TestExtractTransactions(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/statements/extract" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("expected multipart body: %v", err)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file field: %v", err)
		}
		f.Close()
		if hdr.Filename != "statement.pdf" {
			t.Errorf("filename = %s", hdr.Filename)
		}
		// Raw records with a malformed debit; the gateway must normalize.
		w.Write([]byte(`{"transactions": [
			{"date":"2025-01-02","description":" Rent ","debit":"700.00"},
			{"description":"oops","debit":"n/a"}
		]}`))
	})

	ledger, err := c.ExtractTransactions(context.Background(), "statement.pdf", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ledger) != 2 {
		t.Fatalf("len = %d", len(ledger))
	}
	if ledger[0].Description != "Rent" {
		t.Errorf("description = %q", ledger[0].Description)
	}
	if !ledger[1].Debit.IsZero() {
		t.Errorf("malformed debit must degrade to zero, got %s", ledger[1].Debit)
	}
}

func TestExtractNoFile(t *testing.T) {
	c := NewClient("http://unused.invalid", nil)

	_, err := c.ExtractTransactions(context.Background(), "", nil)
	if ge, ok := AsError(err); !ok || ge.Kind != KindNoFileSelected {
		t.Fatalf("err = %v, want no file selected", err)
	}
}

func TestExtractEmptyResultResetsLedger(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transactions": []}`))
	})

	ledger, err := c.ExtractTransactions(context.Background(), "s.pdf", strings.NewReader("x"))
	if ge, ok := AsError(err); !ok || ge.Kind != KindEmptyResult {
		t.Fatalf("err = %v, want empty result", err)
	}
	if len(ledger) != 1 || !ledger[0].IsZero() {
		t.Errorf("ledger must reset to the single default row, got %+v", ledger)
	}
}

func TestAnalyzeStatement(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/statements/analyze" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"analysis": {"total_income": 100, "total_expenses": 80, "net_flow": 20, "decision": "Approved", "confidence_score": 0.72}}`))
	})

	res, err := c.AnalyzeStatement(context.Background(), "s.pdf", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.NetFlow.Equal(decimal.NewFromInt(20)) {
		t.Errorf("net flow = %s", res.NetFlow)
	}
	if res.Source != core.SourceRemote {
		t.Errorf("source = %q", res.Source)
	}
}

func TestListApplications(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/applications" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"applications": [{"id": "a1", "application_number": "APP-0042", "status": "Approved"}]}`))
	})

	apps, err := c.ListApplications(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(apps) != 1 || apps[0].ApplicationNumber != "APP-0042" {
		t.Errorf("applications = %+v", apps)
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(context.DeadlineExceeded) != KindTransport {
		t.Error("unclassified errors default to transport failure")
	}
	if KindOf(newError(KindEmptyResult, "x", nil)) != KindEmptyResult {
		t.Error("classified errors keep their kind")
	}
}
