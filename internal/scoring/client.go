// Package scoring calls the external loan-scoring service. The service is an
// opaque JSON contract: it receives aggregate metrics and answers with a
// decision and confidence, or a free-form completion when it cannot produce
// structured fields.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ledaniel0/ml-loan-analyzer/internal/core"
	applog "github.com/ledaniel0/ml-loan-analyzer/internal/log"
)

// ErrRateLimited reports that the scoring service asked us to back off.
var ErrRateLimited = errors.New("scoring service rate limited")

type Client struct {
	url    string
	httpc  *http.Client
	logger *applog.Logger
}

// NewClient creates a scorer client. A nil httpClient gets a default with a
// request timeout.
func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		url:    url,
		httpc:  httpClient,
		logger: applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentScoring),
	}
}

type scoreRequest struct {
	TotalIncome       string                  `json:"total_income"`
	TotalExpenses     string                  `json:"total_expenses"`
	NetFlow           string                  `json:"net_flow"`
	RecurringExpenses []core.RecurringExpense `json:"recurring_expenses"`
}

type scoreResponse struct {
	Decision        core.Decision `json:"decision"`
	ConfidenceScore float64       `json:"confidence_score"`
	RawCompletion   string        `json:"raw_completion"`
}

// Score submits the locally computed aggregates and merges the scorer's
// verdict into the result, promoting it to an authoritative remote result.
func (c *Client) Score(ctx context.Context, result core.AnalysisResult) (core.AnalysisResult, error) {
	payload, err := json.Marshal(scoreRequest{
		TotalIncome:       result.TotalIncome.String(),
		TotalExpenses:     result.TotalExpenses.String(),
		NetFlow:           result.NetFlow.String(),
		RecurringExpenses: result.RecurringExpenses,
	})
	if err != nil {
		return result, fmt.Errorf("encode score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return result, fmt.Errorf("build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return result, fmt.Errorf("call scoring service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return result, fmt.Errorf("read score response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return result, ErrRateLimited
	}
	if resp.StatusCode >= 400 {
		return result, fmt.Errorf("scoring service returned status %d", resp.StatusCode)
	}

	var sr scoreResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return result, fmt.Errorf("decode score response: %w", err)
	}

	result.Decision = sr.Decision
	result.ConfidenceScore = clamp(sr.ConfidenceScore)
	result.RawCompletion = sr.RawCompletion
	result.Source = core.SourceRemote

	c.logger.InfoContext(ctx, "scored application",
		applog.FieldDecision, string(result.Decision),
		"confidence", result.ConfidenceScore)
	return result, nil
}

// clamp forces the confidence into [0,1]; percentage-native services get
// divided by 100 exactly once.
func clamp(v float64) float64 {
	if v > 1 {
		v = v / 100
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
