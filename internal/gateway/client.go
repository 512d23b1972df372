// Package gateway mediates calls to the external analysis backend. Every
// failure is converted to a classified Error at this boundary.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/ledaniel0/ml-loan-analyzer/internal/core"
	applog "github.com/ledaniel0/ml-loan-analyzer/internal/log"
	"github.com/ledaniel0/ml-loan-analyzer/internal/normalize"
)

const defaultTimeout = 60 * time.Second

// Client talks to the analysis backend's versioned API.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *applog.Logger
}

// NewClient creates a gateway client for the given base URL. A nil
// httpClient falls back to a default with a request timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: baseURL,
		httpc:   httpClient,
		logger:  applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentGateway),
	}
}

// Response envelopes. Transactions come back as raw records and are run
// through the normalizer rather than trusted field-by-field.
type (
	extractEnvelope struct {
		Transactions []map[string]any `json:"transactions"`
	}

	analyzeEnvelope struct {
		Transactions []map[string]any     `json:"transactions"`
		Analysis     *core.AnalysisResult `json:"analysis"`
	}

	statementEnvelope struct {
		Analysis *core.AnalysisResult `json:"analysis"`
	}

	applicationsEnvelope struct {
		Applications []core.Application `json:"applications"`
	}

	errorEnvelope struct {
		Detail string `json:"detail"`
	}
)

// ExtractTransactions uploads a statement file and returns the extracted,
// normalized ledger without running an analysis.
func (c *Client) ExtractTransactions(ctx context.Context, filename string, file io.Reader) (core.Ledger, error) {
	body, err := c.uploadStatement(ctx, "/v1/statements/extract", filename, file)
	if err != nil {
		return nil, err
	}

	var env extractEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, newError(KindRejected, "analysis service returned an unreadable response", err)
	}
	if len(env.Transactions) == 0 {
		return core.DefaultLedger(), newError(KindEmptyResult, "no transactions could be extracted from the statement", nil)
	}
	return normalize.Records(env.Transactions), nil
}

// Analyze submits an already-normalized ledger for analysis only.
func (c *Client) Analyze(ctx context.Context, ledger core.Ledger) (core.AnalysisResult, error) {
	if len(ledger) == 0 {
		return core.AnalysisResult{}, newError(KindMalformedInput, "no transactions to analyze", core.ErrEmptyLedger)
	}

	payload, err := json.Marshal(map[string]any{"transactions": ledger})
	if err != nil {
		return core.AnalysisResult{}, newError(KindMalformedInput, "transactions could not be encoded", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transactions/analyze", bytes.NewReader(payload))
	if err != nil {
		return core.AnalysisResult{}, newError(KindTransport, "building analyze request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return core.AnalysisResult{}, err
	}

	var env analyzeEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return core.AnalysisResult{}, newError(KindRejected, "analysis service returned an unreadable response", err)
	}
	if env.Analysis == nil {
		return core.AnalysisResult{}, newError(KindEmptyResult, "analysis service returned no analysis", nil)
	}
	return remoteResult(*env.Analysis), nil
}

// AnalyzeStatement uploads a statement file for combined extraction and
// analysis.
func (c *Client) AnalyzeStatement(ctx context.Context, filename string, file io.Reader) (core.AnalysisResult, error) {
	body, err := c.uploadStatement(ctx, "/v1/statements/analyze", filename, file)
	if err != nil {
		return core.AnalysisResult{}, err
	}

	var env statementEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return core.AnalysisResult{}, newError(KindRejected, "analysis service returned an unreadable response", err)
	}
	if env.Analysis == nil {
		return core.AnalysisResult{}, newError(KindEmptyResult, "analysis service returned no analysis", nil)
	}
	return remoteResult(*env.Analysis), nil
}

// ListApplications fetches the registered applications, most recent first.
func (c *Client) ListApplications(ctx context.Context) ([]core.Application, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/applications", nil)
	if err != nil {
		return nil, newError(KindTransport, "building list request", err)
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var env applicationsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, newError(KindRejected, "analysis service returned an unreadable response", err)
	}
	return env.Applications, nil
}

func (c *Client) uploadStatement(ctx context.Context, path, filename string, file io.Reader) ([]byte, error) {
	if file == nil || filename == "" {
		return nil, newError(KindNoFileSelected, "no statement file selected", nil)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, newError(KindTransport, "building upload request", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, newError(KindTransport, "reading statement file", err)
	}
	if err := mw.Close(); err != nil {
		return nil, newError(KindTransport, "building upload request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, newError(KindTransport, "building upload request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.do(req)
}

// do executes the request and maps transport and status failures onto the
// error taxonomy.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpc.Do(req)
	if err != nil {
		c.logger.WarnContext(req.Context(), "analysis service unreachable",
			applog.FieldPath, req.URL.Path, applog.FieldError, err)
		return nil, newError(KindTransport, "analysis service unreachable, try again", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, newError(KindTransport, "reading analysis service response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, newError(KindRateLimited, "analysis service is busy, wait a moment and retry", nil)
	case resp.StatusCode >= 400:
		var env errorEnvelope
		_ = json.Unmarshal(body, &env)
		msg := env.Detail
		if msg == "" {
			msg = fmt.Sprintf("analysis failed (status %d)", resp.StatusCode)
		}
		return nil, newError(KindRejected, msg, nil)
	}
	return body, nil
}

// remoteResult stamps the remote source marker and clamps the confidence
// score into [0,1]. Some service revisions report percentages; a value above
// one is divided by 100 exactly once.
func remoteResult(r core.AnalysisResult) core.AnalysisResult {
	r.Source = core.SourceRemote
	if r.ConfidenceScore > 1 {
		r.ConfidenceScore = r.ConfidenceScore / 100
	}
	if r.ConfidenceScore < 0 {
		r.ConfidenceScore = 0
	}
	if r.ConfidenceScore > 1 {
		r.ConfidenceScore = 1
	}
	return r
}
