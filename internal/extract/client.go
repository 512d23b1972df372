// Package extract calls the external document-extraction service that turns
// uploaded bank statements into raw transaction records.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	applog "github.com/ledaniel0/ml-loan-analyzer/internal/log"
)

// ErrRateLimited reports that the extraction service asked us to back off.
var ErrRateLimited = errors.New("extraction service rate limited")

type Client struct {
	url    string
	httpc  *http.Client
	logger *applog.Logger
}

// NewClient creates an extractor client. Extraction of a scanned statement
// can take a while, so the default timeout is generous.
func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{
		url:    url,
		httpc:  httpClient,
		logger: applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentGateway),
	}
}

type extractResponse struct {
	Transactions []map[string]any `json:"transactions"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Extract uploads the statement and returns the raw records the service
// recognized. The records are untyped; the caller normalizes them.
func (c *Client) Extract(ctx context.Context, filename string, file io.Reader) ([]map[string]any, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("read statement file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &buf)
	if err != nil {
		return nil, fmt.Errorf("build extract request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call extraction service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read extract response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode >= 400 {
		var er errorResponse
		_ = json.Unmarshal(body, &er)
		if er.Detail != "" {
			return nil, fmt.Errorf("extraction service: %s", er.Detail)
		}
		return nil, fmt.Errorf("extraction service returned status %d", resp.StatusCode)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var er extractResponse
	if err := dec.Decode(&er); err != nil {
		return nil, fmt.Errorf("decode extract response: %w", err)
	}

	c.logger.InfoContext(ctx, "extracted transactions",
		applog.FieldLedgerRows, len(er.Transactions))
	return er.Transactions, nil
}
