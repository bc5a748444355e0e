package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/use-agent/topdf/models"
)

// apiClient talks to a running `topdf serve`.
type apiClient struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	interval time.Duration
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL:  baseURL,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 30 * time.Second},
		interval: 2 * time.Second,
	}
}

// apiError carries the structured error body of a non-2xx response.
type apiError struct {
	status int
	detail *models.ErrorDetail
}

func (e *apiError) Error() string {
	if e.detail == nil {
		return fmt.Sprintf("API returned status %d", e.status)
	}
	return fmt.Sprintf("[%s] %s", e.detail.Code, e.detail.Message)
}

func (c *apiClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var er models.ErrorResponse
		_ = json.Unmarshal(data, &er)
		return &apiError{status: resp.StatusCode, detail: er.Error}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

func (c *apiClient) convert(ctx context.Context, req models.ConvertRequest) (string, error) {
	var resp models.ConvertResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/convert", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("job creation failed")
	}
	return resp.ID, nil
}

func (c *apiClient) job(ctx context.Context, id string) (*models.JobResponse, error) {
	var jr models.JobResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+id, nil, &jr); err != nil {
		return nil, err
	}
	return &jr, nil
}

func (c *apiClient) provide(ctx context.Context, id string, req models.CredentialsRequest) error {
	return c.do(ctx, http.MethodPost, "/api/v1/jobs/"+id+"/credentials", req, nil)
}

func (c *apiClient) history(ctx context.Context, limit int) (*models.HistoryResponse, error) {
	var hr models.HistoryResponse
	path := "/api/v1/history"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &hr); err != nil {
		return nil, err
	}
	return &hr, nil
}

// wait polls a job until it finishes or stops to ask for credentials.
func (c *apiClient) wait(ctx context.Context, id string) (*models.JobResponse, error) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		jr, err := c.job(ctx, id)
		if err != nil {
			return nil, err
		}
		if models.IsTerminal(jr.Status) || awaiting(jr.Status) {
			return jr, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func awaiting(status string) bool {
	return status == models.JobAwaitingEmail || status == models.JobAwaitingPasscode
}
