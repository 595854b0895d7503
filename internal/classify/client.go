package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Verdict is the classification service response. Only Unproductive drives
// decisions; Productive is kept for logging when the service sends it.
type Verdict struct {
	Unproductive float64  `json:"unproductive"`
	Productive   *float64 `json:"productive,omitempty"`
}

type predictRequest struct {
	Text string `json:"text"`
}

// Client calls the remote classification endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// NewClient returns a client for the service rooted at baseURL
// (e.g. "http://127.0.0.1:8000"). A positive timeout bounds every request,
// whichever http.Client carries it; a nil httpClient gets a plain one.
func NewClient(baseURL string, httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient, timeout: timeout}
}

// requestContext applies the per-request timeout without touching the
// shared http.Client.
func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Predict submits page text and returns the service verdict.
func (c *Client) Predict(ctx context.Context, text string) (Verdict, error) {
	body, err := json.Marshal(predictRequest{Text: text})
	if err != nil {
		return Verdict{}, fmt.Errorf("classify: marshal request: %w", err)
	}

	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("classify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("classify: predict: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Verdict{}, fmt.Errorf("classify: predict failed: status=%d", resp.StatusCode)
	}

	var raw struct {
		Unproductive *float64 `json:"unproductive"`
		Productive   *float64 `json:"productive"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Verdict{}, fmt.Errorf("classify: decode response: %w", err)
	}
	if raw.Unproductive == nil {
		return Verdict{}, fmt.Errorf("classify: response missing unproductive")
	}
	if *raw.Unproductive < 0 || *raw.Unproductive > 1 {
		return Verdict{}, fmt.Errorf("classify: unproductive out of range: %v", *raw.Unproductive)
	}
	return Verdict{Unproductive: *raw.Unproductive, Productive: raw.Productive}, nil
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("classify: health: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("classify: health failed: status=%d", resp.StatusCode)
	}
	return nil
}
