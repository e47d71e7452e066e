// Package backend is the HTTP client for the remote processing service.
//
// Transport failures become job.NetworkError and non-2xx responses become
// job.ServerError carrying the backend's detail (or error) text verbatim.
// Nothing is retried; recovery is always a new user-initiated run.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/prepflow/internal/job"
)

// DefaultTimeout bounds a single backend request.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 1 << 20

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to the processing backend.
type Client struct {
	base *url.URL
	hc   *http.Client
}

// New validates cfg and returns a client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("backend base URL is required")
	}
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend URL must be http or https, got %q", cfg.BaseURL)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{base: u, hc: hc}, nil
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

type startRunResponse struct {
	JobID string `json:"job_id"`
}

// StartRun submits a pipeline and returns the backend job id.
func (c *Client) StartRun(ctx context.Context, req job.RunRequest) (string, error) {
	var out startRunResponse
	if err := c.do(ctx, "start run", http.MethodPost, "/run", req, &out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		return "", &job.ServerError{StatusCode: http.StatusOK, Message: "backend did not return a job id"}
	}
	return out.JobID, nil
}

// Status fetches the status of a backend job.
func (c *Client) Status(ctx context.Context, jobID string) (job.StatusResponse, error) {
	var out job.StatusResponse
	err := c.do(ctx, "poll status", http.MethodGet, "/status/"+url.PathEscape(jobID), nil, &out)
	return out, err
}

// do sends one JSON request. out may be nil.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		req.Header.Set(middleware.RequestIDHeader, reqID)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return job.NewNetworkError(op, err, isTimeout(ctx, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &job.ServerError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, data)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return &job.ServerError{StatusCode: resp.StatusCode, Message: "backend returned an empty response"}
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return job.NewNetworkError(op, err, netErr.Timeout())
		}
		return &job.ServerError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("invalid response from backend: %v", err)}
	}
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// errorMessage extracts the user-facing text from an error body: detail
// first, then error. Non-string details are rendered as compact JSON.
func errorMessage(status int, body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := rawText(payload.Detail); msg != "" {
			return msg
		}
		if msg := rawText(payload.Error); msg != "" {
			return msg
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" && !strings.HasPrefix(text, "{") && len(text) < 512 {
		return text
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", status)
}

func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
