// Package vertexai is a small REST client for Vertex AI publisher models.
package vertexai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"pdfrag/internal/domain"
)

const DefaultLocation = "us-central1"

type Config struct {
	ProjectID string
	Location  string
	// Endpoint overrides https://{location}-aiplatform.googleapis.com.
	Endpoint string
	Timeout  time.Duration
}

// Client calls model methods such as :predict and :generateContent.
type Client struct {
	http       *http.Client
	endpoint   string
	projectID  string
	location   string
	maxRetries int
}

// New wraps an authenticated HTTP client (see auth.Session).
func New(httpClient *http.Client, cfg Config) (*Client, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("vertex: nil http client")
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("vertex: project id is required")
	}
	if cfg.Location == "" {
		cfg.Location = DefaultLocation
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = fmt.Sprintf("https://%s-aiplatform.googleapis.com", cfg.Location)
	}
	hc := *httpClient
	if cfg.Timeout > 0 {
		hc.Timeout = cfg.Timeout
	}
	return &Client{
		http:       &hc,
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		projectID:  cfg.ProjectID,
		location:   cfg.Location,
		maxRetries: 4,
	}, nil
}

// ModelURL returns the REST URL of a publisher model method.
func (c *Client) ModelURL(model, method string) string {
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:%s",
		c.endpoint, c.projectID, c.location, model, method)
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code    int
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return "vertex: " + e.Status
	}
	return fmt.Sprintf("vertex: %s: %s", e.Status, e.Message)
}

// Call posts in as JSON and decodes the response into out. Rate limiting and
// server errors are retried with backoff. Transport failures and
// authorization or missing-model responses wrap domain.ErrServiceUnavailable.
func (c *Client) Call(ctx context.Context, model, method string, in, out interface{}) error {
	body, err := sonic.Marshal(in)
	if err != nil {
		return fmt.Errorf("vertex: encode request: %w", err)
	}
	url := c.ModelURL(model, method)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, lastErr, attempt-1); err != nil {
				return err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("vertex: %v: %w", err, domain.ErrServiceUnavailable)
			continue
		}
		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("vertex: read response: %w", err)
			continue
		}

		if resp.StatusCode >= 300 {
			serr := &StatusError{Code: resp.StatusCode, Status: resp.Status, Message: errorMessage(payload)}
			switch {
			case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
				lastErr = &retryAfter{err: serr, after: resp.Header.Get("Retry-After")}
				continue
			case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound:
				return fmt.Errorf("%w: %w", serr, domain.ErrServiceUnavailable)
			default:
				return serr
			}
		}

		if err := sonic.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("vertex: decode response: %w", err)
		}
		return nil
	}
	if ra, ok := lastErr.(*retryAfter); ok {
		return ra.err
	}
	return lastErr
}

func errorMessage(payload []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := sonic.Unmarshal(payload, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	s := strings.TrimSpace(string(payload))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

type retryAfter struct {
	err   error
	after string
}

func (r *retryAfter) Error() string { return r.err.Error() }

func sleep(ctx context.Context, lastErr error, attempt int) error {
	d := retryDelay(attempt)
	if ra, ok := lastErr.(*retryAfter); ok {
		if secs, err := strconv.Atoi(ra.after); err == nil {
			d = time.Duration(secs) * time.Second
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
