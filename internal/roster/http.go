package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"
)

// Default client settings.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 500 * time.Millisecond
)

// healthPath is the data service's liveness endpoint.
const healthPath = "/headpat"

// Config holds configuration for the data service HTTP client.
type Config struct {
	// BaseURL is the root URL of the data service.
	BaseURL string

	// Timeout is the HTTP client timeout for each request.
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts for failed requests.
	MaxRetries int

	// RetryDelay is the initial delay between retries (exponential backoff applied).
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with default settings for the given base URL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:    baseURL,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		RetryDelay: DefaultRetryDelay,
	}
}

// HTTPError represents a non-success response from the data service.
type HTTPError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsRetryable reports whether the response indicates a transient condition.
func (e *HTTPError) IsRetryable() bool {
	// 5xx errors are generally retryable (server issues)
	// 429 Too Many Requests is retryable after delay
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// isRetryable reports whether the error is likely transient and the request
// should be retried. Connection-level failures count as transient; the data
// service may simply be mid-restart.
func isRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// HTTPClient talks to the data service's REST API.
type HTTPClient struct {
	httpClient *http.Client
	config     Config
	logger     *slog.Logger
}

// NewHTTPClient creates a data service client with the given configuration.
func NewHTTPClient(config Config, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
		logger: logger.With("component", "roster-client"),
	}
}

// staffMember is the subset of the data service's staff representation that
// scheduling needs.
type staffMember struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// envelope is the data service's standard response wrapper.
type envelope struct {
	Success bool          `json:"success"`
	Data    []staffMember `json:"data"`
	Error   string        `json:"error"`
}

// Resolve fetches the ordered member list for a staff group, retrying
// transient failures with exponential backoff. Any failure that survives the
// retries is reported as an UnavailableError.
func (c *HTTPClient) Resolve(ctx context.Context, groupID string) ([]string, error) {
	logger := c.logger.With("group_id", groupID)

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.config.RetryDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			logger.Debug("retrying after delay", "attempt", attempt, "delay", delay)

			select {
			case <-ctx.Done():
				return nil, &UnavailableError{GroupID: groupID, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		ids, err := c.fetchMembers(ctx, groupID)
		if err != nil {
			lastErr = err
			if !isRetryable(err) {
				return nil, &UnavailableError{GroupID: groupID, Err: err}
			}
			logger.Debug("request failed, will retry", "error", err, "attempt", attempt)
			continue
		}

		logger.Debug("roster resolved", "members", len(ids))
		return ids, nil
	}

	return nil, &UnavailableError{GroupID: groupID, Err: fmt.Errorf("all retries exhausted: %w", lastErr)}
}

// fetchMembers performs a single resolved-members request.
func (c *HTTPClient) fetchMembers(ctx context.Context, groupID string) ([]string, error) {
	url := fmt.Sprintf("%s/api/v1/groups/%s/resolved-members", c.config.BaseURL, groupID)
	c.logger.Debug("requesting roster", "url", url)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}
	if !env.Success && env.Error != "" {
		return nil, fmt.Errorf("data service error: %s", env.Error)
	}
	if env.Data == nil {
		return nil, fmt.Errorf("no data in response")
	}

	// Duplicates would collide with the per-day uniqueness of assignments,
	// so the first occurrence wins and service order is preserved.
	seen := make(map[string]bool, len(env.Data))
	ids := make([]string, 0, len(env.Data))
	for _, m := range env.Data {
		if m.ID == "" || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// Healthy pings the data service's liveness endpoint once. It does not retry;
// the periodic health check provides its own cadence.
func (c *HTTPClient) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.config.BaseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode}
	}
	return nil
}
