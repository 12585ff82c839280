package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailbox/internal/source"
)

// Client is a thin HTTP client for the mail backend. It handles Bearer
// token or session cookie authentication and automatic retry with
// exponential backoff on HTTP 429.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	logger     zerolog.Logger
}

// errorBody is the backend's error envelope.
type errorBody struct {
	Error string `json:"error"`
}

// NewClient creates a new backend HTTP client. When token is empty the
// client relies on the session cookie set by Login.
func NewClient(baseURL, token string, logger zerolog.Logger) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		maxRetries: 3,
		logger:     logger.With().Str("component", "backend").Logger(),
	}
}

// Get performs an HTTP GET request and returns the raw response body.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post performs an HTTP POST request with a JSON body and returns the raw
// response body.
func (c *Client) Post(ctx context.Context, path string, body any) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// do builds the request, handles auth and rate limiting, and maps failures
// onto the source error types.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body any,
) ([]byte, error) {
	url := c.baseURL + path

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &source.TransportError{
				SourceType: source.SourceTypeBackend,
				Err:        fmt.Errorf("%s %s: %w", method, path, err),
			}
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, &source.TransportError{
				SourceType: source.SourceTypeBackend,
				Err:        fmt.Errorf("reading response body: %w", readErr),
			}
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			waitDuration := retryAfterDuration(resp, attempt)
			lastErr = fmt.Errorf("rate limited (429) on %s %s", method, path)
			c.logger.Debug().Dur("wait", waitDuration).Int("attempt", attempt).Msg("rate limited")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(waitDuration):
				continue
			}
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return respBody, &source.AuthError{
				SourceType: source.SourceTypeBackend,
				Message:    errorMessage(respBody, "not signed in"),
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &source.ServerError{
				SourceType: source.SourceTypeBackend,
				Status:     resp.StatusCode,
				Message:    errorMessage(respBody, ""),
			}
		}

		return respBody, nil
	}

	return nil, &source.ServerError{
		SourceType: source.SourceTypeBackend,
		Status:     http.StatusTooManyRequests,
		Message:    fmt.Sprintf("max retries (%d) exceeded: %v", c.maxRetries, lastErr),
	}
}

// errorMessage extracts the "error" field of a response body.
func errorMessage(body []byte, fallback string) string {
	var e errorBody
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return fallback
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}

// isUnauthenticated reports whether err is a 401 from the backend.
func isUnauthenticated(err error) bool {
	var authErr *source.AuthError
	return errors.As(err, &authErr)
}
