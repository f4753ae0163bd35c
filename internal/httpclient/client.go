// -----------------------------------------------------------------------
// Retrying HTTP client - transport failures retried, HTTP errors returned
// -----------------------------------------------------------------------

package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/models"
)

// initialBackoff is the delay before the first retry; it doubles per attempt
// (2s, 4s, 8s).
const initialBackoff = 2 * time.Second

// Response is the outcome of a completed HTTP exchange. Any status code is a
// completed exchange - classifying 4xx/5xx is the caller's business.
type Response struct {
	StatusCode int
	Body       []byte
}

// JSON unmarshals the response body into v. An empty body is treated as an
// empty object so calls with empty 2xx responses don't fail.
func (r *Response) JSON(v interface{}) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// Client wraps http.Client with bounded retries for transient network
// failures only. HTTP error responses are never retried here because they
// are application-level outcomes, not transport failures.
type Client struct {
	httpClient  *http.Client
	maxAttempts int
	logger      arbor.ILogger
}

// New creates a retrying client with a hard per-request timeout
func New(timeout time.Duration, maxAttempts int, logger arbor.ILogger) *Client {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// DoJSON executes a JSON request. The payload (may be nil) is marshalled
// once and replayed on each attempt. Headers are applied to every attempt.
// On retry exhaustion the last transport failure is returned wrapped in
// *models.TransientNetworkError.
func (c *Client) DoJSON(ctx context.Context, method, url string, headers map[string]string, payload interface{}) (*Response, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request payload: %w", err)
		}
	}

	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.doOnce(ctx, method, url, headers, body)
		if err == nil {
			return resp, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if !isTransient(err) {
			return nil, err
		}
		lastErr = err

		if attempt < c.maxAttempts {
			c.logger.Warn().
				Str("method", method).
				Str("url", url).
				Int("attempt", attempt).
				Str("backoff", backoff.String()).
				Err(err).
				Msg("Transient network failure, retrying")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	return nil, &models.TransientNetworkError{
		Op:  fmt.Sprintf("%s %s", method, url),
		Err: lastErr,
	}
}

func (c *Client) doOnce(ctx context.Context, method, url string, headers map[string]string, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// isTransient classifies transport failures worth retrying: timeouts,
// connection errors, and other network-level failures. Context cancellation
// is not transient.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}
