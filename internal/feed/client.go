package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Retry constants for idempotent reads. Mutating requests are single-shot:
// the sync coordinator owns retry policy for submissions, and rate-limit
// responses must surface to the caller rather than spin here.
const (
	maxGetRetries = 3
	getRetryDelay = 1 * time.Second
	userAgent     = "fieldsync/0.1"
)

// TokenSource provides bearer tokens for the incident store API. Defined at
// the consumer per Go convention "accept interfaces, return structs".
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource returning a fixed token from configuration.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token() (string, error) {
	if t == "" {
		return "", fmt.Errorf("feed: no access token configured")
	}

	return string(t), nil
}

// Client is an HTTP client for the incident store API. It handles request
// construction, authentication, and error classification. Reads retry a
// bounded number of times on transient failures; writes never retry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger

	// sleepFunc waits between read retries. Tests override to avoid delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates an incident store client.
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

// get executes a GET request and decodes the JSON response into out.
// Transient server failures are retried up to maxGetRetries with a fixed
// delay; 429 is never retried.
func (c *Client) get(ctx context.Context, path string, out any) error {
	var attempt int

	for {
		resp, err := c.doOnce(ctx, http.MethodGet, path, nil)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("feed: request canceled: %w", ctx.Err())
			}

			if attempt < maxGetRetries {
				c.logger.Warn("retrying after network error",
					slog.String("path", path),
					slog.Int("attempt", attempt+1),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, getRetryDelay); sleepErr != nil {
					return fmt.Errorf("feed: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return fmt.Errorf("feed: GET %s failed after %d retries: %w", path, maxGetRetries, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			return decodeBody(resp, out)
		}

		apiErr := c.readError(resp)

		if isRetryable(resp.StatusCode) && attempt < maxGetRetries {
			c.logger.Warn("retrying after HTTP error",
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
			)

			if err := c.sleepFunc(ctx, getRetryDelay); err != nil {
				return fmt.Errorf("feed: request canceled: %w", err)
			}

			attempt++

			continue
		}

		return apiErr
	}
}

// post executes a single POST request with a JSON body and decodes the
// response into out. No retry — the caller classifies and decides.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("feed: encoding request for %s: %w", path, err)
	}

	resp, err := c.doOnce(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("feed: request canceled: %w", ctx.Err())
		}

		return fmt.Errorf("feed: POST %s: %w", path, err)
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return decodeBody(resp, out)
	}

	return c.readError(resp)
}

// delete executes a single DELETE request. No retry.
func (c *Client) delete(ctx context.Context, path string) error {
	resp, err := c.doOnce(ctx, http.MethodDelete, path, nil)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("feed: request canceled: %w", ctx.Err())
		}

		return fmt.Errorf("feed: DELETE %s: %w", path, err)
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		resp.Body.Close()
		return nil
	}

	return c.readError(resp)
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	tok, err := c.token.Token()
	if err != nil {
		return nil, fmt.Errorf("obtaining token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// readError drains the response body into an APIError. The server's error
// payload is `{error, message, details}`; plain-text bodies pass through as
// the message. 403 detail becomes structured reassignment info.
func (c *Client) readError(resp *http.Response) *APIError {
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		raw = []byte("(failed to read response body)")
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    string(raw),
		Err:        classifyStatus(resp.StatusCode),
	}

	var parsed errorResponse
	if json.Unmarshal(raw, &parsed) == nil {
		switch {
		case parsed.Error != "":
			apiErr.Message = parsed.Error
		case parsed.Message != "":
			apiErr.Message = parsed.Message
		}

		if resp.StatusCode == http.StatusForbidden && parsed.Details != nil {
			apiErr.Reassignment = parsed.Details
		}
	}

	return apiErr
}

// decodeBody decodes a JSON response body into out, tolerating a nil out
// for endpoints whose response the caller ignores.
func decodeBody(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("feed: decoding response: %w", err)
	}

	return nil
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client and Stream.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
