package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ============================================================================
// Checkout API client
// ============================================================================

// ClientConfig configures a Client.
type ClientConfig struct {
	// URL is the base URL of the checkout API.
	URL string

	// HTTPClient is the HTTP client to use (optional)
	HTTPClient *http.Client

	// Timeout for requests (optional, defaults to 30s). Waiting requests
	// should use a context deadline instead.
	Timeout time.Duration
}

// Client talks to a checkout API server.
type Client struct {
	url        string
	httpClient *http.Client
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Reason     string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("checkout api: %d: %s (%s)", e.StatusCode, e.Message, e.Reason)
	}
	return fmt.Sprintf("checkout api: %d: %s", e.StatusCode, e.Message)
}

// NewClient creates a client for the API at config.URL.
func NewClient(config ClientConfig) *Client {
	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		url:        strings.TrimRight(config.URL, "/"),
		httpClient: httpClient,
	}
}

// CreateCheckout opens a payment checkout.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodPost, PathCheckouts, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateMintCheckout opens a mint checkout.
func (c *Client) CreateMintCheckout(ctx context.Context, req MintCheckoutRequest) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodPost, PathMints, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCheckout checks a session once, or blocks server-side until it is final when wait is set.
func (c *Client) GetCheckout(ctx context.Context, id string, wait bool) (*Session, error) {
	path := PathCheckouts + "/" + url.PathEscape(id)
	if wait {
		path += "?wait=true"
	}
	var out Session
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitCleanup asks the server to validate the cleanup transaction of a mint checkout.
func (c *Client) SubmitCleanup(ctx context.Context, id, signature string) (*Session, error) {
	path := PathCheckouts + "/" + url.PathEscape(id) + "/cleanup"
	var out Session
	if err := c.do(ctx, http.MethodPost, path, CleanupRequest{Signature: signature}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var e ErrorResponse
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			apiErr.Message = e.Error
			apiErr.Reason = e.Reason
		}
		return apiErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
