// Package httpclient provides basic http functions
package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client wraps an http.Client with the small amount of behavior feed
// retrieval needs: a request timeout, an optional api key header and a
// bounded response size.
type Client struct {
	client       *http.Client
	apiKeyHeader string
	apiKey       string
	maxBodyBytes int64
}

// NewClient builds a Client. apiKeyHeader and apiKey may be empty when the
// remote feed is unauthenticated.
func NewClient(timeout time.Duration, apiKeyHeader, apiKey string) *Client {
	return &Client{
		client: &http.Client{
			Timeout: timeout,
		},
		apiKeyHeader: apiKeyHeader,
		apiKey:       apiKey,
		maxBodyBytes: 64 * 1024 * 1024,
	}
}

// GetBytes retrieves the body at url. Non-200 responses are errors.
func (c *Client) GetBytes(url string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if len(c.apiKeyHeader) > 0 {
		req.Header.Set(c.apiKeyHeader, c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected http status %d from %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	return body, nil
}
