package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrInvalidPassword is returned when the controller answers 401.
var ErrInvalidPassword = errors.New("invalid controller password")

// Doer is the subset of *http.Client used to reach a controller.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues GET requests against http://<host>/<password>/.
type Client struct {
	BaseURL string
	HTTP    Doer
	Timeout time.Duration
}

func NewClient(host, password string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: fmt.Sprintf("http://%s/%s/", host, password),
		HTTP:    &http.Client{},
		Timeout: timeout,
	}
}

// Get sends the query and returns the body decoded from cp1251.
func (c *Client) Get(ctx context.Context, q Record) (string, error) {
	return c.GetRaw(ctx, q.Query())
}

// GetRaw sends an already encoded query string.
func (c *Client) GetRaw(ctx context.Context, query string) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	url := c.BaseURL
	if query != "" {
		url += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("request %q failed: %w", query, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return "", ErrInvalidPassword
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("controller returned non-success status: %d", resp.StatusCode)
	}

	return DecodeCP1251(body), nil
}
