// Package webhook delivers status change events to an external HTTP endpoint
// such as an email or messaging relay.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"talentcore/pkg/domain"
)

// Client posts events as JSON.
type Client struct {
	url        string
	secret     string
	httpClient *http.Client
}

var _ domain.ExternalNotifier = (*Client)(nil)

// NewClient returns a client for url. When secret is set it is sent as a
// bearer token.
func NewClient(url, secret string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		url:        strings.TrimSpace(url),
		secret:     strings.TrimSpace(secret),
		httpClient: httpClient,
	}
}

// Notify implements domain.ExternalNotifier. Any non-2xx response is an error.
func (c *Client) Notify(ctx context.Context, event domain.StatusChangedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode webhook event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Talentcore-Event", event.Type)
	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
