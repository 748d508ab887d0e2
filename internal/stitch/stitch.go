// Package stitch talks to the external muxing collaborator that
// concatenates locally stored video segments into one artifact.
package stitch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Stitcher concatenates an ordered list of local video files.
type Stitcher interface {
	Stitch(ctx context.Context, orderedPaths []string) (string, error)
}

const defaultHTTPTimeout = 2 * time.Minute

// Client posts stitch jobs to the toolbox HTTP endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a stitch client for the toolbox at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

var _ Stitcher = (*Client)(nil)

type stitchRequest struct {
	Paths []string `json:"paths"`
}

type stitchResponse struct {
	URL     string `json:"url"`
	Message string `json:"message"`
}

// Stitch concatenates the given files in order. Every path is checked for
// readability first so an inaccessible segment fails before the collaborator
// starts work.
func (c *Client) Stitch(ctx context.Context, orderedPaths []string) (string, error) {
	if len(orderedPaths) < 2 {
		return "", fmt.Errorf("stitch: need at least two segments, got %d", len(orderedPaths))
	}
	for _, path := range orderedPaths {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("stitch: segment inaccessible: %w", err)
		}
	}

	payload, err := json.Marshal(stitchRequest{Paths: orderedPaths})
	if err != nil {
		return "", fmt.Errorf("stitch: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/stitch-videos", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("stitch: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("stitch: request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("stitch: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("stitch: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var result stitchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("stitch: decode response: %w", err)
	}
	if result.URL == "" {
		return "", fmt.Errorf("stitch: no artifact in response: %s", strings.TrimSpace(result.Message))
	}
	return result.URL, nil
}
