// Package gemini adapts the Google generative-media API to the render
// provider contract. Image upscaling is a single blocking generate call;
// video generation is a long-running operation polled until done.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gridflow/internal/render"
)

const (
	defaultBaseURL      = "https://generativelanguage.googleapis.com"
	defaultImageModel   = "gemini-3-pro-image-preview"
	defaultVideoModel   = "veo-3.1-fast-generate-preview"
	defaultPollInterval = 10 * time.Second
	defaultHTTPTimeout  = 120 * time.Second

	backendName = "gemini"
)

// Client wraps the generative-media REST API.
type Client struct {
	apiKey       string
	baseURL      string
	imageModel   string
	videoModel   string
	pollInterval time.Duration
	downloadDir  string
	httpClient   *http.Client
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

// WithBaseURL overrides the default API base (useful for tests/mocks).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		base = strings.TrimSpace(base)
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithModels overrides the image and video model identifiers.
func WithModels(imageModel, videoModel string) Option {
	return func(c *Client) {
		if imageModel = strings.TrimSpace(imageModel); imageModel != "" {
			c.imageModel = imageModel
		}
		if videoModel = strings.TrimSpace(videoModel); videoModel != "" {
			c.videoModel = videoModel
		}
	}
}

// WithPollInterval overrides the operation poll cadence.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithDownloadDir sets where produced videos are persisted.
func WithDownloadDir(dir string) Option {
	return func(c *Client) {
		if dir = strings.TrimSpace(dir); dir != "" {
			c.downloadDir = dir
		}
	}
}

// NewClient constructs a generative-media API client.
func NewClient(apiKey string, opts ...Option) *Client {
	client := &Client{
		apiKey:       strings.TrimSpace(apiKey),
		baseURL:      defaultBaseURL,
		imageModel:   defaultImageModel,
		videoModel:   defaultVideoModel,
		pollInterval: defaultPollInterval,
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

var _ render.Provider = (*Client)(nil)

func (c *Client) postJSON(ctx context.Context, operation, path string, payload any, out any) error {
	if c.apiKey == "" {
		return render.Wrap(render.ErrAuth, backendName, operation, "api key required", nil)
	}
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return render.Wrap(render.ErrValidation, backendName, operation, "build url", err)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return render.Wrap(render.ErrValidation, backendName, operation, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return render.Wrap(render.ErrValidation, backendName, operation, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)
	return c.do(ctx, operation, req, out)
}

func (c *Client) getJSON(ctx context.Context, operation, path string, out any) error {
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return render.Wrap(render.ErrValidation, backendName, operation, "build url", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return render.Wrap(render.ErrValidation, backendName, operation, "build request", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	return c.do(ctx, operation, req, out)
}

func (c *Client) do(ctx context.Context, operation string, req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := render.ContextError(ctx, backendName, operation); ctxErr != nil {
			return ctxErr
		}
		return render.Wrap(render.ErrBackendUnavailable, backendName, operation, "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return render.Wrap(render.ErrInvalidResponse, backendName, operation, "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return classifyStatus(resp.StatusCode, operation, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return render.Wrap(render.ErrInvalidResponse, backendName, operation, "decode response", err)
	}
	return nil
}

func classifyStatus(status int, operation, body string) error {
	message := render.Normalize(strings.TrimSpace(body))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return render.Wrap(render.ErrAuth, backendName, operation, message, nil)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return render.Wrap(render.ErrValidation, backendName, operation, message, nil)
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return render.Wrap(render.ErrBackendUnavailable, backendName, operation, message, nil)
	default:
		return render.Wrap(render.ErrInvalidResponse, backendName, operation, message, nil)
	}
}
