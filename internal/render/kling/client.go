// Package kling adapts the Kling video API to the render provider contract.
// The API is asynchronous: a create call returns a task id which is polled
// until the task settles. Requests authenticate with a short-lived HS256
// token minted from the account key pair.
package kling

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gridflow/internal/logging"
	"gridflow/internal/render"
)

const (
	defaultBaseURL      = "https://api.klingai.com/v1"
	defaultModel        = "kling-v1"
	defaultMode         = "std"
	defaultDuration     = "5"
	defaultPollInterval = 5 * time.Second
	defaultPollTimeout  = 5 * time.Minute
	defaultHTTPTimeout  = 60 * time.Second
	tokenTTL            = 30 * time.Minute

	backendName = "kling"
)

// Client wraps the Kling image-to-video API.
type Client struct {
	accessKey    string
	secretKey    string
	baseURL      string
	model        string
	mode         string
	duration     string
	pollInterval time.Duration
	pollTimeout  time.Duration
	downloadDir  string
	httpClient   *http.Client
	logger       *slog.Logger
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

// WithGeneration overrides model, mode, and clip duration.
func WithGeneration(model, mode, duration string) Option {
	return func(c *Client) {
		if model = strings.TrimSpace(model); model != "" {
			c.model = model
		}
		if mode = strings.TrimSpace(mode); mode != "" {
			c.mode = mode
		}
		if duration = strings.TrimSpace(duration); duration != "" {
			c.duration = duration
		}
	}
}

// WithPolling overrides the task poll cadence and overall deadline.
func WithPolling(interval, timeout time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
		if timeout > 0 {
			c.pollTimeout = timeout
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

// WithLogger sets the logger for tolerated poll failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a Kling API client.
func NewClient(accessKey, secretKey string, opts ...Option) *Client {
	client := &Client{
		accessKey:    strings.TrimSpace(accessKey),
		secretKey:    strings.TrimSpace(secretKey),
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		mode:         defaultMode,
		duration:     defaultDuration,
		pollInterval: defaultPollInterval,
		pollTimeout:  defaultPollTimeout,
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

var _ render.Provider = (*Client)(nil)

// mintToken signs a fresh bearer token. The API requires iss to be the
// access key and rejects tokens older than their exp claim.
func (c *Client) mintToken() (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": c.accessKey,
		"iat": now.Unix(),
		"nbf": now.Add(-5 * time.Second).Unix(),
		"exp": now.Add(tokenTTL).Unix(),
	})
	signed, err := token.SignedString([]byte(c.secretKey))
	if err != nil {
		return "", render.Wrap(render.ErrAuth, backendName, "token", "sign token", err)
	}
	return signed, nil
}

func (c *Client) doJSON(ctx context.Context, operation, method, path string, payload any, out any) error {
	if c.accessKey == "" || c.secretKey == "" {
		return render.Wrap(render.ErrAuth, backendName, operation, "access and secret keys required", nil)
	}
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return render.Wrap(render.ErrValidation, backendName, operation, "build url", err)
	}
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return render.Wrap(render.ErrValidation, backendName, operation, "encode request", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return render.Wrap(render.ErrValidation, backendName, operation, "build request", err)
	}
	token, err := c.mintToken()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := render.ContextError(ctx, backendName, operation); ctxErr != nil {
			return ctxErr
		}
		return render.Wrap(render.ErrBackendUnavailable, backendName, operation, "request failed", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return render.Wrap(render.ErrInvalidResponse, backendName, operation, "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		message := render.Normalize(strings.TrimSpace(string(raw)))
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return render.Wrap(render.ErrAuth, backendName, operation, message, nil)
		case resp.StatusCode == http.StatusBadRequest:
			return render.Wrap(render.ErrValidation, backendName, operation, message, nil)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
			return render.Wrap(render.ErrBackendUnavailable, backendName, operation, message, nil)
		default:
			return render.Wrap(render.ErrInvalidResponse, backendName, operation, message, nil)
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return render.Wrap(render.ErrInvalidResponse, backendName, operation, "decode response", err)
	}
	return nil
}
