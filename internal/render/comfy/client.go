// Package comfy adapts a local node-graph engine to the render provider
// contract. A submission uploads binary inputs, queues a workflow graph
// under a fresh client id, waits on the engine's websocket event stream for
// the execution to finish, then pulls the produced artifacts out of the job
// history.
package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gridflow/internal/render"
)

const (
	defaultBaseURL     = "http://127.0.0.1:8188"
	defaultWaitTimeout = 5 * time.Minute
	defaultHTTPTimeout = 60 * time.Second

	backendName = "comfy"
)

// ArtifactKind selects which output list of a node to read.
type ArtifactKind string

const (
	ArtifactImage ArtifactKind = "images"
	ArtifactVideo ArtifactKind = "videos"
)

// Client is the per-engine job client. Each submission gets its own client
// id and its own websocket connection; the Client itself is safe for
// concurrent use.
type Client struct {
	baseURL     string
	waitTimeout time.Duration
	httpClient  *http.Client
	dialer      *websocket.Dialer
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

// WithWaitTimeout overrides the execution wait guard.
func WithWaitTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.waitTimeout = timeout
		}
	}
}

// NewClient constructs a job client for the engine at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	client := &Client{
		baseURL:     defaultBaseURL,
		waitTimeout: defaultWaitTimeout,
		httpClient:  &http.Client{Timeout: defaultHTTPTimeout},
		dialer:      websocket.DefaultDialer,
	}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		client.baseURL = strings.TrimRight(baseURL, "/")
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Job identifies one queued submission.
type Job struct {
	PromptID string
	ClientID string
}

// UploadImage posts raw image bytes to the engine's input store and returns
// the stored artifact name for use in a LoadImage node.
func (c *Client) UploadImage(ctx context.Context, raw []byte) (string, error) {
	const operation = "upload"

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	filename := fmt.Sprintf("upload_%s.png", uuid.NewString())
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return "", render.Wrap(render.ErrValidation, backendName, operation, "build form", err)
	}
	if _, err := part.Write(raw); err != nil {
		return "", render.Wrap(render.ErrValidation, backendName, operation, "write form", err)
	}
	if err := writer.WriteField("overwrite", "true"); err != nil {
		return "", render.Wrap(render.ErrValidation, backendName, operation, "write form", err)
	}
	if err := writer.Close(); err != nil {
		return "", render.Wrap(render.ErrValidation, backendName, operation, "close form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/image", &body)
	if err != nil {
		return "", render.Wrap(render.ErrValidation, backendName, operation, "build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := render.ContextError(ctx, backendName, operation); ctxErr != nil {
			return "", ctxErr
		}
		return "", render.Wrap(render.ErrBackendUnavailable, backendName, operation, "engine unreachable", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", render.Wrap(render.ErrInvalidResponse, backendName, operation, "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", render.Wrap(render.ErrValidation, backendName, operation, render.Normalize(strings.TrimSpace(string(payload))), nil)
	}
	var uploaded struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(payload, &uploaded); err != nil {
		return "", render.Wrap(render.ErrInvalidResponse, backendName, operation, "decode response", err)
	}
	if uploaded.Name == "" {
		return "", render.Wrap(render.ErrInvalidResponse, backendName, operation, "upload returned no name", nil)
	}
	return uploaded.Name, nil
}

// Submit queues a workflow graph. Every submission carries a fresh client
// id so its websocket event stream only sees its own events.
func (c *Client) Submit(ctx context.Context, graph Graph) (Job, error) {
	const operation = "submit"

	job := Job{ClientID: uuid.NewString()}
	payload, err := json.Marshal(map[string]any{
		"prompt":    graph,
		"client_id": job.ClientID,
	})
	if err != nil {
		return Job{}, render.Wrap(render.ErrValidation, backendName, operation, "encode graph", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(payload))
	if err != nil {
		return Job{}, render.Wrap(render.ErrValidation, backendName, operation, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := render.ContextError(ctx, backendName, operation); ctxErr != nil {
			return Job{}, ctxErr
		}
		return Job{}, render.Wrap(render.ErrBackendUnavailable, backendName, operation, "engine unreachable", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Job{}, render.Wrap(render.ErrInvalidResponse, backendName, operation, "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		// The engine validates the graph at queue time and reports node
		// errors in the body.
		return Job{}, render.Wrap(render.ErrValidation, backendName, operation, render.Normalize(strings.TrimSpace(string(body))), nil)
	}
	var queued struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.Unmarshal(body, &queued); err != nil {
		return Job{}, render.Wrap(render.ErrInvalidResponse, backendName, operation, "decode response", err)
	}
	if queued.PromptID == "" {
		return Job{}, render.Wrap(render.ErrInvalidResponse, backendName, operation, "prompt id missing", nil)
	}
	job.PromptID = queued.PromptID
	return job, nil
}

type executingEvent struct {
	Type string `json:"type"`
	Data struct {
		Node     *string `json:"node"`
		PromptID string  `json:"prompt_id"`
	} `json:"data"`
}

// AwaitCompletion blocks until the engine finishes executing the job: an
// "executing" event with a null node and a matching prompt id. The wait is
// bounded by the configured guard; a job still running past it fails with a
// timeout rather than parking the caller forever.
func (c *Client) AwaitCompletion(ctx context.Context, job Job) error {
	const operation = "await"

	wsURL, err := c.websocketURL(job.ClientID)
	if err != nil {
		return render.Wrap(render.ErrValidation, backendName, operation, "build websocket url", err)
	}
	deadline := time.Now().Add(c.waitTimeout)
	dialCtx, cancelDial := context.WithDeadline(ctx, deadline)
	defer cancelDial()
	conn, _, err := c.dialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		if ctxErr := render.ContextError(ctx, backendName, operation); ctxErr != nil {
			return ctxErr
		}
		return render.Wrap(render.ErrBackendUnavailable, backendName, operation, "websocket dial failed", err)
	}
	defer conn.Close()

	// Close the connection when the caller cancels so the read below
	// unblocks promptly.
	watchdogDone := make(chan struct{})
	defer close(watchdogDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchdogDone:
		}
	}()

	if err := conn.SetReadDeadline(deadline); err != nil {
		return render.Wrap(render.ErrInvalidResponse, backendName, operation, "set read deadline", err)
	}
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := render.ContextError(ctx, backendName, operation); ctxErr != nil {
				return ctxErr
			}
			if time.Now().After(deadline) {
				return render.Wrap(render.ErrTimeout, backendName, operation, fmt.Sprintf("job %s still executing after %s", job.PromptID, c.waitTimeout), nil)
			}
			return render.Wrap(render.ErrBackendUnavailable, backendName, operation, "event stream closed", err)
		}
		if messageType != websocket.TextMessage {
			// Binary frames are latent previews.
			continue
		}
		var event executingEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			continue
		}
		if event.Type == "executing" && event.Data.Node == nil && event.Data.PromptID == job.PromptID {
			return nil
		}
	}
}

type historyOutput struct {
	Images []artifactInfo `json:"images"`
	Videos []artifactInfo `json:"videos"`
}

type artifactInfo struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// FetchArtifact reads the job history, locates the named node's output of
// the requested kind, and downloads the binary.
func (c *Client) FetchArtifact(ctx context.Context, job Job, nodeID string, kind ArtifactKind) ([]byte, error) {
	const operation = "fetch"

	var history map[string]struct {
		Outputs map[string]historyOutput `json:"outputs"`
	}
	if err := c.getJSON(ctx, operation, "/history/"+job.PromptID, &history); err != nil {
		return nil, err
	}
	entry, ok := history[job.PromptID]
	if !ok {
		return nil, render.Wrap(render.ErrArtifactNotFound, backendName, operation, fmt.Sprintf("job %s not in history", job.PromptID), nil)
	}
	output, ok := entry.Outputs[nodeID]
	if !ok {
		return nil, render.Wrap(render.ErrArtifactNotFound, backendName, operation, fmt.Sprintf("node %s produced no output", nodeID), nil)
	}
	var artifacts []artifactInfo
	switch kind {
	case ArtifactVideo:
		artifacts = output.Videos
	default:
		artifacts = output.Images
	}
	if len(artifacts) == 0 {
		return nil, render.Wrap(render.ErrArtifactNotFound, backendName, operation, fmt.Sprintf("node %s has no %s", nodeID, kind), nil)
	}
	return c.view(ctx, operation, artifacts[0])
}

func (c *Client) view(ctx context.Context, operation string, info artifactInfo) ([]byte, error) {
	query := url.Values{}
	query.Set("filename", info.Filename)
	query.Set("subfolder", info.Subfolder)
	query.Set("type", info.Type)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/view?"+query.Encode(), nil)
	if err != nil {
		return nil, render.Wrap(render.ErrValidation, backendName, operation, "build view request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := render.ContextError(ctx, backendName, operation); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, render.Wrap(render.ErrBackendUnavailable, backendName, operation, "engine unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, render.Wrap(render.ErrArtifactNotFound, backendName, operation, fmt.Sprintf("view %s returned http %d", info.Filename, resp.StatusCode), nil)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, render.Wrap(render.ErrInvalidResponse, backendName, operation, "read artifact", err)
	}
	return raw, nil
}

// FreeMemory asks the engine to unload retained models. Callers invoke it
// best-effort between jobs.
func (c *Client) FreeMemory(ctx context.Context) error {
	const operation = "free"

	payload := []byte(`{"unload_models":true,"free_memory":true}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/free", bytes.NewReader(payload))
	if err != nil {
		return render.Wrap(render.ErrValidation, backendName, operation, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := render.ContextError(ctx, backendName, operation); ctxErr != nil {
			return ctxErr
		}
		return render.Wrap(render.ErrBackendUnavailable, backendName, operation, "engine unreachable", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusMultipleChoices {
		return render.Wrap(render.ErrInvalidResponse, backendName, operation, fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, operation, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return render.Wrap(render.ErrValidation, backendName, operation, "build request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := render.ContextError(ctx, backendName, operation); ctxErr != nil {
			return ctxErr
		}
		return render.Wrap(render.ErrBackendUnavailable, backendName, operation, "engine unreachable", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return render.Wrap(render.ErrInvalidResponse, backendName, operation, "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return render.Wrap(render.ErrInvalidResponse, backendName, operation, render.Normalize(strings.TrimSpace(string(body))), nil)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return render.Wrap(render.ErrInvalidResponse, backendName, operation, "decode response", err)
	}
	return nil
}

func (c *Client) websocketURL(clientID string) (string, error) {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	default:
		parsed.Scheme = "ws"
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/ws"
	parsed.RawQuery = url.Values{"clientId": {clientID}}.Encode()
	return parsed.String(), nil
}
