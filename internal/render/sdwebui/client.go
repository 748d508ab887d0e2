// Package sdwebui adapts a local Stable Diffusion WebUI server to the
// render provider contract. The server exposes two upscale routes: the
// extras pipeline (a dedicated upscaler model) and img2img (a low-denoise
// re-render at the target resolution).
package sdwebui

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gridflow/internal/mediaref"
	"gridflow/internal/render"
)

const (
	defaultBaseURL     = "http://127.0.0.1:7860"
	defaultUpscaler    = "R-ESRGAN 4x+"
	defaultHTTPTimeout = 120 * time.Second

	// MethodExtras and MethodImg2Img select the upscale route via
	// render.UpscaleHints.Method.
	MethodExtras  = "extras"
	MethodImg2Img = "img2img"

	backendName = "sdwebui"
)

// Client wraps the WebUI HTTP API.
type Client struct {
	baseURL       string
	upscaler      string
	defaultMethod string
	httpClient    *http.Client
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

// WithUpscaler overrides the extras upscaler model name.
func WithUpscaler(name string) Option {
	return func(c *Client) {
		if name = strings.TrimSpace(name); name != "" {
			c.upscaler = name
		}
	}
}

// WithDefaultMethod sets the route used when a call carries no method hint.
func WithDefaultMethod(method string) Option {
	return func(c *Client) {
		if method == MethodExtras || method == MethodImg2Img {
			c.defaultMethod = method
		}
	}
}

// NewClient constructs a WebUI client for the given server base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	client := &Client{
		baseURL:       defaultBaseURL,
		upscaler:      defaultUpscaler,
		defaultMethod: MethodExtras,
		httpClient:    &http.Client{Timeout: defaultHTTPTimeout},
	}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		client.baseURL = strings.TrimRight(baseURL, "/")
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

var _ render.Provider = (*Client)(nil)

type extrasRequest struct {
	ResizeMode           int     `json:"resize_mode"`
	ShowExtrasResults    bool    `json:"show_extras_results"`
	GfpganVisibility     float64 `json:"gfpgan_visibility"`
	CodeformerVisibility float64 `json:"codeformer_visibility"`
	CodeformerWeight     float64 `json:"codeformer_weight"`
	UpscalingResize      float64 `json:"upscaling_resize"`
	Upscaler1            string  `json:"upscaler_1"`
	UpscaleFirst         bool    `json:"upscale_first"`
	Image                string  `json:"image"`
}

type extrasResponse struct {
	Image string `json:"image"`
}

type img2imgRequest struct {
	InitImages        []string `json:"init_images"`
	Prompt            string   `json:"prompt"`
	NegativePrompt    string   `json:"negative_prompt"`
	Width             int      `json:"width"`
	Height            int      `json:"height"`
	DenoisingStrength float64  `json:"denoising_strength"`
	Steps             int      `json:"steps"`
	CfgScale          float64  `json:"cfg_scale"`
	SamplerName       string   `json:"sampler_name"`
}

type img2imgResponse struct {
	Images []string `json:"images"`
}

// UpscaleImage runs one blocking upscale call against the local server.
func (c *Client) UpscaleImage(ctx context.Context, image string, targetFactor float64, hints render.UpscaleHints) (string, error) {
	const operation = "upscale"

	method := hints.Method
	if method == "" {
		method = c.defaultMethod
	}
	payload := mediaref.Base64Payload(image)
	switch method {
	case MethodImg2Img:
		return c.upscaleImg2Img(ctx, payload, targetFactor, hints.Prompt)
	case MethodExtras:
		return c.upscaleExtras(ctx, payload, targetFactor)
	default:
		return "", render.Wrap(render.ErrValidation, backendName, operation, "unknown upscale method "+method, nil)
	}
}

func (c *Client) upscaleExtras(ctx context.Context, payload string, factor float64) (string, error) {
	const operation = "upscale-extras"

	request := extrasRequest{
		ResizeMode:        0,
		ShowExtrasResults: true,
		UpscalingResize:   factor,
		Upscaler1:         c.upscaler,
		Image:             payload,
	}
	var response extrasResponse
	if err := c.postJSON(ctx, operation, "/sdapi/v1/extra-single-image", request, &response); err != nil {
		return "", err
	}
	if response.Image == "" {
		return "", render.Wrap(render.ErrInvalidResponse, backendName, operation, "no image in response", nil)
	}
	return "data:image/png;base64," + response.Image, nil
}

func (c *Client) upscaleImg2Img(ctx context.Context, payload string, factor float64, prompt string) (string, error) {
	const operation = "upscale-img2img"

	width, height, err := scaledDimensions(payload, factor)
	if err != nil {
		return "", render.Wrap(render.ErrValidation, backendName, operation, "measure source image", err)
	}
	if prompt == "" {
		prompt = "4K, lots of details, hires, HDR, sharp"
	}
	request := img2imgRequest{
		InitImages:        []string{payload},
		Prompt:            prompt,
		NegativePrompt:    "blur, low quality, artifacts, distortion",
		Width:             width,
		Height:            height,
		DenoisingStrength: 0.15,
		Steps:             35,
		CfgScale:          1.0,
		SamplerName:       "k_euler",
	}
	var response img2imgResponse
	if err := c.postJSON(ctx, operation, "/sdapi/v1/img2img", request, &response); err != nil {
		return "", err
	}
	if len(response.Images) == 0 || response.Images[0] == "" {
		return "", render.Wrap(render.ErrInvalidResponse, backendName, operation, "no image in response", nil)
	}
	return "data:image/png;base64," + response.Images[0], nil
}

// GenerateVideoTransition is not offered by this backend.
func (c *Client) GenerateVideoTransition(ctx context.Context, start, end string, aspect render.AspectRatio) (string, error) {
	return "", render.Wrap(render.ErrUnsupported, backendName, "transition", "backend upscales images only", nil)
}

// GenerateFromImage is not offered by this backend.
func (c *Client) GenerateFromImage(ctx context.Context, image, prompt string, aspect render.AspectRatio) (render.Generation, error) {
	return render.Generation{}, render.Wrap(render.ErrUnsupported, backendName, "generate", "backend upscales images only", nil)
}

func (c *Client) postJSON(ctx context.Context, operation, path string, payload any, out any) error {
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

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := render.ContextError(ctx, backendName, operation); ctxErr != nil {
			return ctxErr
		}
		return render.Wrap(render.ErrBackendUnavailable, backendName, operation, "server unreachable (is the WebUI running with --api?)", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return render.Wrap(render.ErrInvalidResponse, backendName, operation, "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		message := render.Normalize(strings.TrimSpace(string(body)))
		if resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest {
			return render.Wrap(render.ErrValidation, backendName, operation, message, nil)
		}
		return render.Wrap(render.ErrBackendUnavailable, backendName, operation, message, nil)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return render.Wrap(render.ErrInvalidResponse, backendName, operation, "decode response", err)
	}
	return nil
}

// scaledDimensions measures the source and scales it, rounding each side to
// a multiple of 64 so the latent dimensions stay valid.
func scaledDimensions(payload string, factor float64) (int, int, error) {
	raw, _, err := mediaref.DecodeDataURL(payload)
	if err != nil {
		return 0, 0, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return 0, 0, err
	}
	width := roundTo64(float64(cfg.Width) * factor)
	height := roundTo64(float64(cfg.Height) * factor)
	return width, height, nil
}

func roundTo64(v float64) int {
	n := int(math.Round(v/64)) * 64
	if n < 64 {
		n = 64
	}
	return n
}
