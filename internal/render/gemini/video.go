package gemini

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"gridflow/internal/mediaref"
	"gridflow/internal/render"
)

const transitionPrompt = "A smooth cinematic transition from the first image to the second image, maintaining style and context."

type videoInstance struct {
	Prompt    string      `json:"prompt"`
	Image     *videoImage `json:"image,omitempty"`
	LastFrame *videoImage `json:"lastFrame,omitempty"`
}

type videoImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

type videoParameters struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	Resolution  string `json:"resolution,omitempty"`
	SampleCount int    `json:"sampleCount,omitempty"`
}

type videoRequest struct {
	Instances  []videoInstance `json:"instances"`
	Parameters videoParameters `json:"parameters"`
}

type generatedVideo struct {
	Video struct {
		URI string `json:"uri"`
	} `json:"video"`
}

type videoOperation struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Response struct {
		GeneratedVideos       []generatedVideo `json:"generatedVideos"`
		GenerateVideoResponse *struct {
			GeneratedSamples []generatedVideo `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

// GenerateVideoTransition starts a first-frame/last-frame video operation
// and blocks until it finishes. The video model supports only tall and wide
// output; other ratios are clamped to wide.
func (c *Client) GenerateVideoTransition(ctx context.Context, start, end string, aspect render.AspectRatio) (string, error) {
	const operation = "transition"

	request := videoRequest{
		Instances: []videoInstance{{
			Prompt:    transitionPrompt,
			Image:     &videoImage{BytesBase64Encoded: mediaref.Base64Payload(start), MimeType: "image/png"},
			LastFrame: &videoImage{BytesBase64Encoded: mediaref.Base64Payload(end), MimeType: "image/png"},
		}},
		Parameters: videoParameters{
			AspectRatio: clampAspect(aspect),
			Resolution:  "1080p",
			SampleCount: 1,
		},
	}
	return c.runVideoOperation(ctx, operation, request)
}

// GenerateFromImage produces a video continuing from a single anchor image.
// The derived last frame is decoded from the downloaded video so the caller
// can chain another generation from it.
func (c *Client) GenerateFromImage(ctx context.Context, image, prompt string, aspect render.AspectRatio) (render.Generation, error) {
	const operation = "generate"

	request := videoRequest{
		Instances: []videoInstance{{
			Prompt: prompt,
			Image:  &videoImage{BytesBase64Encoded: mediaref.Base64Payload(image), MimeType: "image/png"},
		}},
		Parameters: videoParameters{
			AspectRatio: clampAspect(aspect),
			Resolution:  "1080p",
			SampleCount: 1,
		},
	}
	localPath, err := c.runVideoOperation(ctx, operation, request)
	if err != nil {
		return render.Generation{}, err
	}

	framePath := strings.TrimSuffix(localPath, filepath.Ext(localPath)) + "-last.png"
	if err := mediaref.ExtractLastFrame(ctx, localPath, framePath); err != nil {
		return render.Generation{}, render.Wrap(render.ErrInvalidResponse, backendName, operation, "derive last frame", err)
	}
	raw, err := os.ReadFile(framePath)
	if err != nil {
		return render.Generation{}, render.Wrap(render.ErrInvalidResponse, backendName, operation, "read derived frame", err)
	}
	return render.Generation{
		VideoRef:         localPath,
		DerivedLastFrame: mediaref.EncodeDataURL(raw, "image/png"),
		LocalPath:        localPath,
	}, nil
}

func (c *Client) runVideoOperation(ctx context.Context, operation string, request videoRequest) (string, error) {
	var op videoOperation
	path := "/v1beta/models/" + c.videoModel + ":predictLongRunning"
	if err := c.postJSON(ctx, operation, path, request, &op); err != nil {
		return "", err
	}
	if op.Name == "" {
		return "", render.Wrap(render.ErrInvalidResponse, backendName, operation, "operation name missing", nil)
	}

	uri, err := c.awaitOperation(ctx, operation, op.Name)
	if err != nil {
		return "", err
	}
	return c.downloadVideo(ctx, operation, uri)
}

// awaitOperation polls the long-running operation until done. Each poll is
// retried a few times so a transient network blip does not abandon a
// generation that is still running server-side.
func (c *Client) awaitOperation(ctx context.Context, operation, name string) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", render.ContextError(ctx, backendName, operation)
		case <-time.After(c.pollInterval):
		}

		var op videoOperation
		err := retry.Do(
			func() error {
				return c.getJSON(ctx, operation, "/v1beta/"+name, &op)
			},
			retry.Context(ctx),
			retry.Attempts(3),
			retry.Delay(time.Second),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			if ctxErr := render.ContextError(ctx, backendName, operation); ctxErr != nil {
				return "", ctxErr
			}
			return "", err
		}
		if !op.Done {
			continue
		}
		if op.Error != nil {
			return "", render.Wrap(render.ErrInvalidResponse, backendName, operation, render.Normalize(op.Error.Message), nil)
		}
		if uri := firstVideoURI(op); uri != "" {
			return uri, nil
		}
		return "", render.Wrap(render.ErrInvalidResponse, backendName, operation, "no download link in finished operation", nil)
	}
}

func firstVideoURI(op videoOperation) string {
	if len(op.Response.GeneratedVideos) > 0 {
		return op.Response.GeneratedVideos[0].Video.URI
	}
	if nested := op.Response.GenerateVideoResponse; nested != nil && len(nested.GeneratedSamples) > 0 {
		return nested.GeneratedSamples[0].Video.URI
	}
	return ""
}

func (c *Client) downloadVideo(ctx context.Context, operation, uri string) (string, error) {
	separator := "?"
	if strings.Contains(uri, "?") {
		separator = "&"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri+separator+"key="+c.apiKey, nil)
	if err != nil {
		return "", render.Wrap(render.ErrValidation, backendName, operation, "build download request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := render.ContextError(ctx, backendName, operation); ctxErr != nil {
			return "", ctxErr
		}
		return "", render.Wrap(render.ErrBackendUnavailable, backendName, operation, "download failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", classifyStatus(resp.StatusCode, operation, string(body))
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", render.Wrap(render.ErrInvalidResponse, backendName, operation, "read video body", err)
	}

	dir := c.downloadDir
	if dir == "" {
		dir = os.TempDir()
	}
	name := fmt.Sprintf("veo-%s.mp4", uuid.NewString())
	return mediaref.WriteArtifact(dir, name, raw)
}

func clampAspect(aspect render.AspectRatio) string {
	if aspect == render.AspectWide || aspect == render.AspectTall {
		return string(aspect)
	}
	return string(render.AspectWide)
}
