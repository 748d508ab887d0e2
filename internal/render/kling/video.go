package kling

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"gridflow/internal/logging"
	"gridflow/internal/mediaref"
	"gridflow/internal/render"
)

const transitionPrompt = "A cinematic transition, high quality, smooth motion"

const (
	taskStatusSucceed = "succeed"
	taskStatusFailed  = "failed"
)

type createTaskRequest struct {
	ModelName string  `json:"model_name"`
	Mode      string  `json:"mode"`
	Duration  string  `json:"duration"`
	Image     string  `json:"image"`
	Prompt    string  `json:"prompt"`
	CfgScale  float64 `json:"cfg_scale"`
}

type taskEnvelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		TaskID        string `json:"task_id"`
		TaskStatus    string `json:"task_status"`
		TaskStatusMsg string `json:"task_status_msg"`
		TaskResult    struct {
			Videos []struct {
				URL string `json:"url"`
			} `json:"videos"`
		} `json:"task_result"`
	} `json:"data"`
}

// UpscaleImage is not offered by this backend.
func (c *Client) UpscaleImage(ctx context.Context, image string, targetFactor float64, hints render.UpscaleHints) (string, error) {
	return "", render.Wrap(render.ErrUnsupported, backendName, "upscale", "backend generates video only", nil)
}

// GenerateVideoTransition animates motion from the start frame. The v1
// image-to-video endpoint takes a single source image, so the end frame is
// approximated through the prompt rather than pinned.
func (c *Client) GenerateVideoTransition(ctx context.Context, start, end string, aspect render.AspectRatio) (string, error) {
	const operation = "transition"
	generation, err := c.generate(ctx, operation, start, transitionPrompt, false)
	if err != nil {
		return "", err
	}
	return generation.VideoRef, nil
}

// GenerateFromImage produces a clip continuing from the anchor image and
// derives the clip's last frame for chained generations.
func (c *Client) GenerateFromImage(ctx context.Context, image, prompt string, aspect render.AspectRatio) (render.Generation, error) {
	return c.generate(ctx, "generate", image, prompt, true)
}

func (c *Client) generate(ctx context.Context, operation, image, prompt string, deriveLastFrame bool) (render.Generation, error) {
	taskID, err := c.createTask(ctx, operation, image, prompt)
	if err != nil {
		return render.Generation{}, err
	}
	videoURL, err := c.awaitTask(ctx, operation, taskID)
	if err != nil {
		return render.Generation{}, err
	}
	localPath, err := c.downloadVideo(ctx, operation, videoURL)
	if err != nil {
		return render.Generation{}, err
	}

	generation := render.Generation{VideoRef: localPath, LocalPath: localPath}
	if deriveLastFrame {
		framePath := strings.TrimSuffix(localPath, filepath.Ext(localPath)) + "-last.png"
		if err := mediaref.ExtractLastFrame(ctx, localPath, framePath); err != nil {
			return render.Generation{}, render.Wrap(render.ErrInvalidResponse, backendName, operation, "derive last frame", err)
		}
		raw, err := os.ReadFile(framePath)
		if err != nil {
			return render.Generation{}, render.Wrap(render.ErrInvalidResponse, backendName, operation, "read derived frame", err)
		}
		generation.DerivedLastFrame = mediaref.EncodeDataURL(raw, "image/png")
	}
	return generation, nil
}

func (c *Client) createTask(ctx context.Context, operation, image, prompt string) (string, error) {
	request := createTaskRequest{
		ModelName: c.model,
		Mode:      c.mode,
		Duration:  c.duration,
		Image:     mediaref.Base64Payload(image),
		Prompt:    prompt,
		CfgScale:  0.5,
	}
	var envelope taskEnvelope
	if err := c.doJSON(ctx, operation, http.MethodPost, "/videos/image2video", request, &envelope); err != nil {
		return "", err
	}
	if envelope.Data.TaskID == "" {
		message := render.Normalize(envelope.Message)
		if message == "" {
			message = "task id missing in response"
		}
		return "", render.Wrap(render.ErrInvalidResponse, backendName, operation, message, nil)
	}
	return envelope.Data.TaskID, nil
}

// awaitTask polls until the task settles or the deadline passes. A failed
// status check is tolerated and logged; the task keeps running server-side
// and the next tick will see it. A failed TASK is terminal.
func (c *Client) awaitTask(ctx context.Context, operation, taskID string) (string, error) {
	deadline := time.Now().Add(c.pollTimeout)
	for {
		select {
		case <-ctx.Done():
			return "", render.ContextError(ctx, backendName, operation)
		case <-time.After(c.pollInterval):
		}
		if time.Now().After(deadline) {
			return "", render.Wrap(render.ErrTimeout, backendName, operation, fmt.Sprintf("task %s still running after %s", taskID, c.pollTimeout), nil)
		}

		var envelope taskEnvelope
		if err := c.doJSON(ctx, operation, http.MethodGet, "/videos/image2video/"+taskID, nil, &envelope); err != nil {
			if render.IsCancelled(err) {
				return "", err
			}
			c.logger.Warn("task status check failed",
				logging.String("task_id", taskID),
				logging.Error(err))
			continue
		}
		switch envelope.Data.TaskStatus {
		case taskStatusSucceed:
			if len(envelope.Data.TaskResult.Videos) == 0 || envelope.Data.TaskResult.Videos[0].URL == "" {
				return "", render.Wrap(render.ErrInvalidResponse, backendName, operation, "task succeeded but no video url", nil)
			}
			return envelope.Data.TaskResult.Videos[0].URL, nil
		case taskStatusFailed:
			message := render.Normalize(envelope.Data.TaskStatusMsg)
			if message == "" {
				message = "generation failed"
			}
			return "", render.Wrap(render.ErrInvalidResponse, backendName, operation, message, nil)
		}
	}
}

func (c *Client) downloadVideo(ctx context.Context, operation, videoURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
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
		return "", render.Wrap(render.ErrArtifactNotFound, backendName, operation, fmt.Sprintf("download returned http %d", resp.StatusCode), nil)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", render.Wrap(render.ErrInvalidResponse, backendName, operation, "read video body", err)
	}

	dir := c.downloadDir
	if dir == "" {
		dir = os.TempDir()
	}
	name := fmt.Sprintf("kling-%s.mp4", uuid.NewString())
	return mediaref.WriteArtifact(dir, name, raw)
}
