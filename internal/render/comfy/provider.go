package comfy

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"gridflow/internal/mediaref"
	"gridflow/internal/render"
)

// Provider implements the render contract on top of the job client. It also
// implements render.Releaser so schedulers can ask the engine to drop model
// weights between jobs.
type Provider struct {
	client    *Client
	outputDir string
}

// NewProvider wraps a job client. Videos are persisted under outputDir so
// downstream stitching can reach them by local path.
func NewProvider(client *Client, outputDir string) *Provider {
	return &Provider{client: client, outputDir: outputDir}
}

var (
	_ render.Provider = (*Provider)(nil)
	_ render.Releaser = (*Provider)(nil)
)

// UpscaleImage runs the upscaler workflow. The factor is fixed by the graph
// resolution settings; hints select nothing here.
func (p *Provider) UpscaleImage(ctx context.Context, image string, targetFactor float64, hints render.UpscaleHints) (string, error) {
	workflow := func(inputName string) Workflow {
		if hints.Prompt != "" {
			return EditWorkflow(inputName, hints.Prompt)
		}
		return UpscaleWorkflow(inputName)
	}
	job, wf, err := p.run(ctx, image, workflow, RolePrimaryOutput)
	if err != nil {
		return "", err
	}
	raw, err := p.client.FetchArtifact(ctx, job, wf.NodeFor(RolePrimaryOutput), ArtifactImage)
	if err != nil {
		return "", err
	}
	return mediaref.EncodeDataURL(raw, "image/png"), nil
}

// GenerateVideoTransition is not offered: the engine's video graph animates
// a single anchor image.
func (p *Provider) GenerateVideoTransition(ctx context.Context, start, end string, aspect render.AspectRatio) (string, error) {
	return "", render.Wrap(render.ErrUnsupported, backendName, "transition", "engine animates a single image", nil)
}

// GenerateFromImage runs the image-to-video workflow. The produced video is
// written to the output directory and the graph's dedicated last-frame node
// supplies the chain anchor.
func (p *Provider) GenerateFromImage(ctx context.Context, image, prompt string, aspect render.AspectRatio) (render.Generation, error) {
	workflow := func(inputName string) Workflow {
		return ImageToVideoWorkflow(inputName, prompt, string(aspect))
	}
	job, wf, err := p.run(ctx, image, workflow, RolePrimaryOutput, RoleLastFrame)
	if err != nil {
		return render.Generation{}, err
	}

	video, err := p.client.FetchArtifact(ctx, job, wf.NodeFor(RolePrimaryOutput), ArtifactVideo)
	if err != nil {
		return render.Generation{}, err
	}
	lastFrame, err := p.client.FetchArtifact(ctx, job, wf.NodeFor(RoleLastFrame), ArtifactImage)
	if err != nil {
		return render.Generation{}, err
	}

	dir := p.outputDir
	if dir == "" {
		dir = os.TempDir()
	}
	localPath, err := mediaref.WriteArtifact(dir, fmt.Sprintf("comfy-%s.mp4", uuid.NewString()), video)
	if err != nil {
		return render.Generation{}, render.Wrap(render.ErrInvalidResponse, backendName, "generate", "persist video", err)
	}
	return render.Generation{
		VideoRef:         localPath,
		DerivedLastFrame: mediaref.EncodeDataURL(lastFrame, "image/png"),
		LocalPath:        localPath,
	}, nil
}

// Release asks the engine to unload model weights.
func (p *Provider) Release(ctx context.Context) error {
	return p.client.FreeMemory(ctx)
}

// run uploads the input, builds and validates the workflow, submits it, and
// waits for execution.
func (p *Provider) run(ctx context.Context, image string, build func(inputName string) Workflow, required ...Role) (Job, Workflow, error) {
	var raw []byte
	var err error
	if mediaref.Classify(image) == mediaref.KindFile {
		raw, err = os.ReadFile(mediaref.FilePath(image))
	} else {
		raw, _, err = mediaref.DecodeDataURL(image)
	}
	if err != nil {
		return Job{}, Workflow{}, render.Wrap(render.ErrValidation, backendName, "submit", "decode input image", err)
	}
	inputName, err := p.client.UploadImage(ctx, raw)
	if err != nil {
		return Job{}, Workflow{}, err
	}
	wf := build(inputName)
	if err := wf.Validate(required...); err != nil {
		return Job{}, Workflow{}, render.Wrap(render.ErrValidation, backendName, "submit", err.Error(), nil)
	}
	job, err := p.client.Submit(ctx, wf.Graph)
	if err != nil {
		return Job{}, Workflow{}, err
	}
	if err := p.client.AwaitCompletion(ctx, job); err != nil {
		return Job{}, Workflow{}, err
	}
	return job, wf, nil
}
