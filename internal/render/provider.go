package render

import "context"

// AspectRatio is the target output shape requested from a backend. Backends
// that support only a subset clamp to their nearest supported value.
type AspectRatio string

const (
	AspectSquare    AspectRatio = "1:1"
	AspectPortrait  AspectRatio = "3:4"
	AspectLandscape AspectRatio = "4:3"
	AspectTall      AspectRatio = "9:16"
	AspectWide      AspectRatio = "16:9"
)

// UpscaleHints carries optional per-call tuning an adapter may honor or
// ignore. Method selects between adapter-specific upscale paths (for
// example, the local diffusion server's "extras" vs "img2img" routes).
type UpscaleHints struct {
	Method string
	Prompt string
}

// Generation is the result of an image-to-video call. DerivedLastFrame is
// always extracted by the provider, not the caller, because backends differ
// in how frames are embedded in their results. LocalPath is set when the
// backend persists the video on local disk; the stitch collaborator operates
// on local paths rather than URLs.
type Generation struct {
	VideoRef         string
	DerivedLastFrame string
	LocalPath        string
}

// Provider is the uniform capability contract every rendering backend
// implements. All media references are opaque strings (data URLs, file
// paths, or HTTP URLs); adapters convert as their protocol requires.
//
// Providers never retry; retry policy belongs to the owning scheduler. The
// context carries per-unit cancellation: an adapter interrupted mid-flight
// must fail with ErrCancelled.
type Provider interface {
	UpscaleImage(ctx context.Context, image string, targetFactor float64, hints UpscaleHints) (string, error)
	GenerateVideoTransition(ctx context.Context, start, end string, aspect AspectRatio) (string, error)
	GenerateFromImage(ctx context.Context, image, prompt string, aspect AspectRatio) (Generation, error)
}

// Releaser is implemented by adapters that retain backend state between
// calls (model weights held in memory by a local engine). Callers invoke it
// best-effort and swallow its failure.
type Releaser interface {
	Release(ctx context.Context) error
}
