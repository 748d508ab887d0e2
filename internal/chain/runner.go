// Package chain generates video sequences by recursive anchoring: each
// step animates the previous step's derived last frame, so a short prompt
// can be extended into an arbitrarily long continuous shot.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gridflow/internal/logging"
	"gridflow/internal/render"
	"gridflow/internal/stitch"
)

// Segment is one completed chain step. Segments accumulate across runs so
// a later run can continue from where the previous one stopped.
type Segment struct {
	VideoRef          string
	StartAnchorRef    string
	EndAnchorRef      string
	LocalArtifactPath string
	PromptText        string
}

// ArtifactSink receives stitched results for out-of-band persistence.
type ArtifactSink interface {
	SaveAsync(ctx context.Context, kind, ref string, meta map[string]string)
}

// Options configures a runner.
type Options struct {
	Providers  *render.Registry
	ProviderID render.ID
	Stitcher   stitch.Stitcher
	Aspect     render.AspectRatio
	MaxSteps   int
	Logger     *slog.Logger
	Sink       ArtifactSink
}

// Runner drives the iterative chain. Steps are strictly sequential by data
// dependency: no step can start before its predecessor's anchor exists.
type Runner struct {
	providers  *render.Registry
	providerID render.ID
	stitcher   stitch.Stitcher
	aspect     render.AspectRatio
	maxSteps   int
	logger     *slog.Logger
	sink       ArtifactSink

	mu          sync.Mutex
	segments    []Segment
	anchor      string
	stitchedRef string
	lastError   string
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewRunner constructs an idle runner.
func NewRunner(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 10
	}
	aspect := opts.Aspect
	if aspect == "" {
		aspect = render.AspectWide
	}
	return &Runner{
		providers:  opts.Providers,
		providerID: opts.ProviderID,
		stitcher:   opts.Stitcher,
		aspect:     aspect,
		maxSteps:   maxSteps,
		logger:     logger,
		sink:       opts.Sink,
	}
}

// Snapshot is a point-in-time copy of the chain state.
type Snapshot struct {
	Segments    []Segment
	Anchor      string
	StitchedRef string
	LastError   string
	Running     bool
}

// Snapshot returns a copy of the chain state.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	segments := make([]Segment, len(r.segments))
	copy(segments, r.segments)
	return Snapshot{
		Segments:    segments,
		Anchor:      r.anchor,
		StitchedRef: r.stitchedRef,
		LastError:   r.lastError,
		Running:     r.running,
	}
}

// Reset clears all accumulated state for a fresh chain.
func (r *Runner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.segments = nil
	r.anchor = ""
	r.stitchedRef = ""
	r.lastError = ""
}

// Wait blocks until the current run finishes.
func (r *Runner) Wait() { r.wg.Wait() }

// Run executes a fixed number of sequential steps from anchor. When the run
// continues an existing chain, anchor may be empty to use the last derived
// frame. If more than one step ran successfully, the segments are stitched
// automatically.
func (r *Runner) Run(ctx context.Context, anchor, prompt string, steps int) error {
	if steps < 1 {
		return fmt.Errorf("chain: steps must be >= 1, got %d", steps)
	}
	if steps > r.maxSteps {
		return fmt.Errorf("chain: steps %d exceeds limit %d", steps, r.maxSteps)
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("chain: run already in progress")
	}
	if anchor == "" {
		anchor = r.anchor
	}
	if anchor == "" {
		r.mu.Unlock()
		return fmt.Errorf("chain: anchor image required")
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.running = true
	r.cancel = cancel
	r.lastError = ""
	r.stitchedRef = ""
	r.mu.Unlock()

	provider, err := r.providers.Resolve(r.providerID)
	if err != nil {
		r.finishRun()
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.finishRun()
		r.runSteps(runCtx, provider, anchor, prompt, steps)
	}()
	return nil
}

// StopAndStitch aborts remaining steps and stitches whatever segments
// exist so far.
func (r *Runner) StopAndStitch(ctx context.Context) (string, error) {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.Wait()
	return r.stitchSegments(ctx)
}

func (r *Runner) finishRun() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.running = false
	r.mu.Unlock()
}

func (r *Runner) runSteps(ctx context.Context, provider render.Provider, anchor, prompt string, steps int) {
	completed := 0
	for step := 1; step <= steps; step++ {
		if ctx.Err() != nil {
			r.logger.Info("chain run stopped", logging.Int("completed", completed))
			break
		}
		stepCtx := render.WithPhase(ctx, "chain")
		generation, err := provider.GenerateFromImage(stepCtx, anchor, prompt, r.aspect)
		if err != nil {
			if render.IsCancelled(err) {
				r.logger.Info("chain step cancelled", logging.Int("step", step))
			} else {
				r.setLastError(err.Error())
				r.logger.Error("chain step failed", logging.Int("step", step), logging.Error(err))
			}
			break
		}
		segment := Segment{
			VideoRef:          generation.VideoRef,
			StartAnchorRef:    anchor,
			EndAnchorRef:      generation.DerivedLastFrame,
			LocalArtifactPath: generation.LocalPath,
			PromptText:        prompt,
		}
		r.appendSegment(segment)
		anchor = generation.DerivedLastFrame
		completed++
		r.logger.Info("chain step completed", logging.Int("step", step))
	}

	// Auto-stitch only applies to a fully successful multi-step run.
	if completed == steps && steps > 1 {
		if _, err := r.stitchSegments(context.WithoutCancel(ctx)); err != nil {
			// Stitch failure never undoes the segments.
			r.setLastError("sequence complete, but stitching failed: " + err.Error())
			r.logger.Error("auto-stitch failed", logging.Error(err))
		}
	}
}

func (r *Runner) appendSegment(segment Segment) {
	r.mu.Lock()
	r.segments = append(r.segments, segment)
	r.anchor = segment.EndAnchorRef
	r.mu.Unlock()
}

func (r *Runner) setLastError(message string) {
	r.mu.Lock()
	r.lastError = message
	r.mu.Unlock()
}

// stitchSegments concatenates every accumulated segment in order.
func (r *Runner) stitchSegments(ctx context.Context) (string, error) {
	r.mu.Lock()
	paths := make([]string, 0, len(r.segments))
	for _, segment := range r.segments {
		paths = append(paths, segment.LocalArtifactPath)
	}
	r.mu.Unlock()

	if len(paths) == 0 {
		return "", fmt.Errorf("chain: no segments to stitch")
	}
	if len(paths) == 1 {
		// A single segment is already the final artifact.
		r.mu.Lock()
		r.stitchedRef = r.segments[0].VideoRef
		ref := r.stitchedRef
		r.mu.Unlock()
		return ref, nil
	}
	if r.stitcher == nil {
		return "", fmt.Errorf("chain: no stitcher configured")
	}

	ref, err := r.stitcher.Stitch(ctx, paths)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.stitchedRef = ref
	r.mu.Unlock()
	if r.sink != nil {
		r.sink.SaveAsync(ctx, "stitched", ref, map[string]string{
			"segments": fmt.Sprint(len(paths)),
		})
	}
	r.logger.Info("chain stitched", logging.Int("segments", len(paths)))
	return ref, nil
}
