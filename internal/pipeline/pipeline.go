// Package pipeline drives one project through its phases: a source asset
// is sliced into frames, the frames are upscaled one by one, adjacent pairs
// are animated concurrently into transitions, and the project completes
// when every transition has settled successfully.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gridflow/internal/logging"
	"gridflow/internal/render"
	"gridflow/internal/unit"
)

// ArtifactSink receives completed artifacts for out-of-band persistence.
// Implementations must not block; failures stay inside the sink.
type ArtifactSink interface {
	SaveAsync(ctx context.Context, kind, ref string, meta map[string]string)
}

// Options configures a pipeline.
type Options struct {
	Providers          *render.Registry
	UpscaleProvider    render.ID
	TransitionProvider render.ID
	UpscaleFactor      float64
	Aspect             render.AspectRatio
	Logger             *slog.Logger
	Sink               ArtifactSink
}

// Pipeline owns the project state: the phase, the frame and transition
// trackers, and the in-flight cancellation handles. All backend work runs
// in goroutines; the trackers serialize the status writes.
type Pipeline struct {
	mu        sync.Mutex
	phase     Phase
	lastError string

	frames      *unit.Tracker
	transitions *unit.Tracker
	registry    *CancellationRegistry

	providers    *render.Registry
	upscaleID    render.ID
	transitionID render.ID

	upscaleFactor float64
	aspect        render.AspectRatio
	upscaleCancel context.CancelFunc
	upscaleGen    uint64

	logger *slog.Logger
	sink   ArtifactSink
	wg     sync.WaitGroup
}

// New constructs an idle pipeline.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	factor := opts.UpscaleFactor
	if factor <= 0 {
		factor = 2
	}
	aspect := opts.Aspect
	if aspect == "" {
		aspect = render.AspectSquare
	}
	return &Pipeline{
		phase:         PhaseIdle,
		frames:        unit.NewTracker(),
		transitions:   unit.NewTracker(),
		registry:      NewCancellationRegistry(),
		providers:     opts.Providers,
		upscaleID:     opts.UpscaleProvider,
		transitionID:  opts.TransitionProvider,
		upscaleFactor: factor,
		aspect:        aspect,
		logger:        logger,
		sink:          opts.Sink,
	}
}

// Snapshot is a point-in-time copy of the project state.
type Snapshot struct {
	Phase               Phase
	LastError           string
	Frames              []unit.Unit
	FrameAggregate      unit.Aggregate
	Transitions         []unit.Unit
	TransitionAggregate unit.Aggregate
}

// Snapshot returns a copy of the full project state.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	phase, lastError := p.phase, p.lastError
	p.mu.Unlock()
	return Snapshot{
		Phase:               phase,
		LastError:           lastError,
		Frames:              p.frames.Snapshot(),
		FrameAggregate:      p.frames.Aggregate(),
		Transitions:         p.transitions.Snapshot(),
		TransitionAggregate: p.transitions.Aggregate(),
	}
}

// Phase returns the current phase.
func (p *Pipeline) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Frames exposes the frame tracker.
func (p *Pipeline) Frames() *unit.Tracker { return p.frames }

// Transitions exposes the transition tracker.
func (p *Pipeline) Transitions() *unit.Tracker { return p.transitions }

// Registry exposes the cancellation registry.
func (p *Pipeline) Registry() *CancellationRegistry { return p.registry }

// Wait blocks until all spawned jobs have settled. Used on shutdown and in
// tests; a live daemon never calls it on the request path.
func (p *Pipeline) Wait() { p.wg.Wait() }

// NewProject replaces the project wholesale with freshly sliced frames.
// Any in-flight work belonging to the previous project is cancelled; its
// goroutines settle against removed ids and are ignored.
func (p *Pipeline) NewProject(frameRefs []string) error {
	if len(frameRefs) == 0 {
		return fmt.Errorf("pipeline: project needs at least one frame")
	}

	p.mu.Lock()
	if p.upscaleCancel != nil {
		p.upscaleCancel()
		p.upscaleCancel = nil
	}
	p.phase = PhaseSlicing
	p.lastError = ""
	p.mu.Unlock()

	for _, u := range p.transitions.Snapshot() {
		p.registry.Cancel(u.ID)
	}
	p.frames.Reset()
	p.transitions.Reset()
	for _, ref := range frameRefs {
		p.frames.Add(ref)
	}

	p.advance(PhaseUpscaling)
	p.logger.Info("project created",
		logging.Int("frames", len(frameRefs)),
		logging.String("phase", string(PhaseUpscaling)))
	return nil
}

// LastError returns the surfaced phase-level failure, if any.
func (p *Pipeline) LastError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastError
}

// RetryPhase clears the surfaced failure and re-runs the current phase's
// remaining work.
func (p *Pipeline) RetryPhase(ctx context.Context) error {
	p.mu.Lock()
	p.lastError = ""
	phase := p.phase
	p.mu.Unlock()

	switch phase {
	case PhaseUpscaling:
		return p.StartUpscale(ctx)
	case PhaseGeneratingVideos:
		return p.StartVideos(ctx)
	default:
		return fmt.Errorf("pipeline: nothing to retry in phase %s", phase)
	}
}

func (p *Pipeline) advance(to Phase) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !CanAdvance(p.phase, to) {
		return false
	}
	p.phase = to
	return true
}

func (p *Pipeline) setLastError(message string) {
	p.mu.Lock()
	p.lastError = message
	p.mu.Unlock()
}

func (p *Pipeline) resolve(id render.ID) (render.Provider, error) {
	if p.providers == nil {
		return nil, fmt.Errorf("pipeline: no provider registry configured")
	}
	return p.providers.Resolve(id)
}

// bestAvailableRef prefers the upscaled output and falls back to the
// original frame.
func bestAvailableRef(u unit.Unit) string {
	if u.OutputRef != "" {
		return u.OutputRef
	}
	return u.InputRef
}
