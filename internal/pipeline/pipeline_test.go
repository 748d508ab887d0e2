package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"gridflow/internal/pipeline"
	"gridflow/internal/render"
	"gridflow/internal/unit"
)

// scriptedProvider lets tests hold transition jobs open and settle them in
// any order. Jobs identify themselves by the unit id carried in context.
type scriptedProvider struct {
	mu      sync.Mutex
	gates   map[int64]chan error
	started chan int64

	upscale func(image string) (string, error)
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{
		gates:   make(map[int64]chan error),
		started: make(chan int64, 64),
	}
}

func (s *scriptedProvider) gate(id int64) chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.gates[id]; !ok {
		s.gates[id] = make(chan error, 1)
	}
	return s.gates[id]
}

func (s *scriptedProvider) release(id int64, err error) {
	s.gate(id) <- err
}

func (s *scriptedProvider) UpscaleImage(ctx context.Context, image string, factor float64, hints render.UpscaleHints) (string, error) {
	if s.upscale != nil {
		return s.upscale(image)
	}
	return "upscaled-" + image, nil
}

func (s *scriptedProvider) GenerateVideoTransition(ctx context.Context, start, end string, aspect render.AspectRatio) (string, error) {
	id, _ := render.UnitIDFromContext(ctx)
	s.started <- id
	select {
	case <-ctx.Done():
		return "", render.Wrap(render.ErrCancelled, "scripted", "transition", "aborted", nil)
	case err := <-s.gate(id):
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("video-%d", id), nil
	}
}

func (s *scriptedProvider) GenerateFromImage(ctx context.Context, image, prompt string, aspect render.AspectRatio) (render.Generation, error) {
	return render.Generation{}, render.Wrap(render.ErrUnsupported, "scripted", "generate", "", nil)
}

func newTestPipeline(provider render.Provider) *pipeline.Pipeline {
	registry := render.NewRegistry()
	registry.Register("scripted", provider)
	return pipeline.New(pipeline.Options{
		Providers:          registry,
		UpscaleProvider:    "scripted",
		TransitionProvider: "scripted",
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func frameRefs(n int) []string {
	refs := make([]string, n)
	for i := range refs {
		refs[i] = fmt.Sprintf("frame-%d", i+1)
	}
	return refs
}

func collectStarts(t *testing.T, provider *scriptedProvider, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for len(ids) < n {
		select {
		case id := <-provider.started:
			ids = append(ids, id)
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d jobs started", len(ids), n)
		}
	}
	return ids
}

func TestNineFrameRoundTripWithSkip(t *testing.T) {
	provider := newScriptedProvider()
	p := newTestPipeline(provider)

	if err := p.NewProject(frameRefs(9)); err != nil {
		t.Fatalf("NewProject: %v", err)
	}
	if p.Phase() != pipeline.PhaseUpscaling {
		t.Fatalf("phase after project = %s", p.Phase())
	}

	if err := p.SkipUpscaling(); err != nil {
		t.Fatalf("SkipUpscaling: %v", err)
	}
	if p.Phase() != pipeline.PhaseGeneratingVideos {
		t.Fatalf("phase after skip = %s", p.Phase())
	}
	for _, f := range p.Frames().Snapshot() {
		if f.Status != unit.StatusCompleted || f.OutputRef != f.InputRef {
			t.Fatalf("skipped frame not completed with source ref: %+v", f)
		}
	}

	if err := p.StartVideos(context.Background()); err != nil {
		t.Fatalf("StartVideos: %v", err)
	}
	transitions := p.Transitions().Snapshot()
	if len(transitions) != 8 {
		t.Fatalf("expected 8 transitions, got %d", len(transitions))
	}
	frames := p.Frames().Snapshot()
	for i, tr := range transitions {
		if tr.FromID != frames[i].ID || tr.ToID != frames[i+1].ID {
			t.Fatalf("transition %d links %d->%d, want %d->%d", tr.ID, tr.FromID, tr.ToID, frames[i].ID, frames[i+1].ID)
		}
	}

	ids := collectStarts(t, provider, 8)
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	for _, id := range ids {
		provider.release(id, nil)
	}

	waitFor(t, "phase completed", func() bool { return p.Phase() == pipeline.PhaseCompleted })
	if p.Registry().Len() != 0 {
		t.Fatalf("registry not drained: %d entries", p.Registry().Len())
	}
}

func TestCancelIsolatesSiblings(t *testing.T) {
	provider := newScriptedProvider()
	p := newTestPipeline(provider)

	if err := p.NewProject(frameRefs(4)); err != nil {
		t.Fatalf("NewProject: %v", err)
	}
	p.SkipUpscaling()
	if err := p.StartVideos(context.Background()); err != nil {
		t.Fatalf("StartVideos: %v", err)
	}
	collectStarts(t, provider, 3)

	transitions := p.Transitions().Snapshot()
	t2 := transitions[1].ID

	if !p.CancelTransition(t2) {
		t.Fatal("cancel found no in-flight job")
	}
	waitFor(t, "t2 back to pending", func() bool {
		u, _ := p.Transitions().Get(t2)
		return u.Status == unit.StatusPending
	})
	if p.Registry().InFlight(t2) {
		t.Fatal("registry entry survived cancellation")
	}
	if p.CancelTransition(t2) {
		t.Fatal("second cancel should find nothing")
	}

	// Siblings settle normally.
	provider.release(transitions[0].ID, nil)
	provider.release(transitions[2].ID, nil)
	waitFor(t, "siblings completed", func() bool {
		a, _ := p.Transitions().Get(transitions[0].ID)
		b, _ := p.Transitions().Get(transitions[2].ID)
		return a.Status == unit.StatusCompleted && b.Status == unit.StatusCompleted
	})
	if p.Phase() == pipeline.PhaseCompleted {
		t.Fatal("phase completed with a pending transition")
	}

	// Retry re-enters only t2.
	if err := p.RetryTransition(context.Background(), t2); err != nil {
		t.Fatalf("RetryTransition: %v", err)
	}
	restarted := collectStarts(t, provider, 1)
	if restarted[0] != t2 {
		t.Fatalf("retry started %d, want %d", restarted[0], t2)
	}
	provider.release(t2, nil)
	waitFor(t, "phase completed", func() bool { return p.Phase() == pipeline.PhaseCompleted })
}

func TestStartIsIdempotentForInFlightJobs(t *testing.T) {
	provider := newScriptedProvider()
	p := newTestPipeline(provider)

	p.NewProject(frameRefs(3))
	p.SkipUpscaling()
	if err := p.StartVideos(context.Background()); err != nil {
		t.Fatalf("StartVideos: %v", err)
	}
	collectStarts(t, provider, 2)

	// Re-entering the phase must not double-start processing jobs.
	if err := p.StartVideos(context.Background()); err != nil {
		t.Fatalf("second StartVideos: %v", err)
	}
	select {
	case id := <-provider.started:
		t.Fatalf("duplicate start for transition %d", id)
	case <-time.After(50 * time.Millisecond):
	}

	for _, tr := range p.Transitions().Snapshot() {
		provider.release(tr.ID, nil)
	}
	waitFor(t, "phase completed", func() bool { return p.Phase() == pipeline.PhaseCompleted })
}

func TestTransitionFailureRecordsNormalizedMessage(t *testing.T) {
	provider := newScriptedProvider()
	p := newTestPipeline(provider)

	p.NewProject(frameRefs(2))
	p.SkipUpscaling()
	p.StartVideos(context.Background())
	ids := collectStarts(t, provider, 1)

	backendErr := render.Wrap(render.ErrInvalidResponse, "scripted", "transition", render.Normalize(`{"error":{"message":"quota exhausted"}}`), nil)
	provider.release(ids[0], backendErr)

	waitFor(t, "transition errored", func() bool {
		u, _ := p.Transitions().Get(ids[0])
		return u.Status == unit.StatusError
	})
	u, _ := p.Transitions().Get(ids[0])
	if !strings.Contains(u.ErrorDetail, "quota exhausted") {
		t.Fatalf("error detail not normalized: %q", u.ErrorDetail)
	}
	if p.Phase() == pipeline.PhaseCompleted {
		t.Fatal("phase completed with an errored transition")
	}
}

func TestSequentialUpscalePass(t *testing.T) {
	provider := newScriptedProvider()
	var order []string
	var mu sync.Mutex
	provider.upscale = func(image string) (string, error) {
		mu.Lock()
		order = append(order, image)
		mu.Unlock()
		return "up-" + image, nil
	}
	p := newTestPipeline(provider)

	p.NewProject([]string{"a", "b", "c"})
	if err := p.StartUpscale(context.Background()); err != nil {
		t.Fatalf("StartUpscale: %v", err)
	}
	waitFor(t, "phase advanced", func() bool { return p.Phase() == pipeline.PhaseGeneratingVideos })

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("frames not processed in order: %v", order)
	}
	for _, f := range p.Frames().Snapshot() {
		if f.OutputRef != "up-"+f.InputRef {
			t.Fatalf("frame output = %q", f.OutputRef)
		}
	}
}

func TestUpscaleFailureStopsPassAndRetryResumes(t *testing.T) {
	provider := newScriptedProvider()
	var calls int
	var mu sync.Mutex
	provider.upscale = func(image string) (string, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if image == "b" && n <= 2 {
			return "", errors.New("backend exploded")
		}
		return "up-" + image, nil
	}
	p := newTestPipeline(provider)

	p.NewProject([]string{"a", "b", "c"})
	p.StartUpscale(context.Background())
	waitFor(t, "pass stopped on failure", func() bool { return p.LastError() != "" })
	p.Wait()

	snapshot := p.Frames().Snapshot()
	if snapshot[0].Status != unit.StatusCompleted {
		t.Fatalf("frame a = %s", snapshot[0].Status)
	}
	if snapshot[1].Status != unit.StatusError {
		t.Fatalf("frame b = %s", snapshot[1].Status)
	}
	if snapshot[2].Status != unit.StatusPending {
		t.Fatalf("frame c started despite stop: %s", snapshot[2].Status)
	}
	if p.Phase() != pipeline.PhaseUpscaling {
		t.Fatalf("phase advanced despite failure: %s", p.Phase())
	}

	if err := p.RetryPhase(context.Background()); err != nil {
		t.Fatalf("RetryPhase: %v", err)
	}
	waitFor(t, "retry finished the pass", func() bool { return p.Phase() == pipeline.PhaseGeneratingVideos })
	if p.LastError() != "" {
		t.Fatalf("lastError not cleared on retry: %q", p.LastError())
	}
}

func TestNewProjectReplacesWholesale(t *testing.T) {
	provider := newScriptedProvider()
	p := newTestPipeline(provider)

	p.NewProject(frameRefs(2))
	p.SkipUpscaling()
	p.StartVideos(context.Background())
	collectStarts(t, provider, 1)

	if err := p.NewProject(frameRefs(3)); err != nil {
		t.Fatalf("NewProject: %v", err)
	}
	if p.Phase() != pipeline.PhaseUpscaling {
		t.Fatalf("phase after replacement = %s", p.Phase())
	}
	if p.Frames().Len() != 3 || p.Transitions().Len() != 0 {
		t.Fatalf("collections not replaced: %d frames, %d transitions", p.Frames().Len(), p.Transitions().Len())
	}
	waitFor(t, "registry drained", func() bool { return p.Registry().Len() == 0 })
}

func TestNewProjectDuringUpscaleDoesNotStrandSuccessor(t *testing.T) {
	provider := newScriptedProvider()
	oldGate := make(chan struct{})
	provider.upscale = func(image string) (string, error) {
		if image == "old-frame" {
			<-oldGate
			return "", render.Wrap(render.ErrCancelled, "scripted", "upscale", "aborted", nil)
		}
		time.Sleep(20 * time.Millisecond)
		return "up-" + image, nil
	}
	p := newTestPipeline(provider)

	if err := p.NewProject([]string{"old-frame"}); err != nil {
		t.Fatalf("NewProject: %v", err)
	}
	if err := p.StartUpscale(context.Background()); err != nil {
		t.Fatalf("StartUpscale: %v", err)
	}
	waitFor(t, "old frame in flight", func() bool {
		return p.Frames().Snapshot()[0].Status == unit.StatusProcessing
	})

	// Replace the project while the old pass is blocked inside the
	// provider, then let the old pass unwind. Its cleanup must not touch
	// the successor's cancel handle.
	if err := p.NewProject(frameRefs(2)); err != nil {
		t.Fatalf("NewProject replacement: %v", err)
	}
	if err := p.StartUpscale(context.Background()); err != nil {
		t.Fatalf("StartUpscale replacement: %v", err)
	}
	close(oldGate)

	waitFor(t, "replacement pass to finish", func() bool {
		return p.Phase() == pipeline.PhaseGeneratingVideos
	})
	for _, frame := range p.Frames().Snapshot() {
		if frame.Status != unit.StatusCompleted {
			t.Fatalf("frame %d = %s, want completed", frame.ID, frame.Status)
		}
	}
	if p.LastError() != "" {
		t.Fatalf("unexpected lastError: %q", p.LastError())
	}
	p.Wait()
}

func TestRegistryRefusesDuplicateHandles(t *testing.T) {
	registry := pipeline.NewCancellationRegistry()
	if !registry.Register(1, func() {}) {
		t.Fatal("first register refused")
	}
	if registry.Register(1, func() {}) {
		t.Fatal("duplicate register accepted")
	}
	registry.Remove(1)
	if !registry.Register(1, func() {}) {
		t.Fatal("register after remove refused")
	}
}
