package chain_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gridflow/internal/chain"
	"gridflow/internal/render"
)

// chainStub generates deterministic segments so anchor threading can be
// asserted exactly.
type chainStub struct {
	mu      sync.Mutex
	calls   []string
	failOn  int
	blockOn int
	block   chan struct{}
}

func (s *chainStub) UpscaleImage(ctx context.Context, image string, factor float64, hints render.UpscaleHints) (string, error) {
	return "", render.ErrUnsupported
}

func (s *chainStub) GenerateVideoTransition(ctx context.Context, start, end string, aspect render.AspectRatio) (string, error) {
	return "", render.ErrUnsupported
}

func (s *chainStub) GenerateFromImage(ctx context.Context, image, prompt string, aspect render.AspectRatio) (render.Generation, error) {
	s.mu.Lock()
	s.calls = append(s.calls, image)
	n := len(s.calls)
	s.mu.Unlock()
	if s.blockOn == n {
		select {
		case <-s.block:
		case <-ctx.Done():
		}
	}
	if ctx.Err() != nil {
		return render.Generation{}, render.ContextError(ctx, "stub", "generate")
	}
	if s.failOn == n {
		return render.Generation{}, errors.New("model refused the prompt")
	}
	return render.Generation{
		VideoRef:         fmt.Sprintf("video-%d.mp4", n),
		DerivedLastFrame: fmt.Sprintf("frame-%d.png", n),
		LocalPath:        fmt.Sprintf("/tmp/video-%d.mp4", n),
	}, nil
}

func (s *chainStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *chainStub) anchors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// stitchStub records the paths it was asked to join.
type stitchStub struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (s *stitchStub) Stitch(ctx context.Context, paths []string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, append([]string(nil), paths...))
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return "/tmp/stitched.mp4", nil
}

func (s *stitchStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func newTestRunner(stub *chainStub, stitcher *stitchStub) *chain.Runner {
	registry := render.NewRegistry()
	registry.Register("stub", stub)
	return chain.NewRunner(chain.Options{
		Providers:  registry,
		ProviderID: "stub",
		Stitcher:   stitcher,
	})
}

func TestAnchorsThreadThroughSteps(t *testing.T) {
	stub := &chainStub{}
	stitcher := &stitchStub{}
	runner := newTestRunner(stub, stitcher)

	if err := runner.Run(context.Background(), "seed.png", "keep panning left", 3); err != nil {
		t.Fatalf("Run: %v", err)
	}
	runner.Wait()

	anchors := stub.anchors()
	want := []string{"seed.png", "frame-1.png", "frame-2.png"}
	if len(anchors) != 3 {
		t.Fatalf("expected 3 steps, ran %d", len(anchors))
	}
	for i := range want {
		if anchors[i] != want[i] {
			t.Fatalf("step %d anchored on %q, want %q", i+1, anchors[i], want[i])
		}
	}

	snap := runner.Snapshot()
	if len(snap.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(snap.Segments))
	}
	for i, segment := range snap.Segments {
		if segment.StartAnchorRef != want[i] {
			t.Fatalf("segment %d start anchor = %q, want %q", i, segment.StartAnchorRef, want[i])
		}
	}
	if snap.Anchor != "frame-3.png" {
		t.Fatalf("next anchor = %q", snap.Anchor)
	}
	if snap.StitchedRef != "/tmp/stitched.mp4" {
		t.Fatalf("auto-stitch missing: %+v", snap)
	}
	if stitcher.callCount() != 1 {
		t.Fatalf("stitch called %d times", stitcher.callCount())
	}
	stitcher.mu.Lock()
	paths := stitcher.calls[0]
	stitcher.mu.Unlock()
	if len(paths) != 3 || paths[0] != "/tmp/video-1.mp4" || paths[2] != "/tmp/video-3.mp4" {
		t.Fatalf("stitch paths out of order: %v", paths)
	}
}

func TestSingleStepSkipsStitch(t *testing.T) {
	stub := &chainStub{}
	stitcher := &stitchStub{}
	runner := newTestRunner(stub, stitcher)

	runner.Run(context.Background(), "seed.png", "p", 1)
	runner.Wait()

	if stitcher.callCount() != 0 {
		t.Fatal("single-step run must not stitch")
	}
	if snap := runner.Snapshot(); len(snap.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(snap.Segments))
	}
}

func TestStepFailureKeepsEarlierSegments(t *testing.T) {
	stub := &chainStub{failOn: 2}
	stitcher := &stitchStub{}
	runner := newTestRunner(stub, stitcher)

	runner.Run(context.Background(), "seed.png", "p", 3)
	runner.Wait()

	snap := runner.Snapshot()
	if len(snap.Segments) != 1 {
		t.Fatalf("expected 1 surviving segment, got %d", len(snap.Segments))
	}
	if !strings.Contains(snap.LastError, "model refused the prompt") {
		t.Fatalf("failure not recorded: %q", snap.LastError)
	}
	// Partial runs never auto-stitch.
	if stitcher.callCount() != 0 {
		t.Fatal("stitched after partial failure")
	}

	// The next run resumes from the surviving anchor.
	stub.mu.Lock()
	stub.failOn = 0
	stub.calls = nil
	stub.mu.Unlock()
	if err := runner.Run(context.Background(), "", "p", 1); err != nil {
		t.Fatalf("resume: %v", err)
	}
	runner.Wait()
	if anchors := stub.anchors(); len(anchors) != 1 || anchors[0] != "frame-1.png" {
		t.Fatalf("resume anchored on %v, want frame-1.png", anchors)
	}
	if snap := runner.Snapshot(); len(snap.Segments) != 2 {
		t.Fatalf("segments not accumulated across runs: %d", len(snap.Segments))
	}
}

func TestStitchFailureReportsButKeepsSegments(t *testing.T) {
	stub := &chainStub{}
	stitcher := &stitchStub{err: errors.New("stitch service offline")}
	runner := newTestRunner(stub, stitcher)

	runner.Run(context.Background(), "seed.png", "p", 2)
	runner.Wait()

	snap := runner.Snapshot()
	if len(snap.Segments) != 2 {
		t.Fatalf("segments lost on stitch failure: %d", len(snap.Segments))
	}
	if !strings.Contains(snap.LastError, "stitch service offline") {
		t.Fatalf("stitch failure not reported: %q", snap.LastError)
	}
	if snap.StitchedRef != "" {
		t.Fatalf("stitched ref set despite failure: %q", snap.StitchedRef)
	}
}

func TestStopAndStitchMidSequence(t *testing.T) {
	stub := &chainStub{blockOn: 2, block: make(chan struct{})}
	stitcher := &stitchStub{}
	runner := newTestRunner(stub, stitcher)

	if err := runner.Run(context.Background(), "seed.png", "p", 3); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Wait until step 2 is in flight, then stop. The blocked step observes
	// cancellation and settles as cancelled; only step 1's segment remains.
	for stub.callCount() < 2 {
		time.Sleep(time.Millisecond)
	}
	done := make(chan struct{})
	var ref string
	var err error
	go func() {
		ref, err = runner.StopAndStitch(context.Background())
		close(done)
	}()
	<-done
	close(stub.block)

	if err != nil {
		t.Fatalf("StopAndStitch: %v", err)
	}
	// One segment: the stitched ref is the segment itself, no stitch call.
	if ref != "video-1.mp4" {
		t.Fatalf("stitched ref = %q", ref)
	}
	if stitcher.callCount() != 0 {
		t.Fatal("single segment must not hit the stitch service")
	}
	snap := runner.Snapshot()
	if snap.Running {
		t.Fatal("runner still marked running")
	}
	if len(snap.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(snap.Segments))
	}
}

func TestRunValidation(t *testing.T) {
	runner := newTestRunner(&chainStub{}, &stitchStub{})
	if err := runner.Run(context.Background(), "seed.png", "p", 0); err == nil {
		t.Fatal("zero steps accepted")
	}
	if err := runner.Run(context.Background(), "seed.png", "p", 99); err == nil {
		t.Fatal("step count over limit accepted")
	}
	if err := runner.Run(context.Background(), "", "p", 1); err == nil {
		t.Fatal("missing anchor accepted on fresh chain")
	}
}
