// Package batch runs image-edit jobs strictly one at a time. The local
// engine holds model weights in shared memory, so batch items must never
// overlap; between items the runner asks the backend to release what it
// can.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gridflow/internal/logging"
	"gridflow/internal/render"
	"gridflow/internal/unit"
)

// ArtifactSink receives completed items for out-of-band persistence.
type ArtifactSink interface {
	SaveAsync(ctx context.Context, kind, ref string, meta map[string]string)
}

// Options configures a runner.
type Options struct {
	Providers  *render.Registry
	ProviderID render.ID
	Yield      time.Duration
	Logger     *slog.Logger
	Sink       ArtifactSink
}

// Runner owns a queue of edit items and processes them sequentially. The
// queue may be mutated externally between iterations; every turn rescans
// the live queue rather than iterating a stale snapshot.
type Runner struct {
	items      *unit.Tracker
	providers  *render.Registry
	providerID render.ID
	yield      time.Duration
	logger     *slog.Logger
	sink       ArtifactSink

	mu        sync.Mutex
	running   bool
	interrupt atomic.Bool
	wg        sync.WaitGroup
}

// NewRunner constructs an idle runner with an empty queue.
func NewRunner(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	yield := opts.Yield
	if yield <= 0 {
		yield = 100 * time.Millisecond
	}
	return &Runner{
		items:      unit.NewTracker(),
		providers:  opts.Providers,
		providerID: opts.ProviderID,
		yield:      yield,
		logger:     logger,
		sink:       opts.Sink,
	}
}

// Items exposes the queue tracker.
func (r *Runner) Items() *unit.Tracker { return r.items }

// Enqueue appends items to the queue. Safe while a run is in progress; the
// live rescan picks new items up.
func (r *Runner) Enqueue(refs ...string) []unit.Unit {
	added := make([]unit.Unit, 0, len(refs))
	for _, ref := range refs {
		added = append(added, r.items.Add(ref))
	}
	return added
}

// Running reports whether a run is in progress.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Stop prevents the next iteration from starting. The in-flight item
// finishes and its result is committed.
func (r *Runner) Stop() {
	r.interrupt.Store(true)
}

// Wait blocks until the current run finishes.
func (r *Runner) Wait() { r.wg.Wait() }

// Run processes the queue in the background: each turn picks the first
// pending or errored item not yet handled this run, edits it with the
// prompt, and settles it before looking at the next. The handled set
// guarantees an item runs at most once per run even if its own failure
// re-queues it.
func (r *Runner) Run(ctx context.Context, prompt string) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("batch: run already in progress")
	}
	r.running = true
	r.mu.Unlock()
	r.interrupt.Store(false)

	provider, err := r.providers.Resolve(r.providerID)
	if err != nil {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			r.running = false
			r.mu.Unlock()
		}()
		r.loop(ctx, provider, prompt)
	}()
	return nil
}

func (r *Runner) loop(ctx context.Context, provider render.Provider, prompt string) {
	handled := make(map[int64]struct{})
	for {
		if ctx.Err() != nil || r.interrupt.Load() {
			r.logger.Info("batch run interrupted")
			return
		}
		item, ok := r.nextEligible(handled)
		if !ok {
			r.logger.Info("batch run finished", logging.Int("handled", len(handled)))
			return
		}
		// Marked handled before the job runs: a failure that re-queues
		// this id must not be rescanned within this run.
		handled[item.ID] = struct{}{}

		if err := r.items.Transition(item.ID, unit.StatusProcessing, unit.Patch{}); err != nil {
			r.logger.Warn("batch item start rejected", logging.Int64("item_id", item.ID), logging.Error(err))
			continue
		}

		itemCtx := render.WithUnitID(render.WithPhase(ctx, "batch"), item.ID)
		output, err := provider.UpscaleImage(itemCtx, item.InputRef, 1, render.UpscaleHints{Prompt: prompt})
		if err != nil {
			r.items.Transition(item.ID, unit.StatusError, unit.Patch{ErrorDetail: unit.StringPtr(err.Error())})
			r.logger.Error("batch item failed", logging.Int64("item_id", item.ID), logging.Error(err))
		} else {
			r.items.Transition(item.ID, unit.StatusCompleted, unit.Patch{OutputRef: unit.StringPtr(output)})
			r.logger.Info("batch item completed", logging.Int64("item_id", item.ID))
			if r.sink != nil {
				r.sink.SaveAsync(context.WithoutCancel(itemCtx), "batch", output, map[string]string{
					"source": item.InputRef,
				})
			}
		}

		r.release(ctx, provider)

		// Brief yield so observers see the settle before the next item
		// starts.
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.yield):
		}
	}
}

// nextEligible rescans the live queue for the first actionable item.
func (r *Runner) nextEligible(handled map[int64]struct{}) (unit.Unit, bool) {
	for _, item := range r.items.Snapshot() {
		if _, seen := handled[item.ID]; seen {
			continue
		}
		if item.Status == unit.StatusPending || item.Status == unit.StatusError {
			return item, true
		}
	}
	return unit.Unit{}, false
}

// release asks the provider to drop retained backend state. Best effort;
// a release failure never fails the run.
func (r *Runner) release(ctx context.Context, provider render.Provider) {
	releaser, ok := provider.(render.Releaser)
	if !ok {
		return
	}
	if err := releaser.Release(ctx); err != nil {
		r.logger.Warn("backend release failed", logging.Error(err))
	}
}
