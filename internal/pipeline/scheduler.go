package pipeline

import (
	"context"
	"fmt"

	"gridflow/internal/logging"
	"gridflow/internal/render"
	"gridflow/internal/unit"
)

// StartVideos enters video generation: transitions are materialized once,
// one per adjacent frame pair, then every eligible transition starts
// concurrently. Jobs fire independently; no job waits on a sibling.
func (p *Pipeline) StartVideos(ctx context.Context) error {
	p.mu.Lock()
	if p.phase != PhaseGeneratingVideos {
		phase := p.phase
		p.mu.Unlock()
		return fmt.Errorf("pipeline: cannot generate videos in phase %s", phase)
	}
	p.mu.Unlock()

	provider, err := p.resolve(p.transitionID)
	if err != nil {
		return err
	}

	p.materializeTransitions()
	for _, t := range p.transitions.Snapshot() {
		if t.Status == unit.StatusPending || t.Status == unit.StatusError {
			p.startTransition(ctx, provider, t.ID)
		}
	}
	return nil
}

// RetryTransition clears one transition's error and re-enters it alone.
func (p *Pipeline) RetryTransition(ctx context.Context, id int64) error {
	t, ok := p.transitions.Get(id)
	if !ok {
		return fmt.Errorf("pipeline: transition %d not found", id)
	}
	if t.Status != unit.StatusError && t.Status != unit.StatusPending {
		return fmt.Errorf("pipeline: transition %d is %s, nothing to retry", id, t.Status)
	}
	provider, err := p.resolve(p.transitionID)
	if err != nil {
		return err
	}
	p.startTransition(ctx, provider, id)
	return nil
}

// CancelTransition aborts one in-flight transition. Its job settles back to
// pending; siblings are untouched.
func (p *Pipeline) CancelTransition(id int64) bool {
	return p.registry.Cancel(id)
}

// materializeTransitions creates one pending transition per adjacent frame
// pair the first time video generation is entered.
func (p *Pipeline) materializeTransitions() {
	if p.transitions.Len() > 0 {
		return
	}
	frames := p.frames.Snapshot()
	for i := 0; i+1 < len(frames); i++ {
		p.transitions.AddTransition(bestAvailableRef(frames[i]), frames[i].ID, frames[i+1].ID)
	}
	p.logger.Info("transitions materialized", logging.Int("count", p.transitions.Len()))
}

// startTransition fires one transition job. Starting is idempotent: a unit
// already processing or completed is skipped. The job registers its cancel
// handle for the duration of the call and removes it on every outcome.
func (p *Pipeline) startTransition(ctx context.Context, provider render.Provider, id int64) {
	t, ok := p.transitions.Get(id)
	if !ok {
		return
	}
	if t.Status == unit.StatusProcessing || t.Status == unit.StatusCompleted {
		return
	}
	startRef, endRef, err := p.endpointRefs(t)
	if err != nil {
		p.transitions.Transition(id, unit.StatusProcessing, unit.Patch{})
		p.transitions.Transition(id, unit.StatusError, unit.Patch{ErrorDetail: unit.StringPtr(err.Error())})
		return
	}

	jobCtx, cancel := context.WithCancel(render.WithUnitID(render.WithPhase(ctx, string(PhaseGeneratingVideos)), id))
	if !p.registry.Register(id, cancel) {
		cancel()
		return // a job for this id is already in flight
	}
	if err := p.transitions.Transition(id, unit.StatusProcessing, unit.Patch{}); err != nil {
		p.registry.Remove(id)
		cancel()
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.registry.Remove(id)
			cancel()
		}()

		output, err := provider.GenerateVideoTransition(jobCtx, startRef, endRef, p.aspect)
		switch {
		case err == nil:
			p.transitions.Transition(id, unit.StatusCompleted, unit.Patch{OutputRef: unit.StringPtr(output)})
			p.logger.Info("transition completed", logging.Int64("transition_id", id))
			if p.sink != nil {
				p.sink.SaveAsync(context.WithoutCancel(jobCtx), "transition", output, map[string]string{
					"from": fmt.Sprint(t.FromID),
					"to":   fmt.Sprint(t.ToID),
				})
			}
		case render.IsCancelled(err):
			p.transitions.Transition(id, unit.StatusPending, unit.Patch{})
			p.logger.Info("transition cancelled", logging.Int64("transition_id", id))
		default:
			p.transitions.Transition(id, unit.StatusError, unit.Patch{ErrorDetail: unit.StringPtr(err.Error())})
			p.logger.Error("transition failed", logging.Int64("transition_id", id), logging.Error(err))
		}

		if p.transitions.AllTerminal() && p.advance(PhaseCompleted) {
			p.logger.Info("project completed")
		}
	}()
}

// endpointRefs resolves the two adjacent frames' best available images.
func (p *Pipeline) endpointRefs(t unit.Unit) (string, string, error) {
	from, ok := p.frames.Get(t.FromID)
	if !ok {
		return "", "", fmt.Errorf("pipeline: transition %d references missing frame %d", t.ID, t.FromID)
	}
	to, ok := p.frames.Get(t.ToID)
	if !ok {
		return "", "", fmt.Errorf("pipeline: transition %d references missing frame %d", t.ID, t.ToID)
	}
	return bestAvailableRef(from), bestAvailableRef(to), nil
}
