package pipeline

import (
	"context"
	"fmt"

	"gridflow/internal/logging"
	"gridflow/internal/render"
	"gridflow/internal/unit"
)

// StartUpscale runs the sequential upscale pass in the background. Frames
// are processed in order, one at a time; cancellation is coarse, checked
// between frames rather than aborting the in-flight call. A frame failure
// stops the pass and surfaces a phase-level error for retry.
func (p *Pipeline) StartUpscale(ctx context.Context) error {
	p.mu.Lock()
	if p.phase != PhaseUpscaling {
		phase := p.phase
		p.mu.Unlock()
		return fmt.Errorf("pipeline: cannot upscale in phase %s", phase)
	}
	if p.upscaleCancel != nil {
		p.mu.Unlock()
		return nil // pass already running
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.upscaleCancel = cancel
	p.upscaleGen++
	gen := p.upscaleGen
	p.mu.Unlock()

	provider, err := p.resolve(p.upscaleID)
	if err != nil {
		p.clearUpscaleCancel(gen, cancel)
		return err
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.clearUpscaleCancel(gen, cancel)
		p.runUpscalePass(runCtx, provider)
	}()
	return nil
}

// StopUpscale prevents the next frame from starting. The in-flight frame
// finishes and its result is committed.
func (p *Pipeline) StopUpscale() {
	p.mu.Lock()
	cancel := p.upscaleCancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// clearUpscaleCancel releases the pass's own context and clears the stored
// handle only if it still belongs to this pass. A replaced pass unwinding
// late must not cancel its successor.
func (p *Pipeline) clearUpscaleCancel(gen uint64, cancel context.CancelFunc) {
	cancel()
	p.mu.Lock()
	if p.upscaleGen == gen {
		p.upscaleCancel = nil
	}
	p.mu.Unlock()
}

func (p *Pipeline) runUpscalePass(ctx context.Context, provider render.Provider) {
	for _, frame := range p.frames.Snapshot() {
		if ctx.Err() != nil {
			p.logger.Info("upscale pass stopped", logging.Int64("frame_id", frame.ID))
			return
		}
		if frame.Status == unit.StatusCompleted || frame.Status == unit.StatusProcessing {
			continue
		}
		if err := p.frames.Transition(frame.ID, unit.StatusProcessing, unit.Patch{}); err != nil {
			p.logger.Warn("upscale start rejected", logging.Int64("frame_id", frame.ID), logging.Error(err))
			continue
		}

		frameCtx := render.WithUnitID(render.WithPhase(ctx, string(PhaseUpscaling)), frame.ID)
		output, err := provider.UpscaleImage(frameCtx, frame.InputRef, p.upscaleFactor, render.UpscaleHints{})
		if err != nil {
			if render.IsCancelled(err) {
				// Coarse stop arrived mid-call; put the frame back.
				p.frames.Transition(frame.ID, unit.StatusPending, unit.Patch{})
				return
			}
			message := err.Error()
			p.frames.Transition(frame.ID, unit.StatusError, unit.Patch{ErrorDetail: unit.StringPtr(message)})
			p.setLastError(message)
			p.logger.Error("frame upscale failed", logging.Int64("frame_id", frame.ID), logging.Error(err))
			return
		}
		p.frames.Transition(frame.ID, unit.StatusCompleted, unit.Patch{OutputRef: unit.StringPtr(output)})
		p.logger.Info("frame upscaled", logging.Int64("frame_id", frame.ID))
	}

	if p.frames.AllTerminal() && p.advance(PhaseGeneratingVideos) {
		p.logger.Info("upscale pass finished", logging.String("phase", string(PhaseGeneratingVideos)))
	}
}

// SkipUpscaling marks every remaining frame completed with its best
// available reference and advances straight to video generation.
func (p *Pipeline) SkipUpscaling() error {
	p.mu.Lock()
	if p.phase != PhaseUpscaling {
		phase := p.phase
		p.mu.Unlock()
		return fmt.Errorf("pipeline: cannot skip upscaling in phase %s", phase)
	}
	p.mu.Unlock()

	p.StopUpscale()
	for _, frame := range p.frames.Snapshot() {
		if frame.Status == unit.StatusCompleted {
			continue
		}
		if frame.Status != unit.StatusProcessing {
			if err := p.frames.Transition(frame.ID, unit.StatusProcessing, unit.Patch{}); err != nil {
				p.logger.Warn("skip rejected", logging.Int64("frame_id", frame.ID), logging.Error(err))
				continue
			}
		}
		p.frames.Transition(frame.ID, unit.StatusCompleted, unit.Patch{OutputRef: unit.StringPtr(bestAvailableRef(frame))})
	}

	if p.advance(PhaseGeneratingVideos) {
		p.logger.Info("upscaling skipped", logging.String("phase", string(PhaseGeneratingVideos)))
	}
	return nil
}
