package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"gridflow/internal/api"
	"gridflow/internal/batch"
	"gridflow/internal/chain"
	"gridflow/internal/config"
	"gridflow/internal/gallery"
	"gridflow/internal/logging"
	"gridflow/internal/pipeline"
	"gridflow/internal/render"
)

// Components carries the constructed services the daemon coordinates.
type Components struct {
	Pipeline  *pipeline.Pipeline
	Batch     *batch.Runner
	Chain     *chain.Runner
	Providers *render.Registry
	Gallery   *gallery.Store
	Saver     *gallery.Saver
}

// Daemon owns the background services and enforces single-instance
// execution via a file lock.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	pipeline  *pipeline.Pipeline
	batch     *batch.Runner
	chain     *chain.Runner
	providers *render.Registry
	gallery   *gallery.Store
	saver     *gallery.Saver
	logPath   string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool

	// mu guards ctx and cancel; IPC goroutines read them concurrently
	// with Stop.
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, components Components) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	if components.Pipeline == nil || components.Batch == nil || components.Chain == nil {
		return nil, errors.New("daemon requires pipeline, batch, and chain runners")
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:       cfg,
		logger:    logger,
		pipeline:  components.Pipeline,
		batch:     components.Batch,
		chain:     components.Chain,
		providers: components.Providers,
		gallery:   components.Gallery,
		saver:     components.Saver,
		logPath:   cfg.LogFilePath(),
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and arms the service context.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another gridflow daemon instance is already running")
	}

	d.mu.Lock()
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Unlock()
	d.running.Store(true)
	d.logger.Info("gridflow daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts background processing and releases the daemon lock. In-flight
// work observes cancellation through the service context.
func (d *Daemon) Stop() {
	if !d.running.Swap(false) {
		return
	}

	d.batch.Stop()
	d.mu.Lock()
	cancel := d.cancel
	d.ctx = nil
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.pipeline.Wait()
	d.batch.Wait()
	d.chain.Wait()
	if d.saver != nil {
		d.saver.Flush()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("gridflow daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.gallery != nil {
		return d.gallery.Close()
	}
	return nil
}

func (d *Daemon) serviceContext() (context.Context, error) {
	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()
	if !d.running.Load() || ctx == nil {
		return nil, errors.New("daemon not running")
	}
	return ctx, nil
}

// NewProject replaces the current project with the given frames and kicks
// off the upscale pass.
func (d *Daemon) NewProject(frames []string) error {
	ctx, err := d.serviceContext()
	if err != nil {
		return err
	}
	cleaned := make([]string, 0, len(frames))
	for _, frame := range frames {
		frame = strings.TrimSpace(frame)
		if frame == "" {
			continue
		}
		cleaned = append(cleaned, frame)
	}
	if len(cleaned) == 0 {
		return errors.New("project requires at least one frame")
	}
	if err := d.pipeline.NewProject(cleaned); err != nil {
		return err
	}
	d.logger.Info("project replaced", logging.Int("frame_count", len(cleaned)))
	return d.pipeline.StartUpscale(ctx)
}

// SkipUpscaling passes remaining frames through unmodified and advances to
// video generation.
func (d *Daemon) SkipUpscaling() error {
	if _, err := d.serviceContext(); err != nil {
		return err
	}
	return d.pipeline.SkipUpscaling()
}

// StartVideos launches transition generation for the current project.
func (d *Daemon) StartVideos() error {
	ctx, err := d.serviceContext()
	if err != nil {
		return err
	}
	return d.pipeline.StartVideos(ctx)
}

// CancelTransition aborts one in-flight transition.
func (d *Daemon) CancelTransition(id int64) (bool, error) {
	if _, err := d.serviceContext(); err != nil {
		return false, err
	}
	return d.pipeline.CancelTransition(id), nil
}

// RetryTransition restarts a single settled transition.
func (d *Daemon) RetryTransition(id int64) error {
	ctx, err := d.serviceContext()
	if err != nil {
		return err
	}
	return d.pipeline.RetryTransition(ctx, id)
}

// RetryPhase re-runs the active phase after a failure.
func (d *Daemon) RetryPhase() error {
	ctx, err := d.serviceContext()
	if err != nil {
		return err
	}
	return d.pipeline.RetryPhase(ctx)
}

// EnqueueBatch appends items to the edit queue.
func (d *Daemon) EnqueueBatch(refs []string) (int, error) {
	if _, err := d.serviceContext(); err != nil {
		return 0, err
	}
	cleaned := make([]string, 0, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		cleaned = append(cleaned, ref)
	}
	if len(cleaned) == 0 {
		return 0, errors.New("batch enqueue requires at least one item")
	}
	added := d.batch.Enqueue(cleaned...)
	return len(added), nil
}

// RunBatch starts a sequential edit pass over the queue.
func (d *Daemon) RunBatch(prompt string) error {
	ctx, err := d.serviceContext()
	if err != nil {
		return err
	}
	if strings.TrimSpace(prompt) == "" {
		return errors.New("batch run requires a prompt")
	}
	return d.batch.Run(ctx, prompt)
}

// StopBatch interrupts the batch run after the in-flight item settles.
func (d *Daemon) StopBatch() {
	d.batch.Stop()
}

// RunChain starts an iterative chain from the anchor image.
func (d *Daemon) RunChain(anchor, prompt string, steps int) error {
	ctx, err := d.serviceContext()
	if err != nil {
		return err
	}
	if strings.TrimSpace(prompt) == "" {
		return errors.New("chain run requires a prompt")
	}
	return d.chain.Run(ctx, anchor, prompt, steps)
}

// StopChain aborts remaining chain steps and stitches completed segments.
func (d *Daemon) StopChain() (string, error) {
	ctx, err := d.serviceContext()
	if err != nil {
		return "", err
	}
	return d.chain.StopAndStitch(ctx)
}

// ResetChain discards accumulated chain state.
func (d *Daemon) ResetChain() error {
	if _, err := d.serviceContext(); err != nil {
		return err
	}
	d.chain.Reset()
	return nil
}

// GalleryList returns persisted artifacts, newest first.
func (d *Daemon) GalleryList(ctx context.Context, kind string, limit int) ([]gallery.Entry, error) {
	if d.gallery == nil {
		return nil, errors.New("gallery store unavailable")
	}
	return d.gallery.List(ctx, kind, limit)
}

// GalleryDelete removes one persisted artifact record.
func (d *Daemon) GalleryDelete(ctx context.Context, id int64) error {
	if d.gallery == nil {
		return errors.New("gallery store unavailable")
	}
	return d.gallery.Delete(ctx, id)
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status() api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		GalleryDB:    d.cfg.GalleryDBPath(),
		LockFilePath: d.lockPath,
		Pipeline:     api.FromPipelineSnapshot(d.pipeline.Snapshot()),
		Chain:        api.FromChainSnapshot(d.chain.Snapshot()),
	}
	items := d.batch.Items()
	status.Batch = api.BatchStatus{
		Running:   d.batch.Running(),
		Items:     api.FromUnits(items.Snapshot()),
		Aggregate: api.FromAggregate(items.Aggregate()),
	}
	if d.providers != nil {
		status.Providers = api.ProviderIDs(d.providers.IDs())
	}
	return status
}
