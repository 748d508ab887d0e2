// Package daemonrun assembles and runs the daemon process: logger, gallery
// store, provider registry, runners, daemon, and IPC server.
package daemonrun

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"log/slog"

	"gridflow/internal/batch"
	"gridflow/internal/chain"
	"gridflow/internal/config"
	"gridflow/internal/daemon"
	"gridflow/internal/gallery"
	"gridflow/internal/ipc"
	"gridflow/internal/logging"
	"gridflow/internal/pipeline"
	"gridflow/internal/render"
	"gridflow/internal/render/comfy"
	"gridflow/internal/render/gemini"
	"gridflow/internal/render/kling"
	"gridflow/internal/render/sdwebui"
	"gridflow/internal/stitch"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the gridflow daemon runtime loop and blocks until a signal
// arrives or the context is cancelled.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:    level,
		Format:   cfg.Logging.Format,
		FilePath: cfg.LogFilePath(),
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "gridflowd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := gallery.Open(cfg)
	if err != nil {
		logger.Error("open gallery store", logging.Error(err))
		return err
	}
	defer store.Close()
	saver := gallery.NewSaver(store, logger)

	registry := buildRegistry(cfg, logger)

	p := pipeline.New(pipeline.Options{
		Providers:          registry,
		UpscaleProvider:    render.ID(cfg.Providers.Upscale),
		TransitionProvider: render.ID(cfg.Providers.Transition),
		UpscaleFactor:      float64(cfg.Workflow.UpscaleFactor),
		Aspect:             render.AspectRatio(cfg.Workflow.TransitionAspect),
		Logger:             logger,
		Sink:               saver,
	})
	batchRunner := batch.NewRunner(batch.Options{
		Providers:  registry,
		ProviderID: render.ID(cfg.Providers.Upscale),
		Yield:      time.Duration(cfg.Workflow.BatchYieldMillis) * time.Millisecond,
		Logger:     logger,
		Sink:       saver,
	})
	chainRunner := chain.NewRunner(chain.Options{
		Providers:  registry,
		ProviderID: render.ID(cfg.Providers.ImageVideo),
		Stitcher: stitch.NewClient(cfg.Stitch.BaseURL,
			stitch.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Stitch.Timeout) * time.Second})),
		Aspect:     render.AspectRatio(cfg.Workflow.ChainAspect),
		MaxSteps:   cfg.Workflow.ChainMaxIterations,
		Logger:     logger,
		Sink:       saver,
	})

	d, err := daemon.New(cfg, logger, daemon.Components{
		Pipeline:  p,
		Batch:     batchRunner,
		Chain:     chainRunner,
		Providers: registry,
		Gallery:   store,
		Saver:     saver,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed", logging.Error(err))
		return err
	}

	<-signalCtx.Done()
	logger.Info("gridflow daemon shutting down")
	d.Stop()
	return nil
}

// buildRegistry constructs every backend adapter the configuration enables.
// Adapters with missing credentials are still registered; their calls fail
// with an auth error when actually used.
func buildRegistry(cfg *config.Config, logger *slog.Logger) *render.Registry {
	registry := render.NewRegistry()

	registry.Register(render.ProviderGemini, gemini.NewClient(cfg.Gemini.APIKey,
		gemini.WithBaseURL(cfg.Gemini.BaseURL),
		gemini.WithModels(cfg.Gemini.ImageModel, cfg.Gemini.VideoModel),
		gemini.WithPollInterval(time.Duration(cfg.Gemini.PollInterval)*time.Second),
		gemini.WithDownloadDir(cfg.Paths.WorkDir),
	))

	registry.Register(render.ProviderKling, kling.NewClient(cfg.Kling.AccessKey, cfg.Kling.SecretKey,
		kling.WithBaseURL(cfg.Kling.BaseURL),
		kling.WithGeneration(cfg.Kling.Model, cfg.Kling.Mode, cfg.Kling.Duration),
		kling.WithPolling(
			time.Duration(cfg.Kling.PollInterval)*time.Second,
			time.Duration(cfg.Kling.PollTimeout)*time.Second,
		),
		kling.WithDownloadDir(cfg.Paths.WorkDir),
		kling.WithLogger(logger),
	))

	registry.Register(render.ProviderSDWebUI, sdwebui.NewClient(cfg.SDWebUI.BaseURL,
		sdwebui.WithUpscaler(cfg.SDWebUI.Upscaler),
		sdwebui.WithDefaultMethod(cfg.SDWebUI.UpscaleMethod),
		sdwebui.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.SDWebUI.Timeout) * time.Second}),
	))

	comfyClient := comfy.NewClient(cfg.Comfy.BaseURL,
		comfy.WithWaitTimeout(time.Duration(cfg.Comfy.WaitTimeout)*time.Second),
	)
	outputDir := cfg.Comfy.OutputDir
	if outputDir == "" {
		outputDir = cfg.Paths.WorkDir
	}
	registry.Register(render.ProviderComfy, comfy.NewProvider(comfyClient, outputDir))

	return registry
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
