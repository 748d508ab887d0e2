// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"gridflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.GalleryDir = filepath.Join(base, "gallery")
	cfg.Gemini.APIKey = "test"
	cfg.Kling.AccessKey = "test-access"
	cfg.Kling.SecretKey = "test-secret"

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithProviders overrides the active backend selection.
func WithProviders(upscale, transition, imageVideo string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Providers.Upscale = upscale
		cfg.Providers.Transition = transition
		cfg.Providers.ImageVideo = imageVideo
	}
}
