package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")

	cfg, resolvedPath, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Error("exists should be false for a missing file")
	}
	if resolvedPath == "" {
		t.Error("resolvedPath should still be reported")
	}
	if cfg.Providers.Upscale != "gemini" {
		t.Errorf("default upscale provider = %q, want gemini", cfg.Providers.Upscale)
	}
	if cfg.Workflow.ChainMaxIterations != 10 {
		t.Errorf("default chain max = %d, want 10", cfg.Workflow.ChainMaxIterations)
	}
}

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gridflow.toml")
	contents := strings.Join([]string{
		"[paths]",
		`work_dir = "` + filepath.Join(dir, "work") + `"`,
		`log_dir = "` + filepath.Join(dir, "logs") + `"`,
		"",
		"[providers]",
		`upscale = "SDWebUI"`,
		"",
		"[workflow]",
		"upscale_factor = 4",
	}, "\n")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("exists should be true")
	}
	if cfg.Providers.Upscale != "sdwebui" {
		t.Errorf("provider id should be lowercased, got %q", cfg.Providers.Upscale)
	}
	if cfg.Workflow.UpscaleFactor != 4 {
		t.Errorf("upscale factor = %d, want 4", cfg.Workflow.UpscaleFactor)
	}
	if cfg.Gemini.BaseURL == "" {
		t.Error("unset sections should keep defaults")
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gridflow.toml")
	contents := "[providers]\ntransition = \"nonesuch\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, _, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "providers.transition") {
		t.Fatalf("expected providers.transition error, got %v", err)
	}
}

func TestKlingCredentialsRequiredWhenSelected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gridflow.toml")
	contents := "[providers]\ntransition = \"kling\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("KLING_ACCESS_KEY", "")
	t.Setenv("KLING_SECRET_KEY", "")

	_, _, _, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "kling.access_key") {
		t.Fatalf("expected kling credential error, got %v", err)
	}
}

func TestEnvFallbackForSecrets(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	path := filepath.Join(t.TempDir(), "missing.toml")

	cfg, _, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Gemini.APIKey != "env-key" {
		t.Errorf("api key = %q, want env-key", cfg.Gemini.APIKey)
	}
}

func TestBaseURLTrailingSlashTrimmed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gridflow.toml")
	contents := "[sdwebui]\nbase_url = \"http://127.0.0.1:7860/\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SDWebUI.BaseURL != "http://127.0.0.1:7860" {
		t.Errorf("base url = %q, trailing slash should be trimmed", cfg.SDWebUI.BaseURL)
	}
}

func TestWorkflowAspectDefaultsAndValidation(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.toml")
	cfg, _, _, err := Load(missing)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Workflow.TransitionAspect != "1:1" || cfg.Workflow.ChainAspect != "16:9" {
		t.Errorf("aspect defaults = %q / %q", cfg.Workflow.TransitionAspect, cfg.Workflow.ChainAspect)
	}

	path := filepath.Join(t.TempDir(), "gridflow.toml")
	contents := "[workflow]\nchain_aspect = \"21:9\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, _, err = Load(path)
	if err == nil || !strings.Contains(err.Error(), "workflow.chain_aspect") {
		t.Fatalf("expected workflow.chain_aspect error, got %v", err)
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := Default()
	cfg.Paths.LogDir = "/var/log/gridflow"
	cfg.Paths.GalleryDir = "/var/lib/gridflow"

	if got := cfg.SocketPath(); got != "/var/log/gridflow/gridflowd.sock" {
		t.Errorf("SocketPath = %q", got)
	}
	if got := cfg.LockPath(); got != "/var/log/gridflow/gridflowd.lock" {
		t.Errorf("LockPath = %q", got)
	}
	if got := cfg.LogFilePath(); got != "/var/log/gridflow/gridflow.log" {
		t.Errorf("LogFilePath = %q", got)
	}
	if got := cfg.GalleryDBPath(); got != "/var/lib/gridflow/gallery.db" {
		t.Errorf("GalleryDBPath = %q", got)
	}
}

func TestSampleConfigParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	if _, _, _, err := Load(path); err != nil {
		t.Fatalf("sample config should load cleanly: %v", err)
	}
}
