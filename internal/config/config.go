package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir    string `toml:"work_dir"`
	LogDir     string `toml:"log_dir"`
	GalleryDir string `toml:"gallery_dir"`
}

// Providers selects the active backend per capability.
type Providers struct {
	Upscale    string `toml:"upscale"`
	Transition string `toml:"transition"`
	ImageVideo string `toml:"image_video"`
}

// Gemini contains configuration for the cloud image/video model.
type Gemini struct {
	APIKey       string `toml:"api_key"`
	BaseURL      string `toml:"base_url"`
	ImageModel   string `toml:"image_model"`
	VideoModel   string `toml:"video_model"`
	PollInterval int    `toml:"poll_interval"`
}

// Kling contains configuration for the third-party video API.
type Kling struct {
	AccessKey    string `toml:"access_key"`
	SecretKey    string `toml:"secret_key"`
	BaseURL      string `toml:"base_url"`
	Model        string `toml:"model"`
	Mode         string `toml:"mode"`
	Duration     string `toml:"duration"`
	PollInterval int    `toml:"poll_interval"`
	PollTimeout  int    `toml:"poll_timeout"`
}

// SDWebUI contains configuration for the local diffusion server.
type SDWebUI struct {
	BaseURL       string `toml:"base_url"`
	Upscaler      string `toml:"upscaler"`
	UpscaleMethod string `toml:"upscale_method"`
	Timeout       int    `toml:"timeout"`
}

// Comfy contains configuration for the local node-graph engine.
type Comfy struct {
	BaseURL     string `toml:"base_url"`
	OutputDir   string `toml:"output_dir"`
	WaitTimeout int    `toml:"wait_timeout"`
}

// Stitch contains configuration for the external muxing collaborator.
type Stitch struct {
	BaseURL string `toml:"base_url"`
	Timeout int    `toml:"timeout"`
}

// Workflow contains timing and shape settings for the schedulers.
type Workflow struct {
	BatchYieldMillis   int    `toml:"batch_yield_millis"`
	ChainMaxIterations int    `toml:"chain_max_iterations"`
	UpscaleFactor      int    `toml:"upscale_factor"`
	TransitionAspect   string `toml:"transition_aspect"`
	ChainAspect        string `toml:"chain_aspect"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for gridflow.
//
// Configuration sections by subsystem:
//   - Paths: working, log, and gallery directories
//   - Providers: active backend per capability
//   - Gemini/Kling/SDWebUI/Comfy: backend adapters
//   - Stitch: external muxing collaborator
//   - Workflow: scheduler timing and limits
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Providers Providers `toml:"providers"`
	Gemini    Gemini    `toml:"gemini"`
	Kling     Kling     `toml:"kling"`
	SDWebUI   SDWebUI   `toml:"sdwebui"`
	Comfy     Comfy     `toml:"comfy"`
	Stitch    Stitch    `toml:"stitch"`
	Workflow  Workflow  `toml:"workflow"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/gridflow/config.toml")
}

// SampleConfig returns the embedded sample configuration document.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("gridflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.LogDir, c.Paths.GalleryDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SocketPath returns the daemon control socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, "gridflowd.sock")
}

// LockPath returns the daemon single-instance lock location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "gridflowd.lock")
}

// LogFilePath returns the daemon log file location.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "gridflow.log")
}

// GalleryDBPath returns the artifact database location.
func (c *Config) GalleryDBPath() string {
	return filepath.Join(c.Paths.GalleryDir, "gallery.db")
}

// ExpandPath resolves ~ and returns an absolute, cleaned path.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the embedded sample configuration to target.
func CreateSample(target string) error {
	return os.WriteFile(target, []byte(sampleConfig), 0o644)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
