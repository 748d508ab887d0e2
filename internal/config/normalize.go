package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProviders()
	c.normalizeGemini()
	c.normalizeKling()
	c.normalizeSDWebUI()
	if err := c.normalizeComfy(); err != nil {
		return err
	}
	c.normalizeStitch()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.GalleryDir, err = expandPath(c.Paths.GalleryDir); err != nil {
		return fmt.Errorf("paths.gallery_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeProviders() {
	c.Providers.Upscale = normalizeID(c.Providers.Upscale, defaultUpscaleProvider)
	c.Providers.Transition = normalizeID(c.Providers.Transition, defaultTransitionProvider)
	c.Providers.ImageVideo = normalizeID(c.Providers.ImageVideo, defaultImageVideoProvider)
}

func (c *Config) normalizeGemini() {
	if c.Gemini.APIKey == "" {
		if value, ok := os.LookupEnv("GEMINI_API_KEY"); ok {
			c.Gemini.APIKey = value
		}
	}
	c.Gemini.BaseURL = normalizeBaseURL(c.Gemini.BaseURL, defaultGeminiBaseURL)
	if strings.TrimSpace(c.Gemini.ImageModel) == "" {
		c.Gemini.ImageModel = defaultGeminiImageModel
	}
	if strings.TrimSpace(c.Gemini.VideoModel) == "" {
		c.Gemini.VideoModel = defaultGeminiVideoModel
	}
	if c.Gemini.PollInterval <= 0 {
		c.Gemini.PollInterval = defaultGeminiPollInterval
	}
}

func (c *Config) normalizeKling() {
	if c.Kling.AccessKey == "" {
		if value, ok := os.LookupEnv("KLING_ACCESS_KEY"); ok {
			c.Kling.AccessKey = value
		}
	}
	if c.Kling.SecretKey == "" {
		if value, ok := os.LookupEnv("KLING_SECRET_KEY"); ok {
			c.Kling.SecretKey = value
		}
	}
	c.Kling.BaseURL = normalizeBaseURL(c.Kling.BaseURL, defaultKlingBaseURL)
	if strings.TrimSpace(c.Kling.Model) == "" {
		c.Kling.Model = defaultKlingModel
	}
	if strings.TrimSpace(c.Kling.Mode) == "" {
		c.Kling.Mode = defaultKlingMode
	}
	if strings.TrimSpace(c.Kling.Duration) == "" {
		c.Kling.Duration = defaultKlingDuration
	}
	if c.Kling.PollInterval <= 0 {
		c.Kling.PollInterval = defaultKlingPollInterval
	}
	if c.Kling.PollTimeout <= 0 {
		c.Kling.PollTimeout = defaultKlingPollTimeout
	}
}

func (c *Config) normalizeSDWebUI() {
	c.SDWebUI.BaseURL = normalizeBaseURL(c.SDWebUI.BaseURL, defaultSDWebUIBaseURL)
	if strings.TrimSpace(c.SDWebUI.Upscaler) == "" {
		c.SDWebUI.Upscaler = defaultSDWebUIUpscaler
	}
	if strings.TrimSpace(c.SDWebUI.UpscaleMethod) == "" {
		c.SDWebUI.UpscaleMethod = defaultSDWebUIMethod
	}
	if c.SDWebUI.Timeout <= 0 {
		c.SDWebUI.Timeout = defaultSDWebUITimeout
	}
}

func (c *Config) normalizeComfy() error {
	c.Comfy.BaseURL = normalizeBaseURL(c.Comfy.BaseURL, defaultComfyBaseURL)
	if c.Comfy.WaitTimeout <= 0 {
		c.Comfy.WaitTimeout = defaultComfyWaitTimeout
	}
	if strings.TrimSpace(c.Comfy.OutputDir) != "" {
		expanded, err := expandPath(c.Comfy.OutputDir)
		if err != nil {
			return fmt.Errorf("comfy.output_dir: %w", err)
		}
		c.Comfy.OutputDir = expanded
	}
	return nil
}

func (c *Config) normalizeStitch() {
	c.Stitch.BaseURL = normalizeBaseURL(c.Stitch.BaseURL, defaultStitchBaseURL)
	if c.Stitch.Timeout <= 0 {
		c.Stitch.Timeout = defaultStitchTimeout
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.BatchYieldMillis <= 0 {
		c.Workflow.BatchYieldMillis = defaultBatchYieldMillis
	}
	if c.Workflow.ChainMaxIterations <= 0 {
		c.Workflow.ChainMaxIterations = defaultChainMaxIterations
	}
	if c.Workflow.UpscaleFactor <= 0 {
		c.Workflow.UpscaleFactor = defaultUpscaleFactor
	}
	c.Workflow.TransitionAspect = strings.TrimSpace(c.Workflow.TransitionAspect)
	if c.Workflow.TransitionAspect == "" {
		c.Workflow.TransitionAspect = defaultTransitionAspect
	}
	c.Workflow.ChainAspect = strings.TrimSpace(c.Workflow.ChainAspect)
	if c.Workflow.ChainAspect == "" {
		c.Workflow.ChainAspect = defaultChainAspect
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func normalizeID(value, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	return value
}

func normalizeBaseURL(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return strings.TrimRight(value, "/")
}
