package config

import (
	"errors"
	"fmt"
	"strings"
)

var knownProviders = map[string]struct{}{
	"gemini":  {},
	"kling":   {},
	"sdwebui": {},
	"comfy":   {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validateKling(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateProviders() error {
	for field, value := range map[string]string{
		"providers.upscale":     c.Providers.Upscale,
		"providers.transition":  c.Providers.Transition,
		"providers.image_video": c.Providers.ImageVideo,
	} {
		if _, ok := knownProviders[value]; !ok {
			return fmt.Errorf("%s: unknown provider %q", field, value)
		}
	}
	return nil
}

func (c *Config) validateKling() error {
	if c.Providers.Transition != "kling" {
		return nil
	}
	if c.Kling.AccessKey == "" || c.Kling.SecretKey == "" {
		return errors.New("kling.access_key and kling.secret_key are required when providers.transition = \"kling\". Set KLING_ACCESS_KEY/KLING_SECRET_KEY env vars or edit the config file")
	}
	return nil
}

var knownAspects = map[string]struct{}{
	"1:1":  {},
	"3:4":  {},
	"4:3":  {},
	"9:16": {},
	"16:9": {},
}

func (c *Config) validateWorkflow() error {
	for field, value := range map[string]string{
		"workflow.transition_aspect": c.Workflow.TransitionAspect,
		"workflow.chain_aspect":      c.Workflow.ChainAspect,
	} {
		if _, ok := knownAspects[value]; !ok {
			return fmt.Errorf("%s: unsupported aspect ratio %q", field, value)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json", "text":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
