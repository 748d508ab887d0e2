package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"gridflow/internal/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Inspect and manage configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a sample configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			written, err := initConfigFile(target)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", written)
			return nil
		},
	}
	cmd.AddCommand(initCmd)

	showCmd := &cobra.Command{
		Use:   "show [path]",
		Short: "Print the resolved configuration with secrets redacted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			cfg, resolvedPath, exists, err := config.Load(path)
			if err != nil {
				return err
			}
			if exists {
				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", resolvedPath)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "# built-in defaults (no file at %s)\n", resolvedPath)
			}
			redacted := *cfg
			redacted.Gemini.APIKey = redactSecret(redacted.Gemini.APIKey)
			redacted.Kling.AccessKey = redactSecret(redacted.Kling.AccessKey)
			redacted.Kling.SecretKey = redactSecret(redacted.Kling.SecretKey)
			encoded, err := toml.Marshal(redacted)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(encoded)
			return err
		},
	}
	cmd.AddCommand(showCmd)

	validateCmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Check that the configuration loads and passes validation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			_, resolvedPath, exists, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("configuration invalid: %w", err)
			}
			if !exists {
				fmt.Fprintf(cmd.OutOrStdout(), "No file at %s; built-in defaults are valid\n", resolvedPath)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration at %s is valid\n", resolvedPath)
			return nil
		},
	}
	cmd.AddCommand(validateCmd)

	return cmd
}

func redactSecret(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return "<redacted>"
}

func initConfigFile(target string) (string, error) {
	if strings.TrimSpace(target) == "" {
		defaultPath, err := config.DefaultConfigPath()
		if err != nil {
			return "", err
		}
		target = defaultPath
	}
	expanded, err := config.ExpandPath(target)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(expanded); err == nil {
		return "", fmt.Errorf("refusing to overwrite existing file %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	if err := config.CreateSample(expanded); err != nil {
		return "", fmt.Errorf("write sample config: %w", err)
	}
	return expanded, nil
}
