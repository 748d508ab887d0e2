package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"gridflow/internal/daemonctl"
)

const (
	daemonStartTimeout = 15 * time.Second
	daemonStopGrace    = 10 * time.Second
)

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the gridflow daemon if it is not already running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			executable, err := resolveDaemonExecutable()
			if err != nil {
				return err
			}
			opts := daemonctl.LaunchOptions{ConfigPath: ctx.configPath()}
			launched, err := daemonctl.EnsureStarted(ctx.socketPath(), executable, opts, daemonStartTimeout)
			if err != nil {
				return err
			}
			if launched {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon started")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon already running")
			}
			return nil
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the gridflow daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), daemonStopGrace)
			if err != nil {
				if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
					fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
					return nil
				}
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(cmd.OutOrStdout(), "Daemon did not exit cleanly; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped")
			return nil
		},
	}
}

// resolveDaemonExecutable locates gridflowd next to the current binary,
// falling back to PATH lookup.
func resolveDaemonExecutable() (string, error) {
	self, err := os.Executable()
	if err == nil {
		sibling := filepath.Join(filepath.Dir(self), "gridflowd")
		if info, statErr := os.Stat(sibling); statErr == nil && !info.IsDir() {
			return sibling, nil
		}
	}
	path, err := exec.LookPath("gridflowd")
	if err != nil {
		return "", fmt.Errorf("locate gridflowd executable: %w", err)
	}
	return path, nil
}
