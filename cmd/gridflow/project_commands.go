package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"gridflow/internal/ipc"
)

func newProjectCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage the frame pipeline project",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "new <frame>...",
		Short: "Replace the current project and start upscaling",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ProjectNew(args)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Accepted %d frames; upscaling started\n", resp.FrameCount)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "skip-upscale",
		Short: "Pass remaining frames through without upscaling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.SkipUpscale(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Remaining frames passed through")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "videos",
		Short: "Start transition video generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.StartVideos(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Transition generation started")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "retry-phase",
		Short: "Re-run the active phase after a failure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.PhaseRetry(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Phase retry started")
				return nil
			})
		},
	})

	return cmd
}

func newTransitionCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transition",
		Short: "Manage individual transition videos",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel <id>",
		Short: "Abort one in-flight transition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUnitID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TransitionCancel(id)
				if err != nil {
					return err
				}
				if resp.Cancelled {
					fmt.Fprintf(cmd.OutOrStdout(), "Transition %d cancelled\n", id)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Transition %d was not in flight\n", id)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "retry <id>",
		Short: "Restart one settled transition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUnitID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.TransitionRetry(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Transition %d restarted\n", id)
				return nil
			})
		},
	})

	return cmd
}

func parseUnitID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: expected a positive integer", arg)
	}
	return id, nil
}
