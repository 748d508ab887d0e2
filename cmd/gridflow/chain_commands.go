package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gridflow/internal/ipc"
)

func newChainCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Manage the iterative image-to-video chain",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Generate a sequence of chained video segments",
		Args:  cobra.NoArgs,
	}
	var anchor string
	var prompt string
	var steps int
	runCmd.Flags().StringVar(&anchor, "anchor", "", "Starting image reference (defaults to the last derived frame)")
	runCmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Generation prompt applied to each step")
	runCmd.Flags().IntVar(&steps, "steps", 1, "Number of segments to generate")
	_ = runCmd.MarkFlagRequired("prompt")
	runCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return ctx.withClient(func(client *ipc.Client) error {
			if _, err := client.ChainRun(anchor, prompt, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Chain run started (%d steps)\n", steps)
			return nil
		})
	}
	cmd.AddCommand(runCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Abort remaining steps and stitch completed segments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ChainStop()
				if err != nil {
					return err
				}
				if resp.StitchedRef != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Chain stopped; stitched result: %s\n", resp.StitchedRef)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Chain stopped; nothing to stitch")
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Discard accumulated chain segments and anchors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.ChainReset(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Chain state cleared")
				return nil
			})
		},
	})

	return cmd
}
