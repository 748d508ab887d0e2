package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gridflow/internal/ipc"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Manage the sequential edit queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <ref>...",
		Short: "Append items to the edit queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.BatchEnqueue(args)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %d items\n", resp.Added)
				return nil
			})
		},
	})

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start a sequential edit pass over pending items",
		Args:  cobra.NoArgs,
	}
	var prompt string
	runCmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Edit instruction applied to each item")
	_ = runCmd.MarkFlagRequired("prompt")
	runCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return ctx.withClient(func(client *ipc.Client) error {
			if _, err := client.BatchRun(prompt); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Batch run started")
			return nil
		})
	}
	cmd.AddCommand(runCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Interrupt the batch run between items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.BatchStop(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Batch run stopping")
				return nil
			})
		},
	})

	return cmd
}
