package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"gridflow/internal/ipc"
)

func newGalleryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "Browse and manage persisted artifacts",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List persisted artifacts, newest first",
		Args:  cobra.NoArgs,
	}
	var kind string
	var limit int
	var jsonOutput bool
	listCmd.Flags().StringVarP(&kind, "kind", "k", "", "Filter by artifact kind")
	listCmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum entries to return")
	listCmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit entries as JSON")
	listCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return ctx.withClient(func(client *ipc.Client) error {
			resp, err := client.GalleryList(kind, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), resp.Entries)
			}
			if len(resp.Entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Gallery is empty")
				return nil
			}
			rows := make([]table.Row, 0, len(resp.Entries))
			for _, entry := range resp.Entries {
				rows = append(rows, table.Row{
					entry.ID,
					displayCaser.String(entry.Kind),
					entry.Ref,
					entry.CreatedAt,
				})
			}
			renderTable(cmd.OutOrStdout(), "Gallery", table.Row{"ID", "Kind", "Ref", "Created"}, rows)
			return nil
		})
	}
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Remove one artifact record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUnitID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.GalleryDelete(id)
				if err != nil {
					return err
				}
				if resp.Deleted {
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted entry %d\n", id)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "No entry with id %d\n", id)
				}
				return nil
			})
		},
	})

	return cmd
}
