package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"harvester/internal/api"
	"harvester/internal/ipc"
)

func newDedupCommand(ctx *commandContext) *cobra.Command {
	dedupCmd := &cobra.Command{
		Use:   "dedup",
		Short: "Inspect and edit the delivered-identifier index",
	}

	var jsonOutput bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List delivered identifiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.DedupList()
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.DedupListResponse{Entries: resp.Entries})
				}
				if len(resp.Entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Dedup index is empty")
					return nil
				}
				rows := make([][]string, 0, len(resp.Entries))
				for _, entry := range resp.Entries {
					rows = append(rows, []string{entry.ID, entry.CompletedAt})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Completed"}, rows, nil))
				return nil
			})
		},
	}
	listCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print entries as JSON")

	addCmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Mark an identifier as delivered so discovery skips it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.DedupRecord(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s as delivered\n", args[0])
				return nil
			})
		},
	}

	dedupCmd.AddCommand(listCmd, addCmd)
	return dedupCmd
}
