package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"ferry/internal/control"
)

func newItemsCommand(ctx *commandContext) *cobra.Command {
	itemsCmd := &cobra.Command{
		Use:   "items",
		Short: "Inspect and manage media items",
	}
	itemsCmd.AddCommand(newItemsFailedCommand(ctx))
	itemsCmd.AddCommand(newItemsRetryCommand(ctx))
	return itemsCmd
}

func newItemsFailedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "failed",
		Short: "List permanently failed items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access control.Access) error {
				items, err := access.FailedItems(cmd.Context())
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No failed items")
					return nil
				}

				rows := make([][]string, 0, len(items))
				for _, item := range items {
					errText := item.ErrorKind
					if errText != "" && item.LastError != "" {
						errText = fmt.Sprintf("%s: %s", item.ErrorKind, item.LastError)
					}
					rows = append(rows, []string{
						strconv.FormatInt(item.ID, 10),
						item.ArchiveID,
						item.SourcePath,
						strconv.Itoa(item.Attempts),
						errText,
					})
				}
				table := renderTable([]column{
					{title: "ID", numeric: true},
					{title: "Archive"},
					{title: "Path"},
					{title: "Attempts", numeric: true},
					{title: "Error"},
				}, rows)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newItemsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id ...]",
		Short: "Re-admit failed items at the phase they failed from",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid item id %q", arg)
				}
				ids = append(ids, id)
			}
			return ctx.withAccess(func(access control.Access) error {
				updated, err := access.Retry(cmd.Context(), ids)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Re-admitted %d item(s)\n", updated)
				return nil
			})
		},
	}
}
