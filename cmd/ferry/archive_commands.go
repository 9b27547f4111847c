package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"ferry/internal/control"
)

func newArchivesCommand(ctx *commandContext) *cobra.Command {
	archivesCmd := &cobra.Command{
		Use:   "archives",
		Short: "Inspect and manage tracked archives",
	}
	archivesCmd.AddCommand(newArchivesListCommand(ctx))
	archivesCmd.AddCommand(newArchivesReacquireCommand(ctx))
	return archivesCmd
}

func newArchivesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tracked archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access control.Access) error {
				archives, err := access.Archives(cmd.Context())
				if err != nil {
					return err
				}
				if len(archives) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No archives tracked yet")
					return nil
				}

				rows := make([][]string, 0, len(archives))
				for _, archive := range archives {
					errText := archive.ErrorKind
					if errText != "" && archive.LastError != "" {
						errText = fmt.Sprintf("%s: %s", archive.ErrorKind, archive.LastError)
					}
					rows = append(rows, []string{
						archive.DisplayName,
						archive.Phase,
						humanize.IBytes(uint64(archive.ExpectedBytes)),
						strconv.Itoa(archive.Attempts),
						errText,
					})
				}
				table := renderTable([]column{
					{title: "Archive"},
					{title: "Phase"},
					{title: "Size", numeric: true},
					{title: "Attempts", numeric: true},
					{title: "Error"},
				}, rows)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newArchivesReacquireCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reacquire <archive-id>",
		Short: "Reset a corrupted or failed archive for re-download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access control.Access) error {
				if err := access.Reacquire(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Archive %s queued for re-download\n", args[0])
				return nil
			})
		},
	}
}
