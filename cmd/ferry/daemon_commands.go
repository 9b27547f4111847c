package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ferry/internal/control"
	"ferry/internal/ipc"
)

func newPauseCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause cleanup so local copies survive for inspection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access control.Access) error {
				if err := access.Pause(cmd.Context(), reason); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cleanup paused")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded with the pause")
	return cmd
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume cleanup after a pause",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access control.Access) error {
				if err := access.Resume(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cleanup resumed")
				return nil
			})
		},
	}
}

func newResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Roll interrupted work back to its committed phases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access control.Access) error {
				updated, err := access.ResetStuck(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rolled back %d unit(s)\n", updated)
				return nil
			})
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Stop()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Daemon stopped: %s\n", yesNo(resp.Stopped))
				return nil
			})
		},
	}
}
