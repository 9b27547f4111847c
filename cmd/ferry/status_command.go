package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"ferry/internal/control"
	"ferry/internal/ipc"
)

var archivePhaseOrder = []string{
	"discovered", "downloading", "downloaded", "extracting", "extracted",
	"processed", "cleaning", "cleaned", "corrupted", "failed",
}

var itemPhaseOrder = []string{
	"extracted", "merging", "merged", "resolving", "resolved",
	"uploading", "uploaded", "failed",
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access control.Access) error {
				status, err := access.Status(cmd.Context())
				if err != nil {
					return err
				}
				renderStatus(cmd, status)
				return nil
			})
		},
	}
}

func renderStatus(cmd *cobra.Command, status *ipc.StatusResponse) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	fmt.Fprintln(out, renderSectionHeader("Daemon", colorize))
	daemonKind := severityWarn
	daemonMsg := "not running; showing state database directly"
	if status.Running {
		daemonKind = severityOK
		daemonMsg = fmt.Sprintf("pid %d", status.PID)
	}
	fmt.Fprintln(out, renderStatusLine("daemon", daemonKind, daemonMsg, colorize))
	pauseKind := severityOK
	pauseMsg := "cleanup active"
	if status.Paused {
		pauseKind = severityWarn
		pauseMsg = "cleanup paused"
		if status.PauseReason != "" {
			pauseMsg += ": " + status.PauseReason
		}
	}
	fmt.Fprintln(out, renderStatusLine("cleanup", pauseKind, pauseMsg, colorize))
	if status.DiskCeiling > 0 || status.DiskUsed > 0 {
		fmt.Fprintln(out, renderStatusLine("disk", severityInfo, formatDisk(status), colorize))
	}

	if rows := phaseRows(status.ArchivePhases, archivePhaseOrder); len(rows) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderSectionHeader("Archives", colorize))
		fmt.Fprintln(out, renderTable([]column{{title: "Phase"}, {title: "Count", numeric: true}}, rows))
	}

	if rows := phaseRows(status.ItemPhases, itemPhaseOrder); len(rows) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderSectionHeader("Items", colorize))
		fmt.Fprintln(out, renderTable([]column{{title: "Phase"}, {title: "Count", numeric: true}}, rows))
	}

	if len(status.Stages) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderSectionHeader("Stages", colorize))
		for _, stage := range status.Stages {
			kind := severityOK
			if !stage.Ready {
				kind = severityError
			}
			fmt.Fprintln(out, renderStatusLine(stage.Name, kind, stage.Detail, colorize))
		}
	}
}

func formatDisk(status *ipc.StatusResponse) string {
	used := humanize.IBytes(uint64(status.DiskUsed))
	if status.DiskCeiling <= 0 {
		return fmt.Sprintf("%s staged, no ceiling", used)
	}
	return fmt.Sprintf("%s staged + %s reserved of %s",
		used,
		humanize.IBytes(uint64(status.DiskReserved)),
		humanize.IBytes(uint64(status.DiskCeiling)))
}

func phaseRows(stats map[string]int, order []string) [][]string {
	var rows [][]string
	for _, phase := range order {
		count, ok := stats[phase]
		if !ok || count == 0 {
			continue
		}
		rows = append(rows, []string{phase, strconv.Itoa(count)})
	}
	return rows
}
