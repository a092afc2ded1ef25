package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wharf/internal/api"
	"wharf/internal/daemonctl"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			resp, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, resp.Status)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			status := resp.Status

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range daemonStatusLines(status, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Paths", colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, renderStatusLine("Download dir", statusInfo, status.DownloadDir, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Socket", statusInfo, status.SocketPath, colorize))
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Queue", colorize) {
				fmt.Fprintln(stdout, line)
			}
			table := renderTable([]string{"Status", "Count"}, buildStatsRows(status.Stats), []columnAlignment{alignLeft, alignRight})
			fmt.Fprintln(stdout, table)
			if status.Stats.TotalSpeedBPS > 0 {
				fmt.Fprintf(stdout, "Total speed: %s\n", formatSpeed(status.Stats.TotalSpeedBPS))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit status as JSON")
	return cmd
}

func daemonStatusLines(status api.DaemonStatus, colorize bool) []string {
	lines := make([]string, 0, 5)
	if status.Running {
		message := "running"
		if status.PID > 0 {
			message = fmt.Sprintf("running (pid %d)", status.PID)
		}
		lines = append(lines, renderStatusLine("Daemon", statusOK, message, colorize))
		if status.Version != "" {
			lines = append(lines, renderStatusLine("Version", statusInfo, status.Version, colorize))
		}
		if status.UptimeSeconds > 0 {
			lines = append(lines, renderStatusLine("Uptime", statusInfo, formatETA(status.UptimeSeconds), colorize))
		}
		lines = append(lines, renderStatusLine("Engine", statusOK, fmt.Sprintf("%d active downloads", status.EngineActive), colorize))
		hosterKind := statusOK
		hosterMessage := "ready"
		if !status.HosterReady {
			hosterKind = statusWarn
			hosterMessage = "not ready"
		}
		lines = append(lines, renderStatusLine("Host session", hosterKind, hosterMessage, colorize))
		return lines
	}
	lines = append(lines, renderStatusLine("Daemon", statusWarn, "stopped", colorize))
	return lines
}
