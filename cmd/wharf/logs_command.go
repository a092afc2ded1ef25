package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"wharf/internal/ipc"
	"wharf/internal/logging"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var taskID int64
	var component string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				runCtx := cmd.Context()
				stdout := cmd.OutOrStdout()
				encoder := json.NewEncoder(stdout)

				req := ipc.LogTailRequest{
					Tail:      true,
					Limit:     lines,
					Component: component,
					TaskID:    taskID,
				}
				printed := false
				for {
					resp, err := client.LogTail(req)
					if err != nil {
						return fmt.Errorf("tail logs: %w", err)
					}
					for _, evt := range resp.Events {
						if jsonOutput {
							if err := encoder.Encode(evt); err != nil {
								return err
							}
						} else {
							fmt.Fprintln(stdout, formatLogEvent(evt))
						}
						printed = true
					}
					if !follow {
						if !printed && !jsonOutput {
							fmt.Fprintln(stdout, "No log entries available")
						}
						return nil
					}
					req = ipc.LogTailRequest{
						Since:      resp.Next,
						Limit:      200,
						Follow:     true,
						WaitMillis: 1000,
						Component:  component,
						TaskID:     taskID,
					}
					select {
					case <-runCtx.Done():
						return nil
					default:
					}
				}
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "tail", "n", 50, "Number of recent entries to show")
	cmd.Flags().Int64Var(&taskID, "task", 0, "Only show entries for one task")
	cmd.Flags().StringVar(&component, "component", "", "Only show entries from one component")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit entries as JSON lines")
	return cmd
}

func formatLogEvent(evt logging.LogEvent) string {
	ts := evt.Timestamp.Format("2006-01-02 15:04:05")
	level := strings.ToUpper(strings.TrimSpace(evt.Level))
	if level == "" {
		level = "INFO"
	}
	parts := []string{ts, level}
	if component := strings.TrimSpace(evt.Component); component != "" {
		parts = append(parts, fmt.Sprintf("[%s]", component))
	}
	line := strings.Join(parts, " ")
	if subject := composeSubject(evt.TaskID, evt.Stage); subject != "" {
		line += " " + subject
	}
	if message := strings.TrimSpace(evt.Message); message != "" {
		line += " - " + message
	}
	if len(evt.Fields) == 0 {
		return line
	}

	keys := make([]string, 0, len(evt.Fields))
	for key := range evt.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	builder := strings.Builder{}
	builder.WriteString(line)
	for _, key := range keys {
		value := strings.TrimSpace(evt.Fields[key])
		if value == "" {
			continue
		}
		builder.WriteString("\n    - ")
		builder.WriteString(key)
		builder.WriteString(": ")
		builder.WriteString(value)
	}
	return builder.String()
}

func composeSubject(taskID int64, stage string) string {
	stage = strings.TrimSpace(stage)
	switch {
	case taskID > 0 && stage != "":
		return fmt.Sprintf("Task #%d (%s)", taskID, stage)
	case taskID > 0:
		return fmt.Sprintf("Task #%d", taskID)
	default:
		return stage
	}
}
