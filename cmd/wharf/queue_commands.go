package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wharf/internal/api"
	"wharf/internal/ipc"
	"wharf/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List queued and active downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withFallback(func(client *ipc.Client, svc *api.Service) error {
				tasks, err := fetchTasks(cmd, client, svc, statuses)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.TaskListResponse{Tasks: tasks})
				}
				if len(tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable(queueTableHeaders, buildQueueRows(tasks), queueTableAligns)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by task status (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit tasks as JSON")
	return cmd
}

// fetchTasks returns the scheduling-ordered queue, or a status-filtered
// listing when filters are present.
func fetchTasks(cmd *cobra.Command, client *ipc.Client, svc *api.Service, statuses []string) ([]api.Task, error) {
	if len(statuses) > 0 {
		if client != nil {
			resp, err := client.Tasks(statuses)
			if err != nil {
				return nil, err
			}
			return resp.Tasks, nil
		}
		filters := make([]queue.Status, 0, len(statuses))
		for _, raw := range statuses {
			status, ok := queue.ParseStatus(raw)
			if !ok {
				return nil, fmt.Errorf("unknown status %q", raw)
			}
			filters = append(filters, status)
		}
		return svc.List(cmd.Context(), filters...)
	}

	if client != nil {
		resp, err := client.Queue()
		if err != nil {
			return nil, err
		}
		return resp.Tasks, nil
	}
	return svc.Queue(cmd.Context())
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var failedOnly bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished downloads, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withFallback(func(client *ipc.Client, svc *api.Service) error {
				fetchLimit := limit
				if failedOnly {
					// Filter first, then cap, so the limit counts failures.
					fetchLimit = 0
				}
				var tasks []api.Task
				if client != nil {
					resp, err := client.History(fetchLimit)
					if err != nil {
						return err
					}
					tasks = resp.Tasks
				} else {
					var err error
					tasks, err = svc.History(cmd.Context(), fetchLimit)
					if err != nil {
						return err
					}
				}
				if failedOnly {
					kept := make([]api.Task, 0, len(tasks))
					for _, task := range tasks {
						if task.Status == string(queue.StatusFailed) {
							kept = append(kept, task)
						}
					}
					tasks = kept
					if limit > 0 && len(tasks) > limit {
						tasks = tasks[:limit]
					}
				}
				if jsonOutput {
					return writeJSON(cmd, api.TaskListResponse{Tasks: tasks})
				}
				if len(tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "History is empty")
					return nil
				}
				table := renderTable(historyTableHeaders, buildHistoryRows(tasks), historyTableAligns)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 25, "Maximum entries to show (0 for all)")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Show only failed downloads")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit tasks as JSON")
	cmd.AddCommand(newHistoryClearCommand(ctx))
	return cmd
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	var completedOnly bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished downloads from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withFallback(func(client *ipc.Client, svc *api.Service) error {
				var affected int64
				if client != nil {
					resp, err := client.ClearHistory(completedOnly)
					if err != nil {
						return err
					}
					affected = resp.Affected
				} else {
					var err error
					if completedOnly {
						affected, err = svc.ClearCompleted(cmd.Context())
					} else {
						affected, err = svc.ClearHistory(cmd.Context())
					}
					if err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d finished tasks\n", affected)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&completedOnly, "completed", false, "Keep failed tasks, clear completed only")
	return cmd
}

func newDescribeCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "describe <id>",
		Short: "Show every recorded detail for one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseTaskIDs(args)
			if err != nil {
				return err
			}
			id := ids[0]

			return ctx.withFallback(func(client *ipc.Client, svc *api.Service) error {
				var task *api.Task
				if client != nil {
					resp, err := client.Describe(id)
					if err != nil {
						return err
					}
					if resp != nil && resp.Task.ID != 0 {
						task = &resp.Task
					}
				} else {
					var err error
					task, err = svc.Describe(cmd.Context(), id)
					if err != nil {
						return err
					}
				}
				if task == nil {
					return fmt.Errorf("task %d not found", id)
				}
				if jsonOutput {
					return writeJSON(cmd, api.TaskResponse{Task: *task})
				}
				printTaskDetail(cmd, *task)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the task as JSON")
	return cmd
}

func printTaskDetail(cmd *cobra.Command, task api.Task) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	for _, line := range renderSectionHeader(fmt.Sprintf("Task #%d", task.ID), colorize) {
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintln(stdout, renderStatusLine("Filename", statusInfo, task.Filename, colorize))
	fmt.Fprintln(stdout, renderStatusLine("Reference", statusInfo, task.Reference, colorize))
	if task.Category != "" {
		fmt.Fprintln(stdout, renderStatusLine("Category", statusInfo, task.Category, colorize))
	}
	fmt.Fprintln(stdout, renderStatusLine("Status", taskStatusKind(task.Status), formatStatusLabel(task.Status), colorize))
	fmt.Fprintln(stdout, renderStatusLine("Progress", statusInfo, formatProgress(task.Progress), colorize))
	fmt.Fprintln(stdout, renderStatusLine("Size", statusInfo, formatSize(task.SizeBytes), colorize))
	if task.DownloadedBytes > 0 {
		fmt.Fprintln(stdout, renderStatusLine("Downloaded", statusInfo, formatSize(task.DownloadedBytes), colorize))
	}
	if task.SpeedBPS > 0 {
		fmt.Fprintln(stdout, renderStatusLine("Speed", statusInfo, formatSpeed(task.SpeedBPS), colorize))
	}
	if task.ETASeconds > 0 {
		fmt.Fprintln(stdout, renderStatusLine("ETA", statusInfo, formatETA(task.ETASeconds), colorize))
	}
	fmt.Fprintln(stdout, renderStatusLine("Priority", statusInfo, fmt.Sprintf("%d", task.Priority), colorize))
	if task.Segments > 0 {
		fmt.Fprintln(stdout, renderStatusLine("Segments", statusInfo, fmt.Sprintf("%d", task.Segments), colorize))
	}
	if task.RetryCount > 0 {
		fmt.Fprintln(stdout, renderStatusLine("Retries", statusWarn, fmt.Sprintf("%d", task.RetryCount), colorize))
	}
	if task.WaitUntil != "" {
		fmt.Fprintln(stdout, renderStatusLine("Wait until", statusWarn, formatDisplayTime(task.WaitUntil), colorize))
	}
	if task.DestinationPath != "" {
		fmt.Fprintln(stdout, renderStatusLine("Destination", statusInfo, task.DestinationPath, colorize))
	}
	if task.ErrorMessage != "" {
		fmt.Fprintln(stdout, renderStatusLine("Error", statusError, task.ErrorMessage, colorize))
	}
	fmt.Fprintln(stdout, renderStatusLine("Created", statusInfo, formatDisplayTime(task.CreatedAt), colorize))
	if task.StartedAt != "" {
		fmt.Fprintln(stdout, renderStatusLine("Started", statusInfo, formatDisplayTime(task.StartedAt), colorize))
	}
	if task.CompletedAt != "" {
		fmt.Fprintln(stdout, renderStatusLine("Finished", statusInfo, formatDisplayTime(task.CompletedAt), colorize))
	}
}

func taskStatusKind(status string) statusKind {
	parsed, ok := queue.ParseStatus(status)
	if !ok {
		return statusInfo
	}
	switch parsed {
	case queue.StatusCompleted:
		return statusOK
	case queue.StatusFailed:
		return statusError
	case queue.StatusPaused, queue.StatusWaiting, queue.StatusSkipped, queue.StatusCancelled:
		return statusWarn
	default:
		return statusInfo
	}
}
