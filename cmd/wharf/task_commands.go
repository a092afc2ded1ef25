package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"wharf/internal/api"
	"wharf/internal/ipc"
)

// Scheduling actions always go through the daemon; the engine owns transfer
// workers and pause bookkeeping, so there is no offline fallback here.
func newTaskActionCommands(ctx *commandContext) []*cobra.Command {
	var pauseAll bool
	pauseCmd := &cobra.Command{
		Use:   "pause [id...]",
		Short: "Pause downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pauseAll {
				return ctx.withClient(func(client *ipc.Client) error {
					resp, err := client.PauseAll()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Paused %d tasks\n", resp.Affected)
					return nil
				})
			}
			ids, err := requireTaskIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Pause(ids)
				if err != nil {
					return err
				}
				printBatchResult(cmd.OutOrStdout(), "paused", resp.Result)
				return nil
			})
		},
	}
	pauseCmd.Flags().BoolVar(&pauseAll, "all", false, "Pause every unfinished task")

	var resumeAll bool
	resumeCmd := &cobra.Command{
		Use:   "resume [id...]",
		Short: "Resume paused or failed downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			if resumeAll {
				return ctx.withClient(func(client *ipc.Client) error {
					resp, err := client.ResumeAll()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Resumed %d tasks\n", resp.Affected)
					return nil
				})
			}
			ids, err := requireTaskIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Resume(ids)
				if err != nil {
					return err
				}
				printBatchResult(cmd.OutOrStdout(), "resumed", resp.Result)
				return nil
			})
		},
	}
	resumeCmd.Flags().BoolVar(&resumeAll, "all", false, "Resume every paused or failed task")

	retryCmd := &cobra.Command{
		Use:   "retry <id>...",
		Short: "Retry failed downloads",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseTaskIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Retry(ids)
				if err != nil {
					return err
				}
				printBatchResult(cmd.OutOrStdout(), "queued for retry", resp.Result)
				return nil
			})
		},
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel <id>...",
		Short: "Cancel downloads, discarding partial data",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseTaskIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Cancel(ids)
				if err != nil {
					return err
				}
				printBatchResult(cmd.OutOrStdout(), "cancelled", resp.Result)
				return nil
			})
		},
	}

	var deleteFiles bool
	removeCmd := &cobra.Command{
		Use:   "remove <id>...",
		Short: "Remove tasks from the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseTaskIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Remove(ids, deleteFiles)
				if err != nil {
					return err
				}
				printBatchResult(cmd.OutOrStdout(), "removed", resp.Result)
				return nil
			})
		},
	}
	removeCmd.Flags().BoolVar(&deleteFiles, "delete-files", false, "Also delete downloaded and partial data")

	return []*cobra.Command{pauseCmd, resumeCmd, retryCmd, cancelCmd, removeCmd}
}

func requireTaskIDs(args []string) ([]int64, error) {
	if len(args) == 0 {
		return nil, errors.New("task ids required (or pass --all)")
	}
	return parseTaskIDs(args)
}

func printBatchResult(out io.Writer, verb string, result api.BatchResult) {
	for _, res := range result.Results {
		switch res.Outcome {
		case api.OutcomeApplied:
			fmt.Fprintf(out, "Task %d %s\n", res.ID, verb)
		case api.OutcomeNotFound:
			fmt.Fprintf(out, "Task %d not found\n", res.ID)
		case api.OutcomeNotEligible:
			detail := res.Detail
			if detail == "" {
				detail = fmt.Sprintf("status is %s", res.Status)
			}
			fmt.Fprintf(out, "Task %d not eligible: %s\n", res.ID, detail)
		}
	}
	if len(result.Results) > 1 {
		fmt.Fprintf(out, "%d of %d tasks %s\n", result.Applied, len(result.Results), verb)
	}
}
