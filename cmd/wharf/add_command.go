package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"wharf/internal/api"
	"wharf/internal/ipc"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var filename string
	var category string
	var sizeSpec string
	var priority int
	var segments int

	cmd := &cobra.Command{
		Use:   "add <reference>...",
		Short: "Queue downloads by stable reference",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if filename != "" && len(args) > 1 {
				return errors.New("--filename applies to a single reference")
			}
			var sizeBytes int64
			if strings.TrimSpace(sizeSpec) != "" {
				parsed, err := humanize.ParseBytes(sizeSpec)
				if err != nil {
					return fmt.Errorf("invalid --size %q: %w", sizeSpec, err)
				}
				sizeBytes = int64(parsed)
			}

			return ctx.withFallback(func(client *ipc.Client, svc *api.Service) error {
				out := cmd.OutOrStdout()
				for _, ref := range args {
					req := api.AddRequest{
						Reference: strings.TrimSpace(ref),
						Filename:  strings.TrimSpace(filename),
						Category:  strings.TrimSpace(category),
						SizeBytes: sizeBytes,
						Priority:  priority,
						Segments:  segments,
					}
					var result api.AddResult
					if client != nil {
						resp, err := client.Add(req)
						if err != nil {
							return err
						}
						result = resp.Result
					} else {
						res, err := svc.Add(cmd.Context(), req)
						if err != nil {
							return err
						}
						result = res
					}
					printAddResult(out, result)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&filename, "filename", "", "Filename hint for a single reference")
	cmd.Flags().StringVar(&category, "category", "", "Category for the queued tasks")
	cmd.Flags().StringVar(&sizeSpec, "size", "", "Expected size hint, e.g. 1.4GiB")
	cmd.Flags().IntVar(&priority, "priority", 0, "Scheduling priority (higher runs first)")
	cmd.Flags().IntVar(&segments, "segments", 0, "Segment count override for these tasks")
	return cmd
}

func printAddResult(out io.Writer, result api.AddResult) {
	task := result.Task
	label := task.Filename
	if label == "" {
		label = task.Reference
	}
	switch {
	case result.Skipped:
		fmt.Fprintf(out, "Task #%d skipped: %s\n", task.ID, task.ErrorMessage)
	case result.Resumed:
		fmt.Fprintf(out, "Resumed failed task #%d (%s)\n", task.ID, label)
	case result.Duplicate:
		fmt.Fprintf(out, "Task #%d already queued for this reference\n", task.ID)
	default:
		fmt.Fprintf(out, "Queued task #%d (%s)\n", task.ID, label)
	}
}
