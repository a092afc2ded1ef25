package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"wharf/internal/api"
)

var queueTableHeaders = []string{"ID", "Filename", "Status", "Progress", "Size", "Speed", "ETA"}

var queueTableAligns = []columnAlignment{
	alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight,
}

var historyTableHeaders = []string{"ID", "Filename", "Status", "Size", "Finished", "Detail"}

var historyTableAligns = []columnAlignment{
	alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft,
}

func buildQueueRows(tasks []api.Task) [][]string {
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		rows = append(rows, []string{
			fmt.Sprintf("%d", task.ID),
			truncateLabel(task.Filename, 60),
			formatStatusLabel(task.Status),
			formatProgress(task.Progress),
			formatSize(task.SizeBytes),
			formatSpeed(task.SpeedBPS),
			formatETA(task.ETASeconds),
		})
	}
	return rows
}

func buildHistoryRows(tasks []api.Task) [][]string {
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		detail := task.DestinationPath
		if task.ErrorMessage != "" {
			detail = task.ErrorMessage
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", task.ID),
			truncateLabel(task.Filename, 60),
			formatStatusLabel(task.Status),
			formatSize(task.SizeBytes),
			formatDisplayTime(task.CompletedAt),
			truncateLabel(detail, 48),
		})
	}
	return rows
}

func buildStatsRows(stats api.Stats) [][]string {
	return [][]string{
		{"Active", fmt.Sprintf("%d", stats.Active)},
		{"Queued", fmt.Sprintf("%d", stats.Queued)},
		{"Paused", fmt.Sprintf("%d", stats.Paused)},
		{"Completed", fmt.Sprintf("%d", stats.Completed)},
		{"Failed", fmt.Sprintf("%d", stats.Failed)},
	}
}

func buildSearchRows(results []api.SearchResult) [][]string {
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		episode := ""
		if res.Season > 0 && res.Episode > 0 {
			episode = fmt.Sprintf("S%02dE%02d", res.Season, res.Episode)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", res.Score),
			truncateLabel(res.Filename, 60),
			episode,
			formatSize(res.SizeBytes),
			res.Category,
			res.Reference,
		})
	}
	return rows
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	if t, err := time.Parse(api.TimeLayout, value); err == nil {
		return t.UTC().Format("2006-01-02 15:04")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC().Format("2006-01-02 15:04")
	}
	return value
}

func formatSize(bytes int64) string {
	if bytes <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bytes))
}

func formatSpeed(bps int64) string {
	if bps <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bps)) + "/s"
}

func formatProgress(progress float64) string {
	if progress <= 0 {
		return "-"
	}
	if progress > 100 {
		progress = 100
	}
	return fmt.Sprintf("%.1f%%", progress)
}

func formatETA(seconds int64) string {
	if seconds <= 0 {
		return "-"
	}
	return (time.Duration(seconds) * time.Second).String()
}

func truncateLabel(value string, max int) string {
	value = strings.TrimSpace(value)
	if max <= 3 || len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}
