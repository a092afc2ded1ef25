package api

import (
	"time"

	"wharf/internal/queue"
	"wharf/internal/search"
)

// FromTask converts a queue record to its API representation.
func FromTask(task *queue.Task) Task {
	if task == nil {
		return Task{}
	}
	dto := Task{
		ID:              task.ID,
		Filename:        task.Filename,
		Reference:       task.StableReference,
		Category:        task.Category,
		Status:          string(task.Status),
		Progress:        task.Progress,
		SizeBytes:       task.SizeBytes,
		DownloadedBytes: task.DownloadedBytes,
		SpeedBPS:        task.SpeedBPS,
		ETASeconds:      task.ETASeconds(),
		RetryCount:      task.RetryCount,
		Priority:        task.Priority,
		Segments:        task.Segments,
		ErrorMessage:    task.ErrorMessage,
		DestinationPath: task.DestinationPath,
		CreatedAt:       FormatTime(task.CreatedAt),
		UpdatedAt:       FormatTime(task.UpdatedAt),
	}
	if task.WaitUntil != nil {
		dto.WaitUntil = FormatTime(*task.WaitUntil)
	}
	if task.StartedAt != nil {
		dto.StartedAt = FormatTime(*task.StartedAt)
	}
	if task.CompletedAt != nil {
		dto.CompletedAt = FormatTime(*task.CompletedAt)
	}
	return dto
}

// FromTasks converts a slice of queue records into API DTOs.
func FromTasks(tasks []*queue.Task) []Task {
	if len(tasks) == 0 {
		return nil
	}
	out := make([]Task, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, FromTask(task))
	}
	return out
}

// FromStats converts aggregate queue counters.
func FromStats(stats queue.Stats) Stats {
	return Stats{
		Active:        stats.Active,
		Queued:        stats.Queued,
		Paused:        stats.Paused,
		Completed:     stats.Completed,
		Failed:        stats.Failed,
		TotalSpeedBPS: stats.TotalSpeed,
	}
}

// FromCandidate converts one search candidate.
func FromCandidate(cand search.Candidate) SearchResult {
	return SearchResult{
		Filename:   cand.File.Filename,
		Reference:  cand.File.Reference,
		Category:   cand.File.Category,
		SizeBytes:  cand.File.SizeBytes,
		UploadedAt: cand.File.UploadedAt,
		Score:      cand.Score,
		Title:      cand.Normalized.Title,
		Season:     cand.Normalized.Season,
		Episode:    cand.Normalized.Episode,
		Year:       cand.Normalized.Year,
		Tags:       cand.Normalized.Tags,
	}
}

// FromCandidates converts a ranked candidate list.
func FromCandidates(cands []search.Candidate) []SearchResult {
	if len(cands) == 0 {
		return nil
	}
	out := make([]SearchResult, 0, len(cands))
	for _, cand := range cands {
		out = append(out, FromCandidate(cand))
	}
	return out
}

// FormatTime converts a time to the API timestamp format, or returns an
// empty string for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

// ParseTime reverses FormatTime. Empty or malformed values come back as the
// zero time.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(TimeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
