package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a download task.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusStarting    Status = "starting"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusWaiting     Status = "waiting"
	StatusExtracting  Status = "extracting"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
	StatusSkipped     Status = "skipped"
)

// DaemonStopReason is the message recorded when active tasks are interrupted
// by daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusQueued,
	StatusStarting,
	StatusDownloading,
	StatusPaused,
	StatusWaiting,
	StatusExtracting,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
	StatusSkipped,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// activeStatuses are states where a worker owns the task and bytes may move.
var activeStatuses = map[Status]struct{}{
	StatusStarting:    {},
	StatusDownloading: {},
	StatusExtracting:  {},
}

// terminalStatuses admit no further transitions.
var terminalStatuses = map[Status]struct{}{
	StatusCompleted: {},
	StatusCancelled: {},
	StatusSkipped:   {},
}

// allowedTransitions is the authoritative state machine. Any transition not
// listed here is rejected by the store with ErrIllegalTransition.
var allowedTransitions = map[Status][]Status{
	StatusQueued:      {StatusStarting, StatusSkipped, StatusCancelled, StatusPaused},
	StatusStarting:    {StatusDownloading, StatusWaiting, StatusFailed, StatusPaused, StatusCancelled},
	StatusDownloading: {StatusPaused, StatusExtracting, StatusCompleted, StatusWaiting, StatusFailed, StatusCancelled},
	StatusPaused:      {StatusWaiting, StatusDownloading, StatusCancelled},
	StatusWaiting:     {StatusStarting, StatusPaused, StatusCancelled},
	StatusExtracting:  {StatusCompleted, StatusFailed, StatusWaiting, StatusCancelled},
	StatusFailed:      {StatusWaiting, StatusCancelled},
	StatusCompleted:   {},
	StatusCancelled:   {},
	StatusSkipped:     {},
}

// transitionSources returns every status allowed to move into target.
func transitionSources(target Status) []Status {
	var sources []Status
	for from, targets := range allowedTransitions {
		for _, to := range targets {
			if to == target {
				sources = append(sources, from)
				break
			}
		}
	}
	return sources
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Stats aggregates task counts and throughput for status surfaces and the
// sync channel snapshot.
type Stats struct {
	Active     int
	Queued     int
	Paused     int
	Completed  int
	Failed     int
	TotalSpeed int64
}

// Task represents a download task persisted in SQLite.
//
// StableReference never expires and is retained for the lifetime of the task;
// DirectURL is the short-lived transfer link and may be cleared or replaced
// at any time without affecting transfer offsets.
type Task struct {
	ID              int64
	StableReference string
	DirectURL       string
	Filename        string
	DestinationPath string
	Category        string
	Status          Status
	Progress        float64
	SizeBytes       int64
	DownloadedBytes int64
	SpeedBPS        int64
	RetryCount      int
	Segments        int
	Priority        int
	ErrorMessage    string
	WaitUntil       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsActive returns true when a worker currently owns the task.
func (t Task) IsActive() bool {
	return IsActiveStatus(t.Status)
}

// IsTerminal returns true when no further transitions are possible.
func (t Task) IsTerminal() bool {
	return IsTerminalStatus(t.Status)
}

// IsActiveStatus reports whether a status reflects an in-flight transfer.
func IsActiveStatus(status Status) bool {
	_, ok := activeStatuses[status]
	return ok
}

// IsTerminalStatus reports whether a status is final.
func IsTerminalStatus(status Status) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// SetProgress records byte movement, clamping so progress never regresses
// while the task stays active.
func (t *Task) SetProgress(downloadedBytes int64, speedBPS int64) {
	if downloadedBytes > t.DownloadedBytes {
		t.DownloadedBytes = downloadedBytes
	}
	t.SpeedBPS = speedBPS
	if t.SizeBytes > 0 {
		percent := float64(t.DownloadedBytes) / float64(t.SizeBytes) * 100
		if percent > t.Progress {
			t.Progress = percent
		}
		if t.Progress > 100 {
			t.Progress = 100
		}
	}
}

// RemainingBytes returns the bytes still to transfer, or zero when unknown.
func (t Task) RemainingBytes() int64 {
	if t.SizeBytes <= 0 || t.DownloadedBytes >= t.SizeBytes {
		return 0
	}
	return t.SizeBytes - t.DownloadedBytes
}

// ETASeconds estimates seconds until completion from the current speed.
func (t Task) ETASeconds() int64 {
	remaining := t.RemainingBytes()
	if remaining == 0 || t.SpeedBPS <= 0 {
		return 0
	}
	return remaining / t.SpeedBPS
}
