package broadcast

import (
	"time"

	"wharf/internal/queue"
)

// MessageType tags every frame pushed over the sync socket. The set is
// closed; clients switch over it exhaustively.
type MessageType string

const (
	// MessageSnapshot carries the full task list plus aggregate stats.
	// Sent once per connection, immediately after the upgrade.
	MessageSnapshot MessageType = "snapshot"
	// MessageTaskAdded announces a single newly enqueued task.
	MessageTaskAdded MessageType = "task_added"
	// MessageTaskUpdated carries one changed task.
	MessageTaskUpdated MessageType = "task_updated"
	// MessageTasksUpdated carries every task that changed within one batch
	// window, merged by id.
	MessageTasksUpdated MessageType = "tasks_updated"
	// MessageTaskRemoved names tasks deleted from the queue.
	MessageTaskRemoved MessageType = "task_removed"
	// MessageStats is the periodic aggregate refresh.
	MessageStats MessageType = "stats"
)

// Message is one sync frame. Only the fields matching Type are populated.
type Message struct {
	Type    MessageType `json:"type"`
	Tasks   []TaskState `json:"tasks,omitempty"`
	Removed []int64     `json:"removed,omitempty"`
	Stats   *Stats      `json:"stats,omitempty"`
}

// TaskState is the wire form of a queue task. The stable reference and
// direct URL stay server-side.
type TaskState struct {
	ID              int64     `json:"id"`
	Filename        string    `json:"filename"`
	Category        string    `json:"category,omitempty"`
	Status          string    `json:"status"`
	Progress        float64   `json:"progress"`
	SizeBytes       int64     `json:"size_bytes"`
	DownloadedBytes int64     `json:"downloaded_bytes"`
	SpeedBPS        int64     `json:"speed_bps"`
	ETASeconds      int64     `json:"eta_seconds"`
	RetryCount      int       `json:"retry_count"`
	Priority        int       `json:"priority"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	DestinationPath string    `json:"destination_path,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Stats is the wire form of the queue aggregate.
type Stats struct {
	ActiveCount    int   `json:"active_count"`
	QueuedCount    int   `json:"queued_count"`
	PausedCount    int   `json:"paused_count"`
	CompletedCount int   `json:"completed_count"`
	FailedCount    int   `json:"failed_count"`
	TotalSpeedBPS  int64 `json:"total_speed_bps"`
}

func newTaskState(task *queue.Task) TaskState {
	return TaskState{
		ID:              task.ID,
		Filename:        task.Filename,
		Category:        task.Category,
		Status:          string(task.Status),
		Progress:        task.Progress,
		SizeBytes:       task.SizeBytes,
		DownloadedBytes: task.DownloadedBytes,
		SpeedBPS:        task.SpeedBPS,
		ETASeconds:      task.ETASeconds(),
		RetryCount:      task.RetryCount,
		Priority:        task.Priority,
		ErrorMessage:    task.ErrorMessage,
		DestinationPath: task.DestinationPath,
		CreatedAt:       task.CreatedAt,
		UpdatedAt:       task.UpdatedAt,
	}
}

func newStats(stats queue.Stats) *Stats {
	return &Stats{
		ActiveCount:    stats.Active,
		QueuedCount:    stats.Queued,
		PausedCount:    stats.Paused,
		CompletedCount: stats.Completed,
		FailedCount:    stats.Failed,
		TotalSpeedBPS:  stats.TotalSpeed,
	}
}
