package ipc

import (
	"wharf/internal/api"
	"wharf/internal/logging"
)

// ServiceName is the JSON-RPC receiver registered on the socket.
const ServiceName = "Wharf"

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse carries daemon runtime state.
type StatusResponse struct {
	Status api.DaemonStatus `json:"status"`
}

// StopRequest asks the daemon process to shut down.
type StopRequest struct{}

// StopResponse indicates the shutdown was initiated.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// AddRequest enqueues a download.
type AddRequest struct {
	Add api.AddRequest `json:"add"`
}

// AddResponse reports the enqueue outcome.
type AddResponse struct {
	Result api.AddResult `json:"result"`
}

// SearchRequest runs the hoster search pipeline.
type SearchRequest struct {
	Query api.SearchRequest `json:"query"`
}

// SearchResponse contains ranked search results.
type SearchResponse struct {
	Results []api.SearchResult `json:"results"`
}

// TaskListRequest filters the task listing by status names.
type TaskListRequest struct {
	Statuses []string `json:"statuses"`
}

// TaskListResponse contains task entries.
type TaskListResponse struct {
	Tasks []api.Task `json:"tasks"`
}

// QueueRequest fetches unfinished tasks in scheduling order.
type QueueRequest struct{}

// HistoryRequest fetches finished tasks, newest first.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// DescribeRequest fetches a single task by id.
type DescribeRequest struct {
	ID int64 `json:"id"`
}

// DescribeResponse contains a single task.
type DescribeResponse struct {
	Task api.Task `json:"task"`
}

// TaskActionRequest applies a task action to each listed id.
type TaskActionRequest struct {
	IDs         []int64 `json:"ids"`
	DeleteFiles bool    `json:"delete_files,omitempty"`
}

// TaskActionResponse reports per-task outcomes.
type TaskActionResponse struct {
	Result api.BatchResult `json:"result"`
}

// AllTasksRequest targets every eligible task.
type AllTasksRequest struct{}

// ClearHistoryRequest removes finished tasks; CompletedOnly keeps failures
// around.
type ClearHistoryRequest struct {
	CompletedOnly bool `json:"completed_only"`
}

// CountResponse reports how many rows an operation touched.
type CountResponse struct {
	Affected int64 `json:"affected"`
}

// LogTailRequest fetches log events from the stream hub, falling back to the
// archive for cursors that already left the ring. Tail starts from the most
// recent events instead of the oldest buffered ones and only applies when
// Since is zero.
type LogTailRequest struct {
	Since      uint64 `json:"since"`
	Limit      int    `json:"limit"`
	Tail       bool   `json:"tail,omitempty"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
	Component  string `json:"component"`
	TaskID     int64  `json:"task_id"`
}

// LogTailResponse returns log events and the next cursor.
type LogTailResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}
