package api

import "wharf/internal/logging"

// TimeLayout is the RFC3339 form used for timestamps in API payloads.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Task describes a queue entry in a transport-friendly format.
type Task struct {
	ID              int64   `json:"id"`
	Filename        string  `json:"filename"`
	Reference       string  `json:"reference"`
	Category        string  `json:"category,omitempty"`
	Status          string  `json:"status"`
	Progress        float64 `json:"progress"`
	SizeBytes       int64   `json:"sizeBytes"`
	DownloadedBytes int64   `json:"downloadedBytes"`
	SpeedBPS        int64   `json:"speedBps"`
	ETASeconds      int64   `json:"etaSeconds"`
	RetryCount      int     `json:"retryCount"`
	Priority        int     `json:"priority"`
	Segments        int     `json:"segments,omitempty"`
	ErrorMessage    string  `json:"errorMessage,omitempty"`
	DestinationPath string  `json:"destinationPath,omitempty"`
	WaitUntil       string  `json:"waitUntil,omitempty"`
	CreatedAt       string  `json:"createdAt,omitempty"`
	UpdatedAt       string  `json:"updatedAt,omitempty"`
	StartedAt       string  `json:"startedAt,omitempty"`
	CompletedAt     string  `json:"completedAt,omitempty"`
}

// Stats aggregates task counts and throughput.
type Stats struct {
	Active        int   `json:"active"`
	Queued        int   `json:"queued"`
	Paused        int   `json:"paused"`
	Completed     int   `json:"completed"`
	Failed        int   `json:"failed"`
	TotalSpeedBPS int64 `json:"totalSpeedBps"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
// PID is filled by the process layer; the service reports everything it
// can see from inside.
type DaemonStatus struct {
	Running       bool   `json:"running"`
	PID           int    `json:"pid,omitempty"`
	Version       string `json:"version,omitempty"`
	UptimeSeconds int64  `json:"uptimeSeconds,omitempty"`
	EngineActive  int    `json:"engineActive"`
	Stats         Stats  `json:"stats"`
	HosterReady   bool   `json:"hosterReady"`

	DownloadDir  string `json:"downloadDir,omitempty"`
	DatabasePath string `json:"databasePath,omitempty"`
	SocketPath   string `json:"socketPath,omitempty"`
}

// AddRequest carries the caller-supplied fields for enqueueing a download.
type AddRequest struct {
	Reference string `json:"reference"`
	Filename  string `json:"filename,omitempty"`
	Category  string `json:"category,omitempty"`
	SizeBytes int64  `json:"sizeBytes,omitempty"`
	Priority  int    `json:"priority,omitempty"`
	Segments  int    `json:"segments,omitempty"`
}

// AddResult reports the outcome of an add. Duplicate means an existing
// non-terminal task already holds the reference and is returned unchanged;
// Resumed means a failed task holding the reference was revived instead of
// inserting a second row; Skipped means the row was created but retired by
// add-time validation, with the reason on the task's error message.
type AddResult struct {
	Task      Task `json:"task"`
	Duplicate bool `json:"duplicate,omitempty"`
	Resumed   bool `json:"resumed,omitempty"`
	Skipped   bool `json:"skipped,omitempty"`
}

// SearchRequest describes one search for the service layer.
type SearchRequest struct {
	Title    string `json:"title"`
	Season   int    `json:"season,omitempty"`
	Episode  int    `json:"episode,omitempty"`
	Category string `json:"category,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// SearchResult is one accepted candidate with its parsed metadata.
type SearchResult struct {
	Filename   string   `json:"filename"`
	Reference  string   `json:"reference"`
	Category   string   `json:"category,omitempty"`
	SizeBytes  int64    `json:"sizeBytes"`
	UploadedAt string   `json:"uploadedAt,omitempty"`
	Score      int      `json:"score"`
	Title      string   `json:"title"`
	Season     int      `json:"season,omitempty"`
	Episode    int      `json:"episode,omitempty"`
	Year       int      `json:"year,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// TaskListResponse wraps a collection of tasks for API responses.
type TaskListResponse struct {
	Tasks []Task `json:"tasks"`
}

// TaskResponse wraps a single task.
type TaskResponse struct {
	Task Task `json:"task"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// CountResponse reports how many rows a bulk operation touched.
type CountResponse struct {
	Affected int64 `json:"affected"`
}

// LogStreamResponse carries a page of log events plus the cursor to resume
// from on the next fetch.
type LogStreamResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}
