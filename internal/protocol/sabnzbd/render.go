package sabnzbd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"wharf/internal/api"
	"wharf/internal/queue"
)

// Wire payloads. Numeric-looking strings are deliberate: that is how the
// real API ships them and clients parse them that way.

type versionResponse struct {
	Version string `json:"version"`
}

type errorResponse struct {
	Status bool   `json:"status"`
	Error  string `json:"error"`
}

type statusResponse struct {
	Status bool `json:"status"`
}

type addResponse struct {
	Status bool     `json:"status"`
	NzoIDs []string `json:"nzo_ids"`
}

type queueResponse struct {
	Queue queuePayload `json:"queue"`
}

type queuePayload struct {
	Status    string      `json:"status"`
	Paused    bool        `json:"paused"`
	Speed     string      `json:"speed"`
	KBPerSec  string      `json:"kbpersec"`
	MB        string      `json:"mb"`
	MBLeft    string      `json:"mbleft"`
	TimeLeft  string      `json:"timeleft"`
	NoOfSlots int         `json:"noofslots"`
	Slots     []queueSlot `json:"slots"`
}

type queueSlot struct {
	Status     string `json:"status"`
	Index      int    `json:"index"`
	NzoID      string `json:"nzo_id"`
	Filename   string `json:"filename"`
	Percentage string `json:"percentage"`
	MB         string `json:"mb"`
	MBLeft     string `json:"mbleft"`
	Size       string `json:"size"`
	SizeLeft   string `json:"sizeleft"`
	TimeLeft   string `json:"timeleft"`
	ETA        string `json:"eta"`
	Priority   string `json:"priority"`
	Category   string `json:"cat"`
}

type historyResponse struct {
	History historyPayload `json:"history"`
}

type historyPayload struct {
	NoOfSlots int           `json:"noofslots"`
	Slots     []historySlot `json:"slots"`
}

type historySlot struct {
	NzoID        string `json:"nzo_id"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	FailMessage  string `json:"fail_message"`
	Category     string `json:"category"`
	Size         string `json:"size"`
	Bytes        int64  `json:"bytes"`
	Storage      string `json:"storage"`
	Completed    int64  `json:"completed"`
	DownloadTime int64  `json:"download_time"`
}

type catsResponse struct {
	Categories []string `json:"categories"`
}

type configResponse struct {
	Config configPayload `json:"config"`
}

type configPayload struct {
	Misc       configMisc       `json:"misc"`
	Categories []configCategory `json:"categories"`
}

type configMisc struct {
	CompleteDir string `json:"complete_dir"`
}

type configCategory struct {
	Name string `json:"name"`
	Dir  string `json:"dir"`
}

// queueStatus translates internal statuses into the façade vocabulary.
// Internal names never go out on this surface.
func queueStatus(status string) string {
	switch queue.Status(status) {
	case queue.StatusStarting:
		return "Grabbing"
	case queue.StatusDownloading:
		return "Downloading"
	case queue.StatusExtracting:
		return "Extracting"
	case queue.StatusPaused:
		return "Paused"
	}
	// Queued, waiting-for-retry, and anything new all present as queued.
	return "Queued"
}

// historyStatus maps terminal statuses onto the history vocabulary. The
// false return keeps cancelled rows internal.
func historyStatus(status string) (string, bool) {
	switch queue.Status(status) {
	case queue.StatusCompleted:
		return "Completed", true
	case queue.StatusFailed, queue.StatusSkipped:
		return "Failed", true
	}
	return "", false
}

func buildQueue(tasks []api.Task, stats api.Stats) queuePayload {
	slots := make([]queueSlot, 0, len(tasks))
	var totalBytes, leftBytes int64
	for i, task := range tasks {
		remaining := task.SizeBytes - task.DownloadedBytes
		if remaining < 0 {
			remaining = 0
		}
		totalBytes += task.SizeBytes
		leftBytes += remaining

		slots = append(slots, queueSlot{
			Status:     queueStatus(task.Status),
			Index:      i,
			NzoID:      nzoID(task.ID),
			Filename:   task.Filename,
			Percentage: strconv.Itoa(int(task.Progress)),
			MB:         mbString(task.SizeBytes),
			MBLeft:     mbString(remaining),
			Size:       sizeString(task.SizeBytes),
			SizeLeft:   sizeString(remaining),
			TimeLeft:   clockString(task.ETASeconds),
			ETA:        etaString(task.ETASeconds),
			Priority:   priorityString(task.Priority),
			Category:   slotCategory(task.Category),
		})
	}

	status := "Idle"
	paused := false
	switch {
	case stats.Active > 0:
		status = "Downloading"
	case stats.Paused > 0 && stats.Queued == 0:
		status, paused = "Paused", true
	}

	timeleft := "0:00:00"
	if stats.TotalSpeedBPS > 0 {
		timeleft = clockString(leftBytes / stats.TotalSpeedBPS)
	}

	return queuePayload{
		Status:    status,
		Paused:    paused,
		Speed:     speedString(stats.TotalSpeedBPS),
		KBPerSec:  fmt.Sprintf("%.2f", float64(stats.TotalSpeedBPS)/1024),
		MB:        mbString(totalBytes),
		MBLeft:    mbString(leftBytes),
		TimeLeft:  timeleft,
		NoOfSlots: len(slots),
		Slots:     slots,
	}
}

func buildHistory(tasks []api.Task) []historySlot {
	slots := make([]historySlot, 0, len(tasks))
	for _, task := range tasks {
		status, ok := historyStatus(task.Status)
		if !ok {
			continue
		}

		completedAt := api.ParseTime(task.CompletedAt)
		var completed int64
		if !completedAt.IsZero() {
			completed = completedAt.Unix()
		}
		var downloadTime int64
		if startedAt := api.ParseTime(task.StartedAt); !startedAt.IsZero() && !completedAt.IsZero() {
			if d := int64(completedAt.Sub(startedAt).Seconds()); d > 0 {
				downloadTime = d
			}
		}

		slots = append(slots, historySlot{
			NzoID:        nzoID(task.ID),
			Name:         task.Filename,
			Status:       status,
			FailMessage:  task.ErrorMessage,
			Category:     slotCategory(task.Category),
			Size:         sizeString(task.SizeBytes),
			Bytes:        task.SizeBytes,
			Storage:      task.DestinationPath,
			Completed:    completed,
			DownloadTime: downloadTime,
		})
	}
	return slots
}

// sizeString renders bytes the way the original UI does: binary divisions
// with decimal labels.
func sizeString(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return strings.Replace(humanize.IBytes(uint64(bytes)), "iB", "B", 1)
}

func mbString(bytes int64) string {
	return fmt.Sprintf("%.2f", float64(bytes)/(1024*1024))
}

func speedString(bps int64) string {
	kb := float64(bps) / 1024
	if kb >= 1024 {
		return fmt.Sprintf("%.1f M", kb/1024)
	}
	return fmt.Sprintf("%.0f K", kb)
}

func clockString(seconds int64) string {
	if seconds <= 0 {
		return "0:00:00"
	}
	return fmt.Sprintf("%d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
}

func etaString(seconds int64) string {
	if seconds <= 0 {
		return "unknown"
	}
	return time.Now().Add(time.Duration(seconds) * time.Second).Format("15:04 Mon 02 Jan")
}

func priorityString(priority int) string {
	switch {
	case priority >= 20:
		return "Force"
	case priority >= 10:
		return "High"
	case priority < 0:
		return "Low"
	}
	return "Normal"
}

func slotCategory(category string) string {
	if category == "" {
		return "*"
	}
	return category
}
