package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wharf/internal/config"
)

const userAgent = "wharf/0.1.0"

// Event identifies a notification-worthy moment in the daemon lifecycle.
type Event string

const (
	EventDownloadCompleted Event = "download_completed"
	EventDownloadFailed    Event = "download_failed"
	EventDaemonStarted     Event = "daemon_started"
	EventDaemonStopped     Event = "daemon_stopped"
	EventTest              Event = "test"
)

// Payload carries the per-event fields used to render the message.
type Payload map[string]string

// Service publishes lifecycle events to the configured push channel.
// Events suppressed by configuration return nil without sending.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when a topic is
// configured, and a noop otherwise.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.Completed,
		failed:    cfg.Notifications.Failed,
		daemon:    cfg.Notifications.Daemon,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	completed bool
	failed    bool
	daemon    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	data, ok := n.render(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

// render produces the outgoing message for an event, or false when the
// event is suppressed by configuration.
func (n *ntfyService) render(event Event, payload Payload) (message, bool) {
	get := func(key string) string { return strings.TrimSpace(payload[key]) }

	switch event {
	case EventDownloadCompleted:
		if !n.completed {
			return message{}, false
		}
		body := fmt.Sprintf("Downloaded: %s", get("filename"))
		if size := get("size"); size != "" {
			body = fmt.Sprintf("%s (%s)", body, size)
		}
		return message{
			title: "Wharf - Download Complete",
			body:  body,
			tags:  []string{"wharf", "download", "completed"},
		}, true
	case EventDownloadFailed:
		if !n.failed {
			return message{}, false
		}
		body := fmt.Sprintf("Download failed: %s", get("filename"))
		if reason := get("reason"); reason != "" {
			body = fmt.Sprintf("%s\nReason: %s", body, reason)
		}
		return message{
			title:    "Wharf - Download Failed",
			body:     body,
			tags:     []string{"wharf", "download", "failed"},
			priority: "high",
		}, true
	case EventDaemonStarted:
		if !n.daemon {
			return message{}, false
		}
		body := "Daemon started"
		if version := get("version"); version != "" {
			body = fmt.Sprintf("Daemon started (%s)", version)
		}
		return message{
			title: "Wharf - Daemon",
			body:  body,
			tags:  []string{"wharf", "daemon", "started"},
		}, true
	case EventDaemonStopped:
		if !n.daemon {
			return message{}, false
		}
		return message{
			title: "Wharf - Daemon",
			body:  "Daemon stopped",
			tags:  []string{"wharf", "daemon", "stopped"},
		}, true
	case EventTest:
		return message{
			title:    "Wharf - Test",
			body:     "Notification system test",
			tags:     []string{"wharf", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
