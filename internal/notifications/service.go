package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"harvester/internal/config"
)

const (
	userAgent      = "Harvester/0.1.0"
	defaultNtfyURL = "https://ntfy.sh/"
)

// Event identifies a notification kind.
type Event string

const (
	EventCycleStarted  Event = "cycle_started"
	EventCycleFinished Event = "cycle_finished"
	EventTaskCompleted Event = "task_completed"
	EventTaskFailed    Event = "task_failed"
	EventTest          Event = "test"
)

// Payload carries event fields. Known keys: id, title, error, admitted,
// processed, failed, duration, reason.
type Payload map[string]any

// Service publishes notification events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	endpoint := topic
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		endpoint = defaultNtfyURL + strings.TrimPrefix(topic, "/")
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventCycleStarted:  cfg.Notifications.Cycle,
			EventCycleFinished: cfg.Notifications.Cycle,
			EventTaskCompleted: cfg.Notifications.TaskCompleted,
			EventTaskFailed:    cfg.Notifications.TaskFailed,
			EventTest:          true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventCycleStarted:
		return message{
			title: "Harvester - Cycle Started",
			body:  "Discovery cycle started",
			tags:  []string{"harvester", "cycle", "started"},
		}, true
	case EventCycleFinished:
		body := fmt.Sprintf("Cycle finished: %d admitted, %d processed", payload.count("admitted"), payload.count("processed"))
		if failed := payload.count("failed"); failed > 0 {
			body = fmt.Sprintf("%s, %d failed", body, failed)
		}
		if d, ok := payload["duration"].(time.Duration); ok && d > 0 {
			body = fmt.Sprintf("%s in %s", body, d.Round(time.Second))
		}
		return message{
			title: "Harvester - Cycle Finished",
			body:  body,
			tags:  []string{"harvester", "cycle", "completed"},
		}, true
	case EventTaskCompleted:
		return message{
			title: "Harvester - Uploaded",
			body:  fmt.Sprintf("Uploaded %s: %s", payload.text("id"), payload.text("title")),
			tags:  []string{"harvester", "upload", "completed"},
		}, true
	case EventTaskFailed:
		body := fmt.Sprintf("%s failed: %s", payload.text("id"), payload.text("error"))
		if reason := payload.text("reason"); reason != "" {
			body = fmt.Sprintf("%s\n%s", body, reason)
		}
		return message{
			title:    "Harvester - Task Failed",
			body:     body,
			tags:     []string{"harvester", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Harvester - Test",
			body:     "Notification system test",
			tags:     []string{"harvester", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func (p Payload) text(key string) string {
	if v, ok := p[key]; ok && v != nil {
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return ""
}

func (p Payload) count(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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
