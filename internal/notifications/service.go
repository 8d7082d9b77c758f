package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hackercast/internal/config"
)

const userAgent = "hackercast/1.0"

// Event identifies a notifiable pipeline moment.
type Event string

const (
	EventBatchStarted     Event = "batch_started"
	EventBatchCompleted   Event = "batch_completed"
	EventItemDeadLettered Event = "item_dead_lettered"
	EventError            Event = "error"
	EventTest             Event = "test"
)

// Payload carries event-specific fields used to format the message.
type Payload map[string]string

// Service is the notification surface the workflow publishes to. Publish
// never blocks pipeline progress on notification failures; callers log and
// move on.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when a topic is
// configured, and a noop implementation otherwise.
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
		endpoint: topic,
		opts:     cfg.Notifications,
		client:   &http.Client{Timeout: timeout},
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
	opts     config.Notifications
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

// format builds the ntfy message for an event, or reports false when the
// event is suppressed by configuration.
func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	get := func(key string) string { return strings.TrimSpace(payload[key]) }

	switch event {
	case EventBatchStarted:
		if !n.opts.BatchStart {
			return message{}, false
		}
		return message{
			title: "Hackercast - Batch Started",
			body:  fmt.Sprintf("Started batch %s with %s stories", get("batchID"), get("count")),
			tags:  []string{"hackercast", "batch", "started"},
		}, true

	case EventBatchCompleted:
		if !n.opts.BatchComplete {
			return message{}, false
		}
		return formatBatchCompleted(get), true

	case EventItemDeadLettered:
		if !n.opts.DeadLetter {
			return message{}, false
		}
		body := fmt.Sprintf("⚠️ Dead-lettered: %s", get("title"))
		if stage, kind := get("stage"), get("kind"); stage != "" || kind != "" {
			body = fmt.Sprintf("%s\nFailed to reach %s (%s)", body, stage, kind)
		}
		return message{
			title: "Hackercast - Item Dead-Lettered",
			body:  body,
			tags:  []string{"hackercast", "deadletter", "alert"},
		}, true

	case EventError:
		if !n.opts.Errors {
			return message{}, false
		}
		body := "❌ Error"
		if label := get("context"); label != "" {
			body += " with " + label
		}
		detail := get("error")
		if detail == "" {
			detail = "unknown"
		}
		return message{
			title:    "Hackercast - Error",
			body:     body + ": " + detail,
			tags:     []string{"hackercast", "error", "alert"},
			priority: "high",
		}, true

	case EventTest:
		return message{
			title:    "Hackercast - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"hackercast", "test"},
			priority: "low",
		}, true
	}

	return message{}, false
}

func formatBatchCompleted(get func(string) string) message {
	published := get("published")
	deadLettered := get("deadLettered")
	duration := get("duration")
	batchID := get("batchID")

	switch get("outcome") {
	case "full_success":
		return message{
			title: "Hackercast - Batch Complete",
			body:  fmt.Sprintf("✅ Batch %s complete: %s episodes published in %s", batchID, published, duration),
			tags:  []string{"hackercast", "batch", "completed"},
		}
	case "partial_success":
		return message{
			title: "Hackercast - Batch Complete (partial)",
			body:  fmt.Sprintf("Batch %s complete: %s published, %s dead-lettered in %s", batchID, published, deadLettered, duration),
			tags:  []string{"hackercast", "batch", "completed"},
		}
	default:
		return message{
			title:    "Hackercast - Batch Failed",
			body:     fmt.Sprintf("❌ Batch %s failed: no episodes published, %s dead-lettered in %s", batchID, deadLettered, duration),
			tags:     []string{"hackercast", "batch", "failed"},
			priority: "high",
		}
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

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
