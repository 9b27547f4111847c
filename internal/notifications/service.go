package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ferry/internal/config"
)

const userAgent = "Ferry/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyArchiveCompleted(ctx context.Context, displayName string) error
	NotifyArchiveCorrupted(ctx context.Context, displayName, reason string) error
	NotifyPipelinePaused(ctx context.Context, reason string) error
	NotifyPipelineResumed(ctx context.Context) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint: topic,
		client:   client,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyArchiveCompleted(ctx context.Context, displayName string) error {
	displayName = strings.TrimSpace(displayName)
	data := payload{
		title:   "Ferry - Archive Complete",
		message: fmt.Sprintf("Archive migrated and cleaned: %s", displayName),
		tags:    []string{"ferry", "archive", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyArchiveCorrupted(ctx context.Context, displayName, reason string) error {
	displayName = strings.TrimSpace(displayName)
	reason = strings.TrimSpace(reason)
	message := fmt.Sprintf("Archive parked as corrupted: %s", displayName)
	if reason != "" {
		message = fmt.Sprintf("%s\nReason: %s", message, reason)
	}
	data := payload{
		title:    "Ferry - Archive Corrupted",
		message:  message,
		tags:     []string{"ferry", "archive", "corrupted"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPipelinePaused(ctx context.Context, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unspecified"
	}
	data := payload{
		title:    "Ferry - Paused",
		message:  fmt.Sprintf("Cleanup paused: %s\nUse `ferry resume` after review", reason),
		tags:     []string{"ferry", "pipeline", "paused"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPipelineResumed(ctx context.Context) error {
	data := payload{
		title:   "Ferry - Resumed",
		message: "Cleanup resumed after pause",
		tags:    []string{"ferry", "pipeline", "resumed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Ferry - Error",
		message:  builder.String(),
		tags:     []string{"ferry", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Ferry - Test",
		message:  "Notification system test",
		tags:     []string{"ferry", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
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

func (noopService) NotifyArchiveCompleted(context.Context, string) error         { return nil }
func (noopService) NotifyArchiveCorrupted(context.Context, string, string) error { return nil }
func (noopService) NotifyPipelinePaused(context.Context, string) error           { return nil }
func (noopService) NotifyPipelineResumed(context.Context) error                  { return nil }
func (noopService) NotifyError(context.Context, error, string) error             { return nil }
func (noopService) TestNotification(context.Context) error                       { return nil }
