package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shotline/internal/config"
)

const userAgent = "shotline-notify/1"

// JobSummary describes a finished job.
type JobSummary struct {
	JobID    string
	Name     string
	Stack    string
	Warnings string
	Duration time.Duration
	Images   int
	Uploads  int
}

func (s JobSummary) label() string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	return s.JobID
}

// Service sends job notifications.
type Service interface {
	NotifyJobCompleted(ctx context.Context, summary JobSummary) error
	NotifyJobFailed(ctx context.Context, summary JobSummary, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a no-op one when no topic is
// configured.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		onSuccess: cfg.Notifications.OnSuccess,
	}
}

// Enabled reports whether svc actually delivers messages.
func Enabled(svc Service) bool {
	_, noop := svc.(noopService)
	return svc != nil && !noop
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
	onSuccess bool
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, summary JobSummary) error {
	warnings := strings.TrimSpace(summary.Warnings)
	if !n.onSuccess && warnings == "" {
		return nil
	}
	var body strings.Builder
	fmt.Fprintf(&body, "%s finished with stack %s in %s", summary.label(), summary.Stack, roundDuration(summary.Duration))
	if summary.Images > 0 {
		fmt.Fprintf(&body, "\nImages: %d generated", summary.Images)
		if summary.Uploads > 0 {
			fmt.Fprintf(&body, ", %d uploaded", summary.Uploads)
		}
	}
	msg := message{
		title: "Shotline - Job Complete",
		tags:  []string{"shotline", "job", "completed"},
	}
	if warnings != "" {
		msg.title = "Shotline - Job Complete (with warnings)"
		msg.tags = []string{"shotline", "job", "warning"}
		fmt.Fprintf(&body, "\nWarnings: %s", warnings)
	}
	msg.body = body.String()
	return n.send(ctx, msg)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, summary JobSummary, err error) error {
	reason := "unknown error"
	if err != nil {
		reason = strings.TrimSpace(err.Error())
	}
	return n.send(ctx, message{
		title:    "Shotline - Job Failed",
		body:     fmt.Sprintf("%s failed with stack %s after %s\n%s", summary.label(), summary.Stack, roundDuration(summary.Duration), reason),
		tags:     []string{"shotline", "job", "error"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, message{
		title:    "Shotline - Test",
		body:     "Notification delivery is working",
		tags:     []string{"shotline", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", msg.title)
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" {
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

func roundDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < 0 {
		d = 0
	}
	return d.String()
}

type noopService struct{}

func (noopService) NotifyJobCompleted(context.Context, JobSummary) error     { return nil }
func (noopService) NotifyJobFailed(context.Context, JobSummary, error) error { return nil }
func (noopService) TestNotification(context.Context) error                  { return nil }
