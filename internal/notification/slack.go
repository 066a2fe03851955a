package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rostilos/CodeCrow-sub008/internal/config"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
)

// SlackNotifier sends notifications via Slack incoming webhook
type SlackNotifier struct {
	config *config.SlackNotificationConfig
	client *http.Client
}

// SlackMessage represents a Slack message payload
type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment represents a Slack message attachment
type SlackAttachment struct {
	Color     string       `json:"color"`
	Title     string       `json:"title"`
	Text      string       `json:"text,omitempty"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

// SlackField represents a field in Slack attachment
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(cfg *config.SlackNotificationConfig) *SlackNotifier {
	return &SlackNotifier{
		config: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the notifier name
func (s *SlackNotifier) Name() string {
	return "slack"
}

// Send sends a notification to Slack
func (s *SlackNotifier) Send(ctx context.Context, event *Event) error {
	if s.config.WebhookURL == "" {
		return fmt.Errorf("Slack webhook URL is not configured")
	}

	body, err := json.Marshal(s.buildMessage(event))
	if err != nil {
		return fmt.Errorf("failed to marshal Slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create Slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	logger.Debug("Sending Slack notification", zap.String("event_type", string(event.Type)))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Slack request: %w", err)
	}
	defer resp.Body.Close()

	// Slack returns "ok" on success
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK || string(respBody) != "ok" {
		return fmt.Errorf("Slack returned error: status=%d, body=%s", resp.StatusCode, string(respBody))
	}
	return nil
}

// buildMessage builds a Slack message with rich formatting
func (s *SlackNotifier) buildMessage(event *Event) *SlackMessage {
	var emoji, color, status string
	switch event.Type {
	case EventAnalysisCompleted:
		emoji, color, status = ":white_check_mark:", "good", "completed"
	case EventLockTimeout:
		emoji, color, status = ":hourglass:", "warning", "timed out waiting for lock"
	default:
		emoji, color, status = ":x:", "danger", "failed"
	}

	fields := []SlackField{
		{Title: "Repository", Value: event.Repo, Short: true},
		{Title: "Pull request", Value: fmt.Sprintf("#%d", event.PRNumber), Short: true},
	}
	if event.CommitHash != "" {
		fields = append(fields, SlackField{Title: "Commit", Value: shortSHA(event.CommitHash), Short: true})
	}
	if event.Type == EventAnalysisCompleted {
		fields = append(fields, SlackField{
			Title: "Issues",
			Value: fmt.Sprintf("%d (%d high)", event.TotalIssues, event.HighIssues),
			Short: true,
		})
	}
	if event.ErrorMessage != "" {
		fields = append(fields, SlackField{
			Title: "Error",
			Value: truncateText(event.ErrorMessage, 500),
		})
	}

	msg := &SlackMessage{
		Channel: s.config.Channel,
		Text:    fmt.Sprintf("%s *Analysis %s*", emoji, status),
		Attachments: []SlackAttachment{
			{
				Color:     color,
				Title:     fmt.Sprintf("%s #%d", event.Repo, event.PRNumber),
				Fields:    fields,
				Footer:    "CodeCrow",
				Timestamp: event.Timestamp.Unix(),
			},
		},
	}
	return msg
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}

// truncateText truncates text to a maximum length
func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen-3] + "..."
}
