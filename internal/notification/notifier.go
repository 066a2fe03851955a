// Package notification reports the outcome of background analyses to an
// external channel (a signed JSON webhook or Slack).
package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rostilos/CodeCrow-sub008/internal/config"
	"github.com/rostilos/CodeCrow-sub008/internal/orchestrator"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
)

// sendTimeout bounds one notification delivery
const sendTimeout = 15 * time.Second

// EventType represents the type of notification event
type EventType string

const (
	EventAnalysisFailed    EventType = config.NotificationEventAnalysisFailed
	EventAnalysisCompleted EventType = config.NotificationEventAnalysisCompleted
	EventLockTimeout       EventType = config.NotificationEventLockTimeout
)

// Event describes the outcome of one analysis
type Event struct {
	Type       EventType `json:"event_type"`
	ProjectID  uint      `json:"project_id"`
	Project    string    `json:"project"`
	Provider   string    `json:"provider"`
	Repo       string    `json:"repo"`
	PRNumber   int       `json:"pr_number"`
	CommitHash string    `json:"commit_hash,omitempty"`

	AnalysisID  uint `json:"analysis_id,omitempty"`
	TotalIssues int  `json:"total_issues,omitempty"`
	HighIssues  int  `json:"high_issues,omitempty"`

	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`

	Extra map[string]any `json:"extra,omitempty"`
}

// Notifier is the interface that all notification channels must implement
type Notifier interface {
	// Name returns the name of the notifier (e.g., "webhook", "slack")
	Name() string
	// Send sends a notification for the given event
	Send(ctx context.Context, event *Event) error
}

// Manager filters events by the configured list and sends them through
// the configured channel
type Manager struct {
	cfg      config.NotificationConfig
	notifier Notifier
	log      *zap.Logger
}

// NewManager creates a notification manager. With no channel configured
// every Notify call is a no-op.
func NewManager(cfg config.NotificationConfig) *Manager {
	m := &Manager{cfg: cfg, log: logger.Named("notification")}

	switch cfg.Channel {
	case config.NotificationChannelNone:
	case config.NotificationChannelWebhook:
		m.notifier = NewWebhookNotifier(&m.cfg.Webhook)
	case config.NotificationChannelSlack:
		m.notifier = NewSlackNotifier(&m.cfg.Slack)
	default:
		m.log.Warn("Unknown notification channel", zap.String("channel", string(cfg.Channel)))
	}
	return m
}

// IsEnabled returns true if a notifier is configured
func (m *Manager) IsEnabled() bool {
	return m.notifier != nil
}

// Notify sends event if its type is enabled
func (m *Manager) Notify(ctx context.Context, event *Event) error {
	if m.notifier == nil {
		return nil
	}
	if !m.cfg.HasEvent(string(event.Type)) {
		m.log.Debug("Event type not in notification list, skipping", zap.String("event_type", string(event.Type)))
		return nil
	}

	if err := m.notifier.Send(ctx, event); err != nil {
		m.log.Error("Failed to send notification",
			zap.String("channel", m.notifier.Name()),
			zap.String("event_type", string(event.Type)),
			zap.Uint(logger.FieldProjectID, event.ProjectID),
			zap.Int(logger.FieldPRNumber, event.PRNumber),
			zap.Error(err),
		)
		return fmt.Errorf("failed to send notification via %s: %w", m.notifier.Name(), err)
	}

	m.log.Info("Notification sent",
		zap.String("channel", m.notifier.Name()),
		zap.String("event_type", string(event.Type)),
		zap.Uint(logger.FieldProjectID, event.ProjectID),
		zap.Int(logger.FieldPRNumber, event.PRNumber),
	)
	return nil
}

// OnResult notifies about a finished background run. It matches the
// dispatcher completion hook and never fails the caller.
func (m *Manager) OnResult(req orchestrator.Request, res *orchestrator.Result) {
	event := EventFromResult(req, res)
	if event == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	_ = m.Notify(ctx, event)
}

// EventFromResult maps a run outcome to an event. Cache hits produce no
// event.
func EventFromResult(req orchestrator.Request, res *orchestrator.Result) *Event {
	if res == nil {
		return nil
	}

	event := &Event{
		PRNumber:   req.PRNumber,
		CommitHash: req.CommitHash,
		Timestamp:  time.Now().UTC(),
	}
	switch res.Outcome {
	case orchestrator.OutcomeSuccess:
		event.Type = EventAnalysisCompleted
	case orchestrator.OutcomeFailed:
		event.Type = EventAnalysisFailed
	case orchestrator.OutcomeLockTimeout:
		event.Type = EventLockTimeout
		event.Extra = map[string]any{"lock_key": res.LockKey}
	default:
		return nil
	}

	if p := req.Project; p != nil {
		event.ProjectID = p.ID
		event.Project = p.Name
		event.Provider = p.Provider
		event.Repo = p.Owner + "/" + p.Repo
	}
	if a := res.Analysis; a != nil {
		event.AnalysisID = a.ID
		event.CommitHash = a.CommitHash
		event.TotalIssues = a.TotalIssues
		event.HighIssues = a.HighSeverityCount
	}
	if res.Err != nil {
		event.ErrorMessage = res.Err.Error()
	}
	if len(res.Warnings) > 0 {
		if event.Extra == nil {
			event.Extra = map[string]any{}
		}
		event.Extra["warnings"] = res.Warnings
	}
	return event
}
