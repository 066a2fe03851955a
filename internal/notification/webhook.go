package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rostilos/CodeCrow-sub008/internal/config"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
)

// SignatureHeader carries the HMAC-SHA256 of the body when a secret is set
const SignatureHeader = "X-CodeCrow-Signature"

// WebhookNotifier sends notifications via HTTP webhook
type WebhookNotifier struct {
	config *config.WebhookNotificationConfig
	client *http.Client
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(cfg *config.WebhookNotificationConfig) *WebhookNotifier {
	return &WebhookNotifier{
		config: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the notifier name
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// Send posts the event as JSON to the configured URL
func (w *WebhookNotifier) Send(ctx context.Context, event *Event) error {
	if w.config.URL == "" {
		return fmt.Errorf("webhook URL is not configured")
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "CodeCrow-Notifier/1.0")
	if w.config.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(w.config.Secret, body))
	}

	logger.Debug("Sending webhook notification",
		zap.String("url", w.config.URL),
		zap.String("event_type", string(event.Type)),
	)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-success status: %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Sign computes the "sha256=<hex>" signature receivers verify
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
