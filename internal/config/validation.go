package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/rostilos/CodeCrow-sub008/internal/git/provider"
	_ "github.com/rostilos/CodeCrow-sub008/internal/git/providers" // registers provider types
	"github.com/rostilos/CodeCrow-sub008/pkg/errors"
)

// MinJWTSecretLength is the minimum required length for JWT secret (256 bits for HS256)
const MinJWTSecretLength = 32

// Validate checks the configuration and returns an ErrCodeConfigInvalid
// error listing every problem, or nil
func (c *Config) Validate() error {
	problems := c.Problems()
	if len(problems) == 0 {
		return nil
	}
	return errors.New(errors.ErrCodeConfigInvalid, "invalid configuration: "+strings.Join(problems, "; ")).
		WithDetails(problems)
}

// Problems returns one message per configuration error
func (c *Config) Problems() []string {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port %d is out of range", c.Server.Port)
	}
	if c.Server.Workers <= 0 {
		add("server.workers must be positive")
	}

	switch c.Database.Driver {
	case "", "sqlite", "postgres":
	default:
		add("database.driver %q is not supported (sqlite, postgres)", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		add("database.dsn is required for postgres")
	}

	if c.AI.Endpoint == "" {
		add("ai.endpoint is required")
	} else if u, err := url.Parse(c.AI.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		add("ai.endpoint %q is not an absolute URL", c.AI.Endpoint)
	}
	if c.AI.TimeoutMinutes <= 0 {
		add("ai.timeout_minutes must be positive")
	}

	if c.Analysis.LockTTLMinutes <= 0 {
		add("analysis.lock_ttl_minutes must be positive")
	}
	if c.Analysis.LockWaitMinutes <= 0 {
		add("analysis.lock_wait_minutes must be positive")
	}
	if c.Analysis.PollIntervalSeconds <= 0 {
		add("analysis.poll_interval_seconds must be positive")
	}
	if c.Analysis.LockCleanupSchedule != "" {
		if _, err := cron.ParseStandard(c.Analysis.LockCleanupSchedule); err != nil {
			add("analysis.lock_cleanup_schedule: %v", err)
		}
	}

	if err := ValidateJWTSecret(c.Auth.JWTSecret); err != nil {
		add("%s", err.Message)
	}

	known := make(map[string]bool)
	for _, name := range provider.Names() {
		known[name] = true
	}
	seen := make(map[string]bool)
	for i, p := range c.Providers {
		switch {
		case !known[p.Type]:
			add("providers[%d].type %q is not supported", i, p.Type)
		case seen[p.Type]:
			add("providers[%d]: provider %q is configured twice", i, p.Type)
		}
		seen[p.Type] = true
		if p.Token == "" {
			add("providers[%d].token is required", i)
		}
	}

	ids := make(map[uint]bool)
	for i, p := range c.Projects {
		if p.ID == 0 {
			add("projects[%d].id is required", i)
		} else if ids[p.ID] {
			add("projects[%d]: id %d is used twice", i, p.ID)
		}
		ids[p.ID] = true
		if !seen[p.Provider] {
			add("projects[%d].provider %q has no providers entry", i, p.Provider)
		}
		if p.Owner == "" || p.Repo == "" {
			add("projects[%d]: owner and repo are required", i)
		}
	}

	problems = append(problems, c.Notifications.problems()...)

	return problems
}

func (n *NotificationConfig) problems() []string {
	var problems []string
	absolute := func(raw string) bool {
		u, err := url.Parse(raw)
		return err == nil && u.Scheme != "" && u.Host != ""
	}

	switch n.Channel {
	case NotificationChannelNone:
		return nil
	case NotificationChannelWebhook:
		if !absolute(n.Webhook.URL) {
			problems = append(problems, "notifications.webhook.url must be an absolute URL")
		}
	case NotificationChannelSlack:
		if !absolute(n.Slack.WebhookURL) {
			problems = append(problems, "notifications.slack.webhook_url must be an absolute URL")
		}
	default:
		problems = append(problems, fmt.Sprintf("notifications.channel %q is not supported (webhook, slack)", n.Channel))
	}

	for _, e := range n.Events {
		switch e {
		case NotificationEventAnalysisFailed, NotificationEventAnalysisCompleted, NotificationEventLockTimeout:
		default:
			problems = append(problems, fmt.Sprintf("notifications.events: unknown event %q", e))
		}
	}
	return problems
}

// ValidateJWTSecret checks the API signing secret. An empty secret is
// allowed and disables the authenticated API routes.
func ValidateJWTSecret(secret string) *errors.AppError {
	if secret == "" {
		return nil
	}
	if strings.TrimSpace(secret) == "" {
		return errors.New(errors.ErrCodeJWTSecretInvalid, "auth.jwt_secret cannot be blank")
	}
	if len(secret) < MinJWTSecretLength {
		return errors.New(errors.ErrCodeJWTSecretInvalid,
			fmt.Sprintf("auth.jwt_secret must be at least %d characters long (HS256 requires 256 bits)", MinJWTSecretLength))
	}
	return nil
}
