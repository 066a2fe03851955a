// Package config provides configuration management for the application.
// It supports YAML configuration files with environment variable overrides.
package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rostilos/CodeCrow-sub008/consts"
	"github.com/rostilos/CodeCrow-sub008/internal/database"
	"github.com/rostilos/CodeCrow-sub008/internal/git/provider"
	"github.com/rostilos/CodeCrow-sub008/internal/model"
	apperrors "github.com/rostilos/CodeCrow-sub008/pkg/errors"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
	"github.com/rostilos/CodeCrow-sub008/pkg/telemetry"
)

// DefaultPath is where the CLI looks for the configuration file
const DefaultPath = "config/codecrow.yaml"

// Default configuration values
const (
	defaultPort              = 8080
	defaultOTLPEndpoint      = "localhost:4317"
	defaultWorkers           = 4
	defaultQueueSize         = 100
	defaultRateLimit         = 10
	defaultRateBurst         = 20
	defaultTokenExpiryHours  = 24
	defaultMaxFileChecks     = 20
	defaultPollIntervalSecs  = 2
	defaultLockTTLMinutes    = 30
	defaultAITimeoutMinutes  = 10
	defaultOutputLanguage    = "en"
	defaultShutdownTimeout   = 30
	defaultRequestBodyLimit  = 10 << 20
	defaultListPageSize      = 20
	defaultListPageSizeLimit = 100
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  database.Config  `yaml:"database"`
	Logging   logger.Config    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	AI        AIConfig         `yaml:"ai"`
	Analysis  AnalysisConfig   `yaml:"analysis"`
	Auth      AuthConfig       `yaml:"auth"`
	Providers []ProviderConfig `yaml:"providers"`
	Projects  []ProjectConfig  `yaml:"projects"`

	Notifications NotificationConfig `yaml:"notifications"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Debug bool   `yaml:"debug"`

	// ShutdownTimeout is the graceful shutdown window in seconds
	ShutdownTimeout int `yaml:"shutdown_timeout"`
	// MaxBodyBytes caps webhook and API request bodies
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// RateLimit is the sustained requests per second allowed per client IP
	// on the API routes; 0 disables limiting
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	// Workers and QueueSize size the background pool for webhook analyses
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// AIConfig holds the AI service settings
type AIConfig struct {
	// Endpoint is the URL review requests are POSTed to
	Endpoint string `yaml:"endpoint"`
	// TimeoutMinutes bounds one AI exchange
	TimeoutMinutes int `yaml:"timeout_minutes"`
	// MaxAllowedTokens overrides per-project token limits when positive
	MaxAllowedTokens int `yaml:"max_allowed_tokens"`
	// OutputLanguage is an ISO language tag for AI output
	OutputLanguage string `yaml:"output_language"`
}

// AnalysisConfig holds lock and orchestration settings
type AnalysisConfig struct {
	InstanceID          string `yaml:"instance_id"` // generated when empty
	LockTTLMinutes      int    `yaml:"lock_ttl_minutes"`
	LockWaitMinutes     int    `yaml:"lock_wait_minutes"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	LockCleanupSchedule string `yaml:"lock_cleanup_schedule"` // cron expression
	MaxFileChecks       int    `yaml:"max_file_checks"`
}

// AuthConfig holds API authentication settings
type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret"`
	TokenExpiry int    `yaml:"expiry_hours"` // lifetime of tokens issued by the CLI
}

// ProviderConfig holds individual Git provider settings
type ProviderConfig struct {
	Type               string `yaml:"type"`                 // github, gitlab, gitea
	URL                string `yaml:"url"`                  // for self-hosted instances
	Token              string `yaml:"token"`                // access token
	WebhookSecret      string `yaml:"webhook_secret"`       // webhook secret for validation
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // skip SSL certificate verification (for self-signed certs)
}

// ProjectConfig binds a project id to a repository
type ProjectConfig struct {
	ID                uint   `yaml:"id"`
	Name              string `yaml:"name"`
	Namespace         string `yaml:"namespace"`
	Provider          string `yaml:"provider"`
	Owner             string `yaml:"owner"`
	Repo              string `yaml:"repo"`
	DefaultBranch     string `yaml:"default_branch"`
	MaxAnalysisTokens int    `yaml:"max_analysis_tokens"`
}

// NotificationChannel selects where analysis outcome notifications go
type NotificationChannel string

const (
	NotificationChannelNone    NotificationChannel = ""
	NotificationChannelWebhook NotificationChannel = "webhook"
	NotificationChannelSlack   NotificationChannel = "slack"
)

// Notification events
const (
	NotificationEventAnalysisFailed    = "analysis_failed"
	NotificationEventAnalysisCompleted = "analysis_completed"
	NotificationEventLockTimeout       = "lock_timeout"
)

// NotificationConfig configures notifications for background analyses
type NotificationConfig struct {
	Channel NotificationChannel       `yaml:"channel"`
	Events  []string                  `yaml:"events"`
	Webhook WebhookNotificationConfig `yaml:"webhook"`
	Slack   SlackNotificationConfig   `yaml:"slack"`
}

// WebhookNotificationConfig posts JSON events, signed with Secret when set
type WebhookNotificationConfig struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
}

// SlackNotificationConfig posts to a Slack incoming webhook
type SlackNotificationConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
}

// IsEnabled reports whether a channel is configured
func (n *NotificationConfig) IsEnabled() bool {
	return n.Channel != NotificationChannelNone
}

// HasEvent reports whether event should be sent
func (n *NotificationConfig) HasEvent(event string) bool {
	for _, e := range n.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            defaultPort,
			ShutdownTimeout: defaultShutdownTimeout,
			MaxBodyBytes:    defaultRequestBodyLimit,
			RateLimit:       defaultRateLimit,
			RateBurst:       defaultRateBurst,
			Workers:         defaultWorkers,
			QueueSize:       defaultQueueSize,
		},
		Database: database.Config{
			Driver: "sqlite",
			DSN:    database.DefaultDBPath,
		},
		Logging: logger.Config{
			Level:      "info",
			Format:     "text",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 5,
		},
		Telemetry: telemetry.Config{
			Enabled:     false,
			ServiceName: consts.ServiceName,
			OTLP: telemetry.OTLPConfig{
				Endpoint: defaultOTLPEndpoint,
				Insecure: true,
			},
		},
		AI: AIConfig{
			TimeoutMinutes: defaultAITimeoutMinutes,
			OutputLanguage: defaultOutputLanguage,
		},
		Analysis: AnalysisConfig{
			LockTTLMinutes:      defaultLockTTLMinutes,
			LockWaitMinutes:     consts.DefaultLockWaitMinutes,
			PollIntervalSeconds: defaultPollIntervalSecs,
			LockCleanupSchedule: consts.DefaultLockCleanupSchedule,
			MaxFileChecks:       defaultMaxFileChecks,
		},
		Auth: AuthConfig{
			TokenExpiry: defaultTokenExpiryHours,
		},
		Notifications: NotificationConfig{
			Events: []string{NotificationEventAnalysisFailed, NotificationEventLockTimeout},
		},
	}
}

// Load loads configuration from a YAML file with environment variable
// expansion, then applies CODECROW_* overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrap(apperrors.ErrCodeConfigNotFound, "config file not found: "+path, err)
		}
		return nil, apperrors.Wrap(apperrors.ErrCodeConfigNotFound, "failed to read config", err)
	}

	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeConfigParse, "failed to parse config", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default} patterns with
// environment variable values. Bare $VAR is left alone.
func expandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		parts := strings.SplitN(match[2:len(match)-1], ":-", 2)
		if value := os.Getenv(parts[0]); value != "" {
			return value
		}
		if len(parts) > 1 {
			return parts[1]
		}
		return ""
	})
}

// Address returns the server address string
func (c *ServerConfig) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// GetProvider returns provider configuration by type
func (c *Config) GetProvider(providerType string) *ProviderConfig {
	for i := range c.Providers {
		if c.Providers[i].Type == providerType {
			return &c.Providers[i]
		}
	}
	return nil
}

// ProviderOptions returns the options used to create each configured provider
func (c *Config) ProviderOptions() map[string]provider.ProviderOptions {
	opts := make(map[string]provider.ProviderOptions, len(c.Providers))
	for _, p := range c.Providers {
		opts[p.Type] = provider.ProviderOptions{
			Token:              p.Token,
			BaseURL:            p.URL,
			InsecureSkipVerify: p.InsecureSkipVerify,
		}
	}
	return opts
}

// ToModel converts a project entry to its database row
func (p *ProjectConfig) ToModel() *model.Project {
	branch := p.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	name := p.Name
	if name == "" {
		name = p.Repo
	}
	project := &model.Project{
		Name:              name,
		Namespace:         p.Namespace,
		Provider:          p.Provider,
		Owner:             p.Owner,
		Repo:              p.Repo,
		DefaultBranch:     branch,
		MaxAnalysisTokens: p.MaxAnalysisTokens,
	}
	project.ID = p.ID
	return project
}

// AITimeout returns the transport timeout of one AI exchange
func (c *AIConfig) AITimeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// LockTTL returns the lifetime of acquired locks
func (c *AnalysisConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// LockWait returns how long a request waits for a busy target
func (c *AnalysisConfig) LockWait() time.Duration {
	return time.Duration(c.LockWaitMinutes) * time.Minute
}

// PollInterval returns the delay between lock attempts while waiting
func (c *AnalysisConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// PageSize clamps a requested list page size
func PageSize(requested int) int {
	switch {
	case requested <= 0:
		return defaultListPageSize
	case requested > defaultListPageSizeLimit:
		return defaultListPageSizeLimit
	default:
		return requested
	}
}
