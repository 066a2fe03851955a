package check

import (
	"fmt"

	"github.com/rostilos/CodeCrow-sub008/internal/config"
	"github.com/rostilos/CodeCrow-sub008/internal/database"
)

// validateConfig loads the configuration and records every validation problem
func (c *Checker) validateConfig(result *CheckResult) (*config.Config, bool) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		result.fail(fmt.Sprintf("Invalid %s: %v", c.configPath, err))
		return nil, false
	}

	problems := cfg.Problems()
	for _, p := range problems {
		result.fail(p)
	}
	return cfg, len(problems) == 0
}

// checkWarnings reports settings that work but are probably unintended
func (c *Checker) checkWarnings(cfg *config.Config, result *CheckResult) {
	if cfg.Auth.JWTSecret == "" {
		result.warn("auth.jwt_secret is empty: the analysis API is disabled, only webhooks are served")
	}
	for _, p := range cfg.Providers {
		if p.WebhookSecret == "" {
			result.warn(fmt.Sprintf("providers %s: webhook_secret is empty, webhook signatures are not verified", p.Type))
		}
	}
	if len(cfg.Projects) == 0 {
		result.warn("No projects configured: every webhook will be skipped")
	}
}

// checkDatabase opens the configured database and pings it
func (c *Checker) checkDatabase(cfg *config.Config, result *CheckResult) {
	if err := database.Init(cfg.Database); err != nil {
		result.fail(fmt.Sprintf("Database: %v", err))
		return
	}
	if err := database.HealthCheck(); err != nil {
		result.fail(fmt.Sprintf("Database: %v", err))
	}
}
