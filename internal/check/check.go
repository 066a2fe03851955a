// Package check verifies a CodeCrow installation before the server starts.
// It checks the configuration file, validates its content and optionally
// pings the database.
package check

import (
	"os"

	"github.com/rostilos/CodeCrow-sub008/internal/config"
)

// CheckResult represents the result of an environment check
type CheckResult struct {
	// Success indicates whether all required checks passed
	Success bool
	// Errors contains critical errors that prevent server startup
	Errors []string
	// Warnings contains non-critical issues that don't block startup
	Warnings []string
	// Suggestions contains helpful tips for fixing issues
	Suggestions []string

	// Config is the loaded configuration, nil when it could not be read
	Config *config.Config
}

func (r *CheckResult) fail(msg string) {
	r.Success = false
	r.Errors = append(r.Errors, msg)
}

func (r *CheckResult) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// ConfirmFunc asks the user a yes/no question
type ConfirmFunc func(question string) (bool, error)

// Checker runs the environment checks for one configuration file
type Checker struct {
	configPath string
	// interactive offers to create a missing config file
	interactive bool
	// database also opens and pings the configured database
	database bool
	confirm  ConfirmFunc
}

// Option configures a Checker
type Option func(*Checker)

// WithInteractive enables prompting to create a missing configuration file
func WithInteractive(confirm ConfirmFunc) Option {
	return func(c *Checker) {
		c.interactive = true
		if confirm != nil {
			c.confirm = confirm
		}
	}
}

// WithDatabase enables the database connectivity check
func WithDatabase() Option {
	return func(c *Checker) { c.database = true }
}

// NewChecker creates a new environment checker
func NewChecker(configPath string, opts ...Option) *Checker {
	if configPath == "" {
		configPath = config.DefaultPath
	}
	c := &Checker{configPath: configPath, confirm: confirmCreate}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConfigPath returns the checked configuration file path
func (c *Checker) ConfigPath() string {
	return c.configPath
}

// Run executes every check and collects the results
func (c *Checker) Run() *CheckResult {
	result := &CheckResult{Success: true}

	if !c.checkConfigFile(result) {
		return result
	}

	cfg, ok := c.validateConfig(result)
	if !ok {
		return result
	}
	result.Config = cfg

	c.checkWarnings(cfg, result)
	if c.database {
		c.checkDatabase(cfg, result)
	}
	return result
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
