// Package consts defines cross-module constants used throughout the application.
package consts

import (
	"sync"
	"time"
)

// ServiceName is the application service name
const ServiceName = "codecrow"

// Project information constants
const (
	// ProjectName is the display name of the project
	ProjectName = "CodeCrow"

	// ProjectURL is the repository URL
	ProjectURL = "https://github.com/rostilos/CodeCrow"
)

// Analysis defaults
const (
	// DefaultLockTTL bounds how long an abandoned lock row can block a target
	DefaultLockTTL = 30 * time.Minute

	// DefaultLockWaitMinutes is how long a request waits for a busy target
	DefaultLockWaitMinutes = 5

	// DefaultLockPollInterval is the delay between acquisition attempts while waiting
	DefaultLockPollInterval = 2 * time.Second

	// DefaultAITimeout is the transport timeout for one AI service call
	DefaultAITimeout = 10 * time.Minute

	// DefaultLockCleanupSchedule purges expired lock rows every ten minutes
	DefaultLockCleanupSchedule = "*/10 * * * *"

	// CommentMarker tags every summary comment posted to a VCS
	CommentMarker = "<!-- codecrow-analysis -->"
)

// Build information - set via ldflags during build
var (
	// Version is the application version
	Version = "dev"

	// BuildTime is the build timestamp
	BuildTime = "unknown"

	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

var (
	startedAt   time.Time
	startedOnce sync.Once
)

// SetStartedAt records the server start time (can only be called once)
func SetStartedAt(t time.Time) {
	startedOnce.Do(func() {
		startedAt = t
	})
}

// GetUptime returns the duration since server started
func GetUptime() time.Duration {
	if startedAt.IsZero() {
		return 0
	}
	return time.Since(startedAt)
}
