// Package idgen provides ID generation utilities for the application.
// It encapsulates the ID generation implementation so callers never depend on xid directly.
package idgen

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"strings"

	"github.com/rs/xid"
)

// NewID generates a new globally unique, sortable 20-character identifier.
func NewID() string {
	return xid.New().String()
}

// NewRunID generates an ID for one orchestration run.
func NewRunID() string {
	return NewID()
}

// NewRequestID generates a unique ID for request tracking.
func NewRequestID() string {
	return NewID()
}

// NewInstanceID builds the owner identifier recorded on analysis locks.
// The hostname keeps lock rows readable when diagnosing a stuck slot; the xid suffix
// keeps two processes on the same host distinct.
func NewInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	host = strings.ReplaceAll(host, " ", "-")
	return host + "-" + NewID()
}

// NewSecureSecret generates a cryptographically secure random string of the given length.
// Uses URL-safe base64 encoding. Used for generated JWT secrets.
func NewSecureSecret(length int) string {
	byteLength := (length*3 + 3) / 4
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "please-generate-a-secure-random-secret"
	}
	encoded := base64.URLEncoding.EncodeToString(buf)
	if len(encoded) > length {
		encoded = encoded[:length]
	}
	return encoded
}
