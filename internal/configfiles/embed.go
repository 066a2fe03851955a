// Package configfiles provides the embedded example configuration used to
// initialize a new installation.
package configfiles

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed codecrow.example.yaml
var configFS embed.FS

// GetConfigExample returns the example configuration file content
func GetConfigExample() ([]byte, error) {
	return configFS.ReadFile("codecrow.example.yaml")
}

// WriteConfigExample writes the example configuration to path, creating
// parent directories. An existing file is left untouched and reported with
// created=false.
func WriteConfigExample(path string) (created bool, err error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	data, err := GetConfigExample()
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}
