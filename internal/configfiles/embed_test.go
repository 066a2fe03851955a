package configfiles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rostilos/CodeCrow-sub008/internal/config"
)

// TestGetConfigExample tests the GetConfigExample function
func TestGetConfigExample(t *testing.T) {
	content, err := GetConfigExample()
	if err != nil {
		t.Fatalf("GetConfigExample failed: %v", err)
	}
	if len(content) == 0 {
		t.Error("GetConfigExample returned empty content")
	}
}

// TestConfigExampleLoads checks the template parses and is valid once
// credentials are supplied
func TestConfigExampleLoads(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("CODECROW_JWT_SECRET", "0123456789abcdef0123456789abcdef")

	path := filepath.Join(t.TempDir(), "config", "codecrow.yaml")
	created, err := WriteConfigExample(path)
	if err != nil {
		t.Fatalf("WriteConfigExample failed: %v", err)
	}
	if !created {
		t.Fatal("Expected the example to be created")
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if problems := cfg.Problems(); len(problems) != 0 {
		t.Errorf("Expected no problems, got %v", problems)
	}
	if len(cfg.Projects) != 1 || cfg.Projects[0].Repo != "api" {
		t.Errorf("Unexpected projects: %+v", cfg.Projects)
	}
}

// TestWriteConfigExample_KeepsExisting tests that an existing file is not overwritten
func TestWriteConfigExample_KeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codecrow.yaml")
	if err := os.WriteFile(path, []byte("server: {}\n"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	created, err := WriteConfigExample(path)
	if err != nil {
		t.Fatalf("WriteConfigExample failed: %v", err)
	}
	if created {
		t.Error("Existing file should not be reported as created")
	}

	data, _ := os.ReadFile(path)
	if string(data) != "server: {}\n" {
		t.Errorf("Existing file was modified: %q", data)
	}
}
