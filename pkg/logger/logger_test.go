package logger

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewSetsLevelAndFormat(t *testing.T) {
	cfg := LoggingConfig{Level: "debug", Format: "json", Output: "stdout"}
	log := New(cfg)
	if log.GetLevel().String() != "debug" {
		t.Fatalf("expected level debug, got %s", log.GetLevel())
	}
}

func TestNewCreatesLogFile(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(cwd)

	New(LoggingConfig{Level: "info", Output: "file", FilePrefix: "test"})
	if _, err := os.Stat(filepath.Join(dir, "logs", "test.log")); err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}
}

func TestNewDefaultFallsBackToInfo(t *testing.T) {
	log := NewDefault("test")
	if log.GetLevel().String() != "info" {
		t.Fatalf("expected default level info, got %s", log.GetLevel())
	}
}
