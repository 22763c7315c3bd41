package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_InvalidLevel(t *testing.T) {
	if _, err := NewLogger(Config{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewLogger_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "veille.log")

	log, err := NewLogger(Config{Level: "debug", File: FileConfig{Path: path}})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	log.Info("file sink check")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "file sink check") {
		t.Errorf("log file missing message, got %q", data)
	}
	if strings.Contains(string(data), "\x1b[") {
		t.Errorf("log file contains color codes: %q", data)
	}
}
