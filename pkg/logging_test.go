package bitwatch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVerboseLevel(t *testing.T) {
	testCases := []struct {
		verbose int
		quiet   bool
		want    string
	}{
		{0, false, "warn"},
		{1, false, "info"},
		{2, false, "debug"},
		{5, false, "debug"},
		{3, true, "error"},
	}
	for _, tc := range testCases {
		if got := VerboseLevel(tc.verbose, tc.quiet); got != tc.want {
			t.Errorf("VerboseLevel(%d, %v) = %s, expected %s", tc.verbose, tc.quiet, got, tc.want)
		}
	}
}

func TestNewLogger_JSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bitwatch.log")
	logger, err := NewLogger(LogConfig{Level: "info", Format: "json", OutputPath: path})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Debug("hidden")
	logger.Info("Run finished", rootField(Root{Path: "/data"}))
	logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 log line at info level, got %d: %s", len(lines), data)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q: %v", lines[0], err)
	}
	if entry["msg"] != "Run finished" || entry["root"] != "/data" {
		t.Errorf("Unexpected log entry: %v", entry)
	}
}

func TestNewLogger_BadLevelDefaultsToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bitwatch.log")
	logger, err := NewLogger(LogConfig{Level: "chatty", Format: "console", OutputPath: path})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if !logger.Core().Enabled(0) || logger.Core().Enabled(-1) {
		t.Error("Expected an unknown level to fall back to info")
	}
}
