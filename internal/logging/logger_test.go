package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "grouparchive.log")

	logger, err := New(path, "grouparchive")
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("page stored")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(string(data))
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %q", line)
	}
	if entry["msg"] != "page stored" || entry["command"] != "grouparchive" {
		t.Errorf("entry = %v", entry)
	}
	if run, _ := entry["run"].(string); run == "" {
		t.Error("missing run id")
	}
}
