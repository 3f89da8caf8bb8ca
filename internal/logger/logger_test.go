package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNewProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New("production", "info", &buf)

	log.WithSessionID("abc").SagaStep("create_patient", 7, 0)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "saga_step" {
		t.Errorf("Expected msg saga_step, got %v", entry["msg"])
	}
	if entry["session_id"] != "abc" {
		t.Errorf("Expected session_id abc, got %v", entry["session_id"])
	}
	if entry["patient_id"] != float64(7) {
		t.Errorf("Expected patient_id 7, got %v", entry["patient_id"])
	}
}

func TestNewDevelopmentWritesTextAtDebug(t *testing.T) {
	var buf bytes.Buffer
	log := New("Development", "error", &buf)

	log.BackendRequest("POST", "/api/patients", 200, 1.5)

	out := buf.String()
	if !strings.Contains(out, "msg=backend_request") {
		t.Errorf("Expected text handler output with debug entry, got %q", out)
	}
}

func TestLevelFiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	log := New("production", "warn", &buf)

	log.SagaStep("upload_image", 1, 2)
	if buf.Len() != 0 {
		t.Errorf("Expected info entry to be filtered, got %q", buf.String())
	}

	log.WithSaga("image_submission").SagaError("upload_image", errors.New("boom"))
	if !strings.Contains(buf.String(), `"error":"boom"`) {
		t.Errorf("Expected error entry, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}
