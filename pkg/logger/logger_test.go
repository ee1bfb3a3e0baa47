package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shellbridge/pkg/config"
)

func TestLoggerJSONEntryShape(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.With("component", "bridge.broker").Info("Reply sent", "message_id", "42", "ok", true)

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}

	if entry.Level != "info" {
		t.Fatalf("level = %q, want %q", entry.Level, "info")
	}
	if entry.Message != "Reply sent" {
		t.Fatalf("message = %q, want %q", entry.Message, "Reply sent")
	}
	if entry.Component != "bridge.broker" {
		t.Fatalf("component = %q, want %q", entry.Component, "bridge.broker")
	}
	if entry.Timestamp == "" {
		t.Fatal("expected timestamp")
	}
	if got := entry.Fields["message_id"]; got != "42" {
		t.Fatalf("fields.message_id = %v, want %q", got, "42")
	}
	if got := entry.Fields["ok"]; got != true {
		t.Fatalf("fields.ok = %v, want true", got)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Info("Ignored")
	if got := strings.TrimSpace(out.String()); got != "" {
		t.Fatalf("expected no output for info, got %q", got)
	}

	log.Error("Kept")
	if got := strings.TrimSpace(out.String()); got == "" {
		t.Fatal("expected output for error")
	}
}

func TestLoggerEnvironmentOverrides(t *testing.T) {
	t.Setenv("SHELLBRIDGE_LOG_LEVEL", "debug")
	t.Setenv("SHELLBRIDGE_LOG_FORMAT", "text")
	defer unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Debug("Debug enabled", "component", "test")
	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected debug output with env override")
	}
	if strings.HasPrefix(line, "{") {
		t.Fatalf("expected text format override, got %q", line)
	}
}

func TestLoggerDefaultsToTextFormat(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Info("Default format")
	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected log output")
	}
	if strings.HasPrefix(line, "{") {
		t.Fatalf("expected text format by default, got %q", line)
	}
}

func TestLoggerRedactsSessionSecrets(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.With("cookie", "NEXT_LOCALE=en").Info("Session served",
		"token", "secret-token",
		slog.Group("session", "kubeconfig", "apiVersion: v1", "user", "alice"),
	)

	raw := out.String()
	for _, secret := range []string{"secret-token", "apiVersion: v1", "NEXT_LOCALE=en"} {
		if strings.Contains(raw, secret) {
			t.Fatalf("log output leaked %q: %s", secret, raw)
		}
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	if got := entry.Fields["token"]; got != redacted {
		t.Fatalf("fields.token = %v, want %q", got, redacted)
	}
	group, ok := entry.Fields["session"].(map[string]any)
	if !ok {
		t.Fatalf("fields.session = %#v, want group", entry.Fields["session"])
	}
	if group["user"] != "alice" {
		t.Fatalf("fields.session.user = %v, want alice", group["user"])
	}
}

func TestNewWritesToFileOutput(t *testing.T) {
	unsetLoggingEnv(t)

	path := filepath.Join(t.TempDir(), "logs", "bridge.log")
	log, closer, err := New(config.LoggingConfig{Format: "json", Level: "info", Output: path})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	log.Info("Frame attached", "frame_id", "f-1")
	if err := closer.Close(); err != nil {
		t.Fatalf("close log file: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "Frame attached") {
		t.Fatalf("log file missing entry: %q", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	unsetLoggingEnv(t)

	if _, _, err := New(config.LoggingConfig{Format: "xml"}); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func unsetLoggingEnv(t *testing.T) {
	t.Helper()
	_ = os.Unsetenv("SHELLBRIDGE_LOG_LEVEL")
	_ = os.Unsetenv("SHELLBRIDGE_LOG_FORMAT")
	_ = os.Unsetenv("SHELLBRIDGE_LOG_ADD_SOURCE")
	_ = os.Unsetenv("SHELLBRIDGE_LOG_OUTPUT")
}
