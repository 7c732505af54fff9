package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("store", &buf)
	if l == nil {
		t.Fatal("NewLogger returned nil")
	}
	if l.Component() != "store" {
		t.Errorf("Component = %q", l.Component())
	}
}

func TestNewLogger_NilWriter(t *testing.T) {
	l := NewLogger("store", nil)
	if l == nil {
		t.Fatal("NewLogger with nil writer returned nil")
	}
	// Should not panic on log call.
	l.Info("test message")
}

func TestLogger_Info(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("backup", &buf)
	l.Info("snapshot written", "path", "/tmp/x.db")

	output := buf.String()
	if !strings.Contains(output, "snapshot written") {
		t.Errorf("output missing message: %s", output)
	}
	if !strings.Contains(output, `"component":"backup"`) {
		t.Errorf("output missing component: %s", output)
	}

	// Should be valid JSON.
	var m map[string]any
	if err := json.Unmarshal([]byte(output), &m); err != nil {
		t.Errorf("invalid JSON: %v", err)
	}
	if m["path"] != "/tmp/x.db" {
		t.Errorf("path = %v", m["path"])
	}
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("store", &buf)

	l.Debug("debug msg")
	l.Warn("warn msg")
	l.Error("error msg")

	out := buf.String()
	for _, want := range []string{"debug msg", "warn msg", "error msg"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("store", &buf).With("db", "vault.db")
	l.Info("opened")

	if !strings.Contains(buf.String(), `"db":"vault.db"`) {
		t.Errorf("output missing persistent field: %s", buf.String())
	}
}

func TestNewLoggerWithHandler(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, nil)
	l := NewLoggerWithHandler("store", h)
	l.Info("text mode")

	if !strings.Contains(buf.String(), "text mode") {
		t.Errorf("output = %s", buf.String())
	}
}
