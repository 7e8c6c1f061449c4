package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_Formats(t *testing.T) {
	var buf bytes.Buffer
	WithComponent(New(&buf, "info", "json"), "session").Info("bound", "source", "a.flv")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("json output not parseable: %v (%q)", err, buf.String())
	}
	if entry["component"] != "session" || entry["source"] != "a.flv" {
		t.Errorf("entry = %v", entry)
	}

	buf.Reset()
	New(&buf, "info", "text").Info("bound")
	if !strings.Contains(buf.String(), "msg=bound") {
		t.Errorf("text output = %q", buf.String())
	}

	buf.Reset()
	New(&buf, "warn", "json").Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken("short"); got != "****" {
		t.Errorf("SanitizeToken(short) = %q", got)
	}
	if got := SanitizeToken("abcdefghijkl"); got != "abcd...ijkl" {
		t.Errorf("SanitizeToken = %q", got)
	}
}
