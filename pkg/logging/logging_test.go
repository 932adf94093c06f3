package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{"INFO", log.InfoLevel},
		{"warn", log.WarnLevel},
		{"warning", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"fatal", log.FatalLevel},
		{"unknown", log.InfoLevel},
		{"", log.InfoLevel},
	}

	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNew_WritesOutput(t *testing.T) {
	t.Setenv(LevelEnv, "")

	var buf bytes.Buffer
	logger := New(Options{Level: "debug", Output: &buf, Prefix: "test"})
	logger.Debug("scrubbed", "findings", 3)

	if !strings.Contains(buf.String(), "scrubbed") || !strings.Contains(buf.String(), "findings=3") {
		t.Errorf("output = %q, want message and key/value", buf.String())
	}
}

func TestNew_EnvOverride(t *testing.T) {
	t.Setenv(LevelEnv, "error")

	var buf bytes.Buffer
	logger := New(Options{Level: "debug", Output: &buf})
	logger.Info("dropped")

	if buf.Len() != 0 {
		t.Errorf("output = %q, want nothing below error level", buf.String())
	}
	if logger.GetLevel() != log.ErrorLevel {
		t.Errorf("GetLevel() = %v, want error", logger.GetLevel())
	}
}

func TestNew_JSON(t *testing.T) {
	t.Setenv(LevelEnv, "")

	var buf bytes.Buffer
	logger := New(Options{Output: &buf, JSON: true})
	logger.Info("ready", "port", 7676)

	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") || !strings.Contains(buf.String(), `"port":7676`) {
		t.Errorf("output = %q, want JSON line", buf.String())
	}
}

func TestNewFile(t *testing.T) {
	t.Setenv(LevelEnv, "")

	path := filepath.Join(t.TempDir(), "logs", "piiscrubd.log")
	logger, closer, err := NewFile(path, Options{Level: "info"})
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	logger.Info("started")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "started") {
		t.Errorf("log file = %q, want message", data)
	}
}

func TestDiscard(t *testing.T) {
	Discard().Error("nothing")
}
