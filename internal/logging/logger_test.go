package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"cloudpico-notifier/internal/config"
)

func TestNewWithWriters_WritesBothSinks(t *testing.T) {
	var console, file bytes.Buffer
	cfg := config.Config{AppEnv: "prod", LogLevel: slog.LevelInfo}

	logger := NewWithWriters(cfg, "1.0.0", "notifier", &console, &file)
	logger.Info("notification sent", "status", 200)
	logger.Debug("hidden")

	for name, buf := range map[string]*bytes.Buffer{"console": &console, "file": &file} {
		out := buf.String()
		if !strings.Contains(out, "notification sent") {
			t.Errorf("%s output %q missing message", name, out)
		}
		if strings.Contains(out, "hidden") {
			t.Errorf("%s output %q contains debug record below level", name, out)
		}
		if !strings.Contains(out, "INF") && !strings.Contains(out, "INFO") {
			t.Errorf("%s output %q missing level label", name, out)
		}
	}

	millis := regexp.MustCompile(`time=\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3}`)
	if !millis.MatchString(file.String()) {
		t.Errorf("file output %q lacks millisecond timestamp", file.String())
	}
	if !strings.Contains(file.String(), "version=1.0.0") {
		t.Errorf("file output %q missing version attribute", file.String())
	}
}

func TestNew_CreatesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifier.log")
	cfg := config.Config{AppEnv: "prod", LogLevel: slog.LevelInfo, LogFile: path}

	logger, closer, err := New(cfg, "1.0.0", "notifier")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Error("sensor read failed")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), "level=ERROR") {
		t.Errorf("log file %q missing error record", string(b))
	}
}

func TestNew_BadPath(t *testing.T) {
	cfg := config.Config{LogFile: filepath.Join(t.TempDir(), "missing", "dir", "x.log")}
	if _, _, err := New(cfg, "dev", "notifier"); err == nil {
		t.Fatal("New() error = nil, want error for unwritable path")
	}
}
