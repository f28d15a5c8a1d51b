package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"

	"cloudpico-notifier/internal/config"
)

// TimeFormat is used by every handler so console and file lines line up.
const TimeFormat = "2006-01-02 15:04:05.000"

// New returns a logger writing to stdout and to cfg.LogFile. The returned
// closer releases the log file.
func New(cfg config.Config, version string, appName string) (*slog.Logger, io.Closer, error) {
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", cfg.LogFile, err)
	}
	return NewWithWriters(cfg, version, appName, os.Stdout, f), f, nil
}

// NewWithWriters builds the same logger as New on arbitrary writers.
func NewWithWriters(cfg config.Config, version string, appName string, console, file io.Writer) *slog.Logger {
	consoleHandler := tint.NewHandler(console, &tint.Options{
		Level:      cfg.LogLevel,
		AddSource:  version == "dev",
		TimeFormat: TimeFormat,
		NoColor:    cfg.AppEnv == "prod",
	})

	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{
		Level: cfg.LogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(slog.TimeKey, a.Value.Time().Format(TimeFormat))
			}
			return a
		},
	})

	logger := slog.New(slogmulti.Fanout(consoleHandler, fileHandler))
	if version == "dev" {
		return logger.With("app", appName)
	}
	return logger.With(
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
	)
}
