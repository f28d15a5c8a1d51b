package main

import (
	"cloudpico-notifier/internal/app"
	"cloudpico-notifier/internal/config"
	"cloudpico-notifier/internal/logging"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

var version = "dev"
var appName = "cloudpico-notifier"

func main() {
	os.Exit(run())
}

func run() (code int) {
	if err := config.LoadDotEnv(os.Getenv("DOTENV_PATH")); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}

	logger, logFile, err := logging.New(cfg, version, appName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging error: %v\n", err)
		return 1
	}
	defer logFile.Close()
	slog.SetDefault(logger)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("fatal error", "panic", r)
			code = 1
		}
	}()

	slog.Info("starting",
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
		"log_file", cfg.LogFile,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal error", "err", err)
		return 1
	}

	slog.Info("interrupted, shutting down")
	return 0
}
