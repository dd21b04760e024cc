package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/retro-leaderboard/internal/app"
	"github.com/retro-leaderboard/internal/config"
	"github.com/retro-leaderboard/internal/domain"
)

// Exit codes
const (
	exitOK         = 0
	exitFailed     = 1
	exitNotAllowed = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	challengeID := flag.Int64("challenge", 0, "Challenge to reconcile (0 = current)")
	force := flag.Bool("force", false, "Skip the run cooldown")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		return exitFailed
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to close connections", "error", err)
		}
	}()

	var summary *domain.RunSummary
	if *force {
		summary, err = a.Updates.ForceUpdate(ctx, *challengeID)
	} else {
		summary, err = a.Updates.TriggerUpdate(ctx, *challengeID)
	}

	var notAllowed *domain.RunNotAllowedError
	switch {
	case errors.As(err, &notAllowed):
		fmt.Fprintf(os.Stderr, "update skipped: last run %s\n", notAllowed.Elapsed)
		return exitNotAllowed
	case err != nil:
		logger.Error("reconciliation failed", "error", err)
		return exitFailed
	}

	fmt.Println(summary.String())
	return exitOK
}
