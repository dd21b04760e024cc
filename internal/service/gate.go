package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/retro-leaderboard/internal/domain"
)

// GateStatus describes whether an update may run now
type GateStatus struct {
	Allowed bool      `json:"allowed"`
	LastRun time.Time `json:"last_run,omitempty"`
	Elapsed string    `json:"elapsed"`
}

// RunGate throttles updates with a cooldown since the persisted last_run.
// It is not safe against concurrent processes: there is no compare-and-swap.
type RunGate struct {
	store    SettingStore
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewRunGate creates a new run gate
func NewRunGate(store SettingStore, cooldown time.Duration, logger *slog.Logger) *RunGate {
	return &RunGate{
		store:    store,
		cooldown: cooldown,
		logger:   logger,
		now:      time.Now,
	}
}

// Status reports whether an update is allowed without changing anything
func (g *RunGate) Status(ctx context.Context) (GateStatus, error) {
	now := g.now().UTC()

	value, err := g.store.GetSetting(ctx, domain.SettingLastRun)
	if errors.Is(err, domain.ErrSettingNotFound) || (err == nil && value == "") {
		return GateStatus{Allowed: true, Elapsed: "never"}, nil
	}
	if err != nil {
		return GateStatus{}, fmt.Errorf("loading last run: %w", err)
	}

	lastRun, err := time.ParseInLocation(domain.LastRunFormat, value, time.UTC)
	if err != nil {
		return GateStatus{}, fmt.Errorf("parsing last run %q: %w", value, err)
	}

	return GateStatus{
		Allowed: now.Sub(lastRun) > g.cooldown,
		LastRun: lastRun,
		Elapsed: humanize.RelTime(lastRun, now, "ago", "from now"),
	}, nil
}

// Acquire checks the gate and, when allowed, records now as the last run
// before the caller starts working. A failed run still consumes the cooldown.
func (g *RunGate) Acquire(ctx context.Context) (GateStatus, error) {
	status, err := g.Status(ctx)
	if err != nil {
		return status, err
	}
	if !status.Allowed {
		return status, &domain.RunNotAllowedError{LastRun: status.LastRun, Elapsed: status.Elapsed}
	}

	now := g.now().UTC()
	if err := g.store.PutSetting(ctx, domain.SettingLastRun, now.Format(domain.LastRunFormat)); err != nil {
		return status, fmt.Errorf("recording last run: %w", err)
	}
	g.logger.Info("update gate acquired", "previous_run", status.Elapsed)
	return status, nil
}
