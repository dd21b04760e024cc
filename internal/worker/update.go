package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/retro-leaderboard/internal/config"
	"github.com/retro-leaderboard/internal/domain"
)

// Updater runs a gated reconciliation of a challenge
type Updater interface {
	TriggerUpdate(ctx context.Context, challengeID int64) (*domain.RunSummary, error)
}

// UpdateWorker periodically asks for a reconciliation of the current challenge
type UpdateWorker struct {
	updater Updater
	config  *config.UpdateConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewUpdateWorker creates a new update worker
func NewUpdateWorker(updater Updater, cfg *config.UpdateConfig, logger *slog.Logger) *UpdateWorker {
	return &UpdateWorker{
		updater: updater,
		config:  cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the background update loop
func (w *UpdateWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("update worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background update loop and waits for an in-flight run
func (w *UpdateWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("update worker stopped")
	return nil
}

func (w *UpdateWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// IsRunning returns whether the worker loop is active
func (w *UpdateWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce triggers a single update of the current challenge.
// A rejection by the run gate is expected and only logged at debug level.
func (w *UpdateWorker) RunOnce(ctx context.Context) *domain.RunSummary {
	summary, err := w.updater.TriggerUpdate(ctx, 0)
	switch {
	case errors.Is(err, domain.ErrRunNotAllowed):
		w.logger.Debug("scheduled update skipped", "reason", err)
		return nil
	case err != nil:
		w.logger.Error("scheduled update failed", "error", err)
		return nil
	}

	w.logger.Info("scheduled update completed",
		"run_id", summary.RunID,
		"updated_players", len(summary.UpdatedPlayers),
		"duration", summary.Duration,
	)
	return summary
}
