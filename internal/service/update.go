package service

import (
	"context"
	"log/slog"

	"github.com/retro-leaderboard/internal/domain"
)

// RunPublisher announces committed runs to other systems
type RunPublisher interface {
	PublishRunCompleted(ctx context.Context, summary domain.RunSummary) error
}

// StandingsBroadcaster pushes fresh standings to live clients
type StandingsBroadcaster interface {
	BroadcastStandings(challengeID int64, standings []domain.Standing)
}

// UpdateService runs gated reconciliations and fans out the results
type UpdateService struct {
	gate        *RunGate
	reconciler  *Reconciler
	leaderboard *LeaderboardService
	publisher   RunPublisher
	broadcaster StandingsBroadcaster
	logger      *slog.Logger
}

// NewUpdateService creates a new update service
func NewUpdateService(gate *RunGate, reconciler *Reconciler, leaderboard *LeaderboardService, logger *slog.Logger) *UpdateService {
	return &UpdateService{
		gate:        gate,
		reconciler:  reconciler,
		leaderboard: leaderboard,
		logger:      logger,
	}
}

// SetPublisher sets where run events are published
func (s *UpdateService) SetPublisher(p RunPublisher) {
	s.publisher = p
}

// SetBroadcaster sets the live standings broadcaster
func (s *UpdateService) SetBroadcaster(b StandingsBroadcaster) {
	s.broadcaster = b
}

// Status reports whether an update may run now
func (s *UpdateService) Status(ctx context.Context) (GateStatus, error) {
	return s.gate.Status(ctx)
}

// TriggerUpdate passes the run gate and reconciles the challenge.
// A zero challengeID means the current challenge.
func (s *UpdateService) TriggerUpdate(ctx context.Context, challengeID int64) (*domain.RunSummary, error) {
	if _, err := s.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	return s.ForceUpdate(ctx, challengeID)
}

// ForceUpdate reconciles without consulting the run gate
func (s *UpdateService) ForceUpdate(ctx context.Context, challengeID int64) (*domain.RunSummary, error) {
	summary, err := s.reconciler.Run(ctx, RunOptions{ChallengeID: challengeID})
	if err != nil {
		s.logger.Error("reconciliation failed", "challenge_id", challengeID, "error", err)
		return nil, err
	}
	s.afterCommit(ctx, *summary)
	return summary, nil
}

// afterCommit refreshes derived views; failures here never undo a committed run
func (s *UpdateService) afterCommit(ctx context.Context, summary domain.RunSummary) {
	standings, err := s.leaderboard.RefreshCache(ctx, summary.ChallengeID)
	if err != nil {
		s.logger.Warn("failed to refresh standings", "challenge_id", summary.ChallengeID, "error", err)
	}
	if s.broadcaster != nil && standings != nil {
		s.broadcaster.BroadcastStandings(summary.ChallengeID, standings)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishRunCompleted(ctx, summary); err != nil {
			s.logger.Warn("failed to publish run event", "run_id", summary.RunID, "error", err)
		}
	}
}
