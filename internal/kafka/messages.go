package kafka

import (
	"time"

	"github.com/retro-leaderboard/internal/domain"
)

// Event types
const (
	EventTypeRunCompleted = "run_completed"
)

// UpdateRequest asks the updater to run a reconciliation
type UpdateRequest struct {
	ChallengeID int64     `json:"challenge_id,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// RunEvent is published after a reconciliation run commits
type RunEvent struct {
	EventID   string            `json:"event_id"`
	Type      string            `json:"type"`
	Summary   domain.RunSummary `json:"summary"`
	Timestamp time.Time         `json:"timestamp"`
}
