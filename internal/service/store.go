package service

import (
	"context"
	"time"

	"github.com/retro-leaderboard/internal/domain"
	"github.com/retro-leaderboard/internal/retro"
)

// Store is the persistent state the services read and write
type Store interface {
	// CurrentChallenge returns the challenge with the highest ID
	CurrentChallenge(ctx context.Context) (*domain.Challenge, error)
	GetChallenge(ctx context.Context, challengeID int64) (*domain.Challenge, error)
	// ListGames returns the challenge's games ordered by remote game id
	ListGames(ctx context.Context, challengeID int64) ([]domain.Game, error)
	ListAllGames(ctx context.Context) ([]domain.Game, error)
	UpdateGameMetadata(ctx context.Context, game domain.Game) error
	ListActivePlayers(ctx context.Context) ([]domain.Player, error)
	ListPlayerScores(ctx context.Context, challengeID int64) ([]domain.PlayerScore, error)
	GetSetting(ctx context.Context, name string) (string, error)
	PutSetting(ctx context.Context, name, value string) error
	// WithTx runs fn in one transaction, committing only if fn returns nil
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the unit of work used by a reconciliation run
type Tx interface {
	// LatestAchievementDate returns the newest stored achievement of the
	// player among the challenge's games; ok is false when none exist
	LatestAchievementDate(ctx context.Context, playerID, challengeID int64) (t time.Time, ok bool, err error)
	// InsertAchievements appends achievements, ignoring rows already stored
	InsertAchievements(ctx context.Context, achievements []domain.Achievement) (int64, error)
	// SumHardcorePoints sums points of hardcore achievements per game for a player
	SumHardcorePoints(ctx context.Context, playerID, challengeID int64) (map[int64]int64, error)
	UpsertPlayerScores(ctx context.Context, scores []domain.PlayerScore) error
}

// Remote is the subset of the remote API client a run needs
type Remote interface {
	GetUserProgress(ctx context.Context, user string, gameIDs []int64) (map[int64]retro.UserProgress, error)
	GetAchievementsEarnedBetween(ctx context.Context, user string, from, to int64) (*retro.AchievementSet, error)
	GetGame(ctx context.Context, gameID int64) (*retro.GameMetadata, error)
}

// RemoteFactory builds a remote client for the credentials loaded by a run
type RemoteFactory func(creds domain.Credentials) Remote
