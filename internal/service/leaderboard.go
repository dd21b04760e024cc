package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/retro-leaderboard/internal/config"
	"github.com/retro-leaderboard/internal/domain"
)

// StandingsCache keeps ranked challenge totals for fast reads
type StandingsCache interface {
	ReplaceStandings(ctx context.Context, challengeID int64, standings []domain.Standing) error
	Top(ctx context.Context, challengeID int64, n int) ([]domain.LeaderboardEntry, error)
}

// LeaderboardService derives challenge standings from stored player scores
type LeaderboardService struct {
	store  Store
	cache  StandingsCache
	config *config.LeaderboardConfig
	logger *slog.Logger
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(store Store, cfg *config.LeaderboardConfig, logger *slog.Logger) *LeaderboardService {
	return &LeaderboardService{
		store:  store,
		config: cfg,
		logger: logger,
	}
}

// SetCache enables the standings cache
func (s *LeaderboardService) SetCache(cache StandingsCache) {
	s.cache = cache
}

func (s *LeaderboardService) resolveChallenge(ctx context.Context, challengeID int64) (*domain.Challenge, error) {
	if challengeID == 0 {
		return s.store.CurrentChallenge(ctx)
	}
	return s.store.GetChallenge(ctx, challengeID)
}

// Standings returns the challenge's rows for active players, highest total first
func (s *LeaderboardService) Standings(ctx context.Context, challengeID int64) ([]domain.Standing, error) {
	challenge, err := s.resolveChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	games, err := s.store.ListGames(ctx, challenge.ID)
	if err != nil {
		return nil, fmt.Errorf("listing games: %w", err)
	}
	players, err := s.store.ListActivePlayers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	scores, err := s.store.ListPlayerScores(ctx, challenge.ID)
	if err != nil {
		return nil, fmt.Errorf("listing scores: %w", err)
	}

	return buildStandings(games, players, scores), nil
}

func buildStandings(games []domain.Game, players []domain.Player, scores []domain.PlayerScore) []domain.Standing {
	byPair := make(map[domain.PairKey]int64, len(scores))
	hasScore := make(map[int64]bool)
	for _, sc := range scores {
		byPair[sc.Key()] = sc.Score
		hasScore[sc.PlayerID] = true
	}

	var standings []domain.Standing
	for _, p := range players {
		if !hasScore[p.ID] {
			continue
		}
		row := domain.Standing{
			PlayerID:   p.ID,
			PlayerName: p.Name,
			GameScores: make([]domain.GameScore, 0, len(games)),
		}
		for _, g := range games {
			score := byPair[domain.PairKey{PlayerID: p.ID, GameID: g.ID}]
			row.GameScores = append(row.GameScores, domain.GameScore{
				GameID:      g.ID,
				RetroGameID: g.RetroGameID,
				Score:       score,
			})
			row.Total += score
		}
		standings = append(standings, row)
	}

	slices.SortStableFunc(standings, func(a, b domain.Standing) int {
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.PlayerName, b.PlayerName)
	})
	for i := range standings {
		standings[i].Rank = int64(i + 1)
	}
	return standings
}

// RefreshCache recomputes standings and pushes them to the cache if one is set
func (s *LeaderboardService) RefreshCache(ctx context.Context, challengeID int64) ([]domain.Standing, error) {
	challenge, err := s.resolveChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	standings, err := s.Standings(ctx, challenge.ID)
	if err != nil {
		return nil, err
	}
	if s.cache == nil {
		return standings, nil
	}
	if err := s.cache.ReplaceStandings(ctx, challenge.ID, standings); err != nil {
		return standings, fmt.Errorf("caching standings: %w", err)
	}
	return standings, nil
}

// Top returns the n best totals, from the cache when available
func (s *LeaderboardService) Top(ctx context.Context, challengeID int64, n int) ([]domain.LeaderboardEntry, error) {
	if n <= 0 {
		n = s.config.DefaultLimit
	}
	if n > s.config.MaxLimit {
		n = s.config.MaxLimit
	}

	if challengeID == 0 {
		challenge, err := s.store.CurrentChallenge(ctx)
		if err != nil {
			return nil, err
		}
		challengeID = challenge.ID
	}

	if s.cache != nil {
		entries, err := s.cache.Top(ctx, challengeID, n)
		if err == nil && len(entries) > 0 {
			return entries, nil
		}
		if err != nil {
			s.logger.Warn("standings cache read failed, using store", "challenge_id", challengeID, "error", err)
		}
	}

	standings, err := s.Standings(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if len(standings) > n {
		standings = standings[:n]
	}
	entries := make([]domain.LeaderboardEntry, len(standings))
	for i, st := range standings {
		entries[i] = domain.LeaderboardEntry{Rank: st.Rank, PlayerName: st.PlayerName, Total: st.Total}
	}
	return entries, nil
}

// WarmCache loads the current challenge's standings into the cache
func (s *LeaderboardService) WarmCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	challenge, err := s.store.CurrentChallenge(ctx)
	if err != nil {
		return err
	}
	standings, err := s.RefreshCache(ctx, challenge.ID)
	if err != nil {
		return err
	}
	s.logger.Info("standings cache warmed", "challenge_id", challenge.ID, "players", len(standings))
	return nil
}
