package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/retro-leaderboard/internal/domain"
)

// GameService keeps stored game metadata in line with the remote service
type GameService struct {
	store     Store
	newRemote RemoteFactory
	fallback  domain.Credentials
	logger    *slog.Logger
}

// NewGameService creates a new game service
func NewGameService(store Store, newRemote RemoteFactory, fallback domain.Credentials, logger *slog.Logger) *GameService {
	return &GameService{
		store:     store,
		newRemote: newRemote,
		fallback:  fallback,
		logger:    logger,
	}
}

// RefreshGames re-fetches title and image paths for every stored game
func (s *GameService) RefreshGames(ctx context.Context) ([]domain.Game, error) {
	creds, err := loadCredentials(ctx, s.store, s.fallback)
	if err != nil {
		return nil, err
	}
	remote := s.newRemote(creds)

	games, err := s.store.ListAllGames(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing games: %w", err)
	}

	for i, g := range games {
		meta, err := remote.GetGame(ctx, g.RetroGameID)
		if err != nil {
			return nil, fmt.Errorf("fetching game %d: %w", g.RetroGameID, err)
		}
		g.Name = meta.Title
		g.ImageIcon = meta.ImageIcon
		g.GameIcon = meta.GameIcon
		g.ImageTitle = meta.ImageTitle
		g.ImageIngame = meta.ImageIngame
		g.ImageBoxArt = meta.ImageBoxArt
		if err := s.store.UpdateGameMetadata(ctx, g); err != nil {
			return nil, fmt.Errorf("updating game %d: %w", g.RetroGameID, err)
		}
		games[i] = g
		s.logger.Debug("refreshed game", "retro_game_id", g.RetroGameID, "name", g.Name)
	}

	s.logger.Info("refreshed games", "count", len(games))
	return games, nil
}
