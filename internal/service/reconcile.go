package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/retro-leaderboard/internal/domain"
	"github.com/retro-leaderboard/internal/retro"
)

// RunOptions selects what a reconciliation run covers
type RunOptions struct {
	// ChallengeID of zero means the current challenge
	ChallengeID int64
}

// Reconciler synchronizes remote achievements into local scores
type Reconciler struct {
	store     Store
	newRemote RemoteFactory
	fallback  domain.Credentials
	logger    *slog.Logger
	now       func() time.Time
}

// NewReconciler creates a new reconciler
func NewReconciler(store Store, newRemote RemoteFactory, fallback domain.Credentials, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		newRemote: newRemote,
		fallback:  fallback,
		logger:    logger,
		now:       time.Now,
	}
}

// runScope is everything a run needs, loaded once up front
type runScope struct {
	challenge *domain.Challenge
	games     []domain.Game
	byRetroID map[int64]domain.Game
	players   []domain.Player
	scores    map[domain.PairKey]domain.PlayerScore
	remote    Remote
}

// flaggedPlayer is a player whose remote state changed since the last run
type flaggedPlayer struct {
	player   domain.Player
	observed map[int64]retro.Optional[int64] // local game id -> remote hardcore score
}

// Run performs one reconciliation pass.
// Only players whose remote hardcore score differs from the stored raw score are
// fetched, and only achievements newer than their latest stored one. All writes
// happen in one transaction; any failure leaves stored state untouched.
func (r *Reconciler) Run(ctx context.Context, opts RunOptions) (*domain.RunSummary, error) {
	started := r.now()
	summary := &domain.RunSummary{
		RunID:          uuid.New().String(),
		StartedAt:      started.UTC(),
		UpdatedPlayers: []string{},
	}
	logger := r.logger.With("run_id", summary.RunID)

	scope, err := r.loadScope(ctx, opts)
	if err != nil {
		return nil, err
	}
	summary.ChallengeID = scope.challenge.ID
	summary.CheckedPlayers = len(scope.players)

	logger.Info("starting reconciliation",
		"challenge_id", scope.challenge.ID,
		"games", len(scope.games),
		"players", len(scope.players),
	)

	if len(scope.games) == 0 {
		logger.Warn("challenge has no games, nothing to reconcile", "challenge_id", scope.challenge.ID)
		summary.Duration = r.now().Sub(started)
		return summary, nil
	}

	flagged, err := r.detectChanges(ctx, scope, logger)
	if err != nil {
		return nil, err
	}

	if len(flagged) > 0 {
		err = r.store.WithTx(ctx, func(tx Tx) error {
			inserted, err := r.applyChanges(ctx, tx, scope, flagged, logger)
			summary.InsertedAchievements = int(inserted)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("reconciling challenge %d: %w", scope.challenge.ID, err)
		}
	}

	for _, f := range flagged {
		summary.UpdatedPlayers = append(summary.UpdatedPlayers, f.player.Name)
	}
	summary.Duration = r.now().Sub(started)

	logger.Info("reconciliation completed",
		"challenge_id", scope.challenge.ID,
		"updated_players", len(summary.UpdatedPlayers),
		"inserted_achievements", summary.InsertedAchievements,
		"duration", summary.Duration,
	)
	return summary, nil
}

func (r *Reconciler) loadScope(ctx context.Context, opts RunOptions) (*runScope, error) {
	var challenge *domain.Challenge
	var err error
	if opts.ChallengeID == 0 {
		challenge, err = r.store.CurrentChallenge(ctx)
	} else {
		challenge, err = r.store.GetChallenge(ctx, opts.ChallengeID)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving challenge: %w", err)
	}

	games, err := r.store.ListGames(ctx, challenge.ID)
	if err != nil {
		return nil, fmt.Errorf("listing games: %w", err)
	}
	players, err := r.store.ListActivePlayers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	stored, err := r.store.ListPlayerScores(ctx, challenge.ID)
	if err != nil {
		return nil, fmt.Errorf("listing player scores: %w", err)
	}

	creds, err := loadCredentials(ctx, r.store, r.fallback)
	if err != nil {
		return nil, err
	}

	scope := &runScope{
		challenge: challenge,
		games:     games,
		byRetroID: make(map[int64]domain.Game, len(games)),
		players:   players,
		scores:    make(map[domain.PairKey]domain.PlayerScore, len(stored)),
		remote:    r.newRemote(creds),
	}
	for _, g := range games {
		scope.byRetroID[g.RetroGameID] = g
	}
	for _, s := range stored {
		scope.scores[s.Key()] = s
	}
	return scope, nil
}

// detectChanges asks the remote for every player's progress on all challenge
// games in one call per player and flags the players whose score moved
func (r *Reconciler) detectChanges(ctx context.Context, scope *runScope, logger *slog.Logger) ([]flaggedPlayer, error) {
	retroIDs := make([]int64, len(scope.games))
	for i, g := range scope.games {
		retroIDs[i] = g.RetroGameID
	}

	var flagged []flaggedPlayer
	for _, p := range scope.players {
		progress, err := scope.remote.GetUserProgress(ctx, p.Name, retroIDs)
		if err != nil {
			return nil, fmt.Errorf("fetching progress for %s: %w", p.Name, err)
		}

		f := flaggedPlayer{player: p, observed: make(map[int64]retro.Optional[int64], len(scope.games))}
		changed := false
		for _, g := range scope.games {
			observed := progress[g.RetroGameID].ScoreAchievedHardcore
			f.observed[g.ID] = observed

			stored, ok := scope.scores[domain.PairKey{PlayerID: p.ID, GameID: g.ID}]
			if !ok {
				changed = true
				continue
			}
			if v, returned := observed.Get(); returned && v != stored.RawScore {
				changed = true
			}
		}

		if !changed {
			logger.Debug("player unchanged", "player", p.Name)
			continue
		}
		logger.Debug("player needs update", "player", p.Name)
		flagged = append(flagged, f)
	}
	return flagged, nil
}

// applyChanges fetches deltas, stores them and recomputes scores inside tx
func (r *Reconciler) applyChanges(ctx context.Context, tx Tx, scope *runScope, flagged []flaggedPlayer, logger *slog.Logger) (int64, error) {
	challenge := scope.challenge

	var fetched []domain.Achievement
	for _, f := range flagged {
		since := challenge.Start
		latest, ok, err := tx.LatestAchievementDate(ctx, f.player.ID, challenge.ID)
		if err != nil {
			return 0, fmt.Errorf("latest achievement for %s: %w", f.player.Name, err)
		}
		if ok && latest.Unix()+1 > since {
			since = latest.Unix() + 1
		}
		if since > challenge.End {
			continue
		}

		set, err := scope.remote.GetAchievementsEarnedBetween(ctx, f.player.Name, since, challenge.End)
		if err != nil {
			return 0, fmt.Errorf("fetching achievements for %s: %w", f.player.Name, err)
		}
		fetched = append(fetched, r.inScope(scope, f.player, set, logger)...)
	}

	inserted, err := tx.InsertAchievements(ctx, fetched)
	if err != nil {
		return 0, fmt.Errorf("inserting achievements: %w", err)
	}

	now := r.now().UTC()
	scores := make([]domain.PlayerScore, 0, len(flagged)*len(scope.games))
	for _, f := range flagged {
		sums, err := tx.SumHardcorePoints(ctx, f.player.ID, challenge.ID)
		if err != nil {
			return 0, fmt.Errorf("summing points for %s: %w", f.player.Name, err)
		}
		for _, g := range scope.games {
			previous := scope.scores[domain.PairKey{PlayerID: f.player.ID, GameID: g.ID}]
			scores = append(scores, domain.PlayerScore{
				PlayerID:  f.player.ID,
				GameID:    g.ID,
				Score:     sums[g.ID],
				RawScore:  f.observed[g.ID].Or(previous.RawScore),
				UpdatedAt: now,
			})
		}
	}

	if err := tx.UpsertPlayerScores(ctx, scores); err != nil {
		return 0, fmt.Errorf("upserting scores: %w", err)
	}
	return inserted, nil
}

// inScope converts fetched achievements, dropping the ones for games outside the challenge
func (r *Reconciler) inScope(scope *runScope, player domain.Player, set *retro.AchievementSet, logger *slog.Logger) []domain.Achievement {
	var out []domain.Achievement
	for _, a := range set.Achievements() {
		retroGameID, ok := a.GameID.Get()
		game, inChallenge := scope.byRetroID[retroGameID]
		if !ok || !inChallenge {
			logger.Warn("achievement references game outside challenge scope",
				"player", player.Name,
				"game_id", a.GameID.String(),
				"achievement_id", a.ID.String(),
			)
			continue
		}

		id, hasID := a.ID.Get()
		date, hasDate := a.Date.Get()
		if !hasID || !hasDate {
			logger.Warn("achievement missing id or date, skipping",
				"player", player.Name,
				"game_id", retroGameID,
				"achievement_id", a.ID.String(),
			)
			continue
		}

		out = append(out, domain.Achievement{
			PlayerID:      player.ID,
			GameID:        game.ID,
			AchievementID: id,
			Title:         a.Title.Or(""),
			Description:   a.Description.Or(""),
			Date:          date,
			Hardcore:      a.Hardcore.Or(false),
			Points:        a.Points.Or(0),
		})
	}
	return out
}
