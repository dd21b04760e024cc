package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/retro-leaderboard/internal/config"
	"github.com/retro-leaderboard/internal/domain"
	"github.com/retro-leaderboard/internal/service"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ service.Store = (*Repository)(nil)

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(50) NOT NULL UNIQUE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS challenges (
			id BIGSERIAL PRIMARY KEY,
			start_epoch BIGINT NOT NULL,
			end_epoch BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS games (
			id BIGSERIAL PRIMARY KEY,
			retro_game_id BIGINT NOT NULL UNIQUE,
			challenge_id BIGINT NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
			name VARCHAR(100) NOT NULL DEFAULT '',
			image_icon VARCHAR(50),
			game_icon VARCHAR(50),
			image_title VARCHAR(50),
			image_ingame VARCHAR(50),
			image_box_art VARCHAR(50)
		)`,
		`CREATE TABLE IF NOT EXISTS player_scores (
			id BIGSERIAL PRIMARY KEY,
			player_id BIGINT NOT NULL REFERENCES players(id) ON DELETE CASCADE,
			game_id BIGINT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			score BIGINT NOT NULL DEFAULT 0,
			raw_score BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(player_id, game_id)
		)`,
		`CREATE TABLE IF NOT EXISTS achievements (
			id BIGSERIAL PRIMARY KEY,
			player_id BIGINT NOT NULL REFERENCES players(id) ON DELETE CASCADE,
			game_id BIGINT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			achievement_id BIGINT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			earned_at TIMESTAMPTZ NOT NULL,
			hardcore BOOLEAN NOT NULL,
			points BIGINT NOT NULL,
			UNIQUE(player_id, achievement_id, hardcore)
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			name VARCHAR(100) PRIMARY KEY,
			value VARCHAR(100) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_games_challenge ON games(challenge_id, retro_game_id)`,
		`CREATE INDEX IF NOT EXISTS idx_achievements_player_game ON achievements(player_id, game_id, earned_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

const challengeColumns = `id, start_epoch, end_epoch`

// CurrentChallenge returns the challenge with the highest id
func (r *Repository) CurrentChallenge(ctx context.Context) (*domain.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges ORDER BY id DESC LIMIT 1`
	return r.scanChallenge(r.pool.QueryRow(ctx, query))
}

// GetChallenge retrieves a challenge by id
func (r *Repository) GetChallenge(ctx context.Context, challengeID int64) (*domain.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE id = $1`
	return r.scanChallenge(r.pool.QueryRow(ctx, query, challengeID))
}

func (r *Repository) scanChallenge(row pgx.Row) (*domain.Challenge, error) {
	var c domain.Challenge
	if err := row.Scan(&c.ID, &c.Start, &c.End); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("getting challenge: %w", err)
	}
	return &c, nil
}

const gameColumns = `id, retro_game_id, challenge_id, name,
	COALESCE(image_icon, ''), COALESCE(game_icon, ''), COALESCE(image_title, ''),
	COALESCE(image_ingame, ''), COALESCE(image_box_art, '')`

// ListGames returns a challenge's games ordered by remote game id
func (r *Repository) ListGames(ctx context.Context, challengeID int64) ([]domain.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE challenge_id = $1 ORDER BY retro_game_id`
	return r.queryGames(ctx, query, challengeID)
}

// ListAllGames returns every stored game
func (r *Repository) ListAllGames(ctx context.Context) ([]domain.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games ORDER BY challenge_id, retro_game_id`
	return r.queryGames(ctx, query)
}

func (r *Repository) queryGames(ctx context.Context, query string, args ...any) ([]domain.Game, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing games: %w", err)
	}
	defer rows.Close()

	var games []domain.Game
	for rows.Next() {
		var g domain.Game
		err := rows.Scan(
			&g.ID,
			&g.RetroGameID,
			&g.ChallengeID,
			&g.Name,
			&g.ImageIcon,
			&g.GameIcon,
			&g.ImageTitle,
			&g.ImageIngame,
			&g.ImageBoxArt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning game: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// UpdateGameMetadata stores refreshed display fields for a game
func (r *Repository) UpdateGameMetadata(ctx context.Context, game domain.Game) error {
	query := `
		UPDATE games
		SET name = $2, image_icon = $3, game_icon = $4, image_title = $5, image_ingame = $6, image_box_art = $7
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query,
		game.ID,
		game.Name,
		game.ImageIcon,
		game.GameIcon,
		game.ImageTitle,
		game.ImageIngame,
		game.ImageBoxArt,
	)
	if err != nil {
		return fmt.Errorf("updating game: %w", err)
	}
	return nil
}

// ListActivePlayers returns active players ordered by name
func (r *Repository) ListActivePlayers(ctx context.Context) ([]domain.Player, error) {
	query := `SELECT id, name, is_active FROM players WHERE is_active ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	defer rows.Close()

	var players []domain.Player
	for rows.Next() {
		var p domain.Player
		if err := rows.Scan(&p.ID, &p.Name, &p.IsActive); err != nil {
			return nil, fmt.Errorf("scanning player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// ListPlayerScores returns every score row for a challenge's games
func (r *Repository) ListPlayerScores(ctx context.Context, challengeID int64) ([]domain.PlayerScore, error) {
	query := `
		SELECT ps.player_id, ps.game_id, ps.score, ps.raw_score, ps.updated_at
		FROM player_scores ps
		JOIN games g ON g.id = ps.game_id
		WHERE g.challenge_id = $1
		ORDER BY ps.player_id, g.retro_game_id
	`
	rows, err := r.pool.Query(ctx, query, challengeID)
	if err != nil {
		return nil, fmt.Errorf("listing player scores: %w", err)
	}
	defer rows.Close()

	var scores []domain.PlayerScore
	for rows.Next() {
		var s domain.PlayerScore
		if err := rows.Scan(&s.PlayerID, &s.GameID, &s.Score, &s.RawScore, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning player score: %w", err)
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

// GetSetting returns a setting value
func (r *Repository) GetSetting(ctx context.Context, name string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT value FROM settings WHERE name = $1`, name).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrSettingNotFound
		}
		return "", fmt.Errorf("getting setting: %w", err)
	}
	return value, nil
}

// PutSetting inserts or replaces a setting value
func (r *Repository) PutSetting(ctx context.Context, name, value string) error {
	query := `
		INSERT INTO settings (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = $2
	`
	if _, err := r.pool.Exec(ctx, query, name, value); err != nil {
		return fmt.Errorf("putting setting: %w", err)
	}
	return nil
}

// WithTx runs fn inside a single transaction
func (r *Repository) WithTx(ctx context.Context, fn func(tx service.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txRepository{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// txRepository is the transaction-scoped half of the repository
type txRepository struct {
	tx pgx.Tx
}

// LatestAchievementDate returns the newest stored achievement for a player in a challenge
func (t *txRepository) LatestAchievementDate(ctx context.Context, playerID, challengeID int64) (time.Time, bool, error) {
	query := `
		SELECT MAX(a.earned_at)
		FROM achievements a
		JOIN games g ON g.id = a.game_id
		WHERE a.player_id = $1 AND g.challenge_id = $2
	`
	var latest *time.Time
	if err := t.tx.QueryRow(ctx, query, playerID, challengeID).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("getting latest achievement: %w", err)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return latest.UTC(), true, nil
}

// InsertAchievements appends achievements in one batch
func (t *txRepository) InsertAchievements(ctx context.Context, achievements []domain.Achievement) (int64, error) {
	if len(achievements) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO achievements (player_id, game_id, achievement_id, title, description, earned_at, hardcore, points)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (player_id, achievement_id, hardcore) DO NOTHING
	`
	for _, a := range achievements {
		batch.Queue(query, a.PlayerID, a.GameID, a.AchievementID, a.Title, a.Description, a.Date, a.Hardcore, a.Points)
	}

	br := t.tx.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for range achievements {
		tag, err := br.Exec()
		if err != nil {
			return 0, fmt.Errorf("batch inserting achievements: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// SumHardcorePoints sums hardcore points per game of a challenge for one player
func (t *txRepository) SumHardcorePoints(ctx context.Context, playerID, challengeID int64) (map[int64]int64, error) {
	query := `
		SELECT a.game_id, COALESCE(SUM(a.points), 0)::BIGINT
		FROM achievements a
		JOIN games g ON g.id = a.game_id
		WHERE a.player_id = $1 AND g.challenge_id = $2 AND a.hardcore
		GROUP BY a.game_id
	`
	rows, err := t.tx.Query(ctx, query, playerID, challengeID)
	if err != nil {
		return nil, fmt.Errorf("summing points: %w", err)
	}
	defer rows.Close()

	sums := make(map[int64]int64)
	for rows.Next() {
		var gameID, total int64
		if err := rows.Scan(&gameID, &total); err != nil {
			return nil, fmt.Errorf("scanning points: %w", err)
		}
		sums[gameID] = total
	}
	return sums, rows.Err()
}

// UpsertPlayerScores inserts or updates score rows in one batch
func (t *txRepository) UpsertPlayerScores(ctx context.Context, scores []domain.PlayerScore) error {
	if len(scores) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO player_scores (player_id, game_id, score, raw_score, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (player_id, game_id)
		DO UPDATE SET score = $3, raw_score = $4, updated_at = $5
	`
	for _, s := range scores {
		batch.Queue(query, s.PlayerID, s.GameID, s.Score, s.RawScore, s.UpdatedAt)
	}

	br := t.tx.SendBatch(ctx, batch)
	defer br.Close()

	for range scores {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch upserting scores: %w", err)
		}
	}
	return nil
}
