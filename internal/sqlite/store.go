package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/retro-leaderboard/internal/domain"
	"github.com/retro-leaderboard/internal/service"
	_ "modernc.org/sqlite"
)

// Store is a single-file SQLite implementation of the service store
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ service.Store = (*Store)(nil)

// Open opens or creates the database at path and applies the schema
func Open(path string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.InitDB(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// InitDB creates the database schema
func (s *Store) InitDB(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return tx.Commit()
}

// Close closes the underlying database
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const challengeColumns = `id, start_epoch, end_epoch`

// CurrentChallenge returns the challenge with the highest id
func (s *Store) CurrentChallenge(ctx context.Context) (*domain.Challenge, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+challengeColumns+` FROM challenges ORDER BY id DESC LIMIT 1`)
	return scanChallenge(row)
}

// GetChallenge retrieves a challenge by id
func (s *Store) GetChallenge(ctx context.Context, challengeID int64) (*domain.Challenge, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id = ?`, challengeID)
	return scanChallenge(row)
}

func scanChallenge(row *sql.Row) (*domain.Challenge, error) {
	var c domain.Challenge
	if err := row.Scan(&c.ID, &c.Start, &c.End); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	return &c, nil
}

const gameColumns = `id, retro_game_id, challenge_id, name,
	COALESCE(image_icon, ''), COALESCE(game_icon, ''), COALESCE(image_title, ''),
	COALESCE(image_ingame, ''), COALESCE(image_box_art, '')`

// ListGames returns a challenge's games ordered by remote game id
func (s *Store) ListGames(ctx context.Context, challengeID int64) ([]domain.Game, error) {
	return s.queryGames(ctx, `SELECT `+gameColumns+` FROM games WHERE challenge_id = ? ORDER BY retro_game_id`, challengeID)
}

// ListAllGames returns every stored game
func (s *Store) ListAllGames(ctx context.Context) ([]domain.Game, error) {
	return s.queryGames(ctx, `SELECT `+gameColumns+` FROM games ORDER BY challenge_id, retro_game_id`)
}

func (s *Store) queryGames(ctx context.Context, query string, args ...any) ([]domain.Game, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var games []domain.Game
	for rows.Next() {
		var g domain.Game
		if err := rows.Scan(&g.ID, &g.RetroGameID, &g.ChallengeID, &g.Name,
			&g.ImageIcon, &g.GameIcon, &g.ImageTitle, &g.ImageIngame, &g.ImageBoxArt); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// UpdateGameMetadata stores refreshed display fields for a game
func (s *Store) UpdateGameMetadata(ctx context.Context, game domain.Game) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE games
		SET name = ?, image_icon = ?, game_icon = ?, image_title = ?, image_ingame = ?, image_box_art = ?
		WHERE id = ?`,
		game.Name, game.ImageIcon, game.GameIcon, game.ImageTitle, game.ImageIngame, game.ImageBoxArt, game.ID,
	)
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	return nil
}

// ListActivePlayers returns active players ordered by name
func (s *Store) ListActivePlayers(ctx context.Context) ([]domain.Player, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, is_active FROM players WHERE is_active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var players []domain.Player
	for rows.Next() {
		var p domain.Player
		if err := rows.Scan(&p.ID, &p.Name, &p.IsActive); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// ListPlayerScores returns every score row for a challenge's games
func (s *Store) ListPlayerScores(ctx context.Context, challengeID int64) ([]domain.PlayerScore, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ps.player_id, ps.game_id, ps.score, ps.raw_score, ps.updated_at
		FROM player_scores ps
		JOIN games g ON g.id = ps.game_id
		WHERE g.challenge_id = ?
		ORDER BY ps.player_id, g.retro_game_id`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("list player scores: %w", err)
	}
	defer rows.Close()

	var scores []domain.PlayerScore
	for rows.Next() {
		var ps domain.PlayerScore
		var updatedAt int64
		if err := rows.Scan(&ps.PlayerID, &ps.GameID, &ps.Score, &ps.RawScore, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan player score: %w", err)
		}
		ps.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		scores = append(scores, ps)
	}
	return scores, rows.Err()
}

// GetSetting returns a setting value
func (s *Store) GetSetting(ctx context.Context, name string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE name = ?`, name).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrSettingNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// PutSetting inserts or replaces a setting value
func (s *Store) PutSetting(ctx context.Context, name, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`, name, value)
	if err != nil {
		return fmt.Errorf("put setting: %w", err)
	}
	return nil
}

// WithTx runs fn inside a single transaction
func (s *Store) WithTx(ctx context.Context, fn func(tx service.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) LatestAchievementDate(ctx context.Context, playerID, challengeID int64) (time.Time, bool, error) {
	var latest sql.NullInt64
	err := t.tx.QueryRowContext(ctx, `
		SELECT MAX(a.earned_at)
		FROM achievements a
		JOIN games g ON g.id = a.game_id
		WHERE a.player_id = ? AND g.challenge_id = ?`, playerID, challengeID).Scan(&latest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest achievement: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(latest.Int64, 0).UTC(), true, nil
}

func (t *txStore) InsertAchievements(ctx context.Context, achievements []domain.Achievement) (int64, error) {
	if len(achievements) == 0 {
		return 0, nil
	}

	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO achievements (player_id, game_id, achievement_id, title, description, earned_at, hardcore, points)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(player_id, achievement_id, hardcore) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare achievement insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, a := range achievements {
		res, err := stmt.ExecContext(ctx, a.PlayerID, a.GameID, a.AchievementID, a.Title, a.Description,
			a.Date.Unix(), a.Hardcore, a.Points)
		if err != nil {
			return 0, fmt.Errorf("insert achievement %d: %w", a.AchievementID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += n
	}
	return inserted, nil
}

func (t *txStore) SumHardcorePoints(ctx context.Context, playerID, challengeID int64) (map[int64]int64, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT a.game_id, COALESCE(SUM(a.points), 0)
		FROM achievements a
		JOIN games g ON g.id = a.game_id
		WHERE a.player_id = ? AND g.challenge_id = ? AND a.hardcore = 1
		GROUP BY a.game_id`, playerID, challengeID)
	if err != nil {
		return nil, fmt.Errorf("sum points: %w", err)
	}
	defer rows.Close()

	sums := make(map[int64]int64)
	for rows.Next() {
		var gameID, total int64
		if err := rows.Scan(&gameID, &total); err != nil {
			return nil, fmt.Errorf("scan points: %w", err)
		}
		sums[gameID] = total
	}
	return sums, rows.Err()
}

func (t *txStore) UpsertPlayerScores(ctx context.Context, scores []domain.PlayerScore) error {
	if len(scores) == 0 {
		return nil
	}

	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO player_scores (player_id, game_id, score, raw_score, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(player_id, game_id)
		DO UPDATE SET score = excluded.score, raw_score = excluded.raw_score, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare score upsert: %w", err)
	}
	defer stmt.Close()

	for _, sc := range scores {
		if _, err := stmt.ExecContext(ctx, sc.PlayerID, sc.GameID, sc.Score, sc.RawScore, sc.UpdatedAt.Unix()); err != nil {
			return fmt.Errorf("upsert score: %w", err)
		}
	}
	return nil
}
