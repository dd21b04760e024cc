package domain

import (
	"fmt"
	"strings"
	"time"
)

// Challenge is a scoring period bounded by epoch seconds.
// The current challenge is the one with the highest ID.
type Challenge struct {
	ID    int64 `json:"id"`
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// StartTime returns the challenge start as a UTC time
func (c Challenge) StartTime() time.Time {
	return time.Unix(c.Start, 0).UTC()
}

// EndTime returns the challenge end as a UTC time
func (c Challenge) EndTime() time.Time {
	return time.Unix(c.End, 0).UTC()
}

// Game belongs to exactly one challenge
type Game struct {
	ID          int64  `json:"id"`
	RetroGameID int64  `json:"retro_game_id"`
	ChallengeID int64  `json:"challenge_id"`
	Name        string `json:"name"`
	ImageIcon   string `json:"image_icon,omitempty"`
	GameIcon    string `json:"game_icon,omitempty"`
	ImageTitle  string `json:"image_title,omitempty"`
	ImageIngame string `json:"image_ingame,omitempty"`
	ImageBoxArt string `json:"image_box_art,omitempty"`
}

// GameScore is one cell of a standings row
type GameScore struct {
	GameID      int64 `json:"game_id"`
	RetroGameID int64 `json:"retro_game_id"`
	Score       int64 `json:"score"`
}

// Standing is a player's row on a challenge leaderboard
type Standing struct {
	Rank       int64       `json:"rank"`
	PlayerID   int64       `json:"player_id"`
	PlayerName string      `json:"player_name"`
	Total      int64       `json:"total"`
	GameScores []GameScore `json:"game_scores,omitempty"`
}

// LeaderboardEntry is a ranked total as served from the standings cache
type LeaderboardEntry struct {
	Rank       int64  `json:"rank"`
	PlayerName string `json:"player_name"`
	Total      int64  `json:"total"`
}

// RunSummary is published after a reconciliation run commits
type RunSummary struct {
	RunID                string        `json:"run_id"`
	ChallengeID          int64         `json:"challenge_id"`
	UpdatedPlayers       []string      `json:"updated_players"`
	CheckedPlayers       int           `json:"checked_players"`
	InsertedAchievements int           `json:"inserted_achievements"`
	StartedAt            time.Time     `json:"started_at"`
	Duration             time.Duration `json:"duration"`
}

// String describes the run for people reading logs or an update response
func (s RunSummary) String() string {
	if len(s.UpdatedPlayers) == 0 {
		return fmt.Sprintf("challenge %d: no players needed an update", s.ChallengeID)
	}
	return fmt.Sprintf("challenge %d: updated %d player(s): %s",
		s.ChallengeID, len(s.UpdatedPlayers), strings.Join(s.UpdatedPlayers, ", "))
}
