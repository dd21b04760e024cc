package domain

import "time"

// Player represents a tracked account on the remote achievement service
type Player struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// Achievement is a single unlock stored for a player.
// The (PlayerID, AchievementID, Hardcore) triple is unique and rows are never updated.
type Achievement struct {
	ID            int64     `json:"id,omitempty"`
	PlayerID      int64     `json:"player_id"`
	GameID        int64     `json:"game_id"`
	AchievementID int64     `json:"achievement_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Date          time.Time `json:"date"`
	Hardcore      bool      `json:"hardcore"`
	Points        int64     `json:"points"`
}

// PlayerScore holds the derived score for one (player, game) pair
type PlayerScore struct {
	PlayerID  int64     `json:"player_id"`
	GameID    int64     `json:"game_id"`
	Score     int64     `json:"score"`
	RawScore  int64     `json:"raw_score"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PairKey identifies a (player, game) pair
type PairKey struct {
	PlayerID int64
	GameID   int64
}

// Key returns the pair this score belongs to
func (s PlayerScore) Key() PairKey {
	return PairKey{PlayerID: s.PlayerID, GameID: s.GameID}
}

// Credentials authenticate calls against the remote API
type Credentials struct {
	Username string
	APIKey   string
}

// Setting names persisted in the settings table
const (
	SettingLastRun  = "last_run"
	SettingUsername = "username"
	SettingAPIKey   = "api_key"
)

// LastRunFormat is the layout of the last_run setting, always UTC
const LastRunFormat = "2006-01-02 15:04:05"
