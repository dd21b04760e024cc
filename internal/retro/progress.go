package retro

// UserProgress is a player's progress on one game as reported by the API
type UserProgress struct {
	GameID                int64
	NumPossible           Optional[int64]
	PossibleScore         Optional[int64]
	NumAchieved           Optional[int64]
	ScoreAchieved         Optional[int64]
	NumAchievedHardcore   Optional[int64]
	ScoreAchievedHardcore Optional[int64]
}

func parseUserProgress(gameID int64, r record) (UserProgress, error) {
	p := UserProgress{GameID: gameID}
	fields := []struct {
		key string
		dst *Optional[int64]
	}{
		{"NumPossibleAchievements", &p.NumPossible},
		{"PossibleScore", &p.PossibleScore},
		{"NumAchieved", &p.NumAchieved},
		{"ScoreAchieved", &p.ScoreAchieved},
		{"NumAchievedHardcore", &p.NumAchievedHardcore},
		{"ScoreAchievedHardcore", &p.ScoreAchievedHardcore},
	}
	for _, f := range fields {
		v, err := r.integer(f.key)
		if err != nil {
			return p, err
		}
		*f.dst = v
	}
	return p, nil
}

// GameMetadata holds display fields for a game
type GameMetadata struct {
	ID          int64
	Title       string
	ImageIcon   string
	GameIcon    string
	ImageTitle  string
	ImageIngame string
	ImageBoxArt string
}
