package sqlite

// Schema defines the SQLite database structure.
// Times are stored as unix seconds.
const Schema = `
CREATE TABLE IF NOT EXISTS players (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	is_active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS challenges (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	start_epoch INTEGER NOT NULL,
	end_epoch INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS games (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	retro_game_id INTEGER NOT NULL UNIQUE,
	challenge_id INTEGER NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
	name TEXT NOT NULL DEFAULT '',
	image_icon TEXT,
	game_icon TEXT,
	image_title TEXT,
	image_ingame TEXT,
	image_box_art TEXT
);

CREATE TABLE IF NOT EXISTS player_scores (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	player_id INTEGER NOT NULL REFERENCES players(id) ON DELETE CASCADE,
	game_id INTEGER NOT NULL REFERENCES games(id) ON DELETE CASCADE,
	score INTEGER NOT NULL DEFAULT 0,
	raw_score INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL,
	UNIQUE(player_id, game_id)
);

CREATE TABLE IF NOT EXISTS achievements (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	player_id INTEGER NOT NULL REFERENCES players(id) ON DELETE CASCADE,
	game_id INTEGER NOT NULL REFERENCES games(id) ON DELETE CASCADE,
	achievement_id INTEGER NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	earned_at INTEGER NOT NULL,
	hardcore INTEGER NOT NULL,
	points INTEGER NOT NULL,
	UNIQUE(player_id, achievement_id, hardcore)
);

CREATE TABLE IF NOT EXISTS settings (
	name TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_games_challenge ON games(challenge_id, retro_game_id);
CREATE INDEX IF NOT EXISTS idx_achievements_player_game ON achievements(player_id, game_id, earned_at);
`
