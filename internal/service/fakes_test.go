package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/retro-leaderboard/internal/domain"
	"github.com/retro-leaderboard/internal/retro"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type achievementRow struct {
	playerID      int64
	achievementID int64
	hardcore      bool
}

// memStore keeps everything in memory. Transactions work on copies and only
// publish them when fn succeeds.
type memStore struct {
	mu           sync.Mutex
	challenges   []domain.Challenge
	games        []domain.Game
	players      []domain.Player
	scores       map[domain.PairKey]domain.PlayerScore
	achievements []domain.Achievement
	settings     map[string]string
	txCount      int
	upserts      int
}

func newMemStore() *memStore {
	return &memStore{
		scores:   make(map[domain.PairKey]domain.PlayerScore),
		settings: map[string]string{domain.SettingUsername: "bot", domain.SettingAPIKey: "key"},
	}
}

func (m *memStore) CurrentChallenge(ctx context.Context) (*domain.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.challenges) == 0 {
		return nil, domain.ErrChallengeNotFound
	}
	current := m.challenges[0]
	for _, c := range m.challenges[1:] {
		if c.ID > current.ID {
			current = c
		}
	}
	return &current, nil
}

func (m *memStore) GetChallenge(ctx context.Context, challengeID int64) (*domain.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.challenges {
		if c.ID == challengeID {
			return &c, nil
		}
	}
	return nil, domain.ErrChallengeNotFound
}

func (m *memStore) ListGames(ctx context.Context, challengeID int64) ([]domain.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Game
	for _, g := range m.games {
		if g.ChallengeID == challengeID {
			out = append(out, g)
		}
	}
	slices.SortFunc(out, func(a, b domain.Game) int { return int(a.RetroGameID - b.RetroGameID) })
	return out, nil
}

func (m *memStore) ListAllGames(ctx context.Context) ([]domain.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.games), nil
}

func (m *memStore) UpdateGameMetadata(ctx context.Context, game domain.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, g := range m.games {
		if g.ID == game.ID {
			m.games[i] = game
			return nil
		}
	}
	return errors.New("game not found")
}

func (m *memStore) ListActivePlayers(ctx context.Context) ([]domain.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Player
	for _, p := range m.players {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) gameIDs(challengeID int64) map[int64]bool {
	ids := make(map[int64]bool)
	for _, g := range m.games {
		if g.ChallengeID == challengeID {
			ids[g.ID] = true
		}
	}
	return ids
}

func (m *memStore) ListPlayerScores(ctx context.Context, challengeID int64) ([]domain.PlayerScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inChallenge := m.gameIDs(challengeID)
	var out []domain.PlayerScore
	for _, s := range m.scores {
		if inChallenge[s.GameID] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) GetSetting(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.settings[name]
	if !ok {
		return "", domain.ErrSettingNotFound
	}
	return v, nil
}

func (m *memStore) PutSetting(ctx context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[name] = value
	return nil
}

func (m *memStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	m.txCount++
	tx := &memTx{
		games:        slices.Clone(m.games),
		achievements: slices.Clone(m.achievements),
		scores:       maps.Clone(m.scores),
	}
	m.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.achievements = tx.achievements
	m.scores = tx.scores
	m.upserts += tx.upserts
	return nil
}

func (m *memStore) scoreOf(playerID, gameID int64) (domain.PlayerScore, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scores[domain.PairKey{PlayerID: playerID, GameID: gameID}]
	return s, ok
}

type memTx struct {
	games        []domain.Game
	achievements []domain.Achievement
	scores       map[domain.PairKey]domain.PlayerScore
	upserts      int
}

func (t *memTx) inChallenge(gameID, challengeID int64) bool {
	for _, g := range t.games {
		if g.ID == gameID {
			return g.ChallengeID == challengeID
		}
	}
	return false
}

func (t *memTx) LatestAchievementDate(ctx context.Context, playerID, challengeID int64) (time.Time, bool, error) {
	var latest time.Time
	found := false
	for _, a := range t.achievements {
		if a.PlayerID != playerID || !t.inChallenge(a.GameID, challengeID) {
			continue
		}
		if !found || a.Date.After(latest) {
			latest = a.Date
			found = true
		}
	}
	return latest, found, nil
}

func (t *memTx) InsertAchievements(ctx context.Context, achievements []domain.Achievement) (int64, error) {
	seen := make(map[achievementRow]bool)
	for _, a := range t.achievements {
		seen[achievementRow{a.PlayerID, a.AchievementID, a.Hardcore}] = true
	}
	var inserted int64
	for _, a := range achievements {
		k := achievementRow{a.PlayerID, a.AchievementID, a.Hardcore}
		if seen[k] {
			continue
		}
		seen[k] = true
		t.achievements = append(t.achievements, a)
		inserted++
	}
	return inserted, nil
}

func (t *memTx) SumHardcorePoints(ctx context.Context, playerID, challengeID int64) (map[int64]int64, error) {
	sums := make(map[int64]int64)
	for _, a := range t.achievements {
		if a.PlayerID == playerID && a.Hardcore && t.inChallenge(a.GameID, challengeID) {
			sums[a.GameID] += a.Points
		}
	}
	return sums, nil
}

func (t *memTx) UpsertPlayerScores(ctx context.Context, scores []domain.PlayerScore) error {
	for _, s := range scores {
		t.scores[s.Key()] = s
		t.upserts++
	}
	return nil
}

type earnedRecord struct {
	at  int64
	raw map[string]any
}

type fetchCall struct {
	user     string
	from, to int64
}

// fakeRemote serves progress and earned achievements per user
type fakeRemote struct {
	mu            sync.Mutex
	progress      map[string]map[int64]retro.UserProgress
	earned        map[string][]earnedRecord
	games         map[int64]retro.GameMetadata
	failFetchFor  map[string]bool
	progressCalls []string
	progressIDs   [][]int64
	fetches       []fetchCall
	creds         []domain.Credentials
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		progress:     make(map[string]map[int64]retro.UserProgress),
		earned:       make(map[string][]earnedRecord),
		games:        make(map[int64]retro.GameMetadata),
		failFetchFor: make(map[string]bool),
	}
}

func (f *fakeRemote) factory() RemoteFactory {
	return func(creds domain.Credentials) Remote {
		f.mu.Lock()
		f.creds = append(f.creds, creds)
		f.mu.Unlock()
		return f
	}
}

func (f *fakeRemote) setHardcoreScore(user string, retroGameID, score int64) {
	if f.progress[user] == nil {
		f.progress[user] = make(map[int64]retro.UserProgress)
	}
	f.progress[user][retroGameID] = retro.UserProgress{
		GameID:                retroGameID,
		ScoreAchievedHardcore: retro.Present(score),
	}
}

func (f *fakeRemote) earn(user string, id, retroGameID, points int64, hardcore bool, at int64) {
	hc := 0
	if hardcore {
		hc = 1
	}
	f.earned[user] = append(f.earned[user], earnedRecord{at: at, raw: map[string]any{
		"AchievementID": id,
		"GameID":        retroGameID,
		"Points":        points,
		"HardcoreMode":  hc,
		"Title":         "Achievement",
		"Date":          time.Unix(at, 0).UTC().Format(retro.DateFormat),
	}})
}

func (f *fakeRemote) GetUserProgress(ctx context.Context, user string, gameIDs []int64) (map[int64]retro.UserProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progressCalls = append(f.progressCalls, user)
	f.progressIDs = append(f.progressIDs, slices.Clone(gameIDs))
	out := make(map[int64]retro.UserProgress)
	for _, id := range gameIDs {
		if p, ok := f.progress[user][id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeRemote) GetAchievementsEarnedBetween(ctx context.Context, user string, from, to int64) (*retro.AchievementSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, fetchCall{user: user, from: from, to: to})
	if f.failFetchFor[user] {
		return nil, &domain.RemoteError{Endpoint: retro.EndpointGetAchievementsEarnedBetween, Status: 503}
	}
	var raw []map[string]any
	for _, r := range f.earned[user] {
		if r.at >= from && r.at <= to {
			raw = append(raw, r.raw)
		}
	}
	set := retro.NewAchievementSet()
	if err := set.Add(raw); err != nil {
		return nil, err
	}
	return set, nil
}

func (f *fakeRemote) GetGame(ctx context.Context, gameID int64) (*retro.GameMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[gameID]
	if !ok {
		return nil, &domain.RemoteError{Endpoint: retro.EndpointGetGame, Status: 404}
	}
	return &g, nil
}

func (f *fakeRemote) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}
