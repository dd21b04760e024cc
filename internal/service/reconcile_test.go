package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/retro-leaderboard/internal/domain"
)

var _ Store = (*memStore)(nil)

const (
	challengeStart = int64(1000)
	challengeEnd   = int64(100000)
)

// newScenario sets up one challenge with game 1 (remote 42) and game 2 (remote 43)
func newScenario(players ...string) (*memStore, *fakeRemote) {
	store := newMemStore()
	store.challenges = []domain.Challenge{
		{ID: 1, Start: 1, End: 500},
		{ID: 2, Start: challengeStart, End: challengeEnd},
	}
	store.games = []domain.Game{
		{ID: 1, RetroGameID: 42, ChallengeID: 2, Name: "Sonic"},
		{ID: 2, RetroGameID: 43, ChallengeID: 2, Name: "Tails"},
		{ID: 3, RetroGameID: 99, ChallengeID: 1, Name: "Old"},
	}
	for i, name := range players {
		store.players = append(store.players, domain.Player{ID: int64(i + 1), Name: name, IsActive: true})
	}
	return store, newFakeRemote()
}

func newTestReconciler(store *memStore, remote *fakeRemote) *Reconciler {
	return NewReconciler(store, remote.factory(), domain.Credentials{}, testLogger())
}

func seedScore(store *memStore, playerID, gameID, score, raw int64) {
	store.scores[domain.PairKey{PlayerID: playerID, GameID: gameID}] = domain.PlayerScore{
		PlayerID: playerID, GameID: gameID, Score: score, RawScore: raw,
	}
}

func TestReconcileFirstRun(t *testing.T) {
	store, remote := newScenario("alice")
	remote.setHardcoreScore("alice", 42, 10)
	remote.earn("alice", 7, 42, 10, true, 5000)

	summary, err := newTestReconciler(store, remote).Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(store.achievements) != 1 {
		t.Fatalf("expected 1 stored achievement, got %d", len(store.achievements))
	}
	a := store.achievements[0]
	if a.PlayerID != 1 || a.GameID != 1 || a.AchievementID != 7 || a.Points != 10 || !a.Hardcore {
		t.Errorf("unexpected achievement %+v", a)
	}
	if !a.Date.Equal(time.Unix(5000, 0)) {
		t.Errorf("expected date 5000, got %v", a.Date.Unix())
	}

	score, ok := store.scoreOf(1, 1)
	if !ok || score.Score != 10 || score.RawScore != 10 {
		t.Errorf("expected score 10/raw 10, got %+v (found %v)", score, ok)
	}
	other, ok := store.scoreOf(1, 2)
	if !ok || other.Score != 0 || other.RawScore != 0 {
		t.Errorf("expected an empty row for the second game, got %+v (found %v)", other, ok)
	}

	if len(remote.fetches) != 1 || remote.fetches[0].from != challengeStart || remote.fetches[0].to != challengeEnd {
		t.Errorf("expected one fetch over the whole challenge, got %+v", remote.fetches)
	}
	if summary.ChallengeID != 2 || len(summary.UpdatedPlayers) != 1 || summary.UpdatedPlayers[0] != "alice" {
		t.Errorf("unexpected summary %+v", summary)
	}
	if summary.InsertedAchievements != 1 {
		t.Errorf("expected 1 inserted achievement, got %d", summary.InsertedAchievements)
	}
}

func TestReconcileFetchesOnlyDelta(t *testing.T) {
	store, remote := newScenario("alice")
	store.achievements = []domain.Achievement{
		{PlayerID: 1, GameID: 1, AchievementID: 7, Points: 10, Hardcore: true, Date: time.Unix(5000, 0)},
		{PlayerID: 1, GameID: 3, AchievementID: 1, Points: 1, Hardcore: true, Date: time.Unix(90000, 0)},
	}
	seedScore(store, 1, 1, 10, 10)
	seedScore(store, 1, 2, 0, 0)

	remote.setHardcoreScore("alice", 42, 25)
	remote.earn("alice", 7, 42, 10, true, 5000)
	remote.earn("alice", 8, 42, 15, true, 6000)

	if _, err := newTestReconciler(store, remote).Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(remote.fetches) != 1 {
		t.Fatalf("expected one fetch, got %d", len(remote.fetches))
	}
	if remote.fetches[0].from != 5001 {
		t.Errorf("expected delta fetch from 5001, got %d", remote.fetches[0].from)
	}
	score, _ := store.scoreOf(1, 1)
	if score.Score != 25 || score.RawScore != 25 {
		t.Errorf("expected score 25/raw 25, got %+v", score)
	}
}

func TestReconcileSkipsUnchangedPlayers(t *testing.T) {
	store, remote := newScenario("alice", "bob")
	seedScore(store, 1, 1, 10, 10)
	seedScore(store, 1, 2, 0, 0)
	seedScore(store, 2, 1, 30, 30)
	seedScore(store, 2, 2, 5, 5)
	remote.setHardcoreScore("alice", 42, 10)
	remote.setHardcoreScore("alice", 43, 0)
	remote.setHardcoreScore("bob", 42, 30)
	remote.setHardcoreScore("bob", 43, 5)

	summary, err := newTestReconciler(store, remote).Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if remote.fetchCount() != 0 {
		t.Errorf("expected no achievement fetches, got %d", remote.fetchCount())
	}
	if store.txCount != 0 || store.upserts != 0 {
		t.Errorf("expected no writes, got %d transactions and %d upserts", store.txCount, store.upserts)
	}
	if len(summary.UpdatedPlayers) != 0 {
		t.Errorf("expected no updated players, got %v", summary.UpdatedPlayers)
	}
	if summary.String() != "challenge 2: no players needed an update" {
		t.Errorf("unexpected summary text %q", summary.String())
	}
}

func TestReconcileBatchesProgressPerPlayer(t *testing.T) {
	store, remote := newScenario("alice", "bob", "carol")

	if _, err := newTestReconciler(store, remote).Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(remote.progressCalls) != 3 {
		t.Fatalf("expected one progress call per player, got %v", remote.progressCalls)
	}
	for _, ids := range remote.progressIDs {
		if len(ids) != 2 || ids[0] != 42 || ids[1] != 43 {
			t.Errorf("expected both challenge games in one call, got %v", ids)
		}
	}
}

func TestReconcileOnlyWritesChangedPlayers(t *testing.T) {
	store, remote := newScenario("alice", "bob")
	seedScore(store, 1, 1, 10, 10)
	seedScore(store, 1, 2, 0, 0)
	seedScore(store, 2, 1, 30, 30)
	seedScore(store, 2, 2, 5, 5)
	remote.setHardcoreScore("alice", 42, 10)
	remote.setHardcoreScore("alice", 43, 0)
	remote.setHardcoreScore("bob", 42, 40)
	remote.setHardcoreScore("bob", 43, 5)

	if _, err := newTestReconciler(store, remote).Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	for _, f := range remote.fetches {
		if f.user == "alice" {
			t.Error("unchanged player alice was fetched")
		}
	}
	if store.upserts != 2 {
		t.Errorf("expected only bob's two rows to be written, got %d", store.upserts)
	}
}

func TestReconcileIsAtomic(t *testing.T) {
	store, remote := newScenario("alice", "bob", "carol")
	for _, name := range []string{"alice", "bob", "carol"} {
		remote.setHardcoreScore(name, 42, 10)
		remote.earn(name, 7, 42, 10, true, 5000)
	}
	remote.failFetchFor["bob"] = true

	_, err := newTestReconciler(store, remote).Run(context.Background(), RunOptions{})
	if !domain.IsRemoteError(err) {
		t.Fatalf("expected remote error, got %v", err)
	}

	if len(store.achievements) != 0 {
		t.Errorf("expected no committed achievements, got %d", len(store.achievements))
	}
	if len(store.scores) != 0 {
		t.Errorf("expected no committed scores, got %d", len(store.scores))
	}
	if remote.fetchCount() != 2 {
		t.Errorf("expected run to stop at the failing fetch, got %d fetches", remote.fetchCount())
	}
}

func TestReconcileScoreCountsOnlyHardcore(t *testing.T) {
	store, remote := newScenario("alice")
	store.achievements = []domain.Achievement{
		{PlayerID: 1, GameID: 1, AchievementID: 1, Points: 5, Hardcore: true, Date: time.Unix(2000, 0)},
		{PlayerID: 1, GameID: 1, AchievementID: 2, Points: 50, Hardcore: false, Date: time.Unix(2500, 0)},
	}
	seedScore(store, 1, 1, 5, 5)

	remote.setHardcoreScore("alice", 42, 15)
	remote.setHardcoreScore("alice", 43, 3)
	remote.earn("alice", 3, 42, 10, true, 3000)
	remote.earn("alice", 4, 42, 20, false, 3100)
	remote.earn("alice", 9, 43, 3, true, 3200)

	if _, err := newTestReconciler(store, remote).Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := map[int64]int64{}
	for _, a := range store.achievements {
		if a.PlayerID == 1 && a.Hardcore {
			want[a.GameID] += a.Points
		}
	}
	for gameID, total := range want {
		score, ok := store.scoreOf(1, gameID)
		if !ok || score.Score != total {
			t.Errorf("game %d: expected score %d, got %+v", gameID, total, score)
		}
	}
	if score, _ := store.scoreOf(1, 1); score.Score != 15 {
		t.Errorf("expected game 1 score 15, got %d", score.Score)
	}
}

func TestReconcileDropsOutOfScopeAchievements(t *testing.T) {
	store, remote := newScenario("alice")
	remote.setHardcoreScore("alice", 42, 10)
	remote.earn("alice", 7, 42, 10, true, 5000)
	remote.earn("alice", 8, 99, 25, true, 5100)
	remote.earn("alice", 9, 1234, 5, true, 5200)

	if _, err := newTestReconciler(store, remote).Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(store.achievements) != 1 || store.achievements[0].AchievementID != 7 {
		t.Fatalf("expected only the in-scope achievement, got %+v", store.achievements)
	}
}

func TestReconcileKeepsRawScoreWhenNotReturned(t *testing.T) {
	store, remote := newScenario("alice")
	seedScore(store, 1, 1, 10, 10)
	seedScore(store, 1, 2, 7, 7)
	remote.setHardcoreScore("alice", 42, 20)
	remote.earn("alice", 8, 42, 10, true, 5000)

	if _, err := newTestReconciler(store, remote).Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	score, _ := store.scoreOf(1, 2)
	if score.RawScore != 7 {
		t.Errorf("expected raw score to stay 7 when the API omits it, got %d", score.RawScore)
	}
}

func TestReconcileSelectsChallenge(t *testing.T) {
	store, remote := newScenario("alice")
	remote.setHardcoreScore("alice", 99, 4)
	remote.earn("alice", 1, 99, 4, true, 100)

	summary, err := newTestReconciler(store, remote).Run(context.Background(), RunOptions{ChallengeID: 1})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.ChallengeID != 1 {
		t.Errorf("expected challenge 1, got %d", summary.ChallengeID)
	}
	if score, ok := store.scoreOf(1, 3); !ok || score.Score != 4 {
		t.Errorf("expected score 4 for the old game, got %+v", score)
	}

	_, err = newTestReconciler(store, remote).Run(context.Background(), RunOptions{ChallengeID: 9})
	if !errors.Is(err, domain.ErrChallengeNotFound) {
		t.Errorf("expected ErrChallengeNotFound, got %v", err)
	}
}

func TestReconcileSkipsFetchPastChallengeEnd(t *testing.T) {
	store, remote := newScenario("alice")
	store.achievements = []domain.Achievement{
		{PlayerID: 1, GameID: 1, AchievementID: 7, Points: 10, Hardcore: true, Date: time.Unix(challengeEnd, 0)},
	}
	remote.setHardcoreScore("alice", 42, 10)

	if _, err := newTestReconciler(store, remote).Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if remote.fetchCount() != 0 {
		t.Errorf("expected no fetch once the challenge end is reached, got %d", remote.fetchCount())
	}
	if score, ok := store.scoreOf(1, 1); !ok || score.Score != 10 {
		t.Errorf("expected score to be recomputed, got %+v", score)
	}
}

func TestReconcileCredentials(t *testing.T) {
	store, remote := newScenario("alice")
	store.settings = map[string]string{domain.SettingUsername: "admin"}

	r := NewReconciler(store, remote.factory(), domain.Credentials{Username: "cfg", APIKey: "cfg-key"}, testLogger())
	if _, err := r.Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := remote.creds[0]; got.Username != "admin" || got.APIKey != "cfg-key" {
		t.Errorf("expected settings to override config, got %+v", got)
	}

	store.settings = map[string]string{}
	_, err := NewReconciler(store, remote.factory(), domain.Credentials{}, testLogger()).Run(context.Background(), RunOptions{})
	if !errors.Is(err, domain.ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
}
