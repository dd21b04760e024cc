package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/retro-leaderboard/internal/config"
	"github.com/retro-leaderboard/internal/domain"
)

type fakeCache struct {
	mu       sync.Mutex
	replaced []int64
	closed   bool
}

func (c *fakeCache) ReplaceStandings(_ context.Context, challengeID int64, _ []domain.Standing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replaced = append(c.replaced, challengeID)
	return nil
}

func (c *fakeCache) Top(context.Context, int64, int) ([]domain.LeaderboardEntry, error) {
	return nil, nil
}

func (c *fakeCache) Close() error {
	c.closed = true
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.RunSummary
	closed bool
}

func (p *fakePublisher) PublishRunCompleted(_ context.Context, summary domain.RunSummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, summary)
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func stubDialers(t *testing.T, cache standingsCache, cacheErr error, publisher runPublisher, publisherErr error) {
	t.Helper()
	origCache, origPublisher := dialCache, dialPublisher
	t.Cleanup(func() {
		dialCache, dialPublisher = origCache, origPublisher
	})
	dialCache = func(*config.RedisConfig, *slog.Logger) (standingsCache, error) {
		if cacheErr != nil {
			return nil, cacheErr
		}
		return cache, nil
	}
	dialPublisher = func(*config.KafkaConfig, *slog.Logger) (runPublisher, error) {
		if publisherErr != nil {
			return nil, publisherErr
		}
		return publisher, nil
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Store.Driver = config.DriverSQLite
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "lb.db")
	cfg.Redis.Enabled = true
	cfg.Kafka.Enabled = true
	cfg.Retro.Username = "bot"
	cfg.Retro.APIKey = "key"
	return cfg
}

func seedChallenge(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open seed db: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`INSERT INTO challenges (start_epoch, end_epoch) VALUES (1000, 2000)`); err != nil {
		t.Fatalf("seed challenge: %v", err)
	}
}

func TestForcedRunFansOutToCacheAndPublisher(t *testing.T) {
	cache := &fakeCache{}
	publisher := &fakePublisher{}
	stubDialers(t, cache, nil, publisher, nil)

	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	seedChallenge(t, cfg.Store.SQLitePath)

	summary, err := a.Updates.ForceUpdate(context.Background(), 0)
	if err != nil {
		t.Fatalf("force update: %v", err)
	}

	if !a.Cached {
		t.Error("expected cache to be wired")
	}
	if len(cache.replaced) != 1 || cache.replaced[0] != summary.ChallengeID {
		t.Errorf("expected standings cached for challenge %d, got %v", summary.ChallengeID, cache.replaced)
	}
	if len(publisher.events) != 1 || publisher.events[0].RunID != summary.RunID {
		t.Errorf("expected one run event for %s, got %+v", summary.RunID, publisher.events)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("close app: %v", err)
	}
	if !cache.closed || !publisher.closed {
		t.Errorf("expected cache and publisher closed, got cache=%v publisher=%v", cache.closed, publisher.closed)
	}
}

func TestUnreachableBackendsAreSkipped(t *testing.T) {
	stubDialers(t, nil, errors.New("redis down"), nil, errors.New("kafka down"))

	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()
	seedChallenge(t, cfg.Store.SQLitePath)

	if a.Cached {
		t.Error("expected no cache when Redis is unreachable")
	}
	if _, err := a.Updates.ForceUpdate(context.Background(), 0); err != nil {
		t.Fatalf("force update without backends: %v", err)
	}
}

func TestNewRejectsBadStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.SQLitePath = " "

	if _, err := New(context.Background(), cfg, testLogger()); err == nil {
		t.Fatal("expected error for empty sqlite path")
	}
}
