package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/retro-leaderboard/internal/config"
	"github.com/retro-leaderboard/internal/domain"
)

// StandingsCache keeps challenge totals in Redis sorted sets
type StandingsCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewStandingsCache creates a new Redis standings cache
func NewStandingsCache(cfg *config.RedisConfig, logger *slog.Logger) (*StandingsCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &StandingsCache{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *StandingsCache) Close() error {
	return c.client.Close()
}

// standingsKey holds player names scored by rank; totalsKey maps names to totals
func standingsKey(challengeID int64) string {
	return fmt.Sprintf("challenge:%d:standings", challengeID)
}

func totalsKey(challengeID int64) string {
	return fmt.Sprintf("challenge:%d:totals", challengeID)
}

// ReplaceStandings atomically swaps a challenge's cached standings
func (c *StandingsCache) ReplaceStandings(ctx context.Context, challengeID int64, standings []domain.Standing) error {
	key, totals := standingsKey(challengeID), totalsKey(challengeID)

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key, totals)
	if len(standings) > 0 {
		members := make([]redis.Z, len(standings))
		values := make(map[string]any, len(standings))
		for i, st := range standings {
			members[i] = redis.Z{Score: float64(st.Rank), Member: st.PlayerName}
			values[st.PlayerName] = st.Total
		}
		pipe.ZAdd(ctx, key, members...)
		pipe.HSet(ctx, totals, values)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replacing standings: %w", err)
	}
	c.logger.Debug("cached standings", "challenge_id", challengeID, "players", len(standings))
	return nil
}

// Top returns the n best ranked players with their totals
func (c *StandingsCache) Top(ctx context.Context, challengeID int64, n int) ([]domain.LeaderboardEntry, error) {
	results, err := c.client.ZRangeWithScores(ctx, standingsKey(challengeID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	names := make([]string, len(results))
	for i, result := range results {
		names[i] = result.Member.(string)
	}
	totals, err := c.client.HMGet(ctx, totalsKey(challengeID), names...).Result()
	if err != nil {
		return nil, fmt.Errorf("getting totals: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, len(results))
	for i, result := range results {
		var total int64
		if raw, ok := totals[i].(string); ok {
			total, err = strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parsing total for %s: %w", names[i], err)
			}
		}
		entries[i] = domain.LeaderboardEntry{
			Rank:       int64(result.Score),
			PlayerName: names[i],
			Total:      total,
		}
	}
	return entries, nil
}
