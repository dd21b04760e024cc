package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/retro-leaderboard/internal/config"
	"github.com/retro-leaderboard/internal/domain"
	"github.com/retro-leaderboard/internal/kafka"
	"github.com/retro-leaderboard/internal/postgres"
	"github.com/retro-leaderboard/internal/redis"
	"github.com/retro-leaderboard/internal/retro"
	"github.com/retro-leaderboard/internal/service"
	"github.com/retro-leaderboard/internal/sqlite"
)

// Store is a service store that owns its connections
type Store interface {
	service.Store
	Close() error
}

type standingsCache interface {
	service.StandingsCache
	Close() error
}

type runPublisher interface {
	service.RunPublisher
	Close() error
}

var (
	dialCache = func(cfg *config.RedisConfig, logger *slog.Logger) (standingsCache, error) {
		cache, err := redis.NewStandingsCache(cfg, logger)
		if err != nil {
			return nil, err
		}
		return cache, nil
	}
	dialPublisher = func(cfg *config.KafkaConfig, logger *slog.Logger) (runPublisher, error) {
		publisher, err := kafka.NewPublisher(cfg, logger)
		if err != nil {
			return nil, err
		}
		return publisher, nil
	}
)

// App holds the services shared by every command. Commands that run a
// reconciliation get the same post-commit fan-out as the server.
type App struct {
	Store       Store
	Leaderboard *service.LeaderboardService
	Updates     *service.UpdateService
	Games       *service.GameService

	// Cached reports whether standings are mirrored to Redis
	Cached bool

	closers []func() error
	logger  *slog.Logger
}

// OpenStore opens the configured store, running migrations for PostgreSQL
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		logger.Info("opening SQLite store", "path", cfg.Store.SQLitePath)
		s, err := sqlite.Open(cfg.Store.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		repo, err := postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		if err := repo.RunMigrations(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		return repo, nil
	}
}

// New opens the store and wires the services. Redis and Kafka are optional:
// when enabled but unreachable they are logged and skipped.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Driver, err)
	}

	a := &App{Store: db, logger: logger}
	a.closers = append(a.closers, db.Close)

	retroClient := retro.NewClient(&cfg.Retro, logger)
	newRemote := func(creds domain.Credentials) service.Remote {
		return retroClient.WithCredentials(creds)
	}
	fallback := domain.Credentials{Username: cfg.Retro.Username, APIKey: cfg.Retro.APIKey}

	a.Leaderboard = service.NewLeaderboardService(db, &cfg.Leaderboard, logger)
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		cache, err := dialCache(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("failed to connect to Redis, serving standings from the store", "error", err)
		} else {
			a.closers = append(a.closers, cache.Close)
			a.Leaderboard.SetCache(cache)
			a.Cached = true
		}
	}

	a.Updates = service.NewUpdateService(
		service.NewRunGate(db, cfg.Update.Cooldown, logger),
		service.NewReconciler(db, newRemote, fallback, logger),
		a.Leaderboard,
		logger,
	)
	if cfg.Kafka.Enabled {
		logger.Info("creating Kafka publisher", "brokers", cfg.Kafka.Brokers, "event_topic", cfg.Kafka.EventTopic)
		publisher, err := dialPublisher(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka publisher, run events disabled", "error", err)
		} else {
			a.closers = append(a.closers, publisher.Close)
			a.Updates.SetPublisher(publisher)
		}
	}

	a.Games = service.NewGameService(db, newRemote, fallback, logger)
	return a, nil
}

// Close releases connections in reverse order of opening
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
