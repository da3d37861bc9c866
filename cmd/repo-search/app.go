package main

import (
	"context"
	"fmt"

	"github.com/Sternrassler/repo-backfill/internal/config"
	"github.com/Sternrassler/repo-backfill/pkg/github"
	"github.com/Sternrassler/repo-backfill/pkg/logging"
	"github.com/Sternrassler/repo-backfill/pkg/pagination"
	"github.com/Sternrassler/repo-backfill/pkg/search"
	"github.com/Sternrassler/repo-backfill/pkg/store"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// app holds the wired collaborators shared by every command.
type app struct {
	config      *config.Config
	store       store.Store
	writer      *store.Writer
	github      *github.Client
	coordinator *search.Coordinator

	db     *sqlx.DB
	redis  *redis.Client
	logger zerolog.Logger
}

// newApp connects the configured backends and builds the coordinator.
// fetcher overrides the GitHub client when not nil.
func newApp(ctx context.Context, cfg *config.Config, fetcher pagination.PageFetcher) (*app, error) {
	a := &app{
		config: cfg,
		logger: logging.NewLogger("app"),
	}

	if cfg.Redis.URL != "" {
		opts, err := cfg.RedisOptions()
		if err != nil {
			return nil, err
		}
		a.redis = redis.NewClient(opts)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	}

	if cfg.Store.DatabaseURL != "" {
		db, err := store.Open(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.db = db
		if err := store.Migrate(ctx, db); err != nil {
			a.Close()
			return nil, err
		}
		a.store = store.NewPostgresStore(db, logging.NewLogger("store"))
		a.logger.Info().Msg("Using PostgreSQL store")
	} else {
		a.store = store.NewMemoryStore()
		a.logger.Info().Msg("Using in-memory store")
	}

	a.writer = store.NewWriter(a.store, cfg.Store.WriteQueue, logging.NewLogger("store-writer"))

	if fetcher == nil {
		client, err := github.New(github.Config{
			BaseURL:   cfg.GitHub.APIURL,
			Token:     cfg.GitHub.Token,
			UserAgent: cfg.GitHub.UserAgent,
			Redis:     a.redis,
			Timeout:   cfg.GitHub.Timeout,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create github client: %w", err)
		}
		a.github = client
		fetcher = client
	}

	a.coordinator = search.NewCoordinator(a.store, a.writer, fetcher, search.Config{
		LocalPageSize:  cfg.Paging.LocalPageSize,
		RemotePageSize: cfg.Paging.RemotePageSize,
	})
	return a, nil
}

// ping checks every configured backend.
func (a *app) ping(ctx context.Context) error {
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	return nil
}

// Close drains the writer and releases connections.
func (a *app) Close() error {
	if a.writer != nil {
		a.writer.Close()
	}
	if a.github != nil {
		a.github.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	return nil
}
