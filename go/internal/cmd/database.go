package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/banpick/go/internal/config"
	"github.com/mcdev12/banpick/go/internal/draft/repository"
	"github.com/mcdev12/banpick/go/internal/draft/room"
)

// setupStore opens the configured room store. The returned close func
// releases it.
func setupStore(ctx context.Context, cfg config.Config) (room.Store, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.DB.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create database pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		store := repository.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info().
			Str("host", cfg.DB.Host).
			Int("port", cfg.DB.Port).
			Str("database", cfg.DB.Database).
			Msg("connected to database")
		return store, pool.Close, nil

	case config.StoreSQLite:
		store, err := repository.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("opened sqlite store")
		return store, func() { _ = store.Close() }, nil

	default:
		log.Warn().Msg("using in-memory store; rooms are lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	}
}
