package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alexcyl0107/clinique/internal/appointment"
	"github.com/Alexcyl0107/clinique/internal/config"
	"github.com/Alexcyl0107/clinique/internal/db"
)

// Open connects the appointment store selected by STORE_DRIVER and prepares
// its schema. The returned close func releases the connection.
func Open(ctx context.Context, cfg config.Config, logger zerolog.Logger) (appointment.Repository, func(), error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connection: %w", err)
		}
		if err := db.EnsureSchema(pgCtx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info().Msg("connected to Postgres")
		return appointment.NewPgRepository(pool), pool.Close, nil

	case config.StoreSQLite:
		gdb, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		repo := appointment.NewGormRepository(gdb)
		if err := repo.Migrate(); err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if sqlDB, err := gdb.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite store")
		return repo, closeFn, nil

	case config.StoreMemory:
		logger.Warn().Msg("using in-memory store, appointments are lost on restart")
		return appointment.NewMemoryRepository(), func() {}, nil
	}

	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
