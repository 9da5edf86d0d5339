package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/config"
)

// ErrArchiveDisabled is returned when no archive database is configured.
var ErrArchiveDisabled = errors.New("archive database not configured")

// NewArchivePool creates and validates the PostgreSQL pool for the transcript
// archive. It returns ErrArchiveDisabled when ARCHIVE_DATABASE_URL is empty.
func NewArchivePool(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	if cfg.ArchiveDatabaseURL == "" {
		return nil, ErrArchiveDisabled
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ArchiveDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxDBConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info().
		Int32("max_conns", cfg.MaxDBConns).
		Msg("Archive database connected")

	return pool, nil
}
