package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"milkwatch/internal/config"
	"milkwatch/internal/model"
)

// Store persists readings, analytics snapshots and fired alerts. All writes
// on the hot path are best-effort; the in-memory state is authoritative.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveReading(ctx context.Context, reading model.Reading) error
	SaveStats(ctx context.Context, stats model.UsageStats) error
	SaveAlert(ctx context.Context, alert model.Alert) error
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
