package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"milkwatch/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/milkwatch?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS weight_data (
			id BIGSERIAL PRIMARY KEY,
			device_id TEXT NOT NULL,
			weight DOUBLE PRECISION NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL,
			UNIQUE(device_id, observed_at)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_weight_device_ts ON weight_data(device_id, observed_at)`,
		`CREATE TABLE IF NOT EXISTS user_stats (
			container_id TEXT PRIMARY KEY,
			current_amount_g DOUBLE PRECISION,
			learned_cup_size_g DOUBLE PRECISION,
			cups_left DOUBLE PRECISION,
			avg_daily_consumption_g DOUBLE PRECISION,
			percent_full DOUBLE PRECISION,
			expected_empty_date DATE,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			alert_id TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			device_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			weight_g DOUBLE PRECISION NOT NULL,
			threshold_g DOUBLE PRECISION
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) SaveReading(ctx context.Context, r model.Reading) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO weight_data (device_id, weight, observed_at) VALUES ($1, $2, $3)
		ON CONFLICT (device_id, observed_at) DO NOTHING`,
		r.DeviceID,
		r.WeightGrams,
		r.ObservedAt.UTC(),
	)
	return err
}

func (s *postgresStore) SaveStats(ctx context.Context, stats model.UsageStats) error {
	if s.db == nil || stats.DeviceID == "" {
		return nil
	}
	var emptyDate any
	if stats.EmptyDate != nil {
		emptyDate = *stats.EmptyDate
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_stats (
			container_id, current_amount_g, learned_cup_size_g, cups_left,
			avg_daily_consumption_g, percent_full, expected_empty_date, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (container_id) DO UPDATE SET
			current_amount_g=EXCLUDED.current_amount_g,
			learned_cup_size_g=EXCLUDED.learned_cup_size_g,
			cups_left=EXCLUDED.cups_left,
			avg_daily_consumption_g=EXCLUDED.avg_daily_consumption_g,
			percent_full=EXCLUDED.percent_full,
			expected_empty_date=EXCLUDED.expected_empty_date,
			updated_at=EXCLUDED.updated_at`,
		stats.DeviceID,
		stats.CurrentAmountG,
		stats.LearnedCupSizeG,
		stats.CupsLeft,
		nullFloat(stats.LearnedDailyG),
		nullFloat(stats.PercentFull),
		emptyDate,
		stats.UpdatedAt.UTC(),
	)
	return err
}

func (s *postgresStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (alert_id, ts, device_id, user_id, kind, weight_g, threshold_g)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		alert.ID,
		alert.Timestamp.UTC(),
		alert.DeviceID,
		alert.UserID,
		string(alert.Kind),
		alert.WeightGrams,
		alert.ThresholdG,
	)
	return err
}
