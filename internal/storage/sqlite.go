package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"milkwatch/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:milkwatch.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS weight_data (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			weight REAL NOT NULL,
			observed_at TEXT NOT NULL,
			UNIQUE(device_id, observed_at)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_weight_device_ts ON weight_data(device_id, observed_at)`,
		`CREATE TABLE IF NOT EXISTS user_stats (
			container_id TEXT PRIMARY KEY,
			current_amount_g REAL,
			learned_cup_size_g REAL,
			cups_left REAL,
			avg_daily_consumption_g REAL,
			percent_full REAL,
			expected_empty_date TEXT,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			alert_id TEXT NOT NULL,
			ts TEXT NOT NULL,
			device_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			weight_g REAL NOT NULL,
			threshold_g REAL
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

func (s *sqliteStore) SaveReading(ctx context.Context, r model.Reading) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO weight_data (device_id, weight, observed_at) VALUES (?, ?, ?)`,
		r.DeviceID,
		r.WeightGrams,
		r.ObservedAt.UTC(),
	)
	return err
}

func (s *sqliteStore) SaveStats(ctx context.Context, stats model.UsageStats) error {
	if s.db == nil || stats.DeviceID == "" {
		return nil
	}
	var emptyDate any
	if stats.EmptyDate != nil {
		emptyDate = stats.EmptyDate.Format("2006-01-02")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_stats (
			container_id, current_amount_g, learned_cup_size_g, cups_left,
			avg_daily_consumption_g, percent_full, expected_empty_date, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(container_id) DO UPDATE SET
			current_amount_g=excluded.current_amount_g,
			learned_cup_size_g=excluded.learned_cup_size_g,
			cups_left=excluded.cups_left,
			avg_daily_consumption_g=excluded.avg_daily_consumption_g,
			percent_full=excluded.percent_full,
			expected_empty_date=excluded.expected_empty_date,
			updated_at=excluded.updated_at`,
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

func (s *sqliteStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (alert_id, ts, device_id, user_id, kind, weight_g, threshold_g)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
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
