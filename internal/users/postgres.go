package users

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"

	"milkwatch/internal/model"
)

// PostgresDirectory reads the users table owned by the account service. The
// threshold_wanted column carries the optional personal low threshold.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(dsn string) (*PostgresDirectory, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open users db: %w", err)
	}
	return &PostgresDirectory{db: db}, nil
}

func (d *PostgresDirectory) FindByDevice(ctx context.Context, deviceID string) ([]model.User, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, COALESCE(full_name, username), email, COALESCE(threshold_wanted, 0)
		FROM users
		WHERE device_id = $1`,
		deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query users by device: %w", err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var id int64
		var u model.User
		if err := rows.Scan(&id, &u.DisplayName, &u.Email, &u.ThresholdG); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		u.ID = strconv.FormatInt(id, 10)
		u.DeviceID = deviceID
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}
	return out, nil
}

func (d *PostgresDirectory) Close() error {
	return d.db.Close()
}
