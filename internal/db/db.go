// Package db is the optional PostgreSQL sighting log.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/unklstewy/overhead/pkg/config"
)

//go:embed schema.sql
var schemaSQL embed.FS

// DB wraps a database connection with helper methods.
type DB struct {
	*sql.DB
	config config.DatabaseConfig
}

// DSN builds a lib/pq connection string from the configuration.
func DSN(cfg config.DatabaseConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=5",
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
		sslMode,
	)
}

// Connect establishes a connection to the PostgreSQL database.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	sqlDB, err := sql.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: sqlDB, config: cfg}, nil
}

// InitSchema creates the sighting log tables if they do not exist.
func (db *DB) InitSchema(ctx context.Context) error {
	schemaBytes, err := schemaSQL.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	if _, err := db.ExecContext(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// CleanupOldData removes sightings and notifications older than maxAge.
// Should be called periodically to prevent unbounded growth.
func (db *DB) CleanupOldData(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	res, err := db.ExecContext(ctx, `DELETE FROM sightings WHERE seen_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old sightings: %w", err)
	}
	removed, _ := res.RowsAffected()

	if _, err := db.ExecContext(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff); err != nil {
		return removed, fmt.Errorf("failed to delete old notifications: %w", err)
	}

	return removed, nil
}

// Stats summarises the sighting log.
type Stats struct {
	Sightings        int64      `json:"sightings"`
	DistinctAircraft int64      `json:"distinct_aircraft"`
	Notifications    int64      `json:"notifications"`
	LastSighting     *time.Time `json:"last_sighting,omitempty"`
}

// GetStats returns database statistics.
func (db *DB) GetStats(ctx context.Context) (Stats, error) {
	var (
		stats Stats
		last  sql.NullTime
	)

	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT icao), MAX(seen_at) FROM sightings`,
	).Scan(&stats.Sightings, &stats.DistinctAircraft, &last)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count sightings: %w", err)
	}
	if last.Valid {
		stats.LastSighting = &last.Time
	}

	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`).Scan(&stats.Notifications)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count notifications: %w", err)
	}

	return stats, nil
}
