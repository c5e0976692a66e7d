package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migration is one schema step, applied at most once.
type migration struct {
	Version string
	SQL     string
}

// migrations are applied in order. expiration_time is nullable so rows
// imported from sidecar files without one fall back to file age.
var migrations = []migration{
	{
		Version: "000001_create_descriptors",
		SQL: `
			CREATE TABLE IF NOT EXISTS descriptors (
				storage_key       VARCHAR(255) PRIMARY KEY,
				description       TEXT         NOT NULL DEFAULT '',
				uploader_ip       VARCHAR(64)  NOT NULL DEFAULT '',
				uploader_device   TEXT         NOT NULL DEFAULT '',
				upload_time       TIMESTAMPTZ,
				expiration_time   TIMESTAMPTZ,
				original_filename TEXT         NOT NULL DEFAULT '',
				password_hash     VARCHAR(255),
				created_at        TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_descriptors_expiration_time ON descriptors(expiration_time);
		`,
	},
}

// DB wraps a pgxpool connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// New opens a pool on databaseURL and pings it.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("connected to database", "host", config.ConnConfig.Host, "database", config.ConnConfig.Database)
	return &DB{Pool: pool}, nil
}

// RunMigrations applies pending migrations, each in its own transaction.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range migrations {
		applied, err := db.apply(ctx, m)
		if err != nil {
			return err
		}
		if applied {
			slog.Info("applied migration", "version", m.Version)
		}
	}
	return nil
}

func (db *DB) apply(ctx context.Context, m migration) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
		m.Version,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check migration status for %s: %w", m.Version, err)
	}
	if exists {
		return false, nil
	}

	err = pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// HealthCheck verifies the database connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
