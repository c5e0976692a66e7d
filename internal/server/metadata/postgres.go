package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relay/internal/server/database"

	"github.com/jackc/pgx/v5"
)

// PostgresStore keeps descriptors in the descriptors table.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a store on an already migrated database.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Put inserts or replaces the descriptor for key.
func (s *PostgresStore) Put(ctx context.Context, key string, d *Descriptor) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO descriptors (
			storage_key, description, uploader_ip, uploader_device,
			upload_time, expiration_time, original_filename, password_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (storage_key) DO UPDATE SET
			description       = EXCLUDED.description,
			uploader_ip       = EXCLUDED.uploader_ip,
			uploader_device   = EXCLUDED.uploader_device,
			upload_time       = EXCLUDED.upload_time,
			expiration_time   = EXCLUDED.expiration_time,
			original_filename = EXCLUDED.original_filename,
			password_hash     = EXCLUDED.password_hash
	`,
		key,
		d.Description,
		d.Uploader.IP,
		d.Uploader.Device,
		nullableTime(d.UploadTime),
		nullableTime(d.ExpirationTime),
		d.OriginalFilename,
		nullableString(d.PasswordHash),
	)
	if err != nil {
		return fmt.Errorf("failed to store descriptor: %w", err)
	}
	return nil
}

// Get returns the descriptor for key, or nil if there is none.
func (s *PostgresStore) Get(ctx context.Context, key string) (*Descriptor, error) {
	var (
		d            Descriptor
		uploadTime   *time.Time
		expiration   *time.Time
		passwordHash *string
	)
	err := s.db.Pool.QueryRow(ctx, `
		SELECT description, uploader_ip, uploader_device,
			   upload_time, expiration_time, original_filename, password_hash
		FROM descriptors WHERE storage_key = $1
	`, key).Scan(
		&d.Description,
		&d.Uploader.IP,
		&d.Uploader.Device,
		&uploadTime,
		&expiration,
		&d.OriginalFilename,
		&passwordHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get descriptor: %w", err)
	}
	if uploadTime != nil {
		d.UploadTime = NewTimestamp(*uploadTime)
	}
	if expiration != nil {
		d.ExpirationTime = NewTimestamp(*expiration)
	}
	if passwordHash != nil {
		d.PasswordHash = *passwordHash
	}
	return &d, nil
}

// Delete removes the descriptor row, if any.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.Pool.Exec(ctx, "DELETE FROM descriptors WHERE storage_key = $1", key); err != nil {
		return fmt.Errorf("failed to delete descriptor: %w", err)
	}
	return nil
}

// Keys returns every storage key with a descriptor row.
func (s *PostgresStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.Pool.Query(ctx, "SELECT storage_key FROM descriptors")
	if err != nil {
		return nil, fmt.Errorf("failed to list descriptors: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan descriptor keys: %w", err)
	}
	return keys, nil
}

// Ping checks the connection pool.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

func nullableTime(ts Timestamp) *time.Time {
	if ts.IsZero() {
		return nil
	}
	t := ts.Time
	return &t
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
