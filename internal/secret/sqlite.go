package secret

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// connectSecretName is the row key for the Atlassian Connect secret.
const connectSecretName = "atlassian_connect"

// SQLiteStore keeps the secret in the shared_secret table created by
// storage.OpenSQLite.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Exists(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM shared_secret WHERE name = ?;", connectSecretName).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query shared secret: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Get(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM shared_secret WHERE name = ?;", connectSecretName).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read shared secret: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) PutIfAbsent(ctx context.Context, value string) error {
	if value == "" {
		return ErrEmptySecret
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
INSERT INTO shared_secret(name, value, created_at)
VALUES(?, ?, ?)
ON CONFLICT(name) DO NOTHING;
`, connectSecretName, value, now)
	if err != nil {
		return fmt.Errorf("insert shared secret: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert shared secret: %w", err)
	}
	if n == 0 {
		return ErrAlreadyProvisioned
	}
	return nil
}
