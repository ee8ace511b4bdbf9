package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Fixed keys, one value per visitor each.
const (
	KeyCart         = "banner-cart"
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
)

// LocalStorage is durable per-visitor key/value storage.
type LocalStorage struct {
	db *sql.DB
}

func NewLocalStorage(db *sql.DB) *LocalStorage {
	return &LocalStorage{db: db}
}

// Get returns the stored value and whether it was present.
func (s *LocalStorage) Get(ctx context.Context, visitorID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM local_storage WHERE visitor_id = ? AND key = ?
	`, visitorID, key).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *LocalStorage) Set(ctx context.Context, visitorID, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO local_storage (visitor_id, key, value, updated_at) VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT (visitor_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, visitorID, key, value)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Remove deletes a key. Removing an absent key is not an error.
func (s *LocalStorage) Remove(ctx context.Context, visitorID, key string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM local_storage WHERE visitor_id = ? AND key = ?
	`, visitorID, key)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// Clear removes every key stored for a visitor.
func (s *LocalStorage) Clear(ctx context.Context, visitorID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM local_storage WHERE visitor_id = ?
	`, visitorID)
	if err != nil {
		return fmt.Errorf("failed to clear visitor storage: %w", err)
	}
	return nil
}

// PruneBefore deletes every value of the visitors that have not written
// anything since cutoff and returns how many rows were removed. A visitor
// is kept whole while any of its keys is still fresh.
func (s *LocalStorage) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM local_storage WHERE visitor_id IN (
			SELECT visitor_id FROM local_storage
			GROUP BY visitor_id
			HAVING MAX(updated_at) < ?
		)
	`, cutoff.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, fmt.Errorf("failed to prune local storage: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// Scope binds the storage to one visitor.
func (s *LocalStorage) Scope(visitorID string) *Scoped {
	return &Scoped{storage: s, visitorID: visitorID}
}

// Scoped is LocalStorage for a single visitor.
type Scoped struct {
	storage   *LocalStorage
	visitorID string
}

func (s *Scoped) Get(ctx context.Context, key string) (string, bool, error) {
	return s.storage.Get(ctx, s.visitorID, key)
}

func (s *Scoped) Set(ctx context.Context, key, value string) error {
	return s.storage.Set(ctx, s.visitorID, key, value)
}

func (s *Scoped) Remove(ctx context.Context, key string) error {
	return s.storage.Remove(ctx, s.visitorID, key)
}
