package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/bannerfront/internal/db"
)

func openTestDB(t *testing.T) *sql.DB {
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestLocalStorageSetAndGet(t *testing.T) {
	s := NewLocalStorage(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "visitor-1", KeyCart, `{"items":[]}`))

	value, ok, err := s.Get(ctx, "visitor-1", KeyCart)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"items":[]}`, value)
}

func TestLocalStorageGetMissing(t *testing.T) {
	s := NewLocalStorage(openTestDB(t))

	value, ok, err := s.Get(context.Background(), "visitor-1", KeyUser)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, value)
}

func TestLocalStorageSetOverwrites(t *testing.T) {
	s := NewLocalStorage(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "v", KeyAccessToken, "old"))
	require.NoError(t, s.Set(ctx, "v", KeyAccessToken, "new"))

	value, _, err := s.Get(ctx, "v", KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "new", value)
}

func TestLocalStorageVisitorsAreIsolated(t *testing.T) {
	s := NewLocalStorage(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "alice", KeyUser, "a"))

	_, ok, err := s.Get(ctx, "bob", KeyUser)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStorageRemoveAndClear(t *testing.T) {
	s := NewLocalStorage(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "v", KeyAccessToken, "a"))
	require.NoError(t, s.Set(ctx, "v", KeyRefreshToken, "r"))
	require.NoError(t, s.Set(ctx, "v", KeyCart, "c"))

	require.NoError(t, s.Remove(ctx, "v", KeyAccessToken))
	require.NoError(t, s.Remove(ctx, "v", KeyAccessToken), "removing twice is fine")

	_, ok, err := s.Get(ctx, "v", KeyAccessToken)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Clear(ctx, "v"))
	_, ok, err = s.Get(ctx, "v", KeyCart)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStoragePruneBefore(t *testing.T) {
	d := openTestDB(t)
	s := NewLocalStorage(d)
	ctx := context.Background()

	_, err := d.Exec(`INSERT INTO local_storage (visitor_id, key, value, updated_at) VALUES ('old', 'k', 'v', '2020-01-01 00:00:00')`)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "fresh", "k", "v"))

	n, err := s.PruneBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok, err := s.Get(ctx, "fresh", "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalStoragePruneBeforeKeepsVisitorWithFreshKey(t *testing.T) {
	d := openTestDB(t)
	s := NewLocalStorage(d)
	ctx := context.Background()

	_, err := d.Exec(`INSERT INTO local_storage (visitor_id, key, value, updated_at) VALUES ('v', ?, 'rt', '2020-01-01 00:00:00')`, KeyRefreshToken)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "v", KeyCart, "[]"))

	n, err := s.PruneBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	value, ok, err := s.Get(ctx, "v", KeyRefreshToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "rt", value)
}

func TestLocalStoragePruneBeforeDropsWholeStaleVisitor(t *testing.T) {
	d := openTestDB(t)
	s := NewLocalStorage(d)
	ctx := context.Background()

	_, err := d.Exec(`INSERT INTO local_storage (visitor_id, key, value, updated_at) VALUES
		('gone', ?, 'rt', '2020-01-01 00:00:00'),
		('gone', ?, '[]', '2020-02-01 00:00:00')`, KeyRefreshToken, KeyCart)
	require.NoError(t, err)

	n, err := s.PruneBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, ok, err := s.Get(ctx, "gone", KeyCart)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScoped(t *testing.T) {
	s := NewLocalStorage(openTestDB(t))
	ctx := context.Background()
	scoped := s.Scope("visitor-9")

	require.NoError(t, scoped.Set(ctx, KeyRefreshToken, "rt"))
	value, ok, err := s.Get(ctx, "visitor-9", KeyRefreshToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "rt", value)

	require.NoError(t, scoped.Remove(ctx, KeyRefreshToken))
	_, ok, err = scoped.Get(ctx, KeyRefreshToken)
	require.NoError(t, err)
	assert.False(t, ok)
}
