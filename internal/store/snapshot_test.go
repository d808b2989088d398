package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot(t *testing.T) *domain.Snapshot {
	t.Helper()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestSpace(WithClock(func() time.Time { return fixed }))
	deriveFixture(t, s)
	mustInsert(t, s, domain.NewNode(domain.ConceptNode, "focus").WithAV(0.4, 0.2))
	mustInsert(t, s, domain.NewNode(domain.ConceptNode, "rain").WithTV(0.5, 0.5))
	return s.Snapshot()
}

func assertRoundTrip(t *testing.T, want, got *domain.Snapshot) {
	t.Helper()
	assert.Equal(t, want.Version, got.Version)
	assert.True(t, want.SavedAt.Equal(got.SavedAt))
	assert.Equal(t, want.Atoms, got.Atoms)
	require.Len(t, got.Steps, len(want.Steps))
	for i := range want.Steps {
		w, g := want.Steps[i], got.Steps[i]
		assert.True(t, w.CreatedAt.Equal(g.CreatedAt))
		w, g = w.Clone(), g.Clone()
		w.CreatedAt, g.CreatedAt = time.Time{}, time.Time{}
		assert.Equal(t, w, g)
	}

	restored := newTestSpace()
	require.NoError(t, restored.Restore(got))
	assert.Equal(t, len(want.Atoms), restored.Len())
}

func TestFileSnapshotter(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kb", "atomspace.json")
	fs := NewFileSnapshotter(path)

	_, err := fs.Load(ctx)
	assert.True(t, errors.Is(err, ErrNotFound))

	want := sampleSnapshot(t)
	require.NoError(t, fs.Save(ctx, want))
	got, err := fs.Load(ctx)
	require.NoError(t, err)
	assertRoundTrip(t, want, got)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestSQLiteSnapshotter(t *testing.T) {
	ctx := context.Background()
	ss, err := OpenSQLiteSnapshotter(ctx, filepath.Join(t.TempDir(), "atomspace.db"))
	require.NoError(t, err)
	defer ss.Close()

	_, err = ss.Load(ctx)
	assert.True(t, errors.Is(err, ErrNotFound))

	want := sampleSnapshot(t)
	require.NoError(t, ss.Save(ctx, want))
	require.NoError(t, ss.Save(ctx, want), "saving twice replaces the snapshot")

	got, err := ss.Load(ctx)
	require.NoError(t, err)
	assertRoundTrip(t, want, got)
}

func TestPostgresSnapshotter(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	defer pool.Close()

	ps := NewPostgresSnapshotter(pool)
	require.NoError(t, ps.EnsureSchema(ctx))

	want := sampleSnapshot(t)
	require.NoError(t, ps.Save(ctx, want))
	got, err := ps.Load(ctx)
	require.NoError(t, err)
	assertRoundTrip(t, want, got)
}

func TestOpenSnapshotter(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, closeFn, err := OpenSnapshotter(ctx, SnapshotConfig{Backend: BackendNone})
	require.NoError(t, err)
	assert.Nil(t, s)
	closeFn()

	s, closeFn, err = OpenSnapshotter(ctx, SnapshotConfig{Backend: BackendFile, Path: filepath.Join(dir, "a.json")})
	require.NoError(t, err)
	assert.IsType(t, &FileSnapshotter{}, s)
	closeFn()

	s, closeFn, err = OpenSnapshotter(ctx, SnapshotConfig{Backend: BackendSQLite, Path: filepath.Join(dir, "a.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteSnapshotter{}, s)
	closeFn()

	_, _, err = OpenSnapshotter(ctx, SnapshotConfig{Backend: BackendPostgres})
	require.Error(t, err, "postgres needs a database url")

	_, _, err = OpenSnapshotter(ctx, SnapshotConfig{Backend: "mongodb"})
	require.Error(t, err)
}
