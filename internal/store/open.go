package store

import (
	"context"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendNone     = "none"
)

// SnapshotConfig selects and locates a snapshot backend.
type SnapshotConfig struct {
	Backend     string
	Path        string
	DatabaseURL string
}

// OpenSnapshotter opens the configured backend. The none backend returns a
// nil Snapshotter. The returned close func is never nil.
func OpenSnapshotter(ctx context.Context, cfg SnapshotConfig) (domain.Snapshotter, func(), error) {
	switch cfg.Backend {
	case BackendNone:
		return nil, func() {}, nil
	case BackendSQLite:
		s, err := OpenSQLiteSnapshotter(ctx, cfg.Path)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open sqlite snapshot")
		}
		return s, func() { _ = s.Close() }, nil
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, nil, errors.New("DATABASE_URL is required for the postgres snapshot backend")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "connect to database")
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, errors.Wrap(err, "ping database")
		}
		s := NewPostgresSnapshotter(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, errors.Wrap(err, "create snapshot schema")
		}
		return s, pool.Close, nil
	case BackendFile, "":
		return NewFileSnapshotter(cfg.Path), func() {}, nil
	default:
		return nil, nil, errors.Newf("unknown snapshot backend %q", cfg.Backend)
	}
}
