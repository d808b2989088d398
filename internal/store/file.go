package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/cockroachdb/errors"
)

// FileSnapshotter keeps a snapshot as one JSON document on disk.
type FileSnapshotter struct {
	path string
}

var _ domain.Snapshotter = (*FileSnapshotter)(nil)

func NewFileSnapshotter(path string) *FileSnapshotter {
	return &FileSnapshotter{path: path}
}

func (f *FileSnapshotter) Save(ctx context.Context, s *domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, f.path), "replace %s", f.path)
}

func (f *FileSnapshotter) Load(ctx context.Context) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrapf(ErrNotFound, "snapshot %s", f.path)
		}
		return nil, errors.Wrapf(err, "read %s", f.path)
	}
	var s domain.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrapf(err, "decode %s", f.path)
	}
	return &s, nil
}
