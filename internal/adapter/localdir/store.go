// Package localdir mirrors partitions into a directory, typically a mounted
// network share. Blob ids are slash-separated paths relative to the root.
package localdir

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Store is a replication.BlobStore over a local directory.
type Store struct {
	root string
}

// New returns a Store rooted at root, creating it if needed.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create replica dir: %w", err)
	}
	return &Store{root: root}, nil
}

// List returns the id of parent/name when the file exists.
func (s *Store) List(ctx context.Context, parent, name string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, err := blobID(parent, name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(s.abs(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", id, err)
	}
	if !info.Mode().IsRegular() {
		return nil, nil
	}
	return []string{id}, nil
}

// Create writes a new blob and returns its id.
func (s *Store) Create(ctx context.Context, parent, name string, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := blobID(parent, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(s.abs(id)), 0o755); err != nil {
		return "", fmt.Errorf("create parent %s: %w", parent, err)
	}
	if err := s.write(id, content); err != nil {
		return "", err
	}
	return id, nil
}

// Update replaces the content of an existing blob.
func (s *Store) Update(ctx context.Context, id string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !fs.ValidPath(id) {
		return fmt.Errorf("invalid blob id %q", id)
	}
	if _, err := os.Stat(s.abs(id)); err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	return s.write(id, content)
}

// write replaces the file atomically so readers of the share never see a
// partial partition.
func (s *Store) write(id string, content []byte) error {
	target := s.abs(id)
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", id, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", id, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", id, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("rename %s: %w", id, err)
	}
	return nil
}

func (s *Store) abs(id string) string {
	return filepath.Join(s.root, filepath.FromSlash(id))
}

func blobID(parent, name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid blob name %q", name)
	}
	id := path.Join(parent, name)
	if !fs.ValidPath(id) {
		return "", fmt.Errorf("invalid blob parent %q", parent)
	}
	return id, nil
}
