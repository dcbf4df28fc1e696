// Package storage provides ArtifactStore implementations for the local
// filesystem and S3-compatible object stores.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ahrav/go-bankprep/internal/domain"
	"github.com/ahrav/go-bankprep/internal/ports"
)

var _ ports.ArtifactStore = (*FileStore)(nil)

const backendFS = "fs"

// ErrInvalidKey indicates a key that would escape the store root.
var ErrInvalidKey = errors.New("invalid artifact key")

// FileStore keeps artifacts as files under a root directory. Keys are
// slash-separated paths relative to the root.
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed and returns a store on it.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("file store root is required: %w", domain.ErrInvalidConfiguration)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, ports.NewStorageError(backendFS, root, "init", err)
	}
	return &FileStore{root: root}, nil
}

// Root returns the directory the store writes under.
func (s *FileStore) Root() string { return s.root }

func (s *FileStore) path(key string) (string, error) {
	rel := filepath.FromSlash(key)
	if key == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, rel), nil
}

// Put writes data to a temporary file in the destination directory, syncs
// it, and renames it over the key. Readers see either the old file or the
// complete new one.
func (s *FileStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := s.path(key)
	if err != nil {
		return ports.NewStorageError(backendFS, key, "put", err)
	}
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ports.NewStorageError(backendFS, key, "put", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return ports.NewStorageError(backendFS, key, "put", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return ports.NewStorageError(backendFS, key, "put", err)
	}
	if err := tmp.Sync(); err != nil {
		return ports.NewStorageError(backendFS, key, "put", err)
	}
	if err := tmp.Close(); err != nil {
		return ports.NewStorageError(backendFS, key, "put", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return ports.NewStorageError(backendFS, key, "put", err)
	}
	committed = true

	// Persist the rename itself.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// Get reads the artifact stored under key.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, ports.NewStorageError(backendFS, key, "get", err)
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ports.NewStorageError(backendFS, key, "get", domain.ErrArtifactNotFound)
	}
	if err != nil {
		return nil, ports.NewStorageError(backendFS, key, "get", err)
	}
	return data, nil
}

// Exists reports whether a file is stored under key.
func (s *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, err := s.path(key)
	if err != nil {
		return false, ports.NewStorageError(backendFS, key, "exists", err)
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, ports.NewStorageError(backendFS, key, "exists", err)
	}
	return info.Mode().IsRegular(), nil
}
