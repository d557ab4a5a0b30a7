// Package fs implements a filesystem-backed archive Store. Keys map to
// relative file paths under the root; writes go through a temp file and an
// atomic rename so a crashed archiver never leaves a partial batch behind.
package fs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"unitcore/internal/archive"
)

// Compile-time contract assertion.
var _ archive.Store = (*Store)(nil)

// Store implements archive.Store using the local filesystem.
type Store struct {
	root string
}

// New returns a filesystem-backed archive store rooted at path, creating it
// if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = "./archivedata"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

// Backend returns the backend identifier.
func (s *Store) Backend() archive.Backend { return archive.BackendFilesystem }

// Root returns the configured root directory.
func (s *Store) Root() string { return s.root }

// sanitizeKey forbids path traversal and absolute paths so keys cannot
// escape the root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key contains '..'")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key")
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid key traversal")
	}
	return clean, nil
}

func (s *Store) pathFor(key string) (string, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(k)), nil
}

// Put writes a new object; errors if the key already exists.
func (s *Store) Put(_ context.Context, key string, data []byte) (archive.Ref, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return archive.Ref{}, err
	}
	if _, err := os.Stat(path); err == nil {
		return archive.Ref{}, fmt.Errorf("archive object %s already exists", key)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return archive.Ref{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return archive.Ref{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return archive.Ref{}, err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return archive.Ref{}, err
	}
	if err := tmp.Close(); err != nil {
		return archive.Ref{}, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return archive.Ref{}, err
	}
	return archive.Ref{Key: key, Size: int64(len(data)), StoredAt: time.Now().UTC()}, nil
}

// Get returns object metadata and contents.
func (s *Store) Get(_ context.Context, key string) (archive.Ref, []byte, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return archive.Ref{}, nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return archive.Ref{}, nil, fmt.Errorf("archive object %s not found", key)
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path is sanitized against the root
	if err != nil {
		return archive.Ref{}, nil, err
	}
	return archive.Ref{Key: key, Size: info.Size(), StoredAt: info.ModTime().UTC()}, data, nil
}

// List walks the root and returns objects matching prefix, key ascending.
func (s *Store) List(_ context.Context, prefix string) ([]archive.Ref, error) {
	var out []archive.Ref
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(filepath.Base(key), ".tmp-") {
			return nil
		}
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, archive.Ref{Key: key, Size: info.Size(), StoredAt: info.ModTime().UTC()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
