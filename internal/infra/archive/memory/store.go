// Package memory implements an in-memory archive Store for tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"unitcore/internal/archive"
)

// Compile-time contract assertion.
var _ archive.Store = (*Store)(nil)

type entry struct {
	ref  archive.Ref
	data []byte
}

// Store implements archive.Store backed by process memory.
type Store struct {
	mu   sync.RWMutex
	objs map[string]entry
}

// New returns an in-memory archive store.
func New() *Store { return &Store{objs: make(map[string]entry)} }

// Backend returns the backend identifier.
func (s *Store) Backend() archive.Backend { return archive.BackendMemory }

// Put stores a new object; errors if key exists.
func (s *Store) Put(_ context.Context, key string, data []byte) (archive.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objs[key]; exists {
		return archive.Ref{}, fmt.Errorf("archive object %s already exists", key)
	}
	b := make([]byte, len(data))
	copy(b, data)
	ref := archive.Ref{Key: key, Size: int64(len(b)), StoredAt: time.Now().UTC()}
	s.objs[key] = entry{ref: ref, data: b}
	return ref, nil
}

// Get returns object metadata and contents.
func (s *Store) Get(_ context.Context, key string) (archive.Ref, []byte, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return archive.Ref{}, nil, fmt.Errorf("archive object %s not found", key)
	}
	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	return obj.ref, data, nil
}

// List returns all objects matching prefix, ordered by key ascending.
func (s *Store) List(_ context.Context, prefix string) ([]archive.Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]archive.Ref, 0, len(s.objs))
	for k, v := range s.objs {
		if prefix == "" || strings.HasPrefix(k, prefix) {
			out = append(out, v.ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
