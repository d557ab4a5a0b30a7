// Package archive persists committed event batches outside the transaction
// boundary, as durable JSON objects in a pluggable backend (filesystem, S3 /
// MinIO, or memory for tests). Archiving is best-effort by design: the
// journal sink inside the commit is authoritative, the archive is for
// retention and offline audit.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"unitcore/pkg/domain"
)

// Backend identifies a concrete archive backend implementation.
type Backend string

const (
	BackendFilesystem Backend = "fs"     // local filesystem (default, dev)
	BackendS3         Backend = "s3"     // S3 / MinIO compatible
	BackendMemory     Backend = "memory" // in-memory (tests)
)

// Ref describes a stored batch object.
type Ref struct {
	Key      string    `json:"key"`
	Size     int64     `json:"size_bytes"`
	StoredAt time.Time `json:"stored_at"`
}

// Store is the storage surface an archive backend must provide. Put is
// create-only: a key collision is an error, so a batch can never be silently
// overwritten.
type Store interface {
	Put(ctx context.Context, key string, data []byte) (Ref, error)
	Get(ctx context.Context, key string) (Ref, []byte, error)
	List(ctx context.Context, prefix string) ([]Ref, error)
	Backend() Backend
}

// Envelope is the JSON document written per committed batch.
type Envelope struct {
	ArchivedAt time.Time      `json:"archived_at"`
	Count      int            `json:"count"`
	Events     []domain.Event `json:"events"`
}

// Writer turns committed batches into archive objects under a key prefix.
type Writer struct {
	store  Store
	prefix string
	nowFn  func() time.Time
	seq    atomic.Uint64
}

// NewWriter constructs a batch writer over the given backend.
func NewWriter(store Store, prefix string) *Writer {
	if prefix == "" {
		prefix = "batches"
	}
	return &Writer{
		store:  store,
		prefix: prefix,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// Archive writes the batch as one JSON object and returns its key.
func (w *Writer) Archive(ctx context.Context, batch []domain.Event) (string, error) {
	if len(batch) == 0 {
		return "", nil
	}
	now := w.nowFn()
	env := Envelope{ArchivedAt: now, Count: len(batch), Events: batch}
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode batch: %w", err)
	}
	key := fmt.Sprintf("%s/%s-%06d.json", w.prefix, now.Format("20060102T150405.000000000Z"), w.seq.Add(1))
	if _, err := w.store.Put(ctx, key, data); err != nil {
		return "", fmt.Errorf("store batch: %w", err)
	}
	return key, nil
}

// Load reads an archived envelope back by key.
func (w *Writer) Load(ctx context.Context, key string) (Envelope, error) {
	_, data, err := w.store.Get(ctx, key)
	if err != nil {
		return Envelope{}, fmt.Errorf("load batch: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode batch: %w", err)
	}
	return env, nil
}

// Keys lists archived batch keys under the writer's prefix, ascending.
func (w *Writer) Keys(ctx context.Context) ([]string, error) {
	refs, err := w.store.List(ctx, w.prefix+"/")
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(refs))
	for _, ref := range refs {
		keys = append(keys, ref.Key)
	}
	return keys, nil
}
