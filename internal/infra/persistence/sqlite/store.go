// Package sqlite provides a SQLite-backed persistence adapter. Entities are
// stored in a single generic table keyed by (kind, id) with a JSON payload
// and a version column; nested scopes map to native SAVEPOINTs.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"unitcore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.Adapter = (*Store)(nil)

// Store is the SQLite adapter.
type Store struct {
	db    *sql.DB
	path  string
	newID func() string
}

// NewStore opens (creating if needed) the database at path and ensures the
// entities table exists.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "unitcore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Savepoint semantics require all statements of one scope on one connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS entities (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		payload BLOB NOT NULL,
		version INTEGER NOT NULL,
		PRIMARY KEY (kind, id)
	)`); err != nil {
		return nil, fmt.Errorf("create entities table: %w", err)
	}
	return &Store{db: db, path: path, newID: uuid.NewString}, nil
}

// Begin opens a storage transaction.
func (s *Store) Begin(ctx context.Context) (domain.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &sqlTx{tx: tx, newID: s.newID}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Get reads the committed fields and version for a key outside any scope.
func (s *Store) Get(ctx context.Context, t domain.EntityType, id string) (map[string]any, int64, bool, error) {
	var payload []byte
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, version FROM entities WHERE kind=? AND id=?`, string(t), id).
		Scan(&payload, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("select entity: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, 0, false, fmt.Errorf("decode payload: %w", err)
	}
	return fields, version, true, nil
}

// Count reports the number of committed rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entities: %w", err)
	}
	return n, nil
}

type sqlTx struct {
	tx    *sql.Tx
	newID func() string
}

func (t *sqlTx) Insert(ctx context.Context, e domain.Entity) (string, error) {
	fields, err := e.Fields()
	if err != nil {
		return "", fmt.Errorf("fields: %w", err)
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	id := t.newID()
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO entities(kind,id,payload,version) VALUES(?,?,?,1)`,
		string(e.Kind()), id, payload); err != nil {
		return "", fmt.Errorf("insert %s: %w", e.Kind(), err)
	}
	return id, nil
}

func (t *sqlTx) Update(ctx context.Context, e domain.Entity, expectedVersion int64) error {
	key := domain.KeyOf(e)
	var persisted int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT version FROM entities WHERE kind=? AND id=?`, string(key.Type), key.ID).
		Scan(&persisted)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s not found", key)
	}
	if err != nil {
		return fmt.Errorf("select version: %w", err)
	}
	if err := domain.CheckVersion(key.Type, key.ID, expectedVersion, persisted); err != nil {
		return err
	}
	fields, err := e.Fields()
	if err != nil {
		return fmt.Errorf("fields: %w", err)
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE entities SET payload=?, version=? WHERE kind=? AND id=? AND version=?`,
		payload, expectedVersion+1, string(key.Type), key.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return &domain.ConflictError{Type: key.Type, ID: key.ID, Expected: expectedVersion, Actual: persisted}
	}
	return nil
}

func (t *sqlTx) Delete(ctx context.Context, kind domain.EntityType, id string) error {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM entities WHERE kind=? AND id=?`, string(kind), id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", kind, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s/%s not found", kind, id)
	}
	return nil
}

func (t *sqlTx) Savepoint(ctx context.Context, name string) error {
	if !validSavepointName(name) {
		return fmt.Errorf("invalid savepoint name %q", name)
	}
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}
	return nil
}

func (t *sqlTx) RollbackTo(ctx context.Context, name string) error {
	if !validSavepointName(name) {
		return fmt.Errorf("invalid savepoint name %q", name)
	}
	if _, err := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
		return fmt.Errorf("rollback to %s: %w", name, err)
	}
	return nil
}

func (t *sqlTx) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.tx.Commit()
}

func (t *sqlTx) Rollback(_ context.Context) error {
	return t.tx.Rollback()
}

// validSavepointName restricts savepoint identifiers to the engine's own
// naming scheme; names are interpolated into SQL and must never carry user
// input.
func validSavepointName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' {
			continue
		}
		return false
	}
	return true
}
