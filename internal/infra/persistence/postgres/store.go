// Package postgres provides a Postgres-backed persistence adapter mirroring
// the sqlite adapter's generic entity table, with JSONB payloads and native
// savepoints.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"unitcore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.Adapter = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/unitcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store is the Postgres adapter.
type Store struct {
	db    *sql.DB
	newID func() string
}

// NewStore opens a Postgres-backed adapter using the provided DSN (falls
// back to defaultDSN) and ensures the entities table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS entities (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		payload JSONB NOT NULL,
		version BIGINT NOT NULL,
		PRIMARY KEY (kind, id)
	)`); err != nil {
		return nil, fmt.Errorf("create entities table: %w", err)
	}
	return &Store{db: db, newID: uuid.NewString}, nil
}

// Begin opens a storage transaction.
func (s *Store) Begin(ctx context.Context) (domain.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &pgTx{tx: tx, newID: s.newID}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Get reads the committed fields and version for a key outside any scope.
func (s *Store) Get(ctx context.Context, t domain.EntityType, id string) (map[string]any, int64, bool, error) {
	var payload []byte
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, version FROM entities WHERE kind=$1 AND id=$2`, string(t), id).
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

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore
// function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}

type pgTx struct {
	tx    *sql.Tx
	newID func() string
}

func (t *pgTx) Insert(ctx context.Context, e domain.Entity) (string, error) {
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
		`INSERT INTO entities(kind,id,payload,version) VALUES($1,$2,$3,1)`,
		string(e.Kind()), id, payload); err != nil {
		return "", fmt.Errorf("insert %s: %w", e.Kind(), err)
	}
	return id, nil
}

func (t *pgTx) Update(ctx context.Context, e domain.Entity, expectedVersion int64) error {
	key := domain.KeyOf(e)
	var persisted int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT version FROM entities WHERE kind=$1 AND id=$2 FOR UPDATE`, string(key.Type), key.ID).
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
		`UPDATE entities SET payload=$1, version=$2 WHERE kind=$3 AND id=$4 AND version=$5`,
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

func (t *pgTx) Delete(ctx context.Context, kind domain.EntityType, id string) error {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM entities WHERE kind=$1 AND id=$2`, string(kind), id)
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

func (t *pgTx) Savepoint(ctx context.Context, name string) error {
	if !validSavepointName(name) {
		return fmt.Errorf("invalid savepoint name %q", name)
	}
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}
	return nil
}

func (t *pgTx) RollbackTo(ctx context.Context, name string) error {
	if !validSavepointName(name) {
		return fmt.Errorf("invalid savepoint name %q", name)
	}
	if _, err := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
		return fmt.Errorf("rollback to %s: %w", name, err)
	}
	return nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.tx.Commit()
}

func (t *pgTx) Rollback(_ context.Context) error {
	return t.tx.Rollback()
}

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
