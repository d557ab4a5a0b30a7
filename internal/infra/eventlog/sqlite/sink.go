// Package sqlite implements a SQLite-backed event journal sink. Each commit
// batch is appended in one transaction: a journal row per event, a
// monotonically increasing batch number shared by the batch, and the
// scope-local sequence preserved alongside.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"unitcore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.EventSink = (*Sink)(nil)

// Sink persists event batches to a SQLite journal table.
type Sink struct {
	db    *sql.DB
	path  string
	nowFn func() time.Time
}

// NewSink opens (creating if needed) the journal database at path.
func NewSink(path string) (*Sink, error) {
	if path == "" {
		path = "unitcore-events.db"
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
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS events (
		journal_seq INTEGER PRIMARY KEY AUTOINCREMENT,
		batch INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload BLOB,
		recorded_at INTEGER NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create events table: %w", err)
	}
	return &Sink{db: db, path: path, nowFn: func() time.Time { return time.Now().UTC() }}, nil
}

// Append writes the full ordered batch in one transaction.
func (s *Sink) Append(ctx context.Context, batch []domain.Event) (retErr error) {
	if len(batch) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(batch) FROM events`).Scan(&last); err != nil {
		retErr = fmt.Errorf("select last batch: %w", err)
		return retErr
	}
	next := last.Int64 + 1

	now := s.nowFn().UnixMilli()
	for _, evt := range batch {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events(batch,seq,entity_type,entity_id,kind,payload,recorded_at)
			 VALUES(?,?,?,?,?,?,?)`,
			next, int64(evt.Seq), string(evt.EntityType), evt.EntityID, string(evt.Kind),
			[]byte(evt.Payload.Raw()), now); err != nil {
			retErr = fmt.Errorf("append event %d: %w", evt.Seq, err)
			return retErr
		}
	}
	if err := tx.Commit(); err != nil {
		retErr = fmt.Errorf("commit: %w", err)
		return retErr
	}
	return nil
}

// Events returns the journal contents in append order.
func (s *Sink) Events(ctx context.Context) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, entity_type, entity_id, kind, payload FROM events ORDER BY journal_seq`)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Event
	for rows.Next() {
		var seq int64
		var entityType, entityID, kind string
		var payload []byte
		if err := rows.Scan(&seq, &entityType, &entityID, &kind, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt := domain.Event{
			EntityType: domain.EntityType(entityType),
			EntityID:   entityID,
			Kind:       domain.EventKind(kind),
			Seq:        uint64(seq),
		}
		if len(payload) > 0 {
			evt.Payload = domain.NewEventPayload(payload)
		}
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// Path returns the configured journal path.
func (s *Sink) Path() string { return s.path }

// Close releases the database handle.
func (s *Sink) Close() error { return s.db.Close() }
