// Package memory provides an in-memory persistence adapter used for tests
// and ephemeral environments. A transaction works on a deep copy of the
// store state and swaps it in on commit; savepoints snapshot the working
// copy so nested scopes can roll back partially.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"unitcore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.Adapter = (*Store)(nil)

type record struct {
	fields  map[string]any
	version int64
}

func (r record) clone() record {
	return record{fields: domain.CloneFields(r.fields), version: r.version}
}

// Calls counts adapter operations, letting tests assert that no-op diffs
// issue no statements and failed commits touch nothing.
type Calls struct {
	Inserts    int
	Updates    int
	Deletes    int
	Savepoints int
	Commits    int
	Rollbacks  int
}

// Store is the in-memory adapter. The store lock is held for the lifetime of
// an open transaction, serializing writers the way a single connection would.
type Store struct {
	mu    sync.Mutex
	state map[domain.Key]record
	calls Calls
	newID func() string
}

// NewStore constructs an empty in-memory adapter.
func NewStore() *Store {
	return &Store{
		state: make(map[domain.Key]record),
		newID: uuid.NewString,
	}
}

// Begin opens a transaction over a cloned state. It blocks until any open
// transaction finishes.
func (s *Store) Begin(ctx context.Context) (domain.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &memTx{store: s, working: s.cloneState()}, nil
}

// Seed installs a committed record directly, bypassing the transactional
// path. Intended for test fixtures.
func (s *Store) Seed(t domain.EntityType, id string, fields map[string]any, version int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[domain.Key{Type: t, ID: id}] = record{fields: domain.CloneFields(fields), version: version}
}

// Get returns the committed fields and version for a key.
func (s *Store) Get(t domain.EntityType, id string) (map[string]any, int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.state[domain.Key{Type: t, ID: id}]
	if !ok {
		return nil, 0, false
	}
	return domain.CloneFields(rec.fields), rec.version, true
}

// Len reports the number of committed records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state)
}

// CallCounts returns a snapshot of operation counters.
func (s *Store) CallCounts() Calls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Store) cloneState() map[domain.Key]record {
	cloned := make(map[domain.Key]record, len(s.state))
	for k, v := range s.state {
		cloned[k] = v.clone()
	}
	return cloned
}

type savepoint struct {
	name  string
	state map[domain.Key]record
}

type memTx struct {
	store      *Store
	working    map[domain.Key]record
	savepoints []savepoint
	done       bool
}

func (tx *memTx) Insert(ctx context.Context, e domain.Entity) (string, error) {
	if err := tx.check(ctx); err != nil {
		return "", err
	}
	fields, err := e.Fields()
	if err != nil {
		return "", fmt.Errorf("fields: %w", err)
	}
	id := tx.store.newID()
	key := domain.Key{Type: e.Kind(), ID: id}
	if _, exists := tx.working[key]; exists {
		return "", fmt.Errorf("%s already exists", key)
	}
	tx.working[key] = record{fields: domain.CloneFields(fields), version: 1}
	tx.store.calls.Inserts++
	return id, nil
}

func (tx *memTx) Update(ctx context.Context, e domain.Entity, expectedVersion int64) error {
	if err := tx.check(ctx); err != nil {
		return err
	}
	key := domain.KeyOf(e)
	rec, ok := tx.working[key]
	if !ok {
		return fmt.Errorf("%s not found", key)
	}
	if err := domain.CheckVersion(key.Type, key.ID, expectedVersion, rec.version); err != nil {
		return err
	}
	fields, err := e.Fields()
	if err != nil {
		return fmt.Errorf("fields: %w", err)
	}
	tx.working[key] = record{fields: domain.CloneFields(fields), version: expectedVersion + 1}
	tx.store.calls.Updates++
	return nil
}

func (tx *memTx) Delete(ctx context.Context, t domain.EntityType, id string) error {
	if err := tx.check(ctx); err != nil {
		return err
	}
	key := domain.Key{Type: t, ID: id}
	if _, ok := tx.working[key]; !ok {
		return fmt.Errorf("%s not found", key)
	}
	delete(tx.working, key)
	tx.store.calls.Deletes++
	return nil
}

func (tx *memTx) Savepoint(ctx context.Context, name string) error {
	if err := tx.check(ctx); err != nil {
		return err
	}
	snapshot := make(map[domain.Key]record, len(tx.working))
	for k, v := range tx.working {
		snapshot[k] = v.clone()
	}
	tx.savepoints = append(tx.savepoints, savepoint{name: name, state: snapshot})
	tx.store.calls.Savepoints++
	return nil
}

func (tx *memTx) RollbackTo(ctx context.Context, name string) error {
	if err := tx.check(ctx); err != nil {
		return err
	}
	for i := len(tx.savepoints) - 1; i >= 0; i-- {
		if tx.savepoints[i].name == name {
			restored := make(map[domain.Key]record, len(tx.savepoints[i].state))
			for k, v := range tx.savepoints[i].state {
				restored[k] = v.clone()
			}
			tx.working = restored
			tx.savepoints = tx.savepoints[:i+1]
			return nil
		}
	}
	return fmt.Errorf("savepoint %s not found", name)
}

func (tx *memTx) Commit(ctx context.Context) error {
	if tx.done {
		return fmt.Errorf("transaction already finished")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.store.state = tx.working
	tx.store.calls.Commits++
	tx.done = true
	tx.store.mu.Unlock()
	return nil
}

func (tx *memTx) Rollback(_ context.Context) error {
	if tx.done {
		return fmt.Errorf("transaction already finished")
	}
	tx.store.calls.Rollbacks++
	tx.done = true
	tx.store.mu.Unlock()
	return nil
}

func (tx *memTx) check(ctx context.Context) error {
	if tx.done {
		return fmt.Errorf("transaction already finished")
	}
	return ctx.Err()
}
