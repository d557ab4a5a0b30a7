package domain

import "context"

// Adapter is the storage boundary the coordinator drives. Implementations
// live under internal/infra/persistence; the engine treats them as opaque
// collaborators and honors caller deadlines only through the context they
// receive.
type Adapter interface {
	// Begin opens a storage transaction. One transaction backs one root
	// unit-of-work scope and every nested scope under it.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is an open adapter transaction. All mutations within a scope flow
// through one Tx and become durable only on Commit.
type Tx interface {
	// Insert persists a new entity and returns the assigned id. The stored
	// version is 1.
	Insert(ctx context.Context, e Entity) (string, error)
	// Update persists an entity's current fields guarded by expectedVersion.
	// A stored version other than expectedVersion fails with *ConflictError
	// and leaves the row unchanged; on success the stored version becomes
	// expectedVersion+1.
	Update(ctx context.Context, e Entity, expectedVersion int64) error
	// Delete removes an entity by key. Deleting a missing row is an error.
	Delete(ctx context.Context, t EntityType, id string) error
	// Savepoint creates a named intermediate marker for nested scopes.
	Savepoint(ctx context.Context, name string) error
	// RollbackTo discards all changes made after the named savepoint.
	RollbackTo(ctx context.Context, name string) error
	// Commit makes the transaction durable.
	Commit(ctx context.Context) error
	// Rollback discards the transaction.
	Rollback(ctx context.Context) error
}

// EventSink receives the full ordered event batch of one successful commit.
// A sink failure fails the commit: the coordinator rolls the adapter
// transaction back so events and data mutate as one unit.
type EventSink interface {
	Append(ctx context.Context, batch []Event) error
}
