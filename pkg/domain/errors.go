package domain

import "fmt"

// RegistrationError reports an invalid change-tracking transition, such as
// registering an id-bearing entity as new or marking a removed entity dirty.
// It is raised synchronously at registration time and never reaches commit.
type RegistrationError struct {
	Key    Key
	Op     string
	Reason string
}

func (e RegistrationError) Error() string {
	return fmt.Sprintf("register %s %s: %s", e.Op, e.Key, e.Reason)
}

// IdentityConflictError reports two distinct instances claiming the same
// (type, id) inside one scope. It indicates the caller bypassed the registry.
type IdentityConflictError struct {
	Key Key
}

func (e IdentityConflictError) Error() string {
	return fmt.Sprintf("identity conflict: a different instance is already tracked for %s", e.Key)
}

// ConflictError reports an optimistic version mismatch detected at update
// time. It is never retried by the engine; the caller decides whether to
// reload and reapply.
type ConflictError struct {
	Type     EntityType
	ID       string
	Expected int64
	Actual   int64
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s/%s: expected %d, actual %d", e.Type, e.ID, e.Expected, e.Actual)
}

// CheckVersion compares a held version against the persisted one and returns
// *ConflictError on mismatch. Adapters call it inside the transaction that
// applies the update, keeping the check-then-act window minimal.
func CheckVersion(t EntityType, id string, held, persisted int64) error {
	if held != persisted {
		return &ConflictError{Type: t, ID: id, Expected: held, Actual: persisted}
	}
	return nil
}

// PersistenceError wraps an adapter-level failure (insert, update, delete,
// commit, or rollback itself failed).
type PersistenceError struct {
	Op  string
	Err error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e PersistenceError) Unwrap() error { return e.Err }

// ScopeError reports misuse of a unit-of-work scope: commit or rollback with
// no active scope, or nested-scope misuse.
type ScopeError struct {
	Reason string
}

func (e ScopeError) Error() string {
	return fmt.Sprintf("scope: %s", e.Reason)
}
