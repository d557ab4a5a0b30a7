// Package domain defines the entity, change-set, and event primitives shared
// by the unit-of-work engine and its persistence adapters.
package domain

import "fmt"

// EntityType identifies the logical type of a tracked record. Adapters use it
// to partition storage; the engine treats it as an opaque tag.
type EntityType string

// Entity is the capability surface a record must implement to be tracked.
// Entities are value carriers: lifecycle state (new, dirty, removed) is owned
// by the unit of work, never by the entity itself.
type Entity interface {
	// Kind returns the entity's type tag.
	Kind() EntityType
	// ID returns the persisted identifier, or "" before the first insert.
	ID() string
	// Version returns the optimistic-concurrency counter. It is 0 before the
	// first insert, 1 after it, and increments by exactly one per update.
	Version() int64
	// Fields returns the canonical row form used for diffing and persistence.
	Fields() (map[string]any, error)
	// BindIdentity assigns the adapter-issued identifier after insert.
	BindIdentity(id string)
	// SetVersion records the version held after a successful insert or update.
	SetVersion(version int64)
}

// Key addresses one logical entity inside a scope.
type Key struct {
	Type EntityType
	ID   string
}

// KeyOf derives the storage key for an entity. Entities without an id have no
// storage key yet; callers must treat the zero ID as scope-local.
func KeyOf(e Entity) Key {
	return Key{Type: e.Kind(), ID: e.ID()}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Type, k.ID)
}

// FieldChange captures one field's transition inside a diff.
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// FieldDiff maps field names to their observed transitions. An empty diff
// means the entity matches its last committed state.
type FieldDiff map[string]FieldChange

// Empty reports whether the diff carries no changes.
func (d FieldDiff) Empty() bool { return len(d) == 0 }

// CloneFields returns a shallow copy of a field map so tracked baselines
// cannot be mutated through the caller's reference.
func CloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
