package core

import "unitcore/pkg/domain"

// TrackState classifies an entity within a scope.
type TrackState string

// Tracking states. A logical entity key occupies at most one of New, Dirty,
// Removed at any time; Untracked is the terminal state after commit or
// rollback clears the scope.
const (
	StateUntracked TrackState = "untracked"
	StateNew       TrackState = "new"
	StateDirty     TrackState = "dirty"
	StateRemoved   TrackState = "removed"
)

// Tracker is the change tracker for one scope. New entities (no id yet) are
// held in registration order and keyed by instance; id-bearing entities are
// keyed by (type, id). Phase-internal ordering at commit is registration
// order, which keeps apply order deterministic.
//
// A child scope's tracker chains to its parent so that state queries see
// entities registered in enclosing scopes.
type Tracker struct {
	registry *Registry
	parent   *Tracker

	added        []domain.Entity
	dirty        map[domain.Key]domain.Entity
	dirtyOrder   []domain.Key
	removed      map[domain.Key]domain.Entity
	removedOrder []domain.Key
}

// NewTracker constructs a tracker bound to the scope's identity map.
func NewTracker(registry *Registry, parent *Tracker) *Tracker {
	return &Tracker{
		registry: registry,
		parent:   parent,
		dirty:    make(map[domain.Key]domain.Entity),
		removed:  make(map[domain.Key]domain.Entity),
	}
}

// RegisterNew places an entity in the New set. The entity must not carry an
// id yet; insert assigns one at commit. Re-registering the same instance is a
// no-op.
func (t *Tracker) RegisterNew(e domain.Entity) error {
	if e.ID() != "" {
		return domain.RegistrationError{Key: domain.KeyOf(e), Op: "new", Reason: "entity already has an id"}
	}
	if t.isNew(e) {
		return nil
	}
	t.added = append(t.added, e)
	return nil
}

// RegisterDirty marks an id-bearing entity for update. Registering an entity
// that is tracked as New anywhere in the scope chain is a no-op: new entities
// are saved in full regardless. Entities without an id cannot be dirty, and
// removed entities cannot come back via dirty.
func (t *Tracker) RegisterDirty(e domain.Entity) error {
	if t.isNew(e) {
		return nil
	}
	key := domain.KeyOf(e)
	if key.ID == "" {
		return domain.RegistrationError{Key: key, Op: "dirty", Reason: "entity has no id"}
	}
	if t.isRemoved(key) {
		return domain.RegistrationError{Key: key, Op: "dirty", Reason: "entity is registered as removed"}
	}
	if err := t.registry.Track(e); err != nil {
		return err
	}
	if _, ok := t.dirty[key]; ok {
		return nil
	}
	t.dirty[key] = e
	t.dirtyOrder = append(t.dirtyOrder, key)
	return nil
}

// RegisterRemoved marks an entity for deletion. An entity with no id is
// simply dropped from New (nothing exists server-side); otherwise it leaves
// New/Dirty, enters Removed, and is evicted from the identity map.
func (t *Tracker) RegisterRemoved(e domain.Entity) error {
	if e.ID() == "" {
		t.dropNew(e)
		return nil
	}
	key := domain.KeyOf(e)
	t.dropDirty(key)
	if _, ok := t.removed[key]; !ok {
		t.removed[key] = e
		t.removedOrder = append(t.removedOrder, key)
	}
	t.registry.Evict(key.Type, key.ID)
	return nil
}

// RegisterClean removes the entity from all three sets. The coordinator calls
// it after each successful per-entity persistence step; callers may use it to
// discard tracking explicitly.
func (t *Tracker) RegisterClean(e domain.Entity) {
	t.dropNew(e)
	key := domain.KeyOf(e)
	if key.ID == "" {
		return
	}
	t.dropDirty(key)
	if _, ok := t.removed[key]; ok {
		delete(t.removed, key)
		t.removedOrder = removeKey(t.removedOrder, key)
	}
}

// StateOf reports the entity's tracking state within this scope chain.
func (t *Tracker) StateOf(e domain.Entity) TrackState {
	if t.isNew(e) {
		return StateNew
	}
	key := domain.KeyOf(e)
	if key.ID == "" {
		return StateUntracked
	}
	for cur := t; cur != nil; cur = cur.parent {
		if _, ok := cur.removed[key]; ok {
			return StateRemoved
		}
		if _, ok := cur.dirty[key]; ok {
			return StateDirty
		}
	}
	return StateUntracked
}

// Added returns the New set in registration order.
func (t *Tracker) Added() []domain.Entity {
	return append([]domain.Entity(nil), t.added...)
}

// DirtyEntities returns the Dirty set in registration order.
func (t *Tracker) DirtyEntities() []domain.Entity {
	out := make([]domain.Entity, 0, len(t.dirtyOrder))
	for _, key := range t.dirtyOrder {
		out = append(out, t.dirty[key])
	}
	return out
}

// RemovedEntities returns the Removed set in registration order.
func (t *Tracker) RemovedEntities() []domain.Entity {
	out := make([]domain.Entity, 0, len(t.removedOrder))
	for _, key := range t.removedOrder {
		out = append(out, t.removed[key])
	}
	return out
}

// Empty reports whether no changes are tracked in this scope.
func (t *Tracker) Empty() bool {
	return len(t.added) == 0 && len(t.dirty) == 0 && len(t.removed) == 0
}

// mergeInto transfers this tracker's sets into the parent, preserving
// registration order. Used when a nested scope commits.
func (t *Tracker) mergeInto(parent *Tracker) error {
	for _, e := range t.added {
		if err := parent.RegisterNew(e); err != nil {
			return err
		}
	}
	for _, key := range t.dirtyOrder {
		if err := parent.RegisterDirty(t.dirty[key]); err != nil {
			return err
		}
	}
	for _, key := range t.removedOrder {
		if err := parent.RegisterRemoved(t.removed[key]); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tracker) clear() {
	t.added = nil
	t.dirty = make(map[domain.Key]domain.Entity)
	t.dirtyOrder = nil
	t.removed = make(map[domain.Key]domain.Entity)
	t.removedOrder = nil
}

func (t *Tracker) isNew(e domain.Entity) bool {
	for cur := t; cur != nil; cur = cur.parent {
		for _, existing := range cur.added {
			if existing == e {
				return true
			}
		}
	}
	return false
}

func (t *Tracker) isRemoved(key domain.Key) bool {
	for cur := t; cur != nil; cur = cur.parent {
		if _, ok := cur.removed[key]; ok {
			return true
		}
	}
	return false
}

func (t *Tracker) dropNew(e domain.Entity) {
	for i, existing := range t.added {
		if existing == e {
			t.added = append(t.added[:i], t.added[i+1:]...)
			return
		}
	}
}

func (t *Tracker) dropDirty(key domain.Key) {
	if _, ok := t.dirty[key]; ok {
		delete(t.dirty, key)
		t.dirtyOrder = removeKey(t.dirtyOrder, key)
	}
}

func removeKey(keys []domain.Key, key domain.Key) []domain.Key {
	for i, k := range keys {
		if k == key {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}
