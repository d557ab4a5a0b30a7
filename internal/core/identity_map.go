package core

import "unitcore/pkg/domain"

// Registry is the per-scope identity map. It guarantees at most one live
// instance per (type, id) inside a unit-of-work scope, so two lookups for the
// same key return the identical instance and independently mutated copies can
// never silently clobber each other at commit.
//
// The registry also captures each tracked entity's committed field baseline,
// which is the reference state for dirty diffing. Its lifetime is exactly the
// owning scope's lifetime; it is never shared across concurrent scopes.
type Registry struct {
	entries   map[domain.Key]domain.Entity
	baselines map[domain.Key]map[string]any
}

// NewRegistry constructs an empty identity map.
func NewRegistry() *Registry {
	return &Registry{
		entries:   make(map[domain.Key]domain.Entity),
		baselines: make(map[domain.Key]map[string]any),
	}
}

// Lookup returns the tracked instance for (t, id), if any.
func (r *Registry) Lookup(t domain.EntityType, id string) (domain.Entity, bool) {
	e, ok := r.entries[domain.Key{Type: t, ID: id}]
	return e, ok
}

// Track records an id-bearing entity in the map and snapshots its current
// fields as the committed baseline. Tracking the same instance twice is a
// no-op that preserves the original baseline. Tracking a different instance
// under an occupied key fails with IdentityConflictError: it means the caller
// constructed a second copy instead of going through the registry.
func (r *Registry) Track(e domain.Entity) error {
	key := domain.KeyOf(e)
	if key.ID == "" {
		return domain.RegistrationError{Key: key, Op: "track", Reason: "entity has no id"}
	}
	if existing, ok := r.entries[key]; ok {
		if existing != e {
			return domain.IdentityConflictError{Key: key}
		}
		return nil
	}
	fields, err := e.Fields()
	if err != nil {
		return domain.RegistrationError{Key: key, Op: "track", Reason: "fields: " + err.Error()}
	}
	r.entries[key] = e
	r.baselines[key] = domain.CloneFields(fields)
	return nil
}

// Rebase replaces the committed baseline for key with the supplied fields.
// The coordinator calls it after a successful per-entity persistence step.
func (r *Registry) Rebase(key domain.Key, fields map[string]any) {
	if _, ok := r.entries[key]; !ok {
		return
	}
	r.baselines[key] = domain.CloneFields(fields)
}

// Baseline returns the committed field snapshot captured when the entity was
// tracked (or last rebased).
func (r *Registry) Baseline(key domain.Key) (map[string]any, bool) {
	b, ok := r.baselines[key]
	return b, ok
}

// Evict drops the entity and its baseline from the map.
func (r *Registry) Evict(t domain.EntityType, id string) {
	key := domain.Key{Type: t, ID: id}
	delete(r.entries, key)
	delete(r.baselines, key)
}

// Len reports the number of tracked instances.
func (r *Registry) Len() int { return len(r.entries) }

func (r *Registry) clear() {
	r.entries = make(map[domain.Key]domain.Entity)
	r.baselines = make(map[domain.Key]map[string]any)
}
