package core

// Repository is the caller-facing registration surface for one scope. It
// delegates directly to the coordinator's change tracking; it performs no
// storage reads of its own.
type Repository struct {
	coordinator *Coordinator
}

// NewRepository binds a repository to a scope.
func NewRepository(c *Coordinator) *Repository {
	return &Repository{coordinator: c}
}

// Attach places an already-persisted entity under identity-map control and
// captures its current fields as the committed baseline. Call it when an
// entity is loaded, before mutating it; later dirty diffs compare against
// this snapshot.
func (r *Repository) Attach(e Entity) error {
	if err := r.coordinator.requireActive("attach"); err != nil {
		return err
	}
	return r.coordinator.registry.Track(e)
}

// Get returns the tracked instance for (t, id) from the identity map.
func (r *Repository) Get(t EntityType, id string) (Entity, bool) {
	return r.coordinator.registry.Lookup(t, id)
}

// Add registers a new entity for insertion at commit.
func (r *Repository) Add(e Entity) error {
	return r.coordinator.RegisterNew(e)
}

// Update registers a mutated entity for a version-guarded update at commit.
func (r *Repository) Update(e Entity) error {
	return r.coordinator.RegisterDirty(e)
}

// Remove registers an entity for deletion at commit.
func (r *Repository) Remove(e Entity) error {
	return r.coordinator.RegisterRemoved(e)
}
