package core

import (
	"errors"
	"testing"

	"unitcore/pkg/domain"
)

func newTestTracker() *Tracker {
	return NewTracker(NewRegistry(), nil)
}

func TestTrackerRegisterNew(t *testing.T) {
	tr := newTestTracker()
	w := newWidget("alpha")
	if err := tr.RegisterNew(w); err != nil {
		t.Fatalf("register new: %v", err)
	}
	if got := tr.StateOf(w); got != StateNew {
		t.Fatalf("state = %s, want new", got)
	}
	// Same instance again is a no-op.
	if err := tr.RegisterNew(w); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if len(tr.Added()) != 1 {
		t.Fatalf("added = %d, want 1", len(tr.Added()))
	}
}

func TestTrackerRegisterNewRejectsIdentified(t *testing.T) {
	tr := newTestTracker()
	err := tr.RegisterNew(persistedWidget("w-1", 1, "alpha"))
	var reg domain.RegistrationError
	if !errors.As(err, &reg) {
		t.Fatalf("expected RegistrationError, got %v", err)
	}
	if reg.Op != "new" {
		t.Fatalf("op = %q", reg.Op)
	}
}

func TestTrackerDirtyOnNewIsNoop(t *testing.T) {
	tr := newTestTracker()
	w := newWidget("alpha")
	if err := tr.RegisterNew(w); err != nil {
		t.Fatalf("register new: %v", err)
	}
	if err := tr.RegisterDirty(w); err != nil {
		t.Fatalf("dirty on new should be a no-op: %v", err)
	}
	if got := tr.StateOf(w); got != StateNew {
		t.Fatalf("state = %s, want new", got)
	}
	if len(tr.DirtyEntities()) != 0 {
		t.Fatalf("dirty set should stay empty")
	}
}

func TestTrackerDirtyRequiresIdentity(t *testing.T) {
	tr := newTestTracker()
	err := tr.RegisterDirty(newWidget("alpha"))
	var reg domain.RegistrationError
	if !errors.As(err, &reg) {
		t.Fatalf("expected RegistrationError, got %v", err)
	}
}

func TestTrackerRemovedBlocksDirty(t *testing.T) {
	tr := newTestTracker()
	w := persistedWidget("w-1", 1, "alpha")
	if err := tr.RegisterRemoved(w); err != nil {
		t.Fatalf("register removed: %v", err)
	}
	err := tr.RegisterDirty(w)
	var reg domain.RegistrationError
	if !errors.As(err, &reg) {
		t.Fatalf("expected RegistrationError, got %v", err)
	}
	if got := tr.StateOf(w); got != StateRemoved {
		t.Fatalf("state = %s, want removed", got)
	}
}

func TestTrackerStatesMutuallyExclusive(t *testing.T) {
	tr := newTestTracker()
	w := persistedWidget("w-1", 1, "alpha")
	if err := tr.RegisterDirty(w); err != nil {
		t.Fatalf("register dirty: %v", err)
	}
	if got := tr.StateOf(w); got != StateDirty {
		t.Fatalf("state = %s, want dirty", got)
	}
	// Removing a dirty entity supersedes the dirty registration.
	if err := tr.RegisterRemoved(w); err != nil {
		t.Fatalf("register removed: %v", err)
	}
	if got := tr.StateOf(w); got != StateRemoved {
		t.Fatalf("state = %s, want removed", got)
	}
	if len(tr.DirtyEntities()) != 0 {
		t.Fatalf("dirty set should be empty after remove")
	}
	if len(tr.RemovedEntities()) != 1 {
		t.Fatalf("removed set should hold one entity")
	}
}

func TestTrackerRemoveUnpersistedDropsNew(t *testing.T) {
	tr := newTestTracker()
	w := newWidget("alpha")
	if err := tr.RegisterNew(w); err != nil {
		t.Fatalf("register new: %v", err)
	}
	if err := tr.RegisterRemoved(w); err != nil {
		t.Fatalf("register removed: %v", err)
	}
	if got := tr.StateOf(w); got != StateUntracked {
		t.Fatalf("state = %s, want untracked", got)
	}
	if !tr.Empty() {
		t.Fatalf("tracker should be empty")
	}
}

func TestTrackerRegistrationOrder(t *testing.T) {
	tr := newTestTracker()
	a := persistedWidget("w-a", 1, "a")
	b := persistedWidget("w-b", 1, "b")
	c := persistedWidget("w-c", 1, "c")
	for _, w := range []*widget{c, a, b} {
		if err := tr.RegisterDirty(w); err != nil {
			t.Fatalf("register dirty: %v", err)
		}
	}
	got := tr.DirtyEntities()
	want := []string{"w-c", "w-a", "w-b"}
	for i, e := range got {
		if e.ID() != want[i] {
			t.Fatalf("dirty order[%d] = %s, want %s", i, e.ID(), want[i])
		}
	}
}

func TestTrackerChildChain(t *testing.T) {
	registry := NewRegistry()
	parent := NewTracker(registry, nil)
	child := NewTracker(registry, parent)

	fresh := newWidget("fresh")
	if err := parent.RegisterNew(fresh); err != nil {
		t.Fatalf("parent register new: %v", err)
	}
	// The child sees the parent's new entity and treats dirty as a no-op.
	if err := child.RegisterDirty(fresh); err != nil {
		t.Fatalf("child dirty on parent's new entity: %v", err)
	}
	if got := child.StateOf(fresh); got != StateNew {
		t.Fatalf("child state = %s, want new", got)
	}

	gone := persistedWidget("w-1", 1, "gone")
	if err := parent.RegisterRemoved(gone); err != nil {
		t.Fatalf("parent register removed: %v", err)
	}
	if err := child.RegisterDirty(gone); err == nil {
		t.Fatalf("child dirty on parent-removed entity should fail")
	}
}

func TestTrackerMergeInto(t *testing.T) {
	registry := NewRegistry()
	parent := NewTracker(registry, nil)
	child := NewTracker(registry, parent)

	added := newWidget("added")
	dirty := persistedWidget("w-d", 1, "dirty")
	removed := persistedWidget("w-r", 1, "removed")
	if err := child.RegisterNew(added); err != nil {
		t.Fatalf("register new: %v", err)
	}
	if err := child.RegisterDirty(dirty); err != nil {
		t.Fatalf("register dirty: %v", err)
	}
	if err := child.RegisterRemoved(removed); err != nil {
		t.Fatalf("register removed: %v", err)
	}
	if err := child.mergeInto(parent); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if parent.StateOf(added) != StateNew || parent.StateOf(dirty) != StateDirty || parent.StateOf(removed) != StateRemoved {
		t.Fatalf("parent missing merged registrations")
	}
}
