package core

import (
	"errors"
	"testing"

	"unitcore/pkg/domain"
)

func TestRegistryTrackAndLookup(t *testing.T) {
	r := NewRegistry()
	w := persistedWidget("w-1", 1, "alpha")
	if err := r.Track(w); err != nil {
		t.Fatalf("track: %v", err)
	}
	got, ok := r.Lookup(widgetKind, "w-1")
	if !ok {
		t.Fatalf("lookup missed tracked entity")
	}
	if got != domain.Entity(w) {
		t.Fatalf("lookup returned a different instance")
	}
	if r.Len() != 1 {
		t.Fatalf("len = %d, want 1", r.Len())
	}
}

func TestRegistryRejectsUnidentified(t *testing.T) {
	r := NewRegistry()
	err := r.Track(newWidget("no-id"))
	var reg domain.RegistrationError
	if !errors.As(err, &reg) {
		t.Fatalf("expected RegistrationError, got %v", err)
	}
}

func TestRegistryIdentityConflict(t *testing.T) {
	r := NewRegistry()
	first := persistedWidget("w-1", 1, "alpha")
	if err := r.Track(first); err != nil {
		t.Fatalf("track: %v", err)
	}
	second := persistedWidget("w-1", 1, "alpha")
	err := r.Track(second)
	var conflict domain.IdentityConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected IdentityConflictError, got %v", err)
	}
	if conflict.Key.ID != "w-1" {
		t.Fatalf("conflict key = %v", conflict.Key)
	}
}

func TestRegistryTrackSameInstancePreservesBaseline(t *testing.T) {
	r := NewRegistry()
	w := persistedWidget("w-1", 1, "alpha")
	if err := r.Track(w); err != nil {
		t.Fatalf("track: %v", err)
	}
	w.Name = "beta"
	if err := r.Track(w); err != nil {
		t.Fatalf("retrack: %v", err)
	}
	baseline, ok := r.Baseline(domain.KeyOf(w))
	if !ok {
		t.Fatalf("baseline missing")
	}
	if baseline["name"] != "alpha" {
		t.Fatalf("retrack replaced baseline: %v", baseline["name"])
	}
}

func TestRegistryRebase(t *testing.T) {
	r := NewRegistry()
	w := persistedWidget("w-1", 1, "alpha")
	if err := r.Track(w); err != nil {
		t.Fatalf("track: %v", err)
	}
	r.Rebase(domain.KeyOf(w), map[string]any{"name": "beta", "count": 2})
	baseline, _ := r.Baseline(domain.KeyOf(w))
	if baseline["name"] != "beta" {
		t.Fatalf("rebase not applied: %v", baseline)
	}
	// Rebasing an untracked key is ignored.
	r.Rebase(domain.Key{Type: widgetKind, ID: "ghost"}, map[string]any{"x": 1})
	if _, ok := r.Baseline(domain.Key{Type: widgetKind, ID: "ghost"}); ok {
		t.Fatalf("rebase created baseline for untracked key")
	}
}

func TestRegistryEvict(t *testing.T) {
	r := NewRegistry()
	w := persistedWidget("w-1", 1, "alpha")
	if err := r.Track(w); err != nil {
		t.Fatalf("track: %v", err)
	}
	r.Evict(widgetKind, "w-1")
	if _, ok := r.Lookup(widgetKind, "w-1"); ok {
		t.Fatalf("entity still tracked after evict")
	}
	if _, ok := r.Baseline(domain.Key{Type: widgetKind, ID: "w-1"}); ok {
		t.Fatalf("baseline survived evict")
	}
}
