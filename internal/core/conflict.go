package core

import (
	"reflect"

	"unitcore/pkg/domain"
)

// Detector computes field-level diffs and performs optimistic version
// checks. It is stateless; the coordinator owns when checks run.
type Detector struct{}

// NewDetector constructs a conflict detector.
func NewDetector() *Detector { return &Detector{} }

// ComputeDiff compares every tracked field of the original (committed)
// snapshot against the current field set. An empty diff means no real change
// and the caller must not persist.
func (d *Detector) ComputeDiff(original, current map[string]any) domain.FieldDiff {
	diff := domain.FieldDiff{}
	for name, from := range original {
		to, ok := current[name]
		if !ok {
			diff[name] = domain.FieldChange{From: from, To: nil}
			continue
		}
		if !reflect.DeepEqual(from, to) {
			diff[name] = domain.FieldChange{From: from, To: to}
		}
	}
	for name, to := range current {
		if _, ok := original[name]; !ok {
			diff[name] = domain.FieldChange{From: nil, To: to}
		}
	}
	return diff
}

// CheckVersion validates that the version a scope holds matches the version
// the adapter currently persists. A mismatch yields *ConflictError; it is
// surfaced to the caller and never auto-retried. Adapters run this check
// inside the same transaction as the update so the check-then-act window is
// minimal.
func (d *Detector) CheckVersion(t domain.EntityType, id string, held, persisted int64) error {
	return domain.CheckVersion(t, id, held, persisted)
}
