package core

import (
	"fmt"

	"unitcore/pkg/domain"
)

// stagedEvent defers event materialization until flush: new entities gain
// their ids during the insert phase, and update payloads are the diff against
// the committed baseline computed at apply time.
type stagedEvent struct {
	entity domain.Entity
	kind   domain.EventKind
	// fields is the last observed field set, captured at registration for
	// deletions (the entity leaves the identity map immediately).
	fields map[string]any
}

// Recorder captures one staged event per state transition, strictly in
// registration order, scope-local. Events are materialized and flushed only
// on a successful root commit; nested commits transfer staged events to the
// parent instead.
type Recorder struct {
	staged []stagedEvent
}

// NewRecorder constructs an empty event recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// StageCreated records a pending Created event for a new entity.
func (r *Recorder) StageCreated(e domain.Entity) {
	r.staged = append(r.staged, stagedEvent{entity: e, kind: domain.EventCreated})
}

// StageUpdated records a pending Updated event for a dirty entity. The
// payload diff is computed at flush time; an empty diff suppresses the event.
func (r *Recorder) StageUpdated(e domain.Entity) {
	r.staged = append(r.staged, stagedEvent{entity: e, kind: domain.EventUpdated})
}

// StageDeleted records a pending Deleted event carrying the entity's last
// field set.
func (r *Recorder) StageDeleted(e domain.Entity) {
	fields, err := e.Fields()
	if err != nil {
		fields = nil
	}
	r.staged = append(r.staged, stagedEvent{entity: e, kind: domain.EventDeleted, fields: domain.CloneFields(fields)})
}

// Unstage drops every staged event referencing the given instance. Used when
// an entity is removed or cleaned before its staged transitions ever commit.
func (r *Recorder) Unstage(e domain.Entity) {
	kept := r.staged[:0]
	for _, st := range r.staged {
		if st.entity != e {
			kept = append(kept, st)
		}
	}
	r.staged = kept
}

// Len reports the number of staged events.
func (r *Recorder) Len() int { return len(r.staged) }

// Materialize builds the ordered event batch. diffs maps entity keys to the
// field diffs computed during the update phase; an Updated staging whose diff
// is empty (or absent) produced no state transition and is dropped. Sequence
// numbers are contiguous from 1 in registration order.
func (r *Recorder) Materialize(diffs map[domain.Key]domain.FieldDiff) ([]domain.Event, error) {
	batch := make([]domain.Event, 0, len(r.staged))
	var seq uint64
	for _, st := range r.staged {
		var payload domain.EventPayload
		switch st.kind {
		case domain.EventCreated:
			fields, err := st.entity.Fields()
			if err != nil {
				return nil, fmt.Errorf("materialize created event for %s: %w", domain.KeyOf(st.entity), err)
			}
			payload, err = domain.NewEventPayloadFromValue(fields)
			if err != nil {
				return nil, fmt.Errorf("encode created payload for %s: %w", domain.KeyOf(st.entity), err)
			}
		case domain.EventUpdated:
			diff, ok := diffs[domain.KeyOf(st.entity)]
			if !ok || diff.Empty() {
				continue
			}
			var err error
			payload, err = domain.NewEventPayloadFromValue(diff)
			if err != nil {
				return nil, fmt.Errorf("encode updated payload for %s: %w", domain.KeyOf(st.entity), err)
			}
		case domain.EventDeleted:
			var err error
			payload, err = domain.NewEventPayloadFromValue(st.fields)
			if err != nil {
				return nil, fmt.Errorf("encode deleted payload for %s: %w", domain.KeyOf(st.entity), err)
			}
		}
		seq++
		batch = append(batch, domain.Event{
			EntityType: st.entity.Kind(),
			EntityID:   st.entity.ID(),
			Kind:       st.kind,
			Payload:    payload,
			Seq:        seq,
		})
	}
	return batch, nil
}

// mergeInto appends this recorder's staged events to the parent, preserving
// registration order across the scope boundary.
func (r *Recorder) mergeInto(parent *Recorder) {
	parent.staged = append(parent.staged, r.staged...)
}

func (r *Recorder) clear() {
	r.staged = nil
}
