package domain

// EventKind classifies the state transition an event records.
type EventKind string

// Event kinds emitted by the unit of work, one per committed transition.
const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// Event is an immutable record of one entity state transition. Events are
// sequenced in registration order within a scope and flushed to the sink as
// one batch alongside the commit that caused them.
type Event struct {
	EntityType EntityType   `json:"entity_type"`
	EntityID   string       `json:"entity_id"`
	Kind       EventKind    `json:"kind"`
	Payload    EventPayload `json:"payload"`
	Seq        uint64       `json:"seq"`
}
