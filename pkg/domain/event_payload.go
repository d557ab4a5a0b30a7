package domain

import "encoding/json"

// EventPayload wraps the JSON body of a domain event: the initial field set
// for Created, a field-level diff for Updated, the last field set for
// Deleted. Bytes are cloned on the way in and out so no caller can mutate a
// staged event through a shared slice.
type EventPayload struct {
	defined bool
	raw     json.RawMessage
}

// NewEventPayload builds a payload from raw JSON. Passing nil yields a
// defined but empty payload; use UndefinedEventPayload for "not set".
func NewEventPayload(raw json.RawMessage) EventPayload {
	payload := EventPayload{defined: true}
	if raw != nil {
		payload.raw = cloneRawMessage(raw)
	}
	return payload
}

// NewEventPayloadFromValue marshals a typed value into an EventPayload.
func NewEventPayloadFromValue(value any) (EventPayload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return EventPayload{}, err
	}
	return NewEventPayload(raw), nil
}

// UndefinedEventPayload returns an uninitialized payload.
func UndefinedEventPayload() EventPayload {
	return EventPayload{}
}

// Defined reports whether the payload has been initialized.
func (p EventPayload) Defined() bool {
	return p.defined
}

// IsEmpty reports whether the payload contains no bytes.
func (p EventPayload) IsEmpty() bool {
	if !p.defined {
		return true
	}
	return len(p.raw) == 0
}

// Raw returns a cloned copy of the underlying JSON bytes, or nil when the
// payload is undefined or empty.
func (p EventPayload) Raw() json.RawMessage {
	if !p.defined || len(p.raw) == 0 {
		return nil
	}
	return cloneRawMessage(p.raw)
}

// MarshalJSON emits the wrapped bytes, or JSON null when undefined.
func (p EventPayload) MarshalJSON() ([]byte, error) {
	if !p.defined || len(p.raw) == 0 {
		return []byte("null"), nil
	}
	return cloneRawMessage(p.raw), nil
}

// UnmarshalJSON captures the raw bytes as a defined payload.
func (p *EventPayload) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = EventPayload{}
		return nil
	}
	*p = NewEventPayload(data)
	return nil
}

func cloneRawMessage(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	cloned := make(json.RawMessage, len(raw))
	copy(cloned, raw)
	return cloned
}
