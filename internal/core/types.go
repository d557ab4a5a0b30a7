package core

import "unitcore/pkg/domain"

type (
	EntityType            = domain.EntityType
	Entity                = domain.Entity
	Key                   = domain.Key
	FieldChange           = domain.FieldChange
	FieldDiff             = domain.FieldDiff
	Event                 = domain.Event
	EventKind             = domain.EventKind
	EventPayload          = domain.EventPayload
	Adapter               = domain.Adapter
	Tx                    = domain.Tx
	EventSink             = domain.EventSink
	RegistrationError     = domain.RegistrationError
	IdentityConflictError = domain.IdentityConflictError
	ConflictError         = domain.ConflictError
	PersistenceError      = domain.PersistenceError
	ScopeError            = domain.ScopeError
)

const (
	EventCreated = domain.EventCreated
	EventUpdated = domain.EventUpdated
	EventDeleted = domain.EventDeleted
)
