package core

import "context"

// BatchArchiver persists committed event batches outside the transaction,
// e.g. to a blob backend. Implementations live under internal/archive.
type BatchArchiver interface {
	Archive(ctx context.Context, batch []Event) (string, error)
}

// Manager runs unit-of-work scopes with commit-or-rollback guarantees: the
// body runs against a fresh coordinator, a nil return commits, any error or
// panic rolls back, and the scope is released on every exit path.
type Manager struct {
	adapter  Adapter
	sink     EventSink
	archiver BatchArchiver
	opts     []Option
	logger   Logger
}

// NewManager constructs a scope manager over the adapter and event sink.
func NewManager(adapter Adapter, sink EventSink, opts ...Option) *Manager {
	s := newSettings(opts)
	return &Manager{adapter: adapter, sink: sink, opts: opts, logger: s.logger}
}

// WithArchiver attaches a post-commit batch archiver. Archiving happens after
// the transaction is durable; failures are logged, never surfaced as commit
// failures.
func (m *Manager) WithArchiver(a BatchArchiver) *Manager {
	m.archiver = a
	return m
}

// Run executes fn inside a new root scope. The coordinator handed to fn is
// valid only for the duration of the call.
func (m *Manager) Run(ctx context.Context, fn func(*Coordinator) error) error {
	c := NewCoordinator(m.adapter, m.sink, m.opts...)
	if err := c.Begin(); err != nil {
		return err
	}

	done := false
	defer func() {
		if done {
			return
		}
		// Reached only when fn panicked; discard the scope before unwinding.
		if err := c.Rollback(ctx); err != nil {
			m.logger.Error("rollback during panic unwind", "error", err)
		}
	}()

	if err := fn(c); err != nil {
		done = true
		if rbErr := c.Rollback(ctx); rbErr != nil {
			m.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}

	done = true
	if err := c.Commit(ctx); err != nil {
		return err
	}
	if m.archiver != nil {
		if batch := c.CommittedEvents(); len(batch) > 0 {
			if _, err := m.archiver.Archive(ctx, batch); err != nil {
				m.logger.Error("archive committed batch", "error", err)
			}
		}
	}
	return nil
}
