package core

import (
	"context"
	"errors"
	"fmt"

	"unitcore/pkg/domain"
)

type scopeState int

const (
	stateIdle scopeState = iota
	stateActive
	stateCommitted
	stateRolledBack
)

// Coordinator owns one unit-of-work scope: it pairs the change tracker with
// the event recorder at registration time and drives the persistence adapter
// at commit. One coordinator corresponds to one logical business transaction
// and must be used from a single goroutine at a time; concurrent scopes
// interact only through the adapter's optimistic version checks.
//
// Only the root coordinator writes to storage. Nested coordinators share the
// root's adapter transaction through savepoints and merge their change sets
// into the parent on commit.
type Coordinator struct {
	adapter  domain.Adapter
	sink     domain.EventSink
	logger   Logger
	clock    Clock
	metrics  MetricsRecorder
	registry *Registry
	tracker  *Tracker
	detector *Detector
	recorder *Recorder

	parent    *Coordinator
	tx        domain.Tx
	savepoint string
	spSeq     int
	state     scopeState
	committed []domain.Event
}

// NewCoordinator constructs a root coordinator over the given adapter and
// event sink. The scope is idle until Begin.
func NewCoordinator(adapter domain.Adapter, sink domain.EventSink, opts ...Option) *Coordinator {
	s := newSettings(opts)
	registry := NewRegistry()
	return &Coordinator{
		adapter:  adapter,
		sink:     sink,
		logger:   s.logger,
		clock:    s.clock,
		metrics:  s.metrics,
		registry: registry,
		tracker:  NewTracker(registry, nil),
		detector: NewDetector(),
		recorder: NewRecorder(),
	}
}

// Begin activates the scope. Beginning an already active or finished scope
// fails with ScopeError.
func (c *Coordinator) Begin() error {
	if c.state != stateIdle {
		return domain.ScopeError{Reason: "begin: scope already started"}
	}
	c.state = stateActive
	return nil
}

// Registry exposes the scope's identity map.
func (c *Coordinator) Registry() *Registry { return c.registry }

// StateOf reports an entity's tracking state within this scope chain.
func (c *Coordinator) StateOf(e domain.Entity) TrackState { return c.tracker.StateOf(e) }

// CommittedEvents returns the event batch flushed by a successful commit.
func (c *Coordinator) CommittedEvents() []domain.Event {
	return append([]domain.Event(nil), c.committed...)
}

// RegisterNew tracks an entity for insertion and stages its Created event.
func (c *Coordinator) RegisterNew(e domain.Entity) error {
	if err := c.requireActive("register new"); err != nil {
		return err
	}
	if c.tracker.isNew(e) {
		return nil
	}
	if err := c.tracker.RegisterNew(e); err != nil {
		return err
	}
	c.recorder.StageCreated(e)
	c.logger.Debug("registered new entity", "type", e.Kind())
	return nil
}

// RegisterDirty tracks an entity for update and stages its Updated event.
// Entities tracked as New are saved in full regardless, so this is a no-op
// for them.
func (c *Coordinator) RegisterDirty(e domain.Entity) error {
	if err := c.requireActive("register dirty"); err != nil {
		return err
	}
	before := c.tracker.StateOf(e)
	if err := c.tracker.RegisterDirty(e); err != nil {
		return err
	}
	if before != StateDirty && c.tracker.StateOf(e) == StateDirty {
		c.recorder.StageUpdated(e)
		c.logger.Debug("registered dirty entity", "key", domain.KeyOf(e).String())
	}
	return nil
}

// RegisterRemoved tracks an entity for deletion. A never-inserted entity is
// simply dropped along with its staged event; an id-bearing entity leaves
// New/Dirty and the identity map, and a Deleted event replaces any staged
// Updated event.
func (c *Coordinator) RegisterRemoved(e domain.Entity) error {
	if err := c.requireActive("register removed"); err != nil {
		return err
	}
	if e.ID() == "" {
		c.recorder.Unstage(e)
		return c.tracker.RegisterRemoved(e)
	}
	already := c.tracker.StateOf(e) == StateRemoved
	c.recorder.Unstage(e)
	if err := c.tracker.RegisterRemoved(e); err != nil {
		return err
	}
	if !already {
		c.recorder.StageDeleted(e)
		c.logger.Debug("registered removed entity", "key", domain.KeyOf(e).String())
	}
	return nil
}

// RegisterClean discards all tracking for the entity, including staged
// events.
func (c *Coordinator) RegisterClean(e domain.Entity) error {
	if err := c.requireActive("register clean"); err != nil {
		return err
	}
	c.recorder.Unstage(e)
	c.tracker.RegisterClean(e)
	return nil
}

// BeginNested opens a child scope backed by a storage savepoint on the
// shared adapter transaction. The child's commit merges into this scope; its
// rollback discards only changes made since the savepoint.
func (c *Coordinator) BeginNested(ctx context.Context) (*Coordinator, error) {
	if err := c.requireActive("begin nested"); err != nil {
		return nil, err
	}
	root := c.root()
	if err := root.ensureTx(ctx); err != nil {
		return nil, err
	}
	root.spSeq++
	name := fmt.Sprintf("uow_sp_%d", root.spSeq)
	if err := root.tx.Savepoint(ctx, name); err != nil {
		return nil, domain.PersistenceError{Op: "savepoint " + name, Err: err}
	}
	child := &Coordinator{
		adapter:   c.adapter,
		sink:      c.sink,
		logger:    c.logger,
		clock:     c.clock,
		metrics:   c.metrics,
		registry:  c.registry,
		detector:  c.detector,
		recorder:  NewRecorder(),
		parent:    c,
		savepoint: name,
		state:     stateActive,
	}
	child.tracker = NewTracker(c.registry, c.tracker)
	c.logger.Debug("nested scope started", "savepoint", name)
	return child, nil
}

// Commit finalizes the scope. For a nested scope it transfers tracked
// changes and staged events to the parent without touching storage. For the
// root scope it applies inserts, updates, and deletes in phase order, flushes
// events to the sink, and commits the adapter transaction; on any failure the
// transaction is fully rolled back before the error returns, so partial
// commits are never observable.
func (c *Coordinator) Commit(ctx context.Context) error {
	if err := c.requireActive("commit"); err != nil {
		return err
	}
	start := c.clock.Now()
	var err error
	if c.parent != nil {
		err = c.commitNested()
		c.metrics.Observe(ctx, "nested_commit", err == nil, c.clock.Now().Sub(start))
	} else {
		err = c.commitRoot(ctx)
		c.metrics.Observe(ctx, "commit", err == nil, c.clock.Now().Sub(start))
	}
	return err
}

// Rollback discards the scope. The root rolls the adapter transaction back
// and drops all tracking state; a nested scope rolls back to its savepoint
// and leaves the parent's tracked changes untouched. A second rollback on a
// finished scope fails with ScopeError and never reaches storage.
func (c *Coordinator) Rollback(ctx context.Context) error {
	if c.state != stateActive {
		return domain.ScopeError{Reason: "rollback: no active scope"}
	}
	start := c.clock.Now()
	var err error
	if c.parent != nil {
		err = c.rollbackNested(ctx)
	} else {
		err = c.rollbackRoot(ctx)
	}
	c.metrics.Observe(ctx, "rollback", err == nil, c.clock.Now().Sub(start))
	return err
}

func (c *Coordinator) commitNested() error {
	if err := c.tracker.mergeInto(c.parent.tracker); err != nil {
		return err
	}
	c.recorder.mergeInto(c.parent.recorder)
	c.tracker.clear()
	c.recorder.clear()
	c.state = stateCommitted
	c.logger.Debug("nested scope merged", "savepoint", c.savepoint)
	return nil
}

func (c *Coordinator) commitRoot(ctx context.Context) error {
	if c.tx == nil && c.tracker.Empty() && c.recorder.Len() == 0 {
		c.state = stateCommitted
		return nil
	}
	if err := c.ensureTx(ctx); err != nil {
		c.state = stateRolledBack
		return err
	}

	inserted, updated, deleted := len(c.tracker.added), len(c.tracker.dirty), len(c.tracker.removed)

	if err := c.applyInserts(ctx); err != nil {
		return c.abort(ctx, err)
	}
	diffs, err := c.applyUpdates(ctx)
	if err != nil {
		return c.abort(ctx, err)
	}
	if err := c.applyDeletes(ctx); err != nil {
		return c.abort(ctx, err)
	}

	batch, err := c.recorder.Materialize(diffs)
	if err != nil {
		return c.abort(ctx, domain.PersistenceError{Op: "event materialize", Err: err})
	}
	if c.sink != nil && len(batch) > 0 {
		if err := c.sink.Append(ctx, batch); err != nil {
			return c.abort(ctx, domain.PersistenceError{Op: "event flush", Err: err})
		}
	}

	if err := c.tx.Commit(ctx); err != nil {
		_ = c.tx.Rollback(ctx)
		c.finishRolledBack()
		return domain.PersistenceError{Op: "commit", Err: err}
	}

	c.committed = batch
	c.tracker.clear()
	c.recorder.clear()
	c.tx = nil
	c.state = stateCommitted
	c.logger.Info("scope committed",
		"inserted", inserted, "updated", updated, "deleted", deleted, "events", len(batch))
	return nil
}

func (c *Coordinator) applyInserts(ctx context.Context) error {
	for _, e := range c.tracker.Added() {
		id, err := c.tx.Insert(ctx, e)
		if err != nil {
			return domain.PersistenceError{Op: "insert " + string(e.Kind()), Err: err}
		}
		e.BindIdentity(id)
		e.SetVersion(1)
		if err := c.registry.Track(e); err != nil {
			return err
		}
		c.tracker.RegisterClean(e)
	}
	return nil
}

func (c *Coordinator) applyUpdates(ctx context.Context) (map[domain.Key]domain.FieldDiff, error) {
	diffs := make(map[domain.Key]domain.FieldDiff)
	for _, e := range c.tracker.DirtyEntities() {
		key := domain.KeyOf(e)
		baseline, _ := c.registry.Baseline(key)
		fields, err := e.Fields()
		if err != nil {
			return nil, domain.PersistenceError{Op: "fields " + key.String(), Err: err}
		}
		diff := c.detector.ComputeDiff(baseline, fields)
		diffs[key] = diff
		if diff.Empty() {
			// No real change: no update statement, no event.
			c.tracker.RegisterClean(e)
			continue
		}
		if err := c.tx.Update(ctx, e, e.Version()); err != nil {
			var conflict *domain.ConflictError
			if errors.As(err, &conflict) {
				c.logger.Warn("version conflict", "key", key.String(),
					"expected", conflict.Expected, "actual", conflict.Actual)
				return nil, conflict
			}
			return nil, domain.PersistenceError{Op: "update " + key.String(), Err: err}
		}
		e.SetVersion(e.Version() + 1)
		c.registry.Rebase(key, fields)
		c.tracker.RegisterClean(e)
	}
	return diffs, nil
}

func (c *Coordinator) applyDeletes(ctx context.Context) error {
	for _, e := range c.tracker.RemovedEntities() {
		key := domain.KeyOf(e)
		if err := c.tx.Delete(ctx, key.Type, key.ID); err != nil {
			return domain.PersistenceError{Op: "delete " + key.String(), Err: err}
		}
		c.registry.Evict(key.Type, key.ID)
		c.tracker.RegisterClean(e)
	}
	return nil
}

// abort rolls the adapter transaction back and closes the scope, then
// returns the originating error untouched so callers can classify it.
func (c *Coordinator) abort(ctx context.Context, cause error) error {
	if rbErr := c.tx.Rollback(ctx); rbErr != nil {
		c.logger.Error("rollback after failed commit", "error", rbErr)
	}
	c.finishRolledBack()
	return cause
}

func (c *Coordinator) rollbackRoot(ctx context.Context) error {
	var err error
	if c.tx != nil {
		if rbErr := c.tx.Rollback(ctx); rbErr != nil {
			err = domain.PersistenceError{Op: "rollback", Err: rbErr}
		}
	}
	c.finishRolledBack()
	c.logger.Info("scope rolled back")
	return err
}

func (c *Coordinator) rollbackNested(ctx context.Context) error {
	root := c.root()
	var err error
	if root.tx != nil {
		if rbErr := root.tx.RollbackTo(ctx, c.savepoint); rbErr != nil {
			err = domain.PersistenceError{Op: "rollback to " + c.savepoint, Err: rbErr}
		}
	}
	c.tracker.clear()
	c.recorder.clear()
	c.state = stateRolledBack
	c.logger.Debug("nested scope rolled back", "savepoint", c.savepoint)
	return err
}

func (c *Coordinator) finishRolledBack() {
	c.tracker.clear()
	c.recorder.clear()
	c.registry.clear()
	c.tx = nil
	c.state = stateRolledBack
}

func (c *Coordinator) ensureTx(ctx context.Context) error {
	if c.tx != nil {
		return nil
	}
	tx, err := c.adapter.Begin(ctx)
	if err != nil {
		return domain.PersistenceError{Op: "begin", Err: err}
	}
	c.tx = tx
	return nil
}

func (c *Coordinator) root() *Coordinator {
	cur := c
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

func (c *Coordinator) requireActive(op string) error {
	switch c.state {
	case stateActive:
		return nil
	case stateIdle:
		return domain.ScopeError{Reason: op + ": scope not begun"}
	default:
		return domain.ScopeError{Reason: op + ": scope already finished"}
	}
}
