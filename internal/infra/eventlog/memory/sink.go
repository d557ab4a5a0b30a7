// Package memory implements an in-memory event sink for tests.
package memory

import (
	"context"
	"sync"

	"unitcore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.EventSink = (*Sink)(nil)

// Sink retains every appended batch in order. An injected failure makes the
// next Append fail, letting tests exercise the commit-fails-with-the-flush
// path.
type Sink struct {
	mu      sync.Mutex
	batches [][]domain.Event
	failErr error
}

// NewSink constructs an empty sink.
func NewSink() *Sink { return &Sink{} }

// FailNext makes the next Append return err and clears the injection.
func (s *Sink) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// Append stores the batch.
func (s *Sink) Append(ctx context.Context, batch []domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		err := s.failErr
		s.failErr = nil
		return err
	}
	cloned := append([]domain.Event(nil), batch...)
	s.batches = append(s.batches, cloned)
	return nil
}

// Batches returns a copy of all appended batches.
func (s *Sink) Batches() [][]domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]domain.Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]domain.Event(nil), b...)
	}
	return out
}

// Events returns all appended events flattened in order.
func (s *Sink) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Event
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}
