package memory

import (
	"context"
	"errors"
	"testing"

	"unitcore/pkg/domain"
)

func batchOf(ids ...string) []domain.Event {
	out := make([]domain.Event, 0, len(ids))
	for i, id := range ids {
		out = append(out, domain.Event{
			EntityType: "widget", EntityID: id, Kind: domain.EventCreated, Seq: uint64(i + 1),
		})
	}
	return out
}

func TestSinkAppend(t *testing.T) {
	ctx := context.Background()
	s := NewSink()
	if err := s.Append(ctx, batchOf("a", "b")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(ctx, batchOf("c")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(s.Batches()) != 2 {
		t.Fatalf("batches = %d, want 2", len(s.Batches()))
	}
	events := s.Events()
	if len(events) != 3 || events[2].EntityID != "c" {
		t.Fatalf("events = %+v", events)
	}
}

func TestSinkFailNext(t *testing.T) {
	ctx := context.Background()
	s := NewSink()
	boom := errors.New("boom")
	s.FailNext(boom)
	if err := s.Append(ctx, batchOf("a")); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if len(s.Events()) != 0 {
		t.Fatalf("failed append recorded events")
	}
	// Failure is consumed once.
	if err := s.Append(ctx, batchOf("b")); err != nil {
		t.Fatalf("append after failure: %v", err)
	}
}
