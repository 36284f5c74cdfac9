package mutation

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"pulsewatch/internal/monitorstore"
	"pulsewatch/pkg/monitor"
)

func TestSink_AdmitLastWriteWinsPerField(t *testing.T) {
	store := monitorstore.NewMemoryStore([]monitor.Target{{ID: "a"}})
	s := NewSink(store, time.Hour, zap.NewNop())

	s.Admit(monitor.MutationUpdate{TargetID: "a", Fields: map[string]any{"consecutive_failures": 1, "last_error": "timeout"}})
	s.Admit(monitor.MutationUpdate{TargetID: "a", Fields: map[string]any{"consecutive_failures": 2}})

	if err := s.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	got, _ := store.Get("a")
	if got.ConsecutiveFailures != 2 {
		t.Fatalf("expected last write to win (2), got %d", got.ConsecutiveFailures)
	}
	if got.LastError != "timeout" {
		t.Fatalf("expected earlier field write to survive when not overwritten, got %q", got.LastError)
	}
}

func TestSink_FlushEmptyIsNoOp(t *testing.T) {
	store := monitorstore.NewMemoryStore(nil)
	s := NewSink(store, time.Hour, zap.NewNop())
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("expected empty flush to succeed, got %v", err)
	}
}

type failingStore struct{ err error }

func (f failingStore) PageDue(ctx context.Context, region monitor.Region, cursor string, limit int, now int64) ([]monitor.Target, string, error) {
	return nil, "", nil
}
func (f failingStore) ApplyUpdates(ctx context.Context, updates []monitor.MutationUpdate) error {
	return f.err
}

func TestSink_FailedFlushRetainsFieldsForRetry(t *testing.T) {
	store := failingStore{err: errors.New("store unavailable")}
	s := NewSink(store, time.Hour, zap.NewNop())
	s.Admit(monitor.MutationUpdate{TargetID: "a", Fields: map[string]any{"consecutive_failures": 1}})

	if err := s.Flush(context.Background()); err == nil {
		t.Fatal("expected flush to report the store error")
	}
	if s.PendingCount() != 1 {
		t.Fatalf("expected failed flush to retain pending mutation, got %d pending", s.PendingCount())
	}
}

// admitDuringFlushStore runs onApply inside ApplyUpdates and then fails,
// so a test can admit a mutation while a flush is in flight.
type admitDuringFlushStore struct {
	failingStore
	onApply func()
}

func (f admitDuringFlushStore) ApplyUpdates(ctx context.Context, updates []monitor.MutationUpdate) error {
	f.onApply()
	return f.failingStore.ApplyUpdates(ctx, updates)
}

func TestSink_NewerAdmissionDuringFailedFlushWins(t *testing.T) {
	var s *Sink
	store := admitDuringFlushStore{
		failingStore: failingStore{err: errors.New("store unavailable")},
		onApply: func() {
			s.Admit(monitor.MutationUpdate{TargetID: "a", Fields: map[string]any{"consecutive_failures": 9}})
		},
	}
	s = NewSink(store, time.Hour, zap.NewNop())
	s.Admit(monitor.MutationUpdate{TargetID: "a", Fields: map[string]any{"consecutive_failures": 1}})

	// Flush snapshots {consecutive_failures: 1} and hands it to the store;
	// the store admits a newer value while the flush is in flight and then
	// fails, so the retain-merge must not clobber the newer value.
	if err := s.Flush(context.Background()); err == nil {
		t.Fatal("expected flush to report the store error")
	}

	if s.PendingCount() != 1 {
		t.Fatalf("expected exactly one pending target, got %d", s.PendingCount())
	}
	s.mu.Lock()
	got := s.pending["a"]["consecutive_failures"]
	s.mu.Unlock()
	if got != 9 {
		t.Fatalf("expected the admission made during the flush (9) to win, got %v", got)
	}
}
