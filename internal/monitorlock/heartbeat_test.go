package monitorlock

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestHeartbeat_StopsOnContextCancel(t *testing.T) {
	fake := newFakeEvaler()
	lock := NewRegionLock(fake, time.Minute)
	_ = lock.Acquire(context.Background(), "us-central", "owner-a")

	ctx, cancel := context.WithCancel(context.Background())
	lost := Heartbeat(ctx, lock, "us-central", "owner-a", 5*time.Millisecond, zap.NewNop())
	cancel()

	select {
	case <-lost:
	case <-time.After(time.Second):
		t.Fatal("expected heartbeat to stop after context cancellation")
	}
}

func TestHeartbeat_ReportsLossWhenOwnershipStolen(t *testing.T) {
	fake := newFakeEvaler()
	lock := NewRegionLock(fake, time.Minute)
	_ = lock.Acquire(context.Background(), "us-central", "owner-a")

	lost := Heartbeat(context.Background(), lock, "us-central", "owner-a", 5*time.Millisecond, zap.NewNop())
	fake.owners["pulsewatch:lock:us-central"] = "owner-b"

	select {
	case <-lost:
	case <-time.After(time.Second):
		t.Fatal("expected heartbeat to report ownership loss")
	}
}
