package monitorlock

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeEvaler is a hand-written stand-in for a *redis.Client, grounded on
// the teacher's fakeRedisEvaler (internal/ratelimiter/persistence/redis_test.go):
// script identity decides the canned response rather than touching a real
// Redis server.
type fakeEvaler struct {
	owners map[string]string
	err    error
}

func newFakeEvaler() *fakeEvaler { return &fakeEvaler{owners: map[string]string{}} }

func (f *fakeEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	key := keys[0]
	owner := args[0].(string)
	switch script {
	case acquireScript:
		if cur, held := f.owners[key]; held && cur != owner {
			cmd.SetVal(int64(0))
		} else {
			f.owners[key] = owner
			cmd.SetVal(int64(1))
		}
	case extendScript:
		if f.owners[key] == owner {
			cmd.SetVal(int64(1))
		} else {
			cmd.SetVal(int64(0))
		}
	case releaseScript:
		if f.owners[key] == owner {
			delete(f.owners, key)
			cmd.SetVal(int64(1))
		} else {
			cmd.SetVal(int64(0))
		}
	}
	return cmd
}

func TestRegionLock_AcquireThenHeldByOther(t *testing.T) {
	fake := newFakeEvaler()
	lock := NewRegionLock(fake, time.Minute)

	if err := lock.Acquire(context.Background(), "us-central", "owner-a"); err != nil {
		t.Fatalf("first acquire should succeed: %v", err)
	}
	if err := lock.Acquire(context.Background(), "us-central", "owner-b"); err != ErrHeld {
		t.Fatalf("expected ErrHeld for a contended acquire, got %v", err)
	}
}

func TestRegionLock_ExtendFailsForNonOwner(t *testing.T) {
	fake := newFakeEvaler()
	lock := NewRegionLock(fake, time.Minute)
	_ = lock.Acquire(context.Background(), "us-central", "owner-a")

	if err := lock.Extend(context.Background(), "us-central", "owner-b"); err != ErrNotOwner {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := lock.Extend(context.Background(), "us-central", "owner-a"); err != nil {
		t.Fatalf("expected owner to extend successfully: %v", err)
	}
}

func TestRegionLock_ReleaseIsConditional(t *testing.T) {
	fake := newFakeEvaler()
	lock := NewRegionLock(fake, time.Minute)
	_ = lock.Acquire(context.Background(), "us-central", "owner-a")

	if err := lock.Release(context.Background(), "us-central", "owner-b"); err != ErrNotOwner {
		t.Fatalf("expected a non-owner release to fail, got %v", err)
	}
	if err := lock.Release(context.Background(), "us-central", "owner-a"); err != nil {
		t.Fatalf("expected owner release to succeed: %v", err)
	}
	// Released lock can be re-acquired by anyone.
	if err := lock.Acquire(context.Background(), "us-central", "owner-b"); err != nil {
		t.Fatalf("expected re-acquire after release: %v", err)
	}
}

func TestRegionLock_EvalErrorPropagates(t *testing.T) {
	fake := newFakeEvaler()
	fake.err = context.DeadlineExceeded
	lock := NewRegionLock(fake, time.Minute)
	if err := lock.Acquire(context.Background(), "us-central", "owner-a"); err == nil {
		t.Fatal("expected eval error to propagate")
	}
}
