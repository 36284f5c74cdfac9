// Package monitorlock implements the scheduler's distributed mutual
// exclusion over a region's due-target page: one lock document per
// region, acquired with a compare-and-set, kept alive with a heartbeat
// extend, and released with a conditional delete so a stale or
// already-expired lock can never be stolen back mid-tick by its own prior
// owner (spec.md §4.2). The CAS/extend/release pattern is the teacher's
// RedisPersister idempotent-commit script (internal/ratelimiter/persistence/redis.go),
// generalized from "apply once" into "hold until released".
package monitorlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotOwner is returned by Extend and Release when the caller's token no
// longer matches the lock document, e.g. because it already expired and
// was claimed by another scheduler instance.
var ErrNotOwner = errors.New("monitorlock: caller is not the current lock owner")

// ErrHeld is returned by Acquire when another owner currently holds the
// lock.
var ErrHeld = errors.New("monitorlock: lock is held by another owner")

// Evaler abstracts the minimal Redis surface this package needs, mirroring
// the teacher's RedisEvaler seam so tests can substitute a fake.
type Evaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// acquireScript sets the lock document if it is absent (or expired) or
// already recorded under owner, recording owner and a fresh expiry.
// Returns 1 if acquired, 0 if already held by someone else.
const acquireScript = `
local key = KEYS[1]
local owner = ARGV[1]
local ttlSeconds = tonumber(ARGV[2])
local cur = redis.call('GET', key)
if cur == false or cur == owner then
  redis.call('SET', key, owner, 'EX', ttlSeconds)
  return 1
else
  return 0
end
`

// extendScript renews the TTL only if the caller is still the recorded
// owner; a lock that expired and was re-acquired by someone else is left
// untouched.
const extendScript = `
local key = KEYS[1]
local owner = ARGV[1]
local ttlSeconds = tonumber(ARGV[2])
if redis.call('GET', key) == owner then
  redis.call('EXPIRE', key, ttlSeconds)
  return 1
else
  return 0
end
`

// releaseScript deletes the lock document only if the caller is still the
// recorded owner (a conditional delete, spec.md §4.2).
const releaseScript = `
local key = KEYS[1]
local owner = ARGV[1]
if redis.call('GET', key) == owner then
  redis.call('DEL', key)
  return 1
else
  return 0
end
`

func lockKey(region string) string { return fmt.Sprintf("pulsewatch:lock:%s", region) }

// RegionLock coordinates exclusive possession of one region's scheduler
// tick across however many scheduler processes are running.
type RegionLock struct {
	client Evaler
	ttl    time.Duration
}

func NewRegionLock(client Evaler, ttl time.Duration) *RegionLock {
	if ttl <= 0 {
		ttl = 25 * time.Minute
	}
	return &RegionLock{client: client, ttl: ttl}
}

// Acquire attempts to take the lock for region under owner's token. owner
// must be unique per scheduler process instance (e.g. a uuid minted at
// startup) so Extend/Release can tell self from a later claimant.
func (l *RegionLock) Acquire(ctx context.Context, region, owner string) error {
	res, err := l.client.Eval(ctx, acquireScript, []string{lockKey(region)}, owner, int(l.ttl.Seconds())).Result()
	if err != nil {
		return fmt.Errorf("acquire lock region=%s: %w", region, err)
	}
	if toInt64(res) != 1 {
		return ErrHeld
	}
	return nil
}

// Extend renews the lock's TTL. Callers run this on a heartbeat interval
// well inside the TTL (spec.md §6 LOCK_HEARTBEAT_MS) so a slow tick never
// loses the lock mid-flight.
func (l *RegionLock) Extend(ctx context.Context, region, owner string) error {
	res, err := l.client.Eval(ctx, extendScript, []string{lockKey(region)}, owner, int(l.ttl.Seconds())).Result()
	if err != nil {
		return fmt.Errorf("extend lock region=%s: %w", region, err)
	}
	if toInt64(res) != 1 {
		return ErrNotOwner
	}
	return nil
}

// Release performs the conditional delete. It is always safe to call on
// shutdown even if ownership was already lost; ErrNotOwner is not a fatal
// condition for the caller.
func (l *RegionLock) Release(ctx context.Context, region, owner string) error {
	res, err := l.client.Eval(ctx, releaseScript, []string{lockKey(region)}, owner).Result()
	if err != nil {
		return fmt.Errorf("release lock region=%s: %w", region, err)
	}
	if toInt64(res) != 1 {
		return ErrNotOwner
	}
	return nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
