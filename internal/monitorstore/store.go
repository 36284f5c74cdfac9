// Package monitorstore defines the target store port (spec.md §6) and its
// concrete backends: the externally-owned table of monitored targets is
// read a page at a time and written only through sparse MutationUpdate
// batches, never through a full-target write.
package monitorstore

import (
	"context"

	"pulsewatch/pkg/monitor"
)

// Store is the port the scheduler depends on. It never blocks on the
// warehouse or alert backends; those are separate ports.
type Store interface {
	// PageDue returns up to limit targets due for a check in region,
	// ordered by OrderingIndex, plus an opaque cursor for the next page
	// (empty when exhausted). region == "" pages targets with no region
	// assignment, which the scheduler folds into the canonical region's
	// run (spec.md's Domain Model supplement).
	PageDue(ctx context.Context, region monitor.Region, cursor string, limit int, now int64) (targets []monitor.Target, nextCursor string, err error)

	// ApplyUpdates writes a batch of sparse field updates. Sink B treats
	// the whole call as succeed-or-retry-all. PostgresStore applies the
	// batch in one transaction, so an error leaves none of it applied;
	// MemoryStore applies each update independently and never errors.
	ApplyUpdates(ctx context.Context, updates []monitor.MutationUpdate) error
}
