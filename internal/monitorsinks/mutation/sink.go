// Package mutation implements Sink B (spec.md §4.4): a per-target,
// field-level last-write-wins coalescing buffer for target mutations,
// flushed on a timer, at tick-end, and on shutdown. Unlike Sink A, a
// failed flush simply leaves the coalesced fields in place for the next
// attempt; there is no backoff or per-row drop ceiling; a mutation is
// always eventually-consistent freshness data, not an event that must be
// individually accounted for.
package mutation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pulsewatch/internal/monitorstore"
	"pulsewatch/pkg/monitor"
)

// Sink coalesces MutationUpdate submissions per target, last field write
// wins, and periodically flushes the accumulated set to the Store.
type Sink struct {
	store monitorstore.Store
	log   *zap.Logger

	mu      sync.Mutex
	pending map[string]map[string]any

	interval time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  atomic.Bool
}

func NewSink(store monitorstore.Store, flushInterval time.Duration, log *zap.Logger) *Sink {
	return &Sink{
		store:    store,
		log:      log,
		pending:  make(map[string]map[string]any),
		interval: flushInterval,
		stopChan: make(chan struct{}),
	}
}

// Admit merges update's fields into the pending set for its target,
// overwriting any previously pending value for the same field name.
func (s *Sink) Admit(update monitor.MutationUpdate) {
	if len(update.Fields) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fields, ok := s.pending[update.TargetID]
	if !ok {
		fields = make(map[string]any, len(update.Fields))
		s.pending[update.TargetID] = fields
	}
	for k, v := range update.Fields {
		fields[k] = v
	}
}

// PendingCount reports how many distinct targets currently have
// uncommitted mutations.
func (s *Sink) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// PendingStatus returns the not-yet-flushed last_status field for
// targetID, if one is currently coalesced. Callers prefer this over the
// store's stale last-flushed status when deciding whether a transition
// already fired this run, so that two overlapping ticks never double-alert
// on a mutation the first tick admitted but hasn't flushed yet (spec.md
// §4.5, "Which previous status to use").
func (s *Sink) PendingStatus(targetID string) (monitor.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields, ok := s.pending[targetID]
	if !ok {
		return "", false
	}
	status, ok := fields["last_status"].(monitor.Status)
	return status, ok
}

// Flush writes the currently coalesced set to the store. On failure, the
// snapshot is merged back (not overwritten) so any mutation admitted
// during the failed attempt is not lost.
func (s *Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return nil
	}
	snapshot := s.pending
	s.pending = make(map[string]map[string]any)
	s.mu.Unlock()

	updates := make([]monitor.MutationUpdate, 0, len(snapshot))
	for targetID, fields := range snapshot {
		updates = append(updates, monitor.MutationUpdate{TargetID: targetID, Fields: fields})
	}

	if err := s.store.ApplyUpdates(ctx, updates); err != nil {
		s.log.Warn("mutation flush failed, retaining pending fields for next attempt", zap.Int("targets", len(updates)), zap.Error(err))
		s.mu.Lock()
		for targetID, fields := range snapshot {
			merged, ok := s.pending[targetID]
			if !ok {
				s.pending[targetID] = fields
				continue
			}
			for k, v := range fields {
				if _, already := merged[k]; !already {
					merged[k] = v
				}
			}
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// Start launches the periodic flush loop.
func (s *Sink) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = s.Flush(ctx)
			case <-s.stopChan:
				_ = s.Flush(ctx)
				return
			}
		}
	}()
}

func (s *Sink) Stop(ctx context.Context) {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	close(s.stopChan)
	s.wg.Wait()
}
