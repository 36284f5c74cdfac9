package monitorscheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"pulsewatch/internal/monitoralert"
	"pulsewatch/internal/monitorcfg"
	"pulsewatch/internal/monitorlock"
	"pulsewatch/internal/monitormeta"
	"pulsewatch/internal/monitorprobe"
	"pulsewatch/internal/monitorsinks/mutation"
	"pulsewatch/internal/monitorsinks/telemetry"
	"pulsewatch/internal/monitorstore"
	"pulsewatch/pkg/monitor"
)

// Scheduler drives one region's tick at a time (spec.md §4.2). A single
// Scheduler instance can be asked to tick multiple regions sequentially;
// cmd/scheduler is responsible for deciding how many regions one process
// owns and on what cadence.
type Scheduler struct {
	ownerID string

	cfgStore  *monitorcfg.Store
	store     monitorstore.Store
	lock      *monitorlock.RegionLock
	probe     *monitorprobe.Engine
	resolver  *monitormeta.Resolver
	sinkA     *telemetry.Sink
	sinkB     *mutation.Sink
	alertGate *monitoralert.Gate
	settings  AlertSettingsProvider

	// alertMu serializes alert-gate evaluations within a tick: TickCaches'
	// maps are not safe for the concurrent access a wave of target
	// goroutines would otherwise produce (see monitoralert.TickCaches).
	alertMu sync.Mutex

	log *zap.Logger
}

func NewScheduler(
	ownerID string,
	cfgStore *monitorcfg.Store,
	store monitorstore.Store,
	lock *monitorlock.RegionLock,
	probe *monitorprobe.Engine,
	resolver *monitormeta.Resolver,
	sinkA *telemetry.Sink,
	sinkB *mutation.Sink,
	alertGate *monitoralert.Gate,
	settings AlertSettingsProvider,
	log *zap.Logger,
) *Scheduler {
	return &Scheduler{
		ownerID:   ownerID,
		cfgStore:  cfgStore,
		store:     store,
		lock:      lock,
		probe:     probe,
		resolver:  resolver,
		sinkA:     sinkA,
		sinkB:     sinkB,
		alertGate: alertGate,
		settings:  settings,
		log:       log,
	}
}

// Tick runs exactly one scheduler invocation for region (spec.md §4.2). It
// is safe to call concurrently for different regions; calling it again
// for a region whose lock is currently held elsewhere returns nil without
// error (spec.md S5, "Tick B returns immediately without probing").
func (s *Scheduler) Tick(ctx context.Context, region monitor.Region) error {
	cfg := s.cfgStore.Get()
	now := time.Now()

	if err := s.lock.Acquire(ctx, string(region), s.ownerID); err != nil {
		if errors.Is(err, monitorlock.ErrHeld) {
			s.log.Info("region lock held elsewhere, skipping tick", zap.String("region", string(region)))
			return nil
		}
		return err
	}
	defer func() {
		if err := s.lock.Release(ctx, string(region), s.ownerID); err != nil && !errors.Is(err, monitorlock.ErrNotOwner) {
			s.log.Warn("region lock release failed", zap.String("region", string(region)), zap.Error(err))
		}
	}()

	tickCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	lost := monitorlock.Heartbeat(tickCtx, s.lock, string(region), s.ownerID, cfg.LockHeartbeat, s.log)

	budget := newTimeBudget(now, cfg.FunctionTimeout, cfg.SafetyBuffer, cfg.MinTimeForNewBatch)
	caches := monitoralert.NewTickCaches()

	// The canonical region additionally owns targets with no assigned
	// region (spec.md's Domain Model supplement): page those separately
	// and fold them into the same tick rather than special-casing them
	// inside PageDue itself.
	queryRegions := []monitor.Region{region}
	if region == monitor.CanonicalRegion {
		queryRegions = append(queryRegions, monitor.Region(""))
	}

	for _, queryRegion := range queryRegions {
		lockLost := s.runPages(tickCtx, queryRegion, cfg, budget, lost, caches)
		if lockLost {
			s.log.Warn("lock lost mid-tick, stopping scheduling", zap.String("region", string(region)))
			s.sinkB.Flush(ctx)
			return nil
		}
	}

	if err := s.sinkB.Flush(ctx); err != nil {
		s.log.Warn("end-of-tick mutation flush failed", zap.String("region", string(region)), zap.Error(err))
	}
	return nil
}

// runPages pages every due target for queryRegion and runs them through
// processPage, page by page, until the store is exhausted or the tick's
// page/time budget is spent. It reports true if the region lock was lost
// mid-paging, signaling the caller to abandon the rest of the tick.
func (s *Scheduler) runPages(ctx context.Context, queryRegion monitor.Region, cfg monitorcfg.Config, budget *timeBudget, lost <-chan struct{}, caches *monitoralert.TickCaches) bool {
	cursor := ""
	for page := 0; page < cfg.MaxCheckQueryPages; page++ {
		select {
		case <-lost:
			return true
		default:
		}
		if !budget.shouldStartWork(time.Now()) {
			return false
		}

		targets, next, err := s.store.PageDue(ctx, queryRegion, cursor, cfg.MaxWebsitesPerRun, time.Now().Unix())
		if err != nil {
			s.log.Error("page due targets failed", zap.String("region", string(queryRegion)), zap.Error(err))
			return false
		}
		if len(targets) == 0 {
			return false
		}

		s.processPage(ctx, targets, cfg, budget, lost, caches)

		if next == "" {
			return false
		}
		cursor = next
	}
	return false
}

// processPage partitions targets into stable shard buckets (one per
// batch) via ShardAssigner, then runs the buckets in groups of at most
// MaxParallelBatches concurrent batches (spec.md §4.2, "Fan-out").
func (s *Scheduler) processPage(ctx context.Context, targets []monitor.Target, cfg monitorcfg.Config, budget *timeBudget, lost <-chan struct{}, caches *monitoralert.TickCaches) {
	batchCount := numBatches(len(targets), cfg.OptimalBatchSize(len(targets)))
	byID := make(map[string]monitor.Target, len(targets))
	ids := make([]string, len(targets))
	for i, t := range targets {
		byID[t.ID] = t
		ids[i] = t.ID
	}
	assigner := monitor.NewShardAssigner(batchCount)
	idBuckets := assigner.Partition(ids)

	var batches [][]monitor.Target
	for _, bucket := range idBuckets {
		if len(bucket) == 0 {
			continue
		}
		batch := make([]monitor.Target, 0, len(bucket))
		for _, id := range bucket {
			batch = append(batch, byID[id])
		}
		batches = append(batches, batch)
	}

	groupSize := cfg.MaxParallelBatches()
	if groupSize < 1 {
		groupSize = 1
	}
	for i := 0; i < len(batches); i += groupSize {
		select {
		case <-lost:
			return
		default:
		}
		if !budget.shouldStartWork(time.Now()) {
			return
		}
		end := i + groupSize
		if end > len(batches) {
			end = len(batches)
		}
		var wg sync.WaitGroup
		for _, batch := range batches[i:end] {
			wg.Add(1)
			go func(batch []monitor.Target) {
				defer wg.Done()
				s.processBatch(ctx, batch, cfg, lost, caches)
			}(batch)
		}
		wg.Wait()
		if end < len(batches) {
			time.Sleep(cfg.BatchDelay)
		}
	}
}

// processBatch runs one batch in waves of at most MaxConcurrent
// concurrent probes, sleeping ConcurrentBatchDelay between waves.
func (s *Scheduler) processBatch(ctx context.Context, batch []monitor.Target, cfg monitorcfg.Config, lost <-chan struct{}, caches *monitoralert.TickCaches) {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	for i := 0; i < len(batch); i += maxConcurrent {
		select {
		case <-lost:
			return
		default:
		}
		end := i + maxConcurrent
		if end > len(batch) {
			end = len(batch)
		}
		var wg sync.WaitGroup
		for _, target := range batch[i:end] {
			wg.Add(1)
			go func(t monitor.Target) {
				defer wg.Done()
				s.processTarget(ctx, t, cfg, caches)
			}(target)
		}
		wg.Wait()
		if end < len(batch) {
			time.Sleep(cfg.ConcurrentBatchDelay)
		}
	}
}

// numBatches mirrors ceil(n / size), at least 1.
func numBatches(n, size int) int {
	if n <= 0 {
		return 1
	}
	if size <= 0 {
		return 1
	}
	count := (n + size - 1) / size
	if count < 1 {
		count = 1
	}
	return count
}
