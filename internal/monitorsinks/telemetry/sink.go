// Package telemetry implements Sink A (spec.md §4.3): a buffered,
// backpressure-aware forwarder from probe telemetry rows to the
// warehouse. Its background loop follows the teacher's Worker
// (internal/ratelimiter/core/worker.go): a ticker-driven loop selecting
// against a stop channel, with an early flush once the buffer reaches
// HighWatermark and a final drain on shutdown.
package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pulsewatch/internal/monitorcfg"
	"pulsewatch/internal/monitorwarehouse"
	"pulsewatch/pkg/monitor"
)

// Sink buffers TelemetryRow admissions and flushes them to a Warehouse in
// bounded batches, retrying partial and whole-batch failures with
// exponential backoff up to a drop ceiling.
type Sink struct {
	cfg        monitorcfg.Config
	warehouse  monitorwarehouse.Warehouse
	table      string
	log        *zap.Logger

	mu  sync.Mutex
	buf *buffer

	flushing atomic.Bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  atomic.Bool

	dropped atomic.Int64

	// timerMu guards the three independently-scheduled flush timers named
	// by spec.md §4.3 beyond the periodic FlushInterval ticker: a
	// debounced-after-enqueue timer, an accelerated high-watermark timer,
	// and a backoff-driven timer rescheduled to the earliest pending
	// next_retry_at after every flush attempt.
	timerMu            sync.Mutex
	debounceTimer      *time.Timer
	highWatermarkTimer *time.Timer
	retryTimer         *time.Timer
}

func NewSink(cfg monitorcfg.Config, warehouse monitorwarehouse.Warehouse, table string, log *zap.Logger) *Sink {
	return &Sink{
		cfg:       cfg,
		warehouse: warehouse,
		table:     table,
		log:       log,
		buf:       newBuffer(),
		stopChan:  make(chan struct{}),
	}
}

// Admit enqueues row, dropping the oldest buffered row if MaxBufferSize is
// exceeded, scheduling a debounced flush at DefaultFlushDelay, and
// accelerating to HighWatermarkFlushDelay once HighWatermark is reached.
func (s *Sink) Admit(row monitor.TelemetryRow) {
	s.mu.Lock()
	s.buf.Admit(row)
	size := s.buf.Len()
	var droppedRow monitor.TelemetryRow
	wasDropped := false
	if size > s.cfg.MaxBufferSize {
		droppedRow, wasDropped = s.buf.DropOldest()
	}
	s.mu.Unlock()

	if wasDropped {
		s.dropped.Add(1)
		s.log.Warn("telemetry buffer overflow, dropped oldest row", zap.String("dropped_row_id", droppedRow.ID))
	}

	s.scheduleDebounce()
	if size >= s.cfg.HighWatermark {
		s.scheduleHighWatermark()
	}
}

// scheduleDebounce arms a one-shot flush DefaultFlushDelay after the first
// enqueue since the last time it fired; later enqueues before it fires do
// not push it back further (spec.md §4.3's debounced-after-enqueue timer).
func (s *Sink) scheduleDebounce() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.debounceTimer != nil {
		return
	}
	s.debounceTimer = time.AfterFunc(s.cfg.DefaultFlushDelay, func() {
		s.timerMu.Lock()
		s.debounceTimer = nil
		s.timerMu.Unlock()
		s.flush(context.Background())
	})
}

// scheduleHighWatermark arms a one-shot flush HighWatermarkFlushDelay from
// now, the accelerated timer spec.md §4.3 calls for once the buffer has
// crossed HighWatermark.
func (s *Sink) scheduleHighWatermark() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.highWatermarkTimer != nil {
		return
	}
	s.highWatermarkTimer = time.AfterFunc(s.cfg.HighWatermarkFlushDelay, func() {
		s.timerMu.Lock()
		s.highWatermarkTimer = nil
		s.timerMu.Unlock()
		s.flush(context.Background())
	})
}

// rescheduleRetry re-arms the backoff-driven timer to the earliest
// currently-buffered next_retry_at, or disarms it if nothing is pending
// retry. Called after every flush attempt.
func (s *Sink) rescheduleRetry() {
	s.mu.Lock()
	at, ok := s.buf.EarliestRetry()
	s.mu.Unlock()

	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	if !ok {
		return
	}
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	s.retryTimer = time.AfterFunc(delay, func() {
		s.flush(context.Background())
	})
}

func (s *Sink) DroppedCount() int64 { return s.dropped.Load() }

// Start launches the background flush loop.
func (s *Sink) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop signals the loop to drain everything it can and returns once it
// has exited.
func (s *Sink) Stop(ctx context.Context) {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	close(s.stopChan)
	s.wg.Wait()

	s.timerMu.Lock()
	for _, tm := range [...]*time.Timer{s.debounceTimer, s.highWatermarkTimer, s.retryTimer} {
		if tm != nil {
			tm.Stop()
		}
	}
	s.timerMu.Unlock()
}

func (s *Sink) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush(ctx)
		case <-s.stopChan:
			s.drainOnShutdown(ctx)
			return
		}
	}
}

// drainOnShutdown keeps flushing until the buffer is empty or a flush
// makes no further progress, so shutdown never hangs on a warehouse that
// is down.
func (s *Sink) drainOnShutdown(ctx context.Context) {
	for {
		s.mu.Lock()
		remaining := s.buf.Len()
		s.mu.Unlock()
		if remaining == 0 {
			return
		}
		progressed := s.flush(ctx)
		if !progressed {
			s.log.Warn("telemetry sink shutdown drain stalled, rows remain buffered", zap.Int("remaining", remaining))
			return
		}
	}
}

// flush runs a single batch through the warehouse. It returns whether any
// row left the buffer permanently (committed or dropped past the failure
// ceiling) so shutdown drain can detect a stalled warehouse and stop
// looping.
func (s *Sink) flush(ctx context.Context) bool {
	if !s.flushing.CompareAndSwap(false, true) {
		return false
	}
	defer s.flushing.Store(false)
	defer s.rescheduleRetry()

	now := time.Now()
	s.mu.Lock()
	batch := s.buf.TakeReadyBatch(now, s.cfg.MaxBatchRows, s.cfg.MaxBatchBytes)
	s.mu.Unlock()
	if len(batch) == 0 {
		return false
	}

	rows := make([]monitor.TelemetryRow, len(batch))
	for i, e := range batch {
		rows[i] = e.row
	}

	outcome := s.warehouse.Insert(ctx, s.table, rows)
	return s.handleOutcome(now, batch, outcome)
}

func (s *Sink) handleOutcome(now time.Time, batch []*entry, outcome monitorwarehouse.InsertOutcome) bool {
	progressed := false

	if outcome.Err != nil {
		s.log.Warn("telemetry batch insert failed, retrying with backoff", zap.Int("rows", len(batch)), zap.Error(outcome.Err))
		for _, e := range batch {
			if s.markFailureAndMaybeDrop(e, now, outcome.Err.Error()) {
				progressed = true
			}
		}
		s.requeue(batch)
		return progressed
	}

	failed := map[int]bool{}
	for _, i := range outcome.FailedIndices {
		failed[i] = true
	}

	var retry []*entry
	for i, e := range batch {
		if failed[i] {
			if s.markFailureAndMaybeDrop(e, now, "partial batch failure") {
				progressed = true
			}
			if e.failure != nil {
				retry = append(retry, e)
			}
			continue
		}
		progressed = true // committed
	}
	s.requeue(retry)
	return progressed
}

// markFailureAndMaybeDrop updates e's FailureMeta and reports whether e
// should be permanently dropped (reported as "progress" since it leaves
// the buffer for good either way).
func (s *Sink) markFailureAndMaybeDrop(e *entry, now time.Time, errMsg string) bool {
	if e.failure == nil {
		e.failure = &monitor.FailureMeta{FirstFailedAt: now}
	}
	e.failure.FailureCount++
	e.failure.LastErrorMsg = errMsg
	e.failure.NextRetryAt = now.Add(backoffFor(e.failure.FailureCount, s.cfg.BackoffInitial, s.cfg.BackoffMax))

	if e.failure.FailureCount >= s.cfg.MaxFailuresBeforeDrop || now.Sub(e.failure.FirstFailedAt) >= s.cfg.FailureTimeout {
		s.dropped.Add(1)
		s.log.Error("telemetry row exceeded retry ceiling, dropping",
			zap.String("row_id", e.row.ID), zap.Int("failures", e.failure.FailureCount), zap.String("last_error", errMsg))
		e.failure = nil // signal to caller: do not requeue
		return true
	}
	return false
}

func (s *Sink) requeue(entries []*entry) {
	var live []*entry
	for _, e := range entries {
		if e.failure != nil {
			live = append(live, e)
		}
	}
	if len(live) == 0 {
		return
	}
	s.mu.Lock()
	s.buf.RequeueFront(live)
	s.mu.Unlock()
}

// backoffFor implements min(BACKOFF_INITIAL * 2^(n-1), BACKOFF_MAX).
func backoffFor(failureCount int, initial, max time.Duration) time.Duration {
	if failureCount < 1 {
		failureCount = 1
	}
	d := initial
	for i := 1; i < failureCount; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
