// Package monitorscheduler implements the tick orchestrator (spec.md
// §4.2): per region, acquire the distributed lock, page due targets, fan
// out probes under a concurrency cap, drive the failure/recovery state
// machine, and emit to Sink A and Sink B within a wall-clock time budget.
package monitorscheduler

import (
	"time"

	"pulsewatch/internal/monitorcfg"
	"pulsewatch/pkg/monitor"
)

// transition is the pure outcome of applying one probe observation to a
// target's prior failure/recovery state (spec.md §4.2, "Transition logic
// (per probe)"). It carries no I/O; Scheduler turns it into a
// MutationUpdate and a telemetry decision separately so each half is
// independently testable.
type transition struct {
	ExternalStatus    monitor.Status // what the target's last_status should become
	NextFailures      int
	NextSuccesses     int
	FirstFailureAt    *time.Time // nil once recovered
	NextCheckAt       time.Time
	IsNewFirstFailure bool
}

// computeTransition implements spec.md §4.2's per-probe transition logic.
// now is passed explicitly rather than read from a clock so the function
// is deterministic and directly testable.
func computeTransition(target monitor.Target, observed monitor.ProbeResult, cfg monitorcfg.Config, now time.Time) transition {
	interval := time.Duration(target.CheckIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Duration(cfg.CheckIntervalMinutes) * time.Minute
	}

	if observed.Status != monitor.StatusOffline {
		return transition{
			ExternalStatus: monitor.StatusOnline,
			NextFailures:   0,
			NextSuccesses:  target.ConsecutiveSuccesses + 1,
			FirstFailureAt: nil,
			NextCheckAt:    now.Add(interval),
		}
	}

	isNewFirstFailure := target.ConsecutiveFailures == 0
	firstFailureAt := now
	if !isNewFirstFailure && target.FirstFailureAt != nil {
		firstFailureAt = *target.FirstFailureAt
	}
	nextFailures := target.ConsecutiveFailures + 1

	withinWindow := now.Sub(firstFailureAt) < cfg.DownConfirmationWindow
	confirmed := nextFailures >= cfg.DownConfirmationAttempts

	t := transition{
		NextFailures:      nextFailures,
		NextSuccesses:     0,
		FirstFailureAt:    &firstFailureAt,
		IsNewFirstFailure: isNewFirstFailure,
	}

	if withinWindow && !confirmed {
		t.ExternalStatus = monitor.StatusOnline
		t.NextCheckAt = now.Add(cfg.ImmediateRecheckDelay)
		return t
	}

	t.ExternalStatus = monitor.StatusOffline
	if isNewFirstFailure && now.Sub(target.LastCheckedAt) >= cfg.ImmediateRecheckWindow {
		t.NextCheckAt = now.Add(cfg.ImmediateRecheckDelay)
	} else {
		t.NextCheckAt = now.Add(interval)
	}
	return t
}

// historyBucket computes the history sample bucket from epoch
// milliseconds, per spec.md §9's resolved open question: the bucket is
// not assumed to land on a 60s wall-clock boundary, it is simply
// now_ms / interval_ms.
func historyBucket(now time.Time, interval time.Duration) int64 {
	if interval <= 0 {
		return 0
	}
	return now.UnixMilli() / interval.Milliseconds()
}

// shouldEmitTelemetry implements spec.md §4.2's telemetry sampling rule.
// rawStatus is the probe's own (unheld) classification: telemetry always
// reflects what was actually observed, independent of whether the
// confirmation window is holding the externally-reported status.
func shouldEmitTelemetry(target monitor.Target, rawStatus monitor.Status, cfg monitorcfg.Config, now time.Time) (bool, int64) {
	bucket := historyBucket(now, cfg.HistorySampleInterval)
	if target.LastStatus != rawStatus {
		return true, bucket
	}
	if rawStatus == monitor.StatusOnline && bucket > target.LastHistoryBucket {
		return true, bucket
	}
	return false, bucket
}
