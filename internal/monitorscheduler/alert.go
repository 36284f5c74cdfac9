package monitorscheduler

import (
	"context"
	"sync"

	"pulsewatch/internal/monitoralert"
	"pulsewatch/pkg/monitor"
)

// AlertSettingsProvider resolves a target's alerting configuration. The
// real lookup (user tier, subscription, recipient list) is an external
// collaborator out of this repo's scope (spec.md §1); this interface is
// the seam the scheduler depends on instead of a concrete store.
type AlertSettingsProvider interface {
	SettingsFor(target monitor.Target) monitoralert.Settings
}

// StaticAlertSettings is a simple in-memory AlertSettingsProvider keyed by
// user id, suitable for the out-of-the-box single-instance deployment and
// for tests.
type StaticAlertSettings struct {
	mu       sync.RWMutex
	byUserID map[string]monitoralert.Settings
	fallback monitoralert.Settings
}

func NewStaticAlertSettings(fallback monitoralert.Settings) *StaticAlertSettings {
	return &StaticAlertSettings{byUserID: make(map[string]monitoralert.Settings), fallback: fallback}
}

func (s *StaticAlertSettings) Set(userID string, settings monitoralert.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUserID[userID] = settings
}

func (s *StaticAlertSettings) SettingsFor(target monitor.Target) monitoralert.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if settings, ok := s.byUserID[target.UserID]; ok {
		return settings
	}
	return s.fallback
}

// alertOutcome is the pending-flag state the mutation must persist after
// the gate has had a chance to run (spec.md §4.5).
type alertOutcome struct {
	pendingDown bool
	pendingUp   bool
}

// decideAlert implements spec.md §4.5's pending-retry contract:
//   - On a genuine status flip, pending flags are cleared first, then the
//     gate fires; a retryable failure re-sets the flag for the new side.
//   - If no flip occurred but a pending flag from a prior tick is set,
//     the gate is re-invoked (forceRetry) for that side only, since the
//     probe reconfirmed the same status (spec.md S6).
func decideAlert(ctx context.Context, gate *monitoralert.Gate, target monitor.Target, prevStatus, nextStatus monitor.Status, counters monitoralert.Counters, settings monitoralert.Settings, caches *monitoralert.TickCaches) alertOutcome {
	if prevStatus != nextStatus {
		res := gate.Evaluate(ctx, target, prevStatus, nextStatus, counters, settings, caches, false)
		return outcomeFromResult(nextStatus, res)
	}

	if nextStatus == monitor.StatusOffline && target.PendingDownAlert {
		res := gate.Evaluate(ctx, target, prevStatus, nextStatus, counters, settings, caches, true)
		return alertOutcome{pendingDown: !res.Delivered && res.Reason.Retryable()}
	}
	if nextStatus == monitor.StatusOnline && target.PendingUpAlert {
		res := gate.Evaluate(ctx, target, prevStatus, nextStatus, counters, settings, caches, true)
		return alertOutcome{pendingUp: !res.Delivered && res.Reason.Retryable()}
	}

	return alertOutcome{pendingDown: target.PendingDownAlert, pendingUp: target.PendingUpAlert}
}

func outcomeFromResult(nextStatus monitor.Status, res monitoralert.Result) alertOutcome {
	retry := !res.Delivered && res.Reason.Retryable()
	if nextStatus == monitor.StatusOffline {
		return alertOutcome{pendingDown: retry}
	}
	return alertOutcome{pendingUp: retry}
}
