// Package monitoralert implements the alert gate (spec.md §4.5): given a
// status transition, a settings bundle, and per-tick throttle/budget
// caches, decide whether to fire an alert through an injected Port, and
// which of the pending-retry idempotence flags the scheduler should hold
// afterward. The gate itself never talks to a delivery backend; Port is
// the seam (see slack.go for the one concrete backend this repo wires).
package monitoralert

import (
	"context"
	"fmt"

	"pulsewatch/internal/monitormetrics"
	"pulsewatch/pkg/monitor"
)

// Reason is the gate's non-delivery (or delivery) explanation, returned
// alongside Result.Delivered.
type Reason string

const (
	ReasonNone             Reason = "none"
	ReasonFlap             Reason = "flap"
	ReasonSettings         Reason = "settings"
	ReasonMissingRecipient Reason = "missingRecipient"
	ReasonThrottle         Reason = "throttle"
	ReasonError            Reason = "error"
	ReasonUndefined        Reason = ""
)

// Retryable reports whether the scheduler should set a pending-alert flag
// and retry on the next tick that confirms the same status (spec.md
// §4.5: "On delivered=false and reason in {flap, error, throttle}").
func (r Reason) Retryable() bool {
	return r == ReasonFlap || r == ReasonError || r == ReasonThrottle
}

// Result is the gate's verdict for one evaluation.
type Result struct {
	Delivered bool
	Reason    Reason
}

// Recipient is one alert destination. Exactly one of its fields is
// expected to be populated; which backends actually exist is a Port
// concern, not the gate's.
type Recipient struct {
	Email           string
	SlackWebhookURL string
	SMSNumber       string
}

// Settings is the per-user/per-target alerting configuration the gate
// consults. A zero Settings (no recipients) always yields
// ReasonMissingRecipient on a transition that would otherwise fire.
type Settings struct {
	MinConsecutiveEvents int
	Recipients           []Recipient
	HourlyBudget         int
	MonthlyBudget        int
}

// Counters carries the transition-relevant tallies the gate needs to
// enforce MinConsecutiveEvents; it mirrors monitor.Target's own failure
// counters rather than duplicating them, so callers typically pass
// target.ConsecutiveFailures/ConsecutiveSuccesses directly.
type Counters struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
}

// TickCaches is the set of shared, mutated-by-many-probes state the
// scheduler owns for the duration of one tick: which targets already
// alerted this tick (dedupe against overlapping probes), and the
// per-hour/per-month delivery counts used for budget enforcement.
// Callers must guard concurrent access; Gate.Evaluate takes no lock of
// its own; see Sink-style comments in monitorsinks for the same pattern.
type TickCaches struct {
	Throttled    map[string]bool
	HourlyCount  map[string]int
	MonthlyCount map[string]int
}

// NewTickCaches returns an empty, ready-to-use TickCaches.
func NewTickCaches() *TickCaches {
	return &TickCaches{
		Throttled:    make(map[string]bool),
		HourlyCount:  make(map[string]int),
		MonthlyCount: make(map[string]int),
	}
}

// Port is the external alert-delivery collaborator (spec.md §6, Alert
// port). It is invoked only after the gate has decided a transition
// qualifies and a recipient exists.
type Port interface {
	TriggerAlert(ctx context.Context, target monitor.Target, prev, next monitor.Status, counters Counters, recipients []Recipient) error
	TriggerSslAlert(ctx context.Context, target monitor.Target, cert *monitor.SSLCertSnapshot, recipients []Recipient) error
}

// Gate evaluates transitions against Settings/TickCaches and drives Port.
type Gate struct {
	port Port
}

func NewGate(port Port) *Gate {
	return &Gate{port: port}
}

// Fires reports whether the transition from prev to next is one the gate
// ever considers delivering an alert for (spec.md §4.5): unknown->offline,
// online->offline, offline->online. Never fires on prev==next, and never
// fires on unknown->online (a target's first-ever successful check is not
// a "recovery").
func Fires(prev, next monitor.Status) bool {
	if prev == next {
		return false
	}
	switch {
	case prev == monitor.StatusUnknown && next == monitor.StatusOffline:
		return true
	case prev == monitor.StatusOnline && next == monitor.StatusOffline:
		return true
	case prev == monitor.StatusOffline && next == monitor.StatusOnline:
		return true
	default:
		return false
	}
}

// Evaluate runs the full gate contract for one target's transition and,
// if it qualifies, invokes Port.TriggerAlert. forceRetry should be true
// when the scheduler is re-invoking the gate solely because a pending
// flag is set (spec.md S6), bypassing the Fires() check since prev==next
// in that case.
func (g *Gate) Evaluate(ctx context.Context, target monitor.Target, prev, next monitor.Status, counters Counters, settings Settings, caches *TickCaches, forceRetry bool) Result {
	if !forceRetry && !Fires(prev, next) {
		return Result{Delivered: false, Reason: ReasonNone}
	}

	if !meetsConsecutiveThreshold(next, counters, settings.MinConsecutiveEvents) {
		monitormetrics.RecordAlert(string(ReasonFlap))
		return Result{Delivered: false, Reason: ReasonFlap}
	}

	if len(settings.Recipients) == 0 {
		monitormetrics.RecordAlert(string(ReasonMissingRecipient))
		return Result{Delivered: false, Reason: ReasonMissingRecipient}
	}

	if caches != nil && exceedsBudget(target.ID, settings, caches) {
		monitormetrics.RecordAlert(string(ReasonThrottle))
		return Result{Delivered: false, Reason: ReasonThrottle}
	}

	if err := g.port.TriggerAlert(ctx, target, prev, next, counters, settings.Recipients); err != nil {
		monitormetrics.RecordAlert(string(ReasonError))
		return Result{Delivered: false, Reason: ReasonError}
	}

	if caches != nil {
		recordDelivery(target.ID, caches)
	}
	monitormetrics.RecordAlert("")
	return Result{Delivered: true, Reason: ReasonUndefined}
}

// EvaluateSSL fires TriggerSslAlert unconditionally when called; the
// caller (scheduler) is responsible for deciding the cert actually
// changed via monitorprobe.CertChanged before invoking this.
func (g *Gate) EvaluateSSL(ctx context.Context, target monitor.Target, cert *monitor.SSLCertSnapshot, recipients []Recipient) error {
	if err := g.port.TriggerSslAlert(ctx, target, cert, recipients); err != nil {
		return fmt.Errorf("ssl alert target=%s: %w", target.ID, err)
	}
	return nil
}

// NotifyDisabled delivers an alert for a target leaving rotation via
// auto-disable whenever there is at least one recipient, and does nothing
// otherwise (spec.md §4.2: "The external alert gate is
// notified separately of the disable event"). It bypasses Fires(),
// MinConsecutiveEvents, and throttling entirely — disable is a one-shot,
// operator-facing event, not a flapping status transition.
func (g *Gate) NotifyDisabled(ctx context.Context, target monitor.Target, recipients []Recipient) error {
	if len(recipients) == 0 {
		return nil
	}
	counters := Counters{ConsecutiveFailures: target.ConsecutiveFailures, ConsecutiveSuccesses: target.ConsecutiveSuccesses}
	if err := g.port.TriggerAlert(ctx, target, target.LastStatus, monitor.StatusDisabled, counters, recipients); err != nil {
		return fmt.Errorf("disable alert target=%s: %w", target.ID, err)
	}
	return nil
}

func meetsConsecutiveThreshold(next monitor.Status, counters Counters, min int) bool {
	if min <= 0 {
		return true
	}
	if next == monitor.StatusOffline {
		return counters.ConsecutiveFailures >= min
	}
	return counters.ConsecutiveSuccesses >= min
}

func exceedsBudget(targetID string, settings Settings, caches *TickCaches) bool {
	if caches.Throttled[targetID] {
		return true
	}
	if settings.HourlyBudget > 0 && caches.HourlyCount[targetID] >= settings.HourlyBudget {
		return true
	}
	if settings.MonthlyBudget > 0 && caches.MonthlyCount[targetID] >= settings.MonthlyBudget {
		return true
	}
	return false
}

func recordDelivery(targetID string, caches *TickCaches) {
	caches.Throttled[targetID] = true
	caches.HourlyCount[targetID]++
	caches.MonthlyCount[targetID]++
}
