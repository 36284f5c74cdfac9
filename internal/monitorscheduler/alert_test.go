package monitorscheduler

import (
	"context"
	"testing"

	"pulsewatch/internal/monitoralert"
	"pulsewatch/pkg/monitor"
)

func TestDecideAlert_FlipFiresAndClearsPendingOnSuccess(t *testing.T) {
	port := &fakePort{}
	gate := monitoralert.NewGate(port)
	caches := monitoralert.NewTickCaches()
	settings := monitoralert.Settings{Recipients: []monitoralert.Recipient{{SlackWebhookURL: "https://hooks.example/x"}}}
	target := monitor.Target{ID: "t1"}

	outcome := decideAlert(context.Background(), gate, target, monitor.StatusOnline, monitor.StatusOffline, monitoralert.Counters{ConsecutiveFailures: 3}, settings, caches)

	if outcome.pendingDown {
		t.Fatal("expected no pending-down flag once the alert delivered successfully")
	}
	if port.alertCalls != 1 {
		t.Fatalf("expected gate to invoke the port once, got %d", port.alertCalls)
	}
}

// TestDecideAlert_S6_PendingRetry exercises spec.md's S6: a throttled
// delivery on the transition tick sets the pending-down flag; on the next
// tick, with the same status and the flag set, the gate is re-invoked
// (forceRetry) even though no flip occurred, and a successful delivery
// clears the flag.
func TestDecideAlert_S6_PendingRetry(t *testing.T) {
	port := &fakePort{}
	gate := monitoralert.NewGate(port)
	settings := monitoralert.Settings{Recipients: []monitoralert.Recipient{{SlackWebhookURL: "https://hooks.example/x"}}}
	target := monitor.Target{ID: "t1"}

	throttledCaches := monitoralert.NewTickCaches()
	throttledCaches.Throttled["t1"] = true
	first := decideAlert(context.Background(), gate, target, monitor.StatusOnline, monitor.StatusOffline, monitoralert.Counters{ConsecutiveFailures: 3}, settings, throttledCaches)
	if !first.pendingDown {
		t.Fatal("expected pending-down flag set after a throttled delivery on the flip")
	}
	if port.alertCalls != 0 {
		t.Fatalf("expected throttle to short-circuit before invoking the port, got %d calls", port.alertCalls)
	}

	target.PendingDownAlert = true
	freshCaches := monitoralert.NewTickCaches()
	second := decideAlert(context.Background(), gate, target, monitor.StatusOffline, monitor.StatusOffline, monitoralert.Counters{ConsecutiveFailures: 4}, settings, freshCaches)
	if second.pendingDown {
		t.Fatal("expected pending-down flag cleared once the reconfirmation tick's delivery succeeds")
	}
	if port.alertCalls != 1 {
		t.Fatalf("expected the reconfirmation tick to invoke the port once, got %d", port.alertCalls)
	}
}

func TestDecideAlert_NoFlipNoPendingFlagIsNoop(t *testing.T) {
	port := &fakePort{}
	gate := monitoralert.NewGate(port)
	caches := monitoralert.NewTickCaches()
	settings := monitoralert.Settings{Recipients: []monitoralert.Recipient{{SlackWebhookURL: "https://hooks.example/x"}}}
	target := monitor.Target{ID: "t1"}

	outcome := decideAlert(context.Background(), gate, target, monitor.StatusOnline, monitor.StatusOnline, monitoralert.Counters{ConsecutiveSuccesses: 10}, settings, caches)

	if outcome.pendingDown || outcome.pendingUp {
		t.Fatal("expected no pending flags when status hasn't changed and none were already set")
	}
	if port.alertCalls != 0 {
		t.Fatalf("expected the gate never invoked when nothing qualifies, got %d calls", port.alertCalls)
	}
}
