package monitorscheduler

import (
	"testing"
	"time"

	"pulsewatch/internal/monitorcfg"
	"pulsewatch/pkg/monitor"
)

func transitionTestConfig() monitorcfg.Config {
	cfg := monitorcfg.Defaults()
	cfg.DownConfirmationAttempts = 3
	cfg.DownConfirmationWindow = 10 * time.Minute
	cfg.ImmediateRecheckDelay = 30 * time.Second
	cfg.ImmediateRecheckWindow = 2 * time.Minute
	cfg.CheckIntervalMinutes = 5
	return cfg
}

// TestComputeTransition_S1_FirstFailureHeldOnline exercises spec.md's S1:
// a target's first-ever failure is held online until DownConfirmationAttempts
// is reached, with an accelerated recheck.
func TestComputeTransition_S1_FirstFailureHeldOnline(t *testing.T) {
	now := time.Now()
	cfg := transitionTestConfig()
	target := monitor.Target{
		ConsecutiveFailures: 0,
		LastStatus:          monitor.StatusOnline,
		LastCheckedAt:       now.Add(-5 * time.Minute),
		CheckIntervalMinutes: 5,
	}
	observed := monitor.ProbeResult{Status: monitor.StatusOffline}

	got := computeTransition(target, observed, cfg, now)

	if got.ExternalStatus != monitor.StatusOnline {
		t.Fatalf("expected status held online during confirmation window, got %s", got.ExternalStatus)
	}
	if got.NextFailures != 1 {
		t.Fatalf("expected consecutive_failures=1, got %d", got.NextFailures)
	}
	if got.FirstFailureAt == nil || !got.FirstFailureAt.Equal(now) {
		t.Fatalf("expected first_failure_at=now, got %v", got.FirstFailureAt)
	}
	wantNextCheck := now.Add(30 * time.Second)
	if !got.NextCheckAt.Equal(wantNextCheck) {
		t.Fatalf("expected next_check_at=%v, got %v", wantNextCheck, got.NextCheckAt)
	}
	if !got.IsNewFirstFailure {
		t.Fatal("expected IsNewFirstFailure true")
	}
}

// TestComputeTransition_S2_ConfirmedOffline exercises spec.md's S2: a
// target already at consecutive_failures=2 within the confirmation window
// fails again and crosses DownConfirmationAttempts, flipping external
// status to offline at the standard check interval.
func TestComputeTransition_S2_ConfirmedOffline(t *testing.T) {
	now := time.Now()
	cfg := transitionTestConfig()
	firstFailureAt := now.Add(-4 * time.Minute)
	target := monitor.Target{
		ConsecutiveFailures:  2,
		FirstFailureAt:       &firstFailureAt,
		LastStatus:           monitor.StatusOnline,
		LastCheckedAt:        now.Add(-5 * time.Minute),
		CheckIntervalMinutes: 5,
	}
	observed := monitor.ProbeResult{Status: monitor.StatusOffline, StatusCode: 502}

	got := computeTransition(target, observed, cfg, now)

	if got.ExternalStatus != monitor.StatusOffline {
		t.Fatalf("expected status=offline once confirmed, got %s", got.ExternalStatus)
	}
	if got.NextFailures != 3 {
		t.Fatalf("expected consecutive_failures=3, got %d", got.NextFailures)
	}
	if got.IsNewFirstFailure {
		t.Fatal("expected IsNewFirstFailure false, this is a continuing failure streak")
	}
	wantNextCheck := now.Add(5 * time.Minute)
	if !got.NextCheckAt.Equal(wantNextCheck) {
		t.Fatalf("expected next_check_at at standard interval %v, got %v", wantNextCheck, got.NextCheckAt)
	}
}

func TestComputeTransition_RecoveryResetsCounters(t *testing.T) {
	now := time.Now()
	cfg := transitionTestConfig()
	firstFailureAt := now.Add(-4 * time.Minute)
	target := monitor.Target{
		ConsecutiveFailures:  2,
		FirstFailureAt:       &firstFailureAt,
		LastStatus:           monitor.StatusOffline,
		CheckIntervalMinutes: 5,
	}
	observed := monitor.ProbeResult{Status: monitor.StatusOnline}

	got := computeTransition(target, observed, cfg, now)

	if got.ExternalStatus != monitor.StatusOnline {
		t.Fatalf("expected online, got %s", got.ExternalStatus)
	}
	if got.NextFailures != 0 {
		t.Fatalf("expected consecutive_failures reset to 0, got %d", got.NextFailures)
	}
	if got.FirstFailureAt != nil {
		t.Fatal("expected first_failure_at cleared on recovery")
	}
}
