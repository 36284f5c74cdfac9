package monitorprobe

import (
	"testing"
	"time"

	"pulsewatch/pkg/monitor"
)

func TestCertChanged_FirstSightingNeverAlerts(t *testing.T) {
	current := &monitor.SSLCertSnapshot{FingerprintSHA256: "abc"}
	if CertChanged(nil, current) {
		t.Fatal("a first-ever certificate sighting should not be a change")
	}
}

func TestCertChanged_FingerprintDiffTriggers(t *testing.T) {
	prev := &monitor.SSLCertSnapshot{FingerprintSHA256: "abc"}
	cur := &monitor.SSLCertSnapshot{FingerprintSHA256: "def"}
	if !CertChanged(prev, cur) {
		t.Fatal("a fingerprint change should be reported as changed")
	}
}

func TestCertChanged_DowngradeToNoCertTriggers(t *testing.T) {
	prev := &monitor.SSLCertSnapshot{FingerprintSHA256: "abc"}
	if !CertChanged(prev, nil) {
		t.Fatal("losing a previously-seen certificate should be reported as changed")
	}
}

func TestCertNeedsRefresh_ZeroTimeAlwaysNeedsRefresh(t *testing.T) {
	if !CertNeedsRefresh(time.Time{}, 24*time.Hour, time.Now()) {
		t.Fatal("a never-checked target should need a refresh")
	}
}

func TestCertNeedsRefresh_FreshWithinTTL(t *testing.T) {
	now := time.Now()
	if CertNeedsRefresh(now.Add(-1*time.Hour), 24*time.Hour, now) {
		t.Fatal("a recently-checked target within TTL should not need a refresh")
	}
}
