package monitorprobe

import (
	"testing"

	"pulsewatch/pkg/monitor"
)

func TestClassify_ConnectionErrorAndTimeoutAreDown(t *testing.T) {
	status, detailed := Classify(monitor.StatusCodeConnectionError)
	if status != monitor.StatusOffline || detailed != monitor.DetailedDown {
		t.Fatalf("connection error should classify as offline/down, got %s/%s", status, detailed)
	}
	status, detailed = Classify(monitor.StatusCodeTimeout)
	if status != monitor.StatusOffline || detailed != monitor.DetailedDown {
		t.Fatalf("timeout should classify as offline/down, got %s/%s", status, detailed)
	}
}

func TestClassify_401And403AreUP(t *testing.T) {
	for _, code := range []int{401, 403} {
		status, detailed := Classify(code)
		if status != monitor.StatusOnline || detailed != monitor.DetailedUP {
			t.Fatalf("status %d should classify as online/UP, got %s/%s", code, status, detailed)
		}
	}
}

func TestClassify_2xxIsUP(t *testing.T) {
	status, detailed := Classify(204)
	if status != monitor.StatusOnline || detailed != monitor.DetailedUP {
		t.Fatalf("2xx should classify as online/UP, got %s/%s", status, detailed)
	}
}

func TestClassify_3xxIsRedirectButOnline(t *testing.T) {
	status, detailed := Classify(301)
	if status != monitor.StatusOnline || detailed != monitor.DetailedRedirect {
		t.Fatalf("3xx should classify as online/REDIRECT, got %s/%s", status, detailed)
	}
}

func TestClassify_4xxAnd5xxAreDown(t *testing.T) {
	for _, code := range []int{404, 500, 503} {
		status, detailed := Classify(code)
		if status != monitor.StatusOffline || detailed != monitor.DetailedDown {
			t.Fatalf("status %d should classify as offline/down, got %s/%s", code, status, detailed)
		}
	}
}

func TestShouldRetryWithoutRange_MatchesTable(t *testing.T) {
	if !shouldRetryWithoutRange(416) {
		t.Fatal("416 should trigger a no-range retry")
	}
	if shouldRetryWithoutRange(200) {
		t.Fatal("200 should not trigger a no-range retry")
	}
}

func TestShouldRetryAsHead_OnlyOnNarrowSet(t *testing.T) {
	if !shouldRetryAsHead(405) {
		t.Fatal("405 should trigger a HEAD retry")
	}
	if shouldRetryAsHead(416) {
		t.Fatal("416 should not trigger a HEAD retry")
	}
}

func TestIsHTTPSUpgradeEligible_MatchesKnownErrors(t *testing.T) {
	if !isHTTPSUpgradeEligible("dial tcp: connection refused") {
		t.Fatal("connection refused should be HTTPS-upgrade eligible")
	}
	if isHTTPSUpgradeEligible("context deadline exceeded while reading body") {
		t.Fatal("an unrelated message should not be HTTPS-upgrade eligible")
	}
}
