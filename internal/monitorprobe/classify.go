// Package monitorprobe implements the probe engine: one HTTP(S), TCP, or
// UDP attempt against one target, with staged timing and the
// classification rulebook from spec.md §4.1. It performs no retries (the
// scheduler owns confirmation/retry) and no I/O against the store or
// warehouse.
package monitorprobe

import "pulsewatch/pkg/monitor"

// Classify applies spec.md §4.1's classification rulebook to a final
// response's numeric status code.
func Classify(statusCode int) (monitor.Status, monitor.DetailedStatus) {
	switch {
	case statusCode == monitor.StatusCodeConnectionError:
		return monitor.StatusOffline, monitor.DetailedDown
	case statusCode == monitor.StatusCodeTimeout:
		return monitor.StatusOffline, monitor.DetailedDown
	case statusCode == 401 || statusCode == 403:
		return monitor.StatusOnline, monitor.DetailedUP
	case statusCode >= 200 && statusCode <= 299:
		return monitor.StatusOnline, monitor.DetailedUP
	case statusCode >= 300 && statusCode <= 399:
		return monitor.StatusOnline, monitor.DetailedRedirect
	case statusCode >= 400 && statusCode <= 599:
		return monitor.StatusOffline, monitor.DetailedDown
	default:
		return monitor.StatusOffline, monitor.DetailedDown
	}
}

// rangeRetryStatuses are the statuses that trigger a no-range GET retry
// when the initial attempt used a Range: bytes=0-0 header.
var rangeRetryStatuses = map[int]bool{
	400: true, 403: true, 405: true, 406: true, 416: true, 501: true,
}

// headRetryStatuses are the statuses that, on the no-range retry, trigger
// one further HEAD-only retry. This fallback is one-directional only
// (GET -> HEAD); the source never falls back from HEAD to GET
// (spec.md §9 Open Questions).
var headRetryStatuses = map[int]bool{405: true, 501: true}

func shouldRetryWithoutRange(statusCode int) bool { return rangeRetryStatuses[statusCode] }
func shouldRetryAsHead(statusCode int) bool       { return headRetryStatuses[statusCode] }

// httpsUpgradeErrors is the allow-list of low-level connect/TLS/parse
// errors that trigger a same-request HTTPS upgrade retry when the
// original URL was plain HTTP (spec.md §4.1).
var httpsUpgradeErrors = []string{
	"connection refused",
	"connection reset",
	"no route to host",
	"no such host",
	"i/o timeout",
	"broken pipe",
	"malformed HTTP",
	"EOF",
}

func isHTTPSUpgradeEligible(errMsg string) bool {
	for _, substr := range httpsUpgradeErrors {
		if containsFold(errMsg, substr) {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	hl, nl := len(haystack), len(needle)
	if nl == 0 || nl > hl {
		return nl == 0
	}
	lower := func(b byte) byte {
		if b >= 'A' && b <= 'Z' {
			return b + ('a' - 'A')
		}
		return b
	}
	for i := 0; i+nl <= hl; i++ {
		match := true
		for j := 0; j < nl; j++ {
			if lower(haystack[i+j]) != lower(needle[j]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
