package monitorprobe

import (
	"time"

	"pulsewatch/pkg/monitor"
)

// CertChanged reports whether a freshly captured certificate snapshot
// differs from the previously stored one in a way that should trigger
// TriggerSslAlert (spec.md's Domain Model supplement): a fingerprint
// change, or a newly-missing certificate on a target that previously had
// one (e.g. a downgrade to plain HTTP). A first-ever sighting is never an
// alert on its own.
func CertChanged(previous, current *monitor.SSLCertSnapshot) bool {
	if previous == nil {
		return false
	}
	if current == nil {
		return true
	}
	return previous.FingerprintSHA256 != current.FingerprintSHA256
}

// CertNeedsRefresh reports whether enough time has passed since the last
// check to re-fetch the certificate, independent of the normal probe
// cadence (the SECURITY_METADATA_TTL_MS knob in spec.md §6).
func CertNeedsRefresh(lastCheckedAt time.Time, ttl time.Duration, now time.Time) bool {
	if lastCheckedAt.IsZero() {
		return true
	}
	return now.Sub(lastCheckedAt) >= ttl
}
