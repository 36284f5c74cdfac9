package monitorscheduler

import (
	"time"

	"pulsewatch/pkg/monitor"
)

// buildMutation assembles the sparse MutationUpdate for one probed
// target (spec.md §4.2, "Mutation emission"). Check times, status,
// counters, first-failure time and pending-alert flags are written on every
// probe, so freshness never stalls; history, region, metadata and SSL
// fields are only set when they changed, and last_response_time only when
// the target is online.
// emitHistory/historyBucketVal are the already-computed result of
// shouldEmitTelemetry, passed in rather than recomputed so the telemetry
// row and the mutation's history marker always agree on one decision.
func buildMutation(target monitor.Target, observed monitor.ProbeResult, t transition, now time.Time, emitHistory bool, historyBucketVal int64, metadataChanged bool, metadataFailedAt time.Time, reassignedRegion monitor.Region, sslRefreshed bool, alertResult alertOutcome) monitor.MutationUpdate {
	fields := map[string]any{
		"last_checked_at": now,
		"next_check_at":   t.NextCheckAt,
	}

	fields["last_status"] = t.ExternalStatus
	fields["last_status_code"] = observed.StatusCode
	fields["last_error"] = observed.Error
	fields["last_detailed"] = observed.Detailed
	fields["consecutive_failures"] = t.NextFailures
	fields["consecutive_successes"] = t.NextSuccesses
	fields["first_failure_at"] = t.FirstFailureAt

	if t.ExternalStatus == monitor.StatusOnline {
		fields["last_response_time"] = observed.ResponseTime
	}

	if emitHistory {
		fields["last_history_at"] = now
		fields["last_history_bucket"] = historyBucketVal
	}

	if reassignedRegion != "" && reassignedRegion != target.Region {
		fields["region"] = reassignedRegion
	}
	if metadataChanged {
		fields["metadata"] = target.Metadata
		fields["metadata_checked_at"] = now
	}
	if !metadataFailedAt.IsZero() {
		fields["metadata_failed_at"] = metadataFailedAt
	}
	if sslRefreshed {
		fields["ssl_cert"] = observed.SSLCert
		fields["ssl_last_checked_at"] = now
	}

	fields["pending_down_alert"] = alertResult.pendingDown
	fields["pending_up_alert"] = alertResult.pendingUp
	if alertResult.pendingDown || alertResult.pendingUp {
		fields["pending_since"] = now
	} else {
		fields["pending_since"] = (*time.Time)(nil)
	}

	return monitor.MutationUpdate{TargetID: target.ID, Fields: fields}
}

// disableMutation builds the mutation that takes a target out of
// rotation (spec.md §4.2, "Auto-disable").
func disableMutation(target monitor.Target, reason string, now time.Time) monitor.MutationUpdate {
	return monitor.MutationUpdate{
		TargetID: target.ID,
		Fields: map[string]any{
			"disabled":        true,
			"disabled_reason": reason,
			"disabled_at":     &now,
			"last_checked_at": now,
		},
	}
}
