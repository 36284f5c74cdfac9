package monitorscheduler

import (
	"fmt"
	"sync/atomic"
	"time"

	"pulsewatch/pkg/monitor"
)

// rowTiebreaker is a process-wide monotonic counter appended to telemetry
// row ids so two rows for the same target in the same millisecond never
// collide (spec.md §3, TelemetryRow: "target id + millisecond timestamp +
// monotonic tiebreaker").
var rowTiebreaker atomic.Uint64

func nextTelemetryRowID(targetID string, now time.Time) string {
	seq := rowTiebreaker.Add(1)
	return fmt.Sprintf("%s-%d-%d", targetID, now.UnixMilli(), seq)
}

func buildTelemetryRow(target monitor.Target, observed monitor.ProbeResult, now time.Time) monitor.TelemetryRow {
	return monitor.TelemetryRow{
		ID:           nextTelemetryRowID(target.ID, now),
		TargetID:     target.ID,
		UserID:       target.UserID,
		Timestamp:    now,
		Status:       observed.Status,
		StatusCode:   observed.StatusCode,
		ResponseTime: observed.ResponseTime,
		Error:        observed.Error,
		Stages:       observed.Stages,
		Metadata:     target.Metadata,
		Edge:         observed.Edge,
	}
}
