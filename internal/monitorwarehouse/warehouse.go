// Package monitorwarehouse implements the warehouse port (spec.md §6):
// Sink A's only downstream, a columnar store for telemetry rows. Inserts
// report a row-level PartialFailure rather than all-or-nothing, since one
// malformed row in a batch must not sink the rest.
package monitorwarehouse

import (
	"context"

	"pulsewatch/pkg/monitor"
)

// InsertOutcome is the result of one Insert call.
type InsertOutcome struct {
	// FailedIndices holds the positions within rows that were rejected;
	// empty means every row committed.
	FailedIndices []int
	// Err is non-nil only for a whole-batch failure (e.g. the warehouse
	// was unreachable); FailedIndices is meaningless in that case since
	// nothing committed.
	Err error
}

func (o InsertOutcome) AllFailed(total int) bool {
	return o.Err != nil || len(o.FailedIndices) == total
}

// Warehouse is the port Sink A depends on.
type Warehouse interface {
	Insert(ctx context.Context, table string, rows []monitor.TelemetryRow) InsertOutcome
	Query(ctx context.Context, query string, args ...any) ([]map[string]any, error)
}
