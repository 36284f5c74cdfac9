package monitorwarehouse

import (
	"context"
	"sync"

	"pulsewatch/pkg/monitor"
)

// MemoryWarehouse is a scriptable fake for exercising Sink A's
// partial-failure and backoff handling without a live ClickHouse instance
// (spec.md §9 Design Notes: sinks should be testable against a fake
// warehouse that can script PartialFailure/Error responses).
type MemoryWarehouse struct {
	mu sync.Mutex

	// Script, if set, is consumed one outcome per Insert call; once
	// exhausted, Insert always succeeds.
	Script []InsertOutcome

	Rows []monitor.TelemetryRow
}

func NewMemoryWarehouse() *MemoryWarehouse { return &MemoryWarehouse{} }

func (w *MemoryWarehouse) Insert(ctx context.Context, table string, rows []monitor.TelemetryRow) InsertOutcome {
	w.mu.Lock()
	defer w.mu.Unlock()

	var outcome InsertOutcome
	if len(w.Script) > 0 {
		outcome, w.Script = w.Script[0], w.Script[1:]
	}
	if outcome.Err != nil {
		return outcome
	}

	failed := map[int]bool{}
	for _, i := range outcome.FailedIndices {
		failed[i] = true
	}
	for i, row := range rows {
		if !failed[i] {
			w.Rows = append(w.Rows, row)
		}
	}
	return outcome
}

func (w *MemoryWarehouse) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	return nil, nil
}

func (w *MemoryWarehouse) CommittedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.Rows)
}
