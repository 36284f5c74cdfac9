package telemetry

import (
	"testing"
	"time"

	"pulsewatch/pkg/monitor"
)

func TestBuffer_AdmitReenqueuesAtBackClearingFailure(t *testing.T) {
	b := newBuffer()
	b.Admit(monitor.TelemetryRow{ID: "a"})
	b.Admit(monitor.TelemetryRow{ID: "b"})

	el := b.index["a"]
	el.Value.(*entry).failure = &monitor.FailureMeta{FailureCount: 3}

	b.Admit(monitor.TelemetryRow{ID: "a"}) // re-admit
	if b.Len() != 2 {
		t.Fatalf("expected re-admission not to grow the buffer, got len %d", b.Len())
	}
	if b.index["a"].Value.(*entry).failure != nil {
		t.Fatal("expected re-admission to clear prior failure state")
	}
	batch := b.TakeReadyBatch(time.Now(), 10, 1<<20)
	if len(batch) != 2 || batch[0].row.ID != "b" || batch[1].row.ID != "a" {
		t.Fatalf("expected b then a (a moved to back on re-admit), got %+v", batch)
	}
}

func TestBuffer_DropOldestRemovesFront(t *testing.T) {
	b := newBuffer()
	b.Admit(monitor.TelemetryRow{ID: "a"})
	b.Admit(monitor.TelemetryRow{ID: "b"})
	dropped, ok := b.DropOldest()
	if !ok || dropped.ID != "a" {
		t.Fatalf("expected to drop oldest (a), got %+v ok=%v", dropped, ok)
	}
	if b.Len() != 1 {
		t.Fatalf("expected one row remaining, got %d", b.Len())
	}
}

func TestBuffer_TakeReadyBatchSkipsBackoffWindow(t *testing.T) {
	b := newBuffer()
	b.Admit(monitor.TelemetryRow{ID: "a"})
	now := time.Now()
	b.index["a"].Value.(*entry).failure = &monitor.FailureMeta{NextRetryAt: now.Add(time.Hour)}

	batch := b.TakeReadyBatch(now, 10, 1<<20)
	if len(batch) != 0 {
		t.Fatalf("expected entry still in backoff window to be skipped, got %+v", batch)
	}
	if b.Len() != 1 {
		t.Fatal("expected the skipped entry to remain buffered")
	}
}

func TestBuffer_TakeReadyBatchRespectsMaxRows(t *testing.T) {
	b := newBuffer()
	for i := 0; i < 5; i++ {
		b.Admit(monitor.TelemetryRow{ID: string(rune('a' + i))})
	}
	batch := b.TakeReadyBatch(time.Now(), 3, 1<<20)
	if len(batch) != 3 {
		t.Fatalf("expected batch capped at 3 rows, got %d", len(batch))
	}
	if b.Len() != 2 {
		t.Fatalf("expected 2 rows remaining, got %d", b.Len())
	}
}

func TestBuffer_RequeueFrontPreservesOrder(t *testing.T) {
	b := newBuffer()
	b.Admit(monitor.TelemetryRow{ID: "c"})
	batch := b.TakeReadyBatch(time.Now(), 10, 1<<20) // empties the buffer: [c]
	failedBatch := []*entry{{row: monitor.TelemetryRow{ID: "a"}}, {row: monitor.TelemetryRow{ID: "b"}}}
	b.RequeueFront(failedBatch)
	_ = batch

	got := b.TakeReadyBatch(time.Now(), 10, 1<<20)
	if len(got) != 2 || got[0].row.ID != "a" || got[1].row.ID != "b" {
		t.Fatalf("expected requeued rows a,b at front in order, got %+v", got)
	}
}
