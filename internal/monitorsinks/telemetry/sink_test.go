package telemetry

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"pulsewatch/internal/monitorcfg"
	"pulsewatch/internal/monitorwarehouse"
	"pulsewatch/pkg/monitor"
)

func testConfig() monitorcfg.Config {
	c := monitorcfg.Defaults()
	c.MaxBufferSize = 5
	c.HighWatermark = 3
	c.FlushInterval = time.Hour // tests drive flushes explicitly
	c.MaxBatchRows = 10
	c.BackoffInitial = time.Millisecond
	c.BackoffMax = 10 * time.Millisecond
	c.MaxFailuresBeforeDrop = 3
	c.FailureTimeout = time.Hour
	return c
}

func TestSink_FlushCommitsAllOnSuccess(t *testing.T) {
	wh := monitorwarehouse.NewMemoryWarehouse()
	s := NewSink(testConfig(), wh, "telemetry", zap.NewNop())
	s.Admit(monitor.TelemetryRow{ID: "a"})
	s.Admit(monitor.TelemetryRow{ID: "b"})

	s.flush(context.Background())

	if wh.CommittedCount() != 2 {
		t.Fatalf("expected both rows committed, got %d", wh.CommittedCount())
	}
	s.mu.Lock()
	remaining := s.buf.Len()
	s.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected buffer drained after successful flush, got %d remaining", remaining)
	}
}

func TestSink_PartialFailureRequeuesOnlyFailedRows(t *testing.T) {
	wh := monitorwarehouse.NewMemoryWarehouse()
	wh.Script = []monitorwarehouse.InsertOutcome{{FailedIndices: []int{1}}}
	s := NewSink(testConfig(), wh, "telemetry", zap.NewNop())
	s.Admit(monitor.TelemetryRow{ID: "a"})
	s.Admit(monitor.TelemetryRow{ID: "b"})

	s.flush(context.Background())

	if wh.CommittedCount() != 1 {
		t.Fatalf("expected one row committed, got %d", wh.CommittedCount())
	}
	s.mu.Lock()
	_, stillBuffered := s.buf.index["b"]
	s.mu.Unlock()
	if !stillBuffered {
		t.Fatal("expected failed row b to be requeued")
	}
}

func TestSink_DropsRowAfterExceedingFailureCeiling(t *testing.T) {
	wh := monitorwarehouse.NewMemoryWarehouse()
	cfg := testConfig()
	cfg.MaxFailuresBeforeDrop = 2
	s := NewSink(cfg, wh, "telemetry", zap.NewNop())
	s.Admit(monitor.TelemetryRow{ID: "a"})

	wh.Script = []monitorwarehouse.InsertOutcome{{FailedIndices: []int{0}}}
	s.flush(context.Background())
	time.Sleep(2 * time.Millisecond) // clear backoff window so the retry is eligible again

	wh.Script = []monitorwarehouse.InsertOutcome{{FailedIndices: []int{0}}}
	s.flush(context.Background())

	s.mu.Lock()
	_, stillBuffered := s.buf.index["a"]
	s.mu.Unlock()
	if stillBuffered {
		t.Fatal("expected row to be dropped after exceeding MaxFailuresBeforeDrop")
	}
	if s.DroppedCount() != 1 {
		t.Fatalf("expected dropped count 1, got %d", s.DroppedCount())
	}
}

func TestSink_AdmitDropsOldestWhenOverCapacity(t *testing.T) {
	wh := monitorwarehouse.NewMemoryWarehouse()
	cfg := testConfig()
	cfg.MaxBufferSize = 2
	cfg.HighWatermark = 100 // avoid triggering async flush in this test
	s := NewSink(cfg, wh, "telemetry", zap.NewNop())
	s.Admit(monitor.TelemetryRow{ID: "a"})
	s.Admit(monitor.TelemetryRow{ID: "b"})
	s.Admit(monitor.TelemetryRow{ID: "c"})

	s.mu.Lock()
	_, hasA := s.buf.index["a"]
	length := s.buf.Len()
	s.mu.Unlock()
	if hasA {
		t.Fatal("expected oldest row a to be dropped once over capacity")
	}
	if length != 2 {
		t.Fatalf("expected buffer capped at 2, got %d", length)
	}
	if s.DroppedCount() != 1 {
		t.Fatalf("expected dropped count 1, got %d", s.DroppedCount())
	}
}

func TestSink_StartStopDrainsOnShutdown(t *testing.T) {
	wh := monitorwarehouse.NewMemoryWarehouse()
	s := NewSink(testConfig(), wh, "telemetry", zap.NewNop())
	s.Admit(monitor.TelemetryRow{ID: "a"})
	s.Admit(monitor.TelemetryRow{ID: "b"})

	s.Start(context.Background())
	s.Stop(context.Background())

	if wh.CommittedCount() != 2 {
		t.Fatalf("expected shutdown to drain the buffer, got %d committed", wh.CommittedCount())
	}
}
