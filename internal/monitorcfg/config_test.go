package monitorcfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults_MatchesSpecNumbers(t *testing.T) {
	c := Defaults()
	if c.MaxBufferSize != 2000 || c.HighWatermark != 500 {
		t.Fatalf("sink A capacity defaults drifted from spec.md §6: %+v", c)
	}
	if c.FlushInterval != 30*time.Second || c.DefaultFlushDelay != 2*time.Second {
		t.Fatalf("sink A timer defaults drifted from spec.md §6: %+v", c)
	}
	if c.MaxBatchRows != 400 || c.MaxBatchBytes != 9*1024*1024 {
		t.Fatalf("sink A batch-size defaults drifted from spec.md §6: %+v", c)
	}
	if c.BackoffInitial != 5*time.Second || c.BackoffMax != 300*time.Second {
		t.Fatalf("sink A backoff defaults drifted from spec.md §6: %+v", c)
	}
	if c.MaxFailuresBeforeDrop != 10 || c.FailureTimeout != 600*time.Second {
		t.Fatalf("sink A drop-policy defaults drifted from spec.md §6: %+v", c)
	}
}

func TestAdaptiveTimeout_HalvesWhenRechecking(t *testing.T) {
	c := Defaults()
	full := c.AdaptiveTimeout(0, false)
	half := c.AdaptiveTimeout(0, true)
	if half != full/2 {
		t.Fatalf("expected recheck timeout to halve base timeout: full=%s half=%s", full, half)
	}
}

func TestAdaptiveTimeout_ClampsToCeiling(t *testing.T) {
	c := Defaults()
	got := c.AdaptiveTimeout(time.Hour, false)
	if got != c.MaxTimeout {
		t.Fatalf("expected override clamped to ceiling %s, got %s", c.MaxTimeout, got)
	}
}

func TestShouldDisableWebsite_FailureCountThreshold(t *testing.T) {
	c := Defaults()
	disable, reason := c.ShouldDisableWebsite(200, nil, time.Now())
	if !disable || reason == "" {
		t.Fatalf("expected auto-disable at 200 consecutive failures")
	}
	disable, _ = c.ShouldDisableWebsite(199, nil, time.Now())
	if disable {
		t.Fatalf("did not expect auto-disable at 199 consecutive failures")
	}
}

func TestLoadFile_PartialOverrideKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("max_buffer_size: 42\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxBufferSize != 42 {
		t.Fatalf("expected override to apply, got %d", cfg.MaxBufferSize)
	}
	if cfg.HighWatermark != Defaults().HighWatermark {
		t.Fatalf("expected unmentioned field to keep its default")
	}
}
