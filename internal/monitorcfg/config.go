// Package monitorcfg holds the scheduler's recognized configuration set
// (spec.md §6): probe cadence, confirmation/backoff windows, batching and
// concurrency knobs, and the two sinks' buffering parameters. Config is a
// plain struct with a Defaults() constructor, the pattern the teacher's
// ecosystem peer 99souls-ariadne uses for engine.Config/engine.Defaults().
package monitorcfg

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full recognized configuration set from spec.md §6.
type Config struct {
	CheckIntervalMinutes int `yaml:"check_interval_minutes"`

	DownConfirmationAttempts int           `yaml:"down_confirmation_attempts"`
	DownConfirmationWindow   time.Duration `yaml:"down_confirmation_window"`
	ImmediateRecheckDelay    time.Duration `yaml:"immediate_recheck_delay"`
	ImmediateRecheckWindow   time.Duration `yaml:"immediate_recheck_window"`
	HistorySampleInterval    time.Duration `yaml:"history_sample_interval"`

	MaxWebsitesPerRun  int `yaml:"max_websites_per_run"`
	MaxCheckQueryPages int `yaml:"max_check_query_pages"`

	BaseTimeout     time.Duration `yaml:"base_timeout"`
	MaxTimeout      time.Duration `yaml:"max_timeout"`
	BodyReadTimeout time.Duration `yaml:"body_read_timeout"`

	ConcurrentBatchDelay time.Duration `yaml:"concurrent_batch_delay"`
	BatchDelay           time.Duration `yaml:"batch_delay"`
	MaxConcurrent        int           `yaml:"max_concurrent"`

	SecurityMetadataTTL  time.Duration `yaml:"security_metadata_ttl"`
	TargetMetadataTTL    time.Duration `yaml:"target_metadata_ttl"`
	TargetMetadataRetry  time.Duration `yaml:"target_metadata_retry"`
	MetadataConcurrency  int           `yaml:"metadata_concurrency"`

	TCPLightCheckTimeout time.Duration `yaml:"tcp_light_check_timeout"`

	UserAgent string `yaml:"user_agent"`

	FunctionTimeout time.Duration `yaml:"function_timeout"`
	SafetyBuffer    time.Duration `yaml:"safety_buffer"`
	MinTimeForNewBatch time.Duration `yaml:"min_time_for_new_batch"`

	LockTTL            time.Duration `yaml:"lock_ttl"`
	LockHeartbeat      time.Duration `yaml:"lock_heartbeat"`

	// Sink A (telemetry buffer)
	MaxBufferSize          int           `yaml:"max_buffer_size"`
	HighWatermark          int           `yaml:"high_watermark"`
	FlushInterval          time.Duration `yaml:"flush_interval"`
	DefaultFlushDelay      time.Duration `yaml:"default_flush_delay"`
	MaxBatchRows           int           `yaml:"max_batch_rows"`
	MaxBatchBytes          int           `yaml:"max_batch_bytes"`
	BackoffInitial         time.Duration `yaml:"backoff_initial"`
	BackoffMax             time.Duration `yaml:"backoff_max"`
	MaxFailuresBeforeDrop  int           `yaml:"max_failures_before_drop"`
	FailureTimeout         time.Duration `yaml:"failure_timeout"`
	HighWatermarkFlushDelay time.Duration `yaml:"high_watermark_flush_delay"`

	// Sink B (mutation batcher)
	MutationFlushInterval time.Duration `yaml:"mutation_flush_interval"`
}

// Defaults returns the values spec.md §6 names explicitly, and reasonable
// values for everything it leaves to "a recognized configuration set".
func Defaults() Config {
	return Config{
		CheckIntervalMinutes: 5,

		DownConfirmationAttempts: 3,
		DownConfirmationWindow:   10 * time.Minute,
		ImmediateRecheckDelay:    30 * time.Second,
		ImmediateRecheckWindow:   2 * time.Minute,
		HistorySampleInterval:    60 * time.Second,

		MaxWebsitesPerRun:  200,
		MaxCheckQueryPages: 5,

		BaseTimeout:     10 * time.Second,
		MaxTimeout:      30 * time.Second,
		BodyReadTimeout: 5 * time.Second,

		ConcurrentBatchDelay: 100 * time.Millisecond,
		BatchDelay:           500 * time.Millisecond,
		MaxConcurrent:        50,

		SecurityMetadataTTL: 24 * time.Hour,
		TargetMetadataTTL:   24 * time.Hour,
		TargetMetadataRetry: 15 * time.Minute,
		MetadataConcurrency: 20,

		TCPLightCheckTimeout: 5 * time.Second,

		UserAgent: "pulsewatch/1.0 (+https://pulsewatch.example/bot)",

		FunctionTimeout:    55 * time.Second,
		SafetyBuffer:       5 * time.Second,
		MinTimeForNewBatch: 3 * time.Second,

		LockTTL:       25 * time.Minute,
		LockHeartbeat: 60 * time.Second,

		MaxBufferSize:           2000,
		HighWatermark:           500,
		FlushInterval:           30 * time.Second,
		DefaultFlushDelay:       2 * time.Second,
		MaxBatchRows:            400,
		MaxBatchBytes:           9 * 1024 * 1024,
		BackoffInitial:          5 * time.Second,
		BackoffMax:              300 * time.Second,
		MaxFailuresBeforeDrop:   10,
		FailureTimeout:          600 * time.Second,
		HighWatermarkFlushDelay: 200 * time.Millisecond,

		MutationFlushInterval: 30 * time.Second,
	}
}

// AdaptiveTimeout implements getAdaptiveTimeout(target): the per-target
// override when positive, else BaseTimeout, clamped to MaxTimeout, halved
// when recheckInProgress is set (spec.md §4.1).
func (c Config) AdaptiveTimeout(override time.Duration, recheckInProgress bool) time.Duration {
	base := c.BaseTimeout
	if override > 0 {
		base = override
	}
	if base > c.MaxTimeout {
		base = c.MaxTimeout
	}
	if recheckInProgress {
		base /= 2
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	return base
}

// OptimalBatchSize implements getOptimalBatchSize(n): a smaller batch
// improves latency predictability for small pages, large pages batch at
// MaxConcurrent to bound memory.
func (c Config) OptimalBatchSize(n int) int {
	if n <= 0 {
		return 0
	}
	if n < c.MaxConcurrent {
		return n
	}
	return c.MaxConcurrent
}

// DynamicConcurrency implements getDynamicConcurrency(n): never probe more
// targets at once than exist, and never exceed MaxConcurrent.
func (c Config) DynamicConcurrency(n int) int {
	if n <= 0 {
		return 0
	}
	if n < c.MaxConcurrent {
		return n
	}
	return c.MaxConcurrent
}

// MaxParallelBatches implements max_parallel_batches = ceil(max_concurrent / 50).
func (c Config) MaxParallelBatches() int {
	if c.MaxConcurrent <= 0 {
		return 1
	}
	n := (c.MaxConcurrent + 49) / 50
	if n < 1 {
		n = 1
	}
	return n
}

// ShouldDisableWebsite implements the auto-disable predicate from
// spec.md §4.2: disable after a long unbroken failure streak, or after the
// target has been down continuously for an extended period.
func (c Config) ShouldDisableWebsite(consecutiveFailures int, firstFailureAt *time.Time, now time.Time) (bool, string) {
	const autoDisableFailureCount = 200
	const autoDisableDowntime = 30 * 24 * time.Hour

	if consecutiveFailures >= autoDisableFailureCount {
		return true, fmt.Sprintf("auto-disabled after %d consecutive failures", consecutiveFailures)
	}
	if firstFailureAt != nil && now.Sub(*firstFailureAt) >= autoDisableDowntime {
		return true, fmt.Sprintf("auto-disabled after %s of continuous downtime", now.Sub(*firstFailureAt).Round(time.Hour))
	}
	return false, ""
}

// Store holds the live Config behind a mutex so the fsnotify-driven hot
// reloader (reload.go) can swap it out while probes and sinks read a
// consistent snapshot mid-tick.
type Store struct {
	mu  sync.RWMutex
	cur Config
}

func NewStore(initial Config) *Store {
	return &Store{cur: initial}
}

func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

func (s *Store) Set(c Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = c
}

// LoadFile reads and parses a YAML config file, starting from Defaults()
// so a partial file only overrides what it mentions.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}
