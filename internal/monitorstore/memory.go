package monitorstore

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"pulsewatch/pkg/monitor"
)

// MemoryStore is an in-process Store used by tests and by the
// out-of-the-box single-instance scheduler config. It reflects
// MutationUpdate field names the same way PostgresStore's applyFieldsSQL
// table does, so callers can share fixtures between backends.
type MemoryStore struct {
	mu      sync.Mutex
	targets map[string]monitor.Target
}

func NewMemoryStore(seed []monitor.Target) *MemoryStore {
	m := &MemoryStore{targets: make(map[string]monitor.Target, len(seed))}
	for _, t := range seed {
		m.targets[t.ID] = t
	}
	return m
}

func (m *MemoryStore) PageDue(ctx context.Context, region monitor.Region, cursor string, limit int, now int64) ([]monitor.Target, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []monitor.Target
	for _, t := range m.targets {
		if t.Disabled || t.Region != region {
			continue
		}
		if t.NextCheckAt.Unix() > now {
			continue
		}
		due = append(due, t)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].OrderingIndex < due[j].OrderingIndex })

	afterIndex := 0
	if cursor != "" {
		afterIndex, _ = strconv.Atoi(cursor)
	}
	var filtered []monitor.Target
	for _, t := range due {
		if cursor == "" || t.OrderingIndex > afterIndex {
			filtered = append(filtered, t)
		}
	}

	if len(filtered) > limit {
		next := strconv.Itoa(filtered[limit-1].OrderingIndex)
		return append([]monitor.Target{}, filtered[:limit]...), next, nil
	}
	return append([]monitor.Target{}, filtered...), "", nil
}

func (m *MemoryStore) ApplyUpdates(ctx context.Context, updates []monitor.MutationUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range updates {
		t, ok := m.targets[u.TargetID]
		if !ok {
			continue
		}
		applyFieldsToTarget(&t, u.Fields)
		m.targets[u.TargetID] = t
	}
	return nil
}

// Get is a test-only accessor for asserting post-mutation state.
func (m *MemoryStore) Get(id string) (monitor.Target, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	return t, ok
}

func applyFieldsToTarget(t *monitor.Target, fields map[string]any) {
	for name, v := range fields {
		switch name {
		case "last_status":
			t.LastStatus, _ = v.(monitor.Status)
		case "last_status_code":
			t.LastStatusCode, _ = v.(int)
		case "last_response_time":
			t.LastResponseTime, _ = v.(time.Duration)
		case "last_error":
			t.LastError, _ = v.(string)
		case "last_detailed":
			t.LastDetailed, _ = v.(monitor.DetailedStatus)
		case "consecutive_failures":
			t.ConsecutiveFailures, _ = v.(int)
		case "consecutive_successes":
			t.ConsecutiveSuccesses, _ = v.(int)
		case "first_failure_at":
			t.FirstFailureAt, _ = v.(*time.Time)
		case "last_checked_at":
			if tm, ok := v.(time.Time); ok {
				t.LastCheckedAt = tm
			}
		case "next_check_at":
			if tm, ok := v.(time.Time); ok {
				t.NextCheckAt = tm
			}
		case "last_history_at":
			if tm, ok := v.(time.Time); ok {
				t.LastHistoryAt = tm
			}
		case "last_history_bucket":
			t.LastHistoryBucket, _ = v.(int64)
		case "disabled":
			t.Disabled, _ = v.(bool)
		case "disabled_reason":
			t.DisabledReason, _ = v.(string)
		case "disabled_at":
			t.DisabledAt, _ = v.(*time.Time)
		case "pending_down_alert":
			t.PendingDownAlert, _ = v.(bool)
		case "pending_up_alert":
			t.PendingUpAlert, _ = v.(bool)
		case "pending_since":
			t.PendingSince, _ = v.(*time.Time)
		case "metadata_checked_at":
			if tm, ok := v.(time.Time); ok {
				t.MetadataLastCheckedAt = tm
			}
		case "metadata_failed_at":
			if tm, ok := v.(time.Time); ok {
				t.MetadataLastFailedAt = tm
			}
		case "ssl_last_checked_at":
			if tm, ok := v.(time.Time); ok {
				t.SSLLastCheckedAt = tm
			}
		case "region":
			t.Region, _ = v.(monitor.Region)
		case "metadata":
			t.Metadata, _ = v.(monitor.TargetMetadata)
		case "ssl_cert":
			t.SSLCert, _ = v.(*monitor.SSLCertSnapshot)
		}
	}
}
