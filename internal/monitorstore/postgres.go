package monitorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pulsewatch/pkg/monitor"
)

// Postgres reference schema:
//
// CREATE TABLE IF NOT EXISTS targets (
//   id TEXT PRIMARY KEY,
//   user_id TEXT NOT NULL,
//   url TEXT NOT NULL,
//   kind TEXT NOT NULL,
//   region TEXT NOT NULL DEFAULT '',
//   check_interval_minutes INT NOT NULL DEFAULT 5,
//   next_check_at TIMESTAMPTZ NOT NULL,
//   ordering_index BIGINT NOT NULL,
//   disabled BOOLEAN NOT NULL DEFAULT false,
//   ... (remaining columns mirror monitor.Target 1:1)
// );
// CREATE INDEX IF NOT EXISTS idx_targets_due ON targets(region, next_check_at, ordering_index)
//   WHERE NOT disabled;

// PostgresStore is the target store port backed by Postgres. Its
// ApplyUpdates follows the teacher's idempotent-commit shape
// (internal/ratelimiter/persistence/postgres.go): one transaction per
// batch, one guarded UPDATE per target, never a blind overwrite of the
// whole row.
type PostgresStore struct {
	pool           *pgxpool.Pool
	defaultTimeout time.Duration
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, defaultTimeout: 10 * time.Second}
}

func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.defaultTimeout)
}

func (s *PostgresStore) PageDue(ctx context.Context, region monitor.Region, cursor string, limit int, now int64) ([]monitor.Target, string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	afterIndex := int64(math.MinInt64)
	if cursor != "" {
		if _, err := fmt.Sscanf(cursor, "%d", &afterIndex); err != nil {
			return nil, "", fmt.Errorf("parse page cursor %q: %w", cursor, err)
		}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, url, kind, region, check_interval_minutes,
		       consecutive_failures, consecutive_successes,
		       last_status, last_status_code, ordering_index
		FROM targets
		WHERE region = $1 AND NOT disabled AND next_check_at <= to_timestamp($2) AND ordering_index > $3
		ORDER BY ordering_index ASC
		LIMIT $4
	`, string(region), now, afterIndex, limit)
	if err != nil {
		return nil, "", fmt.Errorf("page due targets region=%s: %w", region, err)
	}
	defer rows.Close()

	var out []monitor.Target
	for rows.Next() {
		var t monitor.Target
		var kind, regionStr string
		if err := rows.Scan(&t.ID, &t.UserID, &t.URL, &kind, &regionStr, &t.CheckIntervalMinutes,
			&t.ConsecutiveFailures, &t.ConsecutiveSuccesses, &t.LastStatus, &t.LastStatusCode, &t.OrderingIndex); err != nil {
			return nil, "", fmt.Errorf("scan target row: %w", err)
		}
		t.Kind = monitor.Kind(kind)
		t.Region = monitor.Region(regionStr)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("page due targets region=%s: %w", region, err)
	}

	next := ""
	if len(out) == limit {
		next = fmt.Sprintf("%d", out[len(out)-1].OrderingIndex)
	}
	return out, next, nil
}

// applyFieldsSQL maps MutationUpdate's sparse field names to column
// assignments. Unknown field names are rejected rather than silently
// dropped, so a typo in a caller's Fields map surfaces immediately.
var applyFieldsSQL = map[string]string{
	"last_status":           "last_status",
	"last_status_code":      "last_status_code",
	"last_response_time":    "last_response_time",
	"last_error":            "last_error",
	"last_detailed":         "last_detailed",
	"consecutive_failures":  "consecutive_failures",
	"consecutive_successes": "consecutive_successes",
	"first_failure_at":      "first_failure_at",
	"last_checked_at":       "last_checked_at",
	"next_check_at":         "next_check_at",
	"last_history_at":       "last_history_at",
	"last_history_bucket":   "last_history_bucket",
	"disabled":              "disabled",
	"disabled_reason":       "disabled_reason",
	"disabled_at":           "disabled_at",
	"pending_down_alert":    "pending_down_alert",
	"pending_up_alert":      "pending_up_alert",
	"pending_since":         "pending_since",
	"metadata_checked_at":   "metadata_last_checked_at",
	"metadata_failed_at":    "metadata_last_failed_at",
	"ssl_last_checked_at":   "ssl_last_checked_at",
	"region":                "region",
	"metadata":              "metadata",
	"ssl_cert":              "ssl_cert",
}

func (s *PostgresStore) ApplyUpdates(ctx context.Context, updates []monitor.MutationUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin mutation batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, u := range updates {
		if len(u.Fields) == 0 {
			continue
		}
		// Deterministic column order keeps generated SQL stable across
		// runs.
		names := make([]string, 0, len(u.Fields))
		for name := range u.Fields {
			names = append(names, name)
		}
		sort.Strings(names)

		setClause := ""
		args := []interface{}{u.TargetID}
		for i, name := range names {
			col, ok := applyFieldsSQL[name]
			if !ok {
				return fmt.Errorf("apply update target=%s: unknown field %q", u.TargetID, name)
			}
			args = append(args, u.Fields[name])
			if i > 0 {
				setClause += ", "
			}
			setClause += fmt.Sprintf("%s = $%d", col, len(args))
		}
		query := fmt.Sprintf(`UPDATE targets SET %s WHERE id = $1`, setClause)
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("apply update target=%s: %w", u.TargetID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit mutation batch: %w", err)
	}
	return nil
}
