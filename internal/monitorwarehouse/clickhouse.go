package monitorwarehouse

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sony/gobreaker"

	"pulsewatch/pkg/monitor"
)

// ClickHouseWarehouse is the production Warehouse backend. Writes go
// through a batch per call; a single malformed row in Append still lets
// the rest of the batch commit, since ClickHouse validates row-by-row
// before Send.
type ClickHouseWarehouse struct {
	conn driver.Conn
	cb   *gobreaker.CircuitBreaker
}

func NewClickHouseWarehouse(addr string, auth clickhouse.Auth) (*ClickHouseWarehouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: auth,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "warehouse-insert",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &ClickHouseWarehouse{conn: conn, cb: cb}, nil
}

func (w *ClickHouseWarehouse) Insert(ctx context.Context, table string, rows []monitor.TelemetryRow) InsertOutcome {
	if len(rows) == 0 {
		return InsertOutcome{}
	}

	result, err := w.cb.Execute(func() (interface{}, error) {
		batch, err := w.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", table))
		if err != nil {
			return nil, fmt.Errorf("prepare batch: %w", err)
		}
		var failed []int
		for i, row := range rows {
			if err := batch.Append(
				row.ID, row.TargetID, row.UserID, row.Timestamp, string(row.Status),
				row.StatusCode, row.ResponseTime.Milliseconds(), row.Error,
			); err != nil {
				failed = append(failed, i)
				continue
			}
		}
		if err := batch.Send(); err != nil {
			return nil, fmt.Errorf("send batch: %w", err)
		}
		return failed, nil
	})
	if err != nil {
		return InsertOutcome{Err: fmt.Errorf("insert %s: %w", table, err)}
	}
	failed, _ := result.([]int)
	return InsertOutcome{FailedIndices: failed}
}

func (w *ClickHouseWarehouse) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	result, err := w.cb.Execute(func() (interface{}, error) {
		rows, err := w.conn.Query(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		defer rows.Close()

		cols := rows.Columns()
		types := rows.ColumnTypes()
		var out []map[string]any
		for rows.Next() {
			values := make([]interface{}, len(cols))
			for i, t := range types {
				values[i] = reflect.New(t.ScanType()).Interface()
			}
			if err := rows.Scan(values...); err != nil {
				return nil, fmt.Errorf("scan row: %w", err)
			}
			rowMap := make(map[string]any, len(cols))
			for i, c := range cols {
				rowMap[c] = reflect.ValueOf(values[i]).Elem().Interface()
			}
			out = append(out, rowMap)
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query warehouse: %w", err)
	}
	return result.([]map[string]any), nil
}
