package telemetry

import (
	"container/list"
	"time"

	"pulsewatch/pkg/monitor"
)

type entry struct {
	row     monitor.TelemetryRow
	failure *monitor.FailureMeta
}

// buffer is an insertion-ordered, id-addressable queue of pending
// telemetry rows. Re-admitting an id already present removes its old
// position (and failure bookkeeping) and re-enqueues fresh at the back,
// per spec.md §4.3.
type buffer struct {
	order *list.List
	index map[string]*list.Element
}

func newBuffer() *buffer {
	return &buffer{order: list.New(), index: make(map[string]*list.Element)}
}

func (b *buffer) Len() int { return b.order.Len() }

// Admit enqueues row at the back, discarding any prior entry for the same
// id (and its failure state).
func (b *buffer) Admit(row monitor.TelemetryRow) {
	if el, ok := b.index[row.ID]; ok {
		b.order.Remove(el)
		delete(b.index, row.ID)
	}
	el := b.order.PushBack(&entry{row: row})
	b.index[row.ID] = el
}

// DropOldest removes and returns the single oldest entry, used to enforce
// MaxBufferSize.
func (b *buffer) DropOldest() (monitor.TelemetryRow, bool) {
	front := b.order.Front()
	if front == nil {
		return monitor.TelemetryRow{}, false
	}
	e := front.Value.(*entry)
	b.order.Remove(front)
	delete(b.index, e.row.ID)
	return e.row, true
}

// RequeueFront re-inserts rows at the front, preserving their relative
// order, for a flush attempt that needs to retry later. Used for both
// whole-batch and partial failures.
func (b *buffer) RequeueFront(entries []*entry) {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		el := b.order.PushFront(e)
		b.index[e.row.ID] = el
	}
}

// TakeReadyBatch removes and returns up to maxRows entries (bounded also
// by maxBytes, estimated via a cheap per-row heuristic) whose backoff
// window (if any) has elapsed by now. Entries not yet eligible are left
// in place, in their original order.
func (b *buffer) TakeReadyBatch(now time.Time, maxRows, maxBytes int) []*entry {
	var batch []*entry
	usedBytes := 0

	var next *list.Element
	for el := b.order.Front(); el != nil && len(batch) < maxRows; el = next {
		next = el.Next()
		e := el.Value.(*entry)
		if e.failure != nil && now.Before(e.failure.NextRetryAt) {
			continue
		}
		sz := estimateRowBytes(e.row)
		if usedBytes > 0 && usedBytes+sz > maxBytes {
			break
		}
		b.order.Remove(el)
		delete(b.index, e.row.ID)
		batch = append(batch, e)
		usedBytes += sz
	}
	return batch
}

// EarliestRetry returns the soonest NextRetryAt among currently buffered
// failed entries, if any, for scheduling the backoff-driven flush timer.
func (b *buffer) EarliestRetry() (time.Time, bool) {
	var earliest time.Time
	found := false
	for el := b.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if e.failure == nil {
			continue
		}
		if !found || e.failure.NextRetryAt.Before(earliest) {
			earliest = e.failure.NextRetryAt
			found = true
		}
	}
	return earliest, found
}

func estimateRowBytes(row monitor.TelemetryRow) int {
	size := len(row.ID) + len(row.TargetID) + len(row.UserID) + len(row.Error) + 96
	if row.Edge != nil {
		for k, v := range row.Edge.Headers {
			size += len(k) + len(v)
		}
	}
	return size
}
