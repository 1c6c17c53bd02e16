// Package slot maintains the locally mirrored view of the device's
// breakpoint/patch slots. The table is the only structure the merge writes
// to, and the version gate here is the single safety net against duplicate,
// delayed, or out-of-order snapshots.
package slot

import (
	"fmt"

	"github.com/FASTSHIFT/FPBInject-sub001/internal/model"
)

// Table is a fixed-capacity, ordered-by-id sequence of slot records.
// Index i always denotes device slot i; candidate updates address records by
// id, never by their position in the payload.
type Table struct {
	records []model.SlotRecord
	version int64
}

// NewTable allocates a table with every slot unoccupied and version 0.
func NewTable(capacity int) (*Table, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("slot: capacity must be positive, got %d", capacity)
	}
	t := &Table{records: make([]model.SlotRecord, capacity)}
	for i := range t.records {
		t.records[i].ID = i
	}
	return t, nil
}

// Capacity returns the number of slots the table holds.
func (t *Table) Capacity() int {
	return len(t.records)
}

// Version returns the last-applied version stamp.
func (t *Table) Version() int64 {
	return t.version
}

// Record returns a copy of the record for id.
func (t *Table) Record(id int) (model.SlotRecord, bool) {
	if id < 0 || id >= len(t.records) {
		return model.SlotRecord{}, false
	}
	return t.records[id], true
}

// Records returns a copy of the whole table in id order.
func (t *Table) Records() []model.SlotRecord {
	out := make([]model.SlotRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Reset clears every slot and rewinds the version stamp. Only a session
// restart calls this.
func (t *Table) Reset() {
	for i := range t.records {
		t.records[i] = model.SlotRecord{ID: i}
	}
	t.version = 0
}

// Merge applies a version-gated sparse update. A candidate whose version does
// not exceed the current one is discarded whole: no record changes, the stamp
// stays. Otherwise every named record is overwritten in place, slots the
// candidate does not mention keep their previous state, and the stamp
// advances. Records with out-of-range ids are skipped.
//
// Returns whether the update was applied.
func (t *Table) Merge(newVersion int64, records []model.SlotRecord) bool {
	if newVersion <= t.version {
		return false
	}
	for _, rec := range records {
		if rec.ID < 0 || rec.ID >= len(t.records) {
			continue
		}
		t.records[rec.ID] = rec.Normalize()
	}
	t.version = newVersion
	return true
}

// Occupied counts slots currently holding a patch.
func (t *Table) Occupied() int {
	n := 0
	for i := range t.records {
		if t.records[i].Occupied {
			n++
		}
	}
	return n
}
