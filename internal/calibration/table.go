package calibration

import (
	"fmt"
	"sort"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// Table is an immutable calibration snapshot keyed by (bucket, side). It
// carries the partition it was built with; a new run builds a new Table.
type Table struct {
	partition Partition
	records   map[domain.CalibrationKey]domain.CalibrationRecord
	sorted    []domain.CalibrationRecord
}

// NewTable assembles a table from finalized records, e.g. the calibration
// persisted with an earlier run. Records must fit the partition and keys
// must be unique.
func NewTable(p Partition, records []domain.CalibrationRecord) (*Table, error) {
	t := &Table{
		partition: p,
		records:   make(map[domain.CalibrationKey]domain.CalibrationRecord, len(records)),
	}
	for _, r := range records {
		if r.Bucket.Index < 0 || r.Bucket.Index >= p.Count() {
			return nil, fmt.Errorf("calibration: new table: bucket %d: %w", r.Bucket.Index, domain.ErrPartitionMismatch)
		}
		if r.Bucket != p.Bucket(r.Bucket.Index) {
			return nil, fmt.Errorf("calibration: new table: bucket %s: %w", r.Bucket.Label(), domain.ErrPartitionMismatch)
		}
		if !r.Side.Valid() {
			return nil, fmt.Errorf("calibration: new table: side %q: %w", r.Side, domain.ErrMalformedInput)
		}
		if r.SampleCount < 1 {
			return nil, fmt.Errorf("calibration: new table: empty record for %s/%s: %w", r.Bucket.Label(), r.Side, domain.ErrMalformedInput)
		}
		if _, dup := t.records[r.Key()]; dup {
			return nil, fmt.Errorf("calibration: new table: duplicate %s/%s: %w", r.Bucket.Label(), r.Side, domain.ErrAlreadyExists)
		}
		t.records[r.Key()] = r
	}
	t.sorted = sortedRecords(t.records)
	return t, nil
}

// Partition returns the partition the table was built with.
func (t *Table) Partition() Partition { return t.partition }

// Lookup returns the record for (bucket, side). The bucket is matched by
// index.
func (t *Table) Lookup(bucket domain.Bucket, side domain.Side) (domain.CalibrationRecord, bool) {
	r, ok := t.records[domain.CalibrationKey{Bucket: bucket.Index, Side: side}]
	return r, ok
}

// Records returns every record ordered by bucket, YES before NO.
func (t *Table) Records() []domain.CalibrationRecord {
	out := make([]domain.CalibrationRecord, len(t.sorted))
	copy(out, t.sorted)
	return out
}

// Len returns the number of populated cells.
func (t *Table) Len() int { return len(t.sorted) }

func sortedRecords(m map[domain.CalibrationKey]domain.CalibrationRecord) []domain.CalibrationRecord {
	out := make([]domain.CalibrationRecord, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return keyLess(out[i].Key(), out[j].Key()) })
	return out
}

func keyLess(a, b domain.CalibrationKey) bool {
	if a.Bucket != b.Bucket {
		return a.Bucket < b.Bucket
	}
	return sideRank(a.Side) < sideRank(b.Side)
}

func sideRank(s domain.Side) int {
	if s == domain.SideYes {
		return 0
	}
	return 1
}
