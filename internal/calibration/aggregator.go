package calibration

import (
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// AggregateStats counts what a table build consumed and skipped.
type AggregateStats struct {
	PointsUsed          int
	ExcludedUnresolved  int
	DroppedInvalidPrice int
	DroppedUnknown      int
}

// Aggregator folds historical points of resolved markets into a Table.
// Workers > 1 shards the fold across goroutines; the merged result is
// bit-identical to the sequential fold.
type Aggregator struct {
	Partition Partition
	Workers   int
}

type cell struct {
	count    int
	wins     int
	priceSum float64
}

type contractRef struct {
	marketID string
	side     domain.Side
	outcome  domain.Outcome
}

type partial struct {
	cells    map[domain.CalibrationKey]*cell
	used     int
	excluded int
	invalid  int
	unknown  int
}

// Build aggregates series, keyed by contract id, against the outcomes of
// markets. Points of unresolved markets are excluded without error; points
// of unknown contracts and out-of-range prices are dropped and counted.
func (a Aggregator) Build(markets []domain.Market, series map[string][]domain.PricePoint) (*Table, AggregateStats) {
	refs := contractIndex(markets)

	ids := make([]string, 0, len(series))
	for id := range series {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	partials := make([]partial, len(ids))
	fold := func(i int) {
		partials[i] = a.foldContract(refs, ids[i], series[ids[i]])
	}

	workers := a.Workers
	if workers > len(ids) {
		workers = len(ids)
	}
	if workers <= 1 {
		for i := range ids {
			fold(i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(workers)
		for i := range ids {
			g.Go(func() error {
				fold(i)
				return nil
			})
		}
		_ = g.Wait()
	}

	// Merge in contract-id order so float sums do not depend on scheduling.
	total := make(map[domain.CalibrationKey]*cell)
	var stats AggregateStats
	for _, p := range partials {
		stats.PointsUsed += p.used
		stats.ExcludedUnresolved += p.excluded
		stats.DroppedInvalidPrice += p.invalid
		stats.DroppedUnknown += p.unknown
		for _, k := range sortedKeys(p.cells) {
			c := p.cells[k]
			t, ok := total[k]
			if !ok {
				t = &cell{}
				total[k] = t
			}
			t.count += c.count
			t.wins += c.wins
			t.priceSum += c.priceSum
		}
	}

	records := make(map[domain.CalibrationKey]domain.CalibrationRecord, len(total))
	for k, c := range total {
		records[k] = domain.CalibrationRecord{
			Bucket:          a.Partition.Bucket(k.Bucket),
			Side:            k.Side,
			SampleCount:     c.count,
			MeanPrice:       c.priceSum / float64(c.count),
			RealizedWinRate: float64(c.wins) / float64(c.count),
		}
	}
	return &Table{partition: a.Partition, records: records, sorted: sortedRecords(records)}, stats
}

func (a Aggregator) foldContract(refs map[string]contractRef, contractID string, points []domain.PricePoint) partial {
	p := partial{cells: make(map[domain.CalibrationKey]*cell)}
	ref, ok := refs[contractID]
	if !ok {
		p.unknown = len(points)
		return p
	}
	if !ref.outcome.Resolved() {
		p.excluded = len(points)
		return p
	}

	win := 0
	if ref.outcome.Winner(ref.side) {
		win = 1
	}
	for _, pt := range points {
		b, err := a.Partition.BucketOf(pt.Price)
		if err != nil {
			p.invalid++
			continue
		}
		k := domain.CalibrationKey{Bucket: b.Index, Side: ref.side}
		c, ok := p.cells[k]
		if !ok {
			c = &cell{}
			p.cells[k] = c
		}
		c.count++
		c.wins += win
		c.priceSum += pt.Price
		p.used++
	}
	return p
}

func contractIndex(markets []domain.Market) map[string]contractRef {
	refs := make(map[string]contractRef, 2*len(markets))
	for _, m := range markets {
		for _, c := range m.Contracts() {
			if c.ContractID == "" {
				continue
			}
			refs[c.ContractID] = contractRef{marketID: m.ID, side: c.Side, outcome: m.CurrentOutcome()}
		}
	}
	return refs
}

func sortedKeys(m map[domain.CalibrationKey]*cell) []domain.CalibrationKey {
	keys := make([]domain.CalibrationKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })
	return keys
}
