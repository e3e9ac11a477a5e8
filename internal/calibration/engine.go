package calibration

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// Config configures an Engine.
type Config struct {
	BucketCount int
	Policy      Policy
	Workers     int
}

// Input is everything one analysis run consumes. All I/O has already
// happened; the engine only reads it.
type Input struct {
	Markets []domain.Market
	// History holds raw series keyed by contract id.
	History map[string]RawSeries
	// Points holds already-structured points keyed by contract id, e.g.
	// rows loaded from the store. Merged with History.
	Points map[string][]domain.PricePoint
	// Quotes holds the latest quote keyed by contract id.
	Quotes map[string]domain.Quote
	// Table, when set, is used instead of aggregating the history.
	Table *Table
}

// Engine runs the full batch: normalize, aggregate, evaluate, rank.
type Engine struct {
	partition Partition
	policy    Policy
	workers   int

	now   func() time.Time
	newID func() string
}

// NewEngine validates cfg and builds an engine.
func NewEngine(cfg Config) (*Engine, error) {
	count := cfg.BucketCount
	if count == 0 {
		count = DefaultBucketCount
	}
	p, err := NewPartition(count)
	if err != nil {
		return nil, err
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		partition: p,
		policy:    cfg.Policy,
		workers:   max(cfg.Workers, 1),
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

// Partition returns the engine's bucket partition.
func (e *Engine) Partition() Partition { return e.partition }

// BuildTable normalizes and aggregates history into a fresh table.
func (e *Engine) BuildTable(in Input) (*Table, domain.RunSummary) {
	var sum domain.RunSummary
	series, dropped := mergeSeries(in.History, in.Points)
	sum.DroppedMalformed = dropped

	agg := Aggregator{Partition: e.partition, Workers: e.workers}
	table, stats := agg.Build(in.Markets, series)
	sum.PointsUsed = stats.PointsUsed
	sum.ExcludedUnresolved = stats.ExcludedUnresolved
	sum.DroppedInvalidPrice = stats.DroppedInvalidPrice
	sum.DroppedMalformed += stats.DroppedUnknown
	sum.CalibrationCells = table.Len()
	return table, sum
}

// Analyze produces a ranked edge report. Live prices are evaluated for
// every unresolved market with both contract ids. The only error is a
// table whose partition differs from the engine's.
func (e *Engine) Analyze(in Input) (domain.Report, error) {
	var (
		table *Table
		sum   domain.RunSummary
	)
	if in.Table != nil {
		table = in.Table
		sum.CalibrationCells = table.Len()
	} else {
		table, sum = e.BuildTable(in)
	}
	if !table.Partition().Equal(e.partition) {
		return domain.Report{}, fmt.Errorf("calibration: analyze: table has %d buckets, engine %d: %w",
			table.Partition().Count(), e.partition.Count(), domain.ErrPartitionMismatch)
	}

	sum.Markets = len(in.Markets)
	var live []domain.Market
	for _, m := range in.Markets {
		if m.CurrentOutcome().Resolved() {
			sum.ResolvedMarkets++
			continue
		}
		if m.HasTokens() {
			live = append(live, m)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].ID < live[j].ID })

	edges, evaluated, missing, err := e.evaluate(table, live, in.Quotes)
	if err != nil {
		return domain.Report{}, err
	}
	sum.QuotesEvaluated = evaluated
	sum.QuotesMissing = missing

	ranked := Rank(edges)
	sum.EdgesFound = len(ranked)

	return domain.Report{
		RunID:       e.newID(),
		GeneratedAt: e.now().UTC(),
		BucketCount: e.partition.Count(),
		Edges:       ranked,
		Calibration: table.Records(),
		Summary:     sum,
	}, nil
}

type marketResult struct {
	edges     []domain.EdgeRecord
	evaluated int
	missing   int
}

func (e *Engine) evaluate(table *Table, markets []domain.Market, quotes map[string]domain.Quote) ([]domain.EdgeRecord, int, int, error) {
	ev := Evaluator{Partition: e.partition, Policy: e.policy}
	results := make([]marketResult, len(markets))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, m := range markets {
		g.Go(func() error {
			var r marketResult
			for _, side := range domain.Sides {
				q, ok := quotes[m.TokenID(side)]
				if !ok {
					r.missing++
					continue
				}
				rec, ok, err := ev.EvaluateQuote(table, m, side, q)
				if errors.Is(err, domain.ErrInvalidPrice) {
					r.missing++
					continue
				}
				if err != nil {
					return err
				}
				if !ok {
					r.missing++
					continue
				}
				r.evaluated++
				if rec.Actionable() {
					r.edges = append(r.edges, rec)
				}
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, 0, err
	}

	var (
		edges              []domain.EdgeRecord
		evaluated, missing int
	)
	for _, r := range results {
		edges = append(edges, r.edges...)
		evaluated += r.evaluated
		missing += r.missing
	}
	return edges, evaluated, missing, nil
}

// mergeSeries normalizes raw history and structured points into one
// ordered series per contract.
func mergeSeries(raw map[string]RawSeries, points map[string][]domain.PricePoint) (map[string][]domain.PricePoint, int) {
	out := make(map[string][]domain.PricePoint, len(raw)+len(points))
	dropped := 0
	for id, s := range raw {
		n := Normalize(id, s)
		dropped += n.Dropped
		out[id] = n.Points
	}
	for id, pts := range points {
		n := NormalizePoints(pts)
		dropped += n.Dropped
		if existing, ok := out[id]; ok {
			n = NormalizePoints(append(existing, n.Points...))
		}
		out[id] = n.Points
	}
	return out, dropped
}
