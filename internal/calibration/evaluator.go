package calibration

import (
	"fmt"
	"math"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// edgeEpsilon absorbs float noise when an edge equals the threshold.
const edgeEpsilon = 1e-12

// Policy gates recommendations and shapes confidence.
type Policy struct {
	// EdgeThreshold is the minimum edge, inclusive, to recommend a trade.
	EdgeThreshold float64
	// MinSamples is the minimum sample count of the cell backing a trade.
	MinSamples int
	// ConfidenceCeiling is the sample count at which confidence saturates.
	ConfidenceCeiling int
	// OneSidedPenalty scales confidence when the live price came from a
	// one-sided book.
	OneSidedPenalty float64
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		EdgeThreshold:     0.05,
		MinSamples:        30,
		ConfidenceCeiling: 500,
		OneSidedPenalty:   0.5,
	}
}

// Validate checks the policy for nonsensical values.
func (p Policy) Validate() error {
	switch {
	case p.EdgeThreshold <= 0 || p.EdgeThreshold >= 1:
		return fmt.Errorf("calibration: edge threshold must be in (0,1), got %v", p.EdgeThreshold)
	case p.MinSamples < 1:
		return fmt.Errorf("calibration: min samples must be positive, got %d", p.MinSamples)
	case p.ConfidenceCeiling < 1:
		return fmt.Errorf("calibration: confidence ceiling must be positive, got %d", p.ConfidenceCeiling)
	case p.OneSidedPenalty < 0 || p.OneSidedPenalty > 1:
		return fmt.Errorf("calibration: one-sided penalty must be in [0,1], got %v", p.OneSidedPenalty)
	}
	return nil
}

// Confidence maps a sample count to [0,1]: min(n/ceiling, 1).
func (p Policy) Confidence(samples int) float64 {
	if samples <= 0 {
		return 0
	}
	if p.ConfidenceCeiling <= 0 {
		return 1
	}
	return math.Min(float64(samples)/float64(p.ConfidenceCeiling), 1)
}

// Evaluator compares live prices against a calibration table.
type Evaluator struct {
	Partition Partition
	Policy    Policy
}

// Evaluate computes the edge of one live price for one side of market.
// It fails only when the table's partition differs from the evaluator's
// or the live price is outside [0,1].
func (e Evaluator) Evaluate(t *Table, market domain.Market, side domain.Side, live domain.PricePoint) (domain.EdgeRecord, error) {
	if !t.Partition().Equal(e.Partition) {
		return domain.EdgeRecord{}, fmt.Errorf("calibration: evaluate: table has %d buckets, evaluator %d: %w",
			t.Partition().Count(), e.Partition.Count(), domain.ErrPartitionMismatch)
	}
	bucket, err := e.Partition.BucketOf(live.Price)
	if err != nil {
		return domain.EdgeRecord{}, fmt.Errorf("calibration: evaluate %s/%s: %w", market.ID, side, err)
	}

	rec := domain.EdgeRecord{
		MarketID:           market.ID,
		Question:           market.Question,
		Side:               side,
		LiveBucket:         bucket,
		ImpliedProbability: live.Price,
		Recommendation:     domain.NoAction,
		ObservedAt:         live.Timestamp,
	}

	cell, ok := t.Lookup(bucket, side)
	if !ok {
		return rec, nil
	}
	rec.RealizedWinRate = cell.RealizedWinRate
	rec.SampleCount = cell.SampleCount
	rec.EdgeMagnitude = cell.RealizedWinRate - live.Price

	if cell.SampleCount < e.Policy.MinSamples {
		return rec, nil
	}
	rec.Confidence = e.Policy.Confidence(cell.SampleCount)

	switch {
	case rec.EdgeMagnitude > 0 && rec.EdgeMagnitude+edgeEpsilon >= e.Policy.EdgeThreshold:
		rec.Recommendation = domain.BuyThisSide
	case rec.EdgeMagnitude < 0 && -rec.EdgeMagnitude+edgeEpsilon >= e.Policy.EdgeThreshold:
		if counter, ok := e.counterCell(t, side, live.Price); ok {
			rec.Recommendation = domain.BuyOtherSide
			rec.Confidence = e.Policy.Confidence(min(cell.SampleCount, counter.SampleCount))
		}
	}
	return rec, nil
}

// EvaluateQuote derives the live price from a quote and evaluates it.
// ok is false when the quote has no bid and no ask.
func (e Evaluator) EvaluateQuote(t *Table, market domain.Market, side domain.Side, q domain.Quote) (rec domain.EdgeRecord, ok bool, err error) {
	live, oneSided, ok := q.Midpoint()
	if !ok {
		return domain.EdgeRecord{}, false, nil
	}
	rec, err = e.Evaluate(t, market, side, live)
	if err != nil {
		return domain.EdgeRecord{}, true, err
	}
	if oneSided {
		rec.ReducedConfidence = true
		rec.Confidence *= e.Policy.OneSidedPenalty
	}
	return rec, true, nil
}

// counterCell returns the opposite side's cell at 1-price when it is
// sufficiently sampled and shows its own edge above threshold.
func (e Evaluator) counterCell(t *Table, side domain.Side, price float64) (domain.CalibrationRecord, bool) {
	counterPrice := 1 - price
	b, err := e.Partition.BucketOf(counterPrice)
	if err != nil {
		return domain.CalibrationRecord{}, false
	}
	c, ok := t.Lookup(b, side.Opposite())
	if !ok || c.SampleCount < e.Policy.MinSamples {
		return domain.CalibrationRecord{}, false
	}
	if c.RealizedWinRate-counterPrice+edgeEpsilon < e.Policy.EdgeThreshold {
		return domain.CalibrationRecord{}, false
	}
	return c, true
}
