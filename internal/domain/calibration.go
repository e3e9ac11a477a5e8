package domain

import (
	"strconv"
	"time"
)

// Bucket is a half-open price interval [Lower, Upper) labelled by its lower
// bound. The last bucket of a partition also contains Upper (1.0).
type Bucket struct {
	Index int     `json:"index"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Label renders the lower bound, e.g. "0.10".
func (b Bucket) Label() string {
	return strconv.FormatFloat(b.Lower, 'f', 2, 64)
}

// CalibrationKey identifies one calibration cell.
type CalibrationKey struct {
	Bucket int
	Side   Side
}

// CalibrationRecord is the empirical statistic of one (bucket, side) cell.
type CalibrationRecord struct {
	Bucket          Bucket  `json:"bucket"`
	Side            Side    `json:"side"`
	SampleCount     int     `json:"sample_count"`
	MeanPrice       float64 `json:"mean_price"`
	RealizedWinRate float64 `json:"realized_win_rate"`
}

// Key returns the record's table key.
func (r CalibrationRecord) Key() CalibrationKey {
	return CalibrationKey{Bucket: r.Bucket.Index, Side: r.Side}
}

// Recommendation is the action suggested for an edge.
type Recommendation string

const (
	BuyThisSide  Recommendation = "BUY_THIS_SIDE"
	BuyOtherSide Recommendation = "BUY_OTHER_SIDE"
	NoAction     Recommendation = "NO_ACTION"
)

// EdgeRecord is the result of comparing one live price against its
// calibration cell.
type EdgeRecord struct {
	MarketID           string         `json:"market_id"`
	Question           string         `json:"question,omitempty"`
	Side               Side           `json:"side"`
	LiveBucket         Bucket         `json:"live_bucket"`
	ImpliedProbability float64        `json:"implied_probability"`
	RealizedWinRate    float64        `json:"realized_win_rate"`
	EdgeMagnitude      float64        `json:"edge_magnitude"`
	Recommendation     Recommendation `json:"recommendation"`
	Confidence         float64        `json:"confidence"`
	SampleCount        int            `json:"sample_count"`
	ReducedConfidence  bool           `json:"reduced_confidence,omitempty"`
	ObservedAt         time.Time      `json:"observed_at"`
}

// Actionable reports whether the record recommends a trade.
func (e EdgeRecord) Actionable() bool {
	return e.Recommendation == BuyThisSide || e.Recommendation == BuyOtherSide
}

// RunSummary counts what an analysis run consumed and dropped.
type RunSummary struct {
	Markets             int `json:"markets"`
	ResolvedMarkets     int `json:"resolved_markets"`
	PointsUsed          int `json:"points_used"`
	DroppedMalformed    int `json:"dropped_malformed"`
	DroppedInvalidPrice int `json:"dropped_invalid_price"`
	ExcludedUnresolved  int `json:"excluded_unresolved"`
	CalibrationCells    int `json:"calibration_cells"`
	QuotesEvaluated     int `json:"quotes_evaluated"`
	QuotesMissing       int `json:"quotes_missing"`
	EdgesFound          int `json:"edges_found"`
}

// Report is the ordered output of one analysis run.
type Report struct {
	RunID       string              `json:"run_id"`
	GeneratedAt time.Time           `json:"generated_at"`
	BucketCount int                 `json:"bucket_count"`
	Edges       []EdgeRecord        `json:"edges"`
	Calibration []CalibrationRecord `json:"calibration"`
	Summary     RunSummary          `json:"summary"`
}
