package calibration

import (
	"math"
	"sort"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// Rank orders edges by |edge|*confidence descending, then sample count
// descending, market id ascending and YES before NO. It returns a new slice
// and never filters.
func Rank(edges []domain.EdgeRecord) []domain.EdgeRecord {
	out := make([]domain.EdgeRecord, len(edges))
	copy(out, edges)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if sa, sb := Score(a), Score(b); sa != sb {
			return sa > sb
		}
		if a.SampleCount != b.SampleCount {
			return a.SampleCount > b.SampleCount
		}
		if a.MarketID != b.MarketID {
			return a.MarketID < b.MarketID
		}
		return sideRank(a.Side) < sideRank(b.Side)
	})
	return out
}

// Score is the ranking strength of an edge.
func Score(e domain.EdgeRecord) float64 {
	return math.Abs(e.EdgeMagnitude) * e.Confidence
}
