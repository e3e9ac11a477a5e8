package calibration

import (
	"time"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testMarket(id string, outcome domain.Outcome) domain.Market {
	return domain.Market{
		ID:         id,
		Question:   "Will " + id + " happen?",
		YesTokenID: id + "-yes-token",
		NoTokenID:  id + "-no-token",
		Outcome:    outcome,
	}
}

func repeatPoints(contractID string, price float64, n int) []domain.PricePoint {
	out := make([]domain.PricePoint, n)
	for i := range out {
		out[i] = domain.PricePoint{
			ContractID: contractID,
			Timestamp:  baseTime.Add(time.Duration(i) * time.Hour),
			Price:      price,
		}
	}
	return out
}

func testPolicy() Policy {
	return Policy{
		EdgeThreshold:     0.08,
		MinSamples:        30,
		ConfidenceCeiling: 200,
		OneSidedPenalty:   0.5,
	}
}

func mustTable(p Partition, records ...domain.CalibrationRecord) *Table {
	t, err := NewTable(p, records)
	if err != nil {
		panic(err)
	}
	return t
}

func record(p Partition, bucket int, side domain.Side, n int, winRate float64) domain.CalibrationRecord {
	b := p.Bucket(bucket)
	return domain.CalibrationRecord{
		Bucket:          b,
		Side:            side,
		SampleCount:     n,
		MeanPrice:       (b.Lower + b.Upper) / 2,
		RealizedWinRate: winRate,
	}
}
