package calibration

import (
	"errors"
	"math"
	"testing"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

func livePoint(price float64) domain.PricePoint {
	return domain.PricePoint{ContractID: "live", Timestamp: baseTime, Price: price}
}

func TestEvaluateEdgeSign(t *testing.T) {
	p := DefaultPartition()
	table := mustTable(p, record(p, 1, domain.SideYes, 100, 0.20))
	ev := Evaluator{Partition: p, Policy: testPolicy()}

	rec, err := ev.Evaluate(table, testMarket("m", domain.OutcomeUnresolved), domain.SideYes, livePoint(0.12))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if math.Abs(rec.EdgeMagnitude-0.08) > 1e-9 {
		t.Errorf("edge = %v, want 0.08", rec.EdgeMagnitude)
	}
	if rec.Recommendation != domain.BuyThisSide {
		t.Errorf("recommendation = %s, want BUY_THIS_SIDE", rec.Recommendation)
	}
	if math.Abs(rec.Confidence-0.5) > 1e-9 {
		t.Errorf("confidence = %v, want 0.5", rec.Confidence)
	}
	if rec.LiveBucket.Index != 1 || rec.ImpliedProbability != 0.12 {
		t.Errorf("unexpected bucket/implied: %+v", rec)
	}
}

func TestEvaluateBelowThreshold(t *testing.T) {
	p := DefaultPartition()
	table := mustTable(p, record(p, 1, domain.SideYes, 100, 0.20))
	pol := testPolicy()
	pol.EdgeThreshold = 0.09
	ev := Evaluator{Partition: p, Policy: pol}

	rec, err := ev.Evaluate(table, testMarket("m", domain.OutcomeUnresolved), domain.SideYes, livePoint(0.12))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if rec.Recommendation != domain.NoAction {
		t.Errorf("recommendation = %s, want NO_ACTION", rec.Recommendation)
	}
}

func TestEvaluateAbsentBucket(t *testing.T) {
	p := DefaultPartition()
	table := mustTable(p,
		record(p, 0, domain.SideYes, 1000, 0.9),
		record(p, 2, domain.SideYes, 1000, 0.9),
	)
	ev := Evaluator{Partition: p, Policy: testPolicy()}

	rec, err := ev.Evaluate(table, testMarket("m", domain.OutcomeUnresolved), domain.SideYes, livePoint(0.15))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if rec.Recommendation != domain.NoAction || rec.Confidence != 0 || rec.RealizedWinRate != 0 || rec.SampleCount != 0 {
		t.Errorf("absent bucket produced %+v", rec)
	}
}

func TestEvaluateInsufficientSamples(t *testing.T) {
	p := DefaultPartition()
	table := mustTable(p, record(p, 1, domain.SideYes, 29, 0.9))
	ev := Evaluator{Partition: p, Policy: testPolicy()}

	rec, err := ev.Evaluate(table, testMarket("m", domain.OutcomeUnresolved), domain.SideYes, livePoint(0.12))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if rec.Recommendation != domain.NoAction || rec.Confidence != 0 {
		t.Errorf("insufficient samples produced %+v", rec)
	}
	if rec.SampleCount != 29 {
		t.Errorf("sample count = %d, want 29", rec.SampleCount)
	}
}

func TestEvaluateBuyOtherSide(t *testing.T) {
	p := DefaultPartition()
	ev := Evaluator{Partition: p, Policy: testPolicy()}
	m := testMarket("m", domain.OutcomeUnresolved)

	table := mustTable(p,
		record(p, 7, domain.SideYes, 100, 0.50),
		record(p, 2, domain.SideNo, 80, 0.55),
	)
	rec, err := ev.Evaluate(table, m, domain.SideYes, livePoint(0.75))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if rec.Recommendation != domain.BuyOtherSide {
		t.Fatalf("recommendation = %s, want BUY_OTHER_SIDE", rec.Recommendation)
	}
	if math.Abs(rec.EdgeMagnitude+0.25) > 1e-9 {
		t.Errorf("edge = %v, want -0.25", rec.EdgeMagnitude)
	}
	if math.Abs(rec.Confidence-0.4) > 1e-9 {
		t.Errorf("confidence = %v, want 0.4", rec.Confidence)
	}

	// Counter side without its own edge.
	weak := mustTable(p,
		record(p, 7, domain.SideYes, 100, 0.50),
		record(p, 2, domain.SideNo, 80, 0.26),
	)
	rec, err = ev.Evaluate(weak, m, domain.SideYes, livePoint(0.75))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if rec.Recommendation != domain.NoAction {
		t.Errorf("recommendation = %s, want NO_ACTION", rec.Recommendation)
	}

	// Counter side missing entirely.
	alone := mustTable(p, record(p, 7, domain.SideYes, 100, 0.50))
	rec, err = ev.Evaluate(alone, m, domain.SideYes, livePoint(0.75))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if rec.Recommendation != domain.NoAction {
		t.Errorf("recommendation = %s, want NO_ACTION", rec.Recommendation)
	}
}

func TestEvaluatePartitionMismatch(t *testing.T) {
	twenty, _ := NewPartition(20)
	table := mustTable(twenty, record(twenty, 2, domain.SideYes, 100, 0.2))
	ev := Evaluator{Partition: DefaultPartition(), Policy: testPolicy()}

	_, err := ev.Evaluate(table, testMarket("m", domain.OutcomeUnresolved), domain.SideYes, livePoint(0.12))
	if !errors.Is(err, domain.ErrPartitionMismatch) {
		t.Fatalf("error = %v, want ErrPartitionMismatch", err)
	}
}

func TestEvaluateQuoteOneSided(t *testing.T) {
	p := DefaultPartition()
	table := mustTable(p, record(p, 1, domain.SideYes, 200, 0.30))
	ev := Evaluator{Partition: p, Policy: testPolicy()}
	m := testMarket("m", domain.OutcomeUnresolved)

	q := domain.Quote{ContractID: m.YesTokenID, BestBid: domain.SomePrice(0.12), Timestamp: baseTime}
	rec, ok, err := ev.EvaluateQuote(table, m, domain.SideYes, q)
	if err != nil || !ok {
		t.Fatalf("EvaluateQuote failed: ok=%v err=%v", ok, err)
	}
	if !rec.ReducedConfidence {
		t.Error("one-sided quote should reduce confidence")
	}
	if math.Abs(rec.Confidence-0.5) > 1e-9 {
		t.Errorf("confidence = %v, want 0.5", rec.Confidence)
	}

	q.BestAsk = domain.SomePrice(0.14)
	rec, _, _ = ev.EvaluateQuote(table, m, domain.SideYes, q)
	if rec.ReducedConfidence || math.Abs(rec.ImpliedProbability-0.13) > 1e-9 {
		t.Errorf("two-sided quote produced %+v", rec)
	}

	if _, ok, _ := ev.EvaluateQuote(table, m, domain.SideYes, domain.Quote{}); ok {
		t.Error("empty quote should not evaluate")
	}
}

func TestConfidenceSaturates(t *testing.T) {
	pol := testPolicy()
	prev := 0.0
	for n := 0; n <= 400; n += 10 {
		c := pol.Confidence(n)
		if c < prev {
			t.Fatalf("confidence decreased at %d", n)
		}
		prev = c
	}
	if pol.Confidence(10000) != 1 {
		t.Errorf("confidence did not saturate at 1")
	}
}
