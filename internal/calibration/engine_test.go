package calibration

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(Config{BucketCount: 10, Policy: testPolicy(), Workers: 4})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	e.now = func() time.Time { return baseTime }
	e.newID = func() string { return "run-1" }
	return e
}

func TestAnalyzeScenario(t *testing.T) {
	markets, points := scenarioInput()
	open := testMarket("open-market", domain.OutcomeUnresolved)
	markets = append(markets, open)

	quotes := map[string]domain.Quote{
		open.NoTokenID: {
			ContractID: open.NoTokenID,
			BestBid:    domain.SomePrice(0.07),
			BestAsk:    domain.SomePrice(0.09),
			Timestamp:  baseTime,
		},
	}

	report, err := newTestEngine(t).Analyze(Input{Markets: markets, Points: points, Quotes: quotes})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(report.Edges) != 1 {
		t.Fatalf("edges = %d, want 1", len(report.Edges))
	}
	got := report.Edges[0]
	if got.MarketID != open.ID || got.Side != domain.SideNo {
		t.Errorf("edge for %s/%s, want %s/NO", got.MarketID, got.Side, open.ID)
	}
	if got.Recommendation != domain.BuyThisSide {
		t.Errorf("recommendation = %s, want BUY_THIS_SIDE", got.Recommendation)
	}
	if math.Abs(got.RealizedWinRate-0.988) > 1e-9 {
		t.Errorf("win rate = %v, want 0.988", got.RealizedWinRate)
	}
	if math.Abs(got.EdgeMagnitude-0.908) > 1e-9 {
		t.Errorf("edge = %v, want 0.908", got.EdgeMagnitude)
	}

	s := report.Summary
	if s.Markets != 3 || s.ResolvedMarkets != 2 || s.PointsUsed != 1000 {
		t.Errorf("unexpected summary %+v", s)
	}
	if s.QuotesEvaluated != 1 || s.QuotesMissing != 1 || s.EdgesFound != 1 {
		t.Errorf("unexpected quote counts %+v", s)
	}
	if report.RunID != "run-1" || !report.GeneratedAt.Equal(baseTime) || report.BucketCount != 10 {
		t.Errorf("unexpected report header %+v", report)
	}
}

func TestAnalyzeRawHistory(t *testing.T) {
	resolved := testMarket("resolved", domain.OutcomeYes)
	open := testMarket("open", domain.OutcomeUnresolved)

	var pairs FlatSeries
	for i := 0; i < 40; i++ {
		pairs = append(pairs, []any{float64(1700000000 + i*3600), 0.35})
	}
	pairs = append(pairs, []any{"bad"})

	in := Input{
		Markets: []domain.Market{resolved, open},
		History: map[string]RawSeries{resolved.YesTokenID: pairs},
		Quotes: map[string]domain.Quote{
			open.YesTokenID: {ContractID: open.YesTokenID, BestAsk: domain.SomePrice(0.36), Timestamp: baseTime},
			open.NoTokenID:  {ContractID: open.NoTokenID},
		},
	}
	report, err := newTestEngine(t).Analyze(in)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if report.Summary.DroppedMalformed != 1 || report.Summary.PointsUsed != 40 {
		t.Errorf("unexpected summary %+v", report.Summary)
	}
	if len(report.Edges) != 1 || !report.Edges[0].ReducedConfidence {
		t.Fatalf("expected one reduced-confidence edge, got %+v", report.Edges)
	}
	if report.Summary.QuotesMissing != 1 {
		t.Errorf("quotes missing = %d, want 1", report.Summary.QuotesMissing)
	}
}

func TestAnalyzeIsRepeatable(t *testing.T) {
	markets, points := randomInput(99, 40)
	quotes := make(map[string]domain.Quote)
	for i, m := range markets {
		if m.CurrentOutcome().Resolved() {
			continue
		}
		price := float64(i%10)/10 + 0.05
		for _, c := range m.Contracts() {
			quotes[c.ContractID] = domain.Quote{ContractID: c.ContractID, BestBid: domain.SomePrice(price), BestAsk: domain.SomePrice(price), Timestamp: baseTime}
		}
	}
	in := Input{Markets: markets, Points: points, Quotes: quotes}

	e := newTestEngine(t)
	first, err := e.Analyze(in)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	second, err := e.Analyze(in)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated runs produced different reports")
	}
}

func TestAnalyzePartitionMismatchIsFatal(t *testing.T) {
	twenty, _ := NewPartition(20)
	table := mustTable(twenty, record(twenty, 1, domain.SideYes, 100, 0.5))

	_, err := newTestEngine(t).Analyze(Input{Table: table})
	if !errors.Is(err, domain.ErrPartitionMismatch) {
		t.Fatalf("error = %v, want ErrPartitionMismatch", err)
	}
}

func TestNewEngineRejectsBadPolicy(t *testing.T) {
	pol := testPolicy()
	pol.EdgeThreshold = 0
	if _, err := NewEngine(Config{Policy: pol}); err == nil {
		t.Fatal("expected error for zero threshold")
	}
}
