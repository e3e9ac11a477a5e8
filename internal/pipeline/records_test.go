package pipeline

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

func TestLooseFloat(t *testing.T) {
	tests := []struct {
		in    string
		want  float64
		valid bool
	}{
		{`0.42`, 0.42, true},
		{`"0.42"`, 0.42, true},
		{`""`, 0, false},
		{`null`, 0, false},
		{`12345`, 12345, true},
	}
	for _, tt := range tests {
		var f looseFloat
		if err := json.Unmarshal([]byte(tt.in), &f); err != nil {
			t.Fatalf("Unmarshal(%s): %v", tt.in, err)
		}
		if f.Valid != tt.valid || f.Value != tt.want {
			t.Errorf("Unmarshal(%s) = %+v, want %v/%v", tt.in, f, tt.want, tt.valid)
		}
	}

	var f looseFloat
	if err := json.Unmarshal([]byte(`"abc"`), &f); err == nil {
		t.Error("expected error for non-numeric string")
	}
}

func TestMarketRecordRoundTrip(t *testing.T) {
	end := time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC)
	m := market("m1", domain.OutcomeUnresolved)
	m.EndDate = &end
	m.Volume = 1500
	if err := m.Resolve(domain.OutcomeNo, baseTime); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	got, err := NewMarketRecord(m, baseTime).Market()
	if err != nil {
		t.Fatalf("Market: %v", err)
	}
	if got.Outcome != domain.OutcomeNo || got.ResolvedAt == nil || !got.ResolvedAt.Equal(baseTime) {
		t.Fatalf("outcome = %q resolved_at = %v", got.Outcome, got.ResolvedAt)
	}
	if got.Status != domain.MarketStatusClosed {
		t.Errorf("status = %q, want closed", got.Status)
	}
	if got.EndDate == nil || !got.EndDate.Equal(end) {
		t.Errorf("end date = %v, want %v", got.EndDate, end)
	}
	if got.YesTokenID != m.YesTokenID || got.Volume != 1500 {
		t.Errorf("market = %+v", got)
	}
}

func TestMarketRecordDecode(t *testing.T) {
	raw := `{"market_id":"0xabc","question":"Will it rain?","yes_token_id":"1","no_token_id":"2",
		"category":"","state":"active","closed":false,"volume":"1234.5","liquidity":null,"outcome":"yes"}`
	var r MarketRecord
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	m, err := r.Market()
	if err != nil {
		t.Fatalf("Market: %v", err)
	}
	if m.Category != "unknown" || m.Volume != 1234.5 || m.Liquidity != 0 {
		t.Errorf("market = %+v", m)
	}
	if m.Outcome != domain.OutcomeYes {
		t.Errorf("outcome = %q, want YES", m.Outcome)
	}
	if m.Status != domain.MarketStatusClosed || m.ResolvedAt != nil {
		t.Errorf("status = %q resolved_at = %v, want closed with unknown time", m.Status, m.ResolvedAt)
	}

	if _, err := (MarketRecord{}).Market(); !errors.Is(err, domain.ErrMalformedInput) {
		t.Errorf("missing id: err = %v, want ErrMalformedInput", err)
	}
	if _, err := (MarketRecord{MarketID: "x", Outcome: "maybe"}).Market(); !errors.Is(err, domain.ErrMalformedInput) {
		t.Errorf("bad outcome: err = %v, want ErrMalformedInput", err)
	}
}

func TestLiveRecordRoundTrip(t *testing.T) {
	snap := domain.LiveSnapshot{
		MarketID: "m1",
		Question: "Question m1",
		Yes:      domain.Quote{ContractID: "y", BestBid: domain.SomePrice(0.40), BestAsk: domain.SomePrice(0.50)},
		No:       domain.Quote{ContractID: "n", BestBid: domain.SomePrice(0.52)},
		Time:     baseTime,
	}
	rec := NewLiveRecord(snap)
	if !rec.YesMidPrice.Valid || rec.YesMidPrice.Value != 0.45 {
		t.Errorf("yes mid = %+v", rec.YesMidPrice)
	}
	if rec.NoSpread.Valid {
		t.Errorf("one-sided book has spread %+v", rec.NoSpread)
	}

	got, err := rec.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !got.Time.Equal(baseTime) || got.No.BestAsk.Valid || got.No.BestBid.Value != 0.52 {
		t.Errorf("snapshot = %+v", got)
	}

	if _, err := (LiveRecord{MarketID: "m1"}).Snapshot(); !errors.Is(err, domain.ErrMalformedInput) {
		t.Errorf("missing timestamp: err = %v", err)
	}
}

func TestNormalizeHistory(t *testing.T) {
	raw := json.RawMessage(`{"history":[{"t":1700003600,"p":0.5},{"t":1700000000,"p":0.4},{"t":1700007200},{"t":1700010800,"p":-0.1}]}`)
	pts, dropped, err := normalizeHistory("m1", domain.SideYes, "tok", raw)
	if err != nil {
		t.Fatalf("normalizeHistory: %v", err)
	}
	if len(pts) != 2 || dropped != 2 {
		t.Fatalf("points = %d dropped = %d, want 2/2", len(pts), dropped)
	}
	if pts[0].Price != 0.4 || pts[0].MarketID != "m1" || pts[0].Side != domain.SideYes || pts[0].ContractID != "tok" {
		t.Errorf("first point = %+v", pts[0])
	}

	if pts, _, err := normalizeHistory("m1", domain.SideNo, "tok", nil); err != nil || len(pts) != 0 {
		t.Errorf("empty payload: %v %v", pts, err)
	}
	if _, _, err := normalizeHistory("m1", domain.SideNo, "tok", json.RawMessage(`"nope"`)); err == nil {
		t.Error("expected error for scalar payload")
	}
}
