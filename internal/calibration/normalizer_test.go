package calibration

import (
	"testing"
	"time"
)

func TestNormalizeNestedSeries(t *testing.T) {
	raw, err := ParseRawSeries([]byte(`{"history":[
		{"t": 1700000300, "p": 0.52},
		{"t": "1700000100", "p": "0.50"},
		{"timestamp": 1700000200000, "price": 0.51},
		{"timestamp": "2023-11-14T22:13:20Z", "price": 0.49},
		{"t": 1700000400},
		{"p": 0.4},
		{"t": 1700000500, "p": 1.2},
		{"t": "yesterday", "p": 0.3},
		"garbage"
	]}`))
	if err != nil {
		t.Fatalf("ParseRawSeries failed: %v", err)
	}

	got := Normalize("tok-yes", raw)
	if got.Dropped != 5 {
		t.Errorf("dropped = %d, want 5", got.Dropped)
	}
	want := []struct {
		ts    int64
		price float64
	}{
		{1700000000, 0.49},
		{1700000100, 0.50},
		{1700000200, 0.51},
		{1700000300, 0.52},
	}
	if len(got.Points) != len(want) {
		t.Fatalf("points = %d, want %d", len(got.Points), len(want))
	}
	for i, w := range want {
		p := got.Points[i]
		if p.Timestamp.Unix() != w.ts || p.Price != w.price {
			t.Errorf("point %d = (%d, %v), want (%d, %v)", i, p.Timestamp.Unix(), p.Price, w.ts, w.price)
		}
		if p.ContractID != "tok-yes" {
			t.Errorf("point %d contract = %q", i, p.ContractID)
		}
		if p.Timestamp.Location() != time.UTC {
			t.Errorf("point %d not in UTC", i)
		}
	}
}

func TestNormalizeFlatSeries(t *testing.T) {
	raw, err := ParseRawSeries([]byte(`[[1700000200, 0.2], [1700000100, "0.1"], [1700000300], ["bad", 0.5]]`))
	if err != nil {
		t.Fatalf("ParseRawSeries failed: %v", err)
	}
	if _, ok := raw.(FlatSeries); !ok {
		t.Fatalf("expected FlatSeries, got %T", raw)
	}

	got := Normalize("tok-no", raw)
	if got.Dropped != 2 {
		t.Errorf("dropped = %d, want 2", got.Dropped)
	}
	if len(got.Points) != 2 || got.Points[0].Price != 0.1 || got.Points[1].Price != 0.2 {
		t.Errorf("unexpected points %+v", got.Points)
	}
}

func TestNormalizeKeepsDuplicateTimestamps(t *testing.T) {
	raw := FlatSeries{
		{float64(1700000000), 0.3},
		{float64(1700000000), 0.4},
		{float64(1699999999), 0.2},
	}
	got := Normalize("c", raw)
	if len(got.Points) != 3 {
		t.Fatalf("points = %d, want 3", len(got.Points))
	}
	if got.Points[0].Price != 0.2 || got.Points[1].Price != 0.3 || got.Points[2].Price != 0.4 {
		t.Errorf("duplicates not kept in input order: %+v", got.Points)
	}
}

func TestNormalizeEmptyInputs(t *testing.T) {
	for _, payload := range []string{``, `null`, `[]`, `{}`, `{"history": []}`} {
		raw, err := ParseRawSeries([]byte(payload))
		if err != nil {
			t.Fatalf("ParseRawSeries(%q) failed: %v", payload, err)
		}
		got := Normalize("c", raw)
		if len(got.Points) != 0 || got.Dropped != 0 {
			t.Errorf("payload %q: got %+v, want empty", payload, got)
		}
	}
}

func TestNormalizeCustomKey(t *testing.T) {
	raw := NestedSeries{Key: "prices", Data: map[string]any{
		"prices": []any{map[string]any{"t": float64(1700000000), "p": 0.25}},
	}}
	got := Normalize("c", raw)
	if len(got.Points) != 1 {
		t.Fatalf("points = %d, want 1", len(got.Points))
	}
}

func TestParseRawSeriesRejectsScalars(t *testing.T) {
	if _, err := ParseRawSeries([]byte(`42`)); err == nil {
		t.Fatal("expected error for scalar payload")
	}
}

func TestParseTimestampMilliseconds(t *testing.T) {
	ts, err := ParseTimestamp(float64(1700000000123))
	if err != nil {
		t.Fatalf("ParseTimestamp failed: %v", err)
	}
	if ts.UnixMilli() != 1700000000123 {
		t.Errorf("millis = %d", ts.UnixMilli())
	}
}
