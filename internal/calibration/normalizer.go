package calibration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// DefaultHistoryKey is the key the CLOB prices-history endpoint nests its
// series under.
const DefaultHistoryKey = "history"

// millisThreshold separates unix seconds from unix milliseconds.
const millisThreshold = 1e12

// RawSeries is historical price data in one of the shapes upstream sources
// emit. It is resolved once, by Normalize.
type RawSeries interface {
	rawSeries()
}

// FlatSeries is a sequence of [timestamp, price] pairs.
type FlatSeries [][]any

// NestedSeries holds the sequence under Key inside a mapping. Items are
// objects carrying t/p or timestamp/price.
type NestedSeries struct {
	Key  string
	Data map[string]any
}

func (FlatSeries) rawSeries()   {}
func (NestedSeries) rawSeries() {}

// ParseRawSeries decodes a JSON payload into a RawSeries. An array of pairs
// becomes a FlatSeries, an array of objects or a mapping becomes a
// NestedSeries. null and empty input yield an empty FlatSeries.
func ParseRawSeries(data []byte) (RawSeries, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return FlatSeries{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: decode series: %v", domain.ErrMalformedInput, err)
	}

	switch t := v.(type) {
	case map[string]any:
		return NestedSeries{Key: DefaultHistoryKey, Data: t}, nil
	case []any:
		if len(t) > 0 {
			if _, ok := t[0].(map[string]any); ok {
				return NestedSeries{Key: DefaultHistoryKey, Data: map[string]any{DefaultHistoryKey: t}}, nil
			}
		}
		flat := make(FlatSeries, 0, len(t))
		for _, item := range t {
			pair, _ := item.([]any)
			flat = append(flat, pair)
		}
		return flat, nil
	}
	return nil, fmt.Errorf("%w: series must be an array or object", domain.ErrMalformedInput)
}

// Normalized is the output of Normalize.
type Normalized struct {
	Points  []domain.PricePoint
	Dropped int
}

// Normalize converts a raw series into points ordered by timestamp. Points
// with missing or unparseable fields, or prices outside [0,1], are dropped
// and counted. Points sharing a timestamp are all kept in input order.
func Normalize(contractID string, raw RawSeries) Normalized {
	var out Normalized

	add := func(ts any, price any, present bool) {
		if !present {
			out.Dropped++
			return
		}
		pt, err := parsePoint(contractID, ts, price)
		if err != nil {
			out.Dropped++
			return
		}
		out.Points = append(out.Points, pt)
	}

	switch s := raw.(type) {
	case FlatSeries:
		for _, pair := range s {
			if len(pair) < 2 {
				add(nil, nil, false)
				continue
			}
			add(pair[0], pair[1], true)
		}
	case NestedSeries:
		key := s.Key
		if key == "" {
			key = DefaultHistoryKey
		}
		items, ok := s.Data[key].([]any)
		if !ok {
			return out
		}
		for _, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				add(nil, nil, false)
				continue
			}
			ts, hasTS := field(obj, "t", "timestamp")
			price, hasPrice := field(obj, "p", "price")
			add(ts, price, hasTS && hasPrice)
		}
	}

	sort.SliceStable(out.Points, func(i, j int) bool {
		return out.Points[i].Timestamp.Before(out.Points[j].Timestamp)
	})
	return out
}

// NormalizePoints validates already-structured points, dropping invalid
// prices, and returns them ordered by timestamp.
func NormalizePoints(points []domain.PricePoint) Normalized {
	out := Normalized{Points: make([]domain.PricePoint, 0, len(points))}
	for _, p := range points {
		if p.Timestamp.IsZero() || !domain.ValidPrice(p.Price) {
			out.Dropped++
			continue
		}
		out.Points = append(out.Points, p)
	}
	sort.SliceStable(out.Points, func(i, j int) bool {
		return out.Points[i].Timestamp.Before(out.Points[j].Timestamp)
	})
	return out
}

func field(obj map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func parsePoint(contractID string, rawTS, rawPrice any) (domain.PricePoint, error) {
	ts, err := ParseTimestamp(rawTS)
	if err != nil {
		return domain.PricePoint{}, err
	}
	price, err := parseNumber(rawPrice)
	if err != nil {
		return domain.PricePoint{}, err
	}
	if !domain.ValidPrice(price) {
		return domain.PricePoint{}, fmt.Errorf("%w: price %v outside [0,1]", domain.ErrMalformedInput, price)
	}
	return domain.PricePoint{ContractID: contractID, Timestamp: ts, Price: price}, nil
}

// ParseTimestamp accepts unix seconds, unix milliseconds, numeric strings
// of either, and RFC 3339 strings. Results are in UTC.
func ParseTimestamp(v any) (time.Time, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			t, perr := time.Parse(time.RFC3339Nano, s)
			if perr != nil {
				return time.Time{}, fmt.Errorf("%w: timestamp %q", domain.ErrMalformedInput, s)
			}
			return t.UTC(), nil
		}
	}

	f, err := parseNumber(v)
	if err != nil {
		return time.Time{}, err
	}
	if f < 0 {
		return time.Time{}, fmt.Errorf("%w: negative timestamp %v", domain.ErrMalformedInput, f)
	}
	if f > millisThreshold {
		ms := int64(f)
		return time.UnixMilli(ms).UTC(), nil
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

func parseNumber(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: number %q", domain.ErrMalformedInput, n)
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: number %q", domain.ErrMalformedInput, n)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%w: unsupported value %T", domain.ErrMalformedInput, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: non-finite number", domain.ErrMalformedInput)
	}
	return f, nil
}
