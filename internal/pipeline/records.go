package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/calibration"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// File names of the on-disk snapshots read by the ingestor.
const (
	MarketsFile = "markets_snapshot.json"
	LiveFile    = "live_prices.json"
	HistoryFile = "historical_prices.json"
)

// looseFloat decodes numbers, numeric strings and null.
type looseFloat struct {
	Value float64
	Valid bool
}

func (f *looseFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = looseFloat{}
		return nil
	}
	s := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = looseFloat{}
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("looseFloat: %q: %w", s, err)
	}
	*f = looseFloat{Value: v, Valid: true}
	return nil
}

func (f looseFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

func fromOptional(p domain.OptionalPrice) looseFloat {
	v, ok := p.Get()
	return looseFloat{Value: v, Valid: ok}
}

func (f looseFloat) optional() domain.OptionalPrice {
	if !f.Valid {
		return domain.NoPrice()
	}
	return domain.SomePrice(f.Value)
}

// MarketRecord is one entry of markets_snapshot.json.
type MarketRecord struct {
	MarketID      string     `json:"market_id"`
	Question      string     `json:"question"`
	Outcomes      []string   `json:"outcomes,omitempty"`
	YesTokenID    string     `json:"yes_token_id"`
	NoTokenID     string     `json:"no_token_id"`
	EndingTime    string     `json:"ending_time,omitempty"`
	EndDateISO    string     `json:"end_date_iso,omitempty"`
	Category      string     `json:"category"`
	Tags          []string   `json:"tags,omitempty"`
	State         string     `json:"state"`
	Closed        bool       `json:"closed"`
	Volume        looseFloat `json:"volume"`
	Liquidity     looseFloat `json:"liquidity"`
	URL           string     `json:"url,omitempty"`
	Outcome       string     `json:"outcome,omitempty"`
	ResolvedAt    string     `json:"resolved_at,omitempty"`
	DataUpdatedAt string     `json:"data_updated_at,omitempty"`
}

// NewMarketRecord converts a market for the snapshot file.
func NewMarketRecord(m domain.Market, at time.Time) MarketRecord {
	r := MarketRecord{
		MarketID:      m.ID,
		Question:      m.Question,
		Outcomes:      []string{"Yes", "No"},
		YesTokenID:    m.YesTokenID,
		NoTokenID:     m.NoTokenID,
		Category:      m.Category,
		Tags:          m.Tags,
		State:         string(m.Status),
		Closed:        m.Status == domain.MarketStatusClosed,
		Volume:        looseFloat{Value: m.Volume, Valid: true},
		Liquidity:     looseFloat{Value: m.Liquidity, Valid: true},
		URL:           m.URL,
		DataUpdatedAt: at.UTC().Format(time.RFC3339),
	}
	if m.EndDate != nil {
		r.EndingTime = m.EndDate.UTC().Format(time.RFC3339)
		r.EndDateISO = r.EndingTime
	}
	if o := m.CurrentOutcome(); o.Resolved() {
		r.Outcome = string(o)
		if m.ResolvedAt != nil {
			r.ResolvedAt = m.ResolvedAt.UTC().Format(time.RFC3339)
		}
	}
	return r
}

// Market converts the record back. Records without an id are malformed.
func (r MarketRecord) Market() (domain.Market, error) {
	if r.MarketID == "" {
		return domain.Market{}, fmt.Errorf("market record: %w: missing market_id", domain.ErrMalformedInput)
	}
	m := domain.Market{
		ID:         r.MarketID,
		Question:   r.Question,
		Category:   r.Category,
		YesTokenID: r.YesTokenID,
		NoTokenID:  r.NoTokenID,
		Outcome:    domain.OutcomeUnresolved,
		Status:     domain.MarketStatusActive,
		Volume:     r.Volume.Value,
		Liquidity:  r.Liquidity.Value,
		Tags:       r.Tags,
		URL:        r.URL,
	}
	if m.Category == "" {
		m.Category = "unknown"
	}
	if r.Closed || r.State == string(domain.MarketStatusClosed) {
		m.Status = domain.MarketStatusClosed
	}
	for _, s := range []string{r.EndDateISO, r.EndingTime} {
		if t, err := calibration.ParseTimestamp(s); err == nil && s != "" {
			m.EndDate = &t
			break
		}
	}
	if t, err := calibration.ParseTimestamp(r.DataUpdatedAt); err == nil && r.DataUpdatedAt != "" {
		m.UpdatedAt = t
	}
	if r.Outcome != "" {
		side, err := domain.ParseSide(r.Outcome)
		if err != nil {
			return domain.Market{}, fmt.Errorf("market record %s: %w", r.MarketID, err)
		}
		var at time.Time
		if r.ResolvedAt != "" {
			if t, err := calibration.ParseTimestamp(r.ResolvedAt); err == nil {
				at = t
			}
		}
		if err := m.Resolve(domain.Outcome(side), at); err != nil {
			return domain.Market{}, fmt.Errorf("market record %s: %w", r.MarketID, err)
		}
	}
	return m, nil
}

// LiveRecord is one entry of live_prices.json.
type LiveRecord struct {
	MarketID    string     `json:"market_id"`
	Question    string     `json:"question"`
	YesTokenID  string     `json:"yes_token_id"`
	NoTokenID   string     `json:"no_token_id"`
	YesBestBid  looseFloat `json:"yes_best_bid"`
	YesBestAsk  looseFloat `json:"yes_best_ask"`
	YesMidPrice looseFloat `json:"yes_mid_price"`
	YesSpread   looseFloat `json:"yes_spread"`
	NoBestBid   looseFloat `json:"no_best_bid"`
	NoBestAsk   looseFloat `json:"no_best_ask"`
	NoMidPrice  looseFloat `json:"no_mid_price"`
	NoSpread    looseFloat `json:"no_spread"`
	Timestamp   string     `json:"timestamp"`
}

func mid(q domain.Quote) looseFloat {
	pt, _, ok := q.Midpoint()
	return looseFloat{Value: pt.Price, Valid: ok}
}

// NewLiveRecord flattens a snapshot for live_prices.json.
func NewLiveRecord(s domain.LiveSnapshot) LiveRecord {
	return LiveRecord{
		MarketID:    s.MarketID,
		Question:    s.Question,
		YesTokenID:  s.Yes.ContractID,
		NoTokenID:   s.No.ContractID,
		YesBestBid:  fromOptional(s.Yes.BestBid),
		YesBestAsk:  fromOptional(s.Yes.BestAsk),
		YesMidPrice: mid(s.Yes),
		YesSpread:   fromOptional(s.Yes.Spread()),
		NoBestBid:   fromOptional(s.No.BestBid),
		NoBestAsk:   fromOptional(s.No.BestAsk),
		NoMidPrice:  mid(s.No),
		NoSpread:    fromOptional(s.No.Spread()),
		Timestamp:   s.Time.UTC().Format(time.RFC3339Nano),
	}
}

// Snapshot converts the record back. Market id and timestamp are required.
func (r LiveRecord) Snapshot() (domain.LiveSnapshot, error) {
	if r.MarketID == "" || r.Timestamp == "" {
		return domain.LiveSnapshot{}, fmt.Errorf("live record: %w: missing market_id or timestamp", domain.ErrMalformedInput)
	}
	at, err := calibration.ParseTimestamp(r.Timestamp)
	if err != nil {
		return domain.LiveSnapshot{}, fmt.Errorf("live record %s: %w", r.MarketID, err)
	}
	return domain.LiveSnapshot{
		MarketID: r.MarketID,
		Question: r.Question,
		Yes: domain.Quote{
			ContractID: r.YesTokenID,
			BestBid:    r.YesBestBid.optional(),
			BestAsk:    r.YesBestAsk.optional(),
			Timestamp:  at,
		},
		No: domain.Quote{
			ContractID: r.NoTokenID,
			BestBid:    r.NoBestBid.optional(),
			BestAsk:    r.NoBestAsk.optional(),
			Timestamp:  at,
		},
		Time: at,
	}, nil
}

// HistoryRecord is one value of the historical_prices.json map, keyed by
// market id. The history fields hold the raw prices-history payload.
type HistoryRecord struct {
	MarketID        string          `json:"market_id"`
	Question        string          `json:"question"`
	YesTokenID      string          `json:"yes_token_id"`
	NoTokenID       string          `json:"no_token_id"`
	DataCollectedAt string          `json:"data_collected_at,omitempty"`
	YesHistory      json.RawMessage `json:"yes_history,omitempty"`
	NoHistory       json.RawMessage `json:"no_history,omitempty"`
}

// History returns the raw payload for side.
func (r HistoryRecord) History(side domain.Side) json.RawMessage {
	if side == domain.SideYes {
		return r.YesHistory
	}
	return r.NoHistory
}

// TokenID returns the contract id for side.
func (r HistoryRecord) TokenID(side domain.Side) string {
	if side == domain.SideYes {
		return r.YesTokenID
	}
	return r.NoTokenID
}

// normalizeHistory parses and normalizes one side of a history record.
// Missing payloads produce no points.
func normalizeHistory(marketID string, side domain.Side, contractID string, raw json.RawMessage) ([]domain.SidedPoint, int, error) {
	if len(raw) == 0 {
		return nil, 0, nil
	}
	series, err := calibration.ParseRawSeries(raw)
	if err != nil {
		return nil, 0, err
	}
	norm := calibration.Normalize(contractID, series)
	out := make([]domain.SidedPoint, len(norm.Points))
	for i, p := range norm.Points {
		out[i] = domain.SidedPoint{MarketID: marketID, Side: side, PricePoint: p}
	}
	return out, norm.Dropped, nil
}
