package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// minTokenIDLen rejects placeholder token ids; real CLOB ids are long
// decimal strings.
const minTokenIDLen = 11

// eventURLBase prefixes market slugs to build their public page URL.
const eventURLBase = "https://polymarket.com/event/"

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat accepts a JSON number or numeric string. Anything else decodes
// to zero.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*f = flexFloat(v)
		}
	}
	return nil
}

// flexStrings accepts a JSON array or a JSON-encoded array inside a string,
// e.g. clobTokenIds: "[\"123\",\"456\"]". Elements may be strings or
// numbers. Unparseable input decodes to an empty list.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		data = []byte(s)
	}
	var items []any
	if err := json.Unmarshal(data, &items); err != nil {
		*f = nil
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case string:
			out = append(out, v)
		case float64:
			out = append(out, strconv.FormatFloat(v, 'f', -1, 64))
		case map[string]any:
			// Tags arrive as objects with a label.
			if label, ok := v["label"].(string); ok {
				out = append(out, label)
			}
		}
	}
	*f = out
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the Polymarket Gamma API.
type APIMarket struct {
	ID            string      `json:"id"`
	ConditionID   string      `json:"conditionId"`
	Question      string      `json:"question"`
	Slug          string      `json:"slug"`
	Category      string      `json:"category"`
	Active        flexBool    `json:"active"`
	Closed        flexBool    `json:"closed"`
	Outcomes      flexStrings `json:"outcomes"`
	OutcomePrices flexStrings `json:"outcomePrices"`
	ClobTokenIDs  flexStrings `json:"clobTokenIds"`
	Tokens        []Token     `json:"tokens"`
	Tags          flexStrings `json:"tags"`
	Volume        flexFloat   `json:"volume"`
	Liquidity     flexFloat   `json:"liquidity"`
	EndDate       string      `json:"endDate"`
	EndDateISO    string      `json:"end_date_iso"`
	ClosedTime    string      `json:"closedTime"`
	UpdatedAt     string      `json:"updatedAt"`
}

// Token represents a token entry inside the Gamma API market response.
type Token struct {
	TokenID    string   `json:"token_id"`
	TokenIDAlt string   `json:"tokenId"`
	Outcome    string   `json:"outcome"`
	Winner     flexBool `json:"winner"`
}

func (t Token) id() string {
	if t.TokenID != "" {
		return t.TokenID
	}
	return t.TokenIDAlt
}

// MarketID returns the Gamma id, falling back to the condition id.
func (m *APIMarket) MarketID() string {
	if m.ID != "" {
		return m.ID
	}
	return m.ConditionID
}

// TokenIDs extracts the YES and NO token ids. clobTokenIds is tried first
// ([yes, no] order); the tokens array is the fallback. Ids that are too short
// to be real are ignored.
func (m *APIMarket) TokenIDs() (yes, no string) {
	if len(m.ClobTokenIDs) >= 2 {
		y, n := m.ClobTokenIDs[0], m.ClobTokenIDs[1]
		if len(y) >= minTokenIDLen && len(n) >= minTokenIDLen {
			return y, n
		}
	}
	for _, t := range m.Tokens {
		id := t.id()
		if len(id) < minTokenIDLen {
			continue
		}
		switch strings.ToLower(t.Outcome) {
		case "yes":
			yes = id
		case "no":
			no = id
		}
	}
	return yes, no
}

// Outcome derives the resolution of a closed market from token winner flags
// or, failing that, from settled outcome prices of 1 and 0.
func (m *APIMarket) Outcome() domain.Outcome {
	if !m.Closed {
		return domain.OutcomeUnresolved
	}
	for _, t := range m.Tokens {
		if !t.Winner {
			continue
		}
		switch strings.ToLower(t.Outcome) {
		case "yes":
			return domain.OutcomeYes
		case "no":
			return domain.OutcomeNo
		}
	}

	if len(m.OutcomePrices) < 2 {
		return domain.OutcomeUnresolved
	}
	yesIdx, noIdx := 0, 1
	if len(m.Outcomes) >= 2 && strings.EqualFold(m.Outcomes[0], "no") {
		yesIdx, noIdx = 1, 0
	}
	yes, err1 := strconv.ParseFloat(m.OutcomePrices[yesIdx], 64)
	no, err2 := strconv.ParseFloat(m.OutcomePrices[noIdx], 64)
	if err1 != nil || err2 != nil {
		return domain.OutcomeUnresolved
	}
	switch {
	case yes >= 0.99 && no <= 0.01:
		return domain.OutcomeYes
	case no >= 0.99 && yes <= 0.01:
		return domain.OutcomeNo
	}
	return domain.OutcomeUnresolved
}

// ToDomainMarket converts an APIMarket to a domain.Market.
func (m *APIMarket) ToDomainMarket() domain.Market {
	yes, no := m.TokenIDs()
	dm := domain.Market{
		ID:         m.MarketID(),
		Question:   m.Question,
		Category:   m.Category,
		Slug:       m.Slug,
		YesTokenID: yes,
		NoTokenID:  no,
		Outcome:    domain.OutcomeUnresolved,
		Status:     domain.MarketStatusActive,
		Volume:     float64(m.Volume),
		Liquidity:  float64(m.Liquidity),
		Tags:       []string(m.Tags),
		UpdatedAt:  time.Now().UTC(),
	}
	if dm.Category == "" {
		dm.Category = "unknown"
	}
	if m.Closed {
		dm.Status = domain.MarketStatusClosed
	}

	ref := m.Slug
	if ref == "" {
		ref = dm.ID
	}
	dm.URL = eventURLBase + ref

	end := m.EndDateISO
	if end == "" {
		end = m.EndDate
	}
	if t, ok := parseTime(end); ok {
		dm.EndDate = &t
	}
	if t, ok := parseTime(m.UpdatedAt); ok {
		dm.UpdatedAt = t
	}
	if o := m.Outcome(); o.Resolved() {
		closedAt, _ := parseTime(m.ClosedTime)
		// dm is freshly built and unresolved, so Resolve cannot fail.
		_ = dm.Resolve(o, closedAt)
	}
	return dm
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// PriceLevel is a single bid/ask level as the CLOB API sends it.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// OrderBookSummary is the /book response for one token.
type OrderBookSummary struct {
	Market    string       `json:"market"`
	AssetID   string       `json:"asset_id"`
	Hash      string       `json:"hash"`
	Timestamp string       `json:"timestamp"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
}

// BestBid returns the highest bid price. Levels that fail to parse are
// skipped; levels are not assumed to be sorted.
func (b OrderBookSummary) BestBid() (decimal.Decimal, bool) {
	return bestLevel(b.Bids, func(p, best decimal.Decimal) bool { return p.GreaterThan(best) })
}

// BestAsk returns the lowest ask price.
func (b OrderBookSummary) BestAsk() (decimal.Decimal, bool) {
	return bestLevel(b.Asks, func(p, best decimal.Decimal) bool { return p.LessThan(best) })
}

func bestLevel(levels []PriceLevel, better func(p, best decimal.Decimal) bool) (decimal.Decimal, bool) {
	var (
		best  decimal.Decimal
		found bool
	)
	for _, l := range levels {
		p, err := decimal.NewFromString(strings.TrimSpace(l.Price))
		if err != nil {
			continue
		}
		if !found || better(p, best) {
			best, found = p, true
		}
	}
	return best, found
}

// Quote reduces the book to a domain quote. The timestamp is taken from the
// book when it carries one (unix milliseconds).
func (b OrderBookSummary) Quote() domain.Quote {
	q := domain.Quote{ContractID: b.AssetID}
	if bid, ok := b.BestBid(); ok {
		q.BestBid = domain.SomePrice(bid.InexactFloat64())
	}
	if ask, ok := b.BestAsk(); ok {
		q.BestAsk = domain.SomePrice(ask.InexactFloat64())
	}
	if ms, err := strconv.ParseInt(b.Timestamp, 10, 64); err == nil && ms > 0 {
		q.Timestamp = time.UnixMilli(ms).UTC()
	}
	return q
}
