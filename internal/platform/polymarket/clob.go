package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// ClobClient is the public, read-only REST client for the Polymarket CLOB
// API: orderbooks and price history.
type ClobClient struct {
	f   *fetcher
	now func() time.Time
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
func NewClobClient(baseURL string, opts ...Option) *ClobClient {
	return &ClobClient{f: newFetcher(baseURL, opts), now: time.Now}
}

// GetOrderBook returns the orderbook summary for a token.
func (c *ClobClient) GetOrderBook(ctx context.Context, tokenID string) (OrderBookSummary, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	body, err := c.f.doGet(ctx, "/book", params)
	if err != nil {
		return OrderBookSummary{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}

	var book OrderBookSummary
	if err := json.Unmarshal(body, &book); err != nil {
		return OrderBookSummary{}, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}
	return book, nil
}

// GetQuote fetches the orderbook of a token and reduces it to its best bid
// and best ask.
func (c *ClobClient) GetQuote(ctx context.Context, tokenID string) (domain.Quote, error) {
	book, err := c.GetOrderBook(ctx, tokenID)
	if err != nil {
		return domain.Quote{}, err
	}
	q := book.Quote()
	q.ContractID = tokenID
	if q.Timestamp.IsZero() {
		q.Timestamp = c.now().UTC()
	}
	return q, nil
}

// HistoryQuery selects a price history window.
type HistoryQuery struct {
	TokenID string
	// Interval is a named window such as "max", "1w" or "1d". Ignored when
	// StartTs and EndTs are set.
	Interval string
	// Fidelity is the resolution in minutes.
	Fidelity int
	StartTs  int64
	EndTs    int64
}

// GetPriceHistory returns the raw prices-history payload for a token. The
// payload is left undecoded so callers can archive it verbatim and
// normalize it themselves.
func (c *ClobClient) GetPriceHistory(ctx context.Context, q HistoryQuery) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("market", q.TokenID)
	if q.StartTs > 0 && q.EndTs > 0 {
		params.Set("startTs", strconv.FormatInt(q.StartTs, 10))
		params.Set("endTs", strconv.FormatInt(q.EndTs, 10))
	} else if q.Interval != "" {
		params.Set("interval", q.Interval)
	}
	if q.Fidelity > 0 {
		params.Set("fidelity", strconv.Itoa(q.Fidelity))
	}

	body, err := c.f.doGet(ctx, "/prices-history", params)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: get price history %s: %w", q.TokenID, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("polymarket/clob: price history %s: %w: invalid JSON", q.TokenID, domain.ErrMalformedInput)
	}
	return json.RawMessage(body), nil
}
