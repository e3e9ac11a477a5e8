package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// MarketService defines the reads the market handler needs. It is declared
// locally so the handler package does not depend on the store package.
type MarketService interface {
	GetByID(ctx context.Context, id string) (domain.Market, error)
	List(ctx context.Context, filter domain.MarketFilter) ([]domain.Market, error)
	Count(ctx context.Context) (int64, error)
}

// SnapshotReader returns the latest live snapshot of a market.
type SnapshotReader interface {
	LatestByMarket(ctx context.Context, marketID string) (domain.LiveSnapshot, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	live    SnapshotReader
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler. live may be nil, in which case
// market detail responses carry no quotes.
func NewMarketHandler(markets MarketService, live SnapshotReader, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		live:    live,
		logger:  logger,
	}
}

type marketView struct {
	ID         string     `json:"id"`
	Question   string     `json:"question"`
	Category   string     `json:"category"`
	Slug       string     `json:"slug,omitempty"`
	YesTokenID string     `json:"yes_token_id"`
	NoTokenID  string     `json:"no_token_id"`
	Outcome    string     `json:"outcome"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	Status     string     `json:"status"`
	Volume     float64    `json:"volume"`
	Liquidity  float64    `json:"liquidity"`
	Tags       []string   `json:"tags,omitempty"`
	URL        string     `json:"url,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func newMarketView(m domain.Market) marketView {
	return marketView{
		ID:         m.ID,
		Question:   m.Question,
		Category:   m.Category,
		Slug:       m.Slug,
		YesTokenID: m.YesTokenID,
		NoTokenID:  m.NoTokenID,
		Outcome:    string(m.CurrentOutcome()),
		ResolvedAt: m.ResolvedAt,
		EndDate:    m.EndDate,
		Status:     string(m.Status),
		Volume:     m.Volume,
		Liquidity:  m.Liquidity,
		Tags:       m.Tags,
		URL:        m.URL,
		UpdatedAt:  m.UpdatedAt,
	}
}

type quoteView struct {
	BestBid  *float64 `json:"best_bid"`
	BestAsk  *float64 `json:"best_ask"`
	Midpoint *float64 `json:"midpoint"`
	Spread   *float64 `json:"spread"`
}

func optionalPtr(p domain.OptionalPrice) *float64 {
	if v, ok := p.Get(); ok {
		return &v
	}
	return nil
}

func newQuoteView(q domain.Quote) quoteView {
	v := quoteView{
		BestBid: optionalPtr(q.BestBid),
		BestAsk: optionalPtr(q.BestAsk),
		Spread:  optionalPtr(q.Spread()),
	}
	if pt, _, ok := q.Midpoint(); ok {
		v.Midpoint = &pt.Price
	}
	return v
}

type liveView struct {
	Yes  quoteView `json:"yes"`
	No   quoteView `json:"no"`
	Time time.Time `json:"timestamp"`
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []marketView `json:"markets"`
	Total   int64        `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// ListMarkets returns markets with pagination and optional filters.
// GET /api/markets?status=active&category=politics&resolved=false&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	filter, err := parseMarketFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	markets, err := h.markets.List(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	total, err := h.markets.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count markets")
		return
	}

	views := make([]marketView, len(markets))
	for i, m := range markets {
		views[i] = newMarketView(m)
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: views,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	})
}

// GetMarket returns a single market by its ID with its latest quotes.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	resp := struct {
		marketView
		Live *liveView `json:"live,omitempty"`
	}{marketView: newMarketView(market)}

	if h.live != nil {
		snap, err := h.live.LatestByMarket(r.Context(), id)
		switch {
		case err == nil:
			resp.Live = &liveView{Yes: newQuoteView(snap.Yes), No: newQuoteView(snap.No), Time: snap.Time}
		case !errors.Is(err, domain.ErrNotFound):
			h.logger.WarnContext(r.Context(), "handler: latest snapshot failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
