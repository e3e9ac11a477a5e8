package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery and metadata.
type GammaClient struct {
	f *fetcher
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string, opts ...Option) *GammaClient {
	return &GammaClient{f: newFetcher(baseURL, opts)}
}

// MarketsQuery selects one page of markets.
type MarketsQuery struct {
	Limit  int
	Offset int
	// Closed filters on the closed flag when set.
	Closed *bool
}

// GetMarkets returns a page of markets converted to the domain model.
func (g *GammaClient) GetMarkets(ctx context.Context, q MarketsQuery) ([]domain.Market, error) {
	apiMarkets, err := g.GetMarketsRaw(ctx, q)
	if err != nil {
		return nil, err
	}

	markets := make([]domain.Market, 0, len(apiMarkets))
	for i := range apiMarkets {
		markets = append(markets, apiMarkets[i].ToDomainMarket())
	}
	return markets, nil
}

// GetMarketsRaw returns a page of markets as the API sent them.
func (g *GammaClient) GetMarketsRaw(ctx context.Context, q MarketsQuery) ([]APIMarket, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("offset", strconv.Itoa(q.Offset))
	if q.Closed != nil {
		params.Set("closed", strconv.FormatBool(*q.Closed))
	}

	body, err := g.f.doGet(ctx, "/markets", params)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get markets: %w", err)
	}

	var apiMarkets []APIMarket
	if err := json.Unmarshal(body, &apiMarkets); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	return apiMarkets, nil
}

// GetMarket returns a single market by its ID.
func (g *GammaClient) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	body, err := g.f.doGet(ctx, "/markets/"+url.PathEscape(id), nil)
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: get market %s: %w", id, err)
	}

	var apiMarket APIMarket
	if err := json.Unmarshal(body, &apiMarket); err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: decode market: %w", err)
	}

	return apiMarket.ToDomainMarket(), nil
}
