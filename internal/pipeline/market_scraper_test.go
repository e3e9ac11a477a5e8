package pipeline

import (
	"context"
	"testing"

	s3blob "github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/blob/s3"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/platform/polymarket"
)

type pagedFetcher struct {
	all     []domain.Market
	queries []polymarket.MarketsQuery
}

func (f *pagedFetcher) GetMarkets(_ context.Context, q polymarket.MarketsQuery) ([]domain.Market, error) {
	f.queries = append(f.queries, q)
	if q.Offset >= len(f.all) {
		return nil, nil
	}
	end := min(q.Offset+q.Limit, len(f.all))
	return f.all[q.Offset:end], nil
}

func TestMarketScraperPaginates(t *testing.T) {
	noTokens := market("m3", domain.OutcomeUnresolved)
	noTokens.NoTokenID = ""
	fetcher := &pagedFetcher{all: []domain.Market{
		market("m1", domain.OutcomeUnresolved),
		market("m2", domain.OutcomeUnresolved),
		noTokens,
		market("m4", domain.OutcomeYes),
	}}
	store := newMemMarkets(market("m1", domain.OutcomeUnresolved))
	archiver := &memArchiver{}

	s := NewMarketScraper(fetcher, store, archiver, nil, ScraperConfig{PageSize: 3}, discardLogger())
	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := ScrapeResult{Fetched: 4, Inserted: 2, Updated: 1, Skipped: 1}
	if res != want {
		t.Fatalf("result = %+v, want %+v", res, want)
	}
	if len(fetcher.queries) != 2 || fetcher.queries[1].Offset != 3 {
		t.Fatalf("queries = %+v, want two pages", fetcher.queries)
	}
	if q := fetcher.queries[0]; q.Closed == nil || *q.Closed {
		t.Fatal("active-only discovery must request closed=false")
	}
	records, ok := archiver.raw[s3blob.KindMarkets].([]MarketRecord)
	if !ok || len(records) != 3 {
		t.Fatalf("archived %v, want 3 market records", archiver.raw[s3blob.KindMarkets])
	}
	if records[2].Outcome != "YES" {
		t.Errorf("resolved market record outcome = %q", records[2].Outcome)
	}
}

func TestMarketScraperMaxMarkets(t *testing.T) {
	var all []domain.Market
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		all = append(all, market(id, domain.OutcomeUnresolved))
	}
	fetcher := &pagedFetcher{all: all}
	store := newMemMarkets()

	s := NewMarketScraper(fetcher, store, nil, nil, ScraperConfig{PageSize: 3, MaxMarkets: 5, IncludeClosed: true}, discardLogger())
	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Fetched != 5 || res.Inserted != 5 {
		t.Fatalf("result = %+v, want 5 fetched and inserted", res)
	}
	if n, _ := store.Count(context.Background()); n != 5 {
		t.Fatalf("stored %d markets, want 5", n)
	}
	if fetcher.queries[0].Closed != nil {
		t.Fatal("closed filter should be unset when closed markets are included")
	}
}

func TestMarketScraperCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewMarketScraper(&pagedFetcher{}, newMemMarkets(), nil, nil, ScraperConfig{}, discardLogger())
	if _, err := s.Run(ctx); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}
