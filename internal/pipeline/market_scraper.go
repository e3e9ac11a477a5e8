package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/blob/s3"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/metrics"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/platform/polymarket"
)

// MarketFetcher retrieves market pages from the Gamma API.
type MarketFetcher interface {
	GetMarkets(ctx context.Context, q polymarket.MarketsQuery) ([]domain.Market, error)
}

// RawArchiver stores raw collector output for later re-ingestion.
type RawArchiver interface {
	PutRaw(ctx context.Context, kind string, at time.Time, v any) (string, error)
}

// ScraperConfig bounds a discovery pass.
type ScraperConfig struct {
	PageSize int
	// MaxMarkets stops discovery after this many markets; 0 is unbounded.
	MaxMarkets    int
	IncludeClosed bool
}

// ScrapeResult counts what a discovery pass did.
type ScrapeResult struct {
	Fetched  int
	Inserted int
	Updated  int
	// Skipped markets lack one of their contract ids.
	Skipped int
}

// MarketScraper pages through Gamma markets and upserts them.
type MarketScraper struct {
	fetcher  MarketFetcher
	store    domain.MarketStore
	archiver RawArchiver
	metrics  *metrics.Metrics
	cfg      ScraperConfig
	now      func() time.Time
	logger   *slog.Logger
}

// NewMarketScraper creates a MarketScraper. archiver and m may be nil.
func NewMarketScraper(fetcher MarketFetcher, store domain.MarketStore, archiver RawArchiver, m *metrics.Metrics, cfg ScraperConfig, logger *slog.Logger) *MarketScraper {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &MarketScraper{
		fetcher:  fetcher,
		store:    store,
		archiver: archiver,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "market_scraper")),
	}
}

// Run pages until a short page or the market cap and upserts each page.
func (s *MarketScraper) Run(ctx context.Context) (ScrapeResult, error) {
	var (
		res     ScrapeResult
		records []MarketRecord
		offset  int
	)
	q := polymarket.MarketsQuery{Limit: s.cfg.PageSize}
	if !s.cfg.IncludeClosed {
		closed := false
		q.Closed = &closed
	}
	started := s.now()

	for {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("market scraper: %w", err)
		}

		q.Offset = offset
		page, err := s.fetcher.GetMarkets(ctx, q)
		if err != nil {
			return res, fmt.Errorf("market scraper: fetch offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}
		res.Fetched += len(page)

		if s.cfg.MaxMarkets > 0 && res.Fetched > s.cfg.MaxMarkets {
			page = page[:len(page)-(res.Fetched-s.cfg.MaxMarkets)]
			res.Fetched = s.cfg.MaxMarkets
		}

		usable := make([]domain.Market, 0, len(page))
		for _, m := range page {
			if !m.HasTokens() {
				res.Skipped++
				continue
			}
			usable = append(usable, m)
			records = append(records, NewMarketRecord(m, started))
		}

		up, err := s.store.UpsertBatch(ctx, usable)
		if err != nil {
			return res, fmt.Errorf("market scraper: upsert %d markets at offset %d: %w", len(usable), offset, err)
		}
		res.Inserted += up.Inserted
		res.Updated += up.Updated

		s.logger.Debug("synced market page",
			slog.Int("offset", offset),
			slog.Int("page", len(page)),
			slog.Int("total", res.Fetched),
		)

		if len(page) < s.cfg.PageSize || (s.cfg.MaxMarkets > 0 && res.Fetched >= s.cfg.MaxMarkets) {
			break
		}
		offset += s.cfg.PageSize
	}

	if s.metrics != nil {
		s.metrics.MarketsDiscovered.Add(float64(res.Fetched))
	}
	if s.archiver != nil && len(records) > 0 {
		path, err := s.archiver.PutRaw(ctx, s3blob.KindMarkets, started, records)
		if err != nil {
			s.logger.Warn("archive market snapshot failed", slog.String("error", err.Error()))
		} else {
			s.logger.Info("archived market snapshot", slog.String("path", path))
		}
	}

	s.logger.Info("market discovery complete",
		slog.Int("fetched", res.Fetched),
		slog.Int("inserted", res.Inserted),
		slog.Int("updated", res.Updated),
		slog.Int("skipped", res.Skipped),
	)
	return res, nil
}
