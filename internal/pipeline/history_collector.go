package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/blob/s3"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/metrics"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/platform/polymarket"
)

// HistoryFetcher returns the raw prices-history payload of one contract.
type HistoryFetcher interface {
	GetPriceHistory(ctx context.Context, q polymarket.HistoryQuery) (json.RawMessage, error)
}

// HistoryConfig selects the prices-history granularity.
type HistoryConfig struct {
	Interval    string
	Fidelity    int
	Concurrency int
}

// HistoryResult counts what a history pass did.
type HistoryResult struct {
	Markets  int
	Points   int
	Inserted int64
	Dropped  int
	Failed   int
}

// HistoryCollector fetches, normalizes and stores price history for every
// market with both contract ids, resolved or not.
type HistoryCollector struct {
	markets  domain.MarketStore
	fetcher  HistoryFetcher
	store    domain.PriceHistoryStore
	archiver RawArchiver
	metrics  *metrics.Metrics
	cfg      HistoryConfig
	now      func() time.Time
	logger   *slog.Logger
}

// NewHistoryCollector creates a HistoryCollector. archiver and m may be nil.
func NewHistoryCollector(markets domain.MarketStore, fetcher HistoryFetcher, store domain.PriceHistoryStore, archiver RawArchiver, m *metrics.Metrics, cfg HistoryConfig, logger *slog.Logger) *HistoryCollector {
	if cfg.Interval == "" {
		cfg.Interval = "max"
	}
	if cfg.Fidelity <= 0 {
		cfg.Fidelity = 60
	}
	cfg.Concurrency = max(cfg.Concurrency, 1)
	return &HistoryCollector{
		markets:  markets,
		fetcher:  fetcher,
		store:    store,
		archiver: archiver,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "history_collector")),
	}
}

// fetch returns the market's history record. A side that fails to download
// is left empty and reported through err.
func (c *HistoryCollector) fetch(ctx context.Context, m domain.Market) (HistoryRecord, error) {
	rec := HistoryRecord{
		MarketID:        m.ID,
		Question:        m.Question,
		YesTokenID:      m.YesTokenID,
		NoTokenID:       m.NoTokenID,
		DataCollectedAt: c.now().UTC().Format(time.RFC3339),
	}
	var firstErr error
	for _, side := range domain.Sides {
		raw, err := c.fetcher.GetPriceHistory(ctx, polymarket.HistoryQuery{
			TokenID:  m.TokenID(side),
			Interval: c.cfg.Interval,
			Fidelity: c.cfg.Fidelity,
		})
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s %s: %w", m.ID, side, err)
			}
			continue
		}
		if side == domain.SideYes {
			rec.YesHistory = raw
		} else {
			rec.NoHistory = raw
		}
	}
	return rec, firstErr
}

// Run downloads history concurrently and stores it market by market.
func (c *HistoryCollector) Run(ctx context.Context) (HistoryResult, error) {
	var res HistoryResult
	all, err := c.markets.List(ctx, domain.MarketFilter{})
	if err != nil {
		return res, fmt.Errorf("history collector: list markets: %w", err)
	}
	markets := make([]domain.Market, 0, len(all))
	for _, m := range all {
		if m.HasTokens() {
			markets = append(markets, m)
		}
	}
	res.Markets = len(markets)

	records := make([]HistoryRecord, len(markets))
	failed := make([]bool, len(markets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, m := range markets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := c.fetch(gctx, m)
			if err != nil {
				c.logger.Debug("history fetch failed", slog.String("error", err.Error()))
				failed[i] = true
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("history collector: %w", err)
	}

	archive := make(map[string]HistoryRecord, len(records))
	for i, rec := range records {
		if failed[i] {
			res.Failed++
		}
		inserted, points, dropped, err := storeHistory(ctx, c.store, rec)
		if err != nil {
			return res, fmt.Errorf("history collector: %w", err)
		}
		res.Points += points
		res.Inserted += inserted
		res.Dropped += dropped
		archive[rec.MarketID] = rec
	}

	if c.metrics != nil {
		c.metrics.HistoryPoints.WithLabelValues("inserted").Add(float64(res.Inserted))
		c.metrics.HistoryPoints.WithLabelValues("duplicate").Add(float64(int64(res.Points) - res.Inserted))
		c.metrics.HistoryPoints.WithLabelValues("dropped").Add(float64(res.Dropped))
	}
	if c.archiver != nil && len(archive) > 0 {
		if _, err := c.archiver.PutRaw(ctx, s3blob.KindHistory, c.now(), archive); err != nil {
			c.logger.Warn("archive price history failed", slog.String("error", err.Error()))
		}
	}

	c.logger.Info("history collection complete",
		slog.Int("markets", res.Markets),
		slog.Int("points", res.Points),
		slog.Int64("inserted", res.Inserted),
		slog.Int("dropped", res.Dropped),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}

// storeHistory normalizes both sides of rec and inserts them. Payloads that
// are not a recognizable series count every point as dropped.
func storeHistory(ctx context.Context, store domain.PriceHistoryStore, rec HistoryRecord) (inserted int64, points, dropped int, err error) {
	var batch []domain.SidedPoint
	for _, side := range domain.Sides {
		if rec.TokenID(side) == "" {
			continue
		}
		pts, d, perr := normalizeHistory(rec.MarketID, side, rec.TokenID(side), rec.History(side))
		if perr != nil {
			dropped++
			continue
		}
		dropped += d
		batch = append(batch, pts...)
	}
	if len(batch) == 0 {
		return 0, 0, dropped, nil
	}
	inserted, err = store.InsertBatch(ctx, batch)
	if err != nil {
		return 0, 0, dropped, fmt.Errorf("store history %s: %w", rec.MarketID, err)
	}
	return inserted, len(batch), dropped, nil
}
