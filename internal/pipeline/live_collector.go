package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/blob/s3"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/metrics"
)

// QuoteFetcher returns the best bid/ask of one contract.
type QuoteFetcher interface {
	GetQuote(ctx context.Context, tokenID string) (domain.Quote, error)
}

// CollectResult counts what a live collection pass did.
type CollectResult struct {
	Markets int
	Stored  int
	// Duplicates were already stored for the same market and time.
	Duplicates int
	// MissingQuotes counts sides whose book could not be fetched or was
	// empty.
	MissingQuotes int
	// Failed markets had neither side available.
	Failed int
}

// LiveCollector snapshots the orderbooks of every open market.
type LiveCollector struct {
	markets     domain.MarketStore
	quotes      QuoteFetcher
	store       domain.LiveSnapshotStore
	cache       domain.QuoteCache
	archiver    RawArchiver
	bus         domain.SignalBus
	metrics     *metrics.Metrics
	concurrency int
	now         func() time.Time
	logger      *slog.Logger
}

// NewLiveCollector creates a LiveCollector. cache, archiver and m may be nil.
func NewLiveCollector(markets domain.MarketStore, quotes QuoteFetcher, store domain.LiveSnapshotStore, cache domain.QuoteCache, archiver RawArchiver, m *metrics.Metrics, concurrency int, logger *slog.Logger) *LiveCollector {
	return &LiveCollector{
		markets:     markets,
		quotes:      quotes,
		store:       store,
		cache:       cache,
		archiver:    archiver,
		metrics:     m,
		concurrency: max(concurrency, 1),
		now:         time.Now,
		logger:      logger.With(slog.String("component", "live_collector")),
	}
}

// WithBus publishes every stored snapshot on domain.ChannelSnapshots.
func (c *LiveCollector) WithBus(bus domain.SignalBus) *LiveCollector {
	c.bus = bus
	return c
}

// openMarkets lists unresolved markets that carry both contract ids.
func openMarkets(ctx context.Context, store domain.MarketStore) ([]domain.Market, error) {
	unresolved := false
	all, err := store.List(ctx, domain.MarketFilter{Resolved: &unresolved})
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, m := range all {
		if m.HasTokens() && m.Status != domain.MarketStatusClosed {
			out = append(out, m)
		}
	}
	return out, nil
}

// snapshot fetches both books of m. ok is false when neither side returned
// a price.
func (c *LiveCollector) snapshot(ctx context.Context, m domain.Market) (snap domain.LiveSnapshot, missing int, ok bool) {
	at := c.now().UTC()
	snap = domain.LiveSnapshot{MarketID: m.ID, Question: m.Question, Time: at}
	for _, side := range domain.Sides {
		token := m.TokenID(side)
		q, err := c.quotes.GetQuote(ctx, token)
		if err != nil {
			c.logger.Debug("orderbook fetch failed",
				slog.String("market_id", m.ID),
				slog.String("side", string(side)),
				slog.String("error", err.Error()),
			)
			q = domain.Quote{ContractID: token}
		}
		q.Timestamp = at
		if _, _, has := q.Midpoint(); has {
			ok = true
		} else {
			missing++
		}
		if side == domain.SideYes {
			snap.Yes = q
		} else {
			snap.No = q
		}
	}
	return snap, missing, ok
}

// Run fetches every open market's books concurrently, then stores the
// snapshots in market order.
func (c *LiveCollector) Run(ctx context.Context) (CollectResult, error) {
	var res CollectResult
	markets, err := openMarkets(ctx, c.markets)
	if err != nil {
		return res, fmt.Errorf("live collector: list markets: %w", err)
	}
	res.Markets = len(markets)

	type outcome struct {
		snap    domain.LiveSnapshot
		missing int
		ok      bool
	}
	results := make([]outcome, len(markets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, m := range markets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			snap, missing, ok := c.snapshot(gctx, m)
			results[i] = outcome{snap: snap, missing: missing, ok: ok}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("live collector: %w", err)
	}

	records := make([]LiveRecord, 0, len(results))
	for _, r := range results {
		res.MissingQuotes += r.missing
		if !r.ok {
			res.Failed++
			continue
		}
		inserted, err := c.store.Insert(ctx, r.snap)
		if err != nil {
			return res, fmt.Errorf("live collector: %w", err)
		}
		if !inserted {
			res.Duplicates++
			continue
		}
		res.Stored++
		rec := NewLiveRecord(r.snap)
		records = append(records, rec)

		if c.cache != nil {
			if err := c.cache.SetSnapshot(ctx, r.snap); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Warn("cache snapshot failed",
					slog.String("market_id", r.snap.MarketID),
					slog.String("error", err.Error()),
				)
			}
		}
		if c.bus != nil {
			c.publish(ctx, rec)
		}
	}

	if c.metrics != nil {
		c.metrics.SnapshotsStored.Add(float64(res.Stored))
		c.metrics.QuotesMissing.Add(float64(res.MissingQuotes))
	}
	if c.archiver != nil && len(records) > 0 {
		if _, err := c.archiver.PutRaw(ctx, s3blob.KindLive, c.now(), records); err != nil {
			c.logger.Warn("archive live prices failed", slog.String("error", err.Error()))
		}
	}

	c.logger.Info("live collection complete",
		slog.Int("markets", res.Markets),
		slog.Int("stored", res.Stored),
		slog.Int("duplicates", res.Duplicates),
		slog.Int("missing_quotes", res.MissingQuotes),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}

func (c *LiveCollector) publish(ctx context.Context, rec LiveRecord) {
	payload, err := json.Marshal(rec)
	if err == nil {
		err = c.bus.Publish(ctx, domain.ChannelSnapshots, payload)
	}
	if err != nil {
		c.logger.Warn("publish snapshot failed",
			slog.String("market_id", rec.MarketID),
			slog.String("error", err.Error()),
		)
	}
}
