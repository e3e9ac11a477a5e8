package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	s3blob "github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/blob/s3"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// Source opens one of the snapshot files by name.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// DirSource reads snapshot files from a local directory.
type DirSource struct {
	Dir string
}

// Open opens name inside the directory. A missing file wraps
// domain.ErrNotFound.
func (d DirSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(d.Dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, domain.ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}

// BlobSource reads the newest archive of each snapshot kind.
type BlobSource struct {
	Reader domain.BlobReader
}

var fileKinds = map[string]string{
	MarketsFile: s3blob.KindMarkets,
	LiveFile:    s3blob.KindLive,
	HistoryFile: s3blob.KindHistory,
}

// Open resolves name to its archive kind and opens the latest object.
func (b BlobSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	kind, ok := fileKinds[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, domain.ErrNotFound)
	}
	path, err := s3blob.LatestRaw(ctx, b.Reader, kind)
	if err != nil {
		return nil, err
	}
	return b.Reader.Get(ctx, path)
}

// IngestCounts reports one file's ingestion.
type IngestCounts struct {
	Read     int `json:"read"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// IngestResult reports a full ingestion.
type IngestResult struct {
	Markets IngestCounts `json:"markets"`
	Live    IngestCounts `json:"live_prices"`
	History IngestCounts `json:"price_history"`
	// DroppedPoints were malformed history points.
	DroppedPoints int `json:"dropped_points"`
}

// Ingestor loads snapshot files into the stores. Markets are upserted,
// live snapshots and history points are deduplicated by the stores.
type Ingestor struct {
	source  Source
	markets domain.MarketStore
	live    domain.LiveSnapshotStore
	history domain.PriceHistoryStore
	logger  *slog.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(source Source, markets domain.MarketStore, live domain.LiveSnapshotStore, history domain.PriceHistoryStore, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		source:  source,
		markets: markets,
		live:    live,
		history: history,
		logger:  logger.With(slog.String("component", "ingestor")),
	}
}

// decode reads name into v. found is false when the file does not exist.
func (in *Ingestor) decode(ctx context.Context, name string, v any) (found bool, err error) {
	rc, err := in.source.Open(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			in.logger.Warn("snapshot file not found, skipping", slog.String("file", name))
			return false, nil
		}
		return false, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(v); err != nil {
		return false, fmt.Errorf("decode %s: %w: %v", name, domain.ErrMalformedInput, err)
	}
	return true, nil
}

// Run ingests markets first so history and live rows refer to known
// markets.
func (in *Ingestor) Run(ctx context.Context) (IngestResult, error) {
	var res IngestResult
	var err error

	if res.Markets, err = in.ingestMarkets(ctx); err != nil {
		return res, fmt.Errorf("ingestor: %w", err)
	}
	if res.Live, err = in.ingestLive(ctx); err != nil {
		return res, fmt.Errorf("ingestor: %w", err)
	}
	if res.History, res.DroppedPoints, err = in.ingestHistory(ctx); err != nil {
		return res, fmt.Errorf("ingestor: %w", err)
	}

	in.logger.Info("ingestion complete",
		slog.Int("markets_inserted", res.Markets.Inserted),
		slog.Int("markets_updated", res.Markets.Updated),
		slog.Int("live_inserted", res.Live.Inserted),
		slog.Int("live_skipped", res.Live.Skipped),
		slog.Int("history_inserted", res.History.Inserted),
		slog.Int("history_skipped", res.History.Skipped),
		slog.Int("history_dropped", res.DroppedPoints),
	)
	return res, nil
}

func (in *Ingestor) ingestMarkets(ctx context.Context) (IngestCounts, error) {
	var (
		c       IngestCounts
		records []MarketRecord
	)
	found, err := in.decode(ctx, MarketsFile, &records)
	if err != nil || !found {
		return c, err
	}
	c.Read = len(records)

	markets := make([]domain.Market, 0, len(records))
	for _, r := range records {
		m, err := r.Market()
		if err != nil {
			in.logger.Warn("skipping market record", slog.String("error", err.Error()))
			c.Skipped++
			continue
		}
		markets = append(markets, m)
	}
	up, err := in.markets.UpsertBatch(ctx, markets)
	if err != nil {
		return c, fmt.Errorf("upsert markets: %w", err)
	}
	c.Inserted, c.Updated = up.Inserted, up.Updated
	return c, nil
}

func (in *Ingestor) ingestLive(ctx context.Context) (IngestCounts, error) {
	var (
		c       IngestCounts
		records []LiveRecord
	)
	found, err := in.decode(ctx, LiveFile, &records)
	if err != nil || !found {
		return c, err
	}
	c.Read = len(records)

	for _, r := range records {
		snap, err := r.Snapshot()
		if err != nil {
			c.Skipped++
			continue
		}
		inserted, err := in.live.Insert(ctx, snap)
		if err != nil {
			return c, fmt.Errorf("insert live snapshot: %w", err)
		}
		if inserted {
			c.Inserted++
		} else {
			c.Skipped++
		}
	}
	return c, nil
}

func (in *Ingestor) ingestHistory(ctx context.Context) (IngestCounts, int, error) {
	var (
		c       IngestCounts
		records map[string]HistoryRecord
	)
	found, err := in.decode(ctx, HistoryFile, &records)
	if err != nil || !found {
		return c, 0, err
	}
	c.Read = len(records)

	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var dropped int
	for _, id := range ids {
		rec := records[id]
		if rec.MarketID == "" {
			rec.MarketID = id
		}
		inserted, points, d, err := storeHistory(ctx, in.history, rec)
		if err != nil {
			return c, dropped, err
		}
		dropped += d
		c.Inserted += int(inserted)
		c.Skipped += points - int(inserted)
	}
	return c, dropped, nil
}
