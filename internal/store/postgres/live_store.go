package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// LiveSnapshotStore implements domain.LiveSnapshotStore using PostgreSQL.
type LiveSnapshotStore struct {
	pool *pgxpool.Pool
}

// NewLiveSnapshotStore creates a new LiveSnapshotStore.
func NewLiveSnapshotStore(pool *pgxpool.Pool) *LiveSnapshotStore {
	return &LiveSnapshotStore{pool: pool}
}

func nullable(p domain.OptionalPrice) *float64 {
	if v, ok := p.Get(); ok {
		return &v
	}
	return nil
}

func optional(p *float64) domain.OptionalPrice {
	if p == nil {
		return domain.NoPrice()
	}
	return domain.SomePrice(*p)
}

func midpoint(q domain.Quote) *float64 {
	pt, _, ok := q.Midpoint()
	if !ok {
		return nil
	}
	return &pt.Price
}

// Insert stores snap unless a snapshot for the same market and time exists.
// It reports whether a row was written.
func (s *LiveSnapshotStore) Insert(ctx context.Context, snap domain.LiveSnapshot) (bool, error) {
	const query = `
		INSERT INTO live_prices (
			market_id, question, yes_token_id, no_token_id,
			yes_best_bid, yes_best_ask, yes_mid_price, yes_spread,
			no_best_bid, no_best_ask, no_mid_price, no_spread, ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (market_id, ts) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		snap.MarketID, snap.Question, snap.Yes.ContractID, snap.No.ContractID,
		nullable(snap.Yes.BestBid), nullable(snap.Yes.BestAsk), midpoint(snap.Yes), nullable(snap.Yes.Spread()),
		nullable(snap.No.BestBid), nullable(snap.No.BestAsk), midpoint(snap.No), nullable(snap.No.Spread()),
		snap.Time.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("postgres: insert live snapshot %s: %w", snap.MarketID, err)
	}
	return tag.RowsAffected() == 1, nil
}

const liveCols = `market_id, question, yes_token_id, no_token_id,
	yes_best_bid, yes_best_ask, no_best_bid, no_best_ask, ts`

func scanSnapshot(row pgx.Row) (domain.LiveSnapshot, error) {
	var (
		snap           domain.LiveSnapshot
		yesBid, yesAsk *float64
		noBid, noAsk   *float64
	)
	if err := row.Scan(
		&snap.MarketID, &snap.Question, &snap.Yes.ContractID, &snap.No.ContractID,
		&yesBid, &yesAsk, &noBid, &noAsk, &snap.Time,
	); err != nil {
		return domain.LiveSnapshot{}, err
	}
	snap.Time = snap.Time.UTC()
	snap.Yes.BestBid, snap.Yes.BestAsk = optional(yesBid), optional(yesAsk)
	snap.No.BestBid, snap.No.BestAsk = optional(noBid), optional(noAsk)
	snap.Yes.Timestamp = snap.Time
	snap.No.Timestamp = snap.Time
	return snap, nil
}

// Latest returns the most recent snapshot of every market.
func (s *LiveSnapshotStore) Latest(ctx context.Context) ([]domain.LiveSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (market_id) `+liveCols+`
		FROM live_prices
		ORDER BY market_id, ts DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: latest live snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.LiveSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan live snapshot: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: latest live snapshots rows: %w", err)
	}
	return out, nil
}

// LatestByMarket returns the newest snapshot of one market.
func (s *LiveSnapshotStore) LatestByMarket(ctx context.Context, marketID string) (domain.LiveSnapshot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+liveCols+`
		FROM live_prices
		WHERE market_id = $1
		ORDER BY ts DESC
		LIMIT 1`, marketID)
	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LiveSnapshot{}, domain.ErrNotFound
		}
		return domain.LiveSnapshot{}, fmt.Errorf("postgres: latest live snapshot %s: %w", marketID, err)
	}
	return snap, nil
}
