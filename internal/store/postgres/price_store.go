package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// historyChunkSize bounds the array parameters of one insert statement.
const historyChunkSize = 5000

// PriceHistoryStore implements domain.PriceHistoryStore using PostgreSQL.
type PriceHistoryStore struct {
	pool *pgxpool.Pool
}

// NewPriceHistoryStore creates a new PriceHistoryStore.
func NewPriceHistoryStore(pool *pgxpool.Pool) *PriceHistoryStore {
	return &PriceHistoryStore{pool: pool}
}

// InsertBatch stores points, skipping any (market, side, timestamp) that is
// already present. It returns the number of rows actually inserted.
func (s *PriceHistoryStore) InsertBatch(ctx context.Context, points []domain.SidedPoint) (int64, error) {
	const query = `
		INSERT INTO price_history (market_id, side, contract_id, price, ts)
		SELECT * FROM unnest($1::text[], $2::text[], $3::text[], $4::float8[], $5::timestamptz[])
		ON CONFLICT (market_id, side, ts) DO NOTHING`

	var inserted int64
	for start := 0; start < len(points); start += historyChunkSize {
		end := min(start+historyChunkSize, len(points))
		chunk := points[start:end]

		markets := make([]string, len(chunk))
		sides := make([]string, len(chunk))
		contracts := make([]string, len(chunk))
		prices := make([]float64, len(chunk))
		stamps := make([]time.Time, len(chunk))
		for i, p := range chunk {
			markets[i] = p.MarketID
			sides[i] = string(p.Side)
			contracts[i] = p.ContractID
			prices[i] = p.Price
			stamps[i] = p.Timestamp.UTC()
		}

		tag, err := s.pool.Exec(ctx, query, markets, sides, contracts, prices, stamps)
		if err != nil {
			return inserted, fmt.Errorf("postgres: insert price history chunk at %d: %w", start, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// ListByMarket returns a market's stored points ordered by side then time.
func (s *PriceHistoryStore) ListByMarket(ctx context.Context, marketID string) ([]domain.SidedPoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT market_id, side, contract_id, price, ts
		FROM price_history
		WHERE market_id = $1
		ORDER BY side DESC, ts`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list price history %s: %w", marketID, err)
	}
	defer rows.Close()

	var out []domain.SidedPoint
	for rows.Next() {
		var (
			p    domain.SidedPoint
			side string
		)
		if err := rows.Scan(&p.MarketID, &side, &p.ContractID, &p.Price, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan price point: %w", err)
		}
		p.Side = domain.Side(side)
		p.Timestamp = p.Timestamp.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list price history rows: %w", err)
	}
	return out, nil
}

// ListAll streams every stored point to fn grouped by contract id. It is the
// bulk read behind a full calibration build.
func (s *PriceHistoryStore) ListAll(ctx context.Context, fn func(domain.SidedPoint) error) error {
	rows, err := s.pool.Query(ctx, `
		SELECT market_id, side, contract_id, price, ts
		FROM price_history
		ORDER BY contract_id, ts`)
	if err != nil {
		return fmt.Errorf("postgres: list all price history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p    domain.SidedPoint
			side string
		)
		if err := rows.Scan(&p.MarketID, &side, &p.ContractID, &p.Price, &p.Timestamp); err != nil {
			return fmt.Errorf("postgres: scan price point: %w", err)
		}
		p.Side = domain.Side(side)
		p.Timestamp = p.Timestamp.UTC()
		if err := fn(p); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: list all price history rows: %w", err)
	}
	return nil
}

// Count returns the number of stored points.
func (s *PriceHistoryStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM price_history").Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count price history: %w", err)
	}
	return n, nil
}
