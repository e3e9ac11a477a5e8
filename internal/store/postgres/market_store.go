package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// upsertMarketSQL never overwrites a settled outcome: once a market leaves
// UNRESOLVED its outcome and resolution time stay fixed.
const upsertMarketSQL = `
	INSERT INTO markets (
		id, question, category, slug, yes_token_id, no_token_id,
		outcome, resolved_at, end_date, status, volume, liquidity,
		tags, url, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10, $11, $12,
		$13::jsonb, $14, NOW()
	)
	ON CONFLICT (id) DO UPDATE SET
		question     = EXCLUDED.question,
		category     = EXCLUDED.category,
		slug         = EXCLUDED.slug,
		yes_token_id = COALESCE(NULLIF(EXCLUDED.yes_token_id, ''), markets.yes_token_id),
		no_token_id  = COALESCE(NULLIF(EXCLUDED.no_token_id, ''), markets.no_token_id),
		outcome      = CASE WHEN markets.outcome = 'UNRESOLVED'
		                    THEN EXCLUDED.outcome ELSE markets.outcome END,
		resolved_at  = COALESCE(markets.resolved_at, EXCLUDED.resolved_at),
		end_date     = EXCLUDED.end_date,
		status       = EXCLUDED.status,
		volume       = EXCLUDED.volume,
		liquidity    = EXCLUDED.liquidity,
		tags         = EXCLUDED.tags,
		url          = EXCLUDED.url,
		updated_at   = NOW()
	RETURNING (xmax = 0) AS inserted`

func marketArgs(m domain.Market) ([]any, error) {
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	tagJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode tags for market %s: %w", m.ID, err)
	}
	category := m.Category
	if category == "" {
		category = "unknown"
	}
	status := m.Status
	if status == "" {
		status = domain.MarketStatusActive
	}
	return []any{
		m.ID, m.Question, category, m.Slug, m.YesTokenID, m.NoTokenID,
		string(m.CurrentOutcome()), m.ResolvedAt, m.EndDate, string(status), m.Volume, m.Liquidity,
		string(tagJSON), m.URL,
	}, nil
}

// Upsert inserts or updates a single market.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	args, err := marketArgs(m)
	if err != nil {
		return err
	}
	var inserted bool
	if err := s.pool.QueryRow(ctx, upsertMarketSQL, args...).Scan(&inserted); err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID, err)
	}
	return nil
}

// UpsertBatch inserts or updates markets in a single batch and reports how
// many rows were new.
func (s *MarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) (domain.UpsertResult, error) {
	var res domain.UpsertResult
	if len(markets) == 0 {
		return res, nil
	}

	batch := &pgx.Batch{}
	for _, m := range markets {
		args, err := marketArgs(m)
		if err != nil {
			return res, err
		}
		batch.Queue(upsertMarketSQL, args...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range markets {
		var inserted bool
		if err := br.QueryRow().Scan(&inserted); err != nil {
			return res, fmt.Errorf("postgres: upsert market batch item %d: %w", i, err)
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
	return res, nil
}

const marketCols = `id, question, category, slug, yes_token_id, no_token_id,
	outcome, resolved_at, end_date, status, volume, liquidity,
	tags, url, updated_at`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m       domain.Market
		outcome string
		status  string
		tags    []byte
	)
	err := row.Scan(
		&m.ID, &m.Question, &m.Category, &m.Slug, &m.YesTokenID, &m.NoTokenID,
		&outcome, &m.ResolvedAt, &m.EndDate, &status, &m.Volume, &m.Liquidity,
		&tags, &m.URL, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Outcome = domain.Outcome(outcome)
	m.Status = domain.MarketStatus(status)
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &m.Tags); err != nil {
			return domain.Market{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	return m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// buildMarketQuery renders the listing query for filter. A zero Limit lists
// every matching market.
func buildMarketQuery(filter domain.MarketFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		where = append(where, "status = "+arg(string(filter.Status)))
	}
	if filter.Category != "" {
		where = append(where, "category = "+arg(filter.Category))
	}
	if filter.Resolved != nil {
		if *filter.Resolved {
			where = append(where, "outcome <> 'UNRESOLVED'")
		} else {
			where = append(where, "outcome = 'UNRESOLVED'")
		}
	}
	if filter.Since != nil {
		where = append(where, "updated_at >= "+arg(*filter.Since))
	}
	if filter.Until != nil {
		where = append(where, "updated_at <= "+arg(*filter.Until))
	}

	var b strings.Builder
	b.WriteString("SELECT " + marketCols + " FROM markets")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY id")
	if filter.Limit > 0 {
		b.WriteString(" LIMIT " + arg(filter.Limit))
	}
	if filter.Offset > 0 {
		b.WriteString(" OFFSET " + arg(filter.Offset))
	}
	return b.String(), args
}

// List returns markets matching filter ordered by id.
func (s *MarketStore) List(ctx context.Context, filter domain.MarketFilter) ([]domain.Market, error) {
	query, args := buildMarketQuery(filter)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}
