package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// EdgeStore implements domain.EdgeStore using PostgreSQL.
type EdgeStore struct {
	pool *pgxpool.Pool
}

// NewEdgeStore creates a new EdgeStore.
func NewEdgeStore(pool *pgxpool.Pool) *EdgeStore {
	return &EdgeStore{pool: pool}
}

// InsertBatch stores a run's ranked edges. The slice order becomes the rank.
func (s *EdgeStore) InsertBatch(ctx context.Context, runID string, edges []domain.EdgeRecord) error {
	if len(edges) == 0 {
		return nil
	}
	const query = `
		INSERT INTO edges (
			run_id, rank, market_id, question, side,
			bucket_index, bucket_lower, bucket_upper,
			implied_probability, realized_win_rate, edge_magnitude,
			recommendation, confidence, sample_count, reduced_confidence, observed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	batch := &pgx.Batch{}
	for i, e := range edges {
		batch.Queue(query,
			runID, i+1, e.MarketID, e.Question, string(e.Side),
			e.LiveBucket.Index, e.LiveBucket.Lower, e.LiveBucket.Upper,
			e.ImpliedProbability, e.RealizedWinRate, e.EdgeMagnitude,
			string(e.Recommendation), e.Confidence, e.SampleCount, e.ReducedConfidence, e.ObservedAt.UTC(),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range edges {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert edge %d of run %s: %w", i, runID, err)
		}
	}
	return nil
}

// ListByRun returns a run's edges in rank order.
func (s *EdgeStore) ListByRun(ctx context.Context, runID string, opts domain.ListOpts) ([]domain.EdgeRecord, error) {
	query := `
		SELECT market_id, question, side,
			bucket_index, bucket_lower, bucket_upper,
			implied_probability, realized_win_rate, edge_magnitude,
			recommendation, confidence, sample_count, reduced_confidence, observed_at
		FROM edges
		WHERE run_id = $1
		ORDER BY rank`
	args := []any{runID}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list edges for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []domain.EdgeRecord
	for rows.Next() {
		var (
			e         domain.EdgeRecord
			side, rec string
		)
		if err := rows.Scan(
			&e.MarketID, &e.Question, &side,
			&e.LiveBucket.Index, &e.LiveBucket.Lower, &e.LiveBucket.Upper,
			&e.ImpliedProbability, &e.RealizedWinRate, &e.EdgeMagnitude,
			&rec, &e.Confidence, &e.SampleCount, &e.ReducedConfidence, &e.ObservedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan edge: %w", err)
		}
		e.Side = domain.Side(side)
		e.Recommendation = domain.Recommendation(rec)
		e.ObservedAt = e.ObservedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list edges rows: %w", err)
	}
	return out, nil
}
