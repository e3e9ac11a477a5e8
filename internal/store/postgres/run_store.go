package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// RunStore implements domain.RunStore using PostgreSQL.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Create stores the run header together with its calibration snapshot.
func (s *RunStore) Create(ctx context.Context, run domain.AnalysisRun) error {
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("postgres: encode run summary: %w", err)
	}
	records := run.Calibration
	if records == nil {
		records = []domain.CalibrationRecord{}
	}
	calibration, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("postgres: encode run calibration: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO analysis_runs (
			id, generated_at, bucket_count, edge_threshold, min_samples, summary, calibration
		) VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb)`,
		run.ID, run.GeneratedAt.UTC(), run.BucketCount, run.EdgeThreshold, run.MinSamples,
		string(summary), string(calibration),
	)
	if err != nil {
		return fmt.Errorf("postgres: create run %s: %w", run.ID, err)
	}
	return nil
}

const runCols = `id, generated_at, bucket_count, edge_threshold, min_samples, summary, calibration`

func scanRun(row pgx.Row) (domain.AnalysisRun, error) {
	var (
		run                  domain.AnalysisRun
		summary, calibration []byte
	)
	if err := row.Scan(&run.ID, &run.GeneratedAt, &run.BucketCount, &run.EdgeThreshold,
		&run.MinSamples, &summary, &calibration); err != nil {
		return domain.AnalysisRun{}, err
	}
	run.GeneratedAt = run.GeneratedAt.UTC()
	if err := json.Unmarshal(summary, &run.Summary); err != nil {
		return domain.AnalysisRun{}, fmt.Errorf("decode summary: %w", err)
	}
	if err := json.Unmarshal(calibration, &run.Calibration); err != nil {
		return domain.AnalysisRun{}, fmt.Errorf("decode calibration: %w", err)
	}
	return run, nil
}

// GetByID retrieves a run by id.
func (s *RunStore) GetByID(ctx context.Context, id string) (domain.AnalysisRun, error) {
	run, err := scanRun(s.pool.QueryRow(ctx, `SELECT `+runCols+` FROM analysis_runs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AnalysisRun{}, domain.ErrNotFound
		}
		return domain.AnalysisRun{}, fmt.Errorf("postgres: get run %s: %w", id, err)
	}
	return run, nil
}

// Latest returns the most recently generated run.
func (s *RunStore) Latest(ctx context.Context) (domain.AnalysisRun, error) {
	run, err := scanRun(s.pool.QueryRow(ctx,
		`SELECT `+runCols+` FROM analysis_runs ORDER BY generated_at DESC LIMIT 1`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AnalysisRun{}, domain.ErrNotFound
		}
		return domain.AnalysisRun{}, fmt.Errorf("postgres: latest run: %w", err)
	}
	return run, nil
}

// ListRecent returns up to limit runs, newest first.
func (s *RunStore) ListRecent(ctx context.Context, limit int) ([]domain.AnalysisRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+runCols+` FROM analysis_runs ORDER BY generated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	var out []domain.AnalysisRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list runs rows: %w", err)
	}
	return out, nil
}
