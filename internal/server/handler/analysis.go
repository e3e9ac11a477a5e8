package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// AnalysisRunner performs one analysis run, either from stored history or
// against the calibration persisted with an earlier run.
type AnalysisRunner interface {
	Run(ctx context.Context) (domain.Report, error)
	Reevaluate(ctx context.Context, runID string) (domain.Report, error)
}

// AnalysisHandler serves calibration tables, edge reports and on-demand
// analysis runs.
type AnalysisHandler struct {
	cache  domain.ReportCache
	runs   domain.RunStore
	edges  domain.EdgeStore
	runner AnalysisRunner
	logger *slog.Logger
}

// NewAnalysisHandler creates an AnalysisHandler. cache and runner may be
// nil; without a runner POST /api/analysis/run answers 503.
func NewAnalysisHandler(cache domain.ReportCache, runs domain.RunStore, edges domain.EdgeStore, runner AnalysisRunner, logger *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		cache:  cache,
		runs:   runs,
		edges:  edges,
		runner: runner,
		logger: logger,
	}
}

// runHeader resolves run_id, or the latest run when absent. The cached
// latest report is preferred so the common case skips the database.
func (h *AnalysisHandler) runHeader(ctx context.Context, runID string) (domain.AnalysisRun, *domain.Report, error) {
	if runID == "" && h.cache != nil {
		rep, err := h.cache.GetLatest(ctx)
		if err == nil {
			return domain.AnalysisRun{
				ID:          rep.RunID,
				GeneratedAt: rep.GeneratedAt,
				BucketCount: rep.BucketCount,
				Summary:     rep.Summary,
				Calibration: rep.Calibration,
			}, &rep, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(ctx, "handler: report cache read failed", slog.String("error", err.Error()))
		}
	}
	if runID == "" {
		run, err := h.runs.Latest(ctx)
		return run, nil, err
	}
	run, err := h.runs.GetByID(ctx, runID)
	return run, nil, err
}

func (h *AnalysisHandler) lookupFailed(w http.ResponseWriter, r *http.Request, what string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no analysis run found")
		return
	}
	h.logger.ErrorContext(r.Context(), "handler: "+what+" failed", slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "failed to load "+what)
}

type calibrationResponse struct {
	RunID       string                     `json:"run_id"`
	GeneratedAt time.Time                  `json:"generated_at"`
	BucketCount int                        `json:"bucket_count"`
	Records     []domain.CalibrationRecord `json:"records"`
}

// GetCalibration returns the calibration table of a run, optionally
// filtered to one side.
// GET /api/calibration?run_id=...&side=YES
func (h *AnalysisHandler) GetCalibration(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var side domain.Side
	if v := q.Get("side"); v != "" {
		s, err := domain.ParseSide(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid side "+strconv.Quote(v))
			return
		}
		side = s
	}

	run, _, err := h.runHeader(r.Context(), q.Get("run_id"))
	if err != nil {
		h.lookupFailed(w, r, "calibration", err)
		return
	}

	records := make([]domain.CalibrationRecord, 0, len(run.Calibration))
	for _, rec := range run.Calibration {
		if side == "" || rec.Side == side {
			records = append(records, rec)
		}
	}
	writeJSON(w, http.StatusOK, calibrationResponse{
		RunID:       run.ID,
		GeneratedAt: run.GeneratedAt,
		BucketCount: run.BucketCount,
		Records:     records,
	})
}

type edgesResponse struct {
	RunID       string              `json:"run_id"`
	GeneratedAt time.Time           `json:"generated_at"`
	Edges       []domain.EdgeRecord `json:"edges"`
	Summary     domain.RunSummary   `json:"summary"`
	Limit       int                 `json:"limit"`
	Offset      int                 `json:"offset"`
}

// ListEdges returns the ranked edges of a run.
// GET /api/edges?run_id=...&recommendation=BUY_THIS_SIDE&limit=50&offset=0
func (h *AnalysisHandler) ListEdges(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	rec := domain.Recommendation(strings.ToUpper(r.URL.Query().Get("recommendation")))
	switch rec {
	case "", domain.BuyThisSide, domain.BuyOtherSide:
	default:
		writeError(w, http.StatusBadRequest, "invalid recommendation "+strconv.Quote(string(rec)))
		return
	}

	run, cached, err := h.runHeader(r.Context(), r.URL.Query().Get("run_id"))
	if err != nil {
		h.lookupFailed(w, r, "edges", err)
		return
	}

	var edges []domain.EdgeRecord
	if cached != nil {
		edges = paginate(cached.Edges, opts)
	} else {
		edges, err = h.edges.ListByRun(r.Context(), run.ID, opts)
		if err != nil {
			h.lookupFailed(w, r, "edges", err)
			return
		}
	}
	if rec != "" {
		kept := edges[:0:0]
		for _, e := range edges {
			if e.Recommendation == rec {
				kept = append(kept, e)
			}
		}
		edges = kept
	}
	if edges == nil {
		edges = []domain.EdgeRecord{}
	}

	writeJSON(w, http.StatusOK, edgesResponse{
		RunID:       run.ID,
		GeneratedAt: run.GeneratedAt,
		Edges:       edges,
		Summary:     run.Summary,
		Limit:       opts.Limit,
		Offset:      opts.Offset,
	})
}

func paginate(edges []domain.EdgeRecord, opts domain.ListOpts) []domain.EdgeRecord {
	if opts.Offset >= len(edges) {
		return nil
	}
	edges = edges[opts.Offset:]
	if opts.Limit > 0 && len(edges) > opts.Limit {
		edges = edges[:opts.Limit]
	}
	return edges
}

type runView struct {
	ID            string            `json:"id"`
	GeneratedAt   time.Time         `json:"generated_at"`
	BucketCount   int               `json:"bucket_count"`
	EdgeThreshold float64           `json:"edge_threshold"`
	MinSamples    int               `json:"min_samples"`
	Summary       domain.RunSummary `json:"summary"`
}

// ListRuns returns recent analysis runs, newest first.
// GET /api/runs?limit=20
func (h *AnalysisHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, 200)
		}
	}
	runs, err := h.runs.ListRecent(r.Context(), limit)
	if err != nil {
		h.lookupFailed(w, r, "runs", err)
		return
	}
	views := make([]runView, len(runs))
	for i, run := range runs {
		views[i] = runView{
			ID:            run.ID,
			GeneratedAt:   run.GeneratedAt,
			BucketCount:   run.BucketCount,
			EdgeThreshold: run.EdgeThreshold,
			MinSamples:    run.MinSamples,
			Summary:       run.Summary,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": views})
}

// RunAnalysis performs an analysis synchronously and returns its report.
// With ?calibration_run=<id> live quotes are scored against that run's
// stored calibration instead of a table rebuilt from history. A run already
// in progress answers 409.
// POST /api/analysis/run
func (h *AnalysisHandler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis is not enabled")
		return
	}
	calibrationRun := r.URL.Query().Get("calibration_run")
	h.logger.InfoContext(r.Context(), "handler: analysis run requested",
		slog.String("calibration_run", calibrationRun),
	)

	var (
		report domain.Report
		err    error
	)
	if calibrationRun != "" {
		report, err = h.runner.Reevaluate(r.Context(), calibrationRun)
	} else {
		report, err = h.runner.Run(r.Context())
	}
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			writeError(w, http.StatusConflict, "analysis already running")
			return
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "run not found")
			return
		case errors.Is(err, domain.ErrPartitionMismatch):
			writeError(w, http.StatusUnprocessableEntity, "run calibration does not match the configured buckets")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: analysis run failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
