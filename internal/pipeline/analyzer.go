package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/calibration"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/metrics"
)

const analysisLockKey = "analysis"

// HistoryLister streams every stored history point.
type HistoryLister interface {
	ListAll(ctx context.Context, fn func(domain.SidedPoint) error) error
}

// ReportArchiver stores finished reports.
type ReportArchiver interface {
	PutReport(ctx context.Context, report domain.Report) error
}

// EdgeNotifier alerts operators about a finished or failed run.
type EdgeNotifier interface {
	NotifyReport(ctx context.Context, report domain.Report, topN int) error
	NotifyFailure(ctx context.Context, err error) error
}

// AnalyzerDeps wires an Analyzer. Engine and the stores are required; the
// rest may be nil.
type AnalyzerDeps struct {
	Engine   *calibration.Engine
	Policy   calibration.Policy
	Markets  domain.MarketStore
	History  HistoryLister
	Live     domain.LiveSnapshotStore
	Runs     domain.RunStore
	Edges    domain.EdgeStore
	Reports  domain.ReportCache
	Bus      domain.SignalBus
	Locks    domain.LockManager
	Archiver ReportArchiver
	Notifier EdgeNotifier
	Metrics  *metrics.Metrics
	LockTTL  time.Duration
	TopN     int
}

// Analyzer loads everything from the stores, runs the calibration engine
// and distributes the report.
type Analyzer struct {
	d      AnalyzerDeps
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(d AnalyzerDeps, logger *slog.Logger) *Analyzer {
	if d.LockTTL <= 0 {
		d.LockTTL = 10 * time.Minute
	}
	return &Analyzer{d: d, logger: logger.With(slog.String("component", "analyzer"))}
}

// Input loads the engine input from the stores.
func (a *Analyzer) Input(ctx context.Context) (calibration.Input, error) {
	var in calibration.Input

	markets, err := a.d.Markets.List(ctx, domain.MarketFilter{})
	if err != nil {
		return in, fmt.Errorf("list markets: %w", err)
	}
	in.Markets = markets

	in.Points = make(map[string][]domain.PricePoint)
	err = a.d.History.ListAll(ctx, func(p domain.SidedPoint) error {
		in.Points[p.ContractID] = append(in.Points[p.ContractID], p.PricePoint)
		return nil
	})
	if err != nil {
		return in, fmt.Errorf("load history: %w", err)
	}

	if in.Quotes, err = a.quotes(ctx); err != nil {
		return in, err
	}
	return in, nil
}

// StoredTableInput loads the markets and live quotes, paired with the
// calibration table persisted with run runID instead of stored history.
// A missing run wraps domain.ErrNotFound.
func (a *Analyzer) StoredTableInput(ctx context.Context, runID string) (calibration.Input, error) {
	var in calibration.Input

	prior, err := a.d.Runs.GetByID(ctx, runID)
	if err != nil {
		return in, fmt.Errorf("load run %s: %w", runID, err)
	}
	p, err := calibration.NewPartition(prior.BucketCount)
	if err != nil {
		return in, fmt.Errorf("run %s: %w", runID, err)
	}
	if in.Table, err = calibration.NewTable(p, prior.Calibration); err != nil {
		return in, fmt.Errorf("run %s: %w", runID, err)
	}

	if in.Markets, err = a.d.Markets.List(ctx, domain.MarketFilter{}); err != nil {
		return in, fmt.Errorf("list markets: %w", err)
	}
	if in.Quotes, err = a.quotes(ctx); err != nil {
		return in, err
	}
	return in, nil
}

// quotes indexes the latest live snapshots by contract id.
func (a *Analyzer) quotes(ctx context.Context) (map[string]domain.Quote, error) {
	snaps, err := a.d.Live.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load live snapshots: %w", err)
	}
	out := make(map[string]domain.Quote, 2*len(snaps))
	for _, s := range snaps {
		for _, side := range domain.Sides {
			if q := s.Quote(side); q.ContractID != "" {
				out[q.ContractID] = q
			}
		}
	}
	return out, nil
}

// Run performs one analysis. It returns domain.ErrLockHeld, wrapped, when
// another run is in progress.
func (a *Analyzer) Run(ctx context.Context) (domain.Report, error) {
	return a.run(ctx, a.Input)
}

// Reevaluate scores the current live quotes against the calibration stored
// with an earlier run, skipping aggregation. The result is persisted and
// distributed as a new run. A run built with a different bucket count than
// the engine fails with domain.ErrPartitionMismatch.
func (a *Analyzer) Reevaluate(ctx context.Context, runID string) (domain.Report, error) {
	return a.run(ctx, func(ctx context.Context) (calibration.Input, error) {
		return a.StoredTableInput(ctx, runID)
	})
}

func (a *Analyzer) run(ctx context.Context, load func(context.Context) (calibration.Input, error)) (domain.Report, error) {
	if a.d.Locks != nil {
		unlock, err := a.d.Locks.Acquire(ctx, analysisLockKey, a.d.LockTTL)
		if err != nil {
			return domain.Report{}, fmt.Errorf("analyzer: %w", err)
		}
		defer unlock()
	}

	started := time.Now()
	report, err := a.analyze(ctx, load)
	if err != nil {
		if a.d.Metrics != nil {
			a.d.Metrics.AnalysisRuns.WithLabelValues("error").Inc()
		}
		if a.d.Notifier != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, domain.ErrNotFound) {
			if nerr := a.d.Notifier.NotifyFailure(ctx, err); nerr != nil {
				a.logger.Warn("failure notification failed", slog.String("error", nerr.Error()))
			}
		}
		return domain.Report{}, fmt.Errorf("analyzer: %w", err)
	}
	if a.d.Metrics != nil {
		a.d.Metrics.ObserveReport(report, time.Since(started))
	}

	a.distribute(ctx, report)

	s := report.Summary
	a.logger.Info("analysis complete",
		slog.String("run_id", report.RunID),
		slog.Int("markets", s.Markets),
		slog.Int("resolved_markets", s.ResolvedMarkets),
		slog.Int("points_used", s.PointsUsed),
		slog.Int("dropped_malformed", s.DroppedMalformed),
		slog.Int("dropped_invalid_price", s.DroppedInvalidPrice),
		slog.Int("excluded_unresolved", s.ExcludedUnresolved),
		slog.Int("calibration_cells", s.CalibrationCells),
		slog.Int("quotes_evaluated", s.QuotesEvaluated),
		slog.Int("quotes_missing", s.QuotesMissing),
		slog.Int("edges_found", s.EdgesFound),
		slog.Duration("took", time.Since(started)),
	)
	return report, nil
}

func (a *Analyzer) analyze(ctx context.Context, load func(context.Context) (calibration.Input, error)) (domain.Report, error) {
	in, err := load(ctx)
	if err != nil {
		return domain.Report{}, err
	}
	report, err := a.d.Engine.Analyze(in)
	if err != nil {
		return domain.Report{}, err
	}

	run := domain.AnalysisRun{
		ID:            report.RunID,
		GeneratedAt:   report.GeneratedAt,
		BucketCount:   report.BucketCount,
		EdgeThreshold: a.d.Policy.EdgeThreshold,
		MinSamples:    a.d.Policy.MinSamples,
		Summary:       report.Summary,
		Calibration:   report.Calibration,
	}
	if err := a.d.Runs.Create(ctx, run); err != nil {
		return domain.Report{}, fmt.Errorf("persist run: %w", err)
	}
	if err := a.d.Edges.InsertBatch(ctx, report.RunID, report.Edges); err != nil {
		return domain.Report{}, fmt.Errorf("persist edges: %w", err)
	}
	return report, nil
}

// distribute pushes a persisted report to the cache, bus, archive and
// notifier. Failures here are logged; the run itself already succeeded.
func (a *Analyzer) distribute(ctx context.Context, report domain.Report) {
	warn := func(what string, err error) {
		a.logger.Warn(what+" failed",
			slog.String("run_id", report.RunID),
			slog.String("error", err.Error()),
		)
	}

	if a.d.Reports != nil {
		if err := a.d.Reports.SetLatest(ctx, report); err != nil {
			warn("cache report", err)
		}
	}
	if a.d.Bus != nil {
		if payload, err := json.Marshal(report); err != nil {
			warn("encode report", err)
		} else if err := a.d.Bus.Publish(ctx, domain.ChannelReports, payload); err != nil {
			warn("publish report", err)
		}
		for _, e := range report.Edges {
			payload, err := json.Marshal(struct {
				RunID string `json:"run_id"`
				domain.EdgeRecord
			}{report.RunID, e})
			if err != nil {
				warn("encode edge", err)
				continue
			}
			if err := a.d.Bus.StreamAppend(ctx, domain.StreamEdges, payload); err != nil {
				warn("stream edge", err)
				break
			}
		}
	}
	if a.d.Archiver != nil {
		if err := a.d.Archiver.PutReport(ctx, report); err != nil {
			warn("archive report", err)
		}
	}
	if a.d.Notifier != nil {
		if err := a.d.Notifier.NotifyReport(ctx, report, a.d.TopN); err != nil {
			warn("notify edges", err)
		}
	}
}
