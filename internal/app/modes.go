package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/config"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/pipeline"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/server"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/server/handler"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/server/ws"
)

// oneShotStages maps each batch mode to the stages it runs once.
var oneShotStages = map[string][]string{
	"discover": {config.StageDiscover},
	"collect":  {config.StageCollect, config.StageHistory},
	"ingest":   {config.StageIngest},
	"analyze":  {config.StageAnalyze},
}

// stages holds the pipeline components built for one process.
type stages struct {
	orchestrator *pipeline.Orchestrator
	analyzer     *pipeline.Analyzer
}

// buildStages constructs every pipeline component and registers it on an
// orchestrator under its stage name.
func (a *App) buildStages(deps *Dependencies) (*stages, error) {
	cfg := a.cfg

	var raw pipeline.RawArchiver
	if cfg.Pipeline.ArchiveRaw && deps.Archiver != nil {
		raw = deps.Archiver
	}
	var reports pipeline.ReportArchiver
	if deps.Archiver != nil {
		reports = deps.Archiver
	}
	var notifier pipeline.EdgeNotifier
	if deps.Notifier != nil {
		notifier = deps.Notifier
	}

	scraper := pipeline.NewMarketScraper(deps.Gamma, deps.MarketStore, raw, deps.Metrics, pipeline.ScraperConfig{
		PageSize:      cfg.Polymarket.PageSize,
		MaxMarkets:    cfg.Polymarket.MaxMarkets,
		IncludeClosed: cfg.Polymarket.IncludeClosed,
	}, a.logger)

	live := pipeline.NewLiveCollector(deps.MarketStore, deps.Clob, deps.LiveStore, deps.QuoteCache, raw,
		deps.Metrics, cfg.Pipeline.Concurrency, a.logger)
	if deps.SignalBus != nil {
		live = live.WithBus(deps.SignalBus)
	}

	history := pipeline.NewHistoryCollector(deps.MarketStore, deps.Clob, deps.HistoryStore, raw, deps.Metrics, pipeline.HistoryConfig{
		Interval:    cfg.Polymarket.HistoryInterval,
		Fidelity:    cfg.Polymarket.HistoryFidelity,
		Concurrency: cfg.Pipeline.Concurrency,
	}, a.logger)

	var source pipeline.Source
	switch cfg.Pipeline.IngestSource {
	case "s3":
		if deps.BlobReader == nil {
			return nil, errors.New("app: ingest_source is s3 but s3.enabled is false")
		}
		source = pipeline.BlobSource{Reader: deps.BlobReader}
	default:
		source = pipeline.DirSource{Dir: cfg.Pipeline.DataDir}
	}
	ingestor := pipeline.NewIngestor(source, deps.MarketStore, deps.LiveStore, deps.HistoryStore, a.logger)

	analyzer := pipeline.NewAnalyzer(pipeline.AnalyzerDeps{
		Engine:   deps.Engine,
		Policy:   deps.Policy,
		Markets:  deps.MarketStore,
		History:  deps.HistoryStore,
		Live:     deps.LiveStore,
		Runs:     deps.RunStore,
		Edges:    deps.EdgeStore,
		Reports:  deps.ReportCache,
		Bus:      deps.SignalBus,
		Locks:    deps.LockManager,
		Archiver: reports,
		Notifier: notifier,
		Metrics:  deps.Metrics,
		LockTTL:  cfg.Redis.LockTTL.Duration,
		TopN:     cfg.Calibration.TopN,
	}, a.logger)

	o := pipeline.NewOrchestrator(deps.Metrics, a.logger)
	o.Register(config.StageDiscover, func(ctx context.Context) error {
		_, err := scraper.Run(ctx)
		return err
	})
	o.Register(config.StageCollect, func(ctx context.Context) error {
		_, err := live.Run(ctx)
		return err
	})
	o.Register(config.StageHistory, func(ctx context.Context) error {
		_, err := history.Run(ctx)
		return err
	})
	o.Register(config.StageIngest, func(ctx context.Context) error {
		_, err := ingestor.Run(ctx)
		return err
	})
	o.Register(config.StageAnalyze, func(ctx context.Context) error {
		_, err := analyzer.Run(ctx)
		return err
	})

	return &stages{orchestrator: o, analyzer: analyzer}, nil
}

// OneShotMode runs the stages of a batch mode once and returns.
func (a *App) OneShotMode(ctx context.Context, deps *Dependencies, mode string) error {
	names, ok := oneShotStages[mode]
	if !ok {
		return fmt.Errorf("app: %q is not a batch mode", mode)
	}
	a.logger.InfoContext(ctx, "starting batch mode",
		slog.String("mode", mode),
		slog.Any("stages", names),
	)

	st, err := a.buildStages(deps)
	if err != nil {
		return err
	}
	if err := st.orchestrator.RunOnce(ctx, names); err != nil {
		return fmt.Errorf("%s mode: %w", mode, err)
	}
	return nil
}

// ServeMode exposes the API and WebSocket feed over whatever the stores
// already hold. Analysis can still be run on demand.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	st, err := a.buildStages(deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, st.analyzer, nil)
	return g.Wait()
}

// FullMode runs the configured stages on the pipeline interval alongside
// the HTTP server.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.Any("stages", a.cfg.Pipeline.Stages),
		slog.Duration("interval", a.cfg.Pipeline.Interval.Duration),
	)

	st, err := a.buildStages(deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	triggerCh := make(chan struct{}, 1)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, st.analyzer, triggerCh)
	}

	g.Go(func() error {
		return st.orchestrator.RunLoop(ctx, a.cfg.Pipeline.Interval.Duration, a.cfg.Pipeline.Stages, triggerCh)
	})

	return g.Wait()
}

// startHTTPServer registers the API server and WebSocket hub on g and shuts
// the server down when ctx is cancelled. trigger may be nil, which disables
// POST /api/pipeline/trigger.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	runner handler.AnalysisRunner,
	trigger chan<- struct{},
) {
	hub := ws.NewHub(deps.SignalBus, deps.ReportCache, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: a.startedAt,
	})
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	pipelineH := handler.NewPipelineHandler(a.logger)
	if trigger != nil {
		pipelineH = pipelineH.WithTriggerChannel(trigger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateBurst:   a.cfg.Server.RateBurst,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(deps.Checks, a.logger),
		Markets:  handler.NewMarketHandler(deps.MarketStore, deps.LiveStore, a.logger),
		Analysis: handler.NewAnalysisHandler(deps.ReportCache, deps.RunStore, deps.EdgeStore, runner, a.logger),
		Pipeline: pipelineH,
		Status:   handler.NewStatusHandler(a.cfg.Mode, a.cfg.Pipeline.Stages, a.cfg.Pipeline.Interval.Duration, a.startedAt),
	}, hub, deps.Metrics, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
