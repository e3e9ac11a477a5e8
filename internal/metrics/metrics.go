// Package metrics exposes Prometheus metrics for collection and analysis.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// Metrics holds every collector registered by the edge finder.
type Metrics struct {
	registry *prometheus.Registry

	StageRuns     *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec

	MarketsDiscovered prometheus.Counter
	SnapshotsStored   prometheus.Counter
	QuotesMissing     prometheus.Counter
	HistoryPoints     *prometheus.CounterVec

	AnalysisRuns     *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	CalibrationCells prometheus.Gauge
	PointsUsed       prometheus.Gauge
	PointsDropped    *prometheus.GaugeVec
	EdgesFound       *prometheus.GaugeVec
	EdgeMagnitude    prometheus.Histogram
	LastAnalysis     prometheus.Gauge

	HTTPRequests *prometheus.CounterVec
}

// New creates the collectors on a private registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		StageRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edgefinder_stage_runs_total",
			Help: "Pipeline stage executions by stage and result",
		}, []string{"stage", "result"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edgefinder_stage_duration_seconds",
			Help:    "Wall time of pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3m
		}, []string{"stage"}),

		MarketsDiscovered: f.NewCounter(prometheus.CounterOpts{
			Name: "edgefinder_markets_discovered_total",
			Help: "Markets fetched from the Gamma API",
		}),
		SnapshotsStored: f.NewCounter(prometheus.CounterOpts{
			Name: "edgefinder_live_snapshots_stored_total",
			Help: "Live orderbook snapshots written to the store",
		}),
		QuotesMissing: f.NewCounter(prometheus.CounterOpts{
			Name: "edgefinder_quotes_missing_total",
			Help: "Orderbook fetches that failed or returned an empty book",
		}),
		HistoryPoints: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edgefinder_history_points_total",
			Help: "Historical price points by result",
		}, []string{"result"}),

		AnalysisRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edgefinder_analysis_runs_total",
			Help: "Analysis runs by result",
		}, []string{"result"}),
		AnalysisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "edgefinder_analysis_duration_seconds",
			Help:    "Time to build the calibration table and evaluate live quotes",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		CalibrationCells: f.NewGauge(prometheus.GaugeOpts{
			Name: "edgefinder_calibration_cells",
			Help: "Populated (bucket, side) cells in the latest table",
		}),
		PointsUsed: f.NewGauge(prometheus.GaugeOpts{
			Name: "edgefinder_points_used",
			Help: "Historical points aggregated by the latest run",
		}),
		PointsDropped: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "edgefinder_points_dropped",
			Help: "Points left out of the latest run by reason",
		}, []string{"reason"}),
		EdgesFound: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "edgefinder_edges_found",
			Help: "Actionable edges in the latest run by recommendation",
		}, []string{"recommendation"}),
		EdgeMagnitude: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "edgefinder_edge_magnitude",
			Help:    "Absolute edge of actionable records",
			Buckets: []float64{0.02, 0.05, 0.08, 0.1, 0.15, 0.2, 0.3, 0.5, 0.8},
		}),
		LastAnalysis: f.NewGauge(prometheus.GaugeOpts{
			Name: "edgefinder_last_analysis_timestamp_seconds",
			Help: "Unix time of the latest completed analysis",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edgefinder_http_requests_total",
			Help: "API requests by method and status code",
		}, []string{"method", "status"}),
	}
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStage records one stage execution.
func (m *Metrics) ObserveStage(stage string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.StageRuns.WithLabelValues(stage, result).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

// ObserveReport publishes the gauges describing a finished run.
func (m *Metrics) ObserveReport(report domain.Report, took time.Duration) {
	m.AnalysisRuns.WithLabelValues("ok").Inc()
	m.AnalysisDuration.Observe(took.Seconds())

	s := report.Summary
	m.CalibrationCells.Set(float64(s.CalibrationCells))
	m.PointsUsed.Set(float64(s.PointsUsed))
	m.PointsDropped.WithLabelValues("malformed").Set(float64(s.DroppedMalformed))
	m.PointsDropped.WithLabelValues("invalid_price").Set(float64(s.DroppedInvalidPrice))
	m.PointsDropped.WithLabelValues("unresolved").Set(float64(s.ExcludedUnresolved))

	counts := map[domain.Recommendation]int{domain.BuyThisSide: 0, domain.BuyOtherSide: 0}
	for _, e := range report.Edges {
		counts[e.Recommendation]++
		mag := e.EdgeMagnitude
		if mag < 0 {
			mag = -mag
		}
		m.EdgeMagnitude.Observe(mag)
	}
	for rec, n := range counts {
		m.EdgesFound.WithLabelValues(string(rec)).Set(float64(n))
	}
	m.LastAnalysis.Set(float64(report.GeneratedAt.Unix()))
}
