package domain

import "time"

// AnalysisRun is the persisted header of one analysis run. Its calibration
// records are a cache of the computation, kept so the API can serve the
// table without recomputing it.
type AnalysisRun struct {
	ID            string
	GeneratedAt   time.Time
	BucketCount   int
	EdgeThreshold float64
	MinSamples    int
	Summary       RunSummary
	Calibration   []CalibrationRecord
}

// Report rebuilds the run's report around the given edges.
func (r AnalysisRun) Report(edges []EdgeRecord) Report {
	return Report{
		RunID:       r.ID,
		GeneratedAt: r.GeneratedAt,
		BucketCount: r.BucketCount,
		Edges:       edges,
		Calibration: r.Calibration,
		Summary:     r.Summary,
	}
}
