package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketFilter narrows market listings.
type MarketFilter struct {
	ListOpts
	Status   MarketStatus
	Category string
	Resolved *bool
}

// MarketStore persists market metadata.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	UpsertBatch(ctx context.Context, markets []Market) (UpsertResult, error)
	GetByID(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, filter MarketFilter) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// UpsertResult counts rows touched by a batch upsert.
type UpsertResult struct {
	Inserted int
	Updated  int
}

// SidedPoint is a stored historical point with its market and side.
type SidedPoint struct {
	MarketID string
	Side     Side
	PricePoint
}

// PriceHistoryStore persists normalized historical price points. Repeated
// collection of the same (market, side, timestamp) is ignored.
type PriceHistoryStore interface {
	InsertBatch(ctx context.Context, points []SidedPoint) (int64, error)
	ListByMarket(ctx context.Context, marketID string) ([]SidedPoint, error)
	Count(ctx context.Context) (int64, error)
}

// LiveSnapshotStore persists live orderbook snapshots.
type LiveSnapshotStore interface {
	Insert(ctx context.Context, snap LiveSnapshot) (bool, error)
	Latest(ctx context.Context) ([]LiveSnapshot, error)
	LatestByMarket(ctx context.Context, marketID string) (LiveSnapshot, error)
}

// EdgeStore persists edge reports per analysis run.
type EdgeStore interface {
	InsertBatch(ctx context.Context, runID string, edges []EdgeRecord) error
	ListByRun(ctx context.Context, runID string, opts ListOpts) ([]EdgeRecord, error)
}

// RunStore persists analysis run metadata.
type RunStore interface {
	Create(ctx context.Context, run AnalysisRun) error
	GetByID(ctx context.Context, id string) (AnalysisRun, error)
	Latest(ctx context.Context) (AnalysisRun, error)
	ListRecent(ctx context.Context, limit int) ([]AnalysisRun, error)
}
