package domain

import (
	"context"
	"time"
)

// QuoteCache keeps the most recent live snapshot per market.
type QuoteCache interface {
	SetSnapshot(ctx context.Context, snap LiveSnapshot) error
	GetSnapshot(ctx context.Context, marketID string) (LiveSnapshot, error)
}

// ReportCache holds the latest analysis report for fast reads.
type ReportCache interface {
	SetLatest(ctx context.Context, report Report) error
	GetLatest(ctx context.Context) (Report, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// Bus channel and stream names.
const (
	ChannelReports   = "edgefinder:reports"
	ChannelSnapshots = "edgefinder:snapshots"
	StreamEdges      = "edgefinder:edges"
)
