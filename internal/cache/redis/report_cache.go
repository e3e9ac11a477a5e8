package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// ReportCache implements domain.ReportCache as a single JSON value.
type ReportCache struct {
	rdb *redis.Client
	key string
}

// NewReportCache creates a ReportCache backed by the given Client.
func NewReportCache(c *Client) *ReportCache {
	return &ReportCache{rdb: c.rdb, key: c.key("report", "latest")}
}

// SetLatest replaces the cached report.
func (rc *ReportCache) SetLatest(ctx context.Context, report domain.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("redis: marshal report %s: %w", report.RunID, err)
	}
	if err := rc.rdb.Set(ctx, rc.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis: set latest report: %w", err)
	}
	return nil
}

// GetLatest returns the cached report or domain.ErrNotFound.
func (rc *ReportCache) GetLatest(ctx context.Context) (domain.Report, error) {
	data, err := rc.rdb.Get(ctx, rc.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Report{}, domain.ErrNotFound
		}
		return domain.Report{}, fmt.Errorf("redis: get latest report: %w", err)
	}
	var report domain.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return domain.Report{}, fmt.Errorf("redis: unmarshal latest report: %w", err)
	}
	return report, nil
}

var _ domain.ReportCache = (*ReportCache)(nil)
