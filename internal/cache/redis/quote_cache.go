package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

// QuoteCache implements domain.QuoteCache using one Redis hash per market at
// "{namespace}:quote:{marketID}". Absent book sides are stored as empty
// fields.
type QuoteCache struct {
	rdb *redis.Client
	key func(...string) string
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache whose entries expire after ttl. A zero
// ttl keeps entries until overwritten.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: c.rdb, key: c.key, ttl: ttl}
}

func (qc *QuoteCache) quoteKey(marketID string) string {
	return qc.key("quote", marketID)
}

func formatPrice(p domain.OptionalPrice) string {
	v, ok := p.Get()
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parsePrice(s string) (domain.OptionalPrice, error) {
	if s == "" {
		return domain.NoPrice(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return domain.NoPrice(), err
	}
	return domain.SomePrice(v), nil
}

// encodeSnapshot flattens snap into hash fields.
func encodeSnapshot(snap domain.LiveSnapshot) map[string]any {
	return map[string]any{
		"question":  snap.Question,
		"yes_token": snap.Yes.ContractID,
		"no_token":  snap.No.ContractID,
		"yes_bid":   formatPrice(snap.Yes.BestBid),
		"yes_ask":   formatPrice(snap.Yes.BestAsk),
		"no_bid":    formatPrice(snap.No.BestBid),
		"no_ask":    formatPrice(snap.No.BestAsk),
		"ts":        strconv.FormatInt(snap.Time.UnixNano(), 10),
	}
}

// decodeSnapshot rebuilds a snapshot from hash fields.
func decodeSnapshot(marketID string, vals map[string]string) (domain.LiveSnapshot, error) {
	snap := domain.LiveSnapshot{MarketID: marketID, Question: vals["question"]}
	snap.Yes.ContractID = vals["yes_token"]
	snap.No.ContractID = vals["no_token"]

	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.LiveSnapshot{}, fmt.Errorf("parse ts: %w", err)
	}
	snap.Time = time.Unix(0, tsNano).UTC()
	snap.Yes.Timestamp = snap.Time
	snap.No.Timestamp = snap.Time

	fields := []struct {
		name string
		dst  *domain.OptionalPrice
	}{
		{"yes_bid", &snap.Yes.BestBid},
		{"yes_ask", &snap.Yes.BestAsk},
		{"no_bid", &snap.No.BestBid},
		{"no_ask", &snap.No.BestAsk},
	}
	for _, f := range fields {
		p, err := parsePrice(vals[f.name])
		if err != nil {
			return domain.LiveSnapshot{}, fmt.Errorf("parse %s: %w", f.name, err)
		}
		*f.dst = p
	}
	return snap, nil
}

// SetSnapshot stores the latest snapshot of a market.
func (qc *QuoteCache) SetSnapshot(ctx context.Context, snap domain.LiveSnapshot) error {
	key := qc.quoteKey(snap.MarketID)
	pipe := qc.rdb.TxPipeline()
	pipe.HSet(ctx, key, encodeSnapshot(snap))
	if qc.ttl > 0 {
		pipe.Expire(ctx, key, qc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.MarketID, err)
	}
	return nil
}

// GetSnapshot returns the cached snapshot or domain.ErrNotFound.
func (qc *QuoteCache) GetSnapshot(ctx context.Context, marketID string) (domain.LiveSnapshot, error) {
	vals, err := qc.rdb.HGetAll(ctx, qc.quoteKey(marketID)).Result()
	if err != nil {
		return domain.LiveSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", marketID, err)
	}
	if len(vals) == 0 {
		return domain.LiveSnapshot{}, domain.ErrNotFound
	}
	snap, err := decodeSnapshot(marketID, vals)
	if err != nil {
		return domain.LiveSnapshot{}, fmt.Errorf("redis: decode snapshot %s: %w", marketID, err)
	}
	return snap, nil
}

var _ domain.QuoteCache = (*QuoteCache)(nil)
