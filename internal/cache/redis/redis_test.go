package redis

import (
	"testing"
	"time"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

func TestSnapshotEncoding(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	snap := domain.LiveSnapshot{
		MarketID: "m1",
		Question: "Will it rain?",
		Yes: domain.Quote{
			ContractID: "yes-token",
			BestBid:    domain.SomePrice(0.41),
			BestAsk:    domain.SomePrice(0.43),
		},
		No: domain.Quote{
			ContractID: "no-token",
			BestBid:    domain.SomePrice(0.57),
		},
		Time: at,
	}

	raw := encodeSnapshot(snap)
	vals := make(map[string]string, len(raw))
	for k, v := range raw {
		vals[k] = v.(string)
	}
	if vals["no_ask"] != "" {
		t.Fatalf("absent ask encoded as %q", vals["no_ask"])
	}

	got, err := decodeSnapshot("m1", vals)
	if err != nil {
		t.Fatalf("decodeSnapshot: %v", err)
	}
	if !got.Time.Equal(at) || !got.Yes.Timestamp.Equal(at) {
		t.Fatalf("time = %v, want %v", got.Time, at)
	}
	if got.Question != snap.Question || got.Yes.ContractID != "yes-token" || got.No.ContractID != "no-token" {
		t.Fatalf("identity fields lost: %+v", got)
	}
	if got.Yes.BestBid != snap.Yes.BestBid || got.Yes.BestAsk != snap.Yes.BestAsk {
		t.Fatalf("yes quote = %+v, want %+v", got.Yes, snap.Yes)
	}
	if got.No.BestBid != snap.No.BestBid || got.No.BestAsk.Valid {
		t.Fatalf("no quote = %+v", got.No)
	}
}

func TestDecodeSnapshotRejectsGarbage(t *testing.T) {
	vals := map[string]string{"ts": "1", "yes_bid": "abc"}
	if _, err := decodeSnapshot("m1", vals); err == nil {
		t.Fatal("expected error for non-numeric price")
	}
	if _, err := decodeSnapshot("m1", map[string]string{}); err == nil {
		t.Fatal("expected error for missing ts")
	}
}

func TestKeysAndPatterns(t *testing.T) {
	c := &Client{ns: namespace("")}
	qc := NewQuoteCache(c, time.Minute)
	if got := qc.quoteKey("abc"); got != "edgefinder:quote:abc" {
		t.Errorf("quoteKey = %q", got)
	}
	if got := NewLockManager(c).key("lock", "analysis"); got != "edgefinder:lock:analysis" {
		t.Errorf("lock key = %q", got)
	}
	if got := NewReportCache(&Client{ns: namespace(" staging: ")}).key; got != "staging:report:latest" {
		t.Errorf("report key = %q", got)
	}
	if hasPattern(domain.ChannelReports) {
		t.Errorf("%q should not be a pattern", domain.ChannelReports)
	}
	if !hasPattern("edgefinder:*") {
		t.Error("wildcard channel should be a pattern")
	}
}

func TestClientOptions(t *testing.T) {
	tests := []struct {
		name       string
		cfg        ClientConfig
		wantErr    bool
		wantServer string
	}{
		{name: "plain", cfg: ClientConfig{Addr: "localhost:6379", PoolSize: 5}},
		{name: "tls", cfg: ClientConfig{Addr: "cache.internal:6380", TLSEnabled: true}, wantServer: "cache.internal"},
		{name: "missing port", cfg: ClientConfig{Addr: "localhost"}, wantErr: true},
		{name: "empty", cfg: ClientConfig{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := options(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("options(%+v) = nil error", tt.cfg)
				}
				return
			}
			if err != nil {
				t.Fatalf("options: %v", err)
			}
			if opts.Addr != tt.cfg.Addr || opts.PoolSize != tt.cfg.PoolSize {
				t.Fatalf("opts = %+v", opts)
			}
			if !tt.cfg.TLSEnabled {
				if opts.TLSConfig != nil {
					t.Fatal("TLS configured without TLSEnabled")
				}
				return
			}
			if opts.TLSConfig == nil || opts.TLSConfig.ServerName != tt.wantServer {
				t.Fatalf("TLSConfig = %+v", opts.TLSConfig)
			}
		})
	}
}
