package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/platform/polymarket"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func market(id string, outcome domain.Outcome) domain.Market {
	m := domain.Market{
		ID:         id,
		Question:   "Question " + id,
		Category:   "test",
		YesTokenID: id + "-yes-token-0001",
		NoTokenID:  id + "-no-token-00001",
		Outcome:    outcome,
		Status:     domain.MarketStatusActive,
	}
	if outcome.Resolved() {
		m.Status = domain.MarketStatusClosed
	}
	return m
}

type memMarkets struct {
	mu      sync.Mutex
	markets map[string]domain.Market
}

func newMemMarkets(ms ...domain.Market) *memMarkets {
	s := &memMarkets{markets: map[string]domain.Market{}}
	for _, m := range ms {
		s.markets[m.ID] = m
	}
	return s
}

func (s *memMarkets) Upsert(ctx context.Context, m domain.Market) error {
	_, err := s.UpsertBatch(ctx, []domain.Market{m})
	return err
}

func (s *memMarkets) UpsertBatch(_ context.Context, ms []domain.Market) (domain.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res domain.UpsertResult
	for _, m := range ms {
		if old, ok := s.markets[m.ID]; ok {
			res.Updated++
			if old.CurrentOutcome().Resolved() {
				m.Outcome, m.ResolvedAt = old.Outcome, old.ResolvedAt
			}
		} else {
			res.Inserted++
		}
		s.markets[m.ID] = m
	}
	return res, nil
}

func (s *memMarkets) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memMarkets) List(_ context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.markets {
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if f.Category != "" && m.Category != f.Category {
			continue
		}
		if f.Resolved != nil && m.CurrentOutcome().Resolved() != *f.Resolved {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *memMarkets) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.markets)), nil
}

type historyKey struct {
	market string
	side   domain.Side
	ts     int64
}

type memHistory struct {
	mu     sync.Mutex
	points []domain.SidedPoint
	seen   map[historyKey]bool
}

func newMemHistory() *memHistory {
	return &memHistory{seen: map[historyKey]bool{}}
}

func (s *memHistory) InsertBatch(_ context.Context, pts []domain.SidedPoint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, p := range pts {
		k := historyKey{p.MarketID, p.Side, p.Timestamp.UnixNano()}
		if s.seen[k] {
			continue
		}
		s.seen[k] = true
		s.points = append(s.points, p)
		n++
	}
	return n, nil
}

func (s *memHistory) ListByMarket(_ context.Context, id string) ([]domain.SidedPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SidedPoint
	for _, p := range s.points {
		if p.MarketID == id {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memHistory) ListAll(_ context.Context, fn func(domain.SidedPoint) error) error {
	s.mu.Lock()
	pts := append([]domain.SidedPoint(nil), s.points...)
	s.mu.Unlock()
	for _, p := range pts {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *memHistory) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.points)), nil
}

type memLive struct {
	mu    sync.Mutex
	snaps []domain.LiveSnapshot
}

func (s *memLive) Insert(_ context.Context, snap domain.LiveSnapshot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, old := range s.snaps {
		if old.MarketID == snap.MarketID && old.Time.Equal(snap.Time) {
			return false, nil
		}
	}
	s.snaps = append(s.snaps, snap)
	return true, nil
}

func (s *memLive) Latest(context.Context) ([]domain.LiveSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := map[string]domain.LiveSnapshot{}
	for _, snap := range s.snaps {
		if cur, ok := latest[snap.MarketID]; !ok || snap.Time.After(cur.Time) {
			latest[snap.MarketID] = snap
		}
	}
	out := make([]domain.LiveSnapshot, 0, len(latest))
	for _, snap := range latest {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out, nil
}

func (s *memLive) LatestByMarket(ctx context.Context, id string) (domain.LiveSnapshot, error) {
	all, _ := s.Latest(ctx)
	for _, snap := range all {
		if snap.MarketID == id {
			return snap, nil
		}
	}
	return domain.LiveSnapshot{}, domain.ErrNotFound
}

type memRuns struct {
	mu   sync.Mutex
	runs []domain.AnalysisRun
}

func (s *memRuns) Create(_ context.Context, r domain.AnalysisRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, r)
	return nil
}

func (s *memRuns) GetByID(_ context.Context, id string) (domain.AnalysisRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.AnalysisRun{}, domain.ErrNotFound
}

func (s *memRuns) Latest(context.Context) (domain.AnalysisRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) == 0 {
		return domain.AnalysisRun{}, domain.ErrNotFound
	}
	return s.runs[len(s.runs)-1], nil
}

func (s *memRuns) ListRecent(_ context.Context, limit int) ([]domain.AnalysisRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AnalysisRun
	for i := len(s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.runs[i])
	}
	return out, nil
}

type memEdges struct {
	mu    sync.Mutex
	byRun map[string][]domain.EdgeRecord
}

func (s *memEdges) InsertBatch(_ context.Context, runID string, edges []domain.EdgeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byRun == nil {
		s.byRun = map[string][]domain.EdgeRecord{}
	}
	s.byRun[runID] = append([]domain.EdgeRecord(nil), edges...)
	return nil
}

func (s *memEdges) ListByRun(_ context.Context, runID string, _ domain.ListOpts) ([]domain.EdgeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byRun[runID], nil
}

type memArchiver struct {
	mu      sync.Mutex
	raw     map[string]any
	reports []domain.Report
}

func (a *memArchiver) PutRaw(_ context.Context, kind string, _ time.Time, v any) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.raw == nil {
		a.raw = map[string]any{}
	}
	a.raw[kind] = v
	return "raw/" + kind, nil
}

func (a *memArchiver) PutReport(_ context.Context, r domain.Report) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports = append(a.reports, r)
	return nil
}

type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streams   map[string][][]byte
}

func (b *memBus) Publish(_ context.Context, ch string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published == nil {
		b.published = map[string][][]byte{}
	}
	b.published[ch] = append(b.published[ch], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, fmt.Errorf("not supported")
}

func (b *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streams == nil {
		b.streams = map[string][][]byte{}
	}
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

type memReports struct {
	latest *domain.Report
}

func (r *memReports) SetLatest(_ context.Context, rep domain.Report) error {
	r.latest = &rep
	return nil
}

func (r *memReports) GetLatest(context.Context) (domain.Report, error) {
	if r.latest == nil {
		return domain.Report{}, domain.ErrNotFound
	}
	return *r.latest, nil
}

type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

type memQuotes struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
	calls  int
}

func (q *memQuotes) GetQuote(_ context.Context, token string) (domain.Quote, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	quote, ok := q.quotes[token]
	if !ok {
		return domain.Quote{}, fmt.Errorf("book %s: %w", token, domain.ErrNotFound)
	}
	return quote, nil
}

type memHistoryFetcher struct {
	payloads map[string]string
}

func (f *memHistoryFetcher) GetPriceHistory(_ context.Context, q polymarket.HistoryQuery) (json.RawMessage, error) {
	p, ok := f.payloads[q.TokenID]
	if !ok {
		return nil, fmt.Errorf("history %s: %w", q.TokenID, domain.ErrNotFound)
	}
	return json.RawMessage(p), nil
}

type recordingNotifier struct {
	reports  []domain.Report
	failures []error
}

func (n *recordingNotifier) NotifyReport(_ context.Context, r domain.Report, _ int) error {
	n.reports = append(n.reports, r)
	return nil
}

func (n *recordingNotifier) NotifyFailure(_ context.Context, err error) error {
	n.failures = append(n.failures, err)
	return nil
}
