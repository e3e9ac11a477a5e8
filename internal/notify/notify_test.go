package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventEdgeDetected}, discardLogger())

	if err := n.Notify(context.Background(), EventAnalysisFailed, "x", "y"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := n.Notify(context.Background(), EventEdgeDetected, "edge", "y"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.titles) != 1 || s.titles[0] != "edge" {
		t.Fatalf("delivered %v, want only the edge event", s.titles)
	}
}

func TestNotifierEmptyEventsAllowsAll(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())
	_ = n.Notify(context.Background(), "anything", "t", "m")
	if len(s.titles) != 1 {
		t.Fatalf("delivered %d, want 1", len(s.titles))
	}
}

func TestNotifierContinuesAfterFailure(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("down")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), EventEdgeDetected, "t", "m")
	if err == nil || !strings.Contains(err.Error(), "bad") {
		t.Fatalf("err = %v, want failure naming bad sender", err)
	}
	if len(good.titles) != 1 {
		t.Fatal("good sender was skipped")
	}
}

func TestFormatEdges(t *testing.T) {
	report := domain.Report{
		RunID: "run-9",
		Edges: []domain.EdgeRecord{
			{MarketID: "m1", Question: "Will A?", Side: domain.SideNo, Recommendation: domain.BuyThisSide,
				ImpliedProbability: 0.08, RealizedWinRate: 0.988, EdgeMagnitude: 0.908, Confidence: 1, SampleCount: 1000},
			{MarketID: "m2", Side: domain.SideYes, Recommendation: domain.BuyOtherSide,
				ImpliedProbability: 0.6, RealizedWinRate: 0.4, EdgeMagnitude: -0.2, Confidence: 0.3, SampleCount: 60,
				ReducedConfidence: true},
			{MarketID: "m3", Side: domain.SideYes, Recommendation: domain.BuyThisSide},
		},
	}

	title, msg := FormatEdges(report, 2)
	if title != "3 edge(s) detected" {
		t.Errorf("title = %q", title)
	}
	for _, want := range []string{
		"1. Will A?",
		"BUY_THIS_SIDE NO @ 0.080 | realized 0.988 | edge +0.908",
		"2. m2",
		"one-sided",
		"and 1 more",
		"run run-9",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "m3") {
		t.Error("message includes edge beyond topN")
	}
}

func TestNotifyReportSkipsEmpty(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())
	if err := n.NotifyReport(context.Background(), domain.Report{}, 5); err != nil {
		t.Fatal(err)
	}
	if len(s.titles) != 0 {
		t.Fatal("empty report should not notify")
	}
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42").WithAPIBase(srv.URL + "/")
	if err := s.Send(context.Background(), "Title", "body"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["chat_id"] != "42" || got["text"] != "*Title*\nbody" {
		t.Fatalf("payload = %v", got)
	}
}

func TestDiscordSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("err = %v, want status 429", err)
	}
}

func TestDiscordSenderTruncates(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewDiscordSender(srv.URL).Send(context.Background(), "t", strings.Repeat("x", 5000)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n := len([]rune(got["content"])); n != discordLimit {
		t.Fatalf("content length = %d, want %d", n, discordLimit)
	}
}
