package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/metrics"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) stage(name string, err error) StageFunc {
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.calls = append(l.calls, name)
		return err
	}
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func TestOrchestratorRunOnce(t *testing.T) {
	log := &callLog{}
	o := NewOrchestrator(metrics.New(), discardLogger())
	o.Register("discover", log.stage("discover", nil))
	o.Register("collect", log.stage("collect", errors.New("clob down")))
	o.Register("analyze", log.stage("analyze", nil))

	err := o.RunOnce(context.Background(), []string{"discover", "collect", "analyze"})
	if err == nil || !strings.Contains(err.Error(), "stage collect") {
		t.Fatalf("err = %v, want collect failure", err)
	}
	if got := log.snapshot(); len(got) != 2 || got[0] != "discover" || got[1] != "collect" {
		t.Fatalf("calls = %v, want discover then collect", got)
	}

	if err := o.RunStage(context.Background(), "bogus"); err == nil {
		t.Fatal("expected error for unknown stage")
	}
	if !o.Has("analyze") || o.Has("bogus") {
		t.Fatal("Has reports wrong registrations")
	}
}

func TestOrchestratorRunLoop(t *testing.T) {
	log := &callLog{}
	o := NewOrchestrator(nil, discardLogger())
	o.Register("analyze", log.stage("analyze", domain.ErrLockHeld))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.RunLoop(ctx, 5*time.Millisecond, []string{"analyze"}, nil) }()

	deadline := time.After(2 * time.Second)
	for len(log.snapshot()) < 3 {
		select {
		case <-deadline:
			t.Fatalf("loop ran %d passes", len(log.snapshot()))
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunLoop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunLoop did not stop after cancel")
	}
}

func TestOrchestratorRunLoopTrigger(t *testing.T) {
	log := &callLog{}
	o := NewOrchestrator(nil, discardLogger())
	o.Register("analyze", log.stage("analyze", nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	trigger := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- o.RunLoop(ctx, time.Hour, []string{"analyze"}, trigger) }()

	select {
	case trigger <- struct{}{}:
	case <-time.After(2 * time.Second):
		t.Fatal("loop never received the trigger")
	}
	deadline := time.After(2 * time.Second)
	for len(log.snapshot()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("loop ran %d passes, want 2", len(log.snapshot()))
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("RunLoop: %v", err)
	}
}
