package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/metrics"
)

// StageFunc runs one pipeline stage.
type StageFunc func(ctx context.Context) error

// Orchestrator runs named stages in sequence, once or on a ticker.
type Orchestrator struct {
	mu      sync.Mutex
	stages  map[string]StageFunc
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewOrchestrator creates an empty Orchestrator. m may be nil.
func NewOrchestrator(m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		stages:  make(map[string]StageFunc),
		metrics: m,
		logger:  logger.With(slog.String("component", "orchestrator")),
	}
}

// Register adds or replaces a stage.
func (o *Orchestrator) Register(name string, fn StageFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages[name] = fn
}

// Has reports whether name is registered.
func (o *Orchestrator) Has(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.stages[name]
	return ok
}

// RunStage runs a single stage and records its outcome.
func (o *Orchestrator) RunStage(ctx context.Context, name string) error {
	o.mu.Lock()
	fn, ok := o.stages[name]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("pipeline: unknown stage %q", name)
	}

	started := time.Now()
	err := fn(ctx)
	if o.metrics != nil {
		o.metrics.ObserveStage(name, started, err)
	}
	if err != nil {
		return fmt.Errorf("pipeline: stage %s: %w", name, err)
	}
	o.logger.Debug("stage complete", slog.String("stage", name), slog.Duration("took", time.Since(started)))
	return nil
}

// RunOnce runs stages in order and stops at the first failure.
func (o *Orchestrator) RunOnce(ctx context.Context, stages []string) error {
	for _, name := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.RunStage(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// RunLoop runs the stages immediately, then on every tick and on every
// receive from trigger, until ctx is cancelled. trigger may be nil. A
// failing pass is logged and retried on the next tick.
func (o *Orchestrator) RunLoop(ctx context.Context, interval time.Duration, stages []string, trigger <-chan struct{}) error {
	o.logger.Info("pipeline loop starting",
		slog.Duration("interval", interval),
		slog.Any("stages", stages),
	)

	pass := func() {
		err := o.RunOnce(ctx, stages)
		switch {
		case err == nil, ctx.Err() != nil:
		case errors.Is(err, domain.ErrLockHeld):
			o.logger.Info("pass skipped, another run holds the lock", slog.String("error", err.Error()))
		default:
			o.logger.Error("pipeline pass failed", slog.String("error", err.Error()))
		}
	}

	pass()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("pipeline loop stopped")
			return nil
		case <-ticker.C:
			pass()
		case <-trigger:
			o.logger.Info("pipeline pass triggered")
			pass()
			ticker.Reset(interval)
		}
	}
}
