package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/timgluz/autoprocess/autoprocess"
	"github.com/timgluz/autoprocess/metrics"
)

const (
	DefaultTriggerDelay   = time.Second // lets the committing transaction finish first
	DefaultTriggerWorkers = 2
)

var ErrTriggerClosed = fmt.Errorf("auto-process trigger is closed")

type Executor interface {
	Execute(ctx context.Context, id string) (*autoprocess.Result, error)
}

type DefinitionLister interface {
	ListBySource(ctx context.Context, sourceID string) ([]autoprocess.Definition, error)
}

type AutoProcessTriggerOptions struct {
	Delay   time.Duration
	Workers int
}

func NewDefaultAutoProcessTriggerOptions() AutoProcessTriggerOptions {
	return AutoProcessTriggerOptions{
		Delay:   DefaultTriggerDelay,
		Workers: DefaultTriggerWorkers,
	}
}

// AutoProcessTrigger executes definitions after commits. Each definition is
// queued at most once at a time; commits that arrive while it is queued are
// folded into the pending run.
type AutoProcessTrigger struct {
	executor    Executor
	definitions DefinitionLister
	opts        AutoProcessTriggerOptions
	metrics     *metrics.Metrics
	logger      *slog.Logger

	mu      sync.Mutex
	pending map[string]bool
	closed  bool
	jobs    chan string
	wg      sync.WaitGroup
}

func NewAutoProcessTrigger(
	executor Executor,
	definitions DefinitionLister,
	opts AutoProcessTriggerOptions,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AutoProcessTrigger {
	if opts.Workers <= 0 {
		opts.Workers = DefaultTriggerWorkers
	}

	return &AutoProcessTrigger{
		executor:    executor,
		definitions: definitions,
		opts:        opts,
		metrics:     m,
		logger:      logger.With("component", "autoprocess-trigger"),
		pending:     make(map[string]bool),
		jobs:        make(chan string, 64),
	}
}

// Start launches the workers. They stop when ctx is done or Close is called.
func (t *AutoProcessTrigger) Start(ctx context.Context) {
	t.logger.Info("Starting auto-process trigger", "workers", t.opts.Workers, "delay", t.opts.Delay)

	for i := 0; i < t.opts.Workers; i++ {
		t.wg.Add(1)
		go t.worker(ctx)
	}
}

func (t *AutoProcessTrigger) worker(ctx context.Context) {
	defer t.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-t.jobs:
			if !ok {
				return
			}

			t.mu.Lock()
			delete(t.pending, id)
			t.mu.Unlock()

			if _, err := t.executor.Execute(ctx, id); err != nil {
				t.logger.Error("Triggered execution failed", "definition_id", id, "error", err)
			}
		}
	}
}

// HandleCommit is an autoprocess.CommitHook.
func (t *AutoProcessTrigger) HandleCommit(ctx context.Context, commit autoprocess.Commit) {
	if commit.DefinitionID != "" {
		_ = t.Enqueue(commit.DefinitionID)
		return
	}

	definitions, err := t.definitions.ListBySource(ctx, commit.TimeseriesID)
	if err != nil {
		t.logger.Error("Failed to list definitions for time series", "timeseries_id", commit.TimeseriesID, "error", err)
		return
	}
	for _, d := range definitions {
		_ = t.Enqueue(d.ID)
	}
}

// Enqueue schedules the execution of a definition after the configured delay.
func (t *AutoProcessTrigger) Enqueue(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		t.metrics.RecordTrigger(false)
		return ErrTriggerClosed
	}
	if t.pending[id] {
		return nil
	}
	t.pending[id] = true

	t.logger.Debug("Execution queued", "definition_id", id)
	time.AfterFunc(t.opts.Delay, func() { t.push(id) })
	return nil
}

func (t *AutoProcessTrigger) push(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		t.metrics.RecordTrigger(false)
		return
	}

	select {
	case t.jobs <- id:
		t.metrics.RecordTrigger(true)
	default:
		delete(t.pending, id)
		t.metrics.RecordTrigger(false)
		t.logger.Warn("Trigger queue is full, dropping execution", "definition_id", id)
	}
}

// Close stops accepting triggers and waits until the queued executions are
// done. Triggers still waiting for their delay are dropped.
func (t *AutoProcessTrigger) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.jobs)
	t.mu.Unlock()

	t.wg.Wait()
	t.logger.Info("Auto-process trigger closed")
	return nil
}
