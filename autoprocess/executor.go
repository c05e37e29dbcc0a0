package autoprocess

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/timgluz/autoprocess/metrics"
	"github.com/timgluz/autoprocess/timeseries"
)

// Commit describes data or configuration that has just been persisted.
// Exactly one of the fields is set.
type Commit struct {
	DefinitionID string
	TimeseriesID string
}

// CommitHook is called after a successful commit.
type CommitHook func(ctx context.Context, commit Commit)

type Result struct {
	RunID        string        `json:"run_id"`
	DefinitionID string        `json:"definition_id"`
	Kind         Kind          `json:"kind"`
	Start        time.Time     `json:"start,omitzero"`
	Fetched      int           `json:"fetched"`
	Appended     int           `json:"appended"`
	Duration     time.Duration `json:"duration"`
}

// Executor runs definitions against a time series store. Runs of the same
// definition are serialized; different definitions run independently.
type Executor struct {
	definitions Repository
	store       timeseries.Store
	metrics     *metrics.Metrics
	logger      *slog.Logger
	parallelism int

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	hooksMu sync.RWMutex
	hooks   []CommitHook
}

type ExecutorOption func(*Executor)

func WithMetrics(m *metrics.Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithParallelism limits how many definitions ExecuteAll runs at once.
func WithParallelism(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

func NewExecutor(definitions Repository, store timeseries.Store, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		definitions: definitions,
		store:       store,
		logger:      logger,
		parallelism: 4,
		locks:       make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) IsReady() bool {
	if e.logger == nil {
		fmt.Println("Logger of executor is not initialized")
		return false
	}

	if e.definitions == nil || !e.definitions.IsReady() {
		e.logger.Error("Definition repository is not initialized or not ready")
		return false
	}

	if e.store == nil || !e.store.IsReady() {
		e.logger.Error("Time series store is not initialized or not ready")
		return false
	}
	return true
}

// OnCommit registers a hook that runs after a definition is saved and after
// data is appended to a time series, including the targets written by Execute.
func (e *Executor) OnCommit(hook CommitHook) {
	e.hooksMu.Lock()
	defer e.hooksMu.Unlock()

	e.hooks = append(e.hooks, hook)
}

func (e *Executor) commit(ctx context.Context, c Commit) {
	e.hooksMu.RLock()
	hooks := e.hooks
	e.hooksMu.RUnlock()

	for _, hook := range hooks {
		hook(ctx, c)
	}
}

// SaveDefinition validates a definition, checks that both series belong to
// its station and stores it.
func (e *Executor) SaveDefinition(ctx context.Context, d *Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if _, _, err := e.checkIntegrity(ctx, d); err != nil {
		return err
	}

	if err := e.definitions.Save(ctx, d); err != nil {
		e.logger.Error("Failed to save definition", "definition_id", d.ID, "error", err)
		return err
	}

	e.logger.Info("Definition saved", "definition_id", d.ID, "kind", d.Kind)
	e.commit(ctx, Commit{DefinitionID: d.ID})
	return nil
}

// AppendData appends raw records to a series and notifies the commit hooks.
func (e *Executor) AppendData(ctx context.Context, timeseriesID string, frame *timeseries.Frame) error {
	if err := e.store.AppendData(ctx, timeseriesID, frame); err != nil {
		return err
	}
	if !frame.IsEmpty() {
		e.commit(ctx, Commit{TimeseriesID: timeseriesID})
	}
	return nil
}

func (e *Executor) checkIntegrity(ctx context.Context, d *Definition) (*timeseries.Timeseries, *timeseries.Timeseries, error) {
	source, err := e.store.GetTimeseries(ctx, d.SourceID)
	if err != nil {
		return nil, nil, configError(d.ID, "source_timeseries", "cannot be loaded", err)
	}
	target, err := e.store.GetTimeseries(ctx, d.TargetID)
	if err != nil {
		return nil, nil, configError(d.ID, "target_timeseries", "cannot be loaded", err)
	}

	if source.StationID != d.StationID {
		return nil, nil, configError(d.ID, "source_timeseries", "must belong to station "+d.StationID, nil)
	}
	if target.StationID != d.StationID {
		return nil, nil, configError(d.ID, "target_timeseries", "must belong to station "+d.StationID, nil)
	}
	return source, target, nil
}

func (e *Executor) lock(id string) func() {
	e.locksMu.Lock()
	mu, ok := e.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[id] = mu
	}
	e.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Execute processes the source data that arrived after the end of the target
// and appends the result to the target. Either the whole result is appended
// or nothing is, so a failed run can simply be repeated.
func (e *Executor) Execute(ctx context.Context, id string) (*Result, error) {
	unlock := e.lock(id)
	defer unlock()

	started := time.Now()
	result := &Result{RunID: uuid.NewString(), DefinitionID: id}
	logger := e.logger.With("definition_id", id, "run_id", result.RunID)

	err := e.execute(ctx, result, logger)
	result.Duration = time.Since(started)
	kind := string(result.Kind)
	if kind == "" {
		kind = "unknown"
	}
	e.metrics.RecordExecution(kind, err, result.Duration, result.Fetched, result.Appended)
	if err != nil {
		logger.Error("Execution failed", "error", err)
		return nil, err
	}

	logger.Info("Execution finished",
		"kind", result.Kind,
		"start", result.Start,
		"fetched", result.Fetched,
		"appended", result.Appended,
		"duration", result.Duration,
	)
	return result, nil
}

func (e *Executor) execute(ctx context.Context, result *Result, logger *slog.Logger) error {
	d, err := e.definitions.GetByID(ctx, result.DefinitionID)
	if err != nil {
		return err
	}
	result.Kind = d.Kind

	if err := d.Validate(); err != nil {
		return err
	}
	source, _, err := e.checkIntegrity(ctx, d)
	if err != nil {
		return err
	}

	processor, err := NewProcessor(d, source)
	if err != nil {
		return err
	}

	end, err := e.store.EndDate(ctx, d.TargetID)
	if err != nil {
		return fmt.Errorf("get end date of %s: %w", d.TargetID, err)
	}
	start, err := d.StartDate(end)
	if err != nil {
		return err
	}
	result.Start = start

	frame, err := e.store.GetData(ctx, d.SourceID, start)
	if err != nil {
		return fmt.Errorf("get data of %s: %w", d.SourceID, err)
	}
	result.Fetched = frame.Len()
	logger.Debug("Fetched source window", "source", d.SourceID, "start", start, "records", frame.Len())

	out, err := processor.Process(ctx, frame)
	if err != nil {
		return fmt.Errorf("process %s: %w", d.ID, err)
	}

	if err := e.store.AppendData(ctx, d.TargetID, out); err != nil {
		return fmt.Errorf("append data to %s: %w", d.TargetID, err)
	}
	result.Appended = out.Len()

	if result.Appended > 0 {
		e.commit(ctx, Commit{TimeseriesID: d.TargetID})
	}
	return nil
}

// ExecuteAll runs the given definitions, all of them when ids is empty,
// at most parallelism at a time. It returns the results of the successful
// runs and the first error.
func (e *Executor) ExecuteAll(ctx context.Context, ids ...string) ([]*Result, error) {
	if len(ids) == 0 {
		definitions, err := e.definitions.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, d := range definitions {
			ids = append(ids, d.ID)
		}
	}

	results := make([]*Result, len(ids))
	var g errgroup.Group
	g.SetLimit(e.parallelism)
	for i, id := range ids {
		g.Go(func() error {
			result, err := e.Execute(ctx, id)
			if err != nil {
				return fmt.Errorf("execute %s: %w", id, err)
			}
			results[i] = result
			return nil
		})
	}
	err := g.Wait()

	done := make([]*Result, 0, len(results))
	for _, r := range results {
		if r != nil {
			done = append(done, r)
		}
	}
	return done, err
}
