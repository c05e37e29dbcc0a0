package task

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timgluz/autoprocess/autoprocess"
	"github.com/timgluz/autoprocess/metrics"
)

type fakeExecutor struct {
	mu    sync.Mutex
	calls []string
	done  chan string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{done: make(chan string, 16)}
}

func (e *fakeExecutor) Execute(ctx context.Context, id string) (*autoprocess.Result, error) {
	e.mu.Lock()
	e.calls = append(e.calls, id)
	e.mu.Unlock()

	e.done <- id
	return &autoprocess.Result{DefinitionID: id}, nil
}

func (e *fakeExecutor) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

type fakeLister map[string][]autoprocess.Definition

func (l fakeLister) ListBySource(ctx context.Context, sourceID string) ([]autoprocess.Definition, error) {
	return l[sourceID], nil
}

func waitFor(t *testing.T, done <-chan string, n int) []string {
	t.Helper()

	var ids []string
	for len(ids) < n {
		select {
		case id := <-done:
			ids = append(ids, id)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d executions", len(ids), n)
		}
	}
	return ids
}

func newTestTrigger(executor Executor, lister DefinitionLister, m *metrics.Metrics) *AutoProcessTrigger {
	opts := AutoProcessTriggerOptions{Delay: 10 * time.Millisecond, Workers: 2}
	return NewAutoProcessTrigger(executor, lister, opts, m, slog.New(slog.DiscardHandler))
}

func TestTriggerDefinitionCommit(t *testing.T) {
	executor := newFakeExecutor()
	trigger := newTestTrigger(executor, fakeLister{}, nil)
	trigger.Start(context.Background())
	defer trigger.Close()

	trigger.HandleCommit(context.Background(), autoprocess.Commit{DefinitionID: "range-check"})

	assert.Equal(t, []string{"range-check"}, waitFor(t, executor.done, 1))
}

func TestTriggerTimeseriesCommit(t *testing.T) {
	executor := newFakeExecutor()
	lister := fakeLister{
		"raw": {{ID: "range-check"}, {ID: "hourly-sum"}},
	}
	trigger := newTestTrigger(executor, lister, nil)
	trigger.Start(context.Background())
	defer trigger.Close()

	trigger.HandleCommit(context.Background(), autoprocess.Commit{TimeseriesID: "raw"})
	trigger.HandleCommit(context.Background(), autoprocess.Commit{TimeseriesID: "unrelated"})

	assert.ElementsMatch(t, []string{"range-check", "hourly-sum"}, waitFor(t, executor.done, 2))
}

func TestTriggerCoalescesPendingRuns(t *testing.T) {
	executor := newFakeExecutor()
	m := metrics.New(prometheus.NewRegistry())
	trigger := newTestTrigger(executor, fakeLister{}, m)
	trigger.Start(context.Background())

	for range 5 {
		require.NoError(t, trigger.Enqueue("range-check"))
	}
	waitFor(t, executor.done, 1)
	require.NoError(t, trigger.Close())

	assert.Equal(t, []string{"range-check"}, executor.Calls())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TriggersQueued))
}

func TestTriggerClosed(t *testing.T) {
	executor := newFakeExecutor()
	trigger := newTestTrigger(executor, fakeLister{}, nil)
	trigger.Start(context.Background())

	require.NoError(t, trigger.Close())
	assert.NoError(t, trigger.Close())
	assert.ErrorIs(t, trigger.Enqueue("range-check"), ErrTriggerClosed)
	assert.Empty(t, executor.Calls())
}
