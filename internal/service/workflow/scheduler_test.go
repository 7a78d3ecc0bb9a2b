package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/agentmesh/internal/core"
	"github.com/agentmesh/agentmesh/internal/service"
	"github.com/agentmesh/agentmesh/internal/tools"
)

// stubRunner fails each step with the queued errors before succeeding, and
// records the execution-context keys each step observed.
type stubRunner struct {
	mu       sync.Mutex
	failures map[core.StepID][]error
	observed map[core.StepID][]core.StepID
}

func newStubRunner() *stubRunner {
	return &stubRunner{
		failures: make(map[core.StepID][]error),
		observed: make(map[core.StepID][]core.StepID),
	}
}

func (r *stubRunner) failWith(id core.StepID, errs ...error) {
	r.failures[id] = errs
}

func (r *stubRunner) Run(ctx context.Context, step core.Step, snapshot map[core.StepID]core.Result, descriptors []*core.ToolDescriptor) (core.Result, error) {
	r.mu.Lock()
	if errs := r.failures[step.ID]; len(errs) > 0 {
		err := errs[0]
		r.failures[step.ID] = errs[1:]
		r.mu.Unlock()
		return core.Result{}, err
	}
	for id := range snapshot {
		r.observed[step.ID] = append(r.observed[step.ID], id)
	}
	r.mu.Unlock()

	tool := ""
	if len(descriptors) > 0 {
		tool = descriptors[0].Signature
	}
	return core.Result{StepID: step.ID, Output: "out-" + string(step.ID), Tool: tool}, nil
}

// blockingRunner waits for the context to expire.
type blockingRunner struct{}

func (blockingRunner) Run(ctx context.Context, _ core.Step, _ map[core.StepID]core.Result, _ []*core.ToolDescriptor) (core.Result, error) {
	<-ctx.Done()
	return core.Result{}, ctx.Err()
}

// sleepRecorder captures backoff delays instead of sleeping.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
}

func buildGraph(t *testing.T, steps ...core.Step) *service.Graph {
	t.Helper()
	b := service.NewGraphBuilder()
	for _, s := range steps {
		require.NoError(t, b.AddStep(s))
	}
	g, err := b.Build()
	require.NoError(t, err)
	return g
}

func testStep(id string, cost float64, deps ...string) core.Step {
	s := core.Step{
		ID:            core.StepID(id),
		Description:   "step " + id,
		Kind:          core.KindAnalysis,
		EstimatedCost: cost,
	}
	for _, d := range deps {
		s.Dependencies = append(s.Dependencies, core.StepID(d))
	}
	return s
}

func okRegistry() *tools.Registry {
	factory := func(_ context.Context, signature string) (core.ToolHandle, error) {
		return stubHandle(signature), nil
	}
	return tools.NewRegistry(factory, nil, nil)
}

type stubHandle string

func (h stubHandle) Signature() string { return string(h) }

func newTestScheduler(graph *service.Graph, runner core.AgentRunner, registry *tools.Registry, maxAttempts int, sleeper *sleepRecorder, opts ...SchedulerOption) *Scheduler {
	recovery := NewRecoveryManager(maxAttempts, nil, registry)
	base := []SchedulerOption{WithSleep(sleeper.sleep)}
	return NewScheduler(graph, runner, registry, recovery, nil, append(base, opts...)...)
}

func taskByID(summary *core.RunSummary, id core.StepID) core.TaskSummary {
	for _, task := range summary.Tasks {
		if task.StepID == id {
			return task
		}
	}
	return core.TaskSummary{}
}

func TestScheduler_CompletesLinearChain(t *testing.T) {
	graph := buildGraph(t,
		testStep("a", 1),
		testStep("b", 1, "a"),
		testStep("c", 1, "b"),
	)
	runner := newStubRunner()
	s := newTestScheduler(graph, runner, okRegistry(), 3, &sleepRecorder{})

	report, err := s.Run(context.Background(), "run-1")
	require.NoError(t, err)

	assert.Equal(t, core.RunComplete, report.Summary.Status)
	assert.Equal(t, 3, report.Summary.Succeeded)
	assert.Equal(t, 1.0, report.Summary.SuccessRate)
	assert.Equal(t, 3, report.Context.Len())

	// c ran after a and b: both results were visible in its snapshot.
	assert.ElementsMatch(t, []core.StepID{"a", "b"}, runner.observed["c"])
}

func TestScheduler_ParallelismBounded(t *testing.T) {
	graph := buildGraph(t,
		testStep("a", 1),
		testStep("b", 1),
		testStep("c", 1),
		testStep("d", 1),
	)

	var mu sync.Mutex
	running, peak := 0, 0
	runner := runnerFunc(func(ctx context.Context, step core.Step, _ map[core.StepID]core.Result, _ []*core.ToolDescriptor) (core.Result, error) {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return core.Result{StepID: step.ID, Output: "ok"}, nil
	})

	s := newTestScheduler(graph, runner, okRegistry(), 3, &sleepRecorder{}, WithMaxConcurrent(2))
	report, err := s.Run(context.Background(), "run-parallel")
	require.NoError(t, err)

	assert.Equal(t, core.RunComplete, report.Summary.Status)
	assert.LessOrEqual(t, peak, 2, "worker pool must bound concurrency")
}

type runnerFunc func(context.Context, core.Step, map[core.StepID]core.Result, []*core.ToolDescriptor) (core.Result, error)

func (f runnerFunc) Run(ctx context.Context, step core.Step, snapshot map[core.StepID]core.Result, descriptors []*core.ToolDescriptor) (core.Result, error) {
	return f(ctx, step, snapshot, descriptors)
}

func TestScheduler_RetryThenSuccess(t *testing.T) {
	graph := buildGraph(t, testStep("a", 1))
	runner := newStubRunner()
	runner.failWith("a", core.ErrProvider("flaky"), core.ErrProvider("flaky"))
	sleeper := &sleepRecorder{}

	s := newTestScheduler(graph, runner, okRegistry(), 3, sleeper)
	report, err := s.Run(context.Background(), "run-retry")
	require.NoError(t, err)

	assert.Equal(t, core.RunComplete, report.Summary.Status)
	assert.Equal(t, 3, taskByID(report.Summary, "a").Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
}

func TestScheduler_PartialWhenBranchBlocked(t *testing.T) {
	// a fails permanently, blocking c. The heavier b -> d branch succeeds,
	// so the run is partial.
	graph := buildGraph(t,
		testStep("a", 1),
		testStep("b", 5),
		testStep("c", 1, "a"),
		testStep("d", 5, "b"),
	)
	runner := newStubRunner()
	runner.failWith("a",
		core.ErrProvider("down"), core.ErrProvider("down"), core.ErrProvider("down"))

	s := newTestScheduler(graph, runner, okRegistry(), 3, &sleepRecorder{})
	report, err := s.Run(context.Background(), "run-partial")
	require.NoError(t, err)

	assert.Equal(t, core.RunPartial, report.Summary.Status)
	assert.Equal(t, 2, report.Summary.Succeeded)
	assert.Equal(t, 2, report.Summary.Blocked)

	c := taskByID(report.Summary, "c")
	assert.Equal(t, core.TaskStatusBlocked, c.Status)
	assert.Equal(t, []core.StepID{"a"}, c.BlockedBy)
	assert.Zero(t, c.Attempts, "blocked dependents never run")

	// Only succeeded steps leave results.
	_, ok := report.Context.Get("a")
	assert.False(t, ok)
	_, ok = report.Context.Get("d")
	assert.True(t, ok)
}

func TestScheduler_FailedWhenCriticalPathBlocked(t *testing.T) {
	graph := buildGraph(t,
		testStep("a", 1),
		testStep("b", 1, "a"),
	)
	runner := newStubRunner()
	runner.failWith("a",
		core.ErrProvider("down"), core.ErrProvider("down"), core.ErrProvider("down"))

	s := newTestScheduler(graph, runner, okRegistry(), 3, &sleepRecorder{})
	report, err := s.Run(context.Background(), "run-failed")
	require.NoError(t, err)

	assert.Equal(t, core.RunFailed, report.Summary.Status)
	b := taskByID(report.Summary, "b")
	assert.Equal(t, core.TaskStatusBlocked, b.Status)
	assert.Equal(t, []core.StepID{"a"}, b.BlockedBy)
}

func TestScheduler_TransitiveBlockChain(t *testing.T) {
	graph := buildGraph(t,
		testStep("a", 1),
		testStep("b", 1, "a"),
		testStep("c", 1, "b"),
	)
	runner := newStubRunner()
	runner.failWith("a", core.ErrProvider("down"))

	s := newTestScheduler(graph, runner, okRegistry(), 1, &sleepRecorder{})
	report, err := s.Run(context.Background(), "run-chain")
	require.NoError(t, err)

	c := taskByID(report.Summary, "c")
	assert.Equal(t, []core.StepID{"a", "b"}, c.BlockedBy, "chain names the path from the root cause")
}

func TestScheduler_TimeoutRetriesThenBlocks(t *testing.T) {
	graph := buildGraph(t, testStep("a", 1))
	sleeper := &sleepRecorder{}

	s := newTestScheduler(graph, blockingRunner{}, okRegistry(), 2, sleeper,
		WithTaskTimeout(10*time.Millisecond))
	report, err := s.Run(context.Background(), "run-timeout")
	require.NoError(t, err)

	assert.Equal(t, core.RunFailed, report.Summary.Status)
	a := taskByID(report.Summary, "a")
	assert.Equal(t, core.TaskStatusBlocked, a.Status)
	assert.Equal(t, 2, a.Attempts)
	assert.Len(t, sleeper.delays, 1, "one retry before the attempt cap")
	assert.Contains(t, a.Error, "deadline")
}

func TestScheduler_ToolSubstitution(t *testing.T) {
	graph := buildGraph(t, core.Step{
		ID:            "x",
		Description:   "needs a tool",
		Kind:          core.KindResearch,
		Capabilities:  []string{"web_search"},
		EstimatedCost: 1,
	})

	factory := func(_ context.Context, signature string) (core.ToolHandle, error) {
		if signature == "web_search" {
			return nil, core.ErrProvider("endpoint gone")
		}
		return stubHandle(signature), nil
	}
	registry := tools.NewRegistry(factory, nil, nil)
	registry.RegisterAlternates("web_search", "web_search", "document_lookup")

	runner := newStubRunner()
	s := newTestScheduler(graph, runner, registry, 3, &sleepRecorder{})

	report, err := s.Run(context.Background(), "run-substitute")
	require.NoError(t, err)

	assert.Equal(t, core.RunComplete, report.Summary.Status)
	assert.Equal(t, 2, taskByID(report.Summary, "x").Attempts)

	res, ok := report.Context.Get("x")
	require.True(t, ok)
	assert.Equal(t, "document_lookup", res.Tool)
}

func TestScheduler_CancelMidRunSettlesAllTasks(t *testing.T) {
	graph := buildGraph(t,
		testStep("a", 1),
		testStep("b", 1, "a"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := runnerFunc(func(ctx context.Context, _ core.Step, _ map[core.StepID]core.Result, _ []*core.ToolDescriptor) (core.Result, error) {
		cancel()
		return core.Result{}, ctx.Err()
	})

	s := newTestScheduler(graph, runner, okRegistry(), 3, &sleepRecorder{})

	done := make(chan struct{})
	var report *Report
	var err error
	go func() {
		report, err = s.Run(ctx, "run-cancelled")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	require.NoError(t, err)

	// Every task settles: the interrupted one and its dependents block.
	assert.Equal(t, core.RunFailed, report.Summary.Status)
	a := taskByID(report.Summary, "a")
	assert.Equal(t, core.TaskStatusBlocked, a.Status)
	assert.Contains(t, a.Error, "canceled")
	b := taskByID(report.Summary, "b")
	assert.Equal(t, core.TaskStatusBlocked, b.Status)
	assert.Equal(t, []core.StepID{"a"}, b.BlockedBy)
}

func TestScheduler_EmptyGraphRejected(t *testing.T) {
	s := NewScheduler(nil, newStubRunner(), okRegistry(), nil, nil)
	_, err := s.Run(context.Background(), "run-empty")
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestScheduler_SummaryDeterministicOrder(t *testing.T) {
	graph := buildGraph(t,
		testStep("b", 1),
		testStep("a", 1),
		testStep("c", 1),
	)
	s := newTestScheduler(graph, newStubRunner(), okRegistry(), 3, &sleepRecorder{})

	report, err := s.Run(context.Background(), "run-order")
	require.NoError(t, err)

	var ids []core.StepID
	for _, task := range report.Summary.Tasks {
		ids = append(ids, task.StepID)
	}
	assert.Equal(t, []core.StepID{"a", "b", "c"}, ids)
}
