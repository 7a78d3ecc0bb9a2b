package workflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agentmesh/agentmesh/internal/core"
	"github.com/agentmesh/agentmesh/internal/logging"
	"github.com/agentmesh/agentmesh/internal/service"
	"github.com/agentmesh/agentmesh/internal/tools"
)

// DefaultMaxConcurrent bounds the worker pool when no limit is configured.
const DefaultMaxConcurrent = 4

// DefaultTaskTimeout bounds a single task attempt.
const DefaultTaskTimeout = 5 * time.Minute

// HostCollector captures host metrics for the run summary. Best effort;
// a nil snapshot is fine.
type HostCollector func(ctx context.Context) *core.HostSnapshot

// Scheduler executes a validated graph with readiness-driven dispatch: a
// task becomes eligible the moment its last dependency succeeds, and a
// bounded worker pool drains the ready queue in FIFO order.
type Scheduler struct {
	graph         *service.Graph
	runner        core.AgentRunner
	registry      *tools.Registry
	recovery      *RecoveryManager
	logger        *logging.Logger
	maxConcurrent int
	taskTimeout   time.Duration
	sleep         func(time.Duration)
	collectHost   HostCollector
}

// SchedulerOption configures a scheduler.
type SchedulerOption func(*Scheduler)

// WithMaxConcurrent sets the worker pool size.
func WithMaxConcurrent(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxConcurrent = n
		}
	}
}

// WithTaskTimeout sets the per-attempt deadline.
func WithTaskTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.taskTimeout = d
		}
	}
}

// WithSleep overrides the backoff sleep. Tests inject a recording stub so
// retry delays are asserted without waiting for them.
func WithSleep(fn func(time.Duration)) SchedulerOption {
	return func(s *Scheduler) {
		s.sleep = fn
	}
}

// WithHostCollector attaches a host metrics collector.
func WithHostCollector(fn HostCollector) SchedulerOption {
	return func(s *Scheduler) {
		s.collectHost = fn
	}
}

// NewScheduler creates a scheduler for one graph.
func NewScheduler(graph *service.Graph, runner core.AgentRunner, registry *tools.Registry, recovery *RecoveryManager, logger *logging.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if recovery == nil {
		recovery = NewRecoveryManager(0, nil, registry)
	}
	s := &Scheduler{
		graph:         graph,
		runner:        runner,
		registry:      registry,
		recovery:      recovery,
		logger:        logger,
		maxConcurrent: DefaultMaxConcurrent,
		taskTimeout:   DefaultTaskTimeout,
		sleep:         time.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report is the outcome of one scheduler run.
type Report struct {
	Summary *core.RunSummary
	Context *core.ExecutionContext
}

// run holds the mutable state of one execution. All task transitions and
// counter updates happen under mu; the ready queue channel is closed
// exactly once, when no non-terminal tasks remain.
type run struct {
	s    *Scheduler
	ctx  context.Context
	ectx *core.ExecutionContext

	mu          sync.Mutex
	tasks       map[core.StepID]*core.AgentTask
	unresolved  map[core.StepID]int // outstanding dependency count per task
	overrides   map[core.StepID][]string
	outstanding int

	queue     chan core.StepID
	closeOnce sync.Once
}

// Run executes the graph to quiescence: every task ends succeeded or
// blocked. The returned report is always non-nil on a nil error, even when
// the run status is failed.
func (s *Scheduler) Run(ctx context.Context, runID string) (*Report, error) {
	if s.graph == nil || s.graph.Len() == 0 {
		return nil, core.ErrEmptyWorkflow("scheduler requires a non-empty graph")
	}

	startedAt := time.Now()
	logger := s.logger.WithRun(runID)

	r := &run{
		s:          s,
		ctx:        ctx,
		ectx:       core.NewExecutionContext(),
		tasks:      make(map[core.StepID]*core.AgentTask, s.graph.Len()),
		unresolved: make(map[core.StepID]int, s.graph.Len()),
		overrides:  make(map[core.StepID][]string),
		// Sized so requeues on retry and substitution never block the
		// enqueueing worker.
		queue: make(chan core.StepID, s.graph.Len()*(s.recovery.MaxAttempts()+2)),
	}
	r.outstanding = s.graph.Len()

	for _, id := range s.graph.Order() {
		step, _ := s.graph.Step(id)
		r.tasks[id] = core.NewAgentTask(step)
		r.unresolved[id] = len(step.Dependencies)
	}
	for _, id := range s.graph.Order() {
		if r.unresolved[id] == 0 {
			_ = r.tasks[id].MarkReady()
			r.queue <- id
		}
	}

	workers := s.maxConcurrent
	if workers > s.graph.Len() {
		workers = s.graph.Len()
	}
	logger.Info("run started", "steps", s.graph.Len(), "workers", workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range r.queue {
				r.execute(id, logger)
			}
		}()
	}
	wg.Wait()

	summary := r.summarize(runID, startedAt)
	if s.collectHost != nil {
		summary.Host = s.collectHost(ctx)
	}

	logger.Info("run finished",
		"status", summary.Status,
		"succeeded", summary.Succeeded,
		"blocked", summary.Blocked,
		"duration", summary.Duration(),
	)
	return &Report{Summary: summary, Context: r.ectx}, nil
}

// execute runs one attempt of a task and routes the outcome.
func (r *run) execute(id core.StepID, logger *logging.Logger) {
	taskLog := logger.WithStep(string(id))

	r.mu.Lock()
	task := r.tasks[id]
	if task.IsTerminal() {
		r.mu.Unlock()
		return
	}
	if r.ctx.Err() != nil {
		task.Error = r.ctx.Err().Error()
		_ = task.MarkBlocked(nil)
		r.settle()
		// Dependents can never run now; settle them too or the queue
		// stays open and Run never returns.
		r.blockDependents(id, []core.StepID{id})
		r.mu.Unlock()
		return
	}
	step, _ := r.s.graph.Step(id)

	_ = task.MarkRunning()
	attempt := task.Attempts
	capabilities := r.overrides[id]
	if capabilities == nil {
		capabilities = step.Capabilities
	}
	// Recorded before acquisition so recovery sees the requested
	// capabilities even when provisioning itself fails.
	task.Capabilities = append([]string(nil), capabilities...)
	r.mu.Unlock()

	taskLog.Debug("task started", "attempt", attempt)

	descriptors, acquired, acqErr := r.acquireTools(capabilities)
	if acqErr != nil {
		r.handleFailure(id, core.FailureToolUnavailable, acqErr, taskLog)
		return
	}

	r.mu.Lock()
	task.Capabilities = acquired
	r.mu.Unlock()

	attemptCtx, cancel := context.WithTimeout(r.ctx, r.s.taskTimeout)
	result, err := r.s.runner.Run(attemptCtx, step, r.ectx.Snapshot(), descriptors)
	cancel()

	if err != nil {
		r.handleFailure(id, core.ClassifyFailure(err), err, taskLog)
		return
	}

	result.StepID = id
	r.mu.Lock()
	defer r.mu.Unlock()

	_ = task.MarkSucceeded()
	if err := r.ectx.Set(result); err != nil {
		// Write-once violation; cannot happen with single ownership.
		taskLog.Error("duplicate result rejected", "error", err)
	}
	taskLog.Info("task succeeded", "attempt", attempt, "duration", task.Duration())
	r.releaseDependents(id)
	r.settle()
}

// acquireTools provisions every requested capability. The first failure
// aborts the attempt; signatures acquired so far are reported on the task.
func (r *run) acquireTools(capabilities []string) ([]*core.ToolDescriptor, []string, error) {
	descriptors := make([]*core.ToolDescriptor, 0, len(capabilities))
	signatures := make([]string, 0, len(capabilities))
	for _, capability := range capabilities {
		desc, err := r.s.registry.Acquire(r.ctx, capability)
		if err != nil {
			return nil, signatures, err
		}
		descriptors = append(descriptors, desc)
		signatures = append(signatures, desc.Signature)
	}
	return descriptors, signatures, nil
}

// handleFailure marks the task failed and applies the recovery decision.
func (r *run) handleFailure(id core.StepID, kind core.FailureKind, cause error, taskLog *logging.Logger) {
	r.mu.Lock()
	task := r.tasks[id]
	_ = task.MarkFailed(cause)
	decision := r.s.recovery.Decide(kind, task)
	r.mu.Unlock()

	taskLog.Warn("task failed",
		"kind", string(kind),
		"attempt", task.Attempts,
		"action", string(decision.Action),
		"error", cause,
	)

	switch decision.Action {
	case ActionRetry:
		r.s.sleep(decision.Backoff)
		r.mu.Lock()
		if !task.IsTerminal() {
			_ = task.MarkReady()
			r.queue <- id
		}
		r.mu.Unlock()

	case ActionSubstitute:
		r.mu.Lock()
		if len(task.Capabilities) > 0 {
			r.s.registry.Invalidate(task.Capabilities[0])
		}
		r.overrides[id] = substituteCapability(r.overrideOrStep(id), decision.Alternative)
		if !task.IsTerminal() {
			_ = task.MarkReady()
			r.queue <- id
		}
		r.mu.Unlock()
		taskLog.Info("capability substituted", "alternative", decision.Alternative)

	default: // ActionBlock
		r.mu.Lock()
		_ = task.MarkBlocked(nil)
		r.settle()
		r.blockDependents(id, []core.StepID{id})
		r.mu.Unlock()
	}
}

// overrideOrStep returns the capability list currently in effect for a
// task. Caller holds mu.
func (r *run) overrideOrStep(id core.StepID) []string {
	if caps, ok := r.overrides[id]; ok {
		return caps
	}
	step, _ := r.s.graph.Step(id)
	return step.Capabilities
}

// substituteCapability replaces the first capability with the alternative,
// keeping the rest.
func substituteCapability(capabilities []string, alternative string) []string {
	if len(capabilities) == 0 {
		return []string{alternative}
	}
	out := append([]string{alternative}, capabilities[1:]...)
	return out
}

// releaseDependents decrements dependency counts after a success and
// enqueues newly ready tasks. Caller holds mu.
func (r *run) releaseDependents(id core.StepID) {
	for _, dep := range r.s.graph.Dependents(id) {
		r.unresolved[dep]--
		if r.unresolved[dep] == 0 && r.tasks[dep].Status == core.TaskStatusPending {
			_ = r.tasks[dep].MarkReady()
			r.queue <- dep
		}
	}
}

// blockDependents cascades a permanent failure through the transitive
// dependents, recording the failure chain on each. Caller holds mu.
func (r *run) blockDependents(id core.StepID, chain []core.StepID) {
	type frame struct {
		id    core.StepID
		chain []core.StepID
	}
	pending := []frame{}
	for _, dep := range r.s.graph.Dependents(id) {
		pending = append(pending, frame{id: dep, chain: chain})
	}

	for len(pending) > 0 {
		f := pending[0]
		pending = pending[1:]

		task := r.tasks[f.id]
		if task.IsTerminal() {
			continue
		}
		_ = task.MarkBlocked(f.chain)
		r.settle()

		next := append(append([]core.StepID(nil), f.chain...), f.id)
		for _, dep := range r.s.graph.Dependents(f.id) {
			pending = append(pending, frame{id: dep, chain: next})
		}
	}
}

// settle records that a task reached a terminal state and closes the
// ready queue once none remain. Caller holds mu.
func (r *run) settle() {
	r.outstanding--
	if r.outstanding == 0 {
		r.closeOnce.Do(func() { close(r.queue) })
	}
}

// summarize folds final task states into a run summary. Tasks are listed
// in step id order so output is deterministic.
func (r *run) summarize(runID string, startedAt time.Time) *core.RunSummary {
	ids := make([]core.StepID, 0, len(r.tasks))
	for id := range r.tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	summary := &core.RunSummary{
		RunID:       runID,
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
	}

	blocked := make(map[core.StepID]bool)
	for _, id := range ids {
		task := r.tasks[id]
		summary.Tasks = append(summary.Tasks, core.TaskSummary{
			StepID:    id,
			Status:    task.Status,
			Attempts:  task.Attempts,
			Error:     task.Error,
			BlockedBy: append([]core.StepID(nil), task.BlockedBy...),
			Duration:  task.Duration(),
		})
		switch task.Status {
		case core.TaskStatusSucceeded:
			summary.Succeeded++
		case core.TaskStatusBlocked:
			summary.Blocked++
			blocked[id] = true
		}
	}
	if len(ids) > 0 {
		summary.SuccessRate = float64(summary.Succeeded) / float64(len(ids))
	}
	summary.Status = runStatus(r.s.graph.CriticalPath(), blocked, summary.Blocked)
	return summary
}

// runStatus derives the overall outcome: complete when nothing blocked,
// failed when the entire critical path blocked, partial otherwise.
func runStatus(criticalPath []core.StepID, blocked map[core.StepID]bool, blockedCount int) core.RunStatus {
	if blockedCount == 0 {
		return core.RunComplete
	}
	allCritical := len(criticalPath) > 0
	for _, id := range criticalPath {
		if !blocked[id] {
			allCritical = false
			break
		}
	}
	if allCritical {
		return core.RunFailed
	}
	return core.RunPartial
}
