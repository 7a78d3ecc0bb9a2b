package core

import (
	"sort"
	"sync"
	"time"
)

// Result is the payload a succeeded step leaves in the execution context.
type Result struct {
	StepID      StepID        `json:"step_id"`
	Output      string        `json:"output"`
	Tool        string        `json:"tool,omitempty"` // signature of the primary tool used
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
}

// ExecutionContext accumulates per-step results during a run. Writes are
// once per key and append-only: no step may overwrite another step's
// entry. Non-succeeded tasks leave no entry.
type ExecutionContext struct {
	mu      sync.RWMutex
	results map[StepID]Result
}

// NewExecutionContext creates an empty execution context.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{
		results: make(map[StepID]Result),
	}
}

// Set records a step result. Writing a key twice is a contract violation
// and returns a state error.
func (c *ExecutionContext) Set(res Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.results[res.StepID]; exists {
		return ErrState(CodeDuplicateResult, "result already recorded for step "+string(res.StepID))
	}
	c.results[res.StepID] = res
	return nil
}

// Get returns the result for a step, if recorded.
func (c *ExecutionContext) Get(id StepID) (Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.results[id]
	return res, ok
}

// Len returns the number of recorded results.
func (c *ExecutionContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results)
}

// Snapshot returns a read-only copy of the recorded results. Workers hand
// snapshots to agent executions so in-flight writes are never observed.
func (c *ExecutionContext) Snapshot() map[StepID]Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := make(map[StepID]Result, len(c.results))
	for id, res := range c.results {
		snap[id] = res
	}
	return snap
}

// StepIDs returns the recorded step ids in lexical order.
func (c *ExecutionContext) StepIDs() []StepID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]StepID, 0, len(c.results))
	for id := range c.results {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
