package core

import (
	"fmt"
	"time"
)

// TaskStatus represents the current state of an agent task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusReady     TaskStatus = "ready"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusBlocked   TaskStatus = "blocked"
)

// AgentTask is the runtime execution wrapper around a Step. It is owned
// exclusively by the scheduler for the duration of a run; all transitions
// happen under the scheduler's lock.
type AgentTask struct {
	StepID       StepID
	Status       TaskStatus
	Attempts     int
	Capabilities []string // capabilities assigned at acquisition time
	BlockedBy    []StepID // chain of step ids whose failure blocked this task
	Error        string
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// NewAgentTask creates a pending task for a step.
func NewAgentTask(step Step) *AgentTask {
	return &AgentTask{
		StepID: step.ID,
		Status: TaskStatusPending,
	}
}

// MarkReady transitions the task from pending (or failed, on retry) to ready.
func (t *AgentTask) MarkReady() error {
	if t.Status != TaskStatusPending && t.Status != TaskStatusFailed {
		return fmt.Errorf("cannot ready task in %s state", t.Status)
	}
	t.Status = TaskStatusReady
	return nil
}

// MarkRunning transitions the task to running and records the start time.
func (t *AgentTask) MarkRunning() error {
	if t.Status != TaskStatusReady {
		return fmt.Errorf("cannot start task in %s state", t.Status)
	}
	t.Status = TaskStatusRunning
	t.Attempts++
	now := time.Now()
	if t.StartedAt == nil {
		t.StartedAt = &now
	}
	return nil
}

// MarkSucceeded transitions the task to succeeded.
func (t *AgentTask) MarkSucceeded() error {
	if t.Status != TaskStatusRunning {
		return fmt.Errorf("cannot complete task in %s state", t.Status)
	}
	t.Status = TaskStatusSucceeded
	now := time.Now()
	t.CompletedAt = &now
	t.Error = ""
	return nil
}

// MarkFailed transitions the task to failed.
func (t *AgentTask) MarkFailed(err error) error {
	if t.Status != TaskStatusRunning {
		return fmt.Errorf("cannot fail task in %s state", t.Status)
	}
	t.Status = TaskStatusFailed
	t.Error = err.Error()
	return nil
}

// MarkBlocked transitions the task to blocked, recording the chain of step
// ids that caused the block. Tasks can be blocked from any non-terminal
// state: a failed task blocks after recovery gives up, a pending task
// blocks when an ancestor fails permanently.
func (t *AgentTask) MarkBlocked(chain []StepID) error {
	if t.IsTerminal() {
		return fmt.Errorf("cannot block task in %s state", t.Status)
	}
	t.Status = TaskStatusBlocked
	t.BlockedBy = append([]StepID(nil), chain...)
	now := time.Now()
	t.CompletedAt = &now
	return nil
}

// IsTerminal returns true if the task reached a final state.
func (t *AgentTask) IsTerminal() bool {
	return t.Status == TaskStatusSucceeded || t.Status == TaskStatusBlocked
}

// Duration returns the task execution duration.
func (t *AgentTask) Duration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if t.CompletedAt != nil {
		end = *t.CompletedAt
	}
	return end.Sub(*t.StartedAt)
}
