package core

import (
	"errors"
	"testing"
)

func pendingTask() *AgentTask {
	return NewAgentTask(Step{ID: "s1", Description: "test", Kind: KindAnalysis})
}

func TestAgentTask_HappyPath(t *testing.T) {
	task := pendingTask()
	if task.Status != TaskStatusPending {
		t.Fatalf("new task status = %s, want pending", task.Status)
	}

	if err := task.MarkReady(); err != nil {
		t.Fatalf("MarkReady() error = %v", err)
	}
	if err := task.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if task.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", task.Attempts)
	}
	if task.StartedAt == nil {
		t.Error("StartedAt not recorded")
	}

	if err := task.MarkSucceeded(); err != nil {
		t.Fatalf("MarkSucceeded() error = %v", err)
	}
	if !task.IsTerminal() {
		t.Error("succeeded task should be terminal")
	}
}

func TestAgentTask_RetryTransition(t *testing.T) {
	task := pendingTask()
	_ = task.MarkReady()
	_ = task.MarkRunning()
	if err := task.MarkFailed(errors.New("boom")); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	if task.IsTerminal() {
		t.Error("failed task must not be terminal; recovery may retry it")
	}

	// failed -> ready is the retry edge
	if err := task.MarkReady(); err != nil {
		t.Fatalf("MarkReady() after failure error = %v", err)
	}
	_ = task.MarkRunning()
	if task.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", task.Attempts)
	}
	if err := task.MarkSucceeded(); err != nil {
		t.Fatalf("MarkSucceeded() error = %v", err)
	}
	if task.Error != "" {
		t.Errorf("Error = %q, want cleared after success", task.Error)
	}
}

func TestAgentTask_IllegalTransitions(t *testing.T) {
	task := pendingTask()
	if err := task.MarkRunning(); err == nil {
		t.Error("MarkRunning() from pending should fail")
	}
	if err := task.MarkSucceeded(); err == nil {
		t.Error("MarkSucceeded() from pending should fail")
	}

	_ = task.MarkReady()
	_ = task.MarkRunning()
	_ = task.MarkSucceeded()
	if err := task.MarkBlocked(nil); err == nil {
		t.Error("MarkBlocked() from succeeded should fail")
	}
	if err := task.MarkReady(); err == nil {
		t.Error("MarkReady() from succeeded should fail")
	}
}

func TestAgentTask_BlockedFromPending(t *testing.T) {
	task := pendingTask()
	if err := task.MarkBlocked([]StepID{"root-cause", "parent"}); err != nil {
		t.Fatalf("MarkBlocked() error = %v", err)
	}
	if !task.IsTerminal() {
		t.Error("blocked task should be terminal")
	}
	if len(task.BlockedBy) != 2 || task.BlockedBy[0] != "root-cause" {
		t.Errorf("BlockedBy = %v, want [root-cause parent]", task.BlockedBy)
	}
}
