package core

import "time"

// RunStatus is the overall outcome of a scheduler run.
type RunStatus string

const (
	RunComplete RunStatus = "complete" // no blocked tasks
	RunPartial  RunStatus = "partial"  // some blocked, some succeeded
	RunFailed   RunStatus = "failed"   // every critical-path task blocked
)

// TaskSummary is the serializable final state of one task.
type TaskSummary struct {
	StepID    StepID        `json:"step_id"`
	Status    TaskStatus    `json:"status"`
	Attempts  int           `json:"attempts"`
	Error     string        `json:"error,omitempty"`
	BlockedBy []StepID      `json:"blocked_by,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// HostSnapshot records best-effort host metrics at run completion.
type HostSnapshot struct {
	CPUModel   string  `json:"cpu_model,omitempty"`
	CPUCores   int     `json:"cpu_cores"`
	MemTotalMB float64 `json:"mem_total_mb"`
	MemUsedMB  float64 `json:"mem_used_mb"`
	LoadAvg1   float64 `json:"load_avg_1"`
}

// RunSummary is the serializable outcome of a run, produced
// deterministically for downstream consumers.
type RunSummary struct {
	RunID       string        `json:"run_id"`
	Status      RunStatus     `json:"status"`
	Tasks       []TaskSummary `json:"tasks"` // in step id order
	Succeeded   int           `json:"succeeded"`
	Blocked     int           `json:"blocked"`
	SuccessRate float64       `json:"success_rate"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Host        *HostSnapshot `json:"host,omitempty"`
}

// Duration returns the wall-clock duration of the run.
func (s *RunSummary) Duration() time.Duration {
	return s.CompletedAt.Sub(s.StartedAt)
}
