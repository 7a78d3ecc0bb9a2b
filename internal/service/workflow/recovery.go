package workflow

import (
	"time"

	"github.com/agentmesh/agentmesh/internal/core"
	"github.com/agentmesh/agentmesh/internal/service"
)

// Action is the remediation the recovery manager chose for a failure.
type Action string

const (
	ActionRetry      Action = "retry"
	ActionSubstitute Action = "substitute"
	ActionBlock      Action = "block"
)

// Decision is the outcome of classifying one task failure.
type Decision struct {
	Action      Action
	Backoff     time.Duration // delay before requeueing, retry only
	Alternative string        // substitute capability signature, substitute only
}

// AlternativeFinder locates a substitute signature for a capability.
// Satisfied by the tool registry.
type AlternativeFinder interface {
	FindAlternative(capability, exclude string) (string, bool)
}

// RecoveryManager classifies task failures and picks a remediation.
// Decide is deterministic given identical inputs: backoff comes from a
// pure policy and the alternative lookup is stable.
type RecoveryManager struct {
	maxAttempts int
	backoff     *service.BackoffPolicy
	finder      AlternativeFinder
}

// DefaultMaxAttempts bounds retries for timeout and provider failures.
const DefaultMaxAttempts = 3

// NewRecoveryManager creates a recovery manager.
func NewRecoveryManager(maxAttempts int, backoff *service.BackoffPolicy, finder AlternativeFinder) *RecoveryManager {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if backoff == nil {
		backoff = service.DefaultBackoffPolicy()
	}
	return &RecoveryManager{
		maxAttempts: maxAttempts,
		backoff:     backoff,
		finder:      finder,
	}
}

// Decide returns the remediation for a failed task.
//
// Timeouts and provider errors retry with exponential backoff up to the
// attempt cap. Unavailable tools substitute an alternative signature when
// one exists. A task whose dependency failed can never succeed, so it
// blocks immediately.
func (m *RecoveryManager) Decide(kind core.FailureKind, task *core.AgentTask) Decision {
	switch kind {
	case core.FailureTimeout, core.FailureProviderError:
		if task.Attempts >= m.maxAttempts {
			return Decision{Action: ActionBlock}
		}
		return Decision{
			Action:  ActionRetry,
			Backoff: m.backoff.Delay(task.Attempts),
		}

	case core.FailureToolUnavailable:
		if m.finder == nil || task.Attempts >= m.maxAttempts {
			return Decision{Action: ActionBlock}
		}
		failed := ""
		if len(task.Capabilities) > 0 {
			failed = task.Capabilities[0]
		}
		for _, capability := range task.Capabilities {
			if alt, ok := m.finder.FindAlternative(capability, failed); ok {
				return Decision{Action: ActionSubstitute, Alternative: alt}
			}
		}
		return Decision{Action: ActionBlock}

	case core.FailureDependencyFailed:
		return Decision{Action: ActionBlock}

	default:
		return Decision{Action: ActionBlock}
	}
}

// MaxAttempts returns the configured attempt cap.
func (m *RecoveryManager) MaxAttempts() int {
	return m.maxAttempts
}
