package core

import "context"

// TextService is an external text-generation collaborator. Multiple
// independent services feed the consensus reducer; any individual service
// may fail or time out and the builder proceeds with the responses it got.
type TextService interface {
	// Name identifies the service in logs and candidate origins.
	Name() string

	// Propose returns an unordered step-set proposal for the objectives.
	Propose(ctx context.Context, objectives []string) ([]Step, error)

	// Critique scores each step of a merged set for feasibility in [0, 1].
	// Scores below 0.5 count as negative critiques.
	Critique(ctx context.Context, steps []Step) (map[StepID]float64, error)
}

// AgentRunner executes a single step. Implementations must honor the
// caller's context deadline.
type AgentRunner interface {
	Run(ctx context.Context, step Step, snapshot map[StepID]Result, tools []*ToolDescriptor) (Result, error)
}

// Renderer consumes the completed or partial execution context plus the
// original objectives and produces the final output. Downstream of the
// core pipeline.
type Renderer interface {
	Render(objectives []string, results map[StepID]Result) (string, error)
}

// ToolHandle is an opaque handle to a provisioned capability.
type ToolHandle interface {
	// Signature returns the normalized capability request this handle
	// satisfies.
	Signature() string
}

// ToolDescriptor pairs a validated handle with its signature. Shared
// read-only by callers once validated.
type ToolDescriptor struct {
	Signature string
	Handle    ToolHandle
	Validated bool
}
