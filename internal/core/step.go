package core

// StepID uniquely identifies a step within a workflow graph.
type StepID string

// StepKind categorizes the work a step performs. The kind selects the
// agent contract used to execute the step.
type StepKind string

const (
	KindResearch  StepKind = "research"
	KindAnalysis  StepKind = "analysis"
	KindCreation  StepKind = "creation"
	KindExecution StepKind = "execution"
)

// ValidKind reports whether k is one of the closed set of step kinds.
func ValidKind(k StepKind) bool {
	switch k {
	case KindResearch, KindAnalysis, KindCreation, KindExecution:
		return true
	}
	return false
}

// Step is one unit of work in the workflow DAG. Steps are immutable once
// the graph they belong to has been validated.
type Step struct {
	ID            StepID   `json:"id" yaml:"id"`
	Description   string   `json:"description" yaml:"description"`
	Kind          StepKind `json:"kind" yaml:"kind"`
	Dependencies  []StepID `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Capabilities  []string `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	EstimatedCost float64  `json:"estimated_cost" yaml:"estimated_cost"`
}

// Validate checks step invariants. Graph-level invariants (unknown
// dependency ids, cycles) are checked at graph construction.
func (s Step) Validate() error {
	if s.ID == "" {
		return ErrValidation("STEP_ID_REQUIRED", "step ID cannot be empty")
	}
	if s.Description == "" {
		return ErrValidation("STEP_DESCRIPTION_REQUIRED", "step description cannot be empty")
	}
	if !ValidKind(s.Kind) {
		return ErrValidation("STEP_KIND_INVALID", "unknown step kind: "+string(s.Kind))
	}
	for _, dep := range s.Dependencies {
		if dep == s.ID {
			return ErrValidation(CodeSelfDependency, "step "+string(s.ID)+" depends on itself")
		}
	}
	if s.EstimatedCost < 0 {
		return ErrValidation("STEP_COST_NEGATIVE", "estimated cost cannot be negative")
	}
	return nil
}

// DependsOn reports whether the step directly depends on id.
func (s Step) DependsOn(id StepID) bool {
	for _, dep := range s.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the step.
func (s Step) Clone() Step {
	c := s
	c.Dependencies = append([]StepID(nil), s.Dependencies...)
	c.Capabilities = append([]string(nil), s.Capabilities...)
	return c
}
