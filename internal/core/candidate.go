package core

// Candidate is one source's proposal entering a consensus round: a step
// set (or a single step during per-step synthesis), tagged with its
// origin. Candidates are never mutated after creation.
type Candidate struct {
	ID     string // unique within the round, e.g. "gpt/step-2"
	Origin string // name of the proposing source
	Steps  []Step
}

// TotalCost sums the estimated cost of the candidate's steps. Used as the
// conservative-estimate tie-break during consensus reduction.
func (c Candidate) TotalCost() float64 {
	total := 0.0
	for _, s := range c.Steps {
		total += s.EstimatedCost
	}
	return total
}

// Empty reports whether the candidate proposes no steps. Empty candidates
// stand in for sources that did not propose a matching step, so absence
// can outvote presence.
func (c Candidate) Empty() bool {
	return len(c.Steps) == 0
}

// ConsensusResult is the outcome of reducing a candidate set.
type ConsensusResult struct {
	Winner         Candidate
	WinnerClass    []Candidate // all members of the winning equivalence class
	AgreementRatio float64     // |winning class| / |candidates|
	Dissent        []Candidate // candidates outside the winning class, in id order
}
