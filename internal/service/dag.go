package service

import (
	"sort"

	"github.com/agentmesh/agentmesh/internal/core"
)

// GraphBuilder constructs and validates workflow graphs. Cyclic input is
// a construction error, never a runtime one: once Build succeeds the
// graph is immutable and shared read-only for the run's duration.
type GraphBuilder struct {
	steps map[core.StepID]core.Step
	order []core.StepID // insertion order, for deterministic traversal
}

// NewGraphBuilder creates an empty graph builder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{
		steps: make(map[core.StepID]core.Step),
	}
}

// AddStep adds a step to the graph under construction.
func (b *GraphBuilder) AddStep(step core.Step) error {
	if err := step.Validate(); err != nil {
		return err
	}
	if _, exists := b.steps[step.ID]; exists {
		return core.ErrValidation(core.CodeDuplicateStep, "step "+string(step.ID)+" already exists")
	}
	b.steps[step.ID] = step.Clone()
	b.order = append(b.order, step.ID)
	return nil
}

// StepCount returns the number of steps added so far.
func (b *GraphBuilder) StepCount() int {
	return len(b.steps)
}

// Build validates the graph and computes its derived metadata: a
// topological order, the reverse dependency index, and the critical path.
func (b *GraphBuilder) Build() (*Graph, error) {
	if len(b.steps) == 0 {
		return nil, core.ErrEmptyWorkflow("graph has no steps")
	}

	for _, id := range b.order {
		for _, dep := range b.steps[id].Dependencies {
			if _, ok := b.steps[dep]; !ok {
				return nil, core.ErrValidation(core.CodeUnknownDependency,
					"step "+string(id)+" depends on unknown step "+string(dep))
			}
		}
	}

	if cycle := b.findCycle(); cycle != nil {
		return nil, core.ErrCyclicWorkflow(cycle)
	}

	order := b.topologicalOrder()
	dependents := b.dependentIndex()
	path, cost := criticalPath(b.steps, order)

	return &Graph{
		steps:        b.copySteps(),
		order:        order,
		dependents:   dependents,
		criticalPath: path,
		criticalCost: cost,
	}, nil
}

// findCycle runs a depth-first traversal tracking an in-progress set.
// Revisiting an in-progress node means a cycle; the returned slice names
// the steps on it, in dependency order.
func (b *GraphBuilder) findCycle() []core.StepID {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[core.StepID]int, len(b.steps))
	var stack []core.StepID
	var cycle []core.StepID

	var dfs func(id core.StepID) bool
	dfs = func(id core.StepID) bool {
		state[id] = inProgress
		stack = append(stack, id)

		deps := append([]core.StepID(nil), b.steps[id].Dependencies...)
		sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
		for _, dep := range deps {
			switch state[dep] {
			case unvisited:
				if dfs(dep) {
					return true
				}
			case inProgress: // cycle closes at dep
				for i, onStack := range stack {
					if onStack == dep {
						cycle = append([]core.StepID(nil), stack[i:]...)
						break
					}
				}
				return true
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	ids := b.sortedIDs()
	for _, id := range ids {
		if state[id] == unvisited && dfs(id) {
			return cycle
		}
	}
	return nil
}

// topologicalOrder returns step ids in dependency order using Kahn's
// algorithm. The frontier is kept sorted so the order is deterministic.
func (b *GraphBuilder) topologicalOrder() []core.StepID {
	inDegree := make(map[core.StepID]int, len(b.steps))
	dependents := b.dependentIndex()
	for id, step := range b.steps {
		inDegree[id] = len(step.Dependencies)
	}

	var frontier []core.StepID
	for _, id := range b.sortedIDs() {
		if inDegree[id] == 0 {
			frontier = append(frontier, id)
		}
	}

	result := make([]core.StepID, 0, len(b.steps))
	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]
		result = append(result, current)

		released := make([]core.StepID, 0)
		for _, dependent := range dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				released = append(released, dependent)
			}
		}
		sort.Slice(released, func(i, j int) bool { return released[i] < released[j] })
		frontier = append(frontier, released...)
	}

	return result
}

// dependentIndex builds the reverse edge map: step id -> steps that
// depend on it, in sorted order.
func (b *GraphBuilder) dependentIndex() map[core.StepID][]core.StepID {
	index := make(map[core.StepID][]core.StepID, len(b.steps))
	for _, id := range b.sortedIDs() {
		for _, dep := range b.steps[id].Dependencies {
			index[dep] = append(index[dep], id)
		}
	}
	for dep := range index {
		sort.Slice(index[dep], func(i, j int) bool { return index[dep][i] < index[dep][j] })
	}
	return index
}

func (b *GraphBuilder) sortedIDs() []core.StepID {
	ids := make([]core.StepID, 0, len(b.steps))
	for id := range b.steps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (b *GraphBuilder) copySteps() map[core.StepID]core.Step {
	result := make(map[core.StepID]core.Step, len(b.steps))
	for id, step := range b.steps {
		result[id] = step.Clone()
	}
	return result
}

// criticalPath computes the path maximizing summed estimated cost via
// dynamic programming over the topological order. Cost ties break toward
// the lexicographically smaller step id so the result is reproducible.
func criticalPath(steps map[core.StepID]core.Step, order []core.StepID) ([]core.StepID, float64) {
	best := make(map[core.StepID]float64, len(steps))
	prev := make(map[core.StepID]core.StepID, len(steps))

	for _, id := range order {
		step := steps[id]
		best[id] = step.EstimatedCost

		deps := append([]core.StepID(nil), step.Dependencies...)
		sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })

		var bestDep core.StepID
		bestDepCost := -1.0
		for _, dep := range deps {
			if best[dep] > bestDepCost {
				bestDepCost = best[dep]
				bestDep = dep
			}
		}
		if bestDepCost >= 0 {
			best[id] += bestDepCost
			prev[id] = bestDep
		}
	}

	var sink core.StepID
	sinkCost := -1.0
	for _, id := range order {
		if best[id] > sinkCost || (best[id] == sinkCost && id < sink) {
			sinkCost = best[id]
			sink = id
		}
	}

	var path []core.StepID
	for id := sink; ; {
		path = append([]core.StepID{id}, path...)
		p, ok := prev[id]
		if !ok {
			break
		}
		id = p
	}
	return path, sinkCost
}

// Graph is a validated, immutable workflow DAG.
type Graph struct {
	steps        map[core.StepID]core.Step
	order        []core.StepID
	dependents   map[core.StepID][]core.StepID
	criticalPath []core.StepID
	criticalCost float64
}

// Step returns the step with the given id.
func (g *Graph) Step(id core.StepID) (core.Step, bool) {
	step, ok := g.steps[id]
	if !ok {
		return core.Step{}, false
	}
	return step.Clone(), true
}

// Order returns step ids in topological order.
func (g *Graph) Order() []core.StepID {
	return append([]core.StepID(nil), g.order...)
}

// Len returns the number of steps.
func (g *Graph) Len() int {
	return len(g.steps)
}

// Dependents returns the steps directly depending on id.
func (g *Graph) Dependents(id core.StepID) []core.StepID {
	return append([]core.StepID(nil), g.dependents[id]...)
}

// Dependencies returns the direct dependencies of id.
func (g *Graph) Dependencies(id core.StepID) []core.StepID {
	return append([]core.StepID(nil), g.steps[id].Dependencies...)
}

// CriticalPath returns the highest-cost dependency chain.
func (g *Graph) CriticalPath() []core.StepID {
	return append([]core.StepID(nil), g.criticalPath...)
}

// CriticalCost returns the summed estimated cost of the critical path.
func (g *Graph) CriticalCost() float64 {
	return g.criticalCost
}

// Document is the serializable form of a graph for downstream consumers.
type Document struct {
	Steps        []core.Step   `json:"steps" yaml:"steps"`
	Order        []core.StepID `json:"order" yaml:"order"`
	CriticalPath []core.StepID `json:"critical_path" yaml:"critical_path"`
	CriticalCost float64       `json:"critical_cost" yaml:"critical_cost"`
}

// Export produces the serializable document, with steps in topological
// order so output is deterministic.
func (g *Graph) Export() Document {
	steps := make([]core.Step, 0, len(g.order))
	for _, id := range g.order {
		steps = append(steps, g.steps[id].Clone())
	}
	return Document{
		Steps:        steps,
		Order:        g.Order(),
		CriticalPath: g.CriticalPath(),
		CriticalCost: g.criticalCost,
	}
}
