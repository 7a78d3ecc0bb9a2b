// Package provider contains the built-in collaborator and runner
// implementations used when no external services are configured.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentmesh/agentmesh/internal/core"
	"github.com/agentmesh/agentmesh/internal/tools"
)

// kindCapabilities maps each step kind to the capability it requests.
var kindCapabilities = map[core.StepKind]string{
	core.KindResearch:  "web_search",
	core.KindAnalysis:  "data_analysis",
	core.KindCreation:  "text_generation",
	core.KindExecution: "command_runner",
}

// kindCosts are the default per-kind effort estimates.
var kindCosts = map[core.StepKind]float64{
	core.KindResearch:  2.0,
	core.KindAnalysis:  3.0,
	core.KindCreation:  4.0,
	core.KindExecution: 1.0,
}

// TemplatePlanner is an offline text service that expands each objective
// into a research/analysis/creation chain, with a synthesis step joining
// multiple objectives. Deterministic, so several instances always reach
// consensus; useful standalone and as a baseline voice alongside real
// services.
type TemplatePlanner struct {
	name string
}

// NewTemplatePlanner creates a planner identified by name.
func NewTemplatePlanner(name string) *TemplatePlanner {
	return &TemplatePlanner{name: name}
}

// Name implements core.TextService.
func (p *TemplatePlanner) Name() string {
	return p.name
}

// Propose implements core.TextService.
func (p *TemplatePlanner) Propose(ctx context.Context, objectives []string) ([]core.Step, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var steps []core.Step
	var creations []core.StepID

	for i, objective := range objectives {
		slug := objectiveSlug(objective, i)

		research := templateStep(core.KindResearch, "research-"+slug,
			fmt.Sprintf("Gather background material for: %s", objective))
		analyze := templateStep(core.KindAnalysis, "analyze-"+slug,
			fmt.Sprintf("Analyze findings for: %s", objective))
		analyze.Dependencies = []core.StepID{research.ID}
		create := templateStep(core.KindCreation, "create-"+slug,
			fmt.Sprintf("Produce the deliverable for: %s", objective))
		create.Dependencies = []core.StepID{analyze.ID}

		steps = append(steps, research, analyze, create)
		creations = append(creations, create.ID)
	}

	if len(objectives) > 1 {
		synth := templateStep(core.KindCreation, "synthesize",
			"Combine the per-objective deliverables into one result")
		synth.Dependencies = creations
		steps = append(steps, synth)
	}
	return steps, nil
}

// Critique implements core.TextService. The planner trusts any step of a
// known kind with at least one capability.
func (p *TemplatePlanner) Critique(ctx context.Context, steps []core.Step) (map[core.StepID]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scores := make(map[core.StepID]float64, len(steps))
	for _, step := range steps {
		if core.ValidKind(step.Kind) && len(step.Capabilities) > 0 {
			scores[step.ID] = 0.9
		} else {
			scores[step.ID] = 0.2
		}
	}
	return scores, nil
}

func templateStep(kind core.StepKind, id, description string) core.Step {
	return core.Step{
		ID:            core.StepID(id),
		Description:   description,
		Kind:          kind,
		Capabilities:  []string{kindCapabilities[kind]},
		EstimatedCost: kindCosts[kind],
	}
}

// objectiveSlug derives a short stable id fragment from an objective.
func objectiveSlug(objective string, index int) string {
	slug := tools.NormalizeSignature(objective)
	if len(slug) > 24 {
		slug = strings.TrimSuffix(slug[:24], "_")
	}
	if slug == "" {
		slug = fmt.Sprintf("objective_%d", index+1)
	}
	return slug
}
