// Package workflow contains the workflow synthesis pipeline and the
// readiness-driven scheduler that executes it.
package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentmesh/agentmesh/internal/core"
	"github.com/agentmesh/agentmesh/internal/logging"
	"github.com/agentmesh/agentmesh/internal/service"
)

// DefaultCritiqueThreshold is the negative-critique ratio above which a
// merged step is dropped.
const DefaultCritiqueThreshold = 0.5

// negativeCritiqueScore is the feasibility score below which a critique
// counts as negative.
const negativeCritiqueScore = 0.5

// Builder synthesizes a validated workflow graph from an objective set
// using consensus over multiple text-service collaborators.
type Builder struct {
	services          []core.TextService
	reducer           *service.ConsensusReducer
	similarity        service.SimilarityFunc
	critiqueThreshold float64
	proposeTimeout    time.Duration
	logger            *logging.Logger
}

// BuilderOption configures a builder.
type BuilderOption func(*Builder)

// WithSimilarity overrides the step similarity strategy.
func WithSimilarity(fn service.SimilarityFunc) BuilderOption {
	return func(b *Builder) {
		b.similarity = fn
	}
}

// WithCritiqueThreshold overrides the negative-critique drop threshold.
func WithCritiqueThreshold(t float64) BuilderOption {
	return func(b *Builder) {
		b.critiqueThreshold = t
	}
}

// WithProposeTimeout bounds each collaborator's propose and critique calls.
func WithProposeTimeout(d time.Duration) BuilderOption {
	return func(b *Builder) {
		b.proposeTimeout = d
	}
}

// NewBuilder creates a workflow builder over the given collaborators.
func NewBuilder(services []core.TextService, reducer *service.ConsensusReducer, logger *logging.Logger, opts ...BuilderOption) *Builder {
	if logger == nil {
		logger = logging.NewNop()
	}
	if reducer == nil {
		reducer = service.NewConsensusReducer(0)
	}
	b := &Builder{
		services:          services,
		reducer:           reducer,
		similarity:        service.StepDescriptionSimilarity(0.5),
		critiqueThreshold: DefaultCritiqueThreshold,
		proposeTimeout:    2 * time.Minute,
		logger:            logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// DropRecord explains why a proposed step did not make the final graph.
type DropRecord struct {
	StepID      core.StepID `json:"step_id"`
	Description string      `json:"description"`
	Reason      string      `json:"reason"`
}

// BuildResult is the outcome of workflow synthesis.
type BuildResult struct {
	Graph     *service.Graph
	Dropped   []DropRecord
	Responses int     // collaborators that returned a proposal
	Agreement float64 // mean agreement ratio over accepted steps
}

// proposal is one collaborator's step-set response.
type proposal struct {
	origin string
	steps  []core.Step
}

// Build requests candidate workflows from every collaborator, merges them
// step by step through the consensus reducer, runs a critique pass over
// the merged set, and constructs the validated graph.
func (b *Builder) Build(ctx context.Context, objectives []string) (*BuildResult, error) {
	if len(objectives) == 0 {
		return nil, core.ErrValidation("NO_OBJECTIVES", "objective set cannot be empty")
	}

	proposals := b.fanOutPropose(ctx, objectives)
	if len(proposals) == 0 {
		return nil, core.ErrProvider("no collaborator returned a proposal").
			WithDetail("code", core.CodeNoProposals)
	}

	merged, dropped, agreement := b.mergeByConsensus(proposals)

	merged, critiqueDrops := b.critique(ctx, merged)
	dropped = append(dropped, critiqueDrops...)

	if len(merged) == 0 {
		return nil, core.ErrEmptyWorkflow(fmt.Sprintf("%d proposed steps dropped", len(dropped)))
	}

	pruneDanglingDeps(merged)

	gb := service.NewGraphBuilder()
	for _, step := range merged {
		if err := gb.AddStep(step); err != nil {
			return nil, err
		}
	}
	graph, err := gb.Build()
	if err != nil {
		return nil, err
	}

	b.logger.Info("workflow synthesized",
		"steps", graph.Len(),
		"dropped", len(dropped),
		"responses", len(proposals),
		"agreement", agreement,
	)

	return &BuildResult{
		Graph:     graph,
		Dropped:   dropped,
		Responses: len(proposals),
		Agreement: agreement,
	}, nil
}

// fanOutPropose queries every collaborator concurrently. Individual
// failures are tolerated: consensus runs over the responses actually
// received.
func (b *Builder) fanOutPropose(ctx context.Context, objectives []string) []proposal {
	var mu sync.Mutex
	var proposals []proposal

	g := new(errgroup.Group)
	for _, svc := range b.services {
		svc := svc
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, b.proposeTimeout)
			defer cancel()

			steps, err := svc.Propose(callCtx, objectives)
			if err != nil {
				b.logger.Warn("collaborator proposal failed",
					"source", svc.Name(),
					"error", err,
				)
				return nil
			}
			mu.Lock()
			proposals = append(proposals, proposal{origin: svc.Name(), steps: steps})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(proposals, func(i, j int) bool { return proposals[i].origin < proposals[j].origin })
	return proposals
}

// mergeByConsensus clusters proposed steps by description similarity and
// reduces each cluster. Sources that did not propose a matching step are
// represented by empty candidates, so a step kept by a minority of
// sources loses to absence.
func (b *Builder) mergeByConsensus(proposals []proposal) ([]core.Step, []DropRecord, float64) {
	candidates := make([]core.Candidate, 0)
	for _, p := range proposals {
		for _, step := range p.steps {
			candidates = append(candidates, core.Candidate{
				ID:     p.origin + "/" + string(step.ID),
				Origin: p.origin,
				Steps:  []core.Step{step},
			})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	clusters := clusterCandidates(candidates, b.similarity)

	var (
		merged      []core.Step
		dropped     []DropRecord
		ratioSum    float64
		canonical   = make(map[string]core.StepID) // candidate id -> canonical step id
		usedIDs     = make(map[core.StepID]bool)
		clusterDone = make([]mergedCluster, 0, len(clusters))
	)

	for _, cluster := range clusters {
		round := b.buildRound(cluster, proposals)

		result, err := b.reducer.Reduce(round, b.similarity)
		rep := cluster[0].Steps[0]
		if err != nil {
			dropped = append(dropped, DropRecord{
				StepID:      rep.ID,
				Description: rep.Description,
				Reason:      err.Error(),
			})
			continue
		}
		if result.Winner.Empty() {
			dropped = append(dropped, DropRecord{
				StepID:      rep.ID,
				Description: rep.Description,
				Reason:      fmt.Sprintf("only %d of %d sources proposed this step", len(cluster), len(proposals)),
			})
			continue
		}

		step := mergeCluster(result.WinnerClass)
		step.ID = uniqueID(step.ID, usedIDs)
		usedIDs[step.ID] = true

		for _, member := range cluster {
			canonical[member.ID] = step.ID
		}

		ratioSum += result.AgreementRatio
		merged = append(merged, step)
		clusterDone = append(clusterDone, mergedCluster{step: step, members: cluster})
	}

	remapDependencies(merged, clusterDone, canonical)

	agreement := 0.0
	if len(merged) > 0 {
		agreement = ratioSum / float64(len(merged))
	}
	return merged, dropped, agreement
}

// mergedCluster pairs a merged step with the cluster members it came from.
type mergedCluster struct {
	step    core.Step
	members []core.Candidate
}

// buildRound pads a cluster with one empty candidate per source that
// proposed nothing matching, so the agreement ratio is computed over all
// responding sources.
func (b *Builder) buildRound(cluster []core.Candidate, proposals []proposal) []core.Candidate {
	present := make(map[string]bool, len(cluster))
	for _, c := range cluster {
		present[c.Origin] = true
	}

	round := append([]core.Candidate(nil), cluster...)
	rep := cluster[0].Steps[0]
	for _, p := range proposals {
		if !present[p.origin] {
			round = append(round, core.Candidate{
				ID:     p.origin + "/absent/" + string(rep.ID),
				Origin: p.origin,
			})
		}
	}
	return round
}

// mergeCluster synthesizes one step from an agreeing class: the
// representative's id, kind and description, the minimum estimated cost
// (conservative bias), and the union of capabilities. Dependencies are
// unioned separately once canonical ids are known.
func mergeCluster(class []core.Candidate) core.Step {
	step := class[0].Steps[0].Clone()

	capSet := make(map[string]bool)
	for _, member := range class {
		s := member.Steps[0]
		if s.EstimatedCost < step.EstimatedCost {
			step.EstimatedCost = s.EstimatedCost
		}
		for _, capability := range s.Capabilities {
			capSet[capability] = true
		}
	}

	step.Capabilities = step.Capabilities[:0]
	for capability := range capSet {
		step.Capabilities = append(step.Capabilities, capability)
	}
	sort.Strings(step.Capabilities)
	step.Dependencies = nil
	return step
}

// remapDependencies unions each cluster's member dependencies, translated
// to canonical ids. Dependencies on steps that did not survive consensus
// are dropped here and re-checked after critique.
func remapDependencies(merged []core.Step, clusters []mergedCluster, canonical map[string]core.StepID) {
	for i := range merged {
		depSet := make(map[core.StepID]bool)
		for _, member := range clusters[i].members {
			for _, dep := range member.Steps[0].Dependencies {
				if mapped, ok := canonical[member.Origin+"/"+string(dep)]; ok && mapped != merged[i].ID {
					depSet[mapped] = true
				}
			}
		}
		deps := make([]core.StepID, 0, len(depSet))
		for dep := range depSet {
			deps = append(deps, dep)
		}
		sort.Slice(deps, func(a, b int) bool { return deps[a] < deps[b] })
		merged[i].Dependencies = deps
	}
}

// critique asks every collaborator to score the merged set and drops
// steps whose negative-critique ratio exceeds the threshold.
func (b *Builder) critique(ctx context.Context, steps []core.Step) ([]core.Step, []DropRecord) {
	if len(steps) == 0 || len(b.services) == 0 {
		return steps, nil
	}

	type critiqueResponse struct {
		origin string
		scores map[core.StepID]float64
	}

	var mu sync.Mutex
	var responses []critiqueResponse

	g := new(errgroup.Group)
	for _, svc := range b.services {
		svc := svc
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, b.proposeTimeout)
			defer cancel()

			scores, err := svc.Critique(callCtx, steps)
			if err != nil {
				b.logger.Warn("collaborator critique failed",
					"source", svc.Name(),
					"error", err,
				)
				return nil
			}
			mu.Lock()
			responses = append(responses, critiqueResponse{origin: svc.Name(), scores: scores})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(responses) == 0 {
		return steps, nil
	}

	var kept []core.Step
	var dropped []DropRecord
	for _, step := range steps {
		negative := 0
		for _, resp := range responses {
			if score, ok := resp.scores[step.ID]; ok && score < negativeCritiqueScore {
				negative++
			}
		}
		ratio := float64(negative) / float64(len(responses))
		if ratio > b.critiqueThreshold {
			dropped = append(dropped, DropRecord{
				StepID:      step.ID,
				Description: step.Description,
				Reason:      fmt.Sprintf("negative critique ratio %.2f exceeds %.2f", ratio, b.critiqueThreshold),
			})
			continue
		}
		kept = append(kept, step)
	}
	return kept, dropped
}

// pruneDanglingDeps removes dependencies on steps that were dropped.
func pruneDanglingDeps(steps []core.Step) {
	exists := make(map[core.StepID]bool, len(steps))
	for _, s := range steps {
		exists[s.ID] = true
	}
	for i := range steps {
		deps := steps[i].Dependencies[:0]
		for _, dep := range steps[i].Dependencies {
			if exists[dep] {
				deps = append(deps, dep)
			}
		}
		steps[i].Dependencies = deps
	}
}

// clusterCandidates partitions single-step candidates by similarity
// against cluster representatives. Candidates must be pre-sorted by id.
func clusterCandidates(candidates []core.Candidate, similar service.SimilarityFunc) [][]core.Candidate {
	var clusters [][]core.Candidate
	for _, c := range candidates {
		placed := false
		for i := range clusters {
			if similar(clusters[i][0], c) {
				clusters[i] = append(clusters[i], c)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []core.Candidate{c})
		}
	}
	return clusters
}

// uniqueID disambiguates canonical step ids when distinct clusters picked
// representatives with the same id.
func uniqueID(id core.StepID, used map[core.StepID]bool) core.StepID {
	if !used[id] {
		return id
	}
	for n := 2; ; n++ {
		candidate := core.StepID(fmt.Sprintf("%s-%d", id, n))
		if !used[candidate] {
			return candidate
		}
	}
}
