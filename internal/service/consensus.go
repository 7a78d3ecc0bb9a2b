package service

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agentmesh/agentmesh/internal/core"
)

// SimilarityFunc decides whether two candidates belong to the same
// equivalence class. It is an injectable strategy: structural match,
// string similarity, or anything else the caller needs.
type SimilarityFunc func(a, b core.Candidate) bool

// DefaultConsensusThreshold is the minimum agreement ratio before
// reduction fails with an insufficient-consensus error.
const DefaultConsensusThreshold = 0.5

// ConsensusReducer merges N independent candidates into one validated
// answer. Reduce is a pure function over its inputs: identical candidate
// multisets yield identical results regardless of input order.
type ConsensusReducer struct {
	Threshold float64
}

// NewConsensusReducer creates a reducer with the given agreement threshold.
func NewConsensusReducer(threshold float64) *ConsensusReducer {
	if threshold <= 0 {
		threshold = DefaultConsensusThreshold
	}
	return &ConsensusReducer{Threshold: threshold}
}

// Reduce groups candidates into equivalence classes under the similarity
// predicate and selects the winning class. Ties between equal-size classes
// break on lowest total estimated cost, then on the lexicographically
// first candidate id.
func (r *ConsensusReducer) Reduce(candidates []core.Candidate, similar SimilarityFunc) (core.ConsensusResult, error) {
	if len(candidates) == 0 {
		return core.ConsensusResult{}, core.ErrValidation("NO_CANDIDATES", "cannot reduce an empty candidate set")
	}

	// Sort by id so grouping and class representatives are independent of
	// input order.
	sorted := append([]core.Candidate(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	classes := groupByEquivalence(sorted, similar)
	winner := selectWinningClass(classes)

	ratio := float64(len(winner)) / float64(len(sorted))

	var dissent []core.Candidate
	inWinner := make(map[string]bool, len(winner))
	for _, c := range winner {
		inWinner[c.ID] = true
	}
	for _, c := range sorted {
		if !inWinner[c.ID] {
			dissent = append(dissent, c)
		}
	}

	result := core.ConsensusResult{
		Winner:         winner[0],
		WinnerClass:    winner,
		AgreementRatio: ratio,
		Dissent:        dissent,
	}

	if ratio < r.Threshold {
		return result, core.ErrInsufficientConsensus(ratio, r.Threshold, len(dissent))
	}
	return result, nil
}

// groupByEquivalence partitions candidates into classes. Each candidate
// joins the first class whose representative it matches; the predicate is
// only consulted against representatives so the grouping is stable.
func groupByEquivalence(sorted []core.Candidate, similar SimilarityFunc) [][]core.Candidate {
	var classes [][]core.Candidate
	for _, c := range sorted {
		placed := false
		for i := range classes {
			if similar(classes[i][0], c) {
				classes[i] = append(classes[i], c)
				placed = true
				break
			}
		}
		if !placed {
			classes = append(classes, []core.Candidate{c})
		}
	}
	return classes
}

// selectWinningClass picks the largest class, breaking ties on lowest
// total estimated cost and then on the first member's id.
func selectWinningClass(classes [][]core.Candidate) []core.Candidate {
	best := classes[0]
	for _, class := range classes[1:] {
		switch {
		case len(class) > len(best):
			best = class
		case len(class) == len(best):
			classCost, bestCost := classTotalCost(class), classTotalCost(best)
			if classCost < bestCost {
				best = class
			} else if classCost == bestCost && class[0].ID < best[0].ID {
				best = class
			}
		}
	}
	return best
}

func classTotalCost(class []core.Candidate) float64 {
	total := 0.0
	for _, c := range class {
		total += c.TotalCost()
	}
	return total
}

// StepDescriptionSimilarity returns a similarity predicate that matches
// single-step candidates whose normalized descriptions overlap by at least
// minOverlap (token Jaccard index). Empty candidates only match other
// empty candidates.
func StepDescriptionSimilarity(minOverlap float64) SimilarityFunc {
	return func(a, b core.Candidate) bool {
		if a.Empty() || b.Empty() {
			return a.Empty() && b.Empty()
		}
		return JaccardSimilarity(
			tokens(a.Steps[0].Description),
			tokens(b.Steps[0].Description),
		) >= minOverlap
	}
}

// JaccardSimilarity calculates the Jaccard index |A ∩ B| / |A ∪ B|.
func JaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}

	setA := toSet(a)
	setB := toSet(b)

	intersection := 0
	for item := range setA {
		if setB[item] {
			intersection++
		}
	}

	union := len(setA)
	for item := range setB {
		if !setA[item] {
			union++
		}
	}

	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}

// NormalizeText lowercases text and collapses punctuation runs to single
// spaces for comparison.
func NormalizeText(text string) string {
	text = strings.ToLower(text)

	var builder strings.Builder
	prevSpace := true
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			builder.WriteRune(r)
			prevSpace = false
		} else if !prevSpace {
			builder.WriteRune(' ')
			prevSpace = true
		}
	}

	return strings.TrimSpace(builder.String())
}

func tokens(text string) []string {
	normalized := NormalizeText(text)
	if normalized == "" {
		return nil
	}
	return strings.Fields(normalized)
}

func toSet(items []string) map[string]bool {
	result := make(map[string]bool)
	for _, item := range items {
		result[item] = true
	}
	return result
}
