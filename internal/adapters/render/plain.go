// Package render turns run results into human-readable reports.
package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agentmesh/agentmesh/internal/core"
)

// Plain renders a plain-text report: objectives first, then each step's
// output in step id order.
type Plain struct{}

// NewPlain creates a plain-text renderer.
func NewPlain() *Plain {
	return &Plain{}
}

// Render implements core.Renderer.
func (p *Plain) Render(objectives []string, results map[core.StepID]core.Result) (string, error) {
	var b strings.Builder

	b.WriteString("OBJECTIVES\n")
	for i, objective := range objectives {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, objective)
	}

	ids := make([]core.StepID, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fmt.Fprintf(&b, "\nRESULTS (%d steps)\n", len(ids))
	for _, id := range ids {
		res := results[id]
		fmt.Fprintf(&b, "\n--- %s", id)
		if res.Tool != "" {
			fmt.Fprintf(&b, " (tool: %s)", res.Tool)
		}
		b.WriteString(" ---\n")
		b.WriteString(strings.TrimRight(res.Output, "\n"))
		b.WriteString("\n")
	}
	return b.String(), nil
}
