package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agentmesh/agentmesh/internal/core"
)

// LocalRunner executes steps in-process, summarizing each step from its
// dependency outputs. It is the runner behind offline runs and tests; the
// context deadline is honored through the simulated work delay.
type LocalRunner struct {
	latency time.Duration
}

// NewLocalRunner creates a local runner. A positive latency simulates
// per-step work.
func NewLocalRunner(latency time.Duration) *LocalRunner {
	return &LocalRunner{latency: latency}
}

// Run implements core.AgentRunner.
func (r *LocalRunner) Run(ctx context.Context, step core.Step, snapshot map[core.StepID]core.Result, descriptors []*core.ToolDescriptor) (core.Result, error) {
	start := time.Now()

	if r.latency > 0 {
		timer := time.NewTimer(r.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return core.Result{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return core.Result{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", step.Kind, step.Description)

	deps := append([]core.StepID(nil), step.Dependencies...)
	sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
	for _, dep := range deps {
		if res, ok := snapshot[dep]; ok {
			fmt.Fprintf(&b, "input %s: %s\n", dep, firstLine(res.Output))
		}
	}

	tool := ""
	if len(descriptors) > 0 {
		tool = descriptors[0].Signature
		fmt.Fprintf(&b, "via %s\n", tool)
	}

	return core.Result{
		StepID:      step.ID,
		Output:      b.String(),
		Tool:        tool,
		Duration:    time.Since(start),
		CompletedAt: time.Now(),
	}, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
