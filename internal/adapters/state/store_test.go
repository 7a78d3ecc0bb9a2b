package state

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/agentmesh/internal/core"
	"github.com/agentmesh/agentmesh/internal/service"
)

func sampleGraph(t *testing.T) *service.Graph {
	t.Helper()
	b := service.NewGraphBuilder()
	require.NoError(t, b.AddStep(core.Step{
		ID: "gather", Description: "gather data", Kind: core.KindResearch, EstimatedCost: 2,
	}))
	require.NoError(t, b.AddStep(core.Step{
		ID: "analyze", Description: "analyze data", Kind: core.KindAnalysis,
		Dependencies: []core.StepID{"gather"}, EstimatedCost: 3,
	}))
	g, err := b.Build()
	require.NoError(t, err)
	return g
}

func TestStore_PlanRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	graph := sampleGraph(t)

	require.NoError(t, store.SavePlan("run-1", graph.Export()))

	doc, err := store.LoadPlan("run-1")
	require.NoError(t, err)
	assert.Len(t, doc.Steps, 2)
	assert.Equal(t, []core.StepID{"gather", "analyze"}, doc.Order)
	assert.Equal(t, 5.0, doc.CriticalCost)
}

func TestStore_SummaryRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	summary := &core.RunSummary{
		RunID:  "run-2",
		Status: core.RunPartial,
		Tasks: []core.TaskSummary{
			{StepID: "gather", Status: core.TaskStatusSucceeded, Attempts: 1},
			{StepID: "analyze", Status: core.TaskStatusBlocked, BlockedBy: []core.StepID{"gather"}},
		},
		Succeeded:   1,
		Blocked:     1,
		SuccessRate: 0.5,
		StartedAt:   time.Now().Add(-time.Minute).UTC(),
		CompletedAt: time.Now().UTC(),
	}

	require.NoError(t, store.SaveSummary(summary))

	loaded, err := store.LoadSummary("run-2")
	require.NoError(t, err)
	assert.Equal(t, summary.Status, loaded.Status)
	assert.Equal(t, summary.SuccessRate, loaded.SuccessRate)
	require.Len(t, loaded.Tasks, 2)
	assert.Equal(t, []core.StepID{"gather"}, loaded.Tasks[1].BlockedBy)
}

func TestStore_ResultsAndReport(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, nil)

	ectx := core.NewExecutionContext()
	require.NoError(t, ectx.Set(core.Result{StepID: "gather", Output: "data"}))

	require.NoError(t, store.SaveResults("run-3", ectx))
	require.NoError(t, store.SaveReport("run-3", "final report text"))

	runDir := store.RunDir("run-3")
	assert.Equal(t, filepath.Join(dir, "runs", "run-3"), runDir)

	report, err := os.ReadFile(filepath.Join(runDir, "report.txt"))
	require.NoError(t, err)
	assert.Equal(t, "final report text", string(report))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(runDir, "report.txt"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
	}

	// Atomic writes leave no temp files behind.
	entries, err := os.ReadDir(runDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
