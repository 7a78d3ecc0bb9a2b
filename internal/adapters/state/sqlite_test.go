package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/agentmesh/internal/core"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := OpenHistory(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func summaryAt(runID string, started time.Time, status core.RunStatus) *core.RunSummary {
	return &core.RunSummary{
		RunID:       runID,
		Status:      status,
		Tasks:       []core.TaskSummary{{StepID: "a", Status: core.TaskStatusSucceeded}},
		Succeeded:   1,
		SuccessRate: 1.0,
		StartedAt:   started,
		CompletedAt: started.Add(time.Minute),
	}
}

func TestHistory_RecordAndGet(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()
	started := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	require.NoError(t, h.Record(ctx, summaryAt("run-1", started, core.RunComplete)))

	rec, err := h.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, core.RunComplete, rec.Status)
	assert.Equal(t, 1, rec.Steps)
	assert.True(t, rec.StartedAt.Equal(started))
}

func TestHistory_ListNewestFirst(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	require.NoError(t, h.Record(ctx, summaryAt("run-old", base, core.RunComplete)))
	require.NoError(t, h.Record(ctx, summaryAt("run-new", base.Add(time.Hour), core.RunPartial)))

	records, err := h.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "run-new", records[0].RunID)
	assert.Equal(t, "run-old", records[1].RunID)
}

func TestHistory_ListHonorsLimit(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		run := summaryAt(string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute), core.RunComplete)
		require.NoError(t, h.Record(ctx, run))
	}

	records, err := h.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestHistory_GetMissing(t *testing.T) {
	h := openTestHistory(t)

	_, err := h.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatState))
}

func TestHistory_RecordReplaces(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()
	started := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	require.NoError(t, h.Record(ctx, summaryAt("run-1", started, core.RunPartial)))
	require.NoError(t, h.Record(ctx, summaryAt("run-1", started, core.RunComplete)))

	records, err := h.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, core.RunComplete, records[0].Status)
}
