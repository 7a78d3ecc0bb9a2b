package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVersionCommand(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2026-08-01")

	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "agentmesh 1.2.3")
	assert.Contains(t, out, "commit: abc123")
}

func TestPlanCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	out, errOut, err := execute(t, "plan", "summarize quarterly sales")
	require.NoError(t, err)

	// The offline planners agree, so the plan covers the full chain.
	assert.Contains(t, out, "steps:")
	assert.Contains(t, out, "research-")
	assert.Contains(t, out, "critical_path:")
	assert.Contains(t, errOut, "agreement: 1.00")
}

func TestPlanCommand_NoObjectives(t *testing.T) {
	_, _, err := execute(t, "plan")
	assert.Error(t, err)
}

func TestRunCommand_EndToEnd(t *testing.T) {
	t.Chdir(t.TempDir())

	out, _, err := execute(t, "run", "summarize quarterly sales", "--log-level", "error")
	require.NoError(t, err)

	assert.Contains(t, out, "OBJECTIVES")
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "artifacts:")
}
