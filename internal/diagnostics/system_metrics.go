// Package diagnostics collects best-effort host metrics attached to run
// summaries.
package diagnostics

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/agentmesh/agentmesh/internal/core"
)

const bytesPerMB = 1024 * 1024

// CollectHost gathers a host snapshot. Every probe is best effort: a
// failing probe leaves its fields zero rather than failing the snapshot.
func CollectHost(ctx context.Context) *core.HostSnapshot {
	snap := &core.HostSnapshot{}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		snap.CPUModel = infos[0].ModelName
	}
	if count, err := cpu.CountsWithContext(ctx, true); err == nil {
		snap.CPUCores = count
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemTotalMB = float64(vm.Total) / bytesPerMB
		snap.MemUsedMB = float64(vm.Used) / bytesPerMB
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		snap.LoadAvg1 = avg.Load1
	}
	return snap
}
