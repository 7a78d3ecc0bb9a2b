package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentmesh/agentmesh/internal/adapters/provider"
	"github.com/agentmesh/agentmesh/internal/adapters/render"
	"github.com/agentmesh/agentmesh/internal/adapters/state"
	"github.com/agentmesh/agentmesh/internal/core"
	"github.com/agentmesh/agentmesh/internal/diagnostics"
	"github.com/agentmesh/agentmesh/internal/service/workflow"
)

var runCmd = &cobra.Command{
	Use:   "run OBJECTIVE [OBJECTIVE...]",
	Short: "Synthesize a workflow for the objectives and execute it",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().Int("max-concurrent", 0, "worker pool size (overrides config)")
	runCmd.Flags().Duration("task-timeout", 0, "per-task attempt deadline (overrides config)")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	// Flag overrides apply only when set, so config-file values survive.
	if cmd.Flags().Changed("max-concurrent") {
		n, _ := cmd.Flags().GetInt("max-concurrent")
		viper.Set("execution.max_concurrent", n)
	}
	if cmd.Flags().Changed("task-timeout") {
		d, _ := cmd.Flags().GetDuration("task-timeout")
		viper.Set("execution.task_timeout", d)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	built, err := newBuilder(cfg, logger).Build(ctx, args)
	if err != nil {
		return err
	}
	for _, drop := range built.Dropped {
		logger.Warn("step dropped during synthesis",
			"step_id", drop.StepID,
			"reason", drop.Reason,
		)
	}

	registry := provider.NewLocalRegistry(logger)
	scheduler := workflow.NewScheduler(
		built.Graph,
		provider.NewLocalRunner(0),
		registry,
		newRecovery(cfg, registry),
		logger,
		workflow.WithMaxConcurrent(cfg.Execution.MaxConcurrent),
		workflow.WithTaskTimeout(cfg.Execution.TaskTimeout),
		workflow.WithHostCollector(diagnostics.CollectHost),
	)

	runID := uuid.NewString()
	report, err := scheduler.Run(ctx, runID)
	if err != nil {
		return err
	}

	text, err := render.NewPlain().Render(args, report.Context.Snapshot())
	if err != nil {
		return err
	}

	store := state.NewStore(cfg.StateDir, logger)
	if err := store.SavePlan(runID, built.Graph.Export()); err != nil {
		return err
	}
	if err := store.SaveSummary(report.Summary); err != nil {
		return err
	}
	if err := store.SaveResults(runID, report.Context); err != nil {
		return err
	}
	if err := store.SaveReport(runID, text); err != nil {
		return err
	}

	// History is best effort: a broken database never fails a finished run.
	if history, herr := state.OpenHistory(historyPath(cfg)); herr == nil {
		if rerr := history.Record(ctx, report.Summary); rerr != nil {
			logger.Warn("run not recorded in history", "error", rerr)
		}
		history.Close()
	} else {
		logger.Warn("history unavailable", "error", herr)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, text)
	fmt.Fprintf(out, "run %s: %s (%d succeeded, %d blocked)\n",
		runID, report.Summary.Status, report.Summary.Succeeded, report.Summary.Blocked)
	fmt.Fprintf(out, "artifacts: %s\n", store.RunDir(runID))

	if report.Summary.Status == core.RunFailed {
		return fmt.Errorf("run %s failed: critical path blocked", runID)
	}
	return nil
}
