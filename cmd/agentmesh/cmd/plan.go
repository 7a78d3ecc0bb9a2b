package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var planOutput string

var planCmd = &cobra.Command{
	Use:   "plan OBJECTIVE [OBJECTIVE...]",
	Short: "Synthesize and print a workflow without executing it",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "",
		"write the plan to a file instead of stdout")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
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

	data, err := yaml.Marshal(built.Graph.Export())
	if err != nil {
		return err
	}

	if planOutput != "" {
		if err := os.WriteFile(planOutput, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "plan written to %s\n", planOutput)
	} else {
		fmt.Fprint(cmd.OutOrStdout(), string(data))
	}

	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "steps: %d  agreement: %.2f  dropped: %d\n",
		built.Graph.Len(), built.Agreement, len(built.Dropped))
	for _, drop := range built.Dropped {
		fmt.Fprintf(out, "dropped %s: %s\n", drop.StepID, drop.Reason)
	}
	return nil
}
