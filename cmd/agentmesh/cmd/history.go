package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentmesh/agentmesh/internal/adapters/state"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	history, err := state.OpenHistory(historyPath(cfg))
	if err != nil {
		return err
	}
	defer history.Close()

	records, err := history.List(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTATUS\tSTEPS\tOK\tBLOCKED\tRATE\tSTARTED")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%.0f%%\t%s\n",
			rec.RunID,
			rec.Status,
			rec.Steps,
			rec.Succeeded,
			rec.Blocked,
			rec.SuccessRate*100,
			rec.StartedAt.Local().Format(time.RFC3339),
		)
	}
	return w.Flush()
}
