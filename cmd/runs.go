package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tailorreach/internal/model"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List a tenant's recent scoring runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		tenant, _ := cmd.Flags().GetString("tenant")
		limit, _ := cmd.Flags().GetInt("limit")

		if err := cfg.Validate("runs"); err != nil {
			return err
		}
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, tenant, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(cmd.OutOrStdout(), runs)
		return nil
	},
}

func init() {
	runsCmd.Flags().String("tenant", "", "tenant (user) id (required)")
	runsCmd.Flags().Int("limit", 20, "max runs to show")
	_ = runsCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to out.
func formatRunsList(out io.Writer, runs []model.ScoringRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KIND\tARTIFACT\tSTATUS\tCUSTOMERS\tFAILED\tSTARTED\tDURATION\tCOST")
	_, _ = fmt.Fprintln(w, "----\t--------\t------\t---------\t------\t-------\t--------\t----")

	for _, r := range runs {
		dur := (time.Duration(r.Duration) * time.Millisecond).Round(time.Millisecond).String()
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t$%.4f\n",
			r.Kind,
			truncateID(r.ArtifactID),
			r.Status,
			r.Customers,
			r.Failed,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			r.Usage.Cost,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
