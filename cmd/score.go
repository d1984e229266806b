package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tailorreach/internal/model"
	"github.com/sells-group/tailorreach/internal/scoring"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a tenant's customers against a product or campaign",
	Long:  "Runs the customer interest fan-out from the terminal. Exactly one of --product or --campaign is required.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		tenant, _ := cmd.Flags().GetString("tenant")
		productID, _ := cmd.Flags().GetString("product")
		campaignID, _ := cmd.Flags().GetString("campaign")
		save, _ := cmd.Flags().GetBool("save")
		format, _ := cmd.Flags().GetString("format")

		if (productID == "") == (campaignID == "") {
			return eris.New("exactly one of --product or --campaign is required")
		}
		if format != "table" && format != "json" {
			return eris.Errorf("unknown format %q (want table or json)", format)
		}
		if err := cfg.Validate("score"); err != nil {
			return err
		}

		e, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		var analysis *model.Analysis
		if productID != "" {
			analysis, err = e.Scoring.AnalyzeProduct(ctx, tenant, model.Product{ID: productID}, save)
		} else {
			analysis, err = e.Scoring.AnalyzeCampaign(ctx, tenant, model.Campaign{UID: campaignID}, nil, save)
		}
		if err != nil {
			return eris.Wrap(err, "score")
		}

		customers, err := e.Store.ListCustomers(ctx, tenant, 0)
		if err != nil {
			return eris.Wrap(err, "list customers")
		}
		scored := scoring.Merge(customers, analysis.Results)

		if format == "json" {
			return writeScoreJSON(cmd.OutOrStdout(), analysis, scored)
		}
		formatScoreTable(cmd.OutOrStdout(), analysis, scored)
		return nil
	},
}

func init() {
	scoreCmd.Flags().String("tenant", "", "tenant (user) id (required)")
	scoreCmd.Flags().String("product", "", "product id to score against")
	scoreCmd.Flags().String("campaign", "", "campaign uid to score against")
	scoreCmd.Flags().Bool("save", false, "persist the aggregate like-estimate")
	scoreCmd.Flags().String("format", "table", "output format: table or json")
	_ = scoreCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(scoreCmd)
}

func writeScoreJSON(w io.Writer, a *model.Analysis, scored []model.ScoredCustomer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(struct {
		Customers    []model.ScoredCustomer `json:"customers"`
		LikeEstimate *int                   `json:"likeestimate,omitempty"`
		Usage        *model.TokenUsage      `json:"usage,omitempty"`
	}{scored, a.LikeEstimate, a.Usage}), "encode results")
}

// formatScoreTable writes customers from most to least likely.
func formatScoreTable(out io.Writer, a *model.Analysis, scored []model.ScoredCustomer) {
	sorted := make([]model.ScoredCustomer, len(scored))
	copy(sorted, scored)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Likelihood > sorted[j].Likelihood })

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CUSTOMER\tLIKELIHOOD\tBUCKET\tSELECTED\tREASON")
	_, _ = fmt.Fprintln(w, "--------\t----------\t------\t--------\t------")
	for _, s := range sorted {
		sel := ""
		if s.Selected {
			sel = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%.0f\t%s\t%s\t%s\n", s.Name, s.Likelihood, s.Bucket, sel, truncate(s.Reason, 60))
	}
	_ = w.Flush()

	if a.LikeEstimate != nil {
		_, _ = fmt.Fprintf(out, "\nLike-estimate saved: %d\n", *a.LikeEstimate)
	}
	if a.Usage != nil {
		_, _ = fmt.Fprintf(out, "Tokens: %d in / %d out, cost $%.4f\n", a.Usage.InputTokens, a.Usage.OutputTokens, a.Usage.Cost)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
