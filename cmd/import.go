package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tailorreach/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import customers from a CSV or XLSX file",
	Long:  "Reads a header-led customer sheet and upserts rows by email into the tenant's customer list.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path, _ := cmd.Flags().GetString("file")
		tenant, _ := cmd.Flags().GetString("tenant")
		sheet, _ := cmd.Flags().GetString("sheet")
		limit, _ := cmd.Flags().GetInt("limit")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		customers, skipped, err := importer.ReadFile(ctx, path, importer.Options{
			XLSX:  importer.XLSXOptions{SheetName: sheet},
			Limit: limit,
		})
		if err != nil {
			return eris.Wrap(err, "read customers")
		}
		for _, s := range skipped {
			zap.L().Warn("import: row skipped", zap.Int("row", s.Row), zap.String("reason", s.Reason))
		}
		for i := range customers {
			customers[i].TenantID = tenant
		}

		if dryRun {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d customers parsed, %d rows skipped (dry run)\n", len(customers), len(skipped))
			return nil
		}

		if err := cfg.Validate("import"); err != nil {
			return err
		}
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}

		n, err := st.ImportCustomers(ctx, tenant, customers)
		if err != nil {
			return eris.Wrap(err, "import customers")
		}

		zap.L().Info("import complete",
			zap.String("file", path),
			zap.String("tenant_id", tenant),
			zap.Int64("upserted", n),
			zap.Int("skipped", len(skipped)),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().String("file", "", "path to a .csv, .tsv or .xlsx file (required)")
	importCmd.Flags().String("tenant", "", "tenant (user) id to import into (required)")
	importCmd.Flags().String("sheet", "", "xlsx sheet name (default: first sheet)")
	importCmd.Flags().Int("limit", 0, "max customers to import (0 = all)")
	importCmd.Flags().Bool("dry-run", false, "parse the file without writing")
	_ = importCmd.MarkFlagRequired("file")
	_ = importCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(importCmd)
}
