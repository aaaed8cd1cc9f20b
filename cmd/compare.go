package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/marketmap-cli/internal/compare"
	"github.com/sells-group/marketmap-cli/internal/dataset"
)

var (
	compareFormat string
	compareXLSX   string
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Report differences between the dataset and its fetched source pages",
	Long:  "Extracts market lines from every fetched source page, matches them against the rows citing the page and prints the discrepancies. Pages are read from disk; nothing is downloaded.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("compare"); err != nil {
			return err
		}

		ds, err := dataset.Load(cfg.Data.Dataset)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rep, err := compare.NewRunner(st, cfg.Data.SourcesPath()).Run(ctx, ds.Markets)
		if err != nil {
			return err
		}

		if err := compare.Write(os.Stdout, rep, compareFormat); err != nil {
			return err
		}
		if compareXLSX != "" {
			if err := compare.WriteXLSX(compareXLSX, rep); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Workbook written to %s\n", compareXLSX)
		}
		return nil
	},
}

func init() {
	compareCmd.Flags().StringVar(&compareFormat, "format", compare.FormatText, "output format (text, json, yaml)")
	compareCmd.Flags().StringVar(&compareXLSX, "xlsx", "", "also write the report as an Excel workbook to this path")
	rootCmd.AddCommand(compareCmd)
}
