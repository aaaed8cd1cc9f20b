package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/marketmap-cli/internal/dataset"
	"github.com/sells-group/marketmap-cli/internal/resilience"
	"github.com/sells-group/marketmap-cli/internal/verify"
)

var (
	verifyForce bool
	verifyURL   string
	verifyModel string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Ask a language model whether each source page supports its rows",
	Long:  "Sends every fetched source page together with the rows citing it to the language model and records the verdicts in the verification report. Sources already in the report are skipped unless --force or --url is given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("verify"); err != nil {
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

		v := newVerifier(st, verifyModel)
		sum, err := v.Run(ctx, ds.Markets, verify.Options{Force: verifyForce, URL: verifyURL})
		if err != nil {
			return eris.Wrap(err, "verify")
		}
		writeVerifySummary(os.Stdout, sum)
		return nil
	},
}

var verifyApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Copy conclusive verdicts from the report onto the dataset",
	Long:  "Sets verified_times and verified_info on every row the verification report has a verdict for, then rewrites the dataset. Sources whose row count changed since they were verified are left alone.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("validate"); err != nil {
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

		sum, err := verify.Apply(ctx, st, ds.Markets)
		if err != nil {
			return err
		}
		if sum.Updated > 0 {
			if err := dataset.Save(cfg.Data.Dataset, ds); err != nil {
				return err
			}
		}
		fmt.Fprintf(os.Stdout, "Applied %s sources: %s rows updated, %s stale sources, %s entries ignored.\n",
			count(sum.Sources), count(sum.Updated), count(sum.Stale), count(sum.Ignored))
		return nil
	},
}

func writeVerifySummary(w io.Writer, sum *verify.Summary) {
	fmt.Fprintf(w, "Done (model: %s). Processed: %s, Skipped: %s, Failed: %s\n",
		sum.ModelUsed, count(sum.Verified), count(sum.Skipped), count(sum.Failed))
	fmt.Fprintf(w, "\nVerification totals: %s conclusive, %s inconclusive, %s extra in HTML\n",
		count(sum.Totals.Conclusive), count(sum.Totals.Inconclusive), count(sum.Totals.Extra))
	if sum.Circuit == resilience.CircuitOpen.String() {
		fmt.Fprintln(w, "The model service kept failing; remaining sources were not attempted. Rerun later.")
	}
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyForce, "force", false, "re-verify sources already in the report")
	verifyCmd.Flags().StringVar(&verifyURL, "url", "", "verify only this ledger URL")
	verifyCmd.Flags().StringVar(&verifyModel, "model", "", "model to use (default from config)")
	verifyCmd.AddCommand(verifyApplyCmd)
	rootCmd.AddCommand(verifyCmd)
}
