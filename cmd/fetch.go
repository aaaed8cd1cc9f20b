package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/marketmap-cli/internal/dataset"
	"github.com/sells-group/marketmap-cli/internal/ledger"
)

var fetchForce bool

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download every source page cited by the dataset",
	Long:  "Downloads each distinct source_url once, saves the page under the sources directory and records the outcome in the fetch ledger. URLs already recorded as ok are skipped unless --force is given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("fetch"); err != nil {
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

		runner := ledger.NewRunner(st, newFetcher(), fetchPacer(), cfg.Data.SourcesPath()).
			WithProgress(progressFactory())
		sum, err := runner.Run(ctx, ds.Markets, ledger.Options{Force: fetchForce})
		if sum != nil {
			fmt.Fprintf(os.Stdout, "Fetched %s of %s source URLs (%s skipped, %s failed).\n",
				count(sum.Downloaded), count(sum.URLs), count(sum.Skipped), count(sum.Failed))
		}
		if err != nil {
			return eris.Wrap(err, "fetch")
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchForce, "force", false, "re-download URLs already recorded as ok")
	rootCmd.AddCommand(fetchCmd)
}
