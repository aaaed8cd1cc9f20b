package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/marketmap-cli/internal/dataset"
)

var provincesCmd = &cobra.Command{
	Use:   "provinces",
	Short: "Correct each row's province from its coordinate",
	Long:  "Reverse geocodes every coordinate through the province cache and Nominatim and rewrites the dataset when a province changed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("provinces"); err != nil {
			return err
		}

		rules, err := loadRules()
		if err != nil {
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

		sum, err := newProvinceFixer(st, rules.ProvinceAliases).Run(ctx, ds.Markets)
		if sum != nil && sum.Fixed > 0 {
			if serr := dataset.Save(cfg.Data.Dataset, ds); serr != nil {
				return serr
			}
		}
		if err != nil {
			return eris.Wrap(err, "provinces")
		}

		fmt.Fprintf(os.Stdout, "Checked %s rows: %s provinces fixed, %s unresolved.\n",
			count(sum.Checked), count(sum.Fixed), count(sum.Unresolved))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(provincesCmd)
}
