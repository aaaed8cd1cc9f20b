package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/marketmap-cli/internal/dataset"
	"github.com/sells-group/marketmap-cli/internal/geocache"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Fill and correct market coordinates",
	Long:  "Resolves every location group through the geocode cache and Nominatim, then rewrites the dataset. Nothing is looked up when every group already has a coordinate.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("geocode"); err != nil {
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

		phase := geocache.NewPhase(newResolver(st)).WithProgress(progressFactory())
		sum, err := phase.Run(ctx, ds)
		if sum != nil && !sum.NoOp {
			// Keep whatever was resolved before an interruption.
			if serr := dataset.Save(cfg.Data.Dataset, ds); serr != nil {
				return serr
			}
		}
		if err != nil {
			return eris.Wrap(err, "geocode")
		}

		if sum.NoOp {
			fmt.Fprintln(os.Stdout, "Every location already has a coordinate.")
			return nil
		}
		fmt.Fprintf(os.Stdout, "Geocoded %s locations (%s from cache): %s rows updated, %s unresolved.\n",
			count(sum.Groups), count(sum.Cached), count(sum.Corrected), count(sum.Skipped))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(geocodeCmd)
}
