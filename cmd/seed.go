package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/marketmap-cli/internal/pipeline"
	"github.com/sells-group/marketmap-cli/internal/validate"
)

var (
	seedSkipGeocode bool
	seedSkipPublish bool
	seedSkipVerify  bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Geocode, validate, publish and verify in one run",
	Long:  "Runs the full pipeline against the dataset. Nothing is published when validation finds an issue. A failed verify phase is reported but does not fail the run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mode := "publish"
		if seedSkipPublish {
			mode = "validate"
		}
		env, err := initPipeline(ctx, mode)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Run(ctx, pipeline.Config{
			SkipGeocode: seedSkipGeocode,
			SkipPublish: seedSkipPublish,
			SkipVerify:  seedSkipVerify,
		})
		if errors.Is(err, pipeline.ErrValidationFailed) && res.Validation != nil {
			_ = validate.Write(os.Stderr, res.Validation)
		}
		if res != nil && res.Run != nil {
			writeRunSummary(os.Stdout, res.Run)
		}
		return err
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedSkipGeocode, "skip-geocode", false, "do not geocode before validating")
	seedCmd.Flags().BoolVar(&seedSkipPublish, "skip-publish", false, "validate only, do not touch the search index")
	seedCmd.Flags().BoolVar(&seedSkipVerify, "skip-verify", false, "do not run semantic verification")
	rootCmd.AddCommand(seedCmd)
}
