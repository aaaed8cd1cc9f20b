package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/marketmap-cli/internal/dataset"
	"github.com/sells-group/marketmap-cli/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check every dataset row against the validation rules",
	Long:  "Prints every issue found in the dataset and exits non-zero when there is at least one.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("validate"); err != nil {
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

		res := validate.Validate(ds.Markets, rules)
		if err := validate.Write(os.Stdout, res); err != nil {
			return err
		}
		if !res.OK() {
			return eris.Errorf("validate: %d issue(s) found", len(res.Issues))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
