package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/marketmap-cli/internal/config"
	"github.com/sells-group/marketmap-cli/internal/progress"
)

var cfg *config.Config

var showProgress bool

var rootCmd = &cobra.Command{
	Use:   "marketmap",
	Short: "Weekly market dataset pipeline",
	Long:  "Fetches market source pages, fills coordinates, checks the dataset against its sources and publishes location documents to the search index.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&showProgress, "progress", false, "draw progress bars on stderr")
}

// progressFactory returns the bar factory selected by --progress.
func progressFactory() progress.Factory {
	if showProgress {
		return progress.Terminal(os.Stderr)
	}
	return progress.None()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
