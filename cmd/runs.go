package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/marketmap-cli/internal/model"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline run history",
	Long:  "Commands for listing and viewing seed and reindex runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent pipeline runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.Runs(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs, time.Now())
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.Runs(ctx, 0)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		run := findRun(runs, args[0])
		if run == nil {
			return eris.Errorf("runs show: no run matching %q", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

// findRun returns the run whose ID equals or starts with id.
func findRun(runs []model.Run, id string) *model.Run {
	for i := range runs {
		if runs[i].ID == id {
			return &runs[i]
		}
	}
	if len(id) < 4 {
		return nil
	}
	for i := range runs {
		if strings.HasPrefix(runs[i].ID, id) {
			return &runs[i]
		}
	}
	return nil
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tDURATION\tFAILED_PHASE")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t--------\t------------")

	for _, r := range runs {
		dur := r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()

		failed := ""
		for _, ph := range r.Phases {
			if ph.Status == model.PhaseStatusFailed {
				failed = ph.Name
				break
			}
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Status,
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			dur,
			failed,
		)
	}
	_ = w.Flush()
}
