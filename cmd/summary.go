package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sells-group/marketmap-cli/internal/model"
)

// count formats n with thousands separators.
func count(n int) string {
	return humanize.Comma(int64(n))
}

// writeRunSummary prints one line per phase of run.
func writeRunSummary(out io.Writer, run *model.Run) {
	elapsed := run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond)
	fmt.Fprintf(out, "Run %s %s in %s\n", truncateID(run.ID), run.Status, elapsed)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, ph := range run.Phases {
		detail := ph.Error
		if detail == "" {
			detail = formatMetadata(ph.Metadata)
		}
		_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
			ph.Name,
			ph.Status,
			(time.Duration(ph.Duration) * time.Millisecond).String(),
			detail,
		)
	}
	_ = w.Flush()
}

// formatMetadata renders phase metadata as sorted key=value pairs. Counts
// get thousands separators.
func formatMetadata(meta map[string]any) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := meta[k]
		switch n := v.(type) {
		case int:
			v = count(n)
		case float64:
			v = humanize.Commaf(n)
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, " ")
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
