package compare

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketmap-cli/internal/dataset"
	"github.com/sells-group/marketmap-cli/internal/extract"
	"github.com/sells-group/marketmap-cli/internal/model"
	"github.com/sells-group/marketmap-cli/internal/store"
)

// StatusUnparseable marks a source page neither extraction strategy
// understood.
const StatusUnparseable = "unparseable"

// LedgerSource lists fetched sources in ledger order.
type LedgerSource interface {
	Ledger(ctx context.Context) ([]store.LedgerRecord, error)
}

// Discrepancy is a matched row whose fields disagree with its page.
type Discrepancy struct {
	Market string   `json:"market" yaml:"market"`
	Diffs  []string `json:"diffs" yaml:"diffs"`
}

// SourceReport is the comparison outcome for one source URL. Unavailable and
// unparseable sources carry only Status with Error or Note.
type SourceReport struct {
	URL             string           `json:"url" yaml:"url"`
	Status          string           `json:"status,omitempty" yaml:"status,omitempty"`
	Error           string           `json:"error,omitempty" yaml:"error,omitempty"`
	Note            string           `json:"note,omitempty" yaml:"note,omitempty"`
	File            string           `json:"file,omitempty" yaml:"file,omitempty"`
	Strategy        extract.Strategy `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	HTMLCount       int              `json:"htmlCount" yaml:"html_count"`
	JSONCount       int              `json:"jsonCount" yaml:"json_count"`
	Matches         []string         `json:"matches,omitempty" yaml:"matches,omitempty"`
	Discrepancies   []Discrepancy    `json:"discrepancies,omitempty" yaml:"discrepancies,omitempty"`
	UnmatchedHTML   []string         `json:"unmatchedHtml,omitempty" yaml:"unmatched_html,omitempty"`
	MissingFromHTML []string         `json:"missingFromHtml,omitempty" yaml:"missing_from_html,omitempty"`
}

// Failed reports whether the source could not be compared at all.
func (s SourceReport) Failed() bool {
	return s.Error != "" || s.Status == StatusUnparseable
}

// HasFindings reports whether a compared source differs from the dataset in
// any way worth showing.
func (s SourceReport) HasFindings() bool {
	return len(s.Discrepancies) > 0 || len(s.UnmatchedHTML) > 0 ||
		len(s.MissingFromHTML) > 0 || s.HTMLCount != s.JSONCount
}

// Totals sums the report over every source.
type Totals struct {
	Matches       int `json:"matches" yaml:"matches"`
	Discrepancies int `json:"discrepancies" yaml:"discrepancies"`
	Missing       int `json:"missing" yaml:"missing"`
	Extra         int `json:"extra" yaml:"extra"`
	Unparseable   int `json:"unparseable" yaml:"unparseable"`
}

// Report is the discrepancy report. Sources holds only sources with
// findings or failures.
type Report struct {
	Totals  Totals         `json:"totals" yaml:"totals"`
	Sources []SourceReport `json:"sources" yaml:"sources"`
}

// Runner compares every ledger source against the dataset.
type Runner struct {
	ledger LedgerSource
	dir    string
}

// NewRunner creates a Runner reading artifacts from dir.
func NewRunner(l LedgerSource, dir string) *Runner {
	return &Runner{ledger: l, dir: dir}
}

// Run builds the report. A source whose artifact is missing is left out.
func (r *Runner) Run(ctx context.Context, rows []*model.Row) (*Report, error) {
	records, err := r.ledger.Ledger(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "compare: read ledger")
	}

	bySource := make(map[string][]*model.Row)
	for _, s := range model.GroupBySource(rows) {
		bySource[s.URL] = s.Rows
	}

	log := zap.L().With(zap.String("phase", "compare"))
	rep := &Report{Sources: []SourceReport{}}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "compare: interrupted")
		}
		url, entry := rec.URL, rec.Entry

		if entry.Status != model.FetchOK {
			rep.Sources = append(rep.Sources, SourceReport{
				URL:    url,
				Status: string(entry.Status),
				Error:  "Source page not available",
			})
			continue
		}

		path := filepath.Join(r.dir, entry.File)
		if !dataset.Exists(path) {
			log.Debug("compare: artifact missing", zap.String("url", url), zap.String("file", entry.File))
			continue
		}
		html, err := extract.ReadPage(path)
		if err != nil {
			return nil, err
		}

		sr, ok := compareSource(url, entry.File, html, bySource[url], &rep.Totals)
		if ok {
			rep.Sources = append(rep.Sources, sr)
		}
	}

	log.Info("compare: done",
		zap.Int("matches", rep.Totals.Matches),
		zap.Int("discrepancies", rep.Totals.Discrepancies),
		zap.Int("missing", rep.Totals.Missing),
		zap.Int("extra", rep.Totals.Extra),
		zap.Int("unparseable", rep.Totals.Unparseable),
	)
	return rep, nil
}

// compareSource compares one page and adds to t. It returns false when the
// source matched perfectly and need not be reported.
func compareSource(url, file, html string, rows []*model.Row, t *Totals) (SourceReport, bool) {
	res := extract.Extract(html)
	if res.Unparseable {
		t.Unparseable++
		return SourceReport{
			URL:       url,
			Status:    StatusUnparseable,
			JSONCount: len(rows),
			Note:      "Could not extract market data from HTML",
		}, true
	}

	sr := SourceReport{
		URL:       url,
		File:      file,
		Strategy:  res.Strategy,
		HTMLCount: len(res.Markets),
		JSONCount: len(rows),
	}

	m := Match(rows, res.Markets)
	for _, p := range m.Pairs {
		if len(p.Diffs) == 0 {
			sr.Matches = append(sr.Matches, model.Label(p.Row))
			t.Matches++
			continue
		}
		sr.Discrepancies = append(sr.Discrepancies, Discrepancy{Market: model.Label(p.Row), Diffs: p.Diffs})
		t.Discrepancies++
	}
	for _, row := range m.Missing {
		sr.MissingFromHTML = append(sr.MissingFromHTML, model.Label(row))
		t.Missing++
	}
	for _, mk := range m.Extra {
		sr.UnmatchedHTML = append(sr.UnmatchedHTML, MarketLabel(mk))
		t.Extra++
	}

	return sr, sr.HasFindings()
}
