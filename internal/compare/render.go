package compare

import (
	"fmt"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/marketmap-cli/internal/dataset"
)

// Output formats accepted by Write.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Write renders rep in the named format.
func Write(w io.Writer, rep *Report, format string) error {
	switch format {
	case "", FormatText:
		return WriteText(w, rep)
	case FormatJSON:
		return WriteJSON(w, rep)
	case FormatYAML:
		return WriteYAML(w, rep)
	default:
		return eris.Errorf("compare: unknown format %q", format)
	}
}

// WriteJSON renders rep as indented JSON.
func WriteJSON(w io.Writer, rep *Report) error {
	b, err := dataset.Encode(rep)
	if err != nil {
		return eris.Wrap(err, "compare: encode json")
	}
	_, err = w.Write(b)
	return err
}

// WriteYAML renders rep as YAML.
func WriteYAML(w io.Writer, rep *Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rep); err != nil {
		return eris.Wrap(err, "compare: encode yaml")
	}
	return enc.Close()
}

// WriteText renders the operator view of rep.
func WriteText(w io.Writer, rep *Report) error {
	p := &printer{w: w}
	p.line("\n=== Source Verification Report ===\n")
	p.line("Matches: %d", rep.Totals.Matches)
	p.line("Discrepancies: %d", rep.Totals.Discrepancies)
	p.line("In JSON but not found in HTML: %d", rep.Totals.Missing)
	p.line("In HTML but not in JSON: %d", rep.Totals.Extra)
	p.line("Unparseable pages: %d", rep.Totals.Unparseable)
	p.line("")

	for _, s := range rep.Sources {
		if s.Failed() {
			p.line("--- %s [%s] ---", s.URL, s.Status)
			msg := s.Error
			if msg == "" {
				msg = s.Note
			}
			p.line("  %s", msg)
			if s.JSONCount > 0 {
				p.line("  JSON entries: %d", s.JSONCount)
			}
			p.line("")
			continue
		}

		p.line("--- %s (HTML: %d, JSON: %d) ---", s.File, s.HTMLCount, s.JSONCount)
		for _, d := range s.Discrepancies {
			p.line("  DIFF: %s", d.Market)
			for _, diff := range d.Diffs {
				p.line("    %s", diff)
			}
		}
		for _, m := range s.MissingFromHTML {
			p.line("  MISSING from HTML: %s", m)
		}
		for _, u := range s.UnmatchedHTML {
			p.line("  EXTRA in HTML: %s", u)
		}
		p.line("")
	}
	return p.err
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}

// WriteXLSX saves rep as a workbook with one sheet per finding kind, for
// reviewers who work offline.
func WriteXLSX(path string, rep *Report) error {
	f := xlsx.NewFile()

	sheets := []struct {
		name   string
		header []string
		rows   [][]string
	}{
		{name: "Summary", header: []string{"metric", "count"}, rows: [][]string{
			{"matches", strconv.Itoa(rep.Totals.Matches)},
			{"discrepancies", strconv.Itoa(rep.Totals.Discrepancies)},
			{"missing_from_html", strconv.Itoa(rep.Totals.Missing)},
			{"extra_in_html", strconv.Itoa(rep.Totals.Extra)},
			{"unparseable", strconv.Itoa(rep.Totals.Unparseable)},
		}},
		{name: "Discrepancies", header: []string{"url", "market", "diff"}},
		{name: "Missing", header: []string{"url", "market"}},
		{name: "Extra", header: []string{"url", "market"}},
		{name: "Unavailable", header: []string{"url", "status", "reason", "json_entries"}},
	}

	for _, s := range rep.Sources {
		if s.Failed() {
			reason := s.Error
			if reason == "" {
				reason = s.Note
			}
			sheets[4].rows = append(sheets[4].rows, []string{s.URL, s.Status, reason, strconv.Itoa(s.JSONCount)})
			continue
		}
		for _, d := range s.Discrepancies {
			for _, diff := range d.Diffs {
				sheets[1].rows = append(sheets[1].rows, []string{s.URL, d.Market, diff})
			}
		}
		for _, m := range s.MissingFromHTML {
			sheets[2].rows = append(sheets[2].rows, []string{s.URL, m})
		}
		for _, u := range s.UnmatchedHTML {
			sheets[3].rows = append(sheets[3].rows, []string{s.URL, u})
		}
	}

	for _, sh := range sheets {
		sheet, err := f.AddSheet(sh.name)
		if err != nil {
			return eris.Wrapf(err, "compare: add sheet %s", sh.name)
		}
		addRow(sheet, sh.header)
		for _, r := range sh.rows {
			addRow(sheet, r)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "compare: save workbook %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}
