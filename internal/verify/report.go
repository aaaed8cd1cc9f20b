package verify

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketmap-cli/internal/model"
	"github.com/sells-group/marketmap-cli/internal/store"
)

// Totals tallies the verification report.
type Totals struct {
	Sources      int `json:"sources"`
	Errors       int `json:"errors"`
	Conclusive   int `json:"conclusive"`
	Inconclusive int `json:"inconclusive"`
	Extra        int `json:"extra"`
}

// SourceResult is the typed view of one report entry. Fields the model
// returns beyond these stay in the stored entry untouched.
type SourceResult struct {
	SourceURL   string          `json:"source_url"`
	File        string          `json:"file"`
	Error       string          `json:"error"`
	JSONCount   int             `json:"json_count"`
	Entries     []EntryResult   `json:"entries"`
	ExtraInHTML json.RawMessage `json:"extra_in_html"`
}

// EntryResult is the model's verdict on one dataset row.
type EntryResult struct {
	JSONIndex     *int   `json:"json_index"`
	CityTown      status `json:"city_town"`
	Day           status `json:"day"`
	VerifiedTimes status `json:"verified_times"`
	VerifiedInfo  status `json:"verified_info"`
}

// Conclusive reports whether both verdicts are conclusive.
func (e EntryResult) Conclusive() bool {
	return model.VerifyStatus(e.VerifiedTimes) == model.VerifyConclusive &&
		model.VerifyStatus(e.VerifiedInfo) == model.VerifyConclusive
}

// status is a string the model may have answered with any JSON type. Non
// strings decode as empty.
type status string

func (s *status) UnmarshalJSON(b []byte) error {
	var v string
	if json.Unmarshal(b, &v) == nil {
		*s = status(v)
	} else {
		*s = ""
	}
	return nil
}

// extraCount counts the markets the model found only on the page.
func (r SourceResult) extraCount() int {
	var items []json.RawMessage
	if json.Unmarshal(r.ExtraInHTML, &items) != nil {
		return 0
	}
	return len(items)
}

// DecodeSourceResult decodes a stored report entry.
func DecodeSourceResult(raw json.RawMessage) (*SourceResult, error) {
	var r SourceResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, eris.Wrap(err, "verify: decode report entry")
	}
	return &r, nil
}

// ReportSource lists the stored report entries.
type ReportSource interface {
	Reports(ctx context.Context) ([]store.Record, error)
}

// ReportTotals tallies every entry of the stored report. An entry counts as
// conclusive only when both of its verdicts are conclusive.
func ReportTotals(ctx context.Context, st ReportSource) (*Totals, error) {
	recs, err := st.Reports(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "verify: read report")
	}
	t := &Totals{}
	for _, rec := range recs {
		r, err := DecodeSourceResult(rec.Value)
		if err != nil {
			zap.L().Warn("verify: skipping undecodable report entry", zap.String("url", rec.Key), zap.Error(err))
			continue
		}
		t.Sources++
		if r.Error != "" {
			t.Errors++
			continue
		}
		for _, e := range r.Entries {
			if e.Conclusive() {
				t.Conclusive++
			} else {
				t.Inconclusive++
			}
		}
		t.Extra += r.extraCount()
	}
	return t, nil
}

// ApplySummary counts what Apply changed.
type ApplySummary struct {
	Sources int `json:"sources"`
	Updated int `json:"updated"`
	Stale   int `json:"stale"`
	Ignored int `json:"ignored"`
}

// Apply copies the report's verdicts onto the rows they describe. Entries
// address rows by their position among the rows sharing a source URL, so a
// source whose row count changed since verification is left alone, as is an
// entry whose place or day no longer matches its row.
func Apply(ctx context.Context, st ReportSource, rows []*model.Row) (*ApplySummary, error) {
	recs, err := st.Reports(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "verify: read report")
	}
	bySource := make(map[string][]*model.Row)
	for _, src := range model.GroupBySource(rows) {
		bySource[src.URL] = src.Rows
	}

	sum := &ApplySummary{}
	for _, rec := range recs {
		r, err := DecodeSourceResult(rec.Value)
		if err != nil || r.Error != "" {
			continue
		}
		srcRows, ok := bySource[rec.Key]
		if !ok || r.JSONCount != len(srcRows) {
			sum.Stale++
			continue
		}
		sum.Sources++

		for _, e := range r.Entries {
			if e.JSONIndex == nil || *e.JSONIndex < 0 || *e.JSONIndex >= len(srcRows) {
				sum.Ignored++
				continue
			}
			row := srcRows[*e.JSONIndex]
			if (e.CityTown != "" && string(e.CityTown) != row.CityTown) ||
				(e.Day != "" && model.Weekday(e.Day) != row.Day) {
				sum.Ignored++
				continue
			}
			times, info := model.VerifyStatus(e.VerifiedTimes), model.VerifyStatus(e.VerifiedInfo)
			changed := false
			if times != model.VerifyNone && times.Valid() && row.VerifiedTimes != times {
				row.VerifiedTimes = times
				changed = true
			}
			if info != model.VerifyNone && info.Valid() && row.VerifiedInfo != info {
				row.VerifiedInfo = info
				changed = true
			}
			if changed {
				sum.Updated++
			}
		}
	}
	return sum, nil
}
