// Package validate checks the canonical dataset before it is published.
// Validation never changes a row; it only reports.
package validate

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"

	"github.com/sells-group/marketmap-cli/internal/model"
)

var timeRe = regexp.MustCompile(`^\d{2}:\d{2}$`)

// Issue is one problem found in one row.
type Issue struct {
	Index   int    `json:"index"`
	Label   string `json:"label"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("[%d] %s: %s", i.Index, i.Label, i.Message)
}

// Result is the outcome of validating a dataset.
type Result struct {
	Rows   int     `json:"rows"`
	Issues []Issue `json:"issues"`
}

// OK reports whether no issues were found.
func (r *Result) OK() bool { return len(r.Issues) == 0 }

var verifyFields = []string{"verified_geo", "verified_times", "verified_info"}

// Validate checks every row against rules and returns all issues in row
// order. Checks for one row run in a fixed order so reports are stable.
func Validate(rows []*model.Row, rules Rules) *Result {
	res := &Result{Rows: len(rows)}
	seen := make(map[string]struct{}, len(rows))

	for i, r := range rows {
		label := model.Label(r)
		add := func(format string, args ...any) {
			res.Issues = append(res.Issues, Issue{Index: i, Label: label, Message: fmt.Sprintf(format, args...)})
		}

		required := []struct{ name, value string }{
			{"province", r.Province},
			{"city_town", r.CityTown},
			{"location", r.Location},
			{"day", string(r.Day)},
			{"time_from", r.TimeFrom},
			{"time_to", r.TimeTo},
			{"type", string(r.Type)},
		}
		for _, f := range required {
			if _, bad := r.Malformed(f.name); f.value == "" && !bad {
				add("Missing required field: %s", f.name)
			}
		}

		if v, bad := r.Malformed("day"); bad {
			add("Invalid day: %q", v)
		} else if r.Day != "" && !slices.Contains(rules.Days, r.Day) {
			add("Invalid day: %q", string(r.Day))
		}

		for _, f := range []struct{ name, value string }{{"time_from", r.TimeFrom}, {"time_to", r.TimeTo}} {
			if v, bad := r.Malformed(f.name); bad {
				add("Invalid %s format: %q", f.name, v)
			} else if f.value != "" && !timeRe.MatchString(f.value) {
				add("Invalid %s format: %q", f.name, f.value)
			}
		}
		if r.TimeFrom != "" && r.TimeTo != "" && r.TimeFrom >= r.TimeTo {
			add("time_from (%s) >= time_to (%s)", r.TimeFrom, r.TimeTo)
		}
		if r.TimeFrom == "00:00" {
			add("Suspicious 00:00 start time")
		}

		switch r.GeoState() {
		case model.GeoMissing:
			add("Missing _geo")
		case model.GeoMalformed:
			add("Invalid _geo: lat/lng must be numbers")
		default:
			if !rules.Bounds.Contains(*r.Geo) {
				add("_geo outside %s bounds: [%s, %s]", rules.Region, formatNumber(r.Geo.Lat), formatNumber(r.Geo.Lng))
			}
		}

		dup := r.CityTown + "|" + r.Location + "|" + string(r.Day)
		if _, ok := seen[dup]; ok {
			add("Duplicate entry")
		}
		seen[dup] = struct{}{}

		if v, bad := r.Malformed("type"); bad {
			add("Unknown type: %q", v)
		} else if r.Type != "" && !slices.Contains(rules.Types, r.Type) {
			add("Unknown type: %q", string(r.Type))
		}

		if _, bad := r.Malformed("source_url"); r.SourceURL == "" && !bad {
			add("Missing source_url")
		}

		for _, f := range verifyFields {
			if !r.Has(f) {
				add("Missing field: %s", f)
				continue
			}
			v, bad := r.Malformed(f)
			if !bad {
				if s := verifyValue(r, f); !s.Valid() {
					v, bad = string(s), true
				}
			}
			if bad {
				add(`Invalid %s: "%s" (expected null, "conclusive", or "inconclusive")`, f, v)
			}
		}
	}
	return res
}

func verifyValue(r *model.Row, field string) model.VerifyStatus {
	switch field {
	case "verified_geo":
		return r.VerifiedGeo
	case "verified_times":
		return r.VerifiedTimes
	default:
		return r.VerifiedInfo
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
