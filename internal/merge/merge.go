// Package merge turns per-day dataset rows into one published document per
// physical market location.
package merge

import (
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/marketmap-cli/internal/model"
)

// Country is the country code stamped on every document.
const Country = "NL"

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and joins its ASCII alphanumeric runs with dashes.
func Slugify(s string) string {
	s = slugRe.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}

// Group groups rows by (place, sub-location) in first-seen order.
func Group(rows []*model.Row) []model.LocationGroup {
	return model.GroupLocations(rows)
}

// Name is the display name of a location: "{place} Weekmarkt" when the
// sub-location repeats the place, else "{place} - {sub-location}".
func Name(place, sub string) string {
	if sub == place {
		return place + " Weekmarkt"
	}
	return place + " - " + sub
}

// Schedule returns the group's schedule in canonical weekday order with one
// entry per weekday. When two rows share a weekday the first one wins.
func Schedule(rows []*model.Row) []model.ScheduleEntry {
	seen := make(map[model.Weekday]struct{}, len(rows))
	out := make([]model.ScheduleEntry, 0, len(rows))
	for _, r := range rows {
		if _, dup := seen[r.Day]; dup {
			continue
		}
		seen[r.Day] = struct{}{}
		out = append(out, model.ScheduleEntry{Day: r.Day, TimeStart: r.TimeFrom, TimeEnd: r.TimeTo})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Day.Index() < out[j].Day.Index()
	})
	return out
}

// Document renders a group. Metadata comes from the group's first row. It
// returns false when that row has no coordinate.
func Document(g model.LocationGroup) (model.Document, bool) {
	first := g.First()
	if first == nil || first.Geo == nil {
		return model.Document{}, false
	}

	schedule := Schedule(g.Rows)
	days := make([]model.Weekday, len(schedule))
	for i, s := range schedule {
		days[i] = s.Day
	}

	return model.Document{
		ID:              Slugify(first.CityTown + "-" + first.Location),
		Name:            Name(first.CityTown, first.Location),
		Type:            first.Type,
		Geo:             *first.Geo,
		GeoFilledFrom:   first.GeoFilledFrom,
		ScheduleDays:    days,
		Schedule:        schedule,
		SeasonNote:      optional(first.SeasonNote),
		Province:        first.Province,
		Country:         Country,
		CityTown:        first.CityTown,
		Location:        first.Location,
		URL:             optional(first.URL),
		SourceURL:       optional(first.SourceURL),
		MunicipalityURL: optional(first.MunicipalityURL),
		LastVerified:    optional(first.LastVerified),
	}, true
}

// Documents groups rows and renders every group that has a coordinate.
// Groups without one are counted in skipped.
func Documents(rows []*model.Row) (docs []model.Document, skipped int) {
	groups := Group(rows)
	docs = make([]model.Document, 0, len(groups))
	for _, g := range groups {
		doc, ok := Document(g)
		if !ok {
			zap.L().Warn("merge: no coordinate, skipping location",
				zap.String("place", g.Key.Place),
				zap.String("location", g.Key.SubLocation),
			)
			skipped++
			continue
		}
		docs = append(docs, doc)
	}
	return docs, skipped
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
