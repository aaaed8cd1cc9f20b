package model

import (
	"strings"
)

// Weekday is an English lowercase day name as stored in the dataset.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

// Weekdays returns all weekdays in canonical (Monday first) order.
func Weekdays() []Weekday {
	return []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}
}

// Index returns the position of d in canonical order, or -1 if d is not a
// known weekday.
func (d Weekday) Index() int {
	for i, w := range Weekdays() {
		if w == d {
			return i
		}
	}
	return -1
}

// Valid reports whether d is one of the seven weekdays.
func (d Weekday) Valid() bool { return d.Index() >= 0 }

var dutchWeekdays = map[string]Weekday{
	"maandag":   Monday,
	"dinsdag":   Tuesday,
	"woensdag":  Wednesday,
	"donderdag": Thursday,
	"vrijdag":   Friday,
	"zaterdag":  Saturday,
	"zondag":    Sunday,
}

// ParseDutchWeekday maps a Dutch day name (any case) to a Weekday.
func ParseDutchWeekday(s string) (Weekday, bool) {
	d, ok := dutchWeekdays[strings.ToLower(strings.TrimSpace(s))]
	return d, ok
}

// MarketType is the closed set of market categories.
type MarketType string

// MarketTypes returns every accepted market type.
func MarketTypes() []MarketType {
	return []MarketType{
		"antique_market",
		"bloemenmarkt",
		"boekenmarkt",
		"book_market",
		"fabric_market",
		"farmers_market",
		"flower_market",
		"groentemarkt",
		"minimarkt",
		"organic_market",
		"regional_market",
		"warenmarkt",
		"warenmarkt+stoffenmarkt",
		"weekly_market",
	}
}

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Equal reports exact equality of both components.
func (c Coordinate) Equal(o Coordinate) bool {
	return c.Lat == o.Lat && c.Lng == o.Lng
}

// GeoSource records where a row's coordinate came from.
type GeoSource string

const (
	GeoSourceNone      GeoSource = ""
	GeoSourceNominatim GeoSource = "nominatim"
	GeoSourcePrefilled GeoSource = "pre-filled"
)

// MarshalJSON writes the empty source as null.
func (s GeoSource) MarshalJSON() ([]byte, error) {
	return nullableString(string(s)), nil
}

// VerifyStatus is the outcome of a verification check. The empty value
// stands for null (not yet verified).
type VerifyStatus string

const (
	VerifyNone         VerifyStatus = ""
	VerifyConclusive   VerifyStatus = "conclusive"
	VerifyInconclusive VerifyStatus = "inconclusive"
)

// Valid reports whether s is null, conclusive or inconclusive.
func (s VerifyStatus) Valid() bool {
	switch s {
	case VerifyNone, VerifyConclusive, VerifyInconclusive:
		return true
	}
	return false
}

// MarshalJSON writes the empty status as null.
func (s VerifyStatus) MarshalJSON() ([]byte, error) {
	return nullableString(string(s)), nil
}

// LocationKey identifies one physical market venue.
type LocationKey struct {
	Place       string
	SubLocation string
}

// String renders the key as "place|sub-location", the format used by the
// geocode cache.
func (k LocationKey) String() string {
	return k.Place + "|" + k.SubLocation
}

// LocationGroup is the set of rows sharing a LocationKey, in dataset order.
type LocationGroup struct {
	Key  LocationKey
	Rows []*Row
}

// First returns the first row of the group.
func (g LocationGroup) First() *Row {
	if len(g.Rows) == 0 {
		return nil
	}
	return g.Rows[0]
}

// Label renders a row the way operators refer to it: "city / location (day)".
func Label(r *Row) string {
	return r.CityTown + " / " + r.Location + " (" + string(r.Day) + ")"
}

// GroupLocations groups rows by LocationKey, keeping groups in first-seen
// order and rows in dataset order.
func GroupLocations(rows []*Row) []LocationGroup {
	idx := make(map[LocationKey]int)
	var out []LocationGroup
	for _, r := range rows {
		k := r.Key()
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, LocationGroup{Key: k})
		}
		out[i].Rows = append(out[i].Rows, r)
	}
	return out
}
