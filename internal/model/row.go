package model

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/marketmap-cli/internal/jsonx"
)

// Row is one scheduled occurrence of a market on one weekday, as stored in
// the canonical dataset. Keys the pipeline does not know about are kept and
// written back in their original order.
type Row struct {
	Province        string       `json:"province"`
	CityTown        string       `json:"city_town"`
	Location        string       `json:"location"`
	Day             Weekday      `json:"day"`
	TimeFrom        string       `json:"time_from"`
	TimeTo          string       `json:"time_to"`
	Type            MarketType   `json:"type"`
	Geo             *Coordinate  `json:"_geo"`
	GeoFilledFrom   GeoSource    `json:"geo_filled_from"`
	SourceURL       string       `json:"source_url"`
	URL             string       `json:"url"`
	MunicipalityURL string       `json:"municipality_url"`
	LastVerified    string       `json:"last_verified"`
	SeasonNote      string       `json:"season_note"`
	VerifiedGeo     VerifyStatus `json:"verified_geo"`
	VerifiedTimes   VerifyStatus `json:"verified_times"`
	VerifiedInfo    VerifyStatus `json:"verified_info"`

	raw          jsonx.Object
	geoMalformed bool
	// decoded holds each text field as read, so unchanged fields can be
	// written back byte for byte.
	decoded   map[string]string
	malformed map[string]json.RawMessage
}

type textField struct {
	name string
	ptr  *string
	// nullable fields use null for "no value"; an empty string there is
	// itself a malformed value.
	nullable bool
}

func (r *Row) textFields() []textField {
	return []textField{
		{"province", &r.Province, false},
		{"city_town", &r.CityTown, false},
		{"location", &r.Location, false},
		{"day", (*string)(&r.Day), false},
		{"time_from", &r.TimeFrom, false},
		{"time_to", &r.TimeTo, false},
		{"type", (*string)(&r.Type), false},
		{"geo_filled_from", (*string)(&r.GeoFilledFrom), true},
		{"source_url", &r.SourceURL, false},
		{"url", &r.URL, false},
		{"municipality_url", &r.MunicipalityURL, false},
		{"last_verified", &r.LastVerified, false},
		{"season_note", &r.SeasonNote, false},
		{"verified_geo", (*string)(&r.VerifiedGeo), true},
		{"verified_times", (*string)(&r.VerifiedTimes), true},
		{"verified_info", (*string)(&r.VerifiedInfo), true},
	}
}

// rowFieldOrder is the key order used for fields a row did not originally
// carry.
var rowFieldOrder = []string{
	"province", "city_town", "location", "day", "time_from", "time_to", "type",
	"_geo", "geo_filled_from", "source_url", "url", "municipality_url",
	"last_verified", "season_note", "verified_geo", "verified_times", "verified_info",
}

// GeoState describes the _geo field of a row as read from disk.
type GeoState int

const (
	GeoMissing GeoState = iota
	GeoMalformed
	GeoPresent
)

// Has reports whether the row carried key when it was decoded, or has since
// been given a non-null value for it.
func (r *Row) Has(key string) bool {
	if _, ok := r.raw.Get(key); ok {
		return true
	}
	switch key {
	case "verified_geo":
		return r.VerifiedGeo != VerifyNone
	case "verified_times":
		return r.VerifiedTimes != VerifyNone
	case "verified_info":
		return r.VerifiedInfo != VerifyNone
	case "_geo":
		return r.Geo != nil
	}
	return false
}

// GeoState reports whether the coordinate is absent, malformed or usable.
func (r *Row) GeoState() GeoState {
	if r.Geo != nil {
		return GeoPresent
	}
	if r.geoMalformed {
		return GeoMalformed
	}
	return GeoMissing
}

// Key returns the row's location grouping key.
func (r *Row) Key() LocationKey {
	return LocationKey{Place: r.CityTown, SubLocation: r.Location}
}

// Malformed returns the value of a text field that was not usable when the
// row was decoded: a non-string, or an empty string where null is expected.
// Numbers, booleans and objects come back as their JSON text. It reports
// false once the field has been given a value.
func (r *Row) Malformed(field string) (string, bool) {
	raw, ok := r.malformed[field]
	if !ok {
		return "", false
	}
	for _, f := range r.textFields() {
		if f.name == field && *f.ptr != "" {
			return "", false
		}
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s, true
	}
	return string(raw), true
}

// UnmarshalJSON decodes a row, remembering key order and unknown keys. A
// field of the wrong JSON type does not fail the row; it is kept for the
// validator to report.
func (r *Row) UnmarshalJSON(data []byte) error {
	var raw jsonx.Object
	if err := raw.UnmarshalJSON(data); err != nil {
		return eris.Wrap(err, "model: decode row")
	}

	r.decoded = make(map[string]string)
	r.malformed = nil
	for _, f := range r.textFields() {
		*f.ptr = ""
		v, ok := raw.Get(f.name)
		if !ok {
			continue
		}
		if !isNull(v) {
			var s string
			if err := json.Unmarshal(v, &s); err != nil || (s == "" && f.nullable) {
				if r.malformed == nil {
					r.malformed = make(map[string]json.RawMessage)
				}
				r.malformed[f.name] = v
			} else {
				*f.ptr = s
			}
		}
		r.decoded[f.name] = *f.ptr
	}

	r.Geo = nil
	r.geoMalformed = false
	if geo, ok := raw.Get("_geo"); ok && !isNull(geo) {
		var c struct {
			Lat *float64 `json:"lat"`
			Lng *float64 `json:"lng"`
		}
		if err := json.Unmarshal(geo, &c); err != nil || c.Lat == nil || c.Lng == nil {
			r.geoMalformed = true
		} else {
			r.Geo = &Coordinate{Lat: *c.Lat, Lng: *c.Lng}
		}
	}

	r.raw = raw
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// MarshalJSON encodes the row, keeping the original key order and any keys
// the pipeline does not model.
func (r Row) MarshalJSON() ([]byte, error) {
	type plain Row
	b, err := jsonx.Marshal(plain(r))
	if err != nil {
		return nil, eris.Wrap(err, "model: encode row")
	}
	var known map[string]json.RawMessage
	if err := json.Unmarshal(b, &known); err != nil {
		return nil, eris.Wrap(err, "model: encode row")
	}
	if r.Geo == nil && r.geoMalformed {
		known["_geo"], _ = r.raw.Get("_geo")
	}
	for _, f := range r.textFields() {
		if prev, ok := r.decoded[f.name]; ok && prev == *f.ptr {
			known[f.name], _ = r.raw.Get(f.name)
		}
	}

	out := jsonx.NewObject()
	for _, k := range r.raw.Keys() {
		v, ok := known[k]
		if !ok {
			v, _ = r.raw.Get(k)
		}
		out.Set(k, v)
	}
	for _, k := range rowFieldOrder {
		if _, seen := out.Get(k); seen || jsonx.IsEmpty(known[k]) {
			continue
		}
		out.Set(k, known[k])
	}
	return out.MarshalJSON()
}

// Dataset is the canonical dataset file: an object with a "markets" array.
// Other top-level keys are preserved.
type Dataset struct {
	Markets []*Row

	raw jsonx.Object
}

// UnmarshalJSON decodes the dataset object.
func (d *Dataset) UnmarshalJSON(data []byte) error {
	var raw jsonx.Object
	if err := raw.UnmarshalJSON(data); err != nil {
		return eris.Wrap(err, "model: decode dataset")
	}
	d.Markets = nil
	if m, ok := raw.Get("markets"); ok {
		if err := json.Unmarshal(m, &d.Markets); err != nil {
			return eris.Wrap(err, "model: decode markets")
		}
	}
	d.raw = raw
	return nil
}

// MarshalJSON encodes the dataset object.
func (d Dataset) MarshalJSON() ([]byte, error) {
	markets := d.Markets
	if markets == nil {
		markets = []*Row{}
	}
	m, err := jsonx.Marshal(markets)
	if err != nil {
		return nil, eris.Wrap(err, "model: encode markets")
	}

	out := jsonx.NewObject()
	for _, k := range d.raw.Keys() {
		v, _ := d.raw.Get(k)
		out.Set(k, v)
	}
	out.Set("markets", m)
	return out.MarshalJSON()
}

func nullableString(s string) []byte {
	if s == "" {
		return []byte("null")
	}
	b, _ := jsonx.Marshal(s)
	return b
}
