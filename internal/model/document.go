package model

// ScheduleEntry is one weekday slot of a published document.
type ScheduleEntry struct {
	Day       Weekday `json:"day"`
	TimeStart string  `json:"timeStart"`
	TimeEnd   string  `json:"timeEnd"`
}

// Document is a location group rendered for the search index.
type Document struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Type            MarketType      `json:"type"`
	Geo             Coordinate      `json:"_geo"`
	GeoFilledFrom   GeoSource       `json:"geoFilledFrom"`
	ScheduleDays    []Weekday       `json:"scheduleDays"`
	Schedule        []ScheduleEntry `json:"schedule"`
	SeasonNote      *string         `json:"seasonNote"`
	Province        string          `json:"province"`
	Country         string          `json:"country"`
	CityTown        string          `json:"cityTown"`
	Location        string          `json:"location"`
	URL             *string         `json:"url"`
	SourceURL       *string         `json:"sourceUrl"`
	MunicipalityURL *string         `json:"municipalityUrl"`
	LastVerified    *string         `json:"lastVerified"`
}

// LedgerEntry records the outcome of fetching one source URL.
type LedgerEntry struct {
	File       string      `json:"file"`
	Markets    int         `json:"markets"`
	Downloaded string      `json:"downloaded"`
	Status     FetchStatus `json:"status"`
}

// FetchStatus is the recorded outcome of a source download.
type FetchStatus string

const (
	FetchOK        FetchStatus = "ok"
	FetchNotFound  FetchStatus = "404"
	FetchForbidden FetchStatus = "403"
	FetchError     FetchStatus = "error"
)

// Source is a distinct source URL together with the rows that cite it.
type Source struct {
	URL  string
	Rows []*Row
}

// GroupBySource returns the distinct source URLs of rows in first-seen order.
// Rows without a source URL are ignored.
func GroupBySource(rows []*Row) []Source {
	idx := make(map[string]int)
	var out []Source
	for _, r := range rows {
		if r.SourceURL == "" {
			continue
		}
		i, ok := idx[r.SourceURL]
		if !ok {
			i = len(out)
			idx[r.SourceURL] = i
			out = append(out, Source{URL: r.SourceURL})
		}
		out[i].Rows = append(out[i].Rows, r)
	}
	return out
}
