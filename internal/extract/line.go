package extract

import (
	"regexp"
	"strings"
)

// Line shapes, most specific first. A time is H:MM, HH:MM or with a dot; the
// range is joined by "tot" or a dash and either side may carry "uur".
var (
	threePartRe = regexp.MustCompile(`(?i)^(.+?)\s*[–-]\s*(.+?)\s*[–-]\s*(\d{1,2}[:.]\d{2})\s*(?:uur\s*)?(?:tot|[–-])\s*(\d{1,2}[:.]\d{2})(?:\s*uur)?`)
	twoPartRe   = regexp.MustCompile(`(?i)^(.+?)\s*[–-]\s*(\d{1,2}[:.]\d{2})\s*(?:uur\s*)?(?:tot|[–-])\s*(\d{1,2}[:.]\d{2})(?:\s*uur)?`)
	timeRe      = regexp.MustCompile(`(\d{1,2})[:.](\d{2})`)
)

// Entry is one market line without its weekday.
type Entry struct {
	Place       string `json:"city"`
	SubLocation string `json:"location"`
	Start       string `json:"time_from"`
	End         string `json:"time_to"`
}

// ParseLine parses "place – sub – HH:MM tot HH:MM" or, failing that,
// "sub – HH:MM tot HH:MM" (empty place). It returns false for anything else.
func ParseLine(line string) (Entry, bool) {
	if m := threePartRe.FindStringSubmatch(line); m != nil {
		return Entry{
			Place:       strings.TrimSpace(m[1]),
			SubLocation: strings.TrimSpace(m[2]),
			Start:       NormalizeTime(m[3]),
			End:         NormalizeTime(m[4]),
		}, true
	}
	if m := twoPartRe.FindStringSubmatch(line); m != nil {
		return Entry{
			SubLocation: strings.TrimSpace(m[1]),
			Start:       NormalizeTime(m[2]),
			End:         NormalizeTime(m[3]),
		}, true
	}
	return Entry{}, false
}

// NormalizeTime returns the first time in t as zero-padded "HH:MM", or ""
// when t holds none.
func NormalizeTime(t string) string {
	m := timeRe.FindStringSubmatch(t)
	if m == nil {
		return ""
	}
	h := m[1]
	if len(h) == 1 {
		h = "0" + h
	}
	return h + ":" + m[2]
}
