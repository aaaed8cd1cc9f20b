package compare

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	wsRe   = regexp.MustCompile(`[\s\x{00A0}]+`)
	quotes = strings.NewReplacer("‘", "'", "’", "'", "`", "'", "´", "'")
	folder = cases.Fold()
)

// Normalize prepares a place or location name for comparison: NFC,
// whitespace collapsed, quote variants unified, case folded.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = wsRe.ReplaceAllString(s, " ")
	s = quotes.Replace(s)
	return folder.String(strings.TrimSpace(s))
}

// Overlaps reports whether the normalized forms of a and b are equal or one
// contains the other. An empty side overlaps everything.
func Overlaps(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	return na == nb || strings.Contains(na, nb) || strings.Contains(nb, na)
}
