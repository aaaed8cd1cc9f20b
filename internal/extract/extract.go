// Package extract pulls (weekday, place, sub-location, start, end) tuples
// out of scraped market pages.
package extract

import (
	"regexp"

	"github.com/sells-group/marketmap-cli/internal/model"
)

// Strategy names the parser that produced a result.
type Strategy string

const (
	StrategyParagraph Strategy = "paragraph"
	StrategyHeading   Strategy = "heading"
	StrategyNone      Strategy = ""
)

// Market is one extracted market occurrence.
type Market struct {
	Day model.Weekday `json:"day"`
	Entry
}

// Result is the output of Extract.
type Result struct {
	Markets     []Market `json:"markets"`
	Strategy    Strategy `json:"strategy"`
	Unparseable bool     `json:"unparseable"`
}

const dayNames = `Maandag|Dinsdag|Woensdag|Donderdag|Vrijdag|Zaterdag|Zondag`

var (
	// <p><strong>Dag</strong><br> entries separated by <br> </p>
	paragraphRe = regexp.MustCompile(`(?is)<p>\s*<strong>(` + dayNames + `)</strong>\s*<br\s*/?>\s*(.*?)</p>`)
	// <h2>Dag</h2>, optionally with <strong> inside
	headingRe = regexp.MustCompile(`(?i)<h2[^>]*>\s*(?:<strong>)?(` + dayNames + `)(?:</strong>)?\s*</h2>`)
	itemRe    = regexp.MustCompile(`(?is)<li>(.*?)</li>`)
)

// Extract runs both strategies and keeps the one with more markets; the
// paragraph strategy wins ties. A page neither strategy understands is
// marked Unparseable.
func Extract(html string) Result {
	para := Paragraphs(html)
	head := Headings(html)

	switch {
	case len(para) == 0 && len(head) == 0:
		return Result{Markets: []Market{}, Unparseable: true}
	case len(para) >= len(head):
		return Result{Markets: para, Strategy: StrategyParagraph}
	default:
		return Result{Markets: head, Strategy: StrategyHeading}
	}
}

// Paragraphs parses municipality-style pages where each weekday is a bold
// label at the start of a paragraph followed by <br>-separated lines.
func Paragraphs(html string) []Market {
	var out []Market
	for _, m := range paragraphRe.FindAllStringSubmatch(html, -1) {
		day, ok := model.ParseDutchWeekday(m[1])
		if !ok {
			continue
		}
		for _, raw := range breakRe.Split(m[2], -1) {
			line := StripHTML(raw)
			if line == "" {
				continue
			}
			if e, ok := ParseLine(line); ok {
				out = append(out, Market{Day: day, Entry: e})
			}
		}
	}
	return out
}

// Headings parses province-style pages where each weekday is an <h2> and
// its markets are the list items up to the next weekday heading.
func Headings(html string) []Market {
	locs := headingRe.FindAllStringSubmatchIndex(html, -1)

	var out []Market
	for i, loc := range locs {
		day, ok := model.ParseDutchWeekday(html[loc[2]:loc[3]])
		if !ok {
			continue
		}
		end := len(html)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		section := html[loc[1]:end]

		for _, item := range itemRe.FindAllStringSubmatch(section, -1) {
			if e, ok := ParseLine(StripHTML(item[1])); ok {
				out = append(out, Market{Day: day, Entry: e})
			}
		}
	}
	return out
}
