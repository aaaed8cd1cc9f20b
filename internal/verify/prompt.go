package verify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/marketmap-cli/internal/extract"
	"github.com/sells-group/marketmap-cli/internal/jsonx"
	"github.com/sells-group/marketmap-cli/internal/model"
)

// SystemPrompt is sent with every verification request.
const SystemPrompt = "You are a data verification assistant. Respond with valid JSON only."

// BuildPrompt asks the model to compare a source page with the dataset rows
// that cite it. articleHTML is de-tagged before it is embedded.
func BuildPrompt(articleHTML string, rows []*model.Row, sourceURL string) string {
	text := extract.StripToText(articleHTML)

	summary := make([]string, len(rows))
	for i, r := range rows {
		summary[i] = fmt.Sprintf(`  [%d] day=%s, city_town="%s", location="%s", time_from="%s", time_to="%s", type="%s"`,
			i, r.Day, r.CityTown, r.Location, r.TimeFrom, r.TimeTo, r.Type)
	}

	var b strings.Builder
	b.WriteString("You are verifying Dutch weekly market data. Compare the HTML source text against the JSON entries below.\n\n")
	fmt.Fprintf(&b, "SOURCE URL: %s\n\n", sourceURL)
	fmt.Fprintf(&b, "=== HTML SOURCE TEXT ===\n%s\n=== END HTML ===\n\n", text)
	fmt.Fprintf(&b, "=== JSON ENTRIES (our database) ===\n%s\n=== END JSON ===\n\n", strings.Join(summary, "\n"))
	b.WriteString(`TASK:
1. Read the HTML and identify every market listed (day, city/neighborhood, location, time_from, time_to).
2. Match each JSON entry to the corresponding HTML market.
3. For each JSON entry, verify:
   - verified_times: do day + time_from + time_to match? ("conclusive" if match, "inconclusive" if mismatch)
   - verified_info: do city_town + location match semantically? ("conclusive" if match, "inconclusive" if mismatch)
     Note: "Binnenstad" and city name often refer to the same center area, so that counts as a match.
     "Centrum" and a specific square name (e.g. "Marktplein") are a match if they refer to the same place.
4. If there are differences, suggest corrections in suggested_corrections.
5. List any markets in the HTML that don't appear in the JSON (extra_in_html).

Respond with ONLY valid JSON (no markdown, no code fences) in this exact format:
{
`)
	fmt.Fprintf(&b, "  \"source_url\": \"%s\",\n", sourceURL)
	b.WriteString(`  "html_markets_found": <number>,
  "entries": [
    {
      "json_index": <number>,
      "city_town": "<from JSON>",
      "day": "<from JSON>",
      "verified_times": "conclusive" | "inconclusive",
      "verified_info": "conclusive" | "inconclusive",
      "suggested_corrections": { "<field>": "<value>" } or null,
      "notes": "<brief explanation if inconclusive>"
    }
  ],
  "extra_in_html": [
    { "city": "<string>", "location": "<string>", "day": "<english day>", "time_from": "HH:MM", "time_to": "HH:MM" }
  ]
}`)
	return b.String()
}

var (
	fenceOpenRe  = regexp.MustCompile("(?i)^```(?:json)?\\s*\\n?")
	fenceCloseRe = regexp.MustCompile("\\n?```\\s*$")
)

// ParseError means the model answered with something that is not a JSON
// object. It is worth retrying.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "verify: parse response: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// ParseResponse strips an optional code fence and decodes the model's
// answer, keeping its keys in order.
func ParseResponse(content string) (*jsonx.Object, error) {
	cleaned := strings.TrimSpace(content)
	cleaned = fenceOpenRe.ReplaceAllString(cleaned, "")
	cleaned = fenceCloseRe.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	var obj jsonx.Object
	if err := obj.UnmarshalJSON([]byte(cleaned)); err != nil {
		return nil, &ParseError{Err: err}
	}
	return &obj, nil
}
