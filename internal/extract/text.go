package extract

import (
	"regexp"
	"strings"
)

var (
	tagRe      = regexp.MustCompile(`<[^>]+>`)
	spaceRe    = regexp.MustCompile(`[\s\x{00A0}]+`)
	scriptRe   = regexp.MustCompile(`(?is)<script.*?</script>`)
	styleRe    = regexp.MustCompile(`(?is)<style.*?</style>`)
	breakRe    = regexp.MustCompile(`(?i)<br\s*/?>`)
	blockEndRe = regexp.MustCompile(`(?i)</(?:p|li|h[1-6])>`)
	blankRe    = regexp.MustCompile(`\n{3,}`)
	articleRe  = regexp.MustCompile(`(?is)<article[^>]*>.*?</article>`)
)

// entities are decoded after tags are removed.
var entities = strings.NewReplacer(
	"&nbsp;", " ",
	"&#8211;", "–",
	"&ndash;", "–",
	"&#8217;", "'",
	"&rsquo;", "'",
	"&quot;", `"`,
	"&#39;", "'",
	"&lt;", "<",
	"&gt;", ">",
	"&amp;", "&",
)

// StripHTML removes tags, decodes the common entities and collapses all
// whitespace to single spaces. Used on single extracted lines.
func StripHTML(s string) string {
	s = tagRe.ReplaceAllString(s, "")
	s = entities.Replace(s)
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// StripToText renders a page as plain text for a language model: scripts and
// styles dropped, line breaks kept at <br> and block ends, runs of blank
// lines squeezed to one.
func StripToText(html string) string {
	html = scriptRe.ReplaceAllString(html, "")
	html = styleRe.ReplaceAllString(html, "")
	html = breakRe.ReplaceAllString(html, "\n")
	html = blockEndRe.ReplaceAllString(html, "\n")
	html = tagRe.ReplaceAllString(html, "")
	html = entities.Replace(html)
	html = blankRe.ReplaceAllString(html, "\n\n")
	return strings.TrimSpace(html)
}

// Article returns the first <article> element of a page, or the whole page
// when it has none.
func Article(html string) string {
	if m := articleRe.FindString(html); m != "" {
		return m
	}
	return html
}
