package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketmap-cli/internal/model"
)

const municipalityPage = `<html><body><article>
<h1>Weekmarkten</h1>
<p><strong>Dinsdag</strong><br>
Gouda &#8211; Markt &#8211; 8.30 tot 13.00 uur<br />
Bloemendaal &ndash; Winkelcentrum &ndash; 9:00 - 12:00</p>
<p><strong>Zaterdag</strong><br>Gouda – Markt – 08:00 tot 17:00</p>
<p>Meer informatie volgt.</p>
</article></body></html>`

const provincePage = `<html><body>
<h2>Maandag</h2>
<ul>
<li>Almere &#8211; Centrum &#8211; 09:00 tot 14:00</li>
<li>Lelystad – Agorahof – 9.00 uur tot 13.00 uur</li>
</ul>
<h2 class="day"><strong>Woensdag</strong></h2>
<ul><li>Almere – Stad Haven – 10:00 - 16:00</li><li>Geen markt</li></ul>
<h2>Over ons</h2>
<ul><li>Marktmeester – 08:00 tot 17:00</li></ul>
</body></html>`

func TestExtract_ParagraphStrategy(t *testing.T) {
	t.Parallel()

	res := Extract(municipalityPage)
	assert.Equal(t, StrategyParagraph, res.Strategy)
	assert.False(t, res.Unparseable)
	require.Len(t, res.Markets, 3)

	assert.Equal(t, Market{Day: model.Tuesday, Entry: Entry{Place: "Gouda", SubLocation: "Markt", Start: "08:30", End: "13:00"}}, res.Markets[0])
	assert.Equal(t, Market{Day: model.Tuesday, Entry: Entry{Place: "Bloemendaal", SubLocation: "Winkelcentrum", Start: "09:00", End: "12:00"}}, res.Markets[1])
	assert.Equal(t, model.Saturday, res.Markets[2].Day)
	assert.Equal(t, "17:00", res.Markets[2].End)
}

func TestExtract_HeadingStrategy(t *testing.T) {
	t.Parallel()

	res := Extract(provincePage)
	assert.Equal(t, StrategyHeading, res.Strategy)
	require.Len(t, res.Markets, 4)

	assert.Equal(t, model.Monday, res.Markets[0].Day)
	assert.Equal(t, "Almere", res.Markets[0].Place)
	assert.Equal(t, "Centrum", res.Markets[0].SubLocation)
	assert.Equal(t, Entry{Place: "Lelystad", SubLocation: "Agorahof", Start: "09:00", End: "13:00"}, res.Markets[1].Entry)
	assert.Equal(t, model.Wednesday, res.Markets[2].Day)
	assert.Equal(t, "Stad Haven", res.Markets[2].SubLocation)

	// The "Over ons" heading is not a weekday, so its list stays in the
	// Wednesday section.
	assert.Equal(t, model.Wednesday, res.Markets[3].Day)
	assert.Equal(t, Entry{SubLocation: "Marktmeester", Start: "08:00", End: "17:00"}, res.Markets[3].Entry)
}

func TestExtract_ParagraphWinsTies(t *testing.T) {
	t.Parallel()

	page := `<p><strong>Vrijdag</strong><br>Delft – Markt – 09:00 tot 17:00</p>
<h2>Vrijdag</h2><ul><li>Delft – Brabantse Turfmarkt – 09:00 tot 17:00</li></ul>`
	res := Extract(page)
	assert.Equal(t, StrategyParagraph, res.Strategy)
	require.Len(t, res.Markets, 1)
	assert.Equal(t, "Markt", res.Markets[0].SubLocation)
}

func TestExtract_Unparseable(t *testing.T) {
	t.Parallel()

	res := Extract(`<html><body><p>Er is geen weekmarkt.</p></body></html>`)
	assert.True(t, res.Unparseable)
	assert.Equal(t, StrategyNone, res.Strategy)
	assert.Empty(t, res.Markets)
}

func TestParseLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want Entry
		ok   bool
	}{
		{"three part tot", "Gouda – Markt – 08:30 tot 13:00", Entry{"Gouda", "Markt", "08:30", "13:00"}, true},
		{"three part dash", "Gouda - Markt - 8:30 - 13:00", Entry{"Gouda", "Markt", "08:30", "13:00"}, true},
		{"uur suffixes", "Gouda – Markt – 8.30 uur tot 13.00 uur", Entry{"Gouda", "Markt", "08:30", "13:00"}, true},
		{"case insensitive tot", "Gouda – Markt – 08:30 TOT 13:00", Entry{"Gouda", "Markt", "08:30", "13:00"}, true},
		{"two part", "Winkelcentrum Noord – 09:00 tot 12:00", Entry{"", "Winkelcentrum Noord", "09:00", "12:00"}, true},
		{"no times", "Gouda – Markt", Entry{}, false},
		{"free text", "Elke donderdag markt", Entry{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseLine(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeTime(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "08:30", NormalizeTime("8.30"))
	assert.Equal(t, "13:00", NormalizeTime("13:00 uur"))
	assert.Equal(t, "", NormalizeTime("morgen"))
}

func TestStripHTML(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Gouda – Markt & Kaas 's", StripHTML("  <b>Gouda</b>&nbsp;&#8211;\n Markt &amp; Kaas &#8217;s "))
	assert.Equal(t, "a b", StripHTML("a  b"))
}

func TestStripToText(t *testing.T) {
	t.Parallel()

	in := `<style>p{}</style><script>var x;</script><h2>Dinsdag</h2><p>Gouda<br>Markt</p><ul><li>een</li><li>twee</li></ul>`
	assert.Equal(t, "Dinsdag\nGouda\nMarkt\neen\ntwee", StripToText(in))

	assert.Equal(t, "a\n\nb", StripToText("a<br><br><br><br>b"))
}

func TestArticle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `<article class="x">body</article>`, Article(`<nav>menu</nav><article class="x">body</article><footer/>`))
	assert.Equal(t, "<p>no article</p>", Article("<p>no article</p>"))
}
