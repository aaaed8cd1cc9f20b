// Package compare reconciles dataset rows with the markets extracted from
// their source pages and reports where they disagree.
package compare

import (
	"fmt"

	"github.com/sells-group/marketmap-cli/internal/extract"
	"github.com/sells-group/marketmap-cli/internal/model"
)

// Scores awarded by Score.
const (
	scoreDay      = 1
	scorePlace    = 2
	scoreLocation = 2
)

// Pair is a row matched to an extracted market.
type Pair struct {
	Row    *model.Row
	Market extract.Market
	Diffs  []string
}

// MatchResult is the outcome of Match.
type MatchResult struct {
	Pairs   []Pair
	Missing []*model.Row
	Extra   []extract.Market
}

// Score rates how well market fits row. Zero means ineligible (different
// weekday).
func Score(row *model.Row, m extract.Market) int {
	if m.Day != row.Day {
		return 0
	}
	score := scoreDay
	if Overlaps(m.Place, row.CityTown) {
		score += scorePlace
	}
	if Overlaps(m.SubLocation, row.Location) {
		score += scoreLocation
	}
	return score
}

// Match pairs rows with markets greedily: each row, in order, takes the
// highest scoring market still unclaimed, the first one found on a tie.
// This is not an optimal assignment; an early row can claim a market a
// later row fits better.
func Match(rows []*model.Row, markets []extract.Market) MatchResult {
	var res MatchResult
	claimed := make([]bool, len(markets))

	for _, row := range rows {
		best, bestScore := -1, 0
		for i, m := range markets {
			if claimed[i] {
				continue
			}
			if s := Score(row, m); s > bestScore {
				best, bestScore = i, s
			}
		}
		if best < 0 {
			res.Missing = append(res.Missing, row)
			continue
		}
		claimed[best] = true
		res.Pairs = append(res.Pairs, Pair{
			Row:    row,
			Market: markets[best],
			Diffs:  Diffs(row, markets[best]),
		})
	}

	for i, m := range markets {
		if !claimed[i] {
			res.Extra = append(res.Extra, m)
		}
	}
	return res
}

// Diffs lists the fields where a matched market disagrees with its row.
// Names use the containment rule of Score, so a longer or shorter spelling
// of the same name is not a difference.
func Diffs(row *model.Row, m extract.Market) []string {
	var diffs []string
	if m.Start != row.TimeFrom {
		diffs = append(diffs, fieldDiff("time_from", m.Start, row.TimeFrom))
	}
	if m.End != row.TimeTo {
		diffs = append(diffs, fieldDiff("time_to", m.End, row.TimeTo))
	}
	if !Overlaps(m.SubLocation, row.Location) {
		diffs = append(diffs, fieldDiff("location", m.SubLocation, row.Location))
	}
	if !Overlaps(m.Place, row.CityTown) {
		diffs = append(diffs, fieldDiff("city", m.Place, row.CityTown))
	}
	return diffs
}

func fieldDiff(field, html, json string) string {
	return fmt.Sprintf(`%s: HTML="%s" vs JSON="%s"`, field, html, json)
}

// MarketLabel renders an extracted market as "city / location (day) from-to".
func MarketLabel(m extract.Market) string {
	return fmt.Sprintf("%s / %s (%s) %s-%s", m.Place, m.SubLocation, m.Day, m.Start, m.End)
}
