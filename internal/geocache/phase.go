package geocache

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/marketmap-cli/internal/model"
	"github.com/sells-group/marketmap-cli/internal/progress"
)

// Summary counts what a geocode phase did.
type Summary struct {
	Groups    int  `json:"groups"`
	Missing   int  `json:"missing"`
	Cached    int  `json:"cached"`
	Corrected int  `json:"corrected"`
	Skipped   int  `json:"skipped"`
	NoOp      bool `json:"noop"`
}

// Phase fills and corrects row coordinates group by group.
type Phase struct {
	resolver *Resolver
	progress progress.Factory
}

// NewPhase creates a geocode phase.
func NewPhase(r *Resolver) *Phase {
	return &Phase{resolver: r}
}

// WithProgress draws a progress bar while resolving.
func (p *Phase) WithProgress(f progress.Factory) *Phase {
	p.progress = f
	return p
}

// Run resolves every location group of ds and updates its rows in place.
// When every group already has a coordinate nothing is looked up and ds is
// left untouched. The caller persists ds.
func (p *Phase) Run(ctx context.Context, ds *model.Dataset) (*Summary, error) {
	groups := model.GroupLocations(ds.Markets)
	sum := &Summary{Groups: len(groups)}
	log := zap.L().With(zap.String("phase", "geocode"))

	for _, g := range groups {
		if g.First().GeoState() != model.GeoPresent {
			sum.Missing++
		}
	}
	if sum.Missing == 0 {
		log.Info("geocache: every group has a coordinate, skipping")
		sum.NoOp = true
		return sum, nil
	}
	log.Info("geocache: geocoding", zap.Int("groups", len(groups)), zap.Int("missing", sum.Missing))

	bar := progress.Start(p.progress, len(groups), "geocode ")
	defer bar.Finish()

	for _, g := range groups {
		bar.Increment()
		first := g.First()

		wasCached, err := p.resolver.Cached(ctx, first.CityTown, first.Location)
		if err != nil {
			return sum, err
		}
		found, err := p.resolver.Resolve(ctx, first.CityTown, first.Location)
		if err != nil {
			return sum, err
		}

		geo, source := found, model.GeoSourceNominatim
		if geo == nil {
			geo, source = first.Geo, model.GeoSourcePrefilled
		}
		if geo == nil {
			sum.Skipped++
			continue
		}
		if wasCached {
			sum.Cached++
		}

		for _, r := range g.Rows {
			if r.Geo == nil || !r.Geo.Equal(*geo) {
				sum.Corrected++
			}
			c := *geo
			r.Geo = &c
			r.GeoFilledFrom = source
		}
	}

	log.Info("geocache: done",
		zap.Int("groups", sum.Groups),
		zap.Int("cached", sum.Cached),
		zap.Int("corrected", sum.Corrected),
		zap.Int("skipped", sum.Skipped),
	)
	return sum, nil
}
