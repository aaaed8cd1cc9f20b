package geocache

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketmap-cli/internal/model"
	"github.com/sells-group/marketmap-cli/internal/progress"
	"github.com/sells-group/marketmap-cli/internal/resilience"
	"github.com/sells-group/marketmap-cli/pkg/nominatim"
)

// ProvinceZoom is the reverse geocoding detail level that still carries the
// province as address.state.
const ProvinceZoom = 10

// DefaultProvinceAliases maps Nominatim state names to dataset province
// names.
func DefaultProvinceAliases() map[string]string {
	return map[string]string{"Fryslân": "Friesland"}
}

// ProvinceStore is the province cache persistence.
type ProvinceStore interface {
	Province(ctx context.Context, key string) (string, bool, error)
	PutProvince(ctx context.Context, key, province string) error
}

// ProvinceSummary counts what a province pass did.
type ProvinceSummary struct {
	Checked    int `json:"checked"`
	Fixed      int `json:"fixed"`
	Unresolved int `json:"unresolved"`
}

// ProvinceFixer corrects each row's province from its coordinate.
type ProvinceFixer struct {
	store    ProvinceStore
	client   nominatim.Client
	pacer    *resilience.Pacer
	aliases  map[string]string
	progress progress.Factory
}

// NewProvinceFixer creates a ProvinceFixer with the default aliases.
func NewProvinceFixer(st ProvinceStore, client nominatim.Client, pacer *resilience.Pacer) *ProvinceFixer {
	return &ProvinceFixer{store: st, client: client, pacer: pacer, aliases: DefaultProvinceAliases()}
}

// WithAliases replaces the state name aliases.
func (f *ProvinceFixer) WithAliases(aliases map[string]string) *ProvinceFixer {
	if len(aliases) > 0 {
		f.aliases = aliases
	}
	return f
}

// WithProgress draws a progress bar while fixing.
func (f *ProvinceFixer) WithProgress(p progress.Factory) *ProvinceFixer {
	f.progress = p
	return f
}

// ProvinceKey is the cache key for a coordinate.
func ProvinceKey(c model.Coordinate) string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lng, 'f', -1, 64)
}

// Province returns the province at c. An empty result means Nominatim knows
// no province there; that answer is cached too.
func (f *ProvinceFixer) Province(ctx context.Context, c model.Coordinate) (string, error) {
	key := ProvinceKey(c)
	if p, ok, err := f.store.Province(ctx, key); err != nil {
		return "", eris.Wrap(err, "geocache: read province cache")
	} else if ok {
		return p, nil
	}

	if err := f.pacer.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "geocache: interrupted")
	}
	addr, err := f.client.Reverse(ctx, c.Lat, c.Lng, ProvinceZoom)
	if err != nil {
		var se *nominatim.StatusError
		if errors.As(err, &se) && se.Code == http.StatusTooManyRequests {
			if cerr := f.pacer.Cooldown(ctx); cerr != nil {
				return "", eris.Wrap(cerr, "geocache: interrupted")
			}
		}
		return "", eris.Wrapf(err, "geocache: reverse geocode %s", key)
	}

	var province string
	if addr != nil {
		province = addr.State
		if alias, ok := f.aliases[province]; ok {
			province = alias
		}
	}
	if err := f.store.PutProvince(ctx, key, province); err != nil {
		return "", eris.Wrap(err, "geocache: write province cache")
	}
	return province, nil
}

// Run corrects the province of every row that has a coordinate. Rows are
// updated in place; the caller persists the dataset. A failed lookup leaves
// the row unchanged and counts as unresolved.
func (f *ProvinceFixer) Run(ctx context.Context, rows []*model.Row) (*ProvinceSummary, error) {
	sum := &ProvinceSummary{}
	log := zap.L().With(zap.String("phase", "provinces"))

	bar := progress.Start(f.progress, len(rows), "provinces ")
	defer bar.Finish()

	for _, r := range rows {
		bar.Increment()
		if r.Geo == nil {
			continue
		}
		sum.Checked++

		detected, err := f.Province(ctx, *r.Geo)
		if err != nil {
			if ctx.Err() != nil {
				return sum, eris.Wrap(ctx.Err(), "geocache: interrupted")
			}
			log.Warn("geocache: province lookup failed", zap.String("market", model.Label(r)), zap.Error(err))
			sum.Unresolved++
			continue
		}
		if detected == "" {
			log.Warn("geocache: no province found",
				zap.String("place", r.CityTown),
				zap.Float64("lat", r.Geo.Lat),
				zap.Float64("lng", r.Geo.Lng),
			)
			sum.Unresolved++
			continue
		}
		if r.Province != detected {
			log.Info("geocache: province corrected",
				zap.String("market", model.Label(r)),
				zap.String("from", r.Province),
				zap.String("to", detected),
			)
			r.Province = detected
			sum.Fixed++
		}
	}

	log.Info("geocache: provinces done", zap.Int("fixed", sum.Fixed), zap.Int("unresolved", sum.Unresolved))
	return sum, nil
}
