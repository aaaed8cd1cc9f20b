// Package geocache resolves (place, sub-location) keys to coordinates
// through a persistent cache in front of Nominatim.
package geocache

import (
	"context"
	"errors"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketmap-cli/internal/model"
	"github.com/sells-group/marketmap-cli/internal/resilience"
	"github.com/sells-group/marketmap-cli/pkg/nominatim"
)

// DefaultCountry is appended to every search query.
const DefaultCountry = "Netherlands"

// Store is the cache persistence the resolver needs.
type Store interface {
	Geocode(ctx context.Context, key string) (*model.Coordinate, error)
	PutGeocode(ctx context.Context, key string, c model.Coordinate) error
}

// Resolver looks up coordinates, consulting the cache first. It is not safe
// for concurrent use; Nominatim forbids parallel callers anyway.
type Resolver struct {
	store   Store
	client  nominatim.Client
	pacer   *resilience.Pacer
	country string
}

// NewResolver creates a Resolver. Every external call waits on pacer.
func NewResolver(st Store, client nominatim.Client, pacer *resilience.Pacer) *Resolver {
	return &Resolver{store: st, client: client, pacer: pacer, country: DefaultCountry}
}

// WithCountry overrides the country suffix of search queries.
func (r *Resolver) WithCountry(country string) *Resolver {
	if country != "" {
		r.country = country
	}
	return r
}

// CacheKey is the cache key for a location.
func CacheKey(place, sub string) string {
	return model.LocationKey{Place: place, SubLocation: sub}.String()
}

// Queries returns the search queries tried for a location, most specific
// first.
func (r *Resolver) Queries(place, sub string) []string {
	return []string{
		sub + ", " + place + ", " + r.country,
		place + ", " + r.country,
	}
}

// Cached reports whether the location is already in the cache.
func (r *Resolver) Cached(ctx context.Context, place, sub string) (bool, error) {
	c, err := r.store.Geocode(ctx, CacheKey(place, sub))
	if err != nil {
		return false, eris.Wrap(err, "geocache: read cache")
	}
	return c != nil, nil
}

// Resolve returns the coordinate for (place, sub), or nil when neither query
// matched. A hit is persisted before Resolve returns.
func (r *Resolver) Resolve(ctx context.Context, place, sub string) (*model.Coordinate, error) {
	key := CacheKey(place, sub)
	if c, err := r.store.Geocode(ctx, key); err != nil {
		return nil, eris.Wrap(err, "geocache: read cache")
	} else if c != nil {
		return c, nil
	}

	log := zap.L().With(zap.String("phase", "geocode"), zap.String("place", place), zap.String("location", sub))

	for _, q := range r.Queries(place, sub) {
		if err := r.pacer.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "geocache: interrupted")
		}

		p, err := r.client.Search(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "geocache: interrupted")
			}
			log.Warn("geocache: lookup failed", zap.String("query", q), zap.Error(err))
			var se *nominatim.StatusError
			if errors.As(err, &se) && se.Code == http.StatusTooManyRequests {
				if err := r.pacer.Cooldown(ctx); err != nil {
					return nil, eris.Wrap(err, "geocache: interrupted")
				}
			}
			continue
		}
		if p == nil {
			continue
		}

		c := model.Coordinate{Lat: p.Lat, Lng: p.Lng}
		if err := r.store.PutGeocode(ctx, key, c); err != nil {
			return nil, eris.Wrap(err, "geocache: write cache")
		}
		log.Debug("geocache: resolved", zap.String("query", q), zap.Float64("lat", c.Lat), zap.Float64("lng", c.Lng))
		return &c, nil
	}

	log.Warn("geocache: could not geocode")
	return nil, nil
}
