package geocache

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketmap-cli/internal/model"
	"github.com/sells-group/marketmap-cli/internal/resilience"
	"github.com/sells-group/marketmap-cli/internal/store"
	"github.com/sells-group/marketmap-cli/pkg/nominatim"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) Search(ctx context.Context, query string) (*nominatim.Place, error) {
	args := m.Called(ctx, query)
	p, _ := args.Get(0).(*nominatim.Place)
	return p, args.Error(1)
}

func (m *mockClient) Reverse(ctx context.Context, lat, lng float64, zoom int) (*nominatim.Address, error) {
	args := m.Called(ctx, lat, lng, zoom)
	a, _ := args.Get(0).(*nominatim.Address)
	return a, args.Error(1)
}

type cooldownCounter struct{ n int }

func (c *cooldownCounter) pacer() *resilience.Pacer {
	return resilience.NewPacer(0, 5*time.Second, resilience.WithSleep(func(context.Context, time.Duration) error {
		c.n++
		return nil
	}))
}

func TestResolve_CacheRoundTripWithoutSecondCall(t *testing.T) {
	mc := &mockClient{}
	mc.On("Search", mock.Anything, "Markt, Gouda, Netherlands").
		Return(&nominatim.Place{Lat: 52.0116, Lng: 4.7105}, nil).Once()

	st := store.New(store.NewMemory())
	r := NewResolver(st, mc, resilience.NewPacer(0, 0))

	first, err := r.Resolve(context.Background(), "Gouda", "Markt")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := r.Resolve(context.Background(), "Gouda", "Markt")
	require.NoError(t, err)
	assert.Equal(t, *first, *second)

	cached, err := st.Geocode(context.Background(), "Gouda|Markt")
	require.NoError(t, err)
	assert.Equal(t, model.Coordinate{Lat: 52.0116, Lng: 4.7105}, *cached)

	mc.AssertNumberOfCalls(t, "Search", 1)
}

func TestResolve_FallsBackToPlaceQuery(t *testing.T) {
	mc := &mockClient{}
	mc.On("Search", mock.Anything, "Kerkplein, Almere, Netherlands").Return(nil, nil).Once()
	mc.On("Search", mock.Anything, "Almere, Netherlands").
		Return(&nominatim.Place{Lat: 52.37, Lng: 5.21}, nil).Once()

	r := NewResolver(store.New(store.NewMemory()), mc, resilience.NewPacer(0, 0))
	c, err := r.Resolve(context.Background(), "Almere", "Kerkplein")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.InDelta(t, 52.37, c.Lat, 1e-9)
	mc.AssertExpectations(t)
}

func TestResolve_BothMissReturnsNil(t *testing.T) {
	mc := &mockClient{}
	mc.On("Search", mock.Anything, mock.Anything).Return(nil, nil)

	st := store.New(store.NewMemory())
	r := NewResolver(st, mc, resilience.NewPacer(0, 0))
	c, err := r.Resolve(context.Background(), "Nergens", "Plein")
	require.NoError(t, err)
	assert.Nil(t, c)
	mc.AssertNumberOfCalls(t, "Search", 2)

	cached, err := st.Geocode(context.Background(), "Nergens|Plein")
	require.NoError(t, err)
	assert.Nil(t, cached, "misses are not cached")
}

func TestResolve_RateLimitCoolsDownAndContinues(t *testing.T) {
	mc := &mockClient{}
	mc.On("Search", mock.Anything, "Markt, Gouda, Netherlands").
		Return(nil, &nominatim.StatusError{Code: http.StatusTooManyRequests}).Once()
	mc.On("Search", mock.Anything, "Gouda, Netherlands").
		Return(&nominatim.Place{Lat: 52.01, Lng: 4.71}, nil).Once()

	cd := &cooldownCounter{}
	r := NewResolver(store.New(store.NewMemory()), mc, cd.pacer())
	c, err := r.Resolve(context.Background(), "Gouda", "Markt")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, 1, cd.n)
}

func TestResolve_ServerErrorNoCooldown(t *testing.T) {
	mc := &mockClient{}
	mc.On("Search", mock.Anything, mock.Anything).
		Return(nil, &nominatim.StatusError{Code: http.StatusBadGateway})

	cd := &cooldownCounter{}
	r := NewResolver(store.New(store.NewMemory()), mc, cd.pacer())
	c, err := r.Resolve(context.Background(), "Gouda", "Markt")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Equal(t, 0, cd.n)
}

func TestResolve_AgainstHTTPServer(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "nl", r.URL.Query().Get("countrycodes"))
		_, _ = io.WriteString(w, `[{"lat":"52.1","lon":"5.1"}]`)
	}))
	defer srv.Close()

	client := nominatim.NewClient(nominatim.WithBaseURL(srv.URL))
	r := NewResolver(store.New(store.NewMemory()), client, resilience.NewPacer(0, 0))

	for i := 0; i < 3; i++ {
		c, err := r.Resolve(context.Background(), "Utrecht", "Vredenburg")
		require.NoError(t, err)
		assert.Equal(t, model.Coordinate{Lat: 52.1, Lng: 5.1}, *c)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func rowsJSON(t *testing.T, in string) *model.Dataset {
	t.Helper()
	var ds model.Dataset
	require.NoError(t, ds.UnmarshalJSON([]byte(in)))
	return &ds
}

func TestPhase_NoOpWhenEveryGroupHasGeo(t *testing.T) {
	mc := &mockClient{}
	ds := rowsJSON(t, `{"markets":[
		{"city_town":"Gouda","location":"Markt","day":"thursday","_geo":{"lat":52,"lng":4.7}},
		{"city_town":"Gouda","location":"Markt","day":"saturday"}
	]}`)

	sum, err := NewPhase(NewResolver(store.New(store.NewMemory()), mc, resilience.NewPacer(0, 0))).
		Run(context.Background(), ds)
	require.NoError(t, err)
	assert.True(t, sum.NoOp)
	assert.Equal(t, 1, sum.Groups)
	assert.Nil(t, ds.Markets[1].Geo, "no-op leaves rows untouched")
	mc.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestPhase_FillsCorrectsAndSkips(t *testing.T) {
	mc := &mockClient{}
	mc.On("Search", mock.Anything, "Markt, Gouda, Netherlands").
		Return(&nominatim.Place{Lat: 52.0116, Lng: 4.7105}, nil)
	mc.On("Search", mock.Anything, mock.Anything).Return(nil, nil)

	st := store.New(store.NewMemory())
	require.NoError(t, st.PutGeocode(context.Background(), "Delft|Markt", model.Coordinate{Lat: 52.01, Lng: 4.36}))

	ds := rowsJSON(t, `{"markets":[
		{"city_town":"Gouda","location":"Markt","day":"thursday"},
		{"city_town":"Gouda","location":"Markt","day":"saturday","_geo":{"lat":52,"lng":4}},
		{"city_town":"Delft","location":"Markt","day":"thursday","_geo":{"lat":52.01,"lng":4.36}},
		{"city_town":"Ergens","location":"Plein","day":"monday","_geo":{"lat":51.5,"lng":5.5}},
		{"city_town":"Nergens","location":"Plein","day":"monday"}
	]}`)

	sum, err := NewPhase(NewResolver(st, mc, resilience.NewPacer(0, 0))).Run(context.Background(), ds)
	require.NoError(t, err)
	assert.False(t, sum.NoOp)
	assert.Equal(t, &Summary{Groups: 4, Missing: 2, Cached: 1, Corrected: 2, Skipped: 1}, sum)

	gouda := ds.Markets[0]
	require.NotNil(t, gouda.Geo)
	assert.Equal(t, model.GeoSourceNominatim, gouda.GeoFilledFrom)
	assert.Equal(t, *gouda.Geo, *ds.Markets[1].Geo)

	assert.Equal(t, model.GeoSourceNominatim, ds.Markets[2].GeoFilledFrom)
	assert.Equal(t, model.GeoSourcePrefilled, ds.Markets[3].GeoFilledFrom)
	assert.Nil(t, ds.Markets[4].Geo)
}

func TestProvinceFixer_CorrectsAndCaches(t *testing.T) {
	mc := &mockClient{}
	mc.On("Reverse", mock.Anything, 53.2, 5.8, ProvinceZoom).
		Return(&nominatim.Address{State: "Fryslân"}, nil).Once()
	mc.On("Reverse", mock.Anything, 52.0, 4.7, ProvinceZoom).
		Return(&nominatim.Address{State: "Zuid-Holland"}, nil).Once()
	mc.On("Reverse", mock.Anything, 0.0, 0.0, ProvinceZoom).Return(nil, nil).Once()

	st := store.New(store.NewMemory())
	f := NewProvinceFixer(st, mc, resilience.NewPacer(0, 0))

	rows := []*model.Row{
		{CityTown: "Leeuwarden", Province: "Groningen", Geo: &model.Coordinate{Lat: 53.2, Lng: 5.8}},
		{CityTown: "Leeuwarden", Province: "Groningen", Geo: &model.Coordinate{Lat: 53.2, Lng: 5.8}},
		{CityTown: "Gouda", Province: "Zuid-Holland", Geo: &model.Coordinate{Lat: 52.0, Lng: 4.7}},
		{CityTown: "Zee", Province: "?", Geo: &model.Coordinate{}},
		{CityTown: "Nowhere"},
	}
	sum, err := f.Run(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, &ProvinceSummary{Checked: 4, Fixed: 2, Unresolved: 1}, sum)
	assert.Equal(t, "Friesland", rows[0].Province)
	assert.Equal(t, "Friesland", rows[1].Province)
	assert.Equal(t, "?", rows[3].Province)

	p, ok, err := st.Province(context.Background(), "53.2,5.8")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Friesland", p)

	_, ok, err = st.Province(context.Background(), "0,0")
	require.NoError(t, err)
	assert.True(t, ok, "a miss is cached too")

	_, err = f.Run(context.Background(), rows)
	require.NoError(t, err)
	mc.AssertExpectations(t)
}

func TestProvinceFixer_LookupErrorIsUnresolved(t *testing.T) {
	mc := &mockClient{}
	mc.On("Reverse", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &nominatim.StatusError{Code: http.StatusTooManyRequests})

	cd := &cooldownCounter{}
	st := store.New(store.NewMemory())
	f := NewProvinceFixer(st, mc, cd.pacer())

	rows := []*model.Row{{CityTown: "Gouda", Province: "Zuid-Holland", Geo: &model.Coordinate{Lat: 52, Lng: 4.7}}}
	sum, err := f.Run(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Unresolved)
	assert.Equal(t, 1, cd.n)

	_, ok, err := st.Province(context.Background(), "52,4.7")
	require.NoError(t, err)
	assert.False(t, ok, "failed lookups are not cached")
}

func TestProvinceKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "52.0116,4.7105", ProvinceKey(model.Coordinate{Lat: 52.0116, Lng: 4.7105}))
	assert.Equal(t, "52,5", ProvinceKey(model.Coordinate{Lat: 52, Lng: 5}))
}
