package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/bizdir/internal/config"
	"github.com/xxxsen/bizdir/internal/geo"
	"github.com/xxxsen/bizdir/internal/model"
	appErr "github.com/xxxsen/bizdir/internal/pkg/errors"
)

type fakeGeocoder struct {
	places   map[string]*geo.Place
	reverse  *geo.Place
	fwdCalls int
	revCalls int
}

func (f *fakeGeocoder) Forward(ctx context.Context, address string) (*geo.Place, error) {
	f.fwdCalls++
	if place, ok := f.places[address]; ok {
		return place, nil
	}
	return nil, appErr.ErrNotFound
}

func (f *fakeGeocoder) Reverse(ctx context.Context, lat, lng float64) (*geo.Place, error) {
	f.revCalls++
	if f.reverse == nil {
		return nil, appErr.ErrNotFound
	}
	return f.reverse, nil
}

type fakeIPLocator struct {
	place *geo.IPPlace
	calls int
}

func (f *fakeIPLocator) Locate(ctx context.Context, ip string) (*geo.IPPlace, error) {
	f.calls++
	if f.place == nil {
		return nil, appErr.ErrNotFound
	}
	return f.place, nil
}

// testGeoConfig approximates a South Korea deployment: Seoul and Busan are
// metros, everything else gets the wide radius.
func testGeoConfig() config.GeoConfig {
	return config.GeoConfig{
		Country:        "kr",
		MetroCities:    []string{"Seoul", "Busan"},
		MetroRadiusM:   5000,
		DefaultRadiusM: 15000,
		Bounds: config.Bounds{
			MinLat: 33.0, MaxLat: 39.0,
			MinLng: 124.0, MaxLng: 132.0,
		},
	}
}

func newTestLocationService(geocoder *fakeGeocoder, ip *fakeIPLocator) *LocationService {
	if geocoder == nil {
		geocoder = &fakeGeocoder{}
	}
	if ip == nil {
		ip = &fakeIPLocator{}
	}
	return NewLocationService(geocoder, ip, testGeoConfig())
}

func TestResolveExplicitLocationWins(t *testing.T) {
	geocoder := &fakeGeocoder{places: map[string]*geo.Place{
		"Seoul": {Lat: 37.56, Lng: 126.97, Address: "Seoul, South Korea", City: "Seoul"},
	}}
	ip := &fakeIPLocator{place: &geo.IPPlace{Lat: 35.1, Lng: 129.0, City: "Busan", CountryCode: "KR"}}
	svc := newTestLocationService(geocoder, ip)

	res, err := svc.Resolve(context.Background(), "best pizza in Seoul", nil, model.ClientContext{IP: "1.2.3.4"})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, model.LocationSourceExplicit, res.Source)
	require.Equal(t, "Seoul, South Korea", res.Address)
	require.Equal(t, 5000, res.RadiusM)
	require.Zero(t, ip.calls)
}

func TestResolveCommaSegmentLocation(t *testing.T) {
	geocoder := &fakeGeocoder{places: map[string]*geo.Place{
		"Jeonju": {Lat: 35.82, Lng: 127.15, Address: "Jeonju, South Korea", City: "Jeonju"},
	}}
	svc := newTestLocationService(geocoder, nil)

	res, err := svc.Resolve(context.Background(), "bibimbap, Jeonju", nil, model.ClientContext{})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, model.LocationSourceExplicit, res.Source)
	require.Equal(t, 15000, res.RadiusM) // not a listed metro
}

func TestResolveOutOfBoundsGeocodeFallsThrough(t *testing.T) {
	geocoder := &fakeGeocoder{places: map[string]*geo.Place{
		"Paris": {Lat: 48.85, Lng: 2.35, Address: "Paris, France", City: "Paris"},
	}}
	ip := &fakeIPLocator{place: &geo.IPPlace{Lat: 37.5, Lng: 127.0, City: "Seoul", CountryCode: "KR"}}
	svc := newTestLocationService(geocoder, ip)

	res, err := svc.Resolve(context.Background(), "croissants in Paris", nil, model.ClientContext{IP: "1.2.3.4"})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, model.LocationSourceIP, res.Source)
}

func TestResolveNearMeUsesProfile(t *testing.T) {
	svc := newTestLocationService(nil, nil)
	profile := &model.UserProfile{Location: &model.ProfileLocation{
		Lat: 37.56, Lng: 126.97, Address: "Seoul, Mapo-gu", Mtime: time.Now().Unix(),
	}}

	res, err := svc.Resolve(context.Background(), "coffee near me", profile, model.ClientContext{})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, model.LocationSourceProfile, res.Source)
	require.False(t, res.IsStale)
	require.Equal(t, 5000, res.RadiusM) // address city segment matches a metro
}

func TestResolveNearMeWithoutProfileTerminates(t *testing.T) {
	// No profile means termination, even when geolocation and IP could
	// have produced an anchor.
	ip := &fakeIPLocator{place: &geo.IPPlace{Lat: 37.5, Lng: 127.0, City: "Seoul", CountryCode: "KR"}}
	svc := newTestLocationService(nil, ip)
	client := model.ClientContext{
		Geolocation: &model.Coordinates{Lat: 37.5, Lng: 127.0},
		IP:          "1.2.3.4",
	}

	res, err := svc.Resolve(context.Background(), "coffee near me", nil, client)
	require.NoError(t, err)
	require.Nil(t, res)
	require.Zero(t, ip.calls)
}

func TestResolveStaleProfileIsFlagged(t *testing.T) {
	svc := newTestLocationService(nil, nil)
	svc.now = func() time.Time { return time.Unix(100*24*3600, 0) }
	profile := &model.UserProfile{Location: &model.ProfileLocation{
		Lat: 37.56, Lng: 126.97, Address: "Seoul", Mtime: 10 * 24 * 3600,
	}}

	res, err := svc.Resolve(context.Background(), "coffee nearby", profile, model.ClientContext{})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.True(t, res.IsStale)
}

func TestResolveClientGeolocation(t *testing.T) {
	geocoder := &fakeGeocoder{reverse: &geo.Place{Address: "Busan, Haeundae-gu", City: "Busan"}}
	ip := &fakeIPLocator{place: &geo.IPPlace{Lat: 37.5, Lng: 127.0, City: "Seoul", CountryCode: "KR"}}
	svc := newTestLocationService(geocoder, ip)
	client := model.ClientContext{
		Geolocation: &model.Coordinates{Lat: 35.16, Lng: 129.16},
		IP:          "1.2.3.4",
	}

	res, err := svc.Resolve(context.Background(), "seafood restaurants", nil, client)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, model.LocationSourceGeolocation, res.Source)
	require.Equal(t, "Busan, Haeundae-gu", res.Address)
	require.Equal(t, 5000, res.RadiusM)
	require.Zero(t, ip.calls)
}

func TestResolveGeolocationKeepsCoordsWhenReverseFails(t *testing.T) {
	svc := newTestLocationService(&fakeGeocoder{}, nil)
	client := model.ClientContext{Geolocation: &model.Coordinates{Lat: 35.16, Lng: 129.16}}

	res, err := svc.Resolve(context.Background(), "seafood restaurants", nil, client)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, "Current location", res.Address)
	require.Equal(t, 15000, res.RadiusM)
}

func TestResolveIPRequiresDeploymentCountry(t *testing.T) {
	ip := &fakeIPLocator{place: &geo.IPPlace{Lat: 35.68, Lng: 139.69, City: "Tokyo", CountryCode: "JP"}}
	svc := newTestLocationService(nil, ip)

	res, err := svc.Resolve(context.Background(), "ramen shops", nil, model.ClientContext{IP: "1.2.3.4"})
	require.NoError(t, err)
	require.Nil(t, res)
	require.Equal(t, 1, ip.calls)
}

func TestResolveNothingUsable(t *testing.T) {
	svc := newTestLocationService(nil, nil)
	res, err := svc.Resolve(context.Background(), "good books", nil, model.ClientContext{})
	require.NoError(t, err)
	require.Nil(t, res)
}

func TestExtractLocationPhrase(t *testing.T) {
	svc := newTestLocationService(nil, nil)
	cases := []struct {
		query string
		want  string
	}{
		{"best pizza in Seoul", "Seoul"},
		{"bibimbap, Jeonju", "Jeonju"},
		{"hair salon near Gangnam Station", "Gangnam Station"},
		{"coffee near me", ""},
		{"restaurants around here", ""},
		{"plumbers in town", ""},
		{"good books", ""},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, svc.ExtractLocationPhrase(tc.query), "query=%q", tc.query)
	}
}

func TestHasNearMePhrase(t *testing.T) {
	svc := newTestLocationService(nil, nil)
	require.True(t, svc.HasNearMePhrase("Coffee NEAR ME"))
	require.True(t, svc.HasNearMePhrase("shops in my area"))
	require.False(t, svc.HasNearMePhrase("coffee in Seoul"))
}
