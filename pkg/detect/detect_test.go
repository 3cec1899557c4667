package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/overhead/pkg/adsb"
	"github.com/unklstewy/overhead/pkg/cache"
	"github.com/unklstewy/overhead/pkg/coordinates"
)

// San Francisco, roughly
var home = coordinates.Geographic{Latitude: 37.7749, Longitude: -122.4194}

// offsetNorth returns an aircraft km kilometers due north of home.
func offsetNorth(icao string, km float64) adsb.Aircraft {
	return adsb.Aircraft{
		ICAO:      icao,
		Callsign:  "TEST" + icao,
		Latitude:  home.Latitude + km/coordinates.KmPerDegreeLatitude,
		Longitude: home.Longitude,
		Altitude:  10000,
	}
}

func newDetector(t *testing.T, filter Filter) (*Detector, *cache.Cache) {
	t.Helper()
	c, err := cache.New(context.Background(), cache.NewMemoryStore())
	require.NoError(t, err)
	return New(c, filter, time.Hour, nil), c
}

func ids(sightings []Sighting) []string {
	out := make([]string, 0, len(sightings))
	for _, s := range sightings {
		out = append(out, s.Aircraft.ICAO)
	}
	return out
}

func TestOverhead(t *testing.T) {
	d, _ := newDetector(t, Filter{})

	aircraft := []adsb.Aircraft{
		offsetNorth("far", 30),
		offsetNorth("C", 8),
		offsetNorth("a", 2),
		offsetNorth("", 1),
		offsetNorth("b", 5),
	}

	got := d.Overhead(aircraft, home, 10)

	if diff := cmp.Diff([]string{"a", "b", "c"}, ids(got)); diff != "" {
		t.Errorf("overhead ids mismatch (-want +got):\n%s", diff)
	}
	assert.InDelta(t, 2.0, got[0].DistanceKm, 0.05)
	assert.Equal(t, "N", got[0].Direction)
	assert.InDelta(t, 0.0, got[0].Bearing, 0.01)
	assert.Greater(t, got[0].Elevation, 0.0)
	assert.False(t, got[0].SeenAt.IsZero())
}

func TestOverheadBoundaryInclusive(t *testing.T) {
	d, _ := newDetector(t, Filter{})
	ac := offsetNorth("edge", 10)

	dist := coordinates.DistanceKilometers(home, coordinates.Geographic{Latitude: ac.Latitude, Longitude: ac.Longitude})
	got := d.Overhead([]adsb.Aircraft{ac}, home, dist)
	assert.Len(t, got, 1)
}

func TestOverheadDuplicateKeepsClosest(t *testing.T) {
	d, _ := newDetector(t, Filter{})

	got := d.Overhead([]adsb.Aircraft{offsetNorth("abc", 6), offsetNorth("ABC ", 3)}, home, 10)

	require.Len(t, got, 1)
	assert.InDelta(t, 3.0, got[0].DistanceKm, 0.05)
	assert.Equal(t, "abc", got[0].Aircraft.ICAO)
}

func TestOverheadFilter(t *testing.T) {
	low := offsetNorth("low", 1)
	low.Altitude = 500
	high := offsetNorth("high", 1)
	high.Altitude = 45000
	ground := offsetNorth("gnd", 1)
	ground.OnGround = true
	ground.Altitude = 0
	mid := offsetNorth("mid", 1)

	all := []adsb.Aircraft{low, high, ground, mid}

	t.Run("No bounds", func(t *testing.T) {
		d, _ := newDetector(t, Filter{})
		assert.ElementsMatch(t, []string{"low", "high", "mid"}, ids(d.Overhead(all, home, 5)))
	})

	t.Run("Altitude bounds and ground", func(t *testing.T) {
		d, _ := newDetector(t, Filter{MinAltitudeFt: 1000, MaxAltitudeFt: 40000, IncludeOnGround: true})
		assert.ElementsMatch(t, []string{"gnd", "mid"}, ids(d.Overhead(all, home, 5)))
	})
}

func TestNewSince(t *testing.T) {
	current := []Sighting{
		{Aircraft: adsb.Aircraft{ICAO: "aaa"}},
		{Aircraft: adsb.Aircraft{ICAO: "bbb"}},
		{Aircraft: adsb.Aircraft{ICAO: "ccc"}},
	}

	tests := []struct {
		name      string
		previous  []string
		wantFresh []string
	}{
		{"Nothing seen before", nil, []string{"aaa", "bbb", "ccc"}},
		{"Some seen", []string{"bbb", "zzz"}, []string{"aaa", "ccc"}},
		{"Normalised match", []string{" AAA ", "BBB", "Ccc"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fresh, gotIDs := NewSince(current, tt.previous)
			if len(tt.wantFresh) == 0 {
				assert.Empty(t, fresh)
			} else if diff := cmp.Diff(tt.wantFresh, ids(fresh)); diff != "" {
				t.Errorf("fresh mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, []string{"aaa", "bbb", "ccc"}, gotIDs)
		})
	}
}

func TestDetectAcrossPolls(t *testing.T) {
	ctx := context.Background()
	d, c := newDetector(t, Filter{})

	first, err := d.Detect(ctx, []adsb.Aircraft{offsetNorth("aaa", 1), offsetNorth("bbb", 2)}, home, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa", "bbb"}, ids(first.New))

	second, err := d.Detect(ctx, []adsb.Aircraft{offsetNorth("bbb", 2), offsetNorth("ccc", 3)}, home, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"ccc"}, ids(second.New))
	assert.Equal(t, []string{"bbb", "ccc"}, ids(second.Overhead))

	// aaa left and came back: new again
	third, err := d.Detect(ctx, []adsb.Aircraft{offsetNorth("aaa", 1), offsetNorth("bbb", 2), offsetNorth("ccc", 3)}, home, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa"}, ids(third.New))

	var stored []string
	require.NoError(t, c.Get(ctx, PreviousKey, &stored))
	assert.Equal(t, []string{"aaa", "bbb", "ccc"}, stored)

	require.NoError(t, d.Reset(ctx))
	fourth, err := d.Detect(ctx, []adsb.Aircraft{offsetNorth("aaa", 1)}, home, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa"}, ids(fourth.New))
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string, any) error {
	return errors.New("disk on fire")
}

func (brokenStore) Set(context.Context, string, any, time.Duration) error {
	return errors.New("disk on fire")
}

func TestDetectStoreFailure(t *testing.T) {
	d := New(brokenStore{}, Filter{}, time.Hour, nil)

	res, err := d.Detect(context.Background(), []adsb.Aircraft{offsetNorth("aaa", 1)}, home, 10)
	assert.Error(t, err)
	assert.Equal(t, []string{"aaa"}, ids(res.New), "flights are still reported when the cache fails")
}
