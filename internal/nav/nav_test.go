package nav

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightpath-dev/navscout/internal/geo"
)

func testEngine(t *testing.T) *NavEngine {
	t.Helper()
	home := Home{Lat: 47.0, Lon: 8.0, AltM: 450}
	route := RouteCfg{
		CorridorWidthM: 60,
		Waypoints: []geo.Point{
			{Lat: 47.0, Lon: 8.0},
			{Lat: 47.002, Lon: 8.0},
		},
	}
	zone := ZoneCfg{ZonePolygon: []geo.Point{
		{Lat: 47.0009, Lon: 7.9998},
		{Lat: 47.0012, Lon: 7.9998},
		{Lat: 47.0012, Lon: 8.0002},
		{Lat: 47.0009, Lon: 8.0002},
	}}
	policy := RthPolicy{GraceLinkLossS: 10, GnssBadFixS: 3}
	e, err := NewNavEngine(home, route, zone, 800, policy)
	require.NoError(t, err)
	return e
}

func goodFix(lat, lon float64, ts time.Time) Fix {
	return Fix{Lat: lat, Lon: lon, Ts: ts, Quality: FixQuality{Sats: 10, HDOP: 1.0, FixAgeS: 1}}
}

func TestNewNavEngineValidatesGeofence(t *testing.T) {
	home := Home{Lat: 47.0, Lon: 8.0}
	_, err := NewNavEngine(home, RouteCfg{Waypoints: []geo.Point{{Lat: 0, Lon: 0}}}, ZoneCfg{ZonePolygon: []geo.Point{{}, {}, {}}}, 800, RthPolicy{})
	assert.Error(t, err)

	_, err = NewNavEngine(home, RouteCfg{Waypoints: []geo.Point{{}, {}}}, ZoneCfg{ZonePolygon: []geo.Point{{}, {}}}, 800, RthPolicy{})
	assert.Error(t, err)

	_, err = NewNavEngine(home, RouteCfg{Waypoints: []geo.Point{{}, {}}}, ZoneCfg{ZonePolygon: []geo.Point{{}, {}, {}}}, 10, RthPolicy{})
	assert.Error(t, err)
}

func TestStepTransitsIntoZone(t *testing.T) {
	e := testEngine(t)
	now := time.Now()
	out := e.Step(goodFix(47.0005, 8.0, now))
	assert.Equal(t, TransitToZone, out.State)

	out = e.Step(goodFix(47.0010, 8.0001, now.Add(time.Second)))
	assert.Equal(t, OperateInZone, out.State)
}

func TestStepAbortIsSticky(t *testing.T) {
	e := testEngine(t)
	now := time.Now()
	out := e.Step(goodFix(48.0, 9.0, now)) // far outside max_radius_m
	require.Equal(t, Abort, out.State)

	// Even a perfectly good, in-zone fix afterward cannot clear Abort.
	out = e.Step(goodFix(47.0010, 8.0001, now.Add(time.Second)))
	assert.Equal(t, Abort, out.State)
}

func TestStepGnssDebounceTriggersRth(t *testing.T) {
	e := testEngine(t)
	now := time.Now()
	badFix := func(ts time.Time) Fix {
		return Fix{Lat: 47.0005, Lon: 8.0, Ts: ts, Quality: FixQuality{Sats: 2, HDOP: 9.9, FixAgeS: 1}}
	}

	out := e.Step(badFix(now))
	assert.Equal(t, TransitToZone, out.State, "first bad fix should not immediately RTH")

	out = e.Step(badFix(now.Add(4 * time.Second)))
	assert.Equal(t, Rth, out.State)
}

func TestStepLeavingZoneTriggersRth(t *testing.T) {
	e := testEngine(t)
	now := time.Now()
	e.Step(goodFix(47.0010, 8.0001, now))
	require.Equal(t, OperateInZone, e.State())

	out := e.Step(goodFix(47.0, 8.0, now.Add(time.Second)))
	assert.Equal(t, Rth, out.State)
}

func TestStepOutsideCorridorTriggersRth(t *testing.T) {
	e := testEngine(t)
	now := time.Now()
	out := e.Step(goodFix(47.0005, 8.01, now))
	assert.Equal(t, Rth, out.State)
}
