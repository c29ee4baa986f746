package mission

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightpath-dev/navscout/internal/config"
	"github.com/flightpath-dev/navscout/internal/geo"
	"github.com/flightpath-dev/navscout/internal/gnss"
	"github.com/flightpath-dev/navscout/internal/metrics"
	"github.com/flightpath-dev/navscout/internal/nav"
	"github.com/flightpath-dev/navscout/internal/power"
	"github.com/flightpath-dev/navscout/internal/vision/stub"
)

// fractionally-close to Wikipedia's canonical NMEA example position
// (48 07.038' N, 011 31.000' E), used throughout the gnss package's own
// tests too.
const nmeaFixture = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47\r\n" +
	"$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A\r\n"

func writeFixFile(t *testing.T) *gnss.Source {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fix.nmea")
	require.NoError(t, os.WriteFile(path, []byte(nmeaFixture), 0o600))
	src, err := gnss.File(path)
	require.NoError(t, err)
	return src
}

func testNavEngine(t *testing.T) *nav.NavEngine {
	t.Helper()
	home := nav.Home{Lat: 48.1173, Lon: 11.5167}
	route := nav.RouteCfg{
		CorridorWidthM: 2000,
		Waypoints:      []geo.Point{{Lat: home.Lat, Lon: home.Lon}, {Lat: home.Lat + 0.01, Lon: home.Lon}},
	}
	zone := nav.ZoneCfg{ZonePolygon: []geo.Point{
		{Lat: home.Lat - 0.05, Lon: home.Lon - 0.05},
		{Lat: home.Lat + 0.05, Lon: home.Lon - 0.05},
		{Lat: home.Lat + 0.05, Lon: home.Lon + 0.05},
		{Lat: home.Lat - 0.05, Lon: home.Lon + 0.05},
	}}
	e, err := nav.NewNavEngine(home, route, zone, 5000, nav.RthPolicy{GraceLinkLossS: 10, GnssBadFixS: 3})
	require.NoError(t, err)
	return e
}

func TestTickAdvancesNavStateAndRecordsMetrics(t *testing.T) {
	src := writeFixFile(t)
	defer src.Close()

	cfg := config.Default()
	cfg.Rth.ThermalSoftC = 999 // disabled: no real thermal sensor in this environment
	cfg.Rth.BatteryLowPct = 0  // disabled: no FC link configured

	m := metrics.New()
	loop := New(Deps{Cfg: cfg, GNSS: src, Nav: testNavEngine(t), Metrics: m})

	require.NoError(t, loop.tick(context.Background()))

	assert.Equal(t, nav.OperateInZone, loop.lastState, "fixture position sits inside the configured zone polygon")

	var sats dto.Metric
	require.NoError(t, m.GnssSatellites.Write(&sats))
	assert.Equal(t, 8.0, sats.GetGauge().GetValue(), "fixture GGA reports 8 satellites")
}

func TestStepVisionSkipsInferenceAccordingToPowerCadence(t *testing.T) {
	pw := power.New(power.Config{
		Mode: "scan", ScanInferEveryN: 10, TrackInferEveryN: 2,
		BurstSeconds: 4, BurstInferEveryN: 1, IdleToScanSeconds: 5,
	})
	loop := New(Deps{Cfg: config.Default(), Power: pw, Detector: stub.New(nil)})

	msg := loop.stepVision(context.Background())
	assert.Contains(t, msg, "infer=skip")
}

func TestStepVisionNoopWithoutDetector(t *testing.T) {
	loop := New(Deps{Cfg: config.Default()})
	assert.Equal(t, "", loop.stepVision(context.Background()))
}

func TestCheckForcedRTHThermal(t *testing.T) {
	cfg := config.Default()
	cfg.Rth.ThermalSoftC = 80
	loop := New(Deps{Cfg: cfg})

	hot := float32(85)
	forced, reason := loop.checkForcedRTH(&hot, nil)
	assert.True(t, forced)
	assert.Contains(t, reason, "CPU temperature")
}

func TestCheckForcedRTHBattery(t *testing.T) {
	cfg := config.Default()
	cfg.Rth.BatteryLowPct = 20
	loop := New(Deps{Cfg: cfg})

	low := uint8(10)
	forced, reason := loop.checkForcedRTH(nil, &low)
	assert.True(t, forced)
	assert.Contains(t, reason, "battery")
}

func TestCheckForcedRTHHealthyReadingsDoNotForce(t *testing.T) {
	cfg := config.Default()
	cfg.Rth.ThermalSoftC = 80
	cfg.Rth.BatteryLowPct = 20
	loop := New(Deps{Cfg: cfg})

	normalTemp := float32(45)
	normalBatt := uint8(90)
	forced, _ := loop.checkForcedRTH(&normalTemp, &normalBatt)
	assert.False(t, forced)
}

func TestRthReasonClassifiesMessage(t *testing.T) {
	cases := map[string]string{
		"RTH: GNSS bad for 5s":                    "gnss",
		"RTH: CPU temperature 85.0C at or above":  "thermal",
		"RTH: battery 10% below battery_low_pct":  "battery",
		"RTH: boundary violated (corridor_ok=false)": "geofence",
		"":                                        "unknown",
		"RTH: something unexpected":               "unknown",
	}
	for msg, want := range cases {
		assert.Equal(t, want, rthReason(msg), "message: %s", msg)
	}
}
