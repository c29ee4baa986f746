package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsShortWaypointList(t *testing.T) {
	cfg := Default()
	cfg.Nav.Route.Waypoints = []Point{{Lat: 1, Lon: 1}}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsSmallPolygon(t *testing.T) {
	cfg := Default()
	cfg.Nav.Zone.ZonePolygon = []Point{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}}
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresUplinkEndpointWhenEnabled(t *testing.T) {
	cfg := Default()
	cfg.Uplink.Endpoint = ""
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownActionOnTamper(t *testing.T) {
	cfg := Default()
	cfg.Rth.ActionOnTamper = "explode"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownActionOnWeather(t *testing.T) {
	cfg := Default()
	cfg.Rth.ActionOnWeather = "explode"
	require.Error(t, cfg.Validate())
}

func TestLoadParsesYAMLOverridesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scout.yaml")
	yamlContent := `
nav:
  home: { lat: 1.5, lon: 2.5 }
  max_radius_m: 1000
  route:
    corridor_width_m: 40
    waypoints: [ { lat: 1.5, lon: 2.5 }, { lat: 1.6, lon: 2.5 } ]
  zone:
    zone_polygon: [ { lat: 1.5, lon: 2.5 }, { lat: 1.6, lon: 2.5 }, { lat: 1.6, lon: 2.6 } ]
uplink:
  enable: true
  endpoint: "tls://custom.example:9000"
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 1.5, cfg.Nav.Home.Lat)
	require.Equal(t, "tls://custom.example:9000", cfg.Uplink.Endpoint)
	// Fields not present in the override YAML keep their defaults.
	require.Equal(t, "tflite", cfg.Vision.Backend)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
