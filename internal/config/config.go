// Package config defines NAVscout's on-disk YAML configuration schema
// and its defaults/validation, in the style of the teacher's own
// config.go: a typed Config tree plus Default()/Validate() functions.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Point is a single lat/lon pair, used for waypoints and zone vertices.
type Point struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// Config is the full on-disk NAVscout configuration tree.
type Config struct {
	Crypto   CryptoConfig   `yaml:"crypto"`
	Uplink   UplinkConfig   `yaml:"uplink"`
	Gnss     GnssConfig     `yaml:"gnss"`
	Nav      NavConfig      `yaml:"nav"`
	Rth      RthConfig      `yaml:"rth"`
	Vision   VisionConfig   `yaml:"vision"`
	Camera   CameraConfig   `yaml:"camera"`
	Tracking TrackingConfig `yaml:"tracking"`
	Power    PowerConfig    `yaml:"power"`
	Fc       FcConfig       `yaml:"fc"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// CryptoConfig locates the device AEAD key.
type CryptoConfig struct {
	KeyPath    string `yaml:"key_path"`
	Passphrase string `yaml:"passphrase"`
}

// UplinkConfig configures telemetry shipping and the on-disk spool.
type UplinkConfig struct {
	Enable        bool   `yaml:"enable"`
	Endpoint      string `yaml:"endpoint"`
	PinnedSPKISHA256 string `yaml:"pinned_server_spki_sha256"`
	SpoolDir      string `yaml:"spool_dir"`
	SpoolMaxMB    uint64 `yaml:"spool_max_mb"`
}

// GnssConfig selects the position source.
type GnssConfig struct {
	Source     string  `yaml:"source"` // "nmea-serial" | "nmea-file"
	NMEADevice string  `yaml:"nmea_device"`
	NMEAFile   string  `yaml:"nmea_file"`
	MinSats    int     `yaml:"min_sats"`
	MaxHDOP    float64 `yaml:"max_hdop"`
	MaxFixAgeS uint64  `yaml:"max_fix_age_s"`
}

// RouteConfig describes the transit corridor.
type RouteConfig struct {
	CorridorWidthM float64 `yaml:"corridor_width_m"`
	Waypoints      []Point `yaml:"waypoints"`
}

// ZoneConfig describes the operating-area polygon.
type ZoneConfig struct {
	ZonePolygon []Point `yaml:"zone_polygon"`
}

// NavConfig configures the geofence/mission-state engine.
type NavConfig struct {
	Home        Point       `yaml:"home"`
	CruiseAltM  float32     `yaml:"cruise_alt_m"`
	MaxRadiusM  float64     `yaml:"max_radius_m"`
	Route       RouteConfig `yaml:"route"`
	Zone        ZoneConfig  `yaml:"zone"`
}

// RthConfig configures return-to-home triggers.
type RthConfig struct {
	GraceLinkLossS  uint64  `yaml:"grace_link_loss_s"`
	GnssBadFixS     uint64  `yaml:"gnss_bad_fix_s"`
	BatteryLowPct   uint8   `yaml:"battery_low_pct"`
	ThermalSoftC    float32 `yaml:"thermal_soft_c"`
	ActionOnTamper  string  `yaml:"action_on_tamper"`
	ActionOnWeather string  `yaml:"action_on_weather"`
	LandAtHome      bool    `yaml:"land_at_home"`
}

// VisionConfig configures the onboard object detector.
type VisionConfig struct {
	Enable           bool     `yaml:"enable"`
	Backend          string   `yaml:"backend"`
	UseCoral         bool     `yaml:"use_coral"`
	ModelPath        string   `yaml:"model_path"`
	ModelPathEdgeTPU string   `yaml:"model_path_edgetpu"`
	ImgW             uint32   `yaml:"img_w"`
	ImgH             uint32   `yaml:"img_h"`
	NumClasses       int      `yaml:"num_classes"`
	ClassNames       []string `yaml:"class_names"`
	ConfThreshold    float32  `yaml:"conf_threshold"`
	NMSIoUThreshold  float32  `yaml:"nms_iou_threshold"`
	MaxDetections    int      `yaml:"max_detections"`
	OutputLayout     string   `yaml:"output_layout"`
	ROIEnable        bool     `yaml:"roi_enable"`
	ROIMargin        float32  `yaml:"roi_margin"`
	ROIMinSize       float32  `yaml:"roi_min_size"`
}

// CameraConfig configures still-frame capture.
type CameraConfig struct {
	Mode   string `yaml:"mode"`
	Device string `yaml:"device"`
	Width  uint32 `yaml:"width"`
	Height uint32 `yaml:"height"`
	FPS    uint32 `yaml:"fps"`
}

// TrackingConfig configures the multi-object tracker.
type TrackingConfig struct {
	Enable            bool    `yaml:"enable"`
	MaxAgeFrames       uint32  `yaml:"max_age_frames"`
	MinHits            uint32  `yaml:"min_hits"`
	IOUMatchThreshold  float32 `yaml:"iou_match_threshold"`
	MaxTracks          int     `yaml:"max_tracks"`
	TargetClass        string  `yaml:"target_class"`
	LockMinConf        float32 `yaml:"lock_min_conf"`
}

// PowerConfig configures the inference-cadence power controller.
type PowerConfig struct {
	Mode              string  `yaml:"mode"`
	ScanInferEveryN   uint32  `yaml:"scan_infer_every_n"`
	TrackInferEveryN  uint32  `yaml:"track_infer_every_n"`
	BurstSeconds      float32 `yaml:"burst_seconds"`
	BurstInferEveryN  uint32  `yaml:"burst_infer_every_n"`
	IdleToScanSeconds float32 `yaml:"idle_to_scan_seconds"`
}

// FcConfig configures the flight-controller MAVLink link.
type FcConfig struct {
	Enable             bool     `yaml:"enable"`
	Autodetect         bool     `yaml:"autodetect"`
	SerialDev          string   `yaml:"serial_dev"`
	Baud               int      `yaml:"baud"`
	CandidateDevs      []string `yaml:"candidate_devs"`
	CandidateBauds     []int    `yaml:"candidate_bauds"`
	HeartbeatTimeoutMs uint64   `yaml:"heartbeat_timeout_ms"`
	SysID              uint8    `yaml:"sys_id"`
	CompID             uint8    `yaml:"comp_id"`
	TargetSys          uint8    `yaml:"target_sys"`
	TargetComp         uint8    `yaml:"target_comp"`
	AllowRTL           bool     `yaml:"allow_rtl"`
	AllowHold          bool     `yaml:"allow_hold"`
	RequireHeartbeat   bool     `yaml:"require_heartbeat"`
	SendHeartbeatHz    float32  `yaml:"send_heartbeat_hz"`
}

// MetricsConfig configures the optional Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enable     bool   `yaml:"enable"`
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns a Config matching SPEC_FULL.md §5's example.
func Default() *Config {
	return &Config{
		Crypto: CryptoConfig{KeyPath: "/var/lib/scout/device.key"},
		Uplink: UplinkConfig{
			Enable:     true,
			Endpoint:   "tls://ground.example:8443",
			SpoolDir:   "/var/lib/scout/spool",
			SpoolMaxMB: 64,
		},
		Gnss: GnssConfig{
			Source:     "nmea-serial",
			NMEADevice: "/dev/ttyACM0",
			MinSats:    6,
			MaxHDOP:    5.0,
			MaxFixAgeS: 5,
		},
		Nav: NavConfig{
			Home:       Point{Lat: 47.0, Lon: 8.0},
			CruiseAltM: 50,
			MaxRadiusM: 800,
			Route: RouteConfig{
				CorridorWidthM: 60,
				Waypoints:      []Point{{Lat: 47.0, Lon: 8.0}, {Lat: 47.001, Lon: 8.0}},
			},
			Zone: ZoneConfig{
				ZonePolygon: []Point{
					{Lat: 47.0009, Lon: 7.9998},
					{Lat: 47.0012, Lon: 7.9998},
					{Lat: 47.0012, Lon: 8.0002},
				},
			},
		},
		Rth: RthConfig{
			GraceLinkLossS:  10,
			GnssBadFixS:     3,
			BatteryLowPct:   20,
			ThermalSoftC:    80,
			ActionOnTamper:  "rth",
			ActionOnWeather: "rth",
			LandAtHome:      true,
		},
		Vision: VisionConfig{
			Enable:          true,
			Backend:         "tflite",
			ImgW:            300,
			ImgH:            300,
			NumClasses:      80,
			ConfThreshold:   0.4,
			NMSIoUThreshold: 0.5,
			MaxDetections:   30,
			OutputLayout:    "ultralytics",
			ROIEnable:       true,
			ROIMargin:       0.2,
			ROIMinSize:      0.05,
		},
		Camera: CameraConfig{
			Mode:   "libcamera-jpeg",
			Device: "/dev/video0",
			Width:  1280,
			Height: 720,
			FPS:    15,
		},
		Tracking: TrackingConfig{
			Enable:            true,
			MaxAgeFrames:      10,
			MinHits:           3,
			IOUMatchThreshold: 0.3,
			MaxTracks:         64,
			TargetClass:       "person",
			LockMinConf:       0.5,
		},
		Power: PowerConfig{
			Mode:              "scan",
			ScanInferEveryN:   10,
			TrackInferEveryN:  2,
			BurstSeconds:      4,
			BurstInferEveryN:  1,
			IdleToScanSeconds: 5,
		},
		Fc: FcConfig{
			Enable:             true,
			Autodetect:         true,
			HeartbeatTimeoutMs: 1500,
			SysID:              1,
			CompID:             1,
			TargetSys:          1,
			TargetComp:         1,
			AllowRTL:           true,
			AllowHold:          true,
			RequireHeartbeat:   true,
			SendHeartbeatHz:    1.0,
		},
		Metrics: MetricsConfig{Enable: false, ListenAddr: "127.0.0.1:9090"},
	}
}

// Load reads and parses a YAML config file, filling in Default() values
// for anything the file omits, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks invariants Load can't catch via zero-value defaults
// alone (missing required fields, out-of-range values).
func (c *Config) Validate() error {
	switch c.Gnss.Source {
	case "nmea-serial", "nmea-file":
	default:
		return fmt.Errorf("invalid gnss.source: %s", c.Gnss.Source)
	}
	if c.Gnss.Source == "nmea-serial" && c.Gnss.NMEADevice == "" {
		return fmt.Errorf("gnss.nmea_device required when gnss.source=nmea-serial")
	}
	if c.Gnss.Source == "nmea-file" && c.Gnss.NMEAFile == "" {
		return fmt.Errorf("gnss.nmea_file required when gnss.source=nmea-file")
	}

	if len(c.Nav.Route.Waypoints) < 2 {
		return fmt.Errorf("nav.route.waypoints must have at least 2 points")
	}
	if len(c.Nav.Zone.ZonePolygon) < 3 {
		return fmt.Errorf("nav.zone.zone_polygon must have at least 3 points")
	}
	if c.Nav.MaxRadiusM < 50 {
		return fmt.Errorf("nav.max_radius_m must be >= 50")
	}

	if c.Uplink.Enable && c.Uplink.Endpoint == "" {
		return fmt.Errorf("uplink.endpoint required when uplink.enable=true")
	}

	if c.Fc.Enable && !c.Fc.Autodetect && c.Fc.SerialDev == "" {
		return fmt.Errorf("fc.serial_dev required when fc.autodetect=false")
	}

	switch c.Power.Mode {
	case "scan", "track", "burst":
	default:
		return fmt.Errorf("invalid power.mode: %s", c.Power.Mode)
	}

	switch c.Rth.ActionOnTamper {
	case "rth", "hold", "ignore":
	default:
		return fmt.Errorf("invalid rth.action_on_tamper: %s", c.Rth.ActionOnTamper)
	}
	switch c.Rth.ActionOnWeather {
	case "rth", "hold", "ignore":
	default:
		return fmt.Errorf("invalid rth.action_on_weather: %s", c.Rth.ActionOnWeather)
	}

	return nil
}
