// Command scout is NAVscout's onboard entrypoint: config-driven
// doctor/keys/vision/fc/run subcommands, dispatched with a plain switch
// rather than a CLI framework (no complete repo in the reference corpus
// pulls one in for a single-binary tool).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flightpath-dev/navscout/internal/config"
	"github.com/flightpath-dev/navscout/internal/crypto/keys"
	"github.com/flightpath-dev/navscout/internal/fc"
	"github.com/flightpath-dev/navscout/internal/geo"
	"github.com/flightpath-dev/navscout/internal/gnss"
	"github.com/flightpath-dev/navscout/internal/metrics"
	"github.com/flightpath-dev/navscout/internal/mission"
	"github.com/flightpath-dev/navscout/internal/nav"
	"github.com/flightpath-dev/navscout/internal/power"
	"github.com/flightpath-dev/navscout/internal/scoutlog"
	"github.com/flightpath-dev/navscout/internal/thermal"
	"github.com/flightpath-dev/navscout/internal/tracker"
	"github.com/flightpath-dev/navscout/internal/uplink"
	"github.com/flightpath-dev/navscout/internal/vision"
	"github.com/flightpath-dev/navscout/internal/vision/stub"
	"github.com/flightpath-dev/navscout/internal/vision/tflite"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: scout --config FILE <doctor|keys init|keys rotate|vision inspect|fc autodetect|fc status|run>")
	}
	configPath := flag.String("config", "/etc/scout/scout.yaml", "path to the NAVscout YAML config file")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("scout: load config: %v", err)
	}

	var cmdErr error
	switch args[0] {
	case "doctor":
		cmdErr = doctor(cfg)
	case "keys":
		cmdErr = keysCmd(cfg, args[1:])
	case "vision":
		cmdErr = visionCmd(cfg, args[1:])
	case "fc":
		cmdErr = fcCmd(cfg, args[1:])
	case "run":
		cmdErr = run(cfg)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if cmdErr != nil {
		log.Fatalf("scout: %v", cmdErr)
	}
}

// doctor validates the configuration the way the mission loop will use
// it, without opening any hardware link.
func doctor(cfg *config.Config) error {
	log.Println("doctor: starting")

	kcfg := keys.Config{KeyPath: cfg.Crypto.KeyPath, Passphrase: cfg.Crypto.Passphrase}
	if err := keys.CheckKeys(kcfg); err != nil {
		log.Printf("doctor: keys missing or weak perms: %v", err)
	}

	if _, err := buildNavEngine(cfg); err != nil {
		return fmt.Errorf("geofence: %w", err)
	}

	if cfg.Uplink.Enable && cfg.Uplink.SpoolMaxMB < 8 {
		return fmt.Errorf("uplink.spool_max_mb must be >= 8")
	}

	if cfg.Fc.Enable && !cfg.Fc.Autodetect {
		if cfg.Fc.SerialDev == "" {
			return fmt.Errorf("fc.serial_dev missing")
		}
		if cfg.Fc.Baud <= 0 {
			return fmt.Errorf("fc.baud invalid")
		}
	}
	if cfg.Fc.Enable && cfg.Fc.Autodetect {
		log.Println("doctor: fc autodetect enabled (OK)")
	}

	log.Println("doctor: OK")
	return nil
}

func keysCmd(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: scout keys <init|rotate>")
	}
	kcfg := keys.Config{KeyPath: cfg.Crypto.KeyPath, Passphrase: cfg.Crypto.Passphrase}
	switch args[0] {
	case "init":
		if err := keys.Init(kcfg); err != nil {
			return err
		}
		log.Println("keys: initialized")
	case "rotate":
		if err := keys.Rotate(kcfg); err != nil {
			return err
		}
		log.Println("keys: rotated")
	default:
		return fmt.Errorf("usage: scout keys <init|rotate>")
	}
	return nil
}

func visionCmd(cfg *config.Config, args []string) error {
	if len(args) == 0 || args[0] != "inspect" {
		return fmt.Errorf("usage: scout vision inspect")
	}
	det, err := initDetector(cfg)
	if err != nil {
		return err
	}
	if det == nil {
		return fmt.Errorf("vision backend not enabled in config")
	}
	defer det.Close()

	summary, err := det.Inspect()
	if err != nil {
		return err
	}
	fmt.Print(summary)
	return nil
}

func fcCmd(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: scout fc <autodetect|status>")
	}
	switch args[0] {
	case "autodetect":
		if !cfg.Fc.Enable {
			return fmt.Errorf("fc.enable=false")
		}
		res := runFcAutodetect(cfg.Fc, scoutlog.New("scout"))
		if res.Chosen != nil {
			fmt.Printf("CHOSEN: %s @ %d\n", res.Chosen.Dev, res.Chosen.Baud)
		} else {
			fmt.Println("CHOSEN: none")
		}
		for _, p := range res.Probes {
			fmt.Printf("probe dev=%s baud=%d hb=%v %dms note=%s\n", p.Dev, p.Baud, p.HBSeen, p.ElapsedMs, p.Note)
		}
		return nil
	case "status":
		return fmt.Errorf("fc status requires a running 'scout run' process (no shared status store in this standalone invocation)")
	default:
		return fmt.Errorf("usage: scout fc <autodetect|status>")
	}
}

// run wires every collaborator together and drives the mission loop until
// an interrupt or terminate signal arrives.
func run(cfg *config.Config) error {
	log.Println("run: starting")
	logger := scoutlog.New("scout")

	dk, err := keys.Load(keys.Config{KeyPath: cfg.Crypto.KeyPath, Passphrase: cfg.Crypto.Passphrase})
	if err != nil {
		return fmt.Errorf("load keys: %w", err)
	}

	var src *gnss.Source
	switch cfg.Gnss.Source {
	case "nmea-serial":
		src, err = gnss.Serial(cfg.Gnss.NMEADevice)
	case "nmea-file":
		src, err = gnss.File(cfg.Gnss.NMEAFile)
	default:
		err = fmt.Errorf("unknown gnss.source: %s", cfg.Gnss.Source)
	}
	if err != nil {
		return fmt.Errorf("gnss: %w", err)
	}
	defer src.Close()

	navEngine, err := buildNavEngine(cfg)
	if err != nil {
		return fmt.Errorf("nav: %w", err)
	}

	var up *uplink.Uplink
	if cfg.Uplink.Enable {
		up, err = uplink.New(uplink.Config{
			Endpoint: cfg.Uplink.Endpoint, PinnedSPKISHA256: cfg.Uplink.PinnedSPKISHA256,
			SpoolDir: cfg.Uplink.SpoolDir, SpoolMaxMB: cfg.Uplink.SpoolMaxMB,
		}, dk, logger)
		if err != nil {
			return fmt.Errorf("uplink: %w", err)
		}
	}

	var fcLink *fc.Link
	if cfg.Fc.Enable {
		dev, baud, err := resolveFcPort(cfg.Fc, logger)
		if err != nil {
			return fmt.Errorf("fc: %w", err)
		}
		fcLink, err = fc.Open(dev, baud,
			cfg.Fc.SysID, cfg.Fc.CompID, cfg.Fc.TargetSys, cfg.Fc.TargetComp,
			cfg.Fc.AllowRTL, cfg.Fc.AllowHold, cfg.Fc.RequireHeartbeat, logger)
		if err != nil {
			return fmt.Errorf("fc open: %w", err)
		}
		defer fcLink.Close()
		go sendHeartbeats(fcLink, cfg.Fc.SendHeartbeatHz)
	}

	det, err := initDetector(cfg)
	if err != nil {
		return fmt.Errorf("vision: %w", err)
	}
	if det != nil {
		defer det.Close()
	}

	var trk *tracker.Tracker
	if cfg.Tracking.Enable && det != nil {
		trk = tracker.New(tracker.TrackingConfig{
			Enable: cfg.Tracking.Enable, MaxAgeFrames: cfg.Tracking.MaxAgeFrames,
			MinHits: cfg.Tracking.MinHits, IOUMatchThreshold: cfg.Tracking.IOUMatchThreshold,
			MaxTracks: cfg.Tracking.MaxTracks, TargetClass: cfg.Tracking.TargetClass,
			LockMinConf: cfg.Tracking.LockMinConf,
		}, cfg.Vision.ClassNames)
	}

	pw := power.New(power.Config{
		Mode: cfg.Power.Mode, ScanInferEveryN: cfg.Power.ScanInferEveryN,
		TrackInferEveryN: cfg.Power.TrackInferEveryN, BurstSeconds: cfg.Power.BurstSeconds,
		BurstInferEveryN: cfg.Power.BurstInferEveryN, IdleToScanSeconds: cfg.Power.IdleToScanSeconds,
	})

	therm := thermal.DefaultMonitor()

	var met *metrics.Metrics
	if cfg.Metrics.Enable {
		met = metrics.New()
		srv, err := metrics.Serve(cfg.Metrics.ListenAddr, met)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	loop := mission.New(mission.Deps{
		Cfg: cfg, GNSS: src, Nav: navEngine, Uplink: up,
		Detector: det, Tracker: trk, Power: pw, Thermal: therm,
		FC: fcLink, Metrics: met, Logger: logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("run: shutting down")
		cancel()
	}()

	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mission loop: %w", err)
	}
	return nil
}

func sendHeartbeats(link *fc.Link, hz float32) {
	if hz <= 0 {
		hz = 1.0
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / float64(hz)))
	defer ticker.Stop()
	for range ticker.C {
		if err := link.SendHeartbeat(); err != nil {
			log.Printf("fc: send_heartbeat failed: %v", err)
		}
	}
}

func buildNavEngine(cfg *config.Config) (*nav.NavEngine, error) {
	waypoints := make([]geo.Point, len(cfg.Nav.Route.Waypoints))
	for i, p := range cfg.Nav.Route.Waypoints {
		waypoints[i] = geo.Point{Lat: p.Lat, Lon: p.Lon}
	}
	polygon := make([]geo.Point, len(cfg.Nav.Zone.ZonePolygon))
	for i, p := range cfg.Nav.Zone.ZonePolygon {
		polygon[i] = geo.Point{Lat: p.Lat, Lon: p.Lon}
	}
	return nav.NewNavEngine(
		nav.Home{Lat: cfg.Nav.Home.Lat, Lon: cfg.Nav.Home.Lon, AltM: cfg.Nav.CruiseAltM},
		nav.RouteCfg{CorridorWidthM: cfg.Nav.Route.CorridorWidthM, Waypoints: waypoints},
		nav.ZoneCfg{ZonePolygon: polygon},
		cfg.Nav.MaxRadiusM,
		nav.RthPolicy{GraceLinkLossS: cfg.Rth.GraceLinkLossS, GnssBadFixS: cfg.Rth.GnssBadFixS},
	)
}

func initDetector(cfg *config.Config) (vision.Detector, error) {
	if !cfg.Vision.Enable {
		return nil, nil
	}
	vc := vision.Config{
		Enable: cfg.Vision.Enable, Backend: cfg.Vision.Backend, UseCoral: cfg.Vision.UseCoral,
		ModelPath: cfg.Vision.ModelPath, ModelPathEdgeTPU: cfg.Vision.ModelPathEdgeTPU,
		ImgW: cfg.Vision.ImgW, ImgH: cfg.Vision.ImgH, NumClasses: cfg.Vision.NumClasses,
		ClassNames: cfg.Vision.ClassNames, ConfThreshold: cfg.Vision.ConfThreshold,
		NMSIoUThreshold: cfg.Vision.NMSIoUThreshold, MaxDetections: cfg.Vision.MaxDetections,
		OutputLayout: cfg.Vision.OutputLayout, ROIEnable: cfg.Vision.ROIEnable,
		ROIMargin: cfg.Vision.ROIMargin, ROIMinSize: cfg.Vision.ROIMinSize,
	}
	switch cfg.Vision.Backend {
	case "tflite":
		return tflite.New(vc)
	case "stub":
		return stub.New(nil), nil
	default:
		return nil, fmt.Errorf("unknown vision.backend: %s", cfg.Vision.Backend)
	}
}

func runFcAutodetect(fcCfg config.FcConfig, logger *log.Logger) fc.AutodetectResult {
	devs := fcCfg.CandidateDevs
	if len(devs) == 0 {
		devs = fc.DefaultCandidateDevs()
	}
	bauds := fcCfg.CandidateBauds
	if len(bauds) == 0 {
		bauds = fc.DefaultCandidateBauds()
	}
	timeoutMs := fcCfg.HeartbeatTimeoutMs
	if timeoutMs == 0 {
		timeoutMs = 1500
	}
	return fc.AutodetectFC(devs, bauds, time.Duration(timeoutMs)*time.Millisecond,
		fcCfg.SysID, fcCfg.CompID, fcCfg.TargetSys, fcCfg.TargetComp,
		fcCfg.AllowRTL, fcCfg.AllowHold, fcCfg.RequireHeartbeat, logger)
}

func resolveFcPort(fcCfg config.FcConfig, logger *log.Logger) (string, int, error) {
	if fcCfg.Autodetect {
		res := runFcAutodetect(fcCfg, logger)
		if res.Chosen != nil {
			return res.Chosen.Dev, res.Chosen.Baud, nil
		}
		return "", 0, fmt.Errorf("fc autodetect failed: no heartbeat found")
	}
	if fcCfg.SerialDev == "" {
		return "", 0, fmt.Errorf("fc.serial_dev missing (autodetect=false)")
	}
	if fcCfg.Baud <= 0 {
		return "", 0, fmt.Errorf("fc.baud missing (autodetect=false)")
	}
	return fcCfg.SerialDev, fcCfg.Baud, nil
}
