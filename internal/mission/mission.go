// Package mission implements the single-threaded cooperative mission loop
// that wires nav, GNSS, vision, tracking, power, the FC link, thermal
// monitoring, and the uplink together, mirroring scout-cli's run().
package mission

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/flightpath-dev/navscout/internal/camera"
	"github.com/flightpath-dev/navscout/internal/config"
	"github.com/flightpath-dev/navscout/internal/fc"
	"github.com/flightpath-dev/navscout/internal/gnss"
	"github.com/flightpath-dev/navscout/internal/metrics"
	"github.com/flightpath-dev/navscout/internal/nav"
	"github.com/flightpath-dev/navscout/internal/power"
	"github.com/flightpath-dev/navscout/internal/telemetry"
	"github.com/flightpath-dev/navscout/internal/thermal"
	"github.com/flightpath-dev/navscout/internal/tracker"
	"github.com/flightpath-dev/navscout/internal/uplink"
	"github.com/flightpath-dev/navscout/internal/vision"
)

// missionStates lists every nav.MissionState name, in the order
// metrics.SetMissionState expects for its zero-all-then-set-one pass.
var missionStates = []string{"IDLE", "TRANSIT_TO_ZONE", "OPERATE_IN_ZONE", "RTH", "LAND", "ABORT"}
var powerModes = []string{"scan", "track", "burst"}

// tickPause is the per-iteration pacing sleep, matching the original's
// tokio::time::sleep(100ms) at the bottom of run().
const tickPause = 100 * time.Millisecond

// Deps bundles every collaborator the mission loop drives. Fields left nil
// disable the corresponding behavior (vision/tracking/uplink/fc/metrics are
// all optional per config, mirroring the Option<T> fields in the original's
// Config).
type Deps struct {
	Cfg      *config.Config
	GNSS     *gnss.Source
	Nav      *nav.NavEngine
	Uplink   *uplink.Uplink
	Detector vision.Detector
	Tracker  *tracker.Tracker
	Power    *power.Ctl
	Thermal  *thermal.Monitor
	FC       *fc.Link
	Metrics  *metrics.Metrics
	Logger   *log.Logger
}

// Loop owns all per-tick state; it is not goroutine-safe.
type Loop struct {
	deps Deps
	log  *log.Logger

	lastState           nav.MissionState
	lastLockROI         *vision.ROI
	lastConsecutiveFail uint32
}

// New constructs a Loop. If deps.Logger is nil, log.Default() is used,
// matching the uplink package's convention.
func New(deps Deps) *Loop {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Loop{deps: deps, log: logger, lastState: nav.Idle}
}

// Run drives the mission loop until ctx is cancelled or the GNSS source's
// NextFix returns an error (a file source waits at end of file instead).
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := l.tick(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(tickPause):
		}
	}
}

func (l *Loop) tick(ctx context.Context) error {
	fix, err := l.deps.GNSS.NextFix()
	if err != nil {
		return fmt.Errorf("mission: gnss: %w", err)
	}

	navFix := nav.Fix{
		Lat: fix.Lat, Lon: fix.Lon, Ts: fix.Ts,
		Quality: nav.FixQuality{Sats: fix.Quality.Sats, HDOP: fix.Quality.HDOP, FixAgeS: fix.Quality.FixAgeS},
	}
	out := l.deps.Nav.Step(navFix)

	var cpuTempC *float32
	if l.deps.Thermal != nil {
		if st, err := l.deps.Thermal.Check(); err == nil {
			t := st.TempC
			cpuTempC = &t
		}
	}
	var battPct *uint8
	if l.deps.FC != nil {
		if bs := l.deps.FC.BatteryStatus(); bs.RemainingPC != nil {
			battPct = bs.RemainingPC
		}
	}

	if forced, reason := l.checkForcedRTH(cpuTempC, battPct); forced && out.State != nav.Abort {
		out.State = nav.Rth
		out.Message = reason
	}

	if out.State == nav.Rth && l.lastState != nav.Rth {
		l.issueRTL()
		if l.deps.Metrics != nil {
			l.deps.Metrics.RthEventsTotal.WithLabelValues(rthReason(out.Message)).Inc()
		}
	}
	l.lastState = out.State

	visionMsg := l.stepVision(ctx)

	ev := l.buildEvent(fix, out, visionMsg, cpuTempC, battPct)

	if l.deps.Uplink != nil {
		if err := l.deps.Uplink.SendEvent(ev); err != nil {
			l.log.Printf("mission: uplink send_event failed: %v", err)
		}
		if err := l.deps.Uplink.FlushSpool(); err != nil {
			l.log.Printf("mission: uplink flush_spool failed: %v", err)
		}
	}

	l.updateMetrics(out.State, fix, cpuTempC, battPct)
	return nil
}

// checkForcedRTH implements the thermal/battery RTH supplement (SPEC_FULL.md
// §4.9): CPU temperature at or above rth.thermal_soft_c, or FC battery
// percentage below rth.battery_low_pct, forces Rth the same way a stale
// GNSS fix does.
func (l *Loop) checkForcedRTH(cpuTempC *float32, battPct *uint8) (bool, string) {
	if cpuTempC != nil && *cpuTempC >= l.deps.Cfg.Rth.ThermalSoftC {
		return true, fmt.Sprintf("RTH: CPU temperature %.1fC at or above thermal_soft_c", *cpuTempC)
	}
	if battPct != nil && *battPct < l.deps.Cfg.Rth.BatteryLowPct {
		return true, fmt.Sprintf("RTH: battery %d%% below battery_low_pct", *battPct)
	}
	return false, ""
}

// issueRTL sends RTL over the shared FC link constructed once in cmd/scout's
// run() and passed in through Deps.FC.
func (l *Loop) issueRTL() {
	if l.deps.FC == nil || !l.deps.Cfg.Fc.AllowRTL {
		return
	}
	if err := l.deps.FC.CmdRTL(); err != nil {
		l.log.Printf("mission: cmd_rtl failed: %v", err)
	}
}

func (l *Loop) stepVision(ctx context.Context) string {
	if l.deps.Detector == nil || l.deps.Power == nil {
		return ""
	}
	doInfer := l.deps.Power.TickShouldInfer()
	if !doInfer {
		return fmt.Sprintf("infer=skip mode=%s", l.deps.Power.CurrentMode())
	}

	camCfg := camera.Config{
		Mode: l.deps.Cfg.Camera.Mode, Device: l.deps.Cfg.Camera.Device,
		Width: l.deps.Cfg.Camera.Width, Height: l.deps.Cfg.Camera.Height, FPS: l.deps.Cfg.Camera.FPS,
	}
	jpeg, err := camera.CaptureJPEG(ctx, camCfg)
	if err != nil {
		l.log.Printf("mission: camera capture failed: %v", err)
		return fmt.Sprintf("infer=error mode=%s", l.deps.Power.CurrentMode())
	}

	useROI := l.deps.Power.CurrentMode() != power.Scan && l.lastLockROI != nil
	var dets []vision.Detection
	if useROI {
		dets, err = l.deps.Detector.DetectWithROI(jpeg, l.lastLockROI)
	} else {
		dets, err = l.deps.Detector.Detect(jpeg)
	}
	if err != nil {
		l.log.Printf("mission: detect failed: %v", err)
		return fmt.Sprintf("infer=error mode=%s", l.deps.Power.CurrentMode())
	}

	if l.deps.Metrics != nil {
		l.deps.Metrics.DetectionsTotal.Add(float64(len(dets)))
	}

	if l.deps.Tracker == nil {
		return fmt.Sprintf("DET n=%d mode=%s", len(dets), l.deps.Power.CurrentMode())
	}

	trackerDets := make([]tracker.Detection, len(dets))
	for i, d := range dets {
		trackerDets[i] = tracker.Detection{ClassID: d.ClassID, Conf: d.Conf, Cx: d.Cx, Cy: d.Cy, W: d.W, H: d.H}
	}
	trOut := l.deps.Tracker.Update(trackerDets)
	l.deps.Power.OnLockState(trOut.Locked != nil)
	if l.deps.Metrics != nil {
		l.deps.Metrics.TracksActive.Set(float64(len(trOut.Tracks)))
	}

	roiStatus := "off"
	if useROI {
		roiStatus = "on"
	}
	if trOut.Locked != nil {
		roi := vision.ROI{Cx: trOut.Locked.Cx, Cy: trOut.Locked.Cy, W: trOut.Locked.W, H: trOut.Locked.H}.Clamp01()
		l.lastLockROI = &roi
		l.deps.Power.OnTargetEvent()
		if l.deps.Metrics != nil {
			l.deps.Metrics.TrackLocked.Set(1)
		}
		return fmt.Sprintf("TRACK lock=%d conf=%.2f roi=%s mode=%s", trOut.Locked.ID, trOut.Locked.Conf, roiStatus, l.deps.Power.CurrentMode())
	}
	l.lastLockROI = nil
	if l.deps.Metrics != nil {
		l.deps.Metrics.TrackLocked.Set(0)
	}
	return fmt.Sprintf("TRACK none mode=%s", l.deps.Power.CurrentMode())
}

func (l *Loop) buildEvent(fix gnss.Fix, out nav.NavOutput, visionMsg string, cpuTempC *float32, battPct *uint8) *telemetry.Event {
	kind := telemetry.EventStatus
	switch out.State {
	case nav.Rth:
		kind = telemetry.EventRth
	case nav.Abort:
		kind = telemetry.EventAbort
	}

	ev := &telemetry.Event{
		TsUnixMs: time.Now().UnixMilli(),
		Kind:     kind,
		Lat:      fix.Lat,
		Lon:      fix.Lon,
		Sats:     int32(fix.Quality.Sats),
		HDOP:     fix.Quality.HDOP,
		Msg:      fmt.Sprintf("%s %s", out.Message, visionMsg),
		CPUTempC: cpuTempC,
	}

	if l.deps.FC != nil {
		bs := l.deps.FC.BatteryStatus()
		ev.BatteryVoltage = bs.VoltageV
		ev.BatteryCurrent = bs.CurrentA
		ev.BatteryPercent = battPct
	}
	if l.deps.Uplink != nil {
		h := l.deps.Uplink.LinkHealth()
		ev.LinkRttMs = h.RttMs
		q := h.Quality
		ev.LinkQuality = &q
	}
	return ev
}

func (l *Loop) updateMetrics(state nav.MissionState, fix gnss.Fix, cpuTempC *float32, battPct *uint8) {
	if l.deps.Metrics == nil {
		return
	}
	l.deps.Metrics.SetMissionState(missionStates, state.String())
	if l.deps.Power != nil {
		l.deps.Metrics.SetPowerMode(powerModes, l.deps.Power.CurrentMode().String())
	}
	l.deps.Metrics.GnssSatellites.Set(float64(fix.Quality.Sats))
	l.deps.Metrics.GnssHDOP.Set(float64(fix.Quality.HDOP))
	if cpuTempC != nil {
		l.deps.Metrics.CPUTempC.Set(float64(*cpuTempC))
	}
	if battPct != nil {
		l.deps.Metrics.BatteryPercent.Set(float64(*battPct))
	}
	if l.deps.Uplink != nil {
		h := l.deps.Uplink.LinkHealth()
		l.deps.Metrics.UplinkQuality.Set(float64(h.Quality))
		if h.ConsecutiveFailures > l.lastConsecutiveFail {
			l.deps.Metrics.UplinkFailures.Add(float64(h.ConsecutiveFailures - l.lastConsecutiveFail))
		}
		l.lastConsecutiveFail = h.ConsecutiveFailures
		if depth, err := uplink.CountSpoolFiles(l.deps.Cfg.Uplink.SpoolDir); err == nil {
			l.deps.Metrics.SpoolDepth.Set(float64(depth))
		}
	}
}

func rthReason(message string) string {
	lower := strings.ToLower(message)
	switch {
	case message == "":
		return "unknown"
	case strings.Contains(lower, "gnss"):
		return "gnss"
	case strings.Contains(lower, "thermal") || strings.Contains(lower, "temperature"):
		return "thermal"
	case strings.Contains(lower, "battery"):
		return "battery"
	case strings.Contains(lower, "boundary"):
		return "geofence"
	default:
		return "unknown"
	}
}
