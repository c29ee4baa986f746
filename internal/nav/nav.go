// Package nav implements the mission state machine: corridor transit,
// in-zone operation, and the abort/RTH ladder that reacts to geofence
// breaches and degraded GNSS.
package nav

import (
	"fmt"
	"time"

	"github.com/flightpath-dev/navscout/internal/geo"
)

// Home is the launch point the aircraft returns to.
type Home struct {
	Lat   float64
	Lon   float64
	AltM  float32
}

// RouteCfg describes the transit corridor as a polyline with width.
type RouteCfg struct {
	CorridorWidthM float64
	Waypoints      []geo.Point
}

// ZoneCfg describes the operation-zone polygon.
type ZoneCfg struct {
	ZonePolygon []geo.Point
}

// RthPolicy controls how long a degraded condition is tolerated before
// return-to-home is forced.
type RthPolicy struct {
	GraceLinkLossS uint64
	GnssBadFixS    uint64
}

// MissionState is the aircraft's current high-level mode.
type MissionState int

const (
	Idle MissionState = iota
	TransitToZone
	OperateInZone
	Rth
	Land
	Abort
)

func (s MissionState) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case TransitToZone:
		return "TRANSIT_TO_ZONE"
	case OperateInZone:
		return "OPERATE_IN_ZONE"
	case Rth:
		return "RTH"
	case Land:
		return "LAND"
	case Abort:
		return "ABORT"
	default:
		return "UNKNOWN"
	}
}

// FixQuality summarizes GNSS fix health.
type FixQuality struct {
	Sats     uint8
	HDOP     float32
	FixAgeS  uint64
}

// Fix is a single GNSS sample fed into the engine.
type Fix struct {
	Lat     float64
	Lon     float64
	Quality FixQuality
	Ts      time.Time
}

// NavOutput is the result of one Step call.
type NavOutput struct {
	State   MissionState
	Message string
}

// NavEngine runs the mission state machine described in spec.md §4.2. It is
// not goroutine-safe; the mission loop owns a single instance and calls
// Step serially.
type NavEngine struct {
	home       Home
	route      RouteCfg
	zone       ZoneCfg
	maxRadiusM float64
	policy     RthPolicy

	state        MissionState
	gnssBadSince *time.Time
}

// NewNavEngine validates the geofence configuration (mirroring
// scout-nav/src/doctor.rs::check_geofence) and constructs an engine that
// starts in TransitToZone. Nav has no runtime errors (spec.md §7); every
// precondition is checked here, at construction.
func NewNavEngine(home Home, route RouteCfg, zone ZoneCfg, maxRadiusM float64, policy RthPolicy) (*NavEngine, error) {
	if len(route.Waypoints) < 2 {
		return nil, fmt.Errorf("nav: route.waypoints must have >= 2 points")
	}
	if len(zone.ZonePolygon) < 3 {
		return nil, fmt.Errorf("nav: zone.zone_polygon must have >= 3 points")
	}
	if maxRadiusM < 50.0 {
		return nil, fmt.Errorf("nav: max_radius_m too small")
	}
	if home.Lat < -90 || home.Lat > 90 || home.Lon < -180 || home.Lon > 180 {
		return nil, fmt.Errorf("nav: home coordinates invalid")
	}
	return &NavEngine{
		home:       home,
		route:      route,
		zone:       zone,
		maxRadiusM: maxRadiusM,
		policy:     policy,
		state:      TransitToZone,
	}, nil
}

// State returns the engine's current mission state.
func (e *NavEngine) State() MissionState {
	return e.state
}

// Step advances the state machine with a new GNSS fix. Order of
// precedence, highest first:
//  1. max-radius abort (sticky: once Abort, stays Abort)
//  2. GNSS-bad-since debounce escalating to Rth
//  3. geofence transition table
func (e *NavEngine) Step(fix Fix) NavOutput {
	now := fix.Ts
	q := fix.Quality

	gnssOK := q.Sats >= 6 && q.HDOP <= 5.0 && q.FixAgeS <= 5
	if !gnssOK {
		if e.gnssBadSince == nil {
			t := now
			e.gnssBadSince = &t
		}
	} else {
		e.gnssBadSince = nil
	}

	if e.state == Abort {
		return NavOutput{State: Abort, Message: "ABORT"}
	}

	dHome := geo.HaversineMeters(e.home.Lat, e.home.Lon, fix.Lat, fix.Lon)
	if dHome > e.maxRadiusM {
		e.state = Abort
		return NavOutput{State: Abort, Message: fmt.Sprintf("ABORT: exceeded max_radius_m (%dm)", int64(dHome))}
	}

	if e.gnssBadSince != nil {
		badS := int64(now.Sub(*e.gnssBadSince).Seconds())
		if badS < 0 {
			badS = 0
		}
		if uint64(badS) >= e.policy.GnssBadFixS {
			e.state = Rth
			return NavOutput{State: Rth, Message: fmt.Sprintf(
				"RTH: GNSS bad for %ds (sats=%d, hdop=%.1f, age=%ds)", badS, q.Sats, q.HDOP, q.FixAgeS)}
		}
	}

	inCorridor := geo.PointInCorridor(e.route.Waypoints, e.route.CorridorWidthM, fix.Lat, fix.Lon)
	inZone := geo.PointInPolygon(e.zone.ZonePolygon, fix.Lat, fix.Lon)

	switch e.state {
	case TransitToZone:
		switch {
		case !inCorridor:
			e.state = Rth
		case inZone:
			e.state = OperateInZone
		default:
			e.state = TransitToZone
		}
	case OperateInZone:
		if !inZone {
			e.state = Rth
		}
	case Rth:
		// sticky: no step leaves Rth for the lifetime of this engine
	}

	var msg string
	switch e.state {
	case TransitToZone:
		msg = fmt.Sprintf("TRANSIT: corridor_ok=%v, zone=%v", inCorridor, inZone)
	case OperateInZone:
		msg = "OPERATE: inside operation zone"
	case Rth:
		msg = fmt.Sprintf("RTH: boundary violated (corridor_ok=%v, zone=%v)", inCorridor, inZone)
	case Abort:
		msg = "ABORT"
	case Land:
		msg = "LAND"
	case Idle:
		msg = "IDLE"
	}

	return NavOutput{State: e.state, Message: msg}
}
