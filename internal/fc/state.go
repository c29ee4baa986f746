package fc

import "time"

// Status is a point-in-time snapshot of the flight-controller link,
// mirroring scout-fc/src/state.rs. Unlike the Rust original (which stores
// an Instant and computes elapsed() lazily), this stores the heartbeat's
// wall-clock timestamp directly since Go has no monotonic-only handle
// equivalent worth separating out here.
type Status struct {
	Connected     bool
	Port          string
	Baud          int
	LastHeartbeat time.Time
	LastMsg       string
}

// HeartbeatAge reports how long it's been since the last heartbeat, or
// false if none has been seen yet.
func (s Status) HeartbeatAge() (time.Duration, bool) {
	if s.LastHeartbeat.IsZero() {
		return 0, false
	}
	return time.Since(s.LastHeartbeat), true
}
