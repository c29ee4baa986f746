// Package power implements the inference duty-cycle controller: Scan,
// Track, and Burst modes trading inference cadence against power draw.
package power

import "time"

// PowerMode is the current duty-cycle mode.
type PowerMode int

const (
	Scan PowerMode = iota
	Track
	Burst
)

func (m PowerMode) String() string {
	switch m {
	case Scan:
		return "scan"
	case Track:
		return "track"
	case Burst:
		return "burst"
	default:
		return "unknown"
	}
}

// Config controls inference cadence per mode and mode transition timing.
type Config struct {
	Mode               string // "scan" | "track" | "burst"
	ScanInferEveryN    uint32
	TrackInferEveryN   uint32
	BurstSeconds       float32
	BurstInferEveryN   uint32
	IdleToScanSeconds  float32
}

// Ctl is not goroutine-safe; the mission loop owns a single instance.
type Ctl struct {
	cfg           Config
	mode          PowerMode
	frameCounter  uint64
	burstUntil    *time.Time
	lastActivity  time.Time
	now           func() time.Time
}

// New constructs a controller starting in cfg.Mode (defaulting to Scan for
// any unrecognized value).
func New(cfg Config) *Ctl {
	mode := Scan
	switch cfg.Mode {
	case "scan":
		mode = Scan
	case "track":
		mode = Track
	case "burst":
		mode = Burst
	}
	return &Ctl{cfg: cfg, mode: mode, lastActivity: time.Now(), now: time.Now}
}

// OnTargetEvent marks fresh target activity, entering Burst for
// cfg.BurstSeconds.
func (c *Ctl) OnTargetEvent() {
	now := c.now()
	c.lastActivity = now
	until := now.Add(time.Duration(c.cfg.BurstSeconds * float32(time.Second)))
	c.burstUntil = &until
	c.mode = Burst
}

// OnLockState reflects whether the tracker currently holds a lock. A lock
// bumps Scan up to Track (unless already in the higher-priority Burst).
func (c *Ctl) OnLockState(hasLock bool) {
	if hasLock {
		c.lastActivity = c.now()
		if c.mode != Burst {
			c.mode = Track
		}
	}
}

// TickShouldInfer advances the frame counter and reports whether this tick
// should run inference, based on the current mode's cadence divisor.
func (c *Ctl) TickShouldInfer() bool {
	c.frameCounter++
	c.refreshMode()
	var n uint32
	switch c.mode {
	case Scan:
		n = c.cfg.ScanInferEveryN
	case Track:
		n = c.cfg.TrackInferEveryN
	case Burst:
		n = c.cfg.BurstInferEveryN
	}
	if n < 1 {
		n = 1
	}
	return c.frameCounter%uint64(n) == 0
}

// CurrentMode returns the controller's current mode.
func (c *Ctl) CurrentMode() PowerMode {
	return c.mode
}

func (c *Ctl) refreshMode() {
	now := c.now()

	if c.burstUntil != nil {
		if !now.Before(*c.burstUntil) {
			c.burstUntil = nil
			c.mode = Track
			return
		} else {
			c.mode = Burst
			return
		}
	}

	idle := now.Sub(c.lastActivity).Seconds()
	if idle >= float64(c.cfg.IdleToScanSeconds) {
		c.mode = Scan
	}
}
