package fc

import (
	"sync"
	"time"
)

// CommandRateLimit enforces a minimum interval between successive RTL and
// HOLD commands, tracked independently, mirroring scout-fc/src/safety.rs.
type CommandRateLimit struct {
	mu          sync.Mutex
	lastRTL     time.Time
	lastHold    time.Time
	minInterval time.Duration
	now         func() time.Time
}

// NewCommandRateLimit constructs a limiter with the given minimum
// interval between same-command sends.
func NewCommandRateLimit(minInterval time.Duration) *CommandRateLimit {
	return &CommandRateLimit{minInterval: minInterval, now: time.Now}
}

// AllowRTL reports whether an RTL command may be sent now, and if so
// records the attempt.
func (l *CommandRateLimit) AllowRTL() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if !l.lastRTL.IsZero() && now.Sub(l.lastRTL) < l.minInterval {
		return false
	}
	l.lastRTL = now
	return true
}

// AllowHold reports whether a HOLD command may be sent now, and if so
// records the attempt.
func (l *CommandRateLimit) AllowHold() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if !l.lastHold.IsZero() && now.Sub(l.lastHold) < l.minInterval {
		return false
	}
	l.lastHold = now
	return true
}
