// Package fc talks MAVLink to the flight controller over a serial link:
// heartbeat tracking, battery telemetry, and a small set of
// safety-gated high-level commands (RTL, HOLD), mirroring
// scout-fc/src/mav.rs. Built on github.com/bluenviron/gomavlib/v3, the
// same library the fleet-control teacher uses for its own FC link.
package fc

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
)

// BatteryStatus holds the most recently observed battery telemetry.
// Fields are nil until a SYS_STATUS message reports a valid (non-sentinel)
// value, matching the original's Option<T> fields.
type BatteryStatus struct {
	VoltageV    *float32
	CurrentA    *float32
	RemainingPC *uint8
}

// Link is an open MAVLink connection to the flight controller.
type Link struct {
	node *gomavlib.Node

	sysID, compID         uint8
	targetSys, targetComp uint8
	allowRTL, allowHold   bool
	requireHeartbeat      bool

	limiter *CommandRateLimit
	logger  *log.Logger

	mu            sync.RWMutex
	seenHeartbeat bool
	lastHeartbeat time.Time
	lastMsg       string
	battery       BatteryStatus

	seq     uint8
	dev     string
	baud    int
	closeCh chan struct{}
}

// Open starts a MAVLink serial connection to the flight controller on dev
// at baud, identifying ourselves as sysID/compID and addressing commands
// to targetSys/targetComp. allowRTL/allowHold/requireHeartbeat gate
// CmdRTL/CmdHold exactly as the onboard safety policy requires. If logger
// is nil, log.Default() is used.
func Open(dev string, baud int, sysID, compID, targetSys, targetComp uint8, allowRTL, allowHold, requireHeartbeat bool, logger *log.Logger) (*Link, error) {
	if logger == nil {
		logger = log.Default()
	}
	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints: []gomavlib.EndpointConf{
			gomavlib.EndpointSerial{Device: dev, Baud: baud},
		},
		Dialect:        common.Dialect,
		OutVersion:     gomavlib.V2,
		OutSystemID:    sysID,
		OutComponentID: compID,
	})
	if err != nil {
		return nil, fmt.Errorf("fc: open mavlink node on %s@%d: %w", dev, baud, err)
	}

	l := &Link{
		node:             node,
		sysID:            sysID,
		compID:           compID,
		targetSys:        targetSys,
		targetComp:       targetComp,
		allowRTL:         allowRTL,
		allowHold:        allowHold,
		requireHeartbeat: requireHeartbeat,
		limiter:          NewCommandRateLimit(2 * time.Second),
		logger:           logger,
		dev:              dev,
		baud:             baud,
		closeCh:          make(chan struct{}),
	}

	go l.listen()
	return l, nil
}

func (l *Link) listen() {
	for {
		select {
		case evt, ok := <-l.node.Events():
			if !ok {
				return
			}
			frm, ok := evt.(*gomavlib.EventFrame)
			if !ok {
				continue
			}
			l.handle(frm)
		case <-l.closeCh:
			return
		}
	}
}

func (l *Link) handle(frm *gomavlib.EventFrame) {
	switch m := frm.Message().(type) {
	case *common.MessageHeartbeat:
		l.mu.Lock()
		l.seenHeartbeat = true
		l.lastHeartbeat = time.Now()
		l.lastMsg = "HEARTBEAT"
		l.mu.Unlock()

	case *common.MessageSysStatus:
		l.updateBattery(m)
		l.mu.Lock()
		l.lastMsg = "SYS_STATUS"
		l.mu.Unlock()
	}
}

func (l *Link) updateBattery(status *common.MessageSysStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if status.VoltageBattery != 0xFFFF {
		v := float32(status.VoltageBattery) / 1000.0
		l.battery.VoltageV = &v
	}
	if status.CurrentBattery != -1 {
		a := float32(status.CurrentBattery) / 100.0
		l.battery.CurrentA = &a
	}
	if status.BatteryRemaining >= 0 && status.BatteryRemaining <= 100 {
		r := uint8(status.BatteryRemaining)
		l.battery.RemainingPC = &r
	}
}

// BatteryStatus returns the most recently observed battery telemetry.
func (l *Link) BatteryStatus() BatteryStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.battery
}

// SeenHeartbeat reports whether a HEARTBEAT has ever been received.
func (l *Link) SeenHeartbeat() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seenHeartbeat
}

// Status returns a snapshot suitable for `scout fc status`.
func (l *Link) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Status{
		Connected:     l.seenHeartbeat,
		Port:          l.dev,
		Baud:          l.baud,
		LastHeartbeat: l.lastHeartbeat,
		LastMsg:       l.lastMsg,
	}
}

// SendHeartbeat announces ourselves as an onboard controller.
func (l *Link) SendHeartbeat() error {
	return l.node.WriteMessageAll(&common.MessageHeartbeat{
		Type:           common.MAV_TYPE_ONBOARD_CONTROLLER,
		Autopilot:      common.MAV_AUTOPILOT_INVALID,
		BaseMode:       common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED,
		CustomMode:     0,
		SystemStatus:   common.MAV_STATE_ACTIVE,
		MavlinkVersion: 3,
	})
}

// CmdRTL sends MAV_CMD_NAV_RETURN_TO_LAUNCH, subject to allowRTL,
// requireHeartbeat, and the RTL rate limit.
func (l *Link) CmdRTL() error {
	if !l.allowRTL {
		return fmt.Errorf("fc: RTL command disabled by config")
	}
	if l.requireHeartbeat && !l.SeenHeartbeat() {
		return fmt.Errorf("fc: refusing RTL: no heartbeat seen yet")
	}
	if !l.limiter.AllowRTL() {
		l.logger.Printf("fc: RTL rate-limited, skipping")
		return nil // rate-limited, not an error: caller just tried too soon
	}
	return l.node.WriteMessageAll(&common.MessageCommandLong{
		TargetSystem:    l.targetSys,
		TargetComponent: l.targetComp,
		Command:         common.MAV_CMD_NAV_RETURN_TO_LAUNCH,
	})
}

// CmdHold sends MAV_CMD_NAV_LOITER_UNLIM, subject to allowHold,
// requireHeartbeat, and the HOLD rate limit.
func (l *Link) CmdHold() error {
	if !l.allowHold {
		return fmt.Errorf("fc: HOLD command disabled by config")
	}
	if l.requireHeartbeat && !l.SeenHeartbeat() {
		return fmt.Errorf("fc: refusing HOLD: no heartbeat seen yet")
	}
	if !l.limiter.AllowHold() {
		l.logger.Printf("fc: HOLD rate-limited, skipping")
		return nil
	}
	return l.node.WriteMessageAll(&common.MessageCommandLong{
		TargetSystem:    l.targetSys,
		TargetComponent: l.targetComp,
		Command:         common.MAV_CMD_NAV_LOITER_UNLIM,
	})
}

// Close shuts down the underlying MAVLink node.
func (l *Link) Close() error {
	close(l.closeCh)
	l.node.Close()
	return nil
}
