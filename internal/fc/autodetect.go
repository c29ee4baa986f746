package fc

import (
	"log"
	"time"
)

// ProbeResult records one (device, baud) autodetection attempt.
type ProbeResult struct {
	Dev        string
	Baud       int
	HBSeen     bool
	ElapsedMs  uint64
	Note       string
}

// AutodetectResult is the outcome of sweeping every candidate
// device/baud pair.
type AutodetectResult struct {
	Chosen *ChosenPort
	Probes []ProbeResult
}

// ChosenPort names the first device/baud pair that produced a heartbeat.
type ChosenPort struct {
	Dev  string
	Baud int
}

// DefaultCandidateDevs lists the serial device paths autodetect sweeps
// when the operator hasn't configured fc.candidate_devs explicitly.
func DefaultCandidateDevs() []string {
	return []string{
		"/dev/serial0",
		"/dev/ttyAMA0",
		"/dev/ttyS0",
		"/dev/ttyUSB0",
		"/dev/ttyUSB1",
		"/dev/ttyACM0",
		"/dev/ttyACM1",
	}
}

// DefaultCandidateBauds lists the baud rates autodetect sweeps per
// candidate device.
func DefaultCandidateBauds() []int {
	return []int{57600, 115200, 230400, 921600}
}

// AutodetectFC sweeps candidateDevs × candidateBauds in order, opening
// each as a MAVLink link and waiting up to heartbeatTimeout for a
// HEARTBEAT. It stops at the first success.
func AutodetectFC(
	candidateDevs []string,
	candidateBauds []int,
	heartbeatTimeout time.Duration,
	sysID, compID, targetSys, targetComp uint8,
	allowRTL, allowHold, requireHeartbeat bool,
	logger *log.Logger,
) AutodetectResult {
	var probes []ProbeResult

	for _, dev := range candidateDevs {
		for _, baud := range candidateBauds {
			start := time.Now()
			note := ""
			hbSeen := false

			link, err := Open(dev, baud, sysID, compID, targetSys, targetComp, allowRTL, allowHold, requireHeartbeat, logger)
			if err != nil {
				probes = append(probes, ProbeResult{
					Dev: dev, Baud: baud, HBSeen: false,
					ElapsedMs: uint64(time.Since(start).Milliseconds()),
					Note:      "open/connect failed: " + err.Error(),
				})
				continue
			}

			for time.Since(start) < heartbeatTimeout {
				if link.SeenHeartbeat() {
					hbSeen = true
					note = "heartbeat"
					break
				}
				time.Sleep(25 * time.Millisecond)
			}
			elapsed := uint64(time.Since(start).Milliseconds())
			link.Close()

			if hbSeen {
				probes = append(probes, ProbeResult{Dev: dev, Baud: baud, HBSeen: true, ElapsedMs: elapsed, Note: note})
				return AutodetectResult{Chosen: &ChosenPort{Dev: dev, Baud: baud}, Probes: probes}
			}

			probes = append(probes, ProbeResult{Dev: dev, Baud: baud, HBSeen: false, ElapsedMs: elapsed, Note: "no heartbeat"})
		}
	}

	return AutodetectResult{Chosen: nil, Probes: probes}
}
