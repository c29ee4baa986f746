// Package thermal reads onboard CPU temperature from Linux sysfs thermal
// zones and classifies it against warn/critical thresholds, matching
// scout-nav/src/thermal.rs. On non-Linux hosts, or when no sensor path
// exists, ReadCPUTempC returns an error and callers omit thermal fields
// from telemetry (spec.md §7).
package thermal

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

const (
	rpi5ThermalZonePath = "/sys/class/thermal/thermal_zone0/temp"
	hwmonFallbackPath   = "/sys/class/hwmon/hwmon0/temp1_input"
)

// ReadCPUTempC reads the onboard CPU temperature in degrees Celsius.
func ReadCPUTempC() (float32, error) {
	if runtime.GOOS != "linux" {
		return 0, fmt.Errorf("thermal: monitoring only supported on Linux")
	}

	path := rpi5ThermalZonePath
	if _, err := os.Stat(path); err != nil {
		if _, err := os.Stat(hwmonFallbackPath); err == nil {
			path = hwmonFallbackPath
		} else {
			return 0, fmt.Errorf("thermal: no thermal sensor found")
		}
	}
	return readMillidegrees(path)
}

func readMillidegrees(path string) (float32, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("thermal: read sensor %s: %w", path, err)
	}
	millidegrees, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return 0, fmt.Errorf("thermal: parse temperature value: %w", err)
	}
	return float32(millidegrees) / 1000.0, nil
}

// Level classifies a temperature reading.
type Level int

const (
	Normal Level = iota
	Warning
	Critical
)

// Status is the result of one Monitor.Check call.
type Status struct {
	TempC float32
	Level Level
}

// Monitor tracks warn/critical thresholds. Defaults for the Raspberry Pi 5
// are 70C (warning) and 80C (critical; hardware throttling starts at 85C).
type Monitor struct {
	warnTempC     float32
	criticalTempC float32
}

// NewMonitor constructs a Monitor with explicit thresholds.
func NewMonitor(warnTempC, criticalTempC float32) *Monitor {
	return &Monitor{warnTempC: warnTempC, criticalTempC: criticalTempC}
}

// DefaultMonitor returns a Monitor using the Raspberry Pi 5 defaults.
func DefaultMonitor() *Monitor {
	return NewMonitor(70.0, 80.0)
}

// Check reads the current temperature and classifies it.
func (m *Monitor) Check() (Status, error) {
	temp, err := ReadCPUTempC()
	if err != nil {
		return Status{}, err
	}
	level := Normal
	switch {
	case temp >= m.criticalTempC:
		level = Critical
	case temp >= m.warnTempC:
		level = Warning
	}
	return Status{TempC: temp, Level: level}, nil
}
