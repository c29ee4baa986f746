// Package telemetry defines the wire event shape sent over the uplink,
// mirroring scout-proto/src/telemetry.rs.
package telemetry

// EventKind classifies the mission state a TelemetryEvent was captured in.
type EventKind string

const (
	EventStatus EventKind = "status"
	EventRth    EventKind = "rth"
	EventAbort  EventKind = "abort"
)

// Event is serialized as JSON and sealed under AEAD before being spooled
// and sent, matching the original's serde_json::to_vec(ev) + aead::seal.
type Event struct {
	TsUnixMs int64     `json:"ts_unix_ms"`
	Kind     EventKind `json:"kind"`
	Lat      float64   `json:"lat"`
	Lon      float64   `json:"lon"`
	Sats     int32     `json:"sats"`
	HDOP     float32   `json:"hdop"`
	Msg      string    `json:"msg"`

	BatteryVoltage *float32 `json:"battery_voltage,omitempty"`
	BatteryPercent *uint8   `json:"battery_percent,omitempty"`
	BatteryCurrent *float32 `json:"battery_current,omitempty"`

	CPUTempC *float32 `json:"cpu_temp_c,omitempty"`

	LinkRttMs   *uint32 `json:"link_rtt_ms,omitempty"`
	LinkQuality *uint8  `json:"link_quality,omitempty"`
}
