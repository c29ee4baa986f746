// Package uplink seals telemetry events, spools them to disk, and sends
// them over a pinned-TLS connection with adaptive backoff, mirroring
// scout-uplink/src/lib.rs.
package uplink

import (
	"crypto/tls"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/flightpath-dev/navscout/internal/crypto/aead"
	"github.com/flightpath-dev/navscout/internal/crypto/keys"
	"github.com/flightpath-dev/navscout/internal/telemetry"
	"github.com/flightpath-dev/navscout/internal/uplink/certpin"
)

const telemetryAAD = "navscout-telemetry-v1"

// Health summarizes recent send performance and drives both the adaptive
// telemetry interval and a visible link-quality metric.
type Health struct {
	RttMs               *uint32
	Quality             uint8 // 0-100
	ConsecutiveFailures uint32
}

// NewHealth returns a Health at the original's default of full quality.
func NewHealth() Health {
	return Health{Quality: 100}
}

// Config configures a new Uplink.
type Config struct {
	Endpoint        string // "tls://host:port"
	PinnedSPKISHA256 string // hex, optional
	SpoolDir        string
	SpoolMaxMB      uint64
}

// Uplink seals and ships telemetry events; it also owns the on-disk spool
// used to survive link outages.
type Uplink struct {
	endpoint   string
	host, port string
	spoolDir   string
	spoolMax   int64
	keys       keys.DeviceKeys
	tlsCfg     *tls.Config
	health     Health
	logger     *log.Logger
}

// New constructs an Uplink, deriving a pinned or standard tls.Config from
// cfg.PinnedSPKISHA256.
func New(cfg Config, dk keys.DeviceKeys, logger *log.Logger) (*Uplink, error) {
	if logger == nil {
		logger = log.Default()
	}
	host, port, err := splitEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	tlsCfg, err := certpin.Config(host, cfg.PinnedSPKISHA256)
	if err != nil {
		return nil, fmt.Errorf("uplink: %w", err)
	}
	if cfg.PinnedSPKISHA256 == "" {
		logger.Println("uplink: certificate pinning NOT enabled (pinned_server_spki_sha256 empty) - vulnerable to MITM on slow links")
	} else {
		logger.Printf("uplink: certificate pinning enabled (SPKI SHA256: %.16s...)", cfg.PinnedSPKISHA256)
	}

	return &Uplink{
		endpoint: cfg.Endpoint,
		host:     host, port: port,
		spoolDir: cfg.SpoolDir,
		spoolMax: int64(cfg.SpoolMaxMB) * 1024 * 1024,
		keys:     dk,
		tlsCfg:   tlsCfg,
		health:   NewHealth(),
		logger:   logger,
	}, nil
}

func splitEndpoint(endpoint string) (host, port string, err error) {
	rest, ok := strings.CutPrefix(endpoint, "tls://")
	if !ok {
		return "", "", fmt.Errorf("uplink: endpoint must start with tls://")
	}
	host, port, err = net.SplitHostPort(rest)
	if err != nil {
		return "", "", fmt.Errorf("uplink: bad endpoint %q: %w", endpoint, err)
	}
	return host, port, nil
}

// LinkHealth returns the current link health snapshot.
func (u *Uplink) LinkHealth() Health {
	return u.health
}

// RecommendedIntervalSecs returns the telemetry send interval the caller
// should use, adaptive on link quality with exponential backoff on
// consecutive failures (capped at 600s).
func (u *Uplink) RecommendedIntervalSecs() uint64 {
	if u.health.ConsecutiveFailures > 0 {
		shift := u.health.ConsecutiveFailures
		if shift > 4 {
			shift = 4
		}
		backoff := uint64(30) << shift
		if backoff > 600 {
			backoff = 600
		}
		return backoff
	}

	switch {
	case u.health.Quality >= 80:
		return 30
	case u.health.Quality >= 50:
		return 60
	case u.health.Quality >= 20:
		return 120
	default:
		return 300
	}
}

// SendEvent seals ev and writes it to the spool directory; the caller is
// expected to follow up with FlushSpool to attempt delivery.
func (u *Uplink) SendEvent(ev *telemetry.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("uplink: marshal event: %w", err)
	}
	blob, err := aead.Seal(u.keys.AEAD, []byte(telemetryAAD), payload)
	if err != nil {
		return fmt.Errorf("uplink: seal event: %w", err)
	}
	return u.spoolWrite(blob)
}

func (u *Uplink) spoolWrite(blob []byte) error {
	if err := os.MkdirAll(u.spoolDir, 0o700); err != nil {
		return fmt.Errorf("uplink: create spool dir: %w", err)
	}
	name := filepath.Join(u.spoolDir, fmt.Sprintf("%d.bin", time.Now().UnixNano()))
	return os.WriteFile(name, blob, 0o600)
}

// FlushSpool attempts to send every spooled blob in filename order
// (oldest first), removing each on success and stopping at the first
// failure so later sends don't reorder ahead of it. It then evicts the
// oldest remaining files if the spool exceeds SpoolMaxMB (a runtime
// enforcement the original only validated at doctor time — see
// DESIGN.md Open Question 4).
func (u *Uplink) FlushSpool() error {
	entries, err := os.ReadDir(u.spoolDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("uplink: read spool dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(u.spoolDir, name)
		blob, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := u.sendBlob(blob); err != nil {
			u.evictOverCap()
			return err
		}
		os.Remove(path)
	}

	return u.evictOverCap()
}

// CountSpoolFiles counts the telemetry blobs currently spooled at
// spoolDir, used to drive the uplink_spool_depth metric. A missing spool
// directory counts as zero.
func CountSpoolFiles(spoolDir string) (int, error) {
	entries, err := os.ReadDir(spoolDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n, nil
}

func (u *Uplink) evictOverCap() error {
	if u.spoolMax <= 0 {
		return nil
	}
	entries, err := os.ReadDir(u.spoolDir)
	if err != nil {
		return nil
	}
	type fileInfo struct {
		name string
		size int64
	}
	files := make([]fileInfo, 0, len(entries))
	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{name: e.Name(), size: info.Size()})
		total += info.Size()
	}
	if total <= u.spoolMax {
		return nil
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	for _, f := range files {
		if total <= u.spoolMax {
			break
		}
		path := filepath.Join(u.spoolDir, f.name)
		if err := os.Remove(path); err == nil {
			total -= f.size
			u.logger.Printf("uplink: evicted spool file %s (over spool_max_mb)", f.name)
		}
	}
	return nil
}

func (u *Uplink) sendBlob(blob []byte) error {
	start := time.Now()
	err := u.dial(blob)

	if err == nil {
		rtt := uint32(time.Since(start).Milliseconds())
		u.health.RttMs = &rtt
		u.health.ConsecutiveFailures = 0
		if u.health.Quality <= 90 {
			u.health.Quality += 10
		} else {
			u.health.Quality = 100
		}
		u.logger.Printf("uplink: sent %d bytes (RTT: %dms, quality: %d%%)", len(blob), rtt, u.health.Quality)
		return nil
	}

	u.health.ConsecutiveFailures++
	if u.health.Quality >= 20 {
		u.health.Quality -= 20
	} else {
		u.health.Quality = 0
	}
	u.logger.Printf("uplink: send failed (failures: %d, quality: %d%%): %v", u.health.ConsecutiveFailures, u.health.Quality, err)
	return err
}

func (u *Uplink) dial(blob []byte) error {
	addr := net.JoinHostPort(u.host, u.port)
	conn, err := tls.Dial("tcp", addr, u.tlsCfg)
	if err != nil {
		return fmt.Errorf("uplink: dial %s: %w", addr, err)
	}
	defer conn.Close()

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(blob)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("uplink: write length prefix: %w", err)
	}
	if _, err := conn.Write(blob); err != nil {
		return fmt.Errorf("uplink: write blob: %w", err)
	}
	return nil
}
