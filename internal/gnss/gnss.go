// Package gnss reads NMEA 0183 sentences from a serial GNSS receiver or a
// replay file and assembles fixes, mirroring scout-nav/src/gnss.rs.
//
// The original tracked the most recent GGA sentence in a process-global
// Lazy<Mutex<...>>; here it's an instance field of Source instead, so
// multiple sources (e.g. a live receiver and a replay file in tests) never
// share state (spec.md §9 design note).
package gnss

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"

	"go.bug.st/serial"
)

// FixQuality mirrors nav.FixQuality; kept as a distinct type so this
// package has no dependency on internal/nav.
type FixQuality struct {
	Sats    uint8
	HDOP    float32
	FixAgeS uint64
}

// Fix is one resolved position report.
type Fix struct {
	Lat     float64
	Lon     float64
	Quality FixQuality
	Ts      time.Time
}

type ggaCache struct {
	sats uint8
	hdop float32
	ts   time.Time
	have bool
}

// Source reads NMEA lines from either a live serial GNSS receiver or a
// recorded file, and turns them into Fix values.
type Source struct {
	r        *bufio.Reader
	closer   io.Closer
	isFile   bool
	lastGGA  ggaCache
	pollWait time.Duration
}

const defaultBaud = 115200

// Serial opens dev as a GNSS serial source at the default NMEA baud rate.
func Serial(dev string) (*Source, error) {
	mode := &serial.Mode{BaudRate: defaultBaud}
	port, err := serial.Open(dev, mode)
	if err != nil {
		return nil, fmt.Errorf("gnss: open serial %s: %w", dev, err)
	}
	return &Source{r: bufio.NewReader(port), closer: port, pollWait: 500 * time.Millisecond}, nil
}

// File opens path as a recorded NMEA line source, used for replay/testing.
func File(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gnss: open nmea file %s: %w", path, err)
	}
	return &Source{r: bufio.NewReader(f), closer: f, isFile: true, pollWait: 500 * time.Millisecond}, nil
}

// Close releases the underlying serial port or file.
func (s *Source) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// NextFix blocks until an RMC sentence has produced a resolved position fix.
// GGA sentences update the satellite/HDOP cache but don't themselves
// return a Fix; RMC sentences resolve lat/lon and combine with the most
// recent cached GGA data, or with Sats=0, HDOP=99.9 when no GGA has been
// seen yet.
func (s *Source) NextFix() (Fix, error) {
	for {
		line, err := s.r.ReadString('\n')
		if err != nil && !(s.isFile && err == io.EOF) {
			return Fix{}, fmt.Errorf("gnss: read line: %w", err)
		}

		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			if fix, ok, perr := s.parseLine(trimmed); perr == nil && ok {
				return fix, nil
			}
		}

		if err == io.EOF {
			time.Sleep(s.pollWait)
		}
	}
}

func (s *Source) parseLine(line string) (Fix, bool, error) {
	if line == "" {
		return Fix{}, false, nil
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		return Fix{}, false, err
	}

	switch m := sentence.(type) {
	case nmea.GGA:
		s.lastGGA = ggaCache{
			sats: uint8(clampNonNegative(m.NumSatellites)),
			hdop: float32(m.HDOP),
			ts:   time.Now().UTC(),
			have: true,
		}
		return Fix{}, false, nil

	case nmea.RMC:
		now := time.Now().UTC()
		sats, hdop, age := uint8(0), float32(99.9), uint64(0)
		if s.lastGGA.have {
			sats = s.lastGGA.sats
			hdop = s.lastGGA.hdop
			if d := now.Sub(s.lastGGA.ts); d > 0 {
				age = uint64(d.Seconds())
			}
		}
		return Fix{
			Lat: m.Latitude,
			Lon: m.Longitude,
			Quality: FixQuality{
				Sats:    sats,
				HDOP:    hdop,
				FixAgeS: age,
			},
			Ts: now,
		}, true, nil

	default:
		return Fix{}, false, nil
	}
}

func clampNonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
