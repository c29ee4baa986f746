package uplink

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"encoding/hex"
	"io"
	"log"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flightpath-dev/navscout/internal/crypto/aead"
	"github.com/flightpath-dev/navscout/internal/crypto/keys"
	"github.com/flightpath-dev/navscout/internal/telemetry"
	"github.com/flightpath-dev/navscout/internal/uplink/certpin"
)

func discardLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func testDeviceKeys() keys.DeviceKeys {
	var k aead.Key
	for i := range k {
		k[i] = byte(i)
	}
	return keys.DeviceKeys{AEAD: k}
}

func TestRecommendedIntervalSecsQualityBands(t *testing.T) {
	u := &Uplink{health: Health{Quality: 95}}
	require.EqualValues(t, 30, u.RecommendedIntervalSecs())

	u.health = Health{Quality: 60}
	require.EqualValues(t, 60, u.RecommendedIntervalSecs())

	u.health = Health{Quality: 30}
	require.EqualValues(t, 120, u.RecommendedIntervalSecs())

	u.health = Health{Quality: 5}
	require.EqualValues(t, 300, u.RecommendedIntervalSecs())
}

func TestRecommendedIntervalSecsBackoffCap(t *testing.T) {
	u := &Uplink{health: Health{Quality: 100, ConsecutiveFailures: 1}}
	require.EqualValues(t, 60, u.RecommendedIntervalSecs())

	u.health.ConsecutiveFailures = 4
	require.EqualValues(t, 480, u.RecommendedIntervalSecs())

	u.health.ConsecutiveFailures = 10
	require.EqualValues(t, 480, u.RecommendedIntervalSecs())
}

func TestSendEventSpoolsSealedBlob(t *testing.T) {
	dir := t.TempDir()
	u := &Uplink{spoolDir: dir, keys: testDeviceKeys(), health: NewHealth()}

	ev := &telemetry.Event{TsUnixMs: 1, Kind: telemetry.EventStatus, Lat: 1, Lon: 2, Msg: "ok"}
	require.NoError(t, u.SendEvent(ev))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	blob, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	plain, err := aead.Open(u.keys.AEAD, []byte(telemetryAAD), blob)
	require.NoError(t, err)
	require.Contains(t, string(plain), "\"msg\":\"ok\"")
}

func TestEvictOverCapRemovesOldestFirst(t *testing.T) {
	dir := t.TempDir()
	u := &Uplink{spoolDir: dir, spoolMax: 10, logger: discardLogger()}

	writeSpoolFile(t, dir, "1.bin", make([]byte, 8))
	writeSpoolFile(t, dir, "2.bin", make([]byte, 8))

	require.NoError(t, u.evictOverCap())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "2.bin", entries[0].Name())
}

func TestFlushSpoolSendsEveryBlobAndClearsOnSuccess(t *testing.T) {
	host, port, received, closeSrv, pinHex, leafDER := startPinnedTestServer(t)
	defer closeSrv()

	leaf, err := x509.ParseCertificate(leafDER)
	require.NoError(t, err)
	roots := x509.NewCertPool()
	roots.AddCert(leaf)

	verify, err := certpin.VerifyFunc(roots, pinHex)
	require.NoError(t, err)
	tlsCfg := &tls.Config{ServerName: host, InsecureSkipVerify: true, VerifyPeerCertificate: verify}

	dir := t.TempDir()
	u := &Uplink{
		spoolDir: dir,
		host:     host, port: port,
		tlsCfg: tlsCfg,
		keys:   testDeviceKeys(),
		health: NewHealth(),
		logger: discardLogger(),
	}

	require.NoError(t, u.SendEvent(&telemetry.Event{TsUnixMs: 1, Kind: telemetry.EventStatus}))
	require.NoError(t, u.SendEvent(&telemetry.Event{TsUnixMs: 2, Kind: telemetry.EventStatus}))

	require.NoError(t, u.FlushSpool())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 0)
	require.Equal(t, 2, *received)
	require.Equal(t, uint32(0), u.health.ConsecutiveFailures)
}

func writeSpoolFile(t *testing.T, dir, name string, content []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), content, 0o600))
}

// startPinnedTestServer runs a local TLS listener that reads one
// length-prefixed frame per connection, and returns the SHA-256 SPKI pin
// hex certpin expects for its self-signed leaf.
func startPinnedTestServer(t *testing.T) (host, port string, received *int, closeFn func(), pinHex string, leafDER []byte) {
	t.Helper()
	cert, certDER := generateSelfSignedCert(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	count := 0
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			tlsConn := tls.Server(conn, &tls.Config{Certificates: []tls.Certificate{cert}})
			func() {
				defer tlsConn.Close()
				var lenBuf [4]byte
				if _, err := io.ReadFull(tlsConn, lenBuf[:]); err != nil {
					return
				}
				n := binary.BigEndian.Uint32(lenBuf[:])
				buf := make([]byte, n)
				if _, err := io.ReadFull(tlsConn, buf); err != nil {
					return
				}
				count++
			}()
		}
	}()

	h, p, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	sum := sha256.Sum256(certDER)
	return h, p, &count, func() { ln.Close() }, hex.EncodeToString(sum[:]), certDER
}

func generateSelfSignedCert(t *testing.T) (tls.Certificate, []byte) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	require.NoError(t, err)

	cert := tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}
	return cert, der
}
