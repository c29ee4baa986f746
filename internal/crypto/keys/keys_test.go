package keys

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{KeyPath: filepath.Join(dir, "device.key")}
	require.NoError(t, Init(cfg))
	assert.Error(t, Init(cfg))
}

func TestInitLoadRawKeyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{KeyPath: filepath.Join(dir, "device.key")}
	require.NoError(t, Init(cfg))

	dk, err := Load(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, [32]byte{}, [32]byte(dk.AEAD))
}

func TestInitLoadWrappedKeyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{KeyPath: filepath.Join(dir, "device.key"), Passphrase: "correct horse battery staple"}
	require.NoError(t, Init(cfg))

	dk, err := Load(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, [32]byte{}, [32]byte(dk.AEAD))

	_, err = Load(Config{KeyPath: cfg.KeyPath, Passphrase: "wrong passphrase"})
	assert.Error(t, err)
}

// Invariant: rotate replaces the key material but preserves the 0600
// permission bits (spec.md §8 invariant 10).
func TestRotatePreservesPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits only")
	}
	dir := t.TempDir()
	cfg := Config{KeyPath: filepath.Join(dir, "device.key")}
	require.NoError(t, Init(cfg))

	before, err := Load(cfg)
	require.NoError(t, err)

	require.NoError(t, Rotate(cfg))
	require.NoError(t, CheckKeys(cfg))

	after, err := Load(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, before.AEAD, after.AEAD)
}

func TestLoadRejectsLegacyV1Format(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "device.key")
	content := []byte("NAVSCOUT_KEYWRAP_V1\nsome-phc-hash\nrestofblob")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	_, err := Load(Config{KeyPath: path, Passphrase: "x"})
	assert.Error(t, err)
}
