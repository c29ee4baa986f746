// Package keys manages the on-disk device key used by the telemetry AEAD
// envelope: a raw 32-byte file, or an Argon2-wrapped passphrase-protected
// file in the NAVSCOUT_KEYWRAP_V2 format.
package keys

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"

	"github.com/flightpath-dev/navscout/internal/crypto/aead"
)

const (
	keywrapV2Magic = "NAVSCOUT_KEYWRAP_V2\n"
	keywrapV1Magic = "NAVSCOUT_KEYWRAP_V1\n"
	keywrapAAD     = "navscout-keywrap"
)

// Argon2 KDF parameters for the V2 wrap format. Chosen to match the
// original's Argon2 defaults (time=1, memory=19MiB, 1 thread, 32-byte key)
// rather than the interactive-login-tuned argon2id presets, since this key
// derivation runs once per process start, not per request.
const (
	argonTime    = 1
	argonMemory  = 19 * 1024
	argonThreads = 1
	argonKeyLen  = 32
)

// DeviceKeys holds the decrypted material used by the rest of NAVscout.
type DeviceKeys struct {
	AEAD aead.Key
}

// Config names the key file and optional unwrap passphrase.
type Config struct {
	KeyPath    string
	Passphrase string // empty means the key file is stored raw
}

// Init creates a fresh random key at cfg.KeyPath with mode 0600. It refuses
// to overwrite an existing key.
func Init(cfg Config) error {
	if dir := filepath.Dir(cfg.KeyPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("keys: create key dir: %w", err)
		}
	}
	if _, err := os.Stat(cfg.KeyPath); err == nil {
		return fmt.Errorf("keys: key already exists at %s", cfg.KeyPath)
	}

	var key aead.Key
	if _, err := rand.Read(key[:]); err != nil {
		return fmt.Errorf("keys: generate key: %w", err)
	}

	var content []byte
	if cfg.Passphrase == "" {
		content = key[:]
	} else {
		salt := make([]byte, 16)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("keys: generate salt: %w", err)
		}
		wrapped, err := wrap(cfg.Passphrase, salt, key)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		buf.WriteString(keywrapV2Magic)
		buf.WriteString(base64.RawStdEncoding.EncodeToString(salt))
		buf.WriteByte('\n')
		buf.Write(wrapped)
		content = buf.Bytes()
	}

	if err := os.WriteFile(cfg.KeyPath, content, 0o600); err != nil {
		return fmt.Errorf("keys: write key file: %w", err)
	}
	return os.Chmod(cfg.KeyPath, 0o600)
}

// Rotate replaces the key at cfg.KeyPath with a fresh random key, writing
// to a temp file and renaming atomically so a crash mid-rotation never
// leaves a half-written key. Permissions (0600) are preserved.
func Rotate(cfg Config) error {
	if _, err := os.Stat(cfg.KeyPath); err != nil {
		return fmt.Errorf("keys: key does not exist at %s", cfg.KeyPath)
	}

	var key aead.Key
	if _, err := rand.Read(key[:]); err != nil {
		return fmt.Errorf("keys: generate key: %w", err)
	}

	var content []byte
	if cfg.Passphrase == "" {
		content = key[:]
	} else {
		salt := make([]byte, 16)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("keys: generate salt: %w", err)
		}
		wrapped, err := wrap(cfg.Passphrase, salt, key)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		buf.WriteString(keywrapV2Magic)
		buf.WriteString(base64.RawStdEncoding.EncodeToString(salt))
		buf.WriteByte('\n')
		buf.Write(wrapped)
		content = buf.Bytes()
	}

	tmp := cfg.KeyPath + ".new"
	if err := os.WriteFile(tmp, content, 0o600); err != nil {
		return fmt.Errorf("keys: write temp key: %w", err)
	}
	if err := os.Rename(tmp, cfg.KeyPath); err != nil {
		return fmt.Errorf("keys: rename temp key: %w", err)
	}
	return os.Chmod(cfg.KeyPath, 0o600)
}

// Load reads and, if wrapped, unwraps the key at cfg.KeyPath.
func Load(cfg Config) (DeviceKeys, error) {
	raw, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return DeviceKeys{}, fmt.Errorf("keys: read key file: %w", err)
	}

	switch {
	case bytes.HasPrefix(raw, []byte(keywrapV2Magic)):
		if cfg.Passphrase == "" {
			return DeviceKeys{}, fmt.Errorf("keys: passphrase required for wrapped key")
		}
		body := raw[len(keywrapV2Magic):]
		nl := bytes.IndexByte(body, '\n')
		if nl < 0 {
			return DeviceKeys{}, fmt.Errorf("keys: bad key header")
		}
		saltB64, wrapped := body[:nl], body[nl+1:]
		salt, err := base64.RawStdEncoding.DecodeString(string(saltB64))
		if err != nil {
			return DeviceKeys{}, fmt.Errorf("keys: invalid salt: %w", err)
		}
		key, err := unwrap(cfg.Passphrase, salt, wrapped)
		if err != nil {
			return DeviceKeys{}, err
		}
		return DeviceKeys{AEAD: key}, nil

	case bytes.HasPrefix(raw, []byte(keywrapV1Magic)):
		// See DESIGN.md Open Question 3: the legacy blake3-derived wrap
		// key has no grounded Go equivalent in this pack. Refuse cleanly
		// rather than silently deriving a different, incompatible key.
		return DeviceKeys{}, fmt.Errorf("keys: NAVSCOUT_KEYWRAP_V1 is no longer supported; run 'scout keys rotate' with the original binary first, or re-init")

	default:
		if len(raw) != 32 {
			return DeviceKeys{}, fmt.Errorf("keys: raw key file must be 32 bytes, got %d", len(raw))
		}
		var key aead.Key
		copy(key[:], raw)
		return DeviceKeys{AEAD: key}, nil
	}
}

func deriveWrappingKey(passphrase string, salt []byte) aead.Key {
	derived := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	var key aead.Key
	copy(key[:], derived)
	return key
}

func wrap(passphrase string, salt []byte, key aead.Key) ([]byte, error) {
	wrapKey := deriveWrappingKey(passphrase, salt)
	return aead.Seal(wrapKey, []byte(keywrapAAD), key[:])
}

func unwrap(passphrase string, salt []byte, wrapped []byte) (aead.Key, error) {
	wrapKey := deriveWrappingKey(passphrase, salt)
	pt, err := aead.Open(wrapKey, []byte(keywrapAAD), wrapped)
	if err != nil {
		return aead.Key{}, err
	}
	if len(pt) != 32 {
		return aead.Key{}, fmt.Errorf("keys: bad unwrapped key length")
	}
	var key aead.Key
	copy(key[:], pt)
	return key, nil
}
