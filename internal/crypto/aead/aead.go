// Package aead implements the telemetry encryption envelope: XChaCha20-
// Poly1305 with a random 24-byte nonce prepended to the ciphertext.
package aead

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Key is a 32-byte XChaCha20-Poly1305 key.
type Key [32]byte

// Seal encrypts plaintext under key with the given additional authenticated
// data, returning nonce||ciphertext.
func Seal(key Key, aad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("aead: init cipher: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("aead: generate nonce: %w", err)
	}
	out := aead.Seal(nonce, nonce, plaintext, aad)
	return out, nil
}

// Open decrypts a nonce||ciphertext blob produced by Seal, verifying aad.
func Open(key Key, aad, blob []byte) ([]byte, error) {
	if len(blob) < chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("aead: ciphertext too short")
	}
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("aead: init cipher: %w", err)
	}
	nonce, ct := blob[:chacha20poly1305.NonceSizeX], blob[chacha20poly1305.NonceSizeX:]
	pt, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, fmt.Errorf("aead: decryption failed: %w", err)
	}
	return pt, nil
}
