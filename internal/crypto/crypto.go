// Package crypto seals dispatch frames with NaCl secretbox when a shared
// token is configured.
//
// The 32-byte key is derived from the token using HKDF-SHA256. Each sealed
// frame carries a fresh random nonce ahead of the ciphertext:
//
//	[ 24-byte nonce ][ ciphertext ]
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var hkdfInfo = []byte("clipferry-dispatch-v1")

// ErrOpen is returned when a frame fails authentication, usually because
// the two sides hold different tokens.
var ErrOpen = errors.New("decryption failed (token mismatch?)")

// Key is a secretbox key.
type Key [keySize]byte

// DeriveKey derives a Key from token. An empty token yields a nil key,
// meaning frames travel unsealed.
func DeriveKey(token string) (*Key, error) {
	if token == "" {
		return nil, nil
	}
	h := hkdf.New(sha256.New, []byte(token), nil, hkdfInfo)
	var key Key
	if _, err := io.ReadFull(h, key[:]); err != nil {
		return nil, fmt.Errorf("key derivation: %w", err)
	}
	return &key, nil
}

// Seal encrypts plaintext, prepending a random nonce.
func (k *Key) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("nonce generation: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, (*[keySize]byte)(k)), nil
}

// Open decrypts nonce+ciphertext as produced by Seal.
func (k *Key) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("%w: frame too short", ErrOpen)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, (*[keySize]byte)(k))
	if !ok {
		return nil, ErrOpen
	}
	return plain, nil
}
