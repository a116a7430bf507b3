// Package random generates operator API keys.
package random

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/artpar/bundlekeeper/ports"
)

// KeyPrefix marks operator API keys.
const KeyPrefix = "bk_"

// keyBytes is the entropy of a generated key.
const keyBytes = 24

// Real uses crypto/rand.
type Real struct{}

// Bytes generates n cryptographically secure random bytes.
func (Real) Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// Ensure interface compliance.
var _ ports.Random = Real{}

// Fake returns a deterministic byte sequence for tests.
type Fake struct {
	mu      sync.Mutex
	counter int
}

// Bytes returns n bytes continuing the sequence of earlier calls.
func (f *Fake) Bytes(n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b := make([]byte, n)
	for i := range b {
		b[i] = byte(f.counter % 256)
		f.counter++
	}
	return b, nil
}

// GeneratedKey is a new operator key and its bcrypt hash.
// Plain is shown once; only Hash goes into the config file.
type GeneratedKey struct {
	Plain string
	Hash  string
}

// NewKey draws a prefixed, hex-encoded key from src and hashes it.
func NewKey(src ports.Random, h ports.Hasher) (GeneratedKey, error) {
	b, err := src.Bytes(keyBytes)
	if err != nil {
		return GeneratedKey{}, fmt.Errorf("read random: %w", err)
	}
	plain := KeyPrefix + hex.EncodeToString(b)

	hash, err := h.Hash(plain)
	if err != nil {
		return GeneratedKey{}, fmt.Errorf("hash key: %w", err)
	}
	return GeneratedKey{Plain: plain, Hash: string(hash)}, nil
}
