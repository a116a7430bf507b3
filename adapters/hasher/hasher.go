// Package hasher provides API key hashing and verification.
package hasher

import (
	"crypto/subtle"

	"github.com/artpar/bundlekeeper/ports"
	"golang.org/x/crypto/bcrypt"
)

// Bcrypt uses bcrypt for hashing.
type Bcrypt struct {
	cost int
}

// NewBcrypt creates a bcrypt hasher with the given cost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Hash generates a bcrypt hash from plaintext.
func (h *Bcrypt) Hash(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
}

// Compare checks if plaintext matches hash.
func (h *Bcrypt) Compare(hash []byte, plaintext string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(plaintext)) == nil
}

// Ensure interface compliance.
var _ ports.Hasher = (*Bcrypt)(nil)

// Fake provides a no-op hasher for testing (NOT FOR PRODUCTION).
type Fake struct{}

// Hash returns the plaintext as bytes (no actual hashing).
func (Fake) Hash(plaintext string) ([]byte, error) {
	return []byte(plaintext), nil
}

// Compare does simple equality check.
func (Fake) Compare(hash []byte, plaintext string) bool {
	return string(hash) == plaintext
}

// Ensure interface compliance.
var _ ports.Hasher = Fake{}

// KeyVerifier checks a presented API key against a plaintext key or a hash.
// The hash takes precedence when both are set. With neither set every key
// is accepted.
type KeyVerifier struct {
	Plain  string
	Hash   []byte
	Hasher ports.Hasher
}

// Open reports whether no key is configured.
func (v KeyVerifier) Open() bool {
	return v.Plain == "" && len(v.Hash) == 0
}

// Verify reports whether presented matches the configured key.
func (v KeyVerifier) Verify(presented string) bool {
	if v.Open() {
		return true
	}
	if presented == "" {
		return false
	}
	if len(v.Hash) > 0 {
		h := v.Hasher
		if h == nil {
			h = &Bcrypt{}
		}
		return h.Compare(v.Hash, presented)
	}
	return subtle.ConstantTimeCompare([]byte(v.Plain), []byte(presented)) == 1
}
