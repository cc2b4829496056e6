// Package crypto provides the cryptographic primitives for the
// authentication protocol: Ed25519 group arithmetic per RFC 8032,
// SHA3-256 per FIPS 202, KMAC-256 per NIST SP 800-185, and a CSPRNG.
package crypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"filippo.io/edwards25519"
)

// Random32 returns 32 uniformly random bytes from the system CSPRNG.
func Random32() ([32]byte, error) {
	var b [32]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return b, fmt.Errorf("crypto: read random bytes: %w", err)
	}
	return b, nil
}

// RandomScalar returns a uniformly random scalar modulo the Ed25519 group
// order, obtained by reducing 32 random bytes.
func RandomScalar() (*edwards25519.Scalar, error) {
	b, err := Random32()
	if err != nil {
		return nil, err
	}
	return ScalarFromBytes(b), nil
}
