package crypto

import (
	"bytes"
	"errors"

	"filippo.io/edwards25519"
)

// Sizes of the canonical encodings used throughout the protocol.
const (
	// ScalarSize is the length of a canonical little-endian scalar encoding.
	ScalarSize = 32

	// PointSize is the length of a compressed Edwards point encoding.
	PointSize = 32
)

// ErrInvalidPoint is returned when a 32-byte string is not a valid
// compressed Edwards point. Verifiers must treat it as a failed
// verification, never as a fatal condition.
var ErrInvalidPoint = errors.New("crypto: invalid point encoding")

// ScalarFromBytes interprets b as a little-endian integer and reduces it
// modulo the Ed25519 group order. Every input maps to a valid scalar.
func ScalarFromBytes(b [32]byte) *edwards25519.Scalar {
	var wide [64]byte
	copy(wide[:32], b[:])

	// SetUniformBytes performs the wide reduction; with the upper half
	// zero this is exactly reduction of the 256-bit value mod the order.
	s, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		// The input length is fixed at 64 bytes.
		panic("crypto: scalar wide reduction: " + err.Error())
	}
	return s
}

// DecodePoint decodes a compressed Edwards point.
// Returns ErrInvalidPoint for non-canonical or off-curve encodings.
func DecodePoint(b [32]byte) (*edwards25519.Point, error) {
	p, err := new(edwards25519.Point).SetBytes(b[:])
	if err != nil {
		return nil, ErrInvalidPoint
	}
	// SetBytes accepts non-canonical encodings of valid points; only the
	// canonical encoding round-trips.
	if !bytes.Equal(p.Bytes(), b[:]) {
		return nil, ErrInvalidPoint
	}
	return p, nil
}

// EncodePoint returns the canonical compressed encoding of p.
func EncodePoint(p *edwards25519.Point) [32]byte {
	var b [32]byte
	copy(b[:], p.Bytes())
	return b
}

// ScalarBaseMult returns s·G for the standard basepoint G.
func ScalarBaseMult(s *edwards25519.Scalar) *edwards25519.Point {
	return new(edwards25519.Point).ScalarBaseMult(s)
}

// KeyGen generates a long-term key pair: a private scalar drawn from
// RandomScalar and the matching compressed public point priv·G.
func KeyGen() (pub [32]byte, priv [32]byte, err error) {
	sk, err := RandomScalar()
	if err != nil {
		return pub, priv, err
	}
	copy(priv[:], sk.Bytes())
	pub = EncodePoint(ScalarBaseMult(sk))
	return pub, priv, nil
}
