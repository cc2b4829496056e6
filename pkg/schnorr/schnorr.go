// Package schnorr implements the Schnorr identification protocol over the
// Ed25519 group: the interactive three-move variant and a non-interactive
// (NIZK) variant whose challenge is a KMAC-256 tag bound to a shared
// secret and a shared counter.
package schnorr

import (
	"filippo.io/edwards25519"

	"github.com/backkem/nizkauth/pkg/crypto"
)

// Proof is the transcript triple exchanged between prover and verifier:
// the commitment R = r·G, the 32-byte challenge and the response
// s = r + c·sk, all in canonical encoding.
type Proof struct {
	Commitment [32]byte
	Challenge  [32]byte
	Response   [32]byte
}

// Commit draws a fresh nonce r and returns it with the compressed
// commitment R = r·G. The prover keeps r secret for the response and the
// later shared-key derivation.
func Commit() (*edwards25519.Scalar, [32]byte, error) {
	r, err := crypto.RandomScalar()
	if err != nil {
		return nil, [32]byte{}, err
	}
	return r, crypto.EncodePoint(crypto.ScalarBaseMult(r)), nil
}

// ProofResponse computes the response s = r + c·sk.
func ProofResponse(r, sk, c *edwards25519.Scalar) [32]byte {
	s := edwards25519.NewScalar().MultiplyAdd(c, sk, r)
	var out [32]byte
	copy(out[:], s.Bytes())
	return out
}

// VerifyEquation checks the Schnorr verification equation
// s·G == R + c·pk. Invalid point encodings fail the check, they never
// abort it.
func VerifyEquation(pub, commitment [32]byte, c *edwards25519.Scalar, response [32]byte) bool {
	pk, err := crypto.DecodePoint(pub)
	if err != nil {
		return false
	}
	r, err := crypto.DecodePoint(commitment)
	if err != nil {
		return false
	}

	s := crypto.ScalarFromBytes(response)
	lhs := crypto.ScalarBaseMult(s)
	rhs := new(edwards25519.Point).Add(r, new(edwards25519.Point).ScalarMult(c, pk))
	return lhs.Equal(rhs) == 1
}

// VerifyInteractive checks an interactive transcript against the
// verifier's own challenge bytes.
func VerifyInteractive(pub, commitment, challenge, response [32]byte) bool {
	return VerifyEquation(pub, commitment, crypto.ScalarFromBytes(challenge), response)
}
