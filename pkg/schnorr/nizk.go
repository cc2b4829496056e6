package schnorr

import (
	"crypto/subtle"

	"filippo.io/edwards25519"

	"github.com/backkem/nizkauth/pkg/crypto"
)

// CounterSize is the length of the shared-counter encoding mixed into the
// NIZK challenge (32-bit big-endian).
const CounterSize = 4

// NIZKChallenge derives the deterministic challenge
// c = KMAC-256(K, R ‖ N) binding the proof to the shared secret K and the
// shared counter N.
func NIZKChallenge(sharedKey [32]byte, commitment [32]byte, counter [CounterSize]byte) [32]byte {
	return crypto.KMAC256(sharedKey, commitment[:], counter[:])
}

// NIZKProve produces a non-interactive proof of knowledge of the private
// key. The returned nonce r is needed by mutual-auth sessions for the
// session-key derivation; one-shot provers may discard it.
func NIZKProve(priv, sharedKey [32]byte, counter [CounterSize]byte) (*edwards25519.Scalar, Proof, error) {
	r, commitment, err := Commit()
	if err != nil {
		return nil, Proof{}, err
	}

	challenge := NIZKChallenge(sharedKey, commitment, counter)
	sk := crypto.ScalarFromBytes(priv)
	response := ProofResponse(r, sk, crypto.ScalarFromBytes(challenge))

	return r, Proof{
		Commitment: commitment,
		Challenge:  challenge,
		Response:   response,
	}, nil
}

// VerifyNIZK checks a non-interactive proof and reports the two component
// verdicts independently:
//
//	schnorrOK — the verification equation s·G == R + c·pk holds
//	macOK     — the challenge is the correct KMAC tag over (R, N)
//
// The proof is accepted iff both hold; the split verdict feeds intrusion
// classification.
func VerifyNIZK(pub, sharedKey [32]byte, counter [CounterSize]byte, proof Proof) (schnorrOK, macOK bool) {
	expected := NIZKChallenge(sharedKey, proof.Commitment, counter)
	macOK = subtle.ConstantTimeCompare(expected[:], proof.Challenge[:]) == 1

	schnorrOK = VerifyEquation(pub, proof.Commitment, crypto.ScalarFromBytes(proof.Challenge), proof.Response)
	return schnorrOK, macOK
}
