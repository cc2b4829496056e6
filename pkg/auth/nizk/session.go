// Package nizk implements non-interactive authentication: Schnorr proofs
// whose challenge is a KMAC-256 tag over the commitment and the shared
// counter, keyed by the shared secret established interactively.
//
// Two flavors are provided. The package-level Prove/Verify pair covers
// single-sided authentication of one message. Session covers the mutual
// one-round-trip exchange that additionally derives a fresh session key
// from the two commitments.
//
// Freshness comes from the shared counter inside the MAC rather than
// from the commitment log: every successful exchange ratchets the
// counter (and the secret) on both sides, so a recorded proof can never
// verify again.
package nizk

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/backkem/nizkauth/pkg/crypto"
	"github.com/backkem/nizkauth/pkg/intrusion"
	"github.com/backkem/nizkauth/pkg/keystore"
	"github.com/backkem/nizkauth/pkg/schnorr"
)

// ErrNotVerified is returned when the session key is requested before
// VerifyProof has run.
var ErrNotVerified = errors.New("nizk: peer proof not verified yet")

// Config configures a mutual-auth session.
type Config struct {
	// LocalID and PeerID are the two peers' numeric identities.
	LocalID uint32
	PeerID  uint32

	// Keys holds the long-term keys and the shared secret/counter.
	Keys keystore.Store

	// Monitor receives the split verdict of rejected proofs.
	// If nil, rejections are not reported.
	Monitor *intrusion.Monitor
}

// Session is the state of one mutual NIZK exchange. It is owned by a
// single handler and is not safe for concurrent use.
type Session struct {
	config    Config
	initiator bool

	nonce *edwards25519.Scalar
	local schnorr.Proof

	peer     schnorr.Proof
	hasPeer  bool
	verified bool
	accepted bool
}

// NewSession creates a session and immediately produces the local proof
// from the shared secret and counter; the proof is returned for
// sending. A non-nil received proof marks this side as the receiver and
// stores the initiator's proof on the session.
func NewSession(config Config, received *schnorr.Proof) (*Session, schnorr.Proof, error) {
	priv, _, err := keystore.ReadKey32(config.Keys, keystore.PrivateKeyName(config.LocalID))
	if err != nil {
		return nil, schnorr.Proof{}, fmt.Errorf("nizk: fetch private key: %w", err)
	}
	sharedKey, counter, err := sharedState(config.Keys, config.LocalID, config.PeerID)
	if err != nil {
		return nil, schnorr.Proof{}, err
	}

	nonce, proof, err := schnorr.NIZKProve(priv, sharedKey, counter)
	if err != nil {
		return nil, schnorr.Proof{}, fmt.Errorf("nizk: generate proof: %w", err)
	}

	s := &Session{
		config:    config,
		initiator: received == nil,
		nonce:     nonce,
		local:     proof,
	}
	if received != nil {
		s.peer = *received
		s.hasPeer = true
	}
	return s, proof, nil
}

// AddPeerProof stores the peer's answering proof. Initiator path only;
// the receiver got the peer proof at construction.
func (s *Session) AddPeerProof(proof schnorr.Proof) {
	s.peer = proof
	s.hasPeer = true
}

// Initiator reports whether this side opened the exchange.
func (s *Session) Initiator() bool {
	return s.initiator
}

// VerifyProof checks the peer's proof against the peer's public key and
// the shared secret and counter. A rejection is reported to the
// intrusion monitor with its split verdict. The result is stored for
// SessionKey.
func (s *Session) VerifyProof() (bool, error) {
	if !s.hasPeer {
		return false, errors.New("nizk: no peer proof to verify")
	}

	pub, _, err := keystore.ReadKey32(s.config.Keys, keystore.PublicKeyName(s.config.PeerID))
	if err != nil {
		return false, fmt.Errorf("nizk: fetch peer public key: %w", err)
	}
	sharedKey, counter, err := sharedState(s.config.Keys, s.config.LocalID, s.config.PeerID)
	if err != nil {
		return false, err
	}

	schnorrOK, macOK := schnorr.VerifyNIZK(pub, sharedKey, counter, s.peer)
	s.verified = true
	s.accepted = schnorrOK && macOK

	if !s.accepted && s.config.Monitor != nil {
		if err := s.config.Monitor.ManageIntrusion(s.config.PeerID, schnorrOK, macOK); err != nil {
			return false, fmt.Errorf("nizk: record rejection: %w", err)
		}
	}
	return s.accepted, nil
}

// SessionKey derives the fresh session key
// SHA3-256((r·R_peer)) and ratchets the shared secret and counter.
// If the peer proof was rejected, the all-zero sentinel is returned and
// no state moves.
func (s *Session) SessionKey() ([32]byte, error) {
	if !s.verified {
		return [32]byte{}, ErrNotVerified
	}
	if !s.accepted {
		return [32]byte{}, nil
	}

	peerPoint, err := crypto.DecodePoint(s.peer.Commitment)
	if err != nil {
		// Unreachable after acceptance; surfaced for completeness.
		return [32]byte{}, err
	}
	shared := new(edwards25519.Point).ScalarMult(s.nonce, peerPoint)
	sharedBytes := crypto.EncodePoint(shared)
	sessionKey := crypto.SHA3Sum256(sharedBytes[:])

	if s.initiator {
		err = ratchet(s.config.Keys, s.config.LocalID, s.config.PeerID, s.local.Response, s.peer.Response[:])
	} else {
		err = ratchet(s.config.Keys, s.config.LocalID, s.config.PeerID, s.peer.Response, s.local.Response[:])
	}
	if err != nil {
		return [32]byte{}, err
	}
	return sessionKey, nil
}
