// Package interactive implements the interactive mutual-authentication
// handshake: a pair of interleaved three-move Schnorr identifications
// that, on success, establishes the shared symmetric secret and the
// shared counter between two peers.
//
// The handshake is four messages. The initiator sends its commitment;
// the receiver answers with its own commitment and a challenge; the
// initiator returns its challenge together with its response; the
// receiver finishes with its response. Each side then verifies the
// peer's transcript against the challenge it drew itself and, on
// acceptance, derives the shared secret from the two commitments.
//
// Usage (Initiator):
//
//	session, _ := interactive.NewSession(cfg) // cfg.Role = RoleInitiator
//	v1, _, reqType, _ := session.GenerateNext()
//	// send (reqType, v1), receive (peerType, p1, p2)
//	session.Receive(peerType, p1, p2)
//	v1, v2, reqType, _ := session.GenerateNext()
//	// send (reqType, v1, v2), receive final response
//	session.Receive(peerType, p1, nil)
//	ok, _ := session.VerifyProof()
package interactive

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/backkem/nizkauth/pkg/crypto"
	"github.com/backkem/nizkauth/pkg/keystore"
	"github.com/backkem/nizkauth/pkg/replay"
	"github.com/backkem/nizkauth/pkg/schnorr"
)

// Session errors.
var (
	ErrHandshakeComplete = errors.New("interactive: nothing left to generate")
	ErrMissingChallenge  = errors.New("interactive: peer challenge not received")
)

// Config configures a handshake session.
type Config struct {
	// LocalID and PeerID are the two peers' numeric identities.
	LocalID uint32
	PeerID  uint32

	// Role selects the message sequence this side follows.
	Role Role

	// Keys holds the long-term key pairs and receives the derived
	// shared secret and counter.
	Keys keystore.Store

	// Replays is the commitment log consulted before verification.
	Replays replay.Log
}

// Session is the handshake state machine for one side. It is owned by a
// single handler and is not safe for concurrent use.
type Session struct {
	config Config
	stage  Stage

	// Local transcript.
	nonce      *edwards25519.Scalar // r, kept for the shared-secret derivation
	commitment [32]byte             // R = r·G
	challenge  [32]byte             // drawn when this side challenges
	hasChal    bool
	response   [32]byte

	// Peer transcript.
	peerCommitment [32]byte
	peerChallenge  [32]byte
	hasPeerChal    bool
	peerResponse   [32]byte
}

// NewSession creates a session, drawing the nonce and commitment.
// The initiator starts at StageCommitment, the receiver at
// StageCommitmentAndChallenge.
func NewSession(config Config) (*Session, error) {
	nonce, commitment, err := schnorr.Commit()
	if err != nil {
		return nil, fmt.Errorf("interactive: draw commitment: %w", err)
	}

	stage := StageCommitment
	if config.Role == RoleReceiver {
		stage = StageCommitmentAndChallenge
	}

	return &Session{
		config:     config,
		stage:      stage,
		nonce:      nonce,
		commitment: commitment,
	}, nil
}

// Receive folds one peer message into the session. The request type
// names what the peer produced; v2 accompanies the two double-valued
// types and is nil otherwise.
func (s *Session) Receive(requestType Stage, v1 [32]byte, v2 *[32]byte) ReceiveStatus {
	switch requestType {
	case StageNextStepRequired:
		return StatusCannotBeVerified

	case StageCommitment:
		s.peerCommitment = v1
		return StatusCannotBeVerified

	case StageCommitmentAndChallenge:
		if v2 == nil {
			return StatusWrongRequestID
		}
		s.peerCommitment = v1
		s.peerChallenge = *v2
		s.hasPeerChal = true
		return StatusCannotBeVerified

	case StageChallengeAndResponse:
		if v2 == nil {
			return StatusWrongRequestID
		}
		s.peerChallenge = v1
		s.hasPeerChal = true
		s.peerResponse = *v2
		return StatusVerifiableAfterResponse

	case StageResponse:
		s.peerResponse = v1
		return StatusVerifiable

	default:
		return StatusWrongRequestID
	}
}

// GenerateNext produces this side's next message and advances the
// stage. The returned request type tags the message; v2 is nil for
// single-valued messages. After the terminal message has been produced,
// ErrHandshakeComplete is returned.
func (s *Session) GenerateNext() (v1 [32]byte, v2 *[32]byte, requestType Stage, err error) {
	switch s.stage {
	case StageCommitment:
		s.stage = StageChallengeAndResponse
		return s.commitment, nil, StageCommitment, nil

	case StageCommitmentAndChallenge:
		challenge, err := crypto.Random32()
		if err != nil {
			return v1, nil, StageNextStepRequired, err
		}
		s.challenge = challenge
		s.hasChal = true
		s.stage = StageResponse
		return s.commitment, &challenge, StageCommitmentAndChallenge, nil

	case StageChallengeAndResponse:
		challenge, err := crypto.Random32()
		if err != nil {
			return v1, nil, StageNextStepRequired, err
		}
		s.challenge = challenge
		s.hasChal = true

		response, err := s.proofResponse()
		if err != nil {
			return v1, nil, StageNextStepRequired, err
		}
		s.response = response
		s.stage = StageNextStepRequired
		return challenge, &response, StageChallengeAndResponse, nil

	case StageResponse:
		response, err := s.proofResponse()
		if err != nil {
			return v1, nil, StageNextStepRequired, err
		}
		s.response = response
		s.stage = StageNextStepRequired
		return response, nil, StageResponse, nil

	default:
		return v1, nil, StageNextStepRequired, ErrHandshakeComplete
	}
}

// proofResponse computes s = r + c·sk against the peer's challenge,
// fetching the long-term private key from the keystore.
func (s *Session) proofResponse() ([32]byte, error) {
	if !s.hasPeerChal {
		return [32]byte{}, ErrMissingChallenge
	}

	priv, _, err := keystore.ReadKey32(s.config.Keys, keystore.PrivateKeyName(s.config.LocalID))
	if err != nil {
		return [32]byte{}, fmt.Errorf("interactive: fetch private key: %w", err)
	}

	sk := crypto.ScalarFromBytes(priv)
	c := crypto.ScalarFromBytes(s.peerChallenge)
	return schnorr.ProofResponse(s.nonce, sk, c), nil
}

// VerifyProof checks the peer's transcript. The peer commitment must be
// fresh in the replay log, and the Schnorr equation must hold for the
// challenge this side drew. On acceptance the shared secret and the
// shared counter are derived and stored.
//
// A replayed commitment or a failed equation yields (false, nil);
// errors are reserved for keystore and log failures and for a session
// that never drew its own challenge (ErrMissingChallenge).
func (s *Session) VerifyProof() (bool, error) {
	fresh, err := s.config.Replays.Observe(s.config.PeerID, s.peerCommitment)
	if err != nil {
		return false, fmt.Errorf("interactive: commitment log: %w", err)
	}
	if !fresh {
		return false, nil
	}

	pub, _, err := keystore.ReadKey32(s.config.Keys, keystore.PublicKeyName(s.config.PeerID))
	if err != nil {
		return false, fmt.Errorf("interactive: fetch peer public key: %w", err)
	}

	if !s.hasChal {
		return false, ErrMissingChallenge
	}
	if !schnorr.VerifyInteractive(pub, s.peerCommitment, s.challenge, s.peerResponse) {
		return false, nil
	}

	if err := s.storeSharedSecret(); err != nil {
		return false, err
	}
	return true, nil
}

// storeSharedSecret derives K = SHA3-256((r·R_peer)) from the two
// commitments and writes this side's copies of the shared secret and
// the counter, overwriting any stale values from an earlier pairing.
func (s *Session) storeSharedSecret() error {
	peerPoint, err := crypto.DecodePoint(s.peerCommitment)
	if err != nil {
		// The commitment already passed verification, so its encoding
		// is necessarily valid.
		return err
	}

	shared := new(edwards25519.Point).ScalarMult(s.nonce, peerPoint)
	sharedBytes := crypto.EncodePoint(shared)
	key := crypto.SHA3Sum256(sharedBytes[:])

	keyName := keystore.SharedSecretName(s.config.LocalID, s.config.PeerID)
	keyHandle, err := keystore.OpenOrCreate(s.config.Keys, keyName, keystore.KeySize, key[:])
	if err != nil {
		return fmt.Errorf("interactive: store shared secret: %w", err)
	}
	if string(keyHandle.Bytes()) != string(key[:]) {
		if err := keyHandle.Update(key[:]); err != nil {
			return fmt.Errorf("interactive: refresh shared secret: %w", err)
		}
	}

	counter := keystore.EncodeCounter(1)
	counterName := keystore.SharedCounterName(s.config.LocalID, s.config.PeerID)
	counterHandle, err := keystore.OpenOrCreate(s.config.Keys, counterName, keystore.CounterSize, counter[:])
	if err != nil {
		return fmt.Errorf("interactive: store shared counter: %w", err)
	}
	if string(counterHandle.Bytes()) != string(counter[:]) {
		if err := counterHandle.Update(counter[:]); err != nil {
			return fmt.Errorf("interactive: reset shared counter: %w", err)
		}
	}
	return nil
}

// PeerCommitment exposes the stored peer commitment, as recorded by the
// last Receive call.
func (s *Session) PeerCommitment() [32]byte {
	return s.peerCommitment
}
