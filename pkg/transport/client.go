package transport

import (
	"bufio"
	"fmt"
	"net"
	"strings"

	"github.com/pion/logging"

	"github.com/backkem/nizkauth/pkg/auth/interactive"
	"github.com/backkem/nizkauth/pkg/auth/nizk"
	"github.com/backkem/nizkauth/pkg/crypto"
	"github.com/backkem/nizkauth/pkg/keystore"
	"github.com/backkem/nizkauth/pkg/replay"
	"github.com/backkem/nizkauth/pkg/wire"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// LocalID and PeerID are this side's and the server's identities.
	LocalID uint32
	PeerID  uint32

	// Keys holds long-term keys and shared secrets/counters. Required.
	Keys keystore.Store

	// Replays is the commitment log for interactive verification.
	// If nil, an in-memory log is used.
	Replays replay.Log

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Client drives the initiator side of the authentication flows over a
// connection supplied by the caller.
type Client struct {
	config  ClientConfig
	replays replay.Log
	log     logging.LeveledLogger
}

// NewClient creates a client with the given configuration.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Keys == nil {
		return nil, ErrNoKeystore
	}
	c := &Client{
		config:  config,
		replays: config.Replays,
	}
	if c.replays == nil {
		c.replays = replay.NewMemoryLog()
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("transport")
	}
	return c, nil
}

// Dial opens a TCP connection to the server.
func (c *Client) Dial(addr string) (net.Conn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return conn, nil
}

// InteractiveAuth runs the initiator side of the four-message
// handshake, establishing the shared secret and counter on success.
func (c *Client) InteractiveAuth(conn net.Conn) error {
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	session, err := interactive.NewSession(interactive.Config{
		LocalID: c.config.LocalID,
		PeerID:  c.config.PeerID,
		Role:    interactive.RoleInitiator,
		Keys:    c.config.Keys,
		Replays: c.replays,
	})
	if err != nil {
		return err
	}

	// Messages 1 and 3 out, 2 and 4 in.
	for round := 0; round < 2; round++ {
		v1, v2, reqType, err := session.GenerateNext()
		if err != nil {
			return err
		}
		err = wire.WriteRecord(w, &wire.DataExchange{
			AuthType:    uint8(wire.AuthInteractive),
			RequestType: uint8(reqType),
			Value1:      v1,
			Value2:      v2,
		})
		if err != nil {
			return err
		}

		rec, err := wire.ReadRecord(r)
		if err != nil {
			return err
		}
		if status := session.Receive(interactive.Stage(rec.RequestType), rec.Value1, rec.Value2); status == interactive.StatusWrongRequestID {
			return fmt.Errorf("%w: request type %d", ErrUnexpectedRecord, rec.RequestType)
		}
	}

	ok, err := session.VerifyProof()
	if err != nil {
		return err
	}
	if c.log != nil {
		c.log.Infof("interactive auth with peer %d: accepted=%v", c.config.PeerID, ok)
	}
	if !ok {
		return ErrRejected
	}
	return nil
}

// Authenticate sends one single-sided NIZK proof. The server sends no
// answer in this flow; rejection only shows up in its intrusion state.
func (c *Client) Authenticate(conn net.Conn) error {
	proof, err := nizk.Prove(c.config.Keys, c.config.LocalID, c.config.PeerID)
	if err != nil {
		return err
	}
	return wire.WriteRecord(bufio.NewWriter(conn), wire.ProofRecord(wire.AuthNIZKSingle, proof))
}

// MutualSessionKey runs the initiator side of the one-round-trip NIZK
// exchange and returns the derived session key.
func (c *Client) MutualSessionKey(conn net.Conn) ([32]byte, error) {
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	session, ownProof, err := nizk.NewSession(nizk.Config{
		LocalID: c.config.LocalID,
		PeerID:  c.config.PeerID,
		Keys:    c.config.Keys,
	}, nil)
	if err != nil {
		return [32]byte{}, err
	}

	if err := wire.WriteRecord(w, wire.ProofRecord(wire.AuthNIZKMutual, ownProof)); err != nil {
		return [32]byte{}, err
	}
	rec, err := wire.ReadRecord(r)
	if err != nil {
		return [32]byte{}, err
	}
	peerProof, ok := rec.Proof()
	if !ok {
		return [32]byte{}, fmt.Errorf("%w: incomplete proof", ErrUnexpectedRecord)
	}
	session.AddPeerProof(peerProof)

	accepted, err := session.VerifyProof()
	if err != nil {
		return [32]byte{}, err
	}
	if !accepted {
		return [32]byte{}, ErrRejected
	}
	return session.SessionKey()
}

// ExchangeKeys generates a fresh own key pair, sends the public part
// and stores the server's answering public key. Trusted bootstrap only.
func (c *Client) ExchangeKeys(conn net.Conn) error {
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	pub, priv, err := crypto.KeyGen()
	if err != nil {
		return err
	}
	if err := storeOrReplace(c.config.Keys, keystore.PublicKeyName(c.config.LocalID), pub[:]); err != nil {
		return err
	}
	if err := storeOrReplace(c.config.Keys, keystore.PrivateKeyName(c.config.LocalID), priv[:]); err != nil {
		return err
	}

	err = wire.WriteRecord(w, &wire.DataExchange{
		AuthType: uint8(wire.AuthKeyExchange),
		Value1:   pub,
	})
	if err != nil {
		return err
	}

	rec, err := wire.ReadRecord(r)
	if err != nil {
		return err
	}
	return storeOrReplace(c.config.Keys, keystore.PublicKeyName(c.config.PeerID), rec.Value1[:])
}

// SpeedTest sends count proofs in sequence, awaiting the literal reply
// line for each, and returns the number of confirmed verifications.
func (c *Client) SpeedTest(conn net.Conn, count int) (int, error) {
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	verified := 0
	for i := 0; i < count; i++ {
		proof, err := nizk.Prove(c.config.Keys, c.config.LocalID, c.config.PeerID)
		if err != nil {
			return verified, err
		}
		if err := wire.WriteRecord(w, wire.ProofRecord(wire.AuthSpeedTest, proof)); err != nil {
			return verified, err
		}

		line, err := r.ReadString('\n')
		if err != nil {
			return verified, fmt.Errorf("transport: read speed-test reply: %w", err)
		}
		if strings.TrimSpace(line) != wire.SpeedTestReply {
			return verified, fmt.Errorf("%w: reply %q", ErrUnexpectedRecord, line)
		}
		verified++
	}
	return verified, nil
}
