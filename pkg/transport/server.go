package transport

import (
	"bufio"
	"fmt"
	"net"
	"sync"

	"github.com/pion/logging"

	"github.com/backkem/nizkauth/pkg/auth/interactive"
	"github.com/backkem/nizkauth/pkg/auth/nizk"
	"github.com/backkem/nizkauth/pkg/crypto"
	"github.com/backkem/nizkauth/pkg/intrusion"
	"github.com/backkem/nizkauth/pkg/keystore"
	"github.com/backkem/nizkauth/pkg/replay"
	"github.com/backkem/nizkauth/pkg/wire"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Listener is an optional pre-existing listener to use.
	// If nil, a new listener is created on ListenAddr.
	Listener net.Listener

	// ListenAddr is the address to listen on (e.g., ":8000").
	// Ignored if Listener is provided; empty means an ephemeral port.
	ListenAddr string

	// LocalID is this server's peer identity.
	LocalID uint32

	// PeerID is the identity the connecting client is expected to
	// claim; the demo deployment pairs exactly two peers.
	PeerID uint32

	// Keys holds long-term keys and shared secrets/counters. Required.
	Keys keystore.Store

	// Replays is the commitment log for interactive verification.
	// If nil, an in-memory log is used.
	Replays replay.Log

	// Monitor classifies rejected proofs. If nil, an in-memory monitor
	// is created.
	Monitor *intrusion.Monitor

	// Blocklist holds flooding sources. If nil, a list with the
	// default block duration is created.
	Blocklist *Blocklist

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Server accepts connections and answers the responder side of every
// authentication flow.
type Server struct {
	listener  net.Listener
	config    ServerConfig
	blocklist *Blocklist
	monitor   *intrusion.Monitor
	replays   replay.Log
	log       logging.LeveledLogger

	closeCh chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewServer creates a server with the given configuration.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Keys == nil {
		return nil, ErrNoKeystore
	}

	s := &Server{
		listener:  config.Listener,
		config:    config,
		blocklist: config.Blocklist,
		monitor:   config.Monitor,
		replays:   config.Replays,
		closeCh:   make(chan struct{}),
	}
	if s.blocklist == nil {
		s.blocklist = NewBlocklist(0)
	}
	if s.monitor == nil {
		s.monitor = intrusion.NewMonitor(intrusion.MonitorConfig{LoggerFactory: config.LoggerFactory})
	}
	if s.replays == nil {
		s.replays = replay.NewMemoryLog()
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("transport")
	}

	if s.listener == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0"
		}
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("transport: listen: %w", err)
		}
		s.listener = listener
	}
	return s, nil
}

// Addr returns the listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Blocklist returns the server's block list.
func (s *Server) Blocklist() *Blocklist {
	return s.blocklist
}

// Start begins accepting connections, one handler goroutine each.
// Blocked sources are refused on the accept path.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.closeCh:
					return
				default:
				}
				if s.log != nil {
					s.log.Warnf("accept: %v", err)
				}
				continue
			}

			if s.blocklist.IsBlocked(remoteIP(conn.RemoteAddr())) {
				if s.log != nil {
					s.log.Infof("refused blocked source %s", conn.RemoteAddr())
				}
				conn.Close()
				continue
			}

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer conn.Close()
				if err := s.Serve(conn); err != nil {
					if s.log != nil {
						s.log.Warnf("handler %s: %v", conn.RemoteAddr(), err)
					}
				}
			}()
		}
	}()
	return nil
}

// Close stops the listener and waits for the handlers to drain.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.closeCh)
	err := s.listener.Close()
	s.wg.Wait()
	return err
}

// Serve handles a single connection. It is exported so tests and
// alternative accept loops can drive a connection directly.
func (s *Server) Serve(conn net.Conn) error {
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	rec, err := wire.ReadRecord(r)
	if err != nil {
		return err
	}

	switch wire.AuthType(rec.AuthType) {
	case wire.AuthInteractive:
		return s.serveInteractive(r, w, rec)
	case wire.AuthNIZKSingle:
		return s.serveNIZKSingle(conn, rec)
	case wire.AuthNIZKMutual:
		return s.serveNIZKMutual(w, rec)
	case wire.AuthKeyExchange:
		return s.serveKeyExchange(w, rec)
	case wire.AuthSpeedTest:
		return s.serveSpeedTest(r, w, rec)
	default:
		return fmt.Errorf("%w: auth type %d", ErrUnexpectedRecord, rec.AuthType)
	}
}

// serveInteractive answers the receiver side of the four-message
// handshake, then verifies the initiator's transcript.
func (s *Server) serveInteractive(r *bufio.Reader, w *bufio.Writer, first *wire.DataExchange) error {
	session, err := interactive.NewSession(interactive.Config{
		LocalID: s.config.LocalID,
		PeerID:  s.config.PeerID,
		Role:    interactive.RoleReceiver,
		Keys:    s.config.Keys,
		Replays: s.replays,
	})
	if err != nil {
		return err
	}

	// Message 1 in, message 2 out.
	session.Receive(interactive.Stage(first.RequestType), first.Value1, first.Value2)
	if err := s.sendNext(w, session); err != nil {
		return err
	}

	// Message 3 in, message 4 out.
	rec, err := wire.ReadRecord(r)
	if err != nil {
		return err
	}
	if status := session.Receive(interactive.Stage(rec.RequestType), rec.Value1, rec.Value2); status == interactive.StatusWrongRequestID {
		return fmt.Errorf("%w: request type %d", ErrUnexpectedRecord, rec.RequestType)
	}
	if err := s.sendNext(w, session); err != nil {
		return err
	}

	ok, err := session.VerifyProof()
	if err != nil {
		return err
	}
	if s.log != nil {
		s.log.Infof("interactive auth of peer %d: accepted=%v", s.config.PeerID, ok)
	}
	if !ok {
		return ErrRejected
	}
	return nil
}

func (s *Server) sendNext(w *bufio.Writer, session *interactive.Session) error {
	v1, v2, reqType, err := session.GenerateNext()
	if err != nil {
		return err
	}
	return wire.WriteRecord(w, &wire.DataExchange{
		AuthType:    uint8(wire.AuthInteractive),
		RequestType: uint8(reqType),
		Value1:      v1,
		Value2:      v2,
	})
}

// serveNIZKSingle verifies one single-sided proof. On rejection the
// intrusion status decides whether the source is blocked.
func (s *Server) serveNIZKSingle(conn net.Conn, rec *wire.DataExchange) error {
	proof, ok := rec.Proof()
	if !ok {
		return fmt.Errorf("%w: incomplete proof", ErrUnexpectedRecord)
	}

	accepted, err := nizk.Verify(s.config.Keys, s.monitor, s.config.LocalID, s.config.PeerID, proof)
	if err != nil {
		return err
	}
	if s.log != nil {
		s.log.Infof("NIZK auth of peer %d: accepted=%v", s.config.PeerID, accepted)
	}
	if accepted {
		return nil
	}

	asym, sym, dos, err := s.monitor.CheckIntrusion(s.config.PeerID)
	if err != nil {
		return err
	}
	if s.log != nil {
		s.log.Warnf("peer %d intrusion: asym=%v sym=%v dos=%v", s.config.PeerID, asym, sym, dos)
	}
	if dos {
		ip := remoteIP(conn.RemoteAddr())
		s.blocklist.Block(ip)
		if s.log != nil {
			s.log.Warnf("blocking flooding source %s", ip)
		}
	}
	return ErrRejected
}

// serveNIZKMutual answers the receiver side of the mutual exchange and
// derives the session key.
func (s *Server) serveNIZKMutual(w *bufio.Writer, rec *wire.DataExchange) error {
	peerProof, ok := rec.Proof()
	if !ok {
		return fmt.Errorf("%w: incomplete proof", ErrUnexpectedRecord)
	}

	session, ownProof, err := nizk.NewSession(nizk.Config{
		LocalID: s.config.LocalID,
		PeerID:  s.config.PeerID,
		Keys:    s.config.Keys,
		Monitor: s.monitor,
	}, &peerProof)
	if err != nil {
		return err
	}

	accepted, err := session.VerifyProof()
	if err != nil {
		return err
	}
	if err := wire.WriteRecord(w, wire.ProofRecord(wire.AuthNIZKMutual, ownProof)); err != nil {
		return err
	}
	if !accepted {
		return ErrRejected
	}

	if _, err := session.SessionKey(); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Infof("NIZK mutual auth with peer %d complete", s.config.PeerID)
	}
	return nil
}

// serveKeyExchange stores the client's public key and answers with a
// freshly generated own key pair. This is the trusted bootstrap flow
// and must only be enabled during provisioning.
func (s *Server) serveKeyExchange(w *bufio.Writer, rec *wire.DataExchange) error {
	if err := storeOrReplace(s.config.Keys, keystore.PublicKeyName(s.config.PeerID), rec.Value1[:]); err != nil {
		return err
	}

	pub, priv, err := crypto.KeyGen()
	if err != nil {
		return err
	}
	if err := storeOrReplace(s.config.Keys, keystore.PublicKeyName(s.config.LocalID), pub[:]); err != nil {
		return err
	}
	if err := storeOrReplace(s.config.Keys, keystore.PrivateKeyName(s.config.LocalID), priv[:]); err != nil {
		return err
	}

	return wire.WriteRecord(w, &wire.DataExchange{
		AuthType: uint8(wire.AuthKeyExchange),
		Value1:   pub,
	})
}

// serveSpeedTest verifies proofs without intrusion logging, answering
// each accepted proof with the literal reply line, until the client
// hangs up. A rejected proof ends the flow without a reply.
func (s *Server) serveSpeedTest(r *bufio.Reader, w *bufio.Writer, rec *wire.DataExchange) error {
	for {
		proof, ok := rec.Proof()
		if !ok {
			return fmt.Errorf("%w: incomplete proof", ErrUnexpectedRecord)
		}
		accepted, err := nizk.Verify(s.config.Keys, nil, s.config.LocalID, s.config.PeerID, proof)
		if err != nil {
			return err
		}
		if !accepted {
			return ErrRejected
		}
		if _, err := w.WriteString(wire.SpeedTestReply + "\n"); err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return err
		}

		rec, err = wire.ReadRecord(r)
		if err != nil {
			return nil // client done
		}
	}
}

// storeOrReplace creates the slot or overwrites an existing value.
func storeOrReplace(keys keystore.Store, name string, value []byte) error {
	h, err := keystore.OpenOrCreate(keys, name, len(value), value)
	if err != nil {
		return err
	}
	if string(h.Bytes()) != string(value) {
		return h.Update(value)
	}
	return nil
}
