package transport

import (
	"bufio"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/backkem/nizkauth/pkg/crypto"
	"github.com/backkem/nizkauth/pkg/keystore"
	"github.com/backkem/nizkauth/pkg/wire"
)

const (
	serverID uint32 = 20000
	clientID uint32 = 10000
)

// bootstrapKeys installs key pairs for both peers into the store.
func bootstrapKeys(t *testing.T, store keystore.Store, ids ...uint32) {
	t.Helper()
	for _, id := range ids {
		pub, priv, err := crypto.KeyGen()
		if err != nil {
			t.Fatalf("KeyGen: %v", err)
		}
		if err := storeOrReplace(store, keystore.PublicKeyName(id), pub[:]); err != nil {
			t.Fatalf("store public key: %v", err)
		}
		if err := storeOrReplace(store, keystore.PrivateKeyName(id), priv[:]); err != nil {
			t.Fatalf("store private key: %v", err)
		}
	}
}

// bootstrapSharedState installs a symmetric shared secret and counters,
// as the interactive handshake would have left them.
func bootstrapSharedState(t *testing.T, store keystore.Store) {
	t.Helper()
	secret, err := crypto.Random32()
	if err != nil {
		t.Fatalf("Random32: %v", err)
	}
	counter := keystore.EncodeCounter(1)
	for _, pair := range [][2]uint32{{clientID, serverID}, {serverID, clientID}} {
		if err := storeOrReplace(store, keystore.SharedSecretName(pair[0], pair[1]), secret[:]); err != nil {
			t.Fatalf("store shared secret: %v", err)
		}
		if err := storeOrReplace(store, keystore.SharedCounterName(pair[0], pair[1]), counter[:]); err != nil {
			t.Fatalf("store shared counter: %v", err)
		}
	}
}

func newTestPair(t *testing.T, store keystore.Store) (*Server, *Client) {
	t.Helper()
	// A pre-connected listener is not needed: tests drive Serve directly.
	srv, err := NewServer(ServerConfig{
		Listener: nopListener{},
		LocalID:  serverID,
		PeerID:   clientID,
		Keys:     store,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	client, err := NewClient(ClientConfig{
		LocalID: clientID,
		PeerID:  serverID,
		Keys:    store,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return srv, client
}

// nopListener satisfies the Server's listener without a real socket.
type nopListener struct{}

func (nopListener) Accept() (net.Conn, error) { return nil, errors.New("not listening") }
func (nopListener) Close() error              { return nil }
func (nopListener) Addr() net.Addr            { return &net.TCPAddr{} }

func TestEndToEnd_InteractiveAuth(t *testing.T) {
	store := keystore.NewMemoryStore()
	bootstrapKeys(t, store, clientID, serverID)
	srv, client := newTestPair(t, store)

	pipe := NewPipe()
	defer pipe.Close()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(pipe.Conn1()) }()

	if err := client.InteractiveAuth(pipe.Conn0()); err != nil {
		t.Fatalf("InteractiveAuth: %v", err)
	}
	if err := <-serveErr; err != nil {
		t.Fatalf("Serve: %v", err)
	}

	// Both directions hold the same fresh shared secret.
	keyCS, _, err := keystore.ReadKey32(store, keystore.SharedSecretName(clientID, serverID))
	if err != nil {
		t.Fatalf("read shared secret: %v", err)
	}
	keySC, _, err := keystore.ReadKey32(store, keystore.SharedSecretName(serverID, clientID))
	if err != nil {
		t.Fatalf("read shared secret: %v", err)
	}
	if keyCS != keySC {
		t.Error("shared secrets differ after interactive auth")
	}
}

func TestEndToEnd_MutualSessionKey(t *testing.T) {
	store := keystore.NewMemoryStore()
	bootstrapKeys(t, store, clientID, serverID)
	bootstrapSharedState(t, store)
	srv, client := newTestPair(t, store)

	pipe := NewPipe()
	defer pipe.Close()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(pipe.Conn1()) }()

	key, err := client.MutualSessionKey(pipe.Conn0())
	if err != nil {
		t.Fatalf("MutualSessionKey: %v", err)
	}
	if key == ([32]byte{}) {
		t.Error("session key is the zero sentinel")
	}
	if err := <-serveErr; err != nil {
		t.Fatalf("Serve: %v", err)
	}

	// The ratchet left both counters at 3.
	counter, _, err := keystore.ReadCounter(store, serverID, clientID)
	if err != nil {
		t.Fatalf("read counter: %v", err)
	}
	if counter != 3 {
		t.Errorf("server counter = %d, want 3", counter)
	}
}

func TestEndToEnd_SingleSidedAuth(t *testing.T) {
	store := keystore.NewMemoryStore()
	bootstrapKeys(t, store, clientID, serverID)
	bootstrapSharedState(t, store)
	srv, client := newTestPair(t, store)

	pipe := NewPipe()
	defer pipe.Close()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(pipe.Conn1()) }()

	if err := client.Authenticate(pipe.Conn0()); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := <-serveErr; err != nil {
		t.Fatalf("Serve: %v", err)
	}
}

func TestEndToEnd_KeyExchange(t *testing.T) {
	store := keystore.NewMemoryStore()
	srv, client := newTestPair(t, store)

	pipe := NewPipe()
	defer pipe.Close()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(pipe.Conn1()) }()

	if err := client.ExchangeKeys(pipe.Conn0()); err != nil {
		t.Fatalf("ExchangeKeys: %v", err)
	}
	if err := <-serveErr; err != nil {
		t.Fatalf("Serve: %v", err)
	}

	// Both public keys are now present and match priv·G.
	for _, id := range []uint32{clientID, serverID} {
		pub, _, err := keystore.ReadKey32(store, keystore.PublicKeyName(id))
		if err != nil {
			t.Fatalf("read public key %d: %v", id, err)
		}
		priv, _, err := keystore.ReadKey32(store, keystore.PrivateKeyName(id))
		if err != nil {
			t.Fatalf("read private key %d: %v", id, err)
		}
		want := crypto.EncodePoint(crypto.ScalarBaseMult(crypto.ScalarFromBytes(priv)))
		if pub != want {
			t.Errorf("public key %d does not match its private key", id)
		}
	}
}

func TestEndToEnd_SpeedTest(t *testing.T) {
	store := keystore.NewMemoryStore()
	bootstrapKeys(t, store, clientID, serverID)
	bootstrapSharedState(t, store)
	srv, client := newTestPair(t, store)

	pipe := NewPipe()
	defer pipe.Close()

	go srv.Serve(pipe.Conn1())

	verified, err := client.SpeedTest(pipe.Conn0(), 5)
	if err != nil {
		t.Fatalf("SpeedTest: %v", err)
	}
	if verified != 5 {
		t.Errorf("verified %d proofs, want 5", verified)
	}
	pipe.Conn0().Close()
}

// floodRecord is a random proof triple that fails both NIZK checks.
func floodRecord(t *testing.T) *wire.DataExchange {
	t.Helper()
	v1, err := crypto.Random32()
	if err != nil {
		t.Fatalf("Random32: %v", err)
	}
	v2, err := crypto.Random32()
	if err != nil {
		t.Fatalf("Random32: %v", err)
	}
	v3, err := crypto.Random32()
	if err != nil {
		t.Fatalf("Random32: %v", err)
	}
	return &wire.DataExchange{
		AuthType: uint8(wire.AuthNIZKSingle),
		Value1:   v1,
		Value2:   &v2,
		Value3:   &v3,
	}
}

func TestServe_FloodBlocksSource(t *testing.T) {
	store := keystore.NewMemoryStore()
	bootstrapKeys(t, store, clientID, serverID)
	bootstrapSharedState(t, store)
	srv, _ := newTestPair(t, store)

	// A burst of random proofs, far above the tolerated rejection rate.
	for i := 0; i < 60; i++ {
		rec := floodRecord(t)
		serverConn, clientConn := net.Pipe()
		go func() {
			wire.WriteRecord(bufio.NewWriter(clientConn), rec)
			clientConn.Close()
		}()
		if err := srv.Serve(serverConn); !errors.Is(err, ErrRejected) {
			t.Fatalf("Serve(garbage) = %v, want ErrRejected", err)
		}
		serverConn.Close()
	}

	_, _, dos, err := srv.monitor.CheckIntrusion(clientID)
	if err != nil {
		t.Fatalf("CheckIntrusion: %v", err)
	}
	if !dos {
		t.Fatal("flood not flagged after 60 rejections in a burst")
	}
	if !srv.Blocklist().IsBlocked("pipe") {
		t.Error("flooding source not on the block list")
	}
}

func TestServer_RefusesBlockedSource(t *testing.T) {
	store := keystore.NewMemoryStore()
	bootstrapKeys(t, store, clientID, serverID)

	srv, err := NewServer(ServerConfig{
		ListenAddr: "127.0.0.1:0",
		LocalID:    serverID,
		PeerID:     clientID,
		Keys:       store,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	srv.Blocklist().Block("127.0.0.1")

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// The accept path closes the connection without serving it.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Error("blocked connection was served")
	}
}
