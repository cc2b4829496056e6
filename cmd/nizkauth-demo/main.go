// nizkauth-demo is a two-peer demonstration of the authentication
// library: a responder serving every flow over TCP and an initiator
// driving one of them.
//
// Usage:
//
//	nizkauth-demo -mode server [options]
//	nizkauth-demo -mode client -auth <flow> [options]
//
// Options:
//
//	-mode     server or client (default: server)
//	-id       local peer ID (default: 20000 server, 10000 client)
//	-peer     remote peer ID (default: the other default ID)
//	-addr     listen/dial address (default: 127.0.0.1:8000)
//	-store    path for persistent state (default: in-memory)
//	-auth     client flow: bootstrap, interactive, nizk, session, speed
//	-bench    proofs to send in the speed flow (default: 1000)
//	-mdns     advertise (server) or resolve (client) via mDNS
//
// Example:
//
//	nizkauth-demo -mode server -store /var/lib/nizkauth &
//	nizkauth-demo -mode client -store /var/lib/nizkauth-client -auth bootstrap
//	nizkauth-demo -mode client -store /var/lib/nizkauth-client -auth interactive
//	nizkauth-demo -mode client -store /var/lib/nizkauth-client -auth session
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/nizkauth/pkg/discovery"
	"github.com/backkem/nizkauth/pkg/intrusion"
	"github.com/backkem/nizkauth/pkg/keystore"
	"github.com/backkem/nizkauth/pkg/replay"
	"github.com/backkem/nizkauth/pkg/transport"
)

const (
	defaultServerID = 20000
	defaultClientID = 10000
	defaultAddr     = "127.0.0.1:8000"
)

type options struct {
	mode    string
	localID uint
	peerID  uint
	addr    string
	store   string
	auth    string
	bench   int
	mdns    bool
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.mode, "mode", "server", "server or client")
	flag.UintVar(&opts.localID, "id", 0, "local peer ID")
	flag.UintVar(&opts.peerID, "peer", 0, "remote peer ID")
	flag.StringVar(&opts.addr, "addr", defaultAddr, "listen/dial address")
	flag.StringVar(&opts.store, "store", "", "path for persistent state (empty: in-memory)")
	flag.StringVar(&opts.auth, "auth", "session", "client flow: bootstrap, interactive, nizk, session, speed")
	flag.IntVar(&opts.bench, "bench", 1000, "proofs to send in the speed flow")
	flag.BoolVar(&opts.mdns, "mdns", false, "advertise/resolve the server via mDNS")
	flag.Parse()

	if opts.localID == 0 {
		if opts.mode == "server" {
			opts.localID = defaultServerID
		} else {
			opts.localID = defaultClientID
		}
	}
	if opts.peerID == 0 {
		if opts.mode == "server" {
			opts.peerID = defaultClientID
		} else {
			opts.peerID = defaultServerID
		}
	}
	return opts
}

// buildState assembles the keystore, replay log and intrusion journal,
// file-backed when a store path is given.
func buildState(opts options) (keystore.Store, replay.Log, *intrusion.Monitor, error) {
	loggerFactory := logging.NewDefaultLoggerFactory()

	if opts.store == "" {
		monitor := intrusion.NewMonitor(intrusion.MonitorConfig{LoggerFactory: loggerFactory})
		return keystore.NewMemoryStore(), replay.NewMemoryLog(), monitor, nil
	}

	keys, err := keystore.NewFileStore(filepath.Join(opts.store, "keys"))
	if err != nil {
		return nil, nil, nil, err
	}
	replays, err := replay.NewFileLog(filepath.Join(opts.store, "commitments"))
	if err != nil {
		return nil, nil, nil, err
	}
	journal, err := intrusion.NewFileJournal(filepath.Join(opts.store, "intrusion"))
	if err != nil {
		return nil, nil, nil, err
	}
	monitor := intrusion.NewMonitor(intrusion.MonitorConfig{
		Journal:       journal,
		LoggerFactory: loggerFactory,
	})
	return keys, replays, monitor, nil
}

func main() {
	opts := parseFlags()

	keys, replays, monitor, err := buildState(opts)
	if err != nil {
		log.Fatalf("state: %v", err)
	}

	switch opts.mode {
	case "server":
		runServer(opts, keys, replays, monitor)
	case "client":
		runClient(opts, keys, replays)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", opts.mode)
		os.Exit(2)
	}
}

func runServer(opts options, keys keystore.Store, replays replay.Log, monitor *intrusion.Monitor) {
	loggerFactory := logging.NewDefaultLoggerFactory()

	server, err := transport.NewServer(transport.ServerConfig{
		ListenAddr:    opts.addr,
		LocalID:       uint32(opts.localID),
		PeerID:        uint32(opts.peerID),
		Keys:          keys,
		Replays:       replays,
		Monitor:       monitor,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		log.Fatalf("server: %v", err)
	}
	if err := server.Start(); err != nil {
		log.Fatalf("server: %v", err)
	}
	log.Printf("peer %d listening on %s", opts.localID, server.Addr())

	if opts.mdns {
		tcpAddr, ok := server.Addr().(*net.TCPAddr)
		if !ok {
			log.Fatalf("mdns: unexpected listener address %v", server.Addr())
		}
		advertiser := discovery.NewAdvertiser(discovery.AdvertiserConfig{
			PeerID:        uint32(opts.localID),
			Port:          tcpAddr.Port,
			LoggerFactory: loggerFactory,
		})
		if err := advertiser.Start(); err != nil {
			log.Fatalf("mdns: %v", err)
		}
		defer advertiser.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	<-ctx.Done()
	server.Close()
}

func runClient(opts options, keys keystore.Store, replays replay.Log) {
	loggerFactory := logging.NewDefaultLoggerFactory()

	client, err := transport.NewClient(transport.ClientConfig{
		LocalID:       uint32(opts.localID),
		PeerID:        uint32(opts.peerID),
		Keys:          keys,
		Replays:       replays,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		log.Fatalf("client: %v", err)
	}

	addr := opts.addr
	if opts.mdns {
		ctx, cancel := context.WithTimeout(context.Background(), discovery.DefaultBrowseTimeout)
		defer cancel()
		peer, err := discovery.NewResolver(discovery.ResolverConfig{LoggerFactory: loggerFactory}).
			Lookup(ctx, uint32(opts.peerID))
		if err != nil {
			log.Fatalf("mdns: %v", err)
		}
		addr = peer.Addr()
		log.Printf("resolved peer %d at %s", opts.peerID, addr)
	}

	conn, err := client.Dial(addr)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	switch opts.auth {
	case "bootstrap":
		if err := client.ExchangeKeys(conn); err != nil {
			log.Fatalf("key exchange: %v", err)
		}
		log.Printf("exchanged public keys with peer %d", opts.peerID)

	case "interactive":
		if err := client.InteractiveAuth(conn); err != nil {
			log.Fatalf("interactive auth: %v", err)
		}
		log.Printf("mutual authentication with peer %d succeeded, shared secret established", opts.peerID)

	case "nizk":
		if err := client.Authenticate(conn); err != nil {
			log.Fatalf("nizk auth: %v", err)
		}
		log.Printf("sent NIZK proof to peer %d", opts.peerID)

	case "session":
		key, err := client.MutualSessionKey(conn)
		if err != nil {
			log.Fatalf("session: %v", err)
		}
		log.Printf("mutual NIZK auth with peer %d succeeded, session key %x...", opts.peerID, key[:4])

	case "speed":
		start := time.Now()
		verified, err := client.SpeedTest(conn, opts.bench)
		if err != nil {
			log.Fatalf("speed test after %d proofs: %v", verified, err)
		}
		elapsed := time.Since(start)
		log.Printf("%d proofs verified in %v (%.1f/s)", verified, elapsed,
			float64(verified)/elapsed.Seconds())

	default:
		fmt.Fprintf(os.Stderr, "unknown auth flow %q\n", opts.auth)
		os.Exit(2)
	}
}
