// Package discovery publishes and resolves peers over DNS-SD/mDNS so
// that demo deployments can find each other without static addressing.
// Each peer advertises the _nizkauth._tcp service with its numeric ID
// in the TXT record.
package discovery

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// Service parameters.
const (
	// ServiceName is the DNS-SD service type peers advertise under.
	ServiceName = "_nizkauth._tcp"

	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."

	// txtKeyPeerID is the TXT key carrying the advertised peer ID.
	txtKeyPeerID = "id"
)

// Discovery errors.
var (
	ErrClosed         = errors.New("discovery: advertiser closed")
	ErrAlreadyStarted = errors.New("discovery: already advertising")
)

// MDNSServer is the interface for mDNS service registration.
// This allows for dependency injection in tests.
type MDNSServer interface {
	// Shutdown stops the server.
	Shutdown()
}

// MDNSServerFactory creates MDNSServer instances.
type MDNSServerFactory interface {
	// Register creates a new mDNS server for the given service.
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error)
}

// zeroconfServerFactory is the production implementation using
// grandcat/zeroconf.
type zeroconfServerFactory struct{}

func (zeroconfServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// AdvertiserConfig holds configuration for the Advertiser.
type AdvertiserConfig struct {
	// PeerID is the identity to advertise.
	PeerID uint32

	// Port is the transport port to advertise.
	Port int

	// Interfaces specifies which network interfaces to advertise on.
	// If nil, all interfaces are used.
	Interfaces []net.Interface

	// ServerFactory is the factory for creating mDNS servers.
	// If nil, the default zeroconf factory is used.
	ServerFactory MDNSServerFactory

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Advertiser publishes this peer's service record to the network.
type Advertiser struct {
	config  AdvertiserConfig
	factory MDNSServerFactory
	log     logging.LeveledLogger

	server MDNSServer
	closed bool
}

// NewAdvertiser creates an Advertiser with the given configuration.
func NewAdvertiser(config AdvertiserConfig) *Advertiser {
	factory := config.ServerFactory
	if factory == nil {
		factory = zeroconfServerFactory{}
	}
	a := &Advertiser{
		config:  config,
		factory: factory,
	}
	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("discovery")
	}
	return a
}

// Start begins advertising the peer.
func (a *Advertiser) Start() error {
	if a.closed {
		return ErrClosed
	}
	if a.server != nil {
		return ErrAlreadyStarted
	}

	instance, err := randomInstanceName()
	if err != nil {
		return fmt.Errorf("discovery: generate instance name: %w", err)
	}
	txt := EncodeTXT(a.config.PeerID)

	server, err := a.factory.Register(instance, ServiceName, DefaultDomain, a.config.Port, txt, a.config.Interfaces)
	if err != nil {
		return fmt.Errorf("discovery: mDNS registration failed: %w", err)
	}
	a.server = server

	if a.log != nil {
		a.log.Infof("advertising peer %d on port %d as %s", a.config.PeerID, a.config.Port, instance)
	}
	return nil
}

// Close stops advertising.
func (a *Advertiser) Close() {
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	a.closed = true
}

// EncodeTXT builds the TXT record for a peer ID.
func EncodeTXT(peerID uint32) []string {
	return []string{fmt.Sprintf("%s=%d", txtKeyPeerID, peerID)}
}

// DecodeTXT extracts the peer ID from a TXT record.
func DecodeTXT(txt []string) (uint32, bool) {
	for _, entry := range txt {
		key, value, found := strings.Cut(entry, "=")
		if !found || key != txtKeyPeerID {
			continue
		}
		id, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return 0, false
		}
		return uint32(id), true
	}
	return 0, false
}

// randomInstanceName generates a random DNS-SD instance name so that
// restarts do not collide with stale records.
func randomInstanceName() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
