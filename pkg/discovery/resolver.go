package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// DefaultBrowseTimeout bounds a browse operation.
const DefaultBrowseTimeout = 5 * time.Second

// ResolvedPeer is one discovered peer.
type ResolvedPeer struct {
	// PeerID is the identity from the TXT record.
	PeerID uint32

	// HostName is the mDNS target host.
	HostName string

	// Port is the advertised transport port.
	Port int

	// IPs are the resolved addresses, IPv4 first.
	IPs []net.IP
}

// Addr returns a dialable host:port for the peer, or "" when no
// address resolved.
func (r *ResolvedPeer) Addr() string {
	if len(r.IPs) == 0 {
		return ""
	}
	return net.JoinHostPort(r.IPs[0].String(), fmt.Sprintf("%d", r.Port))
}

// MDNSBrowser is the interface for mDNS browsing, allowing dependency
// injection in tests.
type MDNSBrowser interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// zeroconfBrowser is the production implementation.
type zeroconfBrowser struct{}

func (zeroconfBrowser) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return err
	}
	return resolver.Browse(ctx, service, domain, entries)
}

// ResolverConfig holds configuration for the Resolver.
type ResolverConfig struct {
	// Browser overrides the mDNS browser. If nil, zeroconf is used.
	Browser MDNSBrowser

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Resolver browses the network for advertised peers.
type Resolver struct {
	browser MDNSBrowser
	log     logging.LeveledLogger
}

// NewResolver creates a Resolver.
func NewResolver(config ResolverConfig) *Resolver {
	browser := config.Browser
	if browser == nil {
		browser = zeroconfBrowser{}
	}
	r := &Resolver{browser: browser}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("discovery")
	}
	return r
}

// Lookup browses until the given peer is found or the context expires.
func (r *Resolver) Lookup(ctx context.Context, peerID uint32) (*ResolvedPeer, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 8)
	if err := r.browser.Browse(ctx, ServiceName, DefaultDomain, entries); err != nil {
		return nil, fmt.Errorf("discovery: browse: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("discovery: peer %d not found: %w", peerID, ctx.Err())
		case entry, ok := <-entries:
			if !ok {
				return nil, fmt.Errorf("discovery: peer %d not found", peerID)
			}
			peer := entryToPeer(entry)
			if peer == nil || peer.PeerID != peerID {
				continue
			}
			if r.log != nil {
				r.log.Infof("resolved peer %d at %s", peerID, peer.Addr())
			}
			return peer, nil
		}
	}
}

// entryToPeer converts a service entry, or returns nil when the entry
// does not carry a peer ID.
func entryToPeer(entry *zeroconf.ServiceEntry) *ResolvedPeer {
	peerID, ok := DecodeTXT(entry.Text)
	if !ok {
		return nil
	}

	ips := make([]net.IP, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	ips = append(ips, entry.AddrIPv4...)
	ips = append(ips, entry.AddrIPv6...)

	return &ResolvedPeer{
		PeerID:   peerID,
		HostName: entry.HostName,
		Port:     entry.Port,
		IPs:      ips,
	}
}
