// Package transport carries protocol records over TCP: a server with
// one handler goroutine per connection, a client driving the initiator
// side of each flow, and an IP block list consulted on the accept path.
package transport

import (
	"net"
	"sync"
	"time"
)

// DefaultBlockDuration is how long a flooding source stays blocked.
const DefaultBlockDuration = 10 * time.Second

// Blocklist tracks blocked source IPs. Entries expire lazily: the
// expiry check runs when the IP is next consulted, so no goroutine
// sleeps while a block is in force.
type Blocklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

// NewBlocklist creates a block list with the given block duration;
// zero means DefaultBlockDuration.
func NewBlocklist(ttl time.Duration) *Blocklist {
	if ttl <= 0 {
		ttl = DefaultBlockDuration
	}
	return &Blocklist{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Block records the IP as blocked from now.
func (b *Blocklist) Block(ip string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[ip] = b.now()
}

// IsBlocked reports whether the IP is currently blocked, dropping the
// entry once its block duration has passed.
func (b *Blocklist) IsBlocked(ip string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	start, ok := b.entries[ip]
	if !ok {
		return false
	}
	if b.now().Sub(start) >= b.ttl {
		delete(b.entries, ip)
		return false
	}
	return true
}

// remoteIP extracts the host part of a connection address. Addresses
// without a port (test pipes) are used as-is.
func remoteIP(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
