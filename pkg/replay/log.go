// Package replay tracks the Schnorr commitments observed from each peer
// so that a transcript can never be replayed. The log is append-only: a
// commitment, once seen, stays recorded for the lifetime of the host.
package replay

import "sync"

// Log records observed peer commitments.
type Log interface {
	// Observe atomically tests and records a commitment seen from the
	// peer. It returns fresh=true exactly once per (peer, commitment)
	// pair; concurrent observers of the same commitment cannot both see
	// fresh.
	Observe(peerID uint32, commitment [32]byte) (fresh bool, err error)
}

// MemoryLog is an in-memory Log implementation.
// Useful for testing and development. Data is lost when the process
// exits, which bounds replay protection to the process lifetime.
type MemoryLog struct {
	mu   sync.Mutex
	seen map[uint32]map[[32]byte]struct{}
}

// NewMemoryLog creates a new in-memory commitment log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		seen: make(map[uint32]map[[32]byte]struct{}),
	}
}

// Observe tests and records the commitment.
func (l *MemoryLog) Observe(peerID uint32, commitment [32]byte) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	peerSet, ok := l.seen[peerID]
	if !ok {
		peerSet = make(map[[32]byte]struct{})
		l.seen[peerID] = peerSet
	}
	if _, exists := peerSet[commitment]; exists {
		return false, nil
	}
	peerSet[commitment] = struct{}{}
	return true, nil
}

// Verify MemoryLog implements Log.
var _ Log = (*MemoryLog)(nil)
