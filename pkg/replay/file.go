package replay

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	logFileMode os.FileMode = 0o600
	logDirMode  os.FileMode = 0o700
)

// FileLog is a Log backed by one append-only file per peer. Each line is
// the hex encoding of one observed commitment. The per-peer set is
// loaded into memory on first touch, so membership tests after startup
// are constant-time; the file itself is only ever appended to.
type FileLog struct {
	dir string

	mu   sync.Mutex
	seen map[uint32]map[[32]byte]struct{}
}

// NewFileLog creates a file-backed commitment log rooted at dir.
func NewFileLog(dir string) (*FileLog, error) {
	if err := os.MkdirAll(dir, logDirMode); err != nil {
		return nil, fmt.Errorf("replay: create log directory: %w", err)
	}
	return &FileLog{
		dir:  dir,
		seen: make(map[uint32]map[[32]byte]struct{}),
	}, nil
}

func (l *FileLog) peerPath(peerID uint32) string {
	return filepath.Join(l.dir, fmt.Sprintf("commitments_%d.txt", peerID))
}

// Observe tests and records the commitment, persisting it before
// reporting fresh.
func (l *FileLog) Observe(peerID uint32, commitment [32]byte) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	peerSet, ok := l.seen[peerID]
	if !ok {
		loaded, err := l.loadPeer(peerID)
		if err != nil {
			return false, err
		}
		peerSet = loaded
		l.seen[peerID] = peerSet
	}

	if _, exists := peerSet[commitment]; exists {
		return false, nil
	}

	if err := l.appendPeer(peerID, commitment); err != nil {
		return false, err
	}
	peerSet[commitment] = struct{}{}
	return true, nil
}

// loadPeer reads the peer's commitment file into a set. A missing file
// yields an empty set.
func (l *FileLog) loadPeer(peerID uint32) (map[[32]byte]struct{}, error) {
	set := make(map[[32]byte]struct{})

	f, err := os.Open(l.peerPath(peerID))
	if os.IsNotExist(err) {
		return set, nil
	}
	if err != nil {
		return nil, fmt.Errorf("replay: open commitment log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		raw, err := hex.DecodeString(line)
		if err != nil || len(raw) != 32 {
			return nil, fmt.Errorf("replay: corrupt commitment log entry %q", line)
		}
		var c [32]byte
		copy(c[:], raw)
		set[c] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("replay: read commitment log: %w", err)
	}
	return set, nil
}

// appendPeer appends one commitment line to the peer's file.
func (l *FileLog) appendPeer(peerID uint32, commitment [32]byte) error {
	f, err := os.OpenFile(l.peerPath(peerID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFileMode)
	if err != nil {
		return fmt.Errorf("replay: open commitment log for append: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, hex.EncodeToString(commitment[:])); err != nil {
		return fmt.Errorf("replay: append commitment: %w", err)
	}
	return nil
}

// Verify FileLog implements Log.
var _ Log = (*FileLog)(nil)
