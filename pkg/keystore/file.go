package keystore

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File permissions: slots are readable and writable by the owner only.
const (
	slotFileMode os.FileMode = 0o600
	storeDirMode os.FileMode = 0o700
)

// FileStore is a Store backed by one file per slot under a directory.
//
// Slot names are arbitrary UTF-8; the backing filename is the hex
// encoding of the name bytes, which round-trips any name without
// collision. Updates write to a temporary file and rename it into place,
// so readers observe either the old or the new complete value.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a file-backed store rooted at dir, creating the
// directory with owner-only permissions when absent.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, storeDirMode); err != nil {
		return nil, fmt.Errorf("keystore: create store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// slotPath maps a slot name to its backing file.
func (f *FileStore) slotPath(name string) string {
	return filepath.Join(f.dir, hex.EncodeToString([]byte(name)))
}

// Load returns the slot value, or found=false if no slot exists.
func (f *FileStore) Load(name string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	value, err := os.ReadFile(f.slotPath(name))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("keystore: load %q: %w", name, err)
	}
	return value, true, nil
}

// Create stores a new slot with mode 0600.
func (f *FileStore) Create(name string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.slotPath(name)
	if _, err := os.Stat(path); err == nil {
		return ErrSlotExists
	}
	return f.writeAtomic(path, value)
}

// Update atomically replaces the slot value.
func (f *FileStore) Update(name string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.slotPath(name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return ErrSlotNotFound
		}
		return fmt.Errorf("keystore: update %q: %w", name, err)
	}
	return f.writeAtomic(path, value)
}

// Delete removes the slot.
func (f *FileStore) Delete(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.slotPath(name))
	if os.IsNotExist(err) {
		return ErrSlotNotFound
	}
	if err != nil {
		return fmt.Errorf("keystore: delete %q: %w", name, err)
	}
	return nil
}

// writeAtomic writes value to a temporary file in the store directory
// and renames it into place.
func (f *FileStore) writeAtomic(path string, value []byte) error {
	tmp, err := os.CreateTemp(f.dir, ".slot-*")
	if err != nil {
		return fmt.Errorf("keystore: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(slotFileMode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("keystore: set slot permissions: %w", err)
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("keystore: write slot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("keystore: close slot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("keystore: commit slot: %w", err)
	}
	return nil
}

// Verify FileStore implements Store.
var _ Store = (*FileStore)(nil)
