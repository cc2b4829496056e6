package keystore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "keys"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fs,
	}
}

func TestOpenOrCreate_Lifecycle(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			init := []byte("0123456789abcdef0123456789abcdef")

			h, err := OpenOrCreate(store, "PublicKey:10000", 32, init)
			if err != nil {
				t.Fatalf("OpenOrCreate(create): %v", err)
			}
			if !bytes.Equal(h.Bytes(), init) {
				t.Error("created slot does not hold the initial value")
			}

			// Reopen: the stored bytes win, init is ignored.
			other := bytes.Repeat([]byte{0xAA}, 32)
			h2, err := OpenOrCreate(store, "PublicKey:10000", 32, other)
			if err != nil {
				t.Fatalf("OpenOrCreate(reopen): %v", err)
			}
			if !bytes.Equal(h2.Bytes(), init) {
				t.Error("reopen did not load the stored value")
			}

			// Update through one handle is visible on reload.
			if err := h.Update(other); err != nil {
				t.Fatalf("Update: %v", err)
			}
			h3, err := OpenOrCreate(store, "PublicKey:10000", 32, nil)
			if err != nil {
				t.Fatalf("OpenOrCreate(after update): %v", err)
			}
			if !bytes.Equal(h3.Bytes(), other) {
				t.Error("update not visible on reload")
			}

			// Invalidate removes the slot.
			if err := h.Invalidate(); err != nil {
				t.Fatalf("Invalidate: %v", err)
			}
			if _, err := OpenOrCreate(store, "PublicKey:10000", 32, nil); !errors.Is(err, ErrValueNotProvided) {
				t.Errorf("open after invalidate = %v, want ErrValueNotProvided", err)
			}
		})
	}
}

func TestOpenOrCreate_MissingWithoutInit(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := OpenOrCreate(store, "PrivateKey:1", 32, nil); !errors.Is(err, ErrValueNotProvided) {
				t.Errorf("OpenOrCreate(missing, nil init) = %v, want ErrValueNotProvided", err)
			}
		})
	}
}

func TestOpenOrCreate_SizeMismatch(t *testing.T) {
	store := NewMemoryStore()
	if _, err := OpenOrCreate(store, "SharedCounter:1:2", 4, []byte{1, 2}); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("OpenOrCreate(short init) = %v, want ErrSizeMismatch", err)
	}
}

func TestFileStore_NameRoundTrip(t *testing.T) {
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "keys"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	// Arbitrary UTF-8, including separators and non-ASCII, must not
	// collide or escape the store directory.
	names := []string{
		"SharedSecretKey:10000:20000",
		"SharedSecretKey:20000:10000",
		"../escape",
		"schlüssel/η",
	}
	for i, n := range names {
		if err := fs.Create(n, []byte{byte(i)}); err != nil {
			t.Fatalf("Create(%q): %v", n, err)
		}
	}
	for i, n := range names {
		value, found, err := fs.Load(n)
		if err != nil || !found {
			t.Fatalf("Load(%q) = %v found=%v", n, err, found)
		}
		if !bytes.Equal(value, []byte{byte(i)}) {
			t.Errorf("Load(%q) = %v, want [%d]", n, value, i)
		}
	}
}

func TestFileStore_Permissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := fs.Create("PrivateKey:1", []byte("secret")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("Stat(dir): %v", err)
	}
	if perm := info.Mode().Perm(); perm != storeDirMode {
		t.Errorf("store directory mode = %o, want %o", perm, storeDirMode)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			t.Fatalf("Info: %v", err)
		}
		if perm := info.Mode().Perm(); perm != slotFileMode {
			t.Errorf("slot file mode = %o, want %o", perm, slotFileMode)
		}
	}
}

func TestCounterHelpers(t *testing.T) {
	store := NewMemoryStore()

	init := EncodeCounter(1)
	if _, err := OpenOrCreate(store, SharedCounterName(1, 2), CounterSize, init[:]); err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}

	value, h, err := ReadCounter(store, 1, 2)
	if err != nil {
		t.Fatalf("ReadCounter: %v", err)
	}
	if value != 1 {
		t.Errorf("counter = %d, want 1", value)
	}

	if err := WriteCounter(h, 3); err != nil {
		t.Fatalf("WriteCounter: %v", err)
	}
	value, _, err = ReadCounter(store, 1, 2)
	if err != nil {
		t.Fatalf("ReadCounter(after write): %v", err)
	}
	if value != 3 {
		t.Errorf("counter = %d, want 3", value)
	}

	// Big-endian on disk.
	raw, found, err := store.Load(SharedCounterName(1, 2))
	if err != nil || !found {
		t.Fatalf("Load: %v found=%v", err, found)
	}
	if !bytes.Equal(raw, []byte{0, 0, 0, 3}) {
		t.Errorf("stored counter = %v, want big-endian 3", raw)
	}
}

func TestSlotNames(t *testing.T) {
	if got := PublicKeyName(10000); got != "PublicKey:10000" {
		t.Errorf("PublicKeyName = %q", got)
	}
	if got := PrivateKeyName(10000); got != "PrivateKey:10000" {
		t.Errorf("PrivateKeyName = %q", got)
	}
	if got := SharedSecretName(10000, 20000); got != "SharedSecretKey:10000:20000" {
		t.Errorf("SharedSecretName = %q", got)
	}
	if got := SharedCounterName(20000, 10000); got != "SharedCounter:20000:10000" {
		t.Errorf("SharedCounterName = %q", got)
	}
	if SharedSecretName(1, 2) == SharedSecretName(2, 1) {
		t.Error("shared secret slots for the two directions must be distinct")
	}
}
