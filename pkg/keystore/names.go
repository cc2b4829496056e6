package keystore

import (
	"encoding/binary"
	"fmt"
)

// Slot sizes used by the protocol.
const (
	// KeySize is the size of key and shared-secret slots.
	KeySize = 32

	// CounterSize is the size of shared-counter slots (32-bit big-endian).
	CounterSize = 4
)

// Logical slot names used by the core. SharedSecretName(a, b) and
// SharedSecretName(b, a) are distinct slots by convention: each side
// writes its own copy and the protocol keeps the contents identical.

// PublicKeyName names the long-term public key slot of a peer.
func PublicKeyName(id uint32) string {
	return fmt.Sprintf("PublicKey:%d", id)
}

// PrivateKeyName names the long-term private key slot of a peer.
func PrivateKeyName(id uint32) string {
	return fmt.Sprintf("PrivateKey:%d", id)
}

// SharedSecretName names this side's copy of the shared symmetric secret
// with the given peer.
func SharedSecretName(me, peer uint32) string {
	return fmt.Sprintf("SharedSecretKey:%d:%d", me, peer)
}

// SharedCounterName names this side's copy of the shared counter with
// the given peer.
func SharedCounterName(me, peer uint32) string {
	return fmt.Sprintf("SharedCounter:%d:%d", me, peer)
}

// ReadKey32 opens an existing 32-byte slot and returns its value.
func ReadKey32(s Store, name string) ([32]byte, *Handle, error) {
	var key [32]byte
	h, err := OpenOrCreate(s, name, KeySize, nil)
	if err != nil {
		return key, nil, err
	}
	value := h.Bytes()
	if len(value) != KeySize {
		return key, nil, fmt.Errorf("%w: slot %q holds %d bytes", ErrSizeMismatch, name, len(value))
	}
	copy(key[:], value)
	return key, h, nil
}

// ReadCounter opens an existing shared-counter slot and decodes its
// big-endian value.
func ReadCounter(s Store, me, peer uint32) (uint32, *Handle, error) {
	h, err := OpenOrCreate(s, SharedCounterName(me, peer), CounterSize, nil)
	if err != nil {
		return 0, nil, err
	}
	value := h.Bytes()
	if len(value) != CounterSize {
		return 0, nil, fmt.Errorf("%w: counter slot holds %d bytes", ErrSizeMismatch, len(value))
	}
	return binary.BigEndian.Uint32(value), h, nil
}

// WriteCounter stores a big-endian counter value through the handle.
func WriteCounter(h *Handle, value uint32) error {
	var buf [CounterSize]byte
	binary.BigEndian.PutUint32(buf[:], value)
	return h.Update(buf[:])
}

// EncodeCounter returns the big-endian encoding of a counter value.
func EncodeCounter(value uint32) [CounterSize]byte {
	var buf [CounterSize]byte
	binary.BigEndian.PutUint32(buf[:], value)
	return buf
}
