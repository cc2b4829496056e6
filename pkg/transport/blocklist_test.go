package transport

import (
	"testing"
	"time"
)

func TestBlocklist_BlockAndExpire(t *testing.T) {
	b := NewBlocklist(10 * time.Second)

	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	if b.IsBlocked("192.0.2.1") {
		t.Error("unknown IP reported blocked")
	}

	b.Block("192.0.2.1")
	if !b.IsBlocked("192.0.2.1") {
		t.Error("just-blocked IP not reported blocked")
	}
	if b.IsBlocked("192.0.2.2") {
		t.Error("different IP reported blocked")
	}

	// One millisecond before expiry the block still holds.
	now = now.Add(10*time.Second - time.Millisecond)
	if !b.IsBlocked("192.0.2.1") {
		t.Error("block expired early")
	}

	// At expiry the entry is dropped lazily.
	now = now.Add(time.Millisecond)
	if b.IsBlocked("192.0.2.1") {
		t.Error("block survived its duration")
	}

	// The entry is gone, so a fresh block restarts the clock.
	b.Block("192.0.2.1")
	if !b.IsBlocked("192.0.2.1") {
		t.Error("re-block did not take effect")
	}
}

func TestBlocklist_DefaultDuration(t *testing.T) {
	b := NewBlocklist(0)
	if b.ttl != DefaultBlockDuration {
		t.Errorf("default ttl = %v, want %v", b.ttl, DefaultBlockDuration)
	}
}
