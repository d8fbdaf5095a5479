package feed

import (
	"testing"
	"time"
)

func TestDedupSuppressesWithinTTL(t *testing.T) {
	d := NewDedup(time.Minute)

	if d.Seen("0xfill1") {
		t.Fatal("first sighting reported as duplicate")
	}
	if !d.Seen("0xfill1") {
		t.Fatal("second sighting not suppressed")
	}
	if d.Seen("0xfill2") {
		t.Fatal("unrelated id suppressed")
	}
}

func TestDedupIsCaseInsensitive(t *testing.T) {
	d := NewDedup(time.Minute)

	// The same transaction hash arrives checksummed from the stream and
	// lowercased from the poller.
	if d.Seen("0xAbCdEf") {
		t.Fatal("first sighting reported as duplicate")
	}
	if !d.Seen("0xabcdef") {
		t.Fatal("lowercased replay not suppressed")
	}
}

func TestDedupExpiry(t *testing.T) {
	d := NewDedup(10 * time.Millisecond)

	if d.Seen("0xfill1") {
		t.Fatal("first sighting reported as duplicate")
	}
	time.Sleep(20 * time.Millisecond)
	if d.Seen("0xfill1") {
		t.Fatal("sighting past the ttl still suppressed")
	}
}

func TestDedupCleanup(t *testing.T) {
	d := NewDedup(10 * time.Millisecond)
	d.Seen("0xfill1")
	d.Seen("0xfill2")

	time.Sleep(20 * time.Millisecond)
	d.Cleanup()

	d.mu.Lock()
	n := len(d.seen)
	d.mu.Unlock()
	if n != 0 {
		t.Errorf("%d expired entries survived cleanup", n)
	}
}
