package squashfs

import "testing"

func TestLRURingEvictsOldestOnWrap(t *testing.T) {
	backend := newRCHashMap[int, string]()
	backend.Put(1, "a")
	backend.Put(2, "b")
	backend.Put(3, "c")

	ring := newLRURing[int](2, backend)
	ring.touch(1)
	ring.touch(2)
	ring.touch(3) // ring size 2: this should evict key 1

	// Drop the references Put handed out, so only the ring pins entries.
	backend.Release(1)
	backend.Release(2)
	backend.Release(3)

	if _, ok := backend.Retain(1); ok {
		t.Fatal("key 1 should have been released once it fell off the ring")
	}

	if _, ok := backend.Retain(2); !ok {
		t.Fatal("key 2 should still be pinned by the ring")
	}
	backend.Release(2)

	if _, ok := backend.Retain(3); !ok {
		t.Fatal("key 3 should still be pinned by the ring")
	}
	backend.Release(3)
}

func TestLRURingRetouchSameKeyIsNoop(t *testing.T) {
	backend := newRCHashMap[int, string]()
	backend.Put(1, "a")

	ring := newLRURing[int](3, backend)
	ring.touch(1)
	ring.touch(1)
	ring.touch(1)
	backend.Release(1) // drop Put's own reference; only the ring pins it now

	// Repeated touches of the same key must not pile up extra refcounts.
	payload, ok := backend.Retain(1)
	if !ok || payload != "a" {
		t.Fatalf("got (%q, %v), want (\"a\", true)", payload, ok)
	}
	backend.Release(1)

	ring.cleanup()
	if _, ok := backend.Retain(1); ok {
		t.Fatal("expected key to be released after cleanup")
	}
}

func TestLRURingZeroSizeIsNoop(t *testing.T) {
	backend := newRCHashMap[int, string]()
	backend.Put(1, "a")

	ring := newLRURing[int](0, backend)
	ring.touch(1) // must not panic, must not pin anything
	ring.cleanup()

	backend.Release(1)
	if _, ok := backend.Retain(1); ok {
		t.Fatal("zero-size ring must never pin an entry")
	}
}

func TestLRURingCleanupReleasesEverything(t *testing.T) {
	backend := newRCHashMap[int, string]()
	backend.Put(1, "a")
	backend.Put(2, "b")

	ring := newLRURing[int](2, backend)
	ring.touch(1)
	ring.touch(2)
	// Drop the references Put handed out, so only the ring pins entries.
	backend.Release(1)
	backend.Release(2)
	ring.cleanup()

	if _, ok := backend.Retain(1); ok {
		t.Fatal("expected key 1 released by cleanup")
	}
	if _, ok := backend.Retain(2); ok {
		t.Fatal("expected key 2 released by cleanup")
	}
}
