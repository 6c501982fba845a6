package squashfs

import "testing"

func TestRCMapSetRetainRelease(t *testing.T) {
	m := newRCMap[string](4)

	m.Set(0, "hello", 1)

	idx, payload, ok := m.Retain(0)
	if !ok {
		t.Fatal("expected slot 0 to be retained")
	}
	if idx != 0 || payload != "hello" {
		t.Fatalf("got (%d, %q), want (0, \"hello\")", idx, payload)
	}

	// Set is first-writer-wins: a second Set at the same index is discarded.
	m.Set(0, "overwritten", 1)
	_, payload, _ = m.Retain(0)
	if payload != "hello" {
		t.Fatalf("Set clobbered an occupied slot: got %q", payload)
	}
}

func TestRCMapSpanAliasing(t *testing.T) {
	m := newRCMap[int](4)
	m.Set(0, 42, 3) // occupies 0, aliases 1 and 2

	for _, idx := range []int{0, 1, 2} {
		resolved, payload, ok := m.Retain(idx)
		if !ok {
			t.Fatalf("index %d: expected a hit", idx)
		}
		if resolved != 0 || payload != 42 {
			t.Fatalf("index %d: got (%d, %d), want (0, 42)", idx, resolved, payload)
		}
		m.Release(resolved)
	}

	if _, _, ok := m.Retain(3); ok {
		t.Fatal("index 3 was never set, expected a miss")
	}
}

func TestRCMapReleaseClearsPayload(t *testing.T) {
	m := newRCMap[string](2)
	m.Set(0, "x", 1)

	idx, _, _ := m.Retain(0) // refcnt now 2 (Set's initial 1 + this Retain)
	m.Release(idx)
	m.Release(idx) // refcnt now 0, payload cleared

	if _, _, ok := m.Retain(0); ok {
		t.Fatal("expected slot to be empty after refcount reached zero")
	}
}

func TestRCHashMapPutFirstWriterWins(t *testing.T) {
	m := newRCHashMap[string, int]()

	got := m.Put("a", 1)
	if got != 1 {
		t.Fatalf("first Put: got %d, want 1", got)
	}

	got = m.Put("a", 2)
	if got != 1 {
		t.Fatalf("second Put should return the first writer's value, got %d", got)
	}

	payload, ok := m.Retain("a")
	if !ok || payload != 1 {
		t.Fatalf("Retain: got (%d, %v), want (1, true)", payload, ok)
	}
}

func TestRCHashMapReleaseDropsEntry(t *testing.T) {
	m := newRCHashMap[string, int]()
	m.Put("a", 1) // refcnt 1

	m.Release("a")
	if _, ok := m.Retain("a"); ok {
		t.Fatal("expected entry to be gone after refcount reached zero")
	}
}

func TestRCHashMapTouchRetainMissingKeyIsNoop(t *testing.T) {
	m := newRCHashMap[string, int]()
	m.touchRetain("missing") // must not panic
	m.touchRelease("missing")
}
