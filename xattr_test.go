package squashfs

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildXattrFixture hand-assembles the on-disk xattr tables for a single
// inode carrying two inline attributes: user.foo=bar and trusted.baz=qux.
// Layout, by byte offset:
//
//	0   data table metablock:   header(2) + 2 records (28 bytes)
//	30  entry array metablock:  header(2) + one xattrIdEntry (16 bytes)
//	48  xattrIdTableHeader (16 bytes): {TableStart: 0, Ids: 1}
//	64  pointer array: one 8-byte pointer to the entry array block (30)
func buildXattrFixture(t *testing.T) []byte {
	t.Helper()
	buf := &bytes.Buffer{}

	record := func(typ uint16, name, value string) []byte {
		b := &bytes.Buffer{}
		binary.Write(b, binary.LittleEndian, typ)
		binary.Write(b, binary.LittleEndian, uint16(len(name)))
		b.WriteString(name)
		binary.Write(b, binary.LittleEndian, uint32(len(value)))
		b.WriteString(value)
		return b.Bytes()
	}

	r1 := record(0, "foo", "bar")
	r2 := record(1, "baz", "qux")
	payload := append(append([]byte{}, r1...), r2...)
	if len(payload) != 28 {
		t.Fatalf("fixture payload size = %d, want 28 (fixture offsets assume this)", len(payload))
	}

	binary.Write(buf, binary.LittleEndian, uint16(0x8000|len(payload))) // data table block header
	buf.Write(payload)

	entry := &bytes.Buffer{}
	binary.Write(entry, binary.LittleEndian, uint64(0))  // Pos: inodeRef(index=0,offset=0)
	binary.Write(entry, binary.LittleEndian, uint32(2))  // Count
	binary.Write(entry, binary.LittleEndian, uint32(28)) // Size (informational)

	binary.Write(buf, binary.LittleEndian, uint16(0x8000|entry.Len())) // entry array block header
	buf.Write(entry.Bytes())

	binary.Write(buf, binary.LittleEndian, uint64(0)) // TableStart
	binary.Write(buf, binary.LittleEndian, uint32(1)) // Ids
	binary.Write(buf, binary.LittleEndian, uint32(0)) // Unused

	binary.Write(buf, binary.LittleEndian, uint64(30)) // pointer to entry array block

	return buf.Bytes()
}

func newTestSuperblock(data []byte) *Superblock {
	mapper := newBlockMapper(&sliceSource{data: data}, 4096, 8)
	return &Superblock{
		fs:                mapper,
		mapper:            mapper,
		order:             binary.LittleEndian,
		extract:           newExtractManager(GZip, 8),
		cfg:               defaultConfig(),
		XattrIdTableStart: 48,
	}
}

func TestXattrIteratorReadsInlineEntries(t *testing.T) {
	sb := newTestSuperblock(buildXattrFixture(t))
	ino := &Inode{sb: sb, XattrIdx: 0}

	it, err := sb.Xattrs(ino)
	if err != nil {
		t.Fatalf("Xattrs: %v", err)
	}
	if it == nil {
		t.Fatal("expected a non-nil iterator")
	}

	got := map[string]string{}
	for {
		ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		x := it.Xattr()
		got[x.Name] = string(x.Value)
	}

	want := map[string]string{"user.foo": "bar", "trusted.baz": "qux"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("entry %q: got %q, want %q", k, got[k], v)
		}
	}
}

func TestInodeXattrsMap(t *testing.T) {
	sb := newTestSuperblock(buildXattrFixture(t))
	ino := &Inode{sb: sb, XattrIdx: 0}

	m, err := ino.Xattrs()
	if err != nil {
		t.Fatalf("Xattrs: %v", err)
	}
	if string(m["user.foo"]) != "bar" || string(m["trusted.baz"]) != "qux" {
		t.Fatalf("got %v", m)
	}
}

func TestInodeWithoutXattrTableHasNone(t *testing.T) {
	sb := newTestSuperblock(buildXattrFixture(t))
	sb.XattrIdTableStart = 0xffffffffffffffff // no xattr table present
	ino := &Inode{sb: sb, XattrIdx: 0}

	if ino.HasXattrs() {
		t.Fatal("expected HasXattrs to be false with no xattr table")
	}

	it, err := sb.Xattrs(ino)
	if err != nil || it != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", it, err)
	}
}

func TestInodeWithSentinelXattrIdxHasNone(t *testing.T) {
	sb := newTestSuperblock(buildXattrFixture(t))
	ino := &Inode{sb: sb, XattrIdx: 0xffffffff}

	if ino.HasXattrs() {
		t.Fatal("expected HasXattrs to be false for the sentinel index")
	}
}
