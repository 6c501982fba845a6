package squashfs

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildIDTableFixture lays out a minimal id table: 8 bytes of padding (a
// table start of 0 means "no id table"), a single pointer at offset 8 to a
// metadata block at offset 16 holding two uint32 entries.
func buildIDTableFixture(t *testing.T) []byte {
	t.Helper()
	buf := &bytes.Buffer{}

	binary.Write(buf, binary.LittleEndian, uint64(0))  // padding
	binary.Write(buf, binary.LittleEndian, uint64(16)) // pointer to block at offset 16

	payload := &bytes.Buffer{}
	binary.Write(payload, binary.LittleEndian, uint32(1000)) // id[0]
	binary.Write(payload, binary.LittleEndian, uint32(2000)) // id[1]

	binary.Write(buf, binary.LittleEndian, uint16(0x8000|payload.Len()))
	buf.Write(payload.Bytes())

	return buf.Bytes()
}

func TestIDTableEntry(t *testing.T) {
	sb := newTestSuperblock(buildIDTableFixture(t))
	sb.IdTableStart = 8

	got, err := sb.idTableEntry(0)
	if err != nil {
		t.Fatalf("idTableEntry(0): %v", err)
	}
	if got != 1000 {
		t.Fatalf("idTableEntry(0) = %d, want 1000", got)
	}

	got, err = sb.idTableEntry(1)
	if err != nil {
		t.Fatalf("idTableEntry(1): %v", err)
	}
	if got != 2000 {
		t.Fatalf("idTableEntry(1) = %d, want 2000", got)
	}
}

func TestIDTableEntryNoTable(t *testing.T) {
	sb := newTestSuperblock([]byte{})
	sb.IdTableStart = 0 // zero value means "no id table" per idTableEntry

	if _, err := sb.idTableEntry(0); err == nil {
		t.Fatal("expected an error with no id table configured")
	}
}

func buildFragmentTableFixture(t *testing.T) []byte {
	t.Helper()
	buf := &bytes.Buffer{}

	binary.Write(buf, binary.LittleEndian, uint64(8))

	payload := &bytes.Buffer{}
	binary.Write(payload, binary.LittleEndian, uint64(4096))          // Start
	binary.Write(payload, binary.LittleEndian, uint32(512|0x1000000)) // Size, uncompressed flag set
	binary.Write(payload, binary.LittleEndian, uint32(0))             // Unused (entries are 16 bytes)

	binary.Write(buf, binary.LittleEndian, uint16(0x8000|payload.Len()))
	buf.Write(payload.Bytes())

	return buf.Bytes()
}

func TestFragmentTableEntry(t *testing.T) {
	sb := newTestSuperblock(buildFragmentTableFixture(t))
	sb.FragCount = 1
	sb.FragTableStart = 0

	fe, err := sb.fragmentTableEntry(0)
	if err != nil {
		t.Fatalf("fragmentTableEntry: %v", err)
	}
	if fe.Start != 4096 {
		t.Fatalf("Start = %d, want 4096", fe.Start)
	}
	if !fe.uncompressed() {
		t.Fatal("expected uncompressed() to be true")
	}
	if fe.realSize() != 512 {
		t.Fatalf("realSize() = %d, want 512", fe.realSize())
	}
}

func TestFragmentTableEntryNoTable(t *testing.T) {
	sb := newTestSuperblock(buildFragmentTableFixture(t))
	sb.FragCount = 0 // hasFragmentTable() requires FragCount > 0

	if _, err := sb.fragmentTableEntry(0); err == nil {
		t.Fatal("expected ErrNoFragmentTable")
	}
}
