package squashfs

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
)

// buildSelfSymlinkFixture hand-assembles a minimal archive laid out as:
//
//	root directory (inode #1), containing one entry "a"
//	"a" is a symlink whose target is itself: "a"
//
// Resolving "a" through it must therefore detect the cycle rather than
// recurse forever.
func buildSelfSymlinkFixture(t *testing.T) (inodeTableStart, dirTableStart int64, data []byte) {
	t.Helper()
	buf := &bytes.Buffer{}

	w := func(v any) {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			t.Fatalf("write %v: %v", v, err)
		}
	}

	// --- inode table: one metablock holding the root dir inode followed by
	// the symlink inode.
	inodes := &bytes.Buffer{}

	// root dir inode (type 1), inode number 1, dir data lives at dir table
	// block 0 offset 0, sized to exactly the one entry built below.
	const dirSize = 21 // header(12) + entry fixed fields(8) + name(1)
	binary.Write(inodes, binary.LittleEndian, uint16(1))  // Type
	binary.Write(inodes, binary.LittleEndian, uint16(0))  // Perm
	binary.Write(inodes, binary.LittleEndian, uint16(0))  // UidIdx
	binary.Write(inodes, binary.LittleEndian, uint16(0))  // GidIdx
	binary.Write(inodes, binary.LittleEndian, int32(0))   // ModTime
	binary.Write(inodes, binary.LittleEndian, uint32(1))  // Ino
	binary.Write(inodes, binary.LittleEndian, uint32(0))  // StartBlock
	binary.Write(inodes, binary.LittleEndian, uint32(1))  // NLink
	binary.Write(inodes, binary.LittleEndian, uint16(dirSize)) // Size
	binary.Write(inodes, binary.LittleEndian, uint16(0))  // Offset
	binary.Write(inodes, binary.LittleEndian, uint32(1))  // ParentIno (root is its own parent)

	symlinkOfft := uint16(inodes.Len())

	// symlink inode (type 3), inode number 2, target "a".
	binary.Write(inodes, binary.LittleEndian, uint16(3)) // Type
	binary.Write(inodes, binary.LittleEndian, uint16(0)) // Perm
	binary.Write(inodes, binary.LittleEndian, uint16(0)) // UidIdx
	binary.Write(inodes, binary.LittleEndian, uint16(0)) // GidIdx
	binary.Write(inodes, binary.LittleEndian, int32(0))  // ModTime
	binary.Write(inodes, binary.LittleEndian, uint32(2)) // Ino
	binary.Write(inodes, binary.LittleEndian, uint32(1)) // NLink
	binary.Write(inodes, binary.LittleEndian, uint32(1)) // target length
	inodes.WriteString("a")                              // target

	w(uint16(0x8000 | inodes.Len())) // uncompressed metablock header
	inodeTableStart = int64(buf.Len())
	buf.Write(inodes.Bytes())

	// --- directory table: one metablock holding the root directory's single
	// entry, pointing at the symlink inode via (startBlock=0, offset=symlinkOfft).
	dirData := &bytes.Buffer{}
	binary.Write(dirData, binary.LittleEndian, uint32(0)) // count-1: one entry
	binary.Write(dirData, binary.LittleEndian, uint32(0)) // startBlock
	binary.Write(dirData, binary.LittleEndian, uint32(2)) // inodeNum (informational)

	binary.Write(dirData, binary.LittleEndian, symlinkOfft) // offset
	binary.Write(dirData, binary.LittleEndian, int16(1))    // inoNum2 (informational)
	binary.Write(dirData, binary.LittleEndian, SymlinkType) // typ: symlink
	binary.Write(dirData, binary.LittleEndian, uint16(0))   // siz = len("a")-1
	dirData.WriteString("a")

	if dirData.Len() != dirSize {
		t.Fatalf("dir data size = %d, want %d (fixture Size field assumes this)", dirData.Len(), dirSize)
	}

	w(uint16(0x8000 | dirData.Len()))
	dirTableStart = int64(buf.Len())
	buf.Write(dirData.Bytes())

	return inodeTableStart, dirTableStart, buf.Bytes()
}

func newSelfSymlinkSuperblock(t *testing.T) *Superblock {
	t.Helper()
	inodeTableStart, dirTableStart, data := buildSelfSymlinkFixture(t)

	mapper := newBlockMapper(&sliceSource{data: data}, 4096, 8)
	sb := &Superblock{
		fs:              mapper,
		mapper:          mapper,
		order:           binary.LittleEndian,
		extract:         newExtractManager(GZip, 8),
		cfg:             defaultConfig(),
		inoIdx:          make(map[uint32]inodeRef),
		InodeTableStart: uint64(inodeTableStart),
		DirTableStart:   uint64(dirTableStart),
	}

	root, err := sb.GetInodeRef(inodeRef(0))
	if err != nil {
		t.Fatalf("parsing root inode: %v", err)
	}
	sb.rootIno = root
	sb.rootInoN = uint64(root.Ino)
	return sb
}

// TestResolveSelfReferentialSymlinkCycle exercises a symlink that targets
// itself (a -> a). Following it must stop with ErrTooManySymlinks once the
// shared hop budget is exhausted, rather than recursing until the goroutine
// stack overflows.
func TestResolveSelfReferentialSymlinkCycle(t *testing.T) {
	sb := newSelfSymlinkSuperblock(t)
	pr := newPathResolver(sb)

	_, err := pr.Resolve(context.Background(), "a", true)
	if !errors.Is(err, ErrTooManySymlinks) {
		t.Fatalf("Resolve(\"a\"): got err = %v, want ErrTooManySymlinks", err)
	}
}

// TestResolveSymlinkWithoutFollowingReturnsLinkItself confirms that with
// followLinks = false, the symlink inode itself is returned unresolved, so
// the cycle never even needs to be detected.
func TestResolveSymlinkWithoutFollowingReturnsLinkItself(t *testing.T) {
	sb := newSelfSymlinkSuperblock(t)
	pr := newPathResolver(sb)

	ino, err := pr.Resolve(context.Background(), "a", false)
	if err != nil {
		t.Fatalf("Resolve(\"a\", followLinks=false): %v", err)
	}
	if ino.Type != 3 {
		t.Fatalf("got inode type %d, want 3 (symlink)", ino.Type)
	}
}
