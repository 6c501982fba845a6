package squashfs

import (
	"fmt"
	"io"
)

// Three of the archive's lookup tables (id, fragment, export) share one
// on-disk shape: a flat array of fixed-size entries, stored in metadata
// blocks, addressed through a top-level array of 8-byte pointers that is
// itself stored uncompressed and directly addressable (not itself inside a
// metadata block). readTableEntry implements that one shape generically;
// xattr.go also reads the xattr id table through it, with that table's
// pointer array starting after its 16-byte header.
func (sb *Superblock) readTableEntry(tableStart uint64, entrySize, entriesPerBlock, index int) ([]byte, error) {
	blockIndex := index / entriesPerBlock
	offsetInBlock := (index % entriesPerBlock) * entrySize

	ptrBuf := make([]byte, 8)
	_, err := sb.fs.ReadAt(ptrBuf, int64(tableStart)+int64(blockIndex)*8)
	if err != nil {
		return nil, err
	}
	metaAddr := sb.order.Uint64(ptrBuf)

	tr, err := sb.newTableReader(int64(metaAddr), offsetInBlock)
	if err != nil {
		return nil, err
	}

	entry := make([]byte, entrySize)
	if _, err := io.ReadFull(tr, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// idTableEntry resolves a uid/gid table index to its 32-bit value.
func (sb *Superblock) idTableEntry(index uint16) (uint32, error) {
	if sb.IdTableStart == 0 {
		return 0, fmt.Errorf("%w: no id table", ErrInvalidSuper)
	}
	const entrySize = 4
	const entriesPerBlock = 8192 / entrySize
	entry, err := sb.readTableEntry(sb.IdTableStart, entrySize, entriesPerBlock, int(index))
	if err != nil {
		return 0, err
	}
	return sb.order.Uint32(entry), nil
}

// fragmentEntry is one fragment table row: the on-disk location and packed
// size of a shared fragment (tail) block.
type fragmentEntry struct {
	Start uint64
	Size  uint32
}

// uncompressed reports whether the fragment block itself was stored
// without compression (bit 24 of the packed size field).
func (f fragmentEntry) uncompressed() bool {
	return f.Size&0x1000000 != 0
}

func (f fragmentEntry) realSize() uint32 {
	return f.Size &^ 0x1000000
}

func (sb *Superblock) fragmentTableEntry(index uint32) (fragmentEntry, error) {
	if !sb.hasFragmentTable() {
		return fragmentEntry{}, ErrNoFragmentTable
	}
	const entrySize = 16
	const entriesPerBlock = 8192 / entrySize
	entry, err := sb.readTableEntry(sb.FragTableStart, entrySize, entriesPerBlock, int(index))
	if err != nil {
		return fragmentEntry{}, err
	}
	var fe fragmentEntry
	fe.Start = sb.order.Uint64(entry[0:8])
	fe.Size = sb.order.Uint32(entry[8:12])
	return fe, nil
}

// exportTableEntry resolves an NFS-exported inode number to the inodeRef
// that locates it in the inode table.
func (sb *Superblock) exportTableEntry(ino uint32) (inodeRef, error) {
	if !sb.hasExportTable() {
		return 0, ErrNoExportTable
	}
	const entrySize = 8
	const entriesPerBlock = 8192 / entrySize
	entry, err := sb.readTableEntry(sb.ExportTableStart, entrySize, entriesPerBlock, int(ino-1))
	if err != nil {
		return 0, err
	}
	return inodeRef(sb.order.Uint64(entry)), nil
}
