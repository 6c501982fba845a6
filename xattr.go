package squashfs

import (
	"fmt"
	"io"
)

// xattrEntryFlagOOL marks an xattr record whose value is stored "out of
// line": instead of the value bytes following the name inline, a further
// 8-byte reference points at the real value elsewhere in the xattr table.
// Out-of-line storage lets squashfs-tools de-duplicate large or repeated
// xattr values (e.g. SELinux contexts shared by thousands of files) instead
// of storing them once per inode.
const xattrEntryFlagOOL = 0x100

// xattrIdEntry is one row of the xattr id table: it tells an inode's
// XattrIdx where its xattr list starts in the xattr metadata table, how
// many entries it has, and the on-disk size of that list (informational
// only; not needed to parse it).
type xattrIdEntry struct {
	Pos   uint64
	Count uint32
	Size  uint32
}

// xattrIdTableHeader is the 16-byte, uncompressed header at
// Superblock.XattrIdTableStart.
type xattrIdTableHeader struct {
	TableStart uint64
	Ids        uint32
	Unused     uint32
}

func (sb *Superblock) xattrIdTableHeader() (xattrIdTableHeader, error) {
	if !sb.hasXattrTable() {
		return xattrIdTableHeader{}, ErrNoXattrTable
	}
	buf := make([]byte, 16)
	if _, err := sb.fs.ReadAt(buf, int64(sb.XattrIdTableStart)); err != nil {
		return xattrIdTableHeader{}, fmt.Errorf("%w: %w", ErrNoXattrTable, err)
	}
	return xattrIdTableHeader{
		TableStart: sb.order.Uint64(buf[0:8]),
		Ids:        sb.order.Uint32(buf[8:12]),
		Unused:     sb.order.Uint32(buf[12:16]),
	}, nil
}

// xattrIdTableEntry resolves an inode's XattrIdx to the location of its
// xattr list. The pointer array for this table, unlike the id/fragment/
// export tables, starts right after the 16-byte header rather than at the
// table start itself.
func (sb *Superblock) xattrIdTableEntry(idx uint32) (xattrIdEntry, error) {
	hdr, err := sb.xattrIdTableHeader()
	if err != nil {
		return xattrIdEntry{}, err
	}
	if idx >= hdr.Ids {
		return xattrIdEntry{}, fmt.Errorf("%w: xattr id %d out of range", ErrOutOfBounds, idx)
	}

	const entrySize = 16
	const entriesPerBlock = 8192 / entrySize
	entry, err := sb.readTableEntry(sb.XattrIdTableStart+16, entrySize, entriesPerBlock, int(idx))
	if err != nil {
		return xattrIdEntry{}, err
	}

	return xattrIdEntry{
		Pos:   sb.order.Uint64(entry[0:8]),
		Count: sb.order.Uint32(entry[8:12]),
		Size:  sb.order.Uint32(entry[12:16]),
	}, nil
}

// xattrPrefixes maps the on-disk prefix id (the low byte of an entry's
// type field) to the namespace string real xattr names carry, mirroring
// Linux's user./trusted./security. xattr namespaces.
var xattrPrefixes = []string{
	"user.",
	"trusted.",
	"security.",
}

// Xattr is one decoded extended attribute.
type Xattr struct {
	Name  string
	Value []byte
}

// XattrIterator walks the extended attributes attached to a single inode,
// in on-disk order.
type XattrIterator struct {
	sb      *Superblock
	r       *tableReader
	remain  uint32
	current Xattr
}

// Xattrs returns an iterator over ino's extended attributes, or a nil
// iterator (with no error) if the inode carries none.
func (sb *Superblock) Xattrs(ino *Inode) (*XattrIterator, error) {
	if !ino.HasXattrs() {
		return nil, nil
	}

	entry, err := sb.xattrIdTableEntry(ino.XattrIdx)
	if err != nil {
		return nil, err
	}

	hdr, err := sb.xattrIdTableHeader()
	if err != nil {
		return nil, err
	}

	r, err := sb.newTableReaderAt(hdr.TableStart, entry.Pos)
	if err != nil {
		return nil, err
	}

	return &XattrIterator{sb: sb, r: r, remain: entry.Count}, nil
}

// Next advances the iterator, returning false once every attribute has
// been visited.
func (it *XattrIterator) Next() (bool, error) {
	if it.remain == 0 {
		return false, nil
	}
	it.remain--

	head := make([]byte, 4)
	if _, err := io.ReadFull(it.r, head); err != nil {
		return false, fmt.Errorf("%w: xattr entry header: %w", ErrCorruptedInode, err)
	}
	xtype := it.sb.order.Uint16(head[0:2])
	nameLen := it.sb.order.Uint16(head[2:4])

	nameBuf := make([]byte, nameLen)
	if _, err := io.ReadFull(it.r, nameBuf); err != nil {
		return false, fmt.Errorf("%w: xattr name: %w", ErrCorruptedInode, err)
	}

	prefixID := int(xtype &^ xattrEntryFlagOOL)
	prefix := ""
	if prefixID >= 0 && prefixID < len(xattrPrefixes) {
		prefix = xattrPrefixes[prefixID]
	}

	valSizeBuf := make([]byte, 4)
	if _, err := io.ReadFull(it.r, valSizeBuf); err != nil {
		return false, fmt.Errorf("%w: xattr value header: %w", ErrCorruptedInode, err)
	}
	valSize := it.sb.order.Uint32(valSizeBuf)

	var value []byte
	if xtype&xattrEntryFlagOOL != 0 {
		// Out of line: the "value" we just sized is actually an 8-byte
		// reference (metablock-relative position) to where the real,
		// length-prefixed value lives elsewhere in the same table.
		if valSize != 8 {
			return false, fmt.Errorf("%w: out-of-line xattr ref size %d != 8", ErrCorruptedInode, valSize)
		}
		refBuf := make([]byte, 8)
		if _, err := io.ReadFull(it.r, refBuf); err != nil {
			return false, fmt.Errorf("%w: xattr ool ref: %w", ErrCorruptedInode, err)
		}
		ref := it.sb.order.Uint64(refBuf)

		hdr, err := it.sb.xattrIdTableHeader()
		if err != nil {
			return false, err
		}
		vr, err := it.sb.newTableReaderAt(hdr.TableStart, ref)
		if err != nil {
			return false, err
		}
		realSizeBuf := make([]byte, 4)
		if _, err := io.ReadFull(vr, realSizeBuf); err != nil {
			return false, fmt.Errorf("%w: ool xattr value header: %w", ErrCorruptedInode, err)
		}
		realSize := it.sb.order.Uint32(realSizeBuf)
		value = make([]byte, realSize)
		if _, err := io.ReadFull(vr, value); err != nil {
			return false, fmt.Errorf("%w: ool xattr value: %w", ErrCorruptedInode, err)
		}
	} else {
		value = make([]byte, valSize)
		if _, err := io.ReadFull(it.r, value); err != nil {
			return false, fmt.Errorf("%w: xattr value: %w", ErrCorruptedInode, err)
		}
	}

	it.current = Xattr{Name: prefix + string(nameBuf), Value: value}
	return true, nil
}

// Xattr returns the entry the iterator currently sits on.
func (it *XattrIterator) Xattr() Xattr { return it.current }

// Xattrs reads every extended attribute attached to an inode into a map,
// for callers that don't need the iterator's streaming behavior.
func (i *Inode) Xattrs() (map[string][]byte, error) {
	it, err := i.sb.Xattrs(i)
	if err != nil || it == nil {
		return nil, err
	}

	out := make(map[string][]byte)
	for {
		ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		x := it.Xattr()
		out[x.Name] = x.Value
	}
	return out, nil
}
