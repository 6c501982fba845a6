package squashfs

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"sync/atomic"
)

type Inode struct {
	// refcnt is first value to get guaranteed 64bits alignment, if not sync/atomic will panic
	refcnt uint64 // for fuse

	sb  *Superblock
	ref inodeRef // this inode's own location, needed to re-read trailing fields (directory index)

	Type    uint16
	Perm    uint16
	UidIdx  uint16
	GidIdx  uint16
	ModTime int32
	Ino     uint32 // inode number

	StartBlock uint64
	NLink      uint32
	Size       uint64 // Careful, actual on disk size varies depending on type
	Offset     uint32 // uint16 for directories
	ParentIno  uint32 // for directories
	SymTarget  []byte // The target path this symlink points to
	IdxCount   uint16 // index count for advanced directories
	XattrIdx   uint32 // xattr table index (if relevant)
	Sparse     uint64

	// fragment
	FragBlock uint32
	FragOfft  uint32

	// file blocks (some have value 0x1001000)
	Blocks     []uint32
	BlocksOfft []uint64
}

// GetInode resolves a public inode number (as seen by callers, offset by
// any configured InodeOffset) to an *Inode. Inode 1 always designates the
// archive root.
func (sb *Superblock) GetInode(ino uint64) (*Inode, error) {
	ino -= sb.inoOfft
	// public numbers swap the root's on-disk number with 1
	switch ino {
	case 1:
		ino = sb.rootInoN
	case sb.rootInoN:
		ino = 1
	}
	return sb.resolveInodeNumber(ino)
}

// resolveInodeNumber resolves a raw, unoffset on-disk inode number, as used
// internally for directory ParentIno links. Public entry points go through
// GetInode instead, which accounts for InodeOffset.
func (sb *Superblock) resolveInodeNumber(ino uint64) (*Inode, error) {
	if ino == sb.rootInoN {
		return sb.rootIno, nil
	}

	sb.inoIdxL.RLock()
	inor, ok := sb.inoIdx[uint32(ino)]
	sb.inoIdxL.RUnlock()
	if ok {
		return sb.GetInodeRef(inor)
	}

	if sb.hasExportTable() {
		ref, err := sb.exportTableEntry(uint32(ino))
		if err != nil {
			return nil, err
		}
		found, err := sb.GetInodeRef(ref)
		if err != nil {
			return nil, err
		}
		sb.setInodeRefCache(found.Ino, ref)
		return found, nil
	}

	return nil, ErrInodeNotExported
}

func (sb *Superblock) GetInodeRef(inor inodeRef) (*Inode, error) {
	r, err := sb.newInodeReader(inor)
	if err != nil {
		return nil, err
	}

	ino := &Inode{sb: sb, ref: inor}

	if err := binary.Read(r, sb.order, &ino.Type); err != nil {
		return nil, err
	}
	if err := binary.Read(r, sb.order, &ino.Perm); err != nil {
		return nil, err
	}
	if err := binary.Read(r, sb.order, &ino.UidIdx); err != nil {
		return nil, err
	}
	if err := binary.Read(r, sb.order, &ino.GidIdx); err != nil {
		return nil, err
	}
	if err := binary.Read(r, sb.order, &ino.ModTime); err != nil {
		return nil, err
	}
	if err := binary.Read(r, sb.order, &ino.Ino); err != nil {
		return nil, err
	}

	switch ino.Type {
	case 1: // Basic Directory
		var u32 uint32
		if err := binary.Read(r, sb.order, &u32); err != nil {
			return nil, err
		}
		ino.StartBlock = uint64(u32)

		if err := binary.Read(r, sb.order, &ino.NLink); err != nil {
			return nil, err
		}

		var u16 uint16
		if err := binary.Read(r, sb.order, &u16); err != nil {
			return nil, err
		}
		ino.Size = uint64(u16)

		if err := binary.Read(r, sb.order, &u16); err != nil {
			return nil, err
		}
		ino.Offset = uint32(u16)

		if err := binary.Read(r, sb.order, &ino.ParentIno); err != nil {
			return nil, err
		}
	case 8: // Extended dir
		var u32 uint32
		var u16 uint16

		if err := binary.Read(r, sb.order, &ino.NLink); err != nil {
			return nil, err
		}
		if err := binary.Read(r, sb.order, &u32); err != nil {
			return nil, err
		}
		ino.Size = uint64(u32)

		if err := binary.Read(r, sb.order, &u32); err != nil {
			return nil, err
		}
		ino.StartBlock = uint64(u32)

		if err := binary.Read(r, sb.order, &ino.ParentIno); err != nil {
			return nil, err
		}
		if err := binary.Read(r, sb.order, &ino.IdxCount); err != nil {
			return nil, err
		}
		if err := binary.Read(r, sb.order, &u16); err != nil {
			return nil, err
		}
		ino.Offset = uint32(u16)

		if err := binary.Read(r, sb.order, &ino.XattrIdx); err != nil {
			return nil, err
		}
	case 2: // Basic file
		var u32 uint32
		if err := binary.Read(r, sb.order, &u32); err != nil {
			return nil, err
		}
		ino.StartBlock = uint64(u32)

		if err := binary.Read(r, sb.order, &ino.FragBlock); err != nil {
			return nil, err
		}
		if err := binary.Read(r, sb.order, &ino.FragOfft); err != nil {
			return nil, err
		}
		if err := binary.Read(r, sb.order, &u32); err != nil {
			return nil, err
		}
		ino.Size = uint64(u32)

		if err := ino.readBlockList(r); err != nil {
			return nil, err
		}
	case 9: // extended file
		if err := binary.Read(r, sb.order, &ino.StartBlock); err != nil {
			return nil, err
		}
		if err := binary.Read(r, sb.order, &ino.Size); err != nil {
			return nil, err
		}
		if err := binary.Read(r, sb.order, &ino.Sparse); err != nil {
			return nil, err
		}
		if err := binary.Read(r, sb.order, &ino.NLink); err != nil {
			return nil, err
		}
		if err := binary.Read(r, sb.order, &ino.FragBlock); err != nil {
			return nil, err
		}
		if err := binary.Read(r, sb.order, &ino.FragOfft); err != nil {
			return nil, err
		}
		if err := binary.Read(r, sb.order, &ino.XattrIdx); err != nil {
			return nil, err
		}

		if err := ino.readBlockList(r); err != nil {
			return nil, err
		}
	case 3, 10: // basic/extended symlink
		if err := binary.Read(r, sb.order, &ino.NLink); err != nil {
			return nil, err
		}

		var u32 uint32
		if err := binary.Read(r, sb.order, &u32); err != nil {
			return nil, err
		}
		if u32 > 4096 {
			return nil, fmt.Errorf("%w: symlink target length %d", ErrCorruptedInode, u32)
		}
		ino.Size = uint64(u32)

		buf := make([]byte, u32)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		ino.SymTarget = buf

		if ino.Type == 10 {
			// extended symlink carries a trailing xattr index
			if err := binary.Read(r, sb.order, &ino.XattrIdx); err != nil {
				return nil, err
			}
		}
	case 4, 5, 11, 12: // block/char device, basic and extended
		if err := binary.Read(r, sb.order, &ino.NLink); err != nil {
			return nil, err
		}
		var dev uint32
		if err := binary.Read(r, sb.order, &dev); err != nil {
			return nil, err
		}
		ino.StartBlock = uint64(dev) // device major/minor packed, see Rdev()
		if ino.Type == 11 || ino.Type == 12 {
			if err := binary.Read(r, sb.order, &ino.XattrIdx); err != nil {
				return nil, err
			}
		}
	case 6, 7, 13, 14: // fifo/socket, basic and extended
		if err := binary.Read(r, sb.order, &ino.NLink); err != nil {
			return nil, err
		}
		if ino.Type == 13 || ino.Type == 14 {
			if err := binary.Read(r, sb.order, &ino.XattrIdx); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: type %d", ErrUnsupportedInodeType, ino.Type)
	}

	return ino, nil
}

// readBlockList reads the per-block compressed-size array following a
// basic or extended file inode header, sized from Size/FragBlock the same
// way for both inode flavors.
func (ino *Inode) readBlockList(r io.Reader) error {
	sb := ino.sb
	blocks := int(ino.Size / uint64(sb.BlockSize))
	if ino.FragBlock == 0xffffffff {
		if ino.Size%uint64(sb.BlockSize) != 0 {
			blocks++
		}
	}

	ino.Blocks = make([]uint32, blocks)
	ino.BlocksOfft = make([]uint64, blocks)

	offt := uint64(0)
	var u32 uint32
	for i := 0; i < blocks; i++ {
		if err := binary.Read(r, sb.order, &u32); err != nil {
			return err
		}
		ino.Blocks[i] = u32
		ino.BlocksOfft[i] = offt
		offt += uint64(u32 &^ 0x1000000) // strip bit 24, the uncompressed flag
	}

	if ino.FragBlock != 0xffffffff {
		ino.Blocks = append(ino.Blocks, 0xffffffff) // special marker: read from fragment
	}
	return nil
}

func (i *Inode) ReadAt(p []byte, off int64) (int, error) {
	switch i.Type {
	case 2, 9: // Basic/extended file
		if uint64(off) >= i.Size {
			return 0, io.EOF
		}
		if uint64(off+int64(len(p))) > i.Size {
			p = p[:int64(i.Size)-off]
		}

		block := int(off / int64(i.sb.BlockSize))
		offset := int(off % int64(i.sb.BlockSize))
		n := 0

		for {
			buf, err := i.readBlock(block)
			if err != nil {
				return n, err
			}

			if offset > 0 {
				buf = buf[offset:]
			}

			l := copy(p, buf)
			n += l
			if l == len(p) {
				return n, nil
			}

			p = p[l:]
			block++
			offset = 0
		}
	}
	return 0, fs.ErrInvalid
}

// readBlock returns the decompressed contents of the block-th data block of
// a file inode, resolving the shared fragment tail or a sparse/zero hole as
// needed.
func (i *Inode) readBlock(block int) ([]byte, error) {
	sb := i.sb

	if i.Blocks[block] == 0xffffffff {
		fe, err := sb.fragmentTableEntry(i.FragBlock)
		if err != nil {
			return nil, err
		}

		var buf []byte
		if fe.uncompressed() {
			mr, err := newMapReader(sb.mapper, int64(fe.Start), int64(fe.realSize()))
			if err != nil {
				return nil, err
			}
			buf, err = mr.data()
			if err != nil {
				return nil, err
			}
		} else {
			raw := make([]byte, fe.realSize())
			if _, err := sb.fs.ReadAt(raw, int64(fe.Start)); err != nil {
				return nil, err
			}
			buf, err = sb.extract.decompress(fe.Start, raw)
			if err != nil {
				return nil, err
			}
			// release our checkout now that we hold the slice; the LRU
			// ring's own pin is what keeps it cached, not this reference.
			sb.extract.release(fe.Start)
		}

		if i.FragOfft != 0 {
			buf = buf[i.FragOfft:]
		}
		return buf, nil
	}

	if i.Blocks[block] == 0 {
		// sparse hole: block_size zeroes
		return zeroBlock(int(sb.BlockSize)), nil
	}

	size := i.Blocks[block] &^ 0x1000000
	addr := i.StartBlock + i.BlocksOfft[block]
	mr, err := newMapReader(sb.mapper, int64(addr), int64(size))
	if err != nil {
		return nil, err
	}
	raw, err := mr.data()
	if err != nil {
		return nil, err
	}

	if i.Blocks[block]&0x1000000 != 0 {
		// uncompressed
		return raw, nil
	}
	out, err := sb.extract.decompress(addr, raw)
	if err != nil {
		return nil, err
	}
	sb.extract.release(addr)
	return out, nil
}

func (i *Inode) LookupRelativeInode(ctx context.Context, name string) (*Inode, error) {
	switch i.Type {
	case 1, 8:
		dr, err := i.sb.dirReader(i, nil)
		if err != nil {
			return nil, err
		}
		for {
			ename, inoR, err := dr.next()
			if err != nil {
				if err == io.EOF {
					return nil, ErrNoSuchFile
				}
				return nil, err
			}

			if name == ename {
				found, err := i.sb.GetInodeRef(inoR)
				if err != nil {
					return nil, err
				}
				i.sb.setInodeRefCache(found.Ino, inoR)
				return found, nil
			}
		}
	}
	return nil, ErrNotDirectory
}

func (i *Inode) LookupRelativeInodePath(ctx context.Context, name string) (*Inode, error) {
	// similar to lookup, but handles slashes in name and returns an inode
	cur := i

	for {
		if len(name) == 0 {
			// trailing slash?
			return cur, nil
		}
		pos := strings.IndexByte(name, '/')
		if pos == -1 {
			return cur.LookupRelativeInode(ctx, name)
		}
		if pos == 0 {
			name = name[1:]
			continue
		}
		t, err := cur.LookupRelativeInode(ctx, name[:pos])
		if err != nil {
			return nil, err
		}
		cur = t
		name = name[pos+1:]
	}
}

func (i *Inode) Mode() fs.FileMode {
	return UnixToMode(uint32(i.Perm)) | squashfsTypeToMode(i.Type)
}

func (i *Inode) IsDir() bool {
	switch i.Type {
	case 1, 8:
		return true
	}
	return false
}

func (i *Inode) Readlink() ([]byte, error) {
	switch i.Type {
	case 3, 10:
		return i.SymTarget, nil
	}
	return nil, fs.ErrInvalid
}

// GetUid resolves this inode's owning uid through the archive's id table.
func (i *Inode) GetUid() uint32 {
	v, err := i.sb.idTableEntry(i.UidIdx)
	if err != nil {
		return 0
	}
	return v
}

// GetGid resolves this inode's owning gid through the archive's id table.
func (i *Inode) GetGid() uint32 {
	v, err := i.sb.idTableEntry(i.GidIdx)
	if err != nil {
		return 0
	}
	return v
}

// HasXattrs reports whether this inode carries an xattr record.
func (i *Inode) HasXattrs() bool {
	return i.XattrIdx != 0xffffffff && i.sb.hasXattrTable()
}

func (i *Inode) AddRef(count uint64) uint64 {
	return atomic.AddUint64(&i.refcnt, count)
}

func (i *Inode) DelRef(count uint64) uint64 {
	return atomic.AddUint64(&i.refcnt, ^(count - 1))
}
