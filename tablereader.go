package squashfs

// tableReader provides sequential byte access over one of the metadata
// tables (inode table, directory table, fragment/export/id/xattr lookup
// tables), all of which share the same on-disk scheme: a stream of 8 KiB
// logical chunks, each prefixed by a 16-bit header whose top bit flags the
// chunk as stored uncompressed and whose low 15 bits give its on-disk size.
//
// Chunks are decompressed through the archive's extractManager, so reading
// the same chunk from two different tableReaders (e.g. two directory
// lookups that land in the same 8 KiB block) only pays the decompression
// cost once.
type tableReader struct {
	sb   *Superblock
	buf  []byte
	offt int64
}

func (sb *Superblock) newInodeReader(ino inodeRef) (*tableReader, error) {
	return sb.newTableReader(int64(sb.InodeTableStart)+int64(ino.Index()), int(ino.Offset()))
}

// newTableReaderAt resolves a packed metablock reference - (block offset
// from tableStart)<<16 | (byte offset within the decompressed block) - the
// same scheme inode references use, and used throughout the other
// metadata-backed tables (e.g. the xattr table's out-of-line value refs).
func (sb *Superblock) newTableReaderAt(tableStart uint64, ref uint64) (*tableReader, error) {
	r := inodeRef(ref)
	return sb.newTableReader(int64(tableStart)+int64(r.Index()), int(r.Offset()))
}

func (sb *Superblock) newTableReader(base int64, start int) (*tableReader, error) {
	ir := &tableReader{
		sb:   sb,
		offt: base,
	}

	err := ir.readBlock()
	if err != nil {
		return nil, err
	}

	if start != 0 {
		if start > len(ir.buf) {
			return nil, ErrCorruptedInode
		}
		ir.buf = ir.buf[start:]
	}

	return ir, nil
}

func (i *tableReader) readBlock() error {
	head := make([]byte, 2)
	_, err := i.sb.fs.ReadAt(head, i.offt)
	if err != nil {
		return err
	}
	lenN := i.sb.order.Uint16(head)
	uncompressed := lenN&0x8000 != 0
	lenN &= 0x7fff

	buf := make([]byte, int(lenN))
	_, err = i.sb.fs.ReadAt(buf, i.offt+2)
	if err != nil {
		return err
	}
	addr := uint64(i.offt + 2)
	// the next chunk starts right after this one's header and payload
	i.offt += 2 + int64(lenN)

	if uncompressed {
		i.buf = buf
		return nil
	}

	out, err := i.sb.extract.decompress(addr, buf)
	if err != nil {
		return err
	}
	// decompress returns its cache entry checked out (refcount bumped on
	// top of the LRU's own pin); drop our checkout now that we've taken
	// our reference to the decompressed slice, so the LRU alone is what
	// keeps the entry alive, and it can actually be evicted once it falls
	// out of the ring.
	i.sb.extract.release(addr)
	i.buf = out
	return nil
}

func (i *tableReader) Read(p []byte) (int, error) {
	if i.buf == nil {
		err := i.readBlock()
		if err != nil {
			return 0, err
		}
	}

	n := copy(p, i.buf)
	if n == len(i.buf) {
		i.buf = nil
	} else {
		i.buf = i.buf[n:]
	}

	return n, nil
}
