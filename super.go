package squashfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
)

// Superblock is the 96-byte header at the start of every SquashFS 4.0
// archive. Its fields are decoded directly from on-disk layout via
// reflection in UnmarshalBinary, field order matching the wire format
// exactly; it is also the anchor every other reader (tableReader, dirReader,
// file content reads) hangs off of, since it carries the byte order, the
// backing io.ReaderAt and the shared extractManager.
//
// https://dr-emann.github.io/squashfs/
type Superblock struct {
	fs      io.ReaderAt
	mapper  *blockMapper
	order   binary.ByteOrder
	extract *extractManager

	log *logrus.Logger

	inoOfft uint64 // InodeOffset option: added to every resolved inode number

	rootIno  *Inode
	rootInoN uint64 // root inode number as found in the archive, remapped to 1

	inoIdxL sync.RWMutex
	inoIdx  map[uint32]inodeRef

	cfg Config

	Magic             uint32
	InodeCnt          uint32
	ModTime           int32
	BlockSize         uint32
	FragCount         uint32
	Comp              Compression
	BlockLog          uint16
	Flags             Flags
	IdCount           uint16
	VMajor            uint16
	VMinor            uint16
	RootInode         uint64
	BytesUsed         uint64
	IdTableStart      uint64
	XattrIdTableStart uint64
	InodeTableStart   uint64
	DirTableStart     uint64
	FragTableStart    uint64
	ExportTableStart  uint64
}

// newSuperblock parses and validates the header of a SquashFS archive
// backed by an arbitrary io.ReaderAt — a local file, an in-memory buffer, or
// a Source (see source.go) wrapping an HTTP range-capable endpoint. Options
// customize behavior; see options.go. The public entry points are New and
// Open in squashfs.go, which wrap the result in an Archive.
func newSuperblock(fs io.ReaderAt, opts ...Option) (*Superblock, error) {
	sb := &Superblock{
		fs:     fs,
		log:    logrus.StandardLogger(),
		inoIdx: make(map[uint32]inodeRef),
		cfg:    defaultConfig(),
	}
	head := make([]byte, sb.binarySize())

	_, err := fs.ReadAt(head, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	if err := sb.UnmarshalBinary(head); err != nil {
		return nil, err
	}
	if err := sb.validate(); err != nil {
		return nil, err
	}

	for _, o := range opts {
		if err := o(sb); err != nil {
			return nil, err
		}
	}

	sb.mapper = newBlockMapper(fs, sb.cfg.MapperBlockSize, sb.cfg.MapperLRUSize)
	sb.fs = sb.mapper

	sb.extract = newExtractManager(sb.Comp, sb.cfg.CompressionLRUSize)

	sb.log.WithFields(logrus.Fields{
		"version":     fmt.Sprintf("%d.%d", sb.VMajor, sb.VMinor),
		"compression": sb.Comp.String(),
		"block_size":  sb.BlockSize,
		"inodes":      sb.InodeCnt,
	}).Debug("squashfs: opened archive")

	root, err := sb.GetInodeRef(inodeRef(sb.RootInode))
	if err != nil {
		return nil, fmt.Errorf("failed to load root inode: %w", err)
	}
	sb.rootIno = root
	sb.rootInoN = uint64(root.Ino)

	return sb, nil
}

func (sb *Superblock) UnmarshalBinary(data []byte) error {
	v := reflect.ValueOf(sb).Elem()
	c := v.NumField()
	r := bytes.NewReader(data)

	switch string(data[:4]) {
	case "hsqs":
		sb.order = binary.LittleEndian
	case "sqsh":
		sb.order = binary.BigEndian
	default:
		return ErrInvalidFile
	}

	var err error
	for i := 0; i < c; i++ {
		name := v.Type().Field(i).Name
		if name[0] < 'A' || name[0] > 'Z' {
			continue
		}
		err = binary.Read(r, sb.order, v.Field(i).Addr().Interface())
		if err != nil {
			return fmt.Errorf("%w: reading %s: %w", ErrInvalidSuper, name, err)
		}
	}

	return nil
}

func (sb *Superblock) binarySize() int {
	v := reflect.ValueOf(sb).Elem()
	c := v.NumField()
	sz := uintptr(0)

	for i := 0; i < c; i++ {
		name := v.Type().Field(i).Name
		if name[0] < 'A' || name[0] > 'Z' {
			continue
		}
		sz += v.Field(i).Type().Size()
	}
	return int(sz)
}

// validate applies the structural sanity checks a corrupted or truncated
// superblock can fail: the block size must be a power of two matching its
// own log2, and the archive must declare SquashFS 4.0 (the only version
// this library implements).
func (sb *Superblock) validate() error {
	if sb.VMajor != 4 || sb.VMinor != 0 {
		return fmt.Errorf("%w: got %d.%d", ErrInvalidVersion, sb.VMajor, sb.VMinor)
	}
	if sb.BlockSize == 0 || sb.BlockSize&(sb.BlockSize-1) != 0 {
		return fmt.Errorf("%w: block size %d is not a power of two", ErrInvalidSuper, sb.BlockSize)
	}
	if uint32(1)<<sb.BlockLog != sb.BlockSize {
		return fmt.Errorf("%w: block size %d does not match block log %d", ErrInvalidSuper, sb.BlockSize, sb.BlockLog)
	}
	return nil
}

func (sb *Superblock) hasFragmentTable() bool {
	return sb.FragCount > 0 && sb.FragTableStart != 0xffffffffffffffff
}

func (sb *Superblock) hasExportTable() bool {
	return sb.Flags.Has(EXPORTABLE) && sb.ExportTableStart != 0xffffffffffffffff
}

func (sb *Superblock) hasXattrTable() bool {
	return !sb.Flags.Has(NO_XATTRS) && sb.XattrIdTableStart != 0xffffffffffffffff
}

func (sb *Superblock) setInodeRefCache(ino uint32, ref inodeRef) {
	sb.inoIdxL.Lock()
	sb.inoIdx[ino] = ref
	sb.inoIdxL.Unlock()
}

// Close releases cached decompressed blocks. The backing io.ReaderAt is not
// touched: it's the caller's (or Archive's) responsibility since New() does
// not take ownership of it.
func (sb *Superblock) Close() error {
	if sb.extract != nil {
		sb.extract.close()
	}
	if sb.mapper != nil {
		sb.mapper.close()
	}
	return nil
}
