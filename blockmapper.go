package squashfs

import (
	"errors"
	"fmt"
	"io"
)

// defaultMapperBlockSize is the cache granularity blockMapper reads and
// retains its backing Source in. It is deliberately independent of the
// archive's own BlockSize: it exists to turn the many small, overlapping
// reads that walking metadata tables produces (two-byte chunk headers,
// short directory records) into whole-block fetches, which matters most
// when the Source is something like an HTTPSource where each fetch is a
// network round trip.
const defaultMapperBlockSize = 1 << 20

// defaultMapperLRUSize bounds how many blockMapper blocks stay warm once
// nothing is actively reading through them.
const defaultMapperLRUSize = 32

// blockMapper wraps an arbitrary io.ReaderAt with a fixed-size block cache.
// It implements io.ReaderAt itself, so it can be dropped in anywhere a plain
// reader is expected (notably as Superblock.fs) without the rest of the
// package knowing caching is happening underneath.
type blockMapper struct {
	src       io.ReaderAt
	blockSize int64

	blocks *rcHashMap[int64, []byte]
	lru    *lruRing[int64]
}

func newBlockMapper(src io.ReaderAt, blockSize int64, lruSize int) *blockMapper {
	if blockSize <= 0 {
		blockSize = defaultMapperBlockSize
	}
	if lruSize <= 0 {
		lruSize = defaultMapperLRUSize
	}
	blocks := newRCHashMap[int64, []byte]()
	return &blockMapper{
		src:       src,
		blockSize: blockSize,
		blocks:    blocks,
		lru:       newLRURing[int64](lruSize, blocks),
	}
}

// block returns the cached contents of the blockSize-aligned block
// containing byte offset, fetching and installing it first if needed. The
// final block of a source shorter than a whole blockSize is shorter than
// blockSize; callers must bound their own read by the slice length
// returned, not by blockSize.
//
// block balances its own temporary checkout on both the hit and the miss
// path before returning, so the only reference left on the entry afterward
// is the LRU ring's; callers don't hold a reference they need to release.
// (The underlying array stays valid through Go's own GC regardless of the
// cache's bookkeeping, so reading the returned slice after this point is
// safe even once the ring later evicts and frees the entry.)
func (m *blockMapper) block(idx int64) ([]byte, error) {
	if cached, ok := m.blocks.Retain(idx); ok {
		m.lru.touch(idx)
		m.blocks.Release(idx)
		return cached, nil
	}

	buf := make([]byte, m.blockSize)
	n, err := m.src.ReadAt(buf, idx*m.blockSize)
	// A Source reports a read past its end as io.EOF or ErrOutOfBounds
	// (possibly wrapped); either way the n bytes read are the final block.
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, ErrOutOfBounds) {
		return nil, fmt.Errorf("%w: %w", ErrMapperMap, err)
	}
	if n == 0 {
		return nil, io.EOF
	}
	buf = buf[:n]

	installed := m.blocks.Put(idx, buf)
	m.lru.touch(idx)
	m.blocks.Release(idx)
	return installed, nil
}

// ReadAt implements io.ReaderAt over the cached blocks, splicing across a
// block boundary when the requested range doesn't fit in one.
func (m *blockMapper) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset", ErrOutOfBounds)
	}

	n := 0
	for n < len(p) {
		idx := (off + int64(n)) / m.blockSize
		within := (off + int64(n)) % m.blockSize

		blk, err := m.block(idx)
		if err != nil {
			return n, err
		}
		if within >= int64(len(blk)) {
			return n, io.EOF
		}

		c := copy(p[n:], blk[within:])
		n += c
		if c == 0 {
			return n, io.EOF
		}
	}
	return n, nil
}

// close releases everything the LRU ring is still pinning.
func (m *blockMapper) close() {
	m.lru.cleanup()
}
