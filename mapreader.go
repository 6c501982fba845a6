package squashfs

import (
	"fmt"
	"io"
	"math"
)

// mapReader is a cursor over a span of bytes served by a blockMapper. Its
// job is to avoid copying when it doesn't have to: if the whole requested
// span happens to fit inside a single already-cached block, data() returns
// a slice aliasing that block directly; only a span crossing a block
// boundary pays for a fresh, spliced-together copy.
type mapReader struct {
	m      *blockMapper
	offset int64
	size   int64
}

// newMapReader sets up a reader over [offset, offset+size). It rejects
// spans whose bounds would overflow an int64, the same defensive check the
// archive's length-prefixed records need throughout since every size field
// on disk is attacker-controllable.
func newMapReader(m *blockMapper, offset, size int64) (*mapReader, error) {
	if offset < 0 || size < 0 {
		return nil, fmt.Errorf("%w: negative offset or size", ErrOutOfBounds)
	}
	if offset > math.MaxInt64-size {
		return nil, fmt.Errorf("%w: span overflows", ErrIntegerOverflow)
	}
	return &mapReader{m: m, offset: offset, size: size}, nil
}

// data returns the reader's current span in full.
func (r *mapReader) data() ([]byte, error) {
	if r.size == 0 {
		return nil, nil
	}

	idx := r.offset / r.m.blockSize
	within := r.offset % r.m.blockSize

	blk, err := r.m.block(idx)
	if err != nil {
		return nil, err
	}

	if within+r.size <= int64(len(blk)) {
		return blk[within : within+r.size], nil
	}

	buf := make([]byte, r.size)
	n, err := r.m.ReadAt(buf, r.offset)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if int64(n) < r.size {
		return nil, fmt.Errorf("%w: wanted %d bytes, got %d", ErrSizeMismatch, r.size, n)
	}
	return buf, nil
}

// advance consumes n bytes off the front of the span, so a caller walking a
// sequence of variable-length records doesn't need to track offsets itself.
func (r *mapReader) advance(n int64) error {
	if n < 0 || n > r.size {
		return fmt.Errorf("%w: advance %d beyond remaining %d", ErrOutOfBounds, n, r.size)
	}
	r.offset += n
	r.size -= n
	return nil
}

// remaining reports how many bytes are left in the span.
func (r *mapReader) remaining() int64 {
	return r.size
}
