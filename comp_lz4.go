package squashfs

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"
)

// SquashFS's LZ4 blocks use the raw block format (as produced by
// LZ4_compress_default), not the streaming LZ4 frame format, so the
// decompressor has to know an upper bound on the output size up front
// rather than read a frame incrementally. maxLZ4Block is sized to the
// largest legal SquashFS block (1 MiB); a block can never decompress to
// more than that since the compressor never sees an input larger than one
// data block.
const maxLZ4Block = 1 << 20

func init() {
	RegisterDecompressor(LZ4, func(r io.Reader) (io.ReadCloser, error) {
		src, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		dst := make([]byte, maxLZ4Block)
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(dst[:n])), nil
	})
}
