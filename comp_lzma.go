package squashfs

import (
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// SquashFS's LZMA compressor wraps a raw LZMA1 stream (no .lzma container
// header), so the xz package's lzma subpackage is used directly rather than
// its higher-level, container-aware reader.
func init() {
	RegisterDecompressor(LZMA, func(r io.Reader) (io.ReadCloser, error) {
		lr, err := lzma.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(lr), nil
	})
}
