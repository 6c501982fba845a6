package squashfs

import (
	"io"

	"github.com/klauspost/compress/zlib"
)

// SquashFS's "gzip" compressor is actually zlib-framed deflate (RFC1950),
// not a gzip (RFC1952) stream, despite the name used throughout the on-disk
// format and tooling.
func init() {
	RegisterDecompressor(GZip, func(r io.Reader) (io.ReadCloser, error) {
		return zlib.NewReader(r)
	})
}
