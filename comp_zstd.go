package squashfs

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

func init() {
	RegisterDecompressor(ZSTD, func(r io.Reader) (io.ReadCloser, error) {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	})
}
