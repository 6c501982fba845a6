package squashfs

import (
	"io"

	"github.com/ulikunitz/xz"
)

func init() {
	RegisterDecompressor(XZ, func(r io.Reader) (io.ReadCloser, error) {
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	})
}
