package squashfs

import (
	"fmt"
	"io"
)

// Compression identifies the compression algorithm used for every
// compressed block in an archive (metadata, data and fragment blocks all
// share the same algorithm, fixed by the superblock at image build time).
type Compression uint16

const (
	GZip Compression = 1
	LZMA Compression = 2
	LZO  Compression = 3
	XZ   Compression = 4
	LZ4  Compression = 5
	ZSTD Compression = 6
)

func (s Compression) String() string {
	switch s {
	case GZip:
		return "GZip"
	case LZMA:
		return "LZMA"
	case LZO:
		return "LZO"
	case XZ:
		return "XZ"
	case LZ4:
		return "LZ4"
	case ZSTD:
		return "ZSTD"
	}
	return fmt.Sprintf("Compression(%d)", s)
}

// decompressorFunc turns a reader over a compressed block into a reader
// over its decompressed contents.
type decompressorFunc func(r io.Reader) (io.ReadCloser, error)

var compRegistry = map[Compression]decompressorFunc{}

// RegisterDecompressor installs the decompressor for a given algorithm. It
// is called from each algorithm's own file's init(), mirroring how the
// registry is populated by build-tag-gated files upstream; here every
// algorithm file is unconditional so the registry is always fully
// populated, and only LZO is deliberately left unregistered.
func RegisterDecompressor(c Compression, fn decompressorFunc) {
	compRegistry[c] = fn
}

// decompress decompresses a single block using the algorithm registered for
// s. It is the synchronous, uncached primitive; callers that want
// deduplication across repeated reads of the same block go through an
// extractManager instead.
func (s Compression) decompress(buf []byte) ([]byte, error) {
	fn, ok := compRegistry[s]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCompressionUnsupported, s)
	}

	r := &byteSliceReader{b: buf}
	rc, err := fn(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCompressionInit, s, err)
	}
	defer rc.Close()

	out, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCompressionDecompress, s, err)
	}
	return out, nil
}

// byteSliceReader avoids an extra bytes.Reader import at every call site
// and makes the single intended use (read-once, no seek) explicit.
type byteSliceReader struct {
	b []byte
}

func (r *byteSliceReader) Read(p []byte) (int, error) {
	if len(r.b) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.b)
	r.b = r.b[n:]
	return n, nil
}
