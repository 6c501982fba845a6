package squashfs

import "github.com/sirupsen/logrus"

// Config holds the tunables an Option can adjust before an archive's
// extractManager and caches are built.
type Config struct {
	// CompressionLRUSize bounds how many decompressed metadata/data blocks
	// stay warm in the extract manager's cache after their last external
	// reference is dropped.
	CompressionLRUSize int

	// MapperBlockSize is the cache granularity the backing source is read
	// in. Larger values amortize round trips to a remote Source at the
	// cost of over-fetching for small reads.
	MapperBlockSize int64

	// MapperLRUSize bounds how many mapper blocks stay warm once nothing
	// is actively reading through them.
	MapperLRUSize int
}

func defaultConfig() Config {
	return Config{
		CompressionLRUSize: defaultCompressionLRUSize,
		MapperBlockSize:    defaultMapperBlockSize,
		MapperLRUSize:      defaultMapperLRUSize,
	}
}

// Option customizes a Superblock as it is being opened by New().
type Option func(sb *Superblock) error

// InodeOffset adds inoOfft to every inode number returned to callers (and
// subtracted back out on lookup), letting an archive be mounted at a
// non-overlapping inode range alongside other filesystems (e.g. under FUSE).
func InodeOffset(inoOfft uint64) Option {
	return func(sb *Superblock) error {
		sb.inoOfft = inoOfft
		return nil
	}
}

// WithCompressionLRUSize overrides the default number of decompressed
// blocks kept warm in the shared extract cache. A size of 0 disables the
// cache entirely: every read decompresses its block fresh.
func WithCompressionLRUSize(size int) Option {
	return func(sb *Superblock) error {
		sb.cfg.CompressionLRUSize = size
		return nil
	}
}

// WithLogger replaces the default (logrus standard) logger used for debug
// and warning messages emitted while reading the archive.
func WithLogger(l *logrus.Logger) Option {
	return func(sb *Superblock) error {
		sb.log = l
		return nil
	}
}

// WithMapperBlockSize overrides the block-cache granularity used to read
// the backing source. Larger is better for a high-latency Source (e.g.
// HTTPSource); for a local mmapped file the cache mostly just adds memory
// pressure without saving any syscalls, so it can be set small.
func WithMapperBlockSize(size int64, lruSize int) Option {
	return func(sb *Superblock) error {
		sb.cfg.MapperBlockSize = size
		sb.cfg.MapperLRUSize = lruSize
		return nil
	}
}
