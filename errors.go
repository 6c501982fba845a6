package squashfs

import "errors"

// Package-specific error variables that can be used with errors.Is() for error handling.
var (
	// ErrInvalidFile is returned when the file format is not recognized as SquashFS
	ErrInvalidFile = errors.New("invalid file, squashfs signature not found")

	// ErrInvalidSuper is returned when the superblock data is corrupted or invalid
	ErrInvalidSuper = errors.New("invalid squashfs superblock")

	// ErrInvalidVersion is returned when the SquashFS version is not 4.0
	// This library only supports SquashFS 4.0 format
	ErrInvalidVersion = errors.New("invalid file version, expected squashfs 4.0")

	// ErrInodeNotExported is returned when trying to access an inode that isn't in the export table
	ErrInodeNotExported = errors.New("unknown squashfs inode and no NFS export table")

	// ErrNotDirectory is returned when attempting to perform directory operations on a non-directory
	ErrNotDirectory = errors.New("not a directory")

	// ErrTooManySymlinks is returned when symlink resolution exceeds the maximum depth
	// This prevents infinite loops in symlink resolution
	ErrTooManySymlinks = errors.New("too many levels of symbolic links")

	// ErrUnsupportedInodeType is returned when an inode's type field is not one of the known types
	ErrUnsupportedInodeType = errors.New("unsupported inode type")

	// ErrCorruptedInode is returned when an inode record fails a structural sanity check
	ErrCorruptedInode = errors.New("corrupted inode")

	// ErrCorruptedDirectoryEntry is returned when a directory entry name is empty or contains '/' or NUL
	ErrCorruptedDirectoryEntry = errors.New("corrupted directory entry")

	// ErrNoSuchFile is returned when a path or name lookup fails to find a match
	ErrNoSuchFile = errors.New("no such file or directory")

	// ErrWalkerCannotGoUp is returned by the tree walker when asked to go up from the root
	ErrWalkerCannotGoUp = errors.New("cannot go up from root directory")

	// ErrWalkerCannotGoDown is returned by the tree walker when asked to descend before any lookup
	ErrWalkerCannotGoDown = errors.New("cannot descend, no entry selected")

	// ErrSizeMismatch is returned when a decompressed buffer's size does not match the expected size
	ErrSizeMismatch = errors.New("decompressed size mismatch")

	// ErrOutOfBounds is returned when a read or mapping would extend past the end of the archive
	ErrOutOfBounds = errors.New("out of bounds")

	// ErrIntegerOverflow is returned when an offset+size computation would wrap around
	ErrIntegerOverflow = errors.New("integer overflow")

	// ErrNoFragmentTable is returned when the fragment table is accessed but the superblock has none
	ErrNoFragmentTable = errors.New("archive has no fragment table")

	// ErrNoExportTable is returned when the export table is accessed but the superblock has none
	ErrNoExportTable = errors.New("archive has no export table")

	// ErrNoXattrTable is returned when the xattr table is accessed but the superblock has none
	ErrNoXattrTable = errors.New("archive has no xattr table")

	// ErrNoCompressionOptions is returned when compressor options are requested but none are present
	ErrNoCompressionOptions = errors.New("archive has no compression options block")

	// ErrCompressionUnsupported is returned for a compression id with no registered extractor
	ErrCompressionUnsupported = errors.New("unsupported compression algorithm")

	// ErrCompressionInit is returned when an extractor fails to initialize
	ErrCompressionInit = errors.New("failed to initialize decompressor")

	// ErrCompressionDecompress is returned when an extractor fails mid-stream
	ErrCompressionDecompress = errors.New("decompression failed")

	// ErrMapperInit is returned when a source driver fails to initialize
	ErrMapperInit = errors.New("failed to initialize source mapper")

	// ErrMapperMap is returned when a source driver fails to map a byte range
	ErrMapperMap = errors.New("failed to map byte range from source")

	// ErrInvalidRangeHeader is returned when an HTTP response to a range request is malformed
	ErrInvalidRangeHeader = errors.New("invalid or missing Content-Range header")

	// ErrMutationDetected is returned once an HTTP source's mtime changes mid-session; it then latches
	ErrMutationDetected = errors.New("remote archive mutated during session")
)
