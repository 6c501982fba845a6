package squashfs

import (
	"errors"
	"io"
	"io/fs"
	"time"
)

// The Easy* helpers trade the fine-grained Walker/Inode/XattrIterator APIs
// for one-call convenience, mirroring what callers most often actually
// want: does this path exist, give me its whole content, tell me its size.
// Each one opens, does the one thing, and closes - nothing here is faster
// than using Archive/Inode directly, it's just fewer lines at call sites
// that only need a single fact about a single path.

// EasyFileExists reports whether path resolves to anything in the archive,
// following symlinks. Every resolution error, not only "doesn't exist",
// is reported as false, matching the on-error-report-false behavior
// callers expect from an existence check.
func (a *Archive) EasyFileExists(path string) bool {
	_, err := a.FindInode(path, true)
	return err == nil
}

// EasyFileContent reads a regular file's entire content in one call.
func (a *Archive) EasyFileContent(path string) ([]byte, error) {
	ino, err := a.FindInode(path, true)
	if err != nil {
		return nil, err
	}
	if ino.IsDir() {
		return nil, fs.ErrInvalid
	}
	return io.ReadAll(io.NewSectionReader(ino, 0, int64(ino.Size)))
}

// EasyFileSize returns a path's size in bytes without reading its content.
func (a *Archive) EasyFileSize(path string) (uint64, error) {
	ino, err := a.FindInode(path, true)
	if err != nil {
		return 0, err
	}
	return ino.Size, nil
}

// EasyFilePermission returns a path's Unix permission bits.
func (a *Archive) EasyFilePermission(path string) (fs.FileMode, error) {
	ino, err := a.FindInode(path, true)
	if err != nil {
		return 0, err
	}
	return ino.Mode().Perm(), nil
}

// EasyFileMtime returns a path's modification time.
func (a *Archive) EasyFileMtime(path string) (time.Time, error) {
	ino, err := a.FindInode(path, true)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(ino.ModTime), 0), nil
}

// EasyDirectoryList returns the names of a directory's immediate children,
// in on-disk order.
func (a *Archive) EasyDirectoryList(path string) ([]string, error) {
	ino, err := a.FindInode(path, true)
	if err != nil {
		return nil, err
	}
	if !ino.IsDir() {
		return nil, ErrNotDirectory
	}

	dr, err := a.Superblock.dirReader(ino, nil)
	if err != nil {
		return nil, err
	}

	var names []string
	for {
		name, _, err := dr.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// EasyXattrGet returns the value of a single extended attribute attached
// to path, or (nil, nil) if path has no such attribute.
func (a *Archive) EasyXattrGet(path, key string) ([]byte, error) {
	ino, err := a.FindInode(path, true)
	if err != nil {
		return nil, err
	}

	it, err := a.Superblock.Xattrs(ino)
	if err != nil || it == nil {
		return nil, err
	}

	for {
		ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		x := it.Xattr()
		if x.Name == key {
			return x.Value, nil
		}
	}
}
