package squashfs

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
)

// Archive is a read-only view of a SquashFS image, implementing io/fs.FS
// (and fs.StatFS) so it can be used anywhere the standard library expects a
// filesystem: http.FileServer, fs.Sub, fs.WalkDir, fs.Glob, and so on.
//
// It embeds *Superblock to expose the archive's header fields (BlockSize,
// Comp, VMajor/VMinor, ...) directly.
type Archive struct {
	*Superblock
	closer func() error
}

var (
	_ fs.FS      = (*Archive)(nil)
	_ fs.StatFS  = (*Archive)(nil)
	_ fs.SubFS   = (*Archive)(nil)
	_ fs.GlobFS  = (*Archive)(nil)
	_ fs.ReadDirFS = (*Archive)(nil)
)

// Open opens a SquashFS image from a local path, taking ownership of the
// underlying *os.File: Archive.Close() closes it.
func Open(path string, opts ...Option) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	sb, err := newSuperblock(f, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Archive{Superblock: sb, closer: f.Close}, nil
}

// New wraps an already-open backing store (a local file, an in-memory
// buffer, or a Source). New does not take ownership of src: callers that
// need it closed on Archive.Close should close it themselves afterward.
func New(src io.ReaderAt, opts ...Option) (*Archive, error) {
	sb, err := newSuperblock(src, opts...)
	if err != nil {
		return nil, err
	}
	return &Archive{Superblock: sb}, nil
}

// Close releases cached decompressed blocks and, if this Archive was
// created by Open, closes the underlying file.
func (a *Archive) Close() error {
	err := a.Superblock.Close()
	if a.closer != nil {
		if cerr := a.closer(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// cleanFSPath validates name the way io/fs requires of FS.Open: it must be
// a valid, slash-separated, non-absolute path with no ".." components.
func cleanFSPath(op, name string) error {
	if !fs.ValidPath(name) {
		return &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	return nil
}

// FindInode resolves a slash-separated path to its Inode, starting at the
// archive root. If followLinks is true, symlinks encountered along the way
// (including the final component) are dereferenced.
func (a *Archive) FindInode(name string, followLinks bool) (*Inode, error) {
	// Unlike Open/Stat/ReadDir, FindInode is not bound by the fs.FS path
	// contract: it accepts ".." components (resolved via each directory's
	// ParentIno) since callers use it to locate inodes from arbitrary,
	// possibly relative-looking archive paths.
	r := newPathResolver(a.Superblock)
	if name == "." || name == "" {
		return r.top(), nil
	}
	return r.Resolve(context.Background(), name, followLinks)
}

// Open implements fs.FS.
func (a *Archive) Open(name string) (fs.File, error) {
	if err := cleanFSPath("open", name); err != nil {
		return nil, err
	}

	ino, err := a.FindInode(name, true)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: toFSErr(err)}
	}
	return ino.OpenFile(name), nil
}

// Lstat is like Stat but follows no symlinks: neither a trailing one nor
// one met in an intermediate path component.
func (a *Archive) Lstat(name string) (fs.FileInfo, error) {
	if err := cleanFSPath("lstat", name); err != nil {
		return nil, err
	}
	ino, err := a.FindInode(name, false)
	if err != nil {
		return nil, &fs.PathError{Op: "lstat", Path: name, Err: toFSErr(err)}
	}
	return &fileinfo{name: path.Base(name), ino: ino}, nil
}

// Stat implements fs.StatFS.
func (a *Archive) Stat(name string) (fs.FileInfo, error) {
	if err := cleanFSPath("stat", name); err != nil {
		return nil, err
	}
	ino, err := a.FindInode(name, true)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: toFSErr(err)}
	}
	return &fileinfo{name: path.Base(name), ino: ino}, nil
}

// ReadDir implements fs.ReadDirFS.
func (a *Archive) ReadDir(name string) ([]fs.DirEntry, error) {
	if err := cleanFSPath("readdir", name); err != nil {
		return nil, err
	}
	ino, err := a.FindInode(name, true)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: toFSErr(err)}
	}
	if !ino.IsDir() {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: ErrNotDirectory}
	}
	dr, err := a.Superblock.dirReader(ino, nil)
	if err != nil {
		return nil, err
	}
	return dr.ReadDir(-1)
}

// Sub implements fs.SubFS.
func (a *Archive) Sub(dir string) (fs.FS, error) {
	if dir == "." {
		return a, nil
	}
	if err := cleanFSPath("sub", dir); err != nil {
		return nil, err
	}
	ino, err := a.FindInode(dir, true)
	if err != nil {
		return nil, &fs.PathError{Op: "sub", Path: dir, Err: toFSErr(err)}
	}
	if !ino.IsDir() {
		return nil, &fs.PathError{Op: "sub", Path: dir, Err: ErrNotDirectory}
	}
	return &subArchive{a: a, root: ino, prefix: dir}, nil
}

// Glob implements fs.GlobFS using the generic fs.Glob algorithm over this
// archive's ReadDir/Open.
func (a *Archive) Glob(pattern string) ([]string, error) {
	return fs.Glob(fsAdapter{a}, pattern)
}

// fsAdapter lets fs.Glob recurse through Archive without re-implementing
// directory walking.
type fsAdapter struct{ a *Archive }

func (f fsAdapter) Open(name string) (fs.File, error) { return f.a.Open(name) }

// subArchive implements fs.FS for the tree rooted at a non-root directory,
// as returned by Archive.Sub. It resolves names with
// Inode.LookupRelativeInodePath starting from a fixed inode instead of the
// archive root.
type subArchive struct {
	a      *Archive
	root   *Inode
	prefix string
}

func (s *subArchive) Open(name string) (fs.File, error) {
	if err := cleanFSPath("open", name); err != nil {
		return nil, err
	}
	if name == "." {
		return s.root.OpenFile("."), nil
	}
	ino, err := s.root.LookupRelativeInodePath(context.Background(), name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: toFSErr(err)}
	}
	return ino.OpenFile(name), nil
}

// toFSErr maps this package's sentinel errors to the io/fs ones callers
// using the standard library (http.FileServer, fs.WalkDir) expect to see
// via errors.Is.
func toFSErr(err error) error {
	switch {
	case errors.Is(err, ErrNoSuchFile), errors.Is(err, fs.ErrNotExist):
		return fs.ErrNotExist
	case errors.Is(err, fs.ErrInvalid):
		return fs.ErrInvalid
	default:
		return err
	}
}
