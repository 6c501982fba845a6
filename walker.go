package squashfs

import (
	"context"
	"io/fs"
)

// Walker is a cursor-based tree walker over an Archive's directory
// structure: Down/Up move between directory levels, Next advances a scan of
// the current directory, and Lookup/Resolve jump straight to a named entry
// or a whole path. It is a thin public wrapper over the resolver every
// Archive path lookup already uses internally — exposed directly for
// callers that want to walk without repeatedly re-resolving a path from the
// root (e.g. printing a recursive listing).
type Walker struct {
	r *pathResolver
}

// NewWalker returns a Walker positioned at the archive root.
func NewWalker(a *Archive) *Walker {
	return &Walker{r: newPathResolver(a.Superblock)}
}

// ToRoot resets the cursor to the archive root.
func (w *Walker) ToRoot() { w.r.ToRoot() }

// Up moves to the parent of the current directory level. It fails if
// already at the root.
func (w *Walker) Up() error { return w.r.Up() }

// Down descends into the directory last selected by Lookup or Next. It
// fails if the current entry isn't a directory.
func (w *Walker) Down() error { return w.r.Down() }

// Lookup positions the cursor on the named child of the current directory
// without descending into it.
func (w *Walker) Lookup(name string) error { return w.r.Lookup(name) }

// Next advances a scan of the current directory's entries, returning false
// once they are exhausted.
func (w *Walker) Next() (bool, error) { return w.r.Next() }

// Name returns the name of the entry the cursor currently sits on, valid
// after a successful Lookup or Next.
func (w *Walker) Name() string { return w.r.CurrentName() }

// Inode returns the inode of the entry the cursor currently sits on, valid
// after a successful Lookup or Next.
func (w *Walker) Inode() *Inode { return w.r.CurrentInode() }

// Resolve walks a whole slash-separated path from the cursor's current
// position, descending into directories and optionally following symlinks.
func (w *Walker) Resolve(ctx context.Context, path string, followLinks bool) (*Inode, error) {
	return w.r.Resolve(ctx, path, followLinks)
}

// OpenFile opens the entry the cursor currently sits on as a file, under
// the given display name (used only for error messages and FileInfo.Name).
func (w *Walker) OpenFile(name string) fs.File {
	return w.r.CurrentInode().OpenFile(name)
}
