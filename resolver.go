package squashfs

import (
	"context"
	"io"
	"strings"
)

// maxPathHops bounds the total number of directory-entry and symlink-target
// traversals a single FindInode/resolver walk may perform. It guards
// against both deep symlink chains and pathologically long "a/../a/../..."
// style paths spending unbounded CPU walking the same few directories.
const maxPathHops = 64

// resolverFrame is one level of the stack a pathResolver keeps while
// walking down into directories; it lets Up() return to the parent without
// re-resolving the path from the root.
type resolverFrame struct {
	dir *Inode
}

// pathResolver is a cursor-based walker over an archive's directory tree:
// Down()/Up() move between directory levels, Lookup() positions the cursor
// on a named child without leaving the current directory, and Next()
// advances a plain directory scan. It is the primitive Walker and
// Archive.FindInode are both built on.
type pathResolver struct {
	sb      *Superblock
	stack   []resolverFrame
	current *Inode // the entry Lookup/Next last landed on, if any
	curName string
	dr      *dirReader
}

func newPathResolver(sb *Superblock) *pathResolver {
	return &pathResolver{sb: sb, stack: []resolverFrame{{dir: sb.rootIno}}}
}

func (p *pathResolver) top() *Inode {
	return p.stack[len(p.stack)-1].dir
}

// ToRoot resets the cursor to the archive root.
func (p *pathResolver) ToRoot() {
	p.stack = p.stack[:1]
	p.stack[0] = resolverFrame{dir: p.sb.rootIno}
	p.current = nil
	p.dr = nil
}

// Up moves the cursor to the parent of the current directory level.
func (p *pathResolver) Up() error {
	if len(p.stack) <= 1 {
		return ErrWalkerCannotGoUp
	}
	p.stack = p.stack[:len(p.stack)-1]
	p.current = nil
	p.dr = nil
	return nil
}

// Down descends into the directory last selected by Lookup or Next.
func (p *pathResolver) Down() error {
	if p.current == nil || !p.current.IsDir() {
		return ErrWalkerCannotGoDown
	}
	p.stack = append(p.stack, resolverFrame{dir: p.current})
	p.current = nil
	p.dr = nil
	return nil
}

// Lookup positions the cursor on the named child of the current directory
// without descending into it. It uses the directory index for a
// logarithmic-ish fast path when the current directory is large enough to
// carry one.
func (p *pathResolver) Lookup(name string) error {
	dir := p.top()

	seek, err := p.bestIndexSeek(dir, name)
	if err != nil {
		return err
	}

	dr, err := p.sb.dirReader(dir, seek)
	if err != nil {
		return err
	}
	for {
		ename, inoR, err := dr.next()
		if err == io.EOF {
			return ErrNoSuchFile
		}
		if err != nil {
			return err
		}
		if ename == name {
			found, err := p.sb.GetInodeRef(inoR)
			if err != nil {
				return err
			}
			p.sb.setInodeRefCache(found.Ino, inoR)
			p.current = found
			p.curName = ename
			return nil
		}
	}
}

// bestIndexSeek picks the directory index entry (if any) whose name sorts
// at or before name, letting Lookup skip straight past everything before
// it instead of scanning from the first directory header.
func (p *pathResolver) bestIndexSeek(dir *Inode, name string) (*DirIndexEntry, error) {
	if dir.IdxCount == 0 {
		return nil, nil
	}
	entries, err := dir.DirIndex()
	if err != nil {
		return nil, err
	}

	var best *DirIndexEntry
	for i := range entries {
		if dirNameLess(entries[i].Name, name) || entries[i].Name == name {
			best = &entries[i]
		} else {
			break
		}
	}
	return best, nil
}

// dirNameLess orders directory entries the way SquashFS directories are
// actually sorted on disk: first by byte length, then lexicographically.
// A naive strncmp-style prefix comparison (the on-disk tool's own
// historical behavior) gets this wrong for names that share a prefix but
// differ in length, e.g. "foo" vs "foobar".
func dirNameLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// Next advances a plain (unindexed) scan of the current directory,
// returning false once its entries are exhausted.
func (p *pathResolver) Next() (bool, error) {
	if p.dr == nil {
		dr, err := p.sb.dirReader(p.top(), nil)
		if err != nil {
			return false, err
		}
		p.dr = dr
	}

	ename, inoR, err := p.dr.next()
	if err != nil {
		if err == io.EOF {
			return false, nil
		}
		return false, err
	}

	found, err := p.sb.GetInodeRef(inoR)
	if err != nil {
		return false, err
	}
	p.sb.setInodeRefCache(found.Ino, inoR)
	p.current = found
	p.curName = ename
	return true, nil
}

// CurrentName and CurrentInode describe the entry Lookup/Next last landed
// the cursor on.
func (p *pathResolver) CurrentName() string { return p.curName }
func (p *pathResolver) CurrentInode() *Inode {
	return p.current
}

// Resolve walks path component by component from the cursor's current
// position, descending into directories and (optionally) following
// symlinks, returning the inode path ultimately names.
//
// The maxPathHops budget is shared across the whole call tree (including
// every symlink indirection resolveFrom recurses into), via the hops
// pointer, so a self-referential or mutually-referential symlink chain
// (a -> a, or a -> b -> a) is bounded by one counter instead of each
// recursive Resolve call resetting its own: without that sharing, a
// symlink cycle would recurse until the goroutine stack overflows rather
// than returning ErrTooManySymlinks.
func (p *pathResolver) Resolve(ctx context.Context, path string, followLinks bool) (*Inode, error) {
	hops := maxPathHops
	return p.resolveFrom(ctx, p.top(), path, followLinks, &hops)
}

// resolveFrom is Resolve's recursive core: start is the directory path is
// resolved relative to (the resolver's cursor for a top-level call, or the
// directory containing a symlink for a followed indirection, matching how
// relative symlink targets are actually interpreted).
func (p *pathResolver) resolveFrom(ctx context.Context, start *Inode, path string, followLinks bool, hops *int) (*Inode, error) {
	cur := start

	for len(path) > 0 {
		pos := strings.IndexByte(path, '/')
		var seg string
		if pos == -1 {
			seg, path = path, ""
		} else {
			seg, path = path[:pos], path[pos+1:]
		}
		if seg == "" {
			continue
		}

		if *hops == 0 {
			return nil, ErrTooManySymlinks
		}
		*hops--

		var next *Inode
		var err error
		switch seg {
		case ".":
			next = cur
		case "..":
			next, err = p.sb.resolveInodeNumber(uint64(cur.ParentIno))
		default:
			next, err = cur.LookupRelativeInode(ctx, seg)
		}
		if err != nil {
			return nil, err
		}

		for followLinks && (next.Type == 3 || next.Type == 10) {
			if *hops == 0 {
				return nil, ErrTooManySymlinks
			}
			*hops--
			target, err := next.Readlink()
			if err != nil {
				return nil, err
			}

			// An absolute target is resolved from the archive root; a
			// relative one is resolved from the directory containing the
			// symlink (cur), not from the resolver's own cursor position.
			base := cur
			targetPath := string(target)
			if strings.HasPrefix(targetPath, "/") {
				base = p.sb.rootIno
				targetPath = strings.TrimPrefix(targetPath, "/")
			}

			resolved, err := p.resolveFrom(ctx, base, targetPath, true, hops)
			if err != nil {
				return nil, err
			}
			next = resolved
		}

		cur = next
	}

	return cur, nil
}
