package squashfs

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// Source is the abstraction every backing store for an archive implements:
// a plain random-access byte range. Superblock only ever needs an
// io.ReaderAt, so any Source also satisfies that interface directly and can
// be passed straight to New.
type Source interface {
	ReadAt(p []byte, off int64) (int, error)
	Close() error
}

// MemorySource serves an archive that has already been loaded entirely into
// memory (e.g. embedded via go:embed, or fetched up front).
type MemorySource struct {
	data []byte
}

func NewMemorySource(data []byte) *MemorySource {
	return &MemorySource{data: data}
}

func (m *MemorySource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.data)) {
		return 0, fmt.Errorf("%w: offset %d", ErrOutOfBounds, off)
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, fmt.Errorf("%w: short read at %d", ErrOutOfBounds, off)
	}
	return n, nil
}

func (m *MemorySource) Close() error { return nil }

// LocalSource serves an archive from a local file via mmap, avoiding a
// syscall per read for the common case of reading a file that already
// lives on local disk. Open does not use it: it reads through an *os.File.
type LocalSource struct {
	f    *os.File
	data []byte
}

// NewLocalSource mmaps path read-only for the lifetime of the returned
// Source; Close() unmaps it and closes the file.
func NewLocalSource(path string) (*LocalSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMapperInit, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %w", ErrMapperInit, err)
	}
	if st.Size() == 0 {
		f.Close()
		return nil, fmt.Errorf("%w: empty file", ErrMapperInit)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: mmap: %w", ErrMapperInit, err)
	}

	return &LocalSource{f: f, data: data}, nil
}

func (l *LocalSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(l.data)) {
		return 0, fmt.Errorf("%w: offset %d", ErrOutOfBounds, off)
	}
	n := copy(p, l.data[off:])
	if n < len(p) {
		return n, fmt.Errorf("%w: short read at %d", ErrOutOfBounds, off)
	}
	return n, nil
}

func (l *LocalSource) Close() error {
	err := unix.Munmap(l.data)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// HTTPSource serves an archive over HTTP using Range requests, for reading
// a SquashFS image that lives on a remote object store without downloading
// it in full. It tracks the Last-Modified value seen on the first request
// and latches ErrMutationDetected permanently if a later response disagrees
// — once the remote file changes mid-session, every subsequent read fails
// rather than silently mixing bytes from two versions of the archive.
type HTTPSource struct {
	client *http.Client
	url    string

	mu      sync.Mutex
	lastMod string
	mutated bool
}

func NewHTTPSource(client *http.Client, url string) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{client: client, url: url}
}

func (h *HTTPSource) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	h.mu.Lock()
	if h.mutated {
		h.mu.Unlock()
		return 0, ErrMutationDetected
	}
	h.mu.Unlock()

	req, err := http.NewRequest(http.MethodGet, h.url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMapperMap, err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+int64(len(p))-1))

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMapperMap, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("%w: status %s", ErrMapperMap, resp.Status)
	}

	lastMod := resp.Header.Get("Last-Modified")
	if lastMod != "" {
		h.mu.Lock()
		if h.lastMod == "" {
			h.lastMod = lastMod
		} else if h.lastMod != lastMod {
			h.mutated = true
			h.mu.Unlock()
			return 0, ErrMutationDetected
		}
		h.mu.Unlock()
	}

	if err := checkContentRange(resp.Header.Get("Content-Range"), off); err != nil {
		return 0, err
	}

	n := 0
	for n < len(p) {
		m, err := resp.Body.Read(p[n:])
		n += m
		if err != nil {
			if n == len(p) {
				break
			}
			return n, fmt.Errorf("%w: %w", ErrMapperMap, err)
		}
	}
	return n, nil
}

// checkContentRange validates that a 206 response's Content-Range header
// actually starts at the byte offset we asked for, guarding against a
// misbehaving server or proxy silently returning the wrong slice.
func checkContentRange(header string, wantStart int64) error {
	if !strings.HasPrefix(header, "bytes ") {
		return ErrInvalidRangeHeader
	}
	spec := strings.TrimPrefix(header, "bytes ")
	dash := strings.IndexByte(spec, '-')
	if dash <= 0 {
		return ErrInvalidRangeHeader
	}
	start, err := strconv.ParseInt(spec[:dash], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRangeHeader, err)
	}
	if start != wantStart {
		return fmt.Errorf("%w: got start %d, want %d", ErrInvalidRangeHeader, start, wantStart)
	}
	return nil
}

func (h *HTTPSource) Close() error { return nil }
