package squashfs

import "sync"

// defaultCompressionLRUSize mirrors the default lru size used to keep
// recently decompressed metadata/data blocks around across unrelated reads.
const defaultCompressionLRUSize = 128

// extractManager deduplicates decompression work for a single archive: a
// compressed byte range starting at a given source address is decompressed
// at most once per cache generation, and the result is shared by every
// reader that asks for the same address while it is still referenced (or
// still warm in the LRU ring).
//
// The lock is held only around the cache lookup/insert, never across the
// actual decompression call, so two readers racing on the same address can
// both decompress; the second installer's result is discarded in favor of
// the first (see rcHashMap.Put) and only the loser's CPU time is wasted.
type extractManager struct {
	mu     sync.Mutex
	comp   Compression
	blocks *rcHashMap[uint64, []byte]
	lru    *lruRing[uint64]
}

func newExtractManager(comp Compression, lruSize int) *extractManager {
	blocks := newRCHashMap[uint64, []byte]()
	return &extractManager{
		comp:   comp,
		blocks: blocks,
		lru:    newLRURing[uint64](lruSize, blocks),
	}
}

// decompress returns the decompressed form of raw, which was read from the
// archive starting at byte address addr. If addr is already cached the raw
// bytes are ignored and the cached buffer is returned (and its refcount
// bumped); the caller must call release(addr) once done with the result.
func (m *extractManager) decompress(addr uint64, raw []byte) ([]byte, error) {
	m.mu.Lock()
	if cached, ok := m.blocks.Retain(addr); ok {
		m.lru.touch(addr)
		m.mu.Unlock()
		return cached, nil
	}
	m.mu.Unlock()

	out, err := m.comp.decompress(raw)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	installed := m.blocks.Put(addr, out)
	m.lru.touch(addr)
	m.mu.Unlock()

	return installed, nil
}

// release drops one reference to the cache entry at addr, previously
// obtained from decompress.
func (m *extractManager) release(addr uint64) {
	m.mu.Lock()
	m.blocks.Release(addr)
	m.mu.Unlock()
}

// close releases everything the LRU ring is still pinning.
func (m *extractManager) close() {
	m.mu.Lock()
	m.lru.cleanup()
	m.mu.Unlock()
}
