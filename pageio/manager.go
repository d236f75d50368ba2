// Package pageio is the byte substrate of the storage engine: it reads and
// writes fixed-size physical pages positionally, chains them into logical
// records, and maintains the free-page list.
package pageio

import (
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/mvbtree/mvbtree/logger"
)

// debugf logs a page-allocation decision at the level reserved for hot-path
// storage events: debug, not info.
func debugf(format string, args ...interface{}) { logger.Debugf(format, args...) }

// MinPageSize is the smallest page size Open will accept: the global header
// needs 56 bytes (48 bytes of fields plus an 8-byte checksum) and must fit
// in a single page.
const MinPageSize = 64

// Manager owns the file handle, the configured page size, and the head of
// the free-page list. It performs no higher-level bookkeeping: callers
// (recordmgr) are responsible for persisting FirstFreePage() into the
// global header across commits.
type Manager struct {
	mu            sync.Mutex
	file          *os.File
	pageSize      uint32
	firstFreePage int64
	stats         Stats
}

// New wraps an already-open file. firstFreePage is the value recovered from
// the global header (-1 for a brand new file).
func New(file *os.File, pageSize uint32, firstFreePage int64) *Manager {
	return &Manager{file: file, pageSize: pageSize, firstFreePage: firstFreePage}
}

// PageSize returns the configured physical page size.
func (m *Manager) PageSize() uint32 { return m.pageSize }

// FirstFreePage returns the current head of the free-page list, for the
// caller to persist into the global header at commit time.
func (m *Manager) FirstFreePage() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.firstFreePage
}

// SetFirstFreePage overrides the free-list head, used when loading an
// existing file or rolling back to a pre-transaction value.
func (m *Manager) SetFirstFreePage(offset int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.firstFreePage = offset
}

// FileSize returns the file's current length, for callers (integrity) that
// need to enumerate every physical page slot.
func (m *Manager) FileSize() (int64, error) { return m.fileSize() }

func (m *Manager) fileSize() (int64, error) {
	info, err := m.file.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "pageio: stat")
	}
	return info.Size(), nil
}

// CheckOffset rejects negative, beyond-EOF, or non-pageSize-aligned offsets.
// -1 (the end-of-chain/free-list sentinel) always passes.
func (m *Manager) CheckOffset(offset int64) error {
	if offset == -1 {
		return nil
	}
	if offset < 0 {
		return newOpError("checkOffset", offset, ErrInvalidOffset)
	}
	size, err := m.fileSize()
	if err != nil {
		return err
	}
	if offset >= size {
		return newOpError("checkOffset", offset, ErrInvalidOffset)
	}
	if offset%int64(m.pageSize) != 0 {
		return newOpError("checkOffset", offset, ErrInvalidOffset)
	}
	return nil
}

// Fetch reads exactly pageSize bytes positionally at offset.
func (m *Manager) Fetch(offset int64) (*Page, error) {
	if err := m.CheckOffset(offset); err != nil {
		return nil, err
	}
	p := newPage(offset, m.pageSize)
	n, err := m.file.ReadAt(p.buf, offset)
	if err != nil {
		return nil, errors.Wrapf(err, "pageio: fetch at %d", offset)
	}
	if uint32(n) != m.pageSize {
		return nil, newOpError("fetch", offset, ErrEndOfFile)
	}
	m.stats.RecordRead()
	return p, nil
}

// Allocate returns a free page, preferring the free list; it extends the
// file by one pageSize-byte block otherwise. The returned page is always
// zero-length (logicalSize=0, nextPageOffset=-1).
func (m *Manager) Allocate() (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.firstFreePage != -1 {
		offset := m.firstFreePage
		p := newPage(offset, m.pageSize)
		n, err := m.file.ReadAt(p.buf, offset)
		if err != nil || uint32(n) != m.pageSize {
			return nil, newOpError("allocate", offset, ErrFreePageError)
		}
		m.firstFreePage = p.Next()
		p.zero()
		m.stats.RecordAllocate(false)
		return p, nil
	}

	size, err := m.fileSize()
	if err != nil {
		return nil, err
	}
	if err := m.file.Truncate(size + int64(m.pageSize)); err != nil {
		return nil, errors.Wrap(err, "pageio: extend file")
	}
	p := newPage(size, m.pageSize)
	p.zero()
	m.stats.RecordAllocate(true)
	debugf("pageio: extended file at offset %d", size)
	return p, nil
}

// Flush writes each page at its own offset.
func (m *Manager) Flush(pages ...*Page) error {
	for _, p := range pages {
		if _, err := m.file.WriteAt(p.buf, p.Offset); err != nil {
			return errors.Wrapf(err, "pageio: flush at %d", p.Offset)
		}
		m.stats.RecordWrite()
	}
	return nil
}

// ReadChain walks nextPageOffset starting at offset until either limit
// bytes of payload have been covered (limit<=0 means read the whole chain)
// or end-of-chain is reached.
func (m *Manager) ReadChain(offset int64, limit int) ([]*Page, error) {
	var pages []*Page
	consumed := 0
	cur := offset
	first := true
	for cur != -1 {
		p, err := m.Fetch(cur)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
		if first {
			consumed += len(p.FirstPayload())
			first = false
		} else {
			consumed += len(p.ExtPayload())
		}
		cur = p.Next()
		if limit > 0 && consumed >= limit {
			break
		}
	}
	return pages, nil
}

// Free pushes offsets onto the head of the free list, LIFO, so the most
// recently shadowed pages are the first to be reused. A commit frees its
// shadowed pages only after it has recorded the new header; a rollback uses
// this to return the pages its transaction allocated.
func (m *Manager) Free(offsets []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, offset := range offsets {
		p := newPage(offset, m.pageSize)
		p.SetNext(m.firstFreePage)
		p.SetLogicalSize(0)
		if _, err := m.file.WriteAt(p.buf, offset); err != nil {
			return errors.Wrapf(err, "pageio: free at %d", offset)
		}
		m.firstFreePage = offset
	}
	return nil
}

// Stats returns a snapshot of I/O counters: raw page reads, writes, and
// allocations, scoped to this Manager rather than any higher-level cache.
func (m *Manager) Stats() Stats {
	return m.stats.snapshot()
}

// Sync flushes the OS file buffers. The engine does not require fsync on
// every commit; callers that do want durable commits call this after
// Manager.Flush during RecordManager.Commit.
func (m *Manager) Sync() error {
	if err := m.file.Sync(); err != nil {
		return errors.Wrap(err, "pageio: sync")
	}
	return nil
}
