package pageio

import "sync/atomic"

// Stats holds atomic I/O counters for a Manager, trimmed down from the
// teacher's buffer-pool statistics (which also tracked cache hit ratios and
// prefetch/flush-queue counters that don't apply here — pageio has no
// cache, recordmgr's tree pages are the only cache-like layer).
type Stats struct {
	reads     int64
	writes    int64
	allocs    int64
	extends   int64
	freeReads int64
}

func (s *Stats) RecordRead()  { atomic.AddInt64(&s.reads, 1) }
func (s *Stats) RecordWrite() { atomic.AddInt64(&s.writes, 1) }

func (s *Stats) RecordAllocate(extended bool) {
	atomic.AddInt64(&s.allocs, 1)
	if extended {
		atomic.AddInt64(&s.extends, 1)
	} else {
		atomic.AddInt64(&s.freeReads, 1)
	}
}

func (s *Stats) snapshot() Stats {
	return Stats{
		reads:     atomic.LoadInt64(&s.reads),
		writes:    atomic.LoadInt64(&s.writes),
		allocs:    atomic.LoadInt64(&s.allocs),
		extends:   atomic.LoadInt64(&s.extends),
		freeReads: atomic.LoadInt64(&s.freeReads),
	}
}

// Reads is the number of pages fetched from disk.
func (s Stats) Reads() int64 { return s.reads }

// Writes is the number of pages flushed to disk.
func (s Stats) Writes() int64 { return s.writes }

// Allocations is the number of pages handed out by Allocate.
func (s Stats) Allocations() int64 { return s.allocs }

// FromFreeList is the subset of Allocations served by popping the free
// list rather than extending the file.
func (s Stats) FromFreeList() int64 { return s.freeReads }

// FileExtensions is the subset of Allocations that grew the file.
func (s Stats) FileExtensions() int64 { return s.extends }
