package record

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/mvbtree/mvbtree/pageio"
)

// Writer accumulates a logical record's bytes in memory; WritePages then
// distributes the accumulated bytes across a freshly allocated page chain.
// Building the whole record before paginating keeps boundary-straddling
// values (an integer or blob split across two pages) a non-issue: the split
// only happens once, at the very end, against the page capacity formula.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// WriteUint32 appends a big-endian uint32.
func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

// WriteUint64 appends a big-endian uint64.
func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

// WriteInt64 appends a big-endian int64, used for page offsets including -1.
func (w *Writer) WriteInt64(v int64) { w.WriteUint64(uint64(v)) }

// WriteBlob appends a length-prefixed byte blob. A nil or empty slice is
// encoded as len==0, the "absent" sentinel.
func (w *Writer) WriteBlob(b []byte) {
	w.WriteUint32(uint32(len(b)))
	w.buf.Write(b)
}

// WriteRaw appends b verbatim, with no length prefix. Used when the caller
// is embedding an already-framed sub-record (a Node's data block).
func (w *Writer) WriteRaw(b []byte) { w.buf.Write(b) }

// Bytes returns the accumulated record, unframed.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Len returns the number of bytes accumulated so far.
func (w *Writer) Len() int { return w.buf.Len() }

// WritePages allocates a fresh page chain from mgr, lays out data across it
// per the first-page/continuation-page capacity split, links nextPageOffset,
// and stamps logicalSize on the first page. The caller flushes the returned
// pages (recordmgr batches flushes across an entire transaction before
// committing).
func WritePages(mgr *pageio.Manager, data []byte) (int64, []*pageio.Page, error) {
	pageSize := mgr.PageSize()
	first, err := mgr.Allocate()
	if err != nil {
		return -1, nil, errors.Wrap(err, "record: allocate first page")
	}
	pages := []*pageio.Page{first}
	first.SetLogicalSize(uint32(len(data)))

	written := 0
	cap0 := firstPayload(pageSize)
	n := len(data)
	if n < cap0 {
		copy(first.FirstPayload(), data)
		return first.Offset, pages, nil
	}
	copy(first.FirstPayload(), data[:cap0])
	written = cap0

	prev := first
	capN := extPayload(pageSize)
	for written < n {
		p, err := mgr.Allocate()
		if err != nil {
			return -1, nil, errors.Wrap(err, "record: allocate continuation page")
		}
		prev.SetNext(p.Offset)
		end := written + capN
		if end > n {
			end = n
		}
		copy(p.ExtPayload(), data[written:end])
		written = end
		pages = append(pages, p)
		prev = p
	}
	return first.Offset, pages, nil
}
