package record

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/mvbtree/mvbtree/pageio"
)

// Reader walks a fetched page chain as a flat, randomly-seekable byte
// stream, translating a virtual position into (pageIndex, pagePos) via
// OffsetToPagePos on every read.
type Reader struct {
	pages    []*pageio.Page
	pageSize uint32
	pos      int64
	size     int64
}

// ReadPages opens a Reader directly from an already-fetched chain, trusting
// the first page's LogicalSize. ReadRecord uses it after fetching the chain;
// it is exported for callers that fetched a chain themselves.
func ReadPages(pages []*pageio.Page, pageSize uint32) *Reader {
	size := int64(0)
	if len(pages) > 0 {
		size = int64(pages[0].LogicalSize())
	}
	return &Reader{pages: pages, pageSize: pageSize, size: size}
}

// ReadRecord fetches the full chain starting at offset and opens a Reader
// over it.
func ReadRecord(mgr *pageio.Manager, offset int64) (*Reader, error) {
	pages, err := mgr.ReadChain(offset, 0)
	if err != nil {
		return nil, errors.Wrap(err, "record: read chain")
	}
	if len(pages) == 0 {
		return nil, errors.New("record: empty chain")
	}
	return ReadPages(pages, mgr.PageSize()), nil
}

// Len returns the logical record's total payload length.
func (r *Reader) Len() int64 { return r.size }

// Pos returns the current virtual read position.
func (r *Reader) Pos() int64 { return r.pos }

// Seek repositions the virtual cursor.
func (r *Reader) Seek(pos int64) { r.pos = pos }

// Pages exposes the underlying chain, for callers that need page offsets
// (e.g. to shadow them on the next CoW touch).
func (r *Reader) Pages() []*pageio.Page { return r.pages }

func (r *Reader) readRaw(n int) ([]byte, error) {
	if r.pos+int64(n) > r.size {
		return nil, io.ErrUnexpectedEOF
	}
	out := make([]byte, n)
	read := 0
	for read < n {
		idx, pos := OffsetToPagePos(r.pos, r.pageSize)
		if idx >= len(r.pages) {
			return nil, io.ErrUnexpectedEOF
		}
		payload := payloadOf(r.pages, idx)
		avail := len(payload) - pos
		chunk := n - read
		if chunk > avail {
			chunk = avail
		}
		copy(out[read:read+chunk], payload[pos:pos+chunk])
		read += chunk
		r.pos += int64(chunk)
	}
	return out, nil
}

// ReadUint32 reads a big-endian uint32, advancing the cursor.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.readRaw(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadUint64 reads a big-endian uint64, advancing the cursor.
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.readRaw(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadInt64 reads a big-endian int64 (used for page offsets, including -1).
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// ReadBlob reads a length-prefixed byte blob. A zero length returns a nil
// slice, the "absent" sentinel.
func (r *Reader) ReadBlob() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return r.readRaw(int(n))
}

// ReadRaw reads n unframed bytes verbatim.
func (r *Reader) ReadRaw(n int) ([]byte, error) { return r.readRaw(n) }
