package pageio

import "encoding/binary"

// Page is one physical, fixed-size block plus its in-memory buffer.
//
// On-disk layout: the first 8 bytes are the
// nextPageOffset link (-1 marks end-of-chain or end-of-free-list), the
// following 4 bytes are the logicalSize of the chain this page heads — that
// field is only meaningful when the page is the first page of a chain. On
// any later page of the chain those 4 bytes are simply unused header space
// that the serialization layer reclaims as payload (see record.OffsetToPagePos),
// which is why a first page carries pageSize-12 payload bytes and a
// continuation page carries pageSize-8.
type Page struct {
	Offset int64
	buf    []byte
}

func newPage(offset int64, pageSize uint32) *Page {
	return &Page{Offset: offset, buf: make([]byte, pageSize)}
}

// Next returns the nextPageOffset link (-1 if end-of-chain/free-list).
func (p *Page) Next() int64 {
	return int64(binary.BigEndian.Uint64(p.buf[0:8]))
}

// SetNext sets the nextPageOffset link.
func (p *Page) SetNext(offset int64) {
	binary.BigEndian.PutUint64(p.buf[0:8], uint64(offset))
}

// LogicalSize returns the chain's total payload length. Only meaningful on
// the first page of a chain.
func (p *Page) LogicalSize() uint32 {
	return binary.BigEndian.Uint32(p.buf[8:12])
}

// SetLogicalSize sets the chain's total payload length; callers only do this
// on the first page of a chain.
func (p *Page) SetLogicalSize(n uint32) {
	binary.BigEndian.PutUint32(p.buf[8:12], n)
}

// FirstPayload returns the payload region used when this page heads a chain:
// pageSize-12 bytes, starting after nextPageOffset+logicalSize.
func (p *Page) FirstPayload() []byte {
	return p.buf[12:]
}

// ExtPayload returns the payload region used when this page continues a
// chain: pageSize-8 bytes, starting right after nextPageOffset.
func (p *Page) ExtPayload() []byte {
	return p.buf[8:]
}

// Raw returns the full pageSize-byte buffer, header and payload together.
// Used by recordmgr to read and rewrite the global header page.
func (p *Page) Raw() []byte {
	return p.buf
}

func (p *Page) zero() {
	for i := range p.buf {
		p.buf[i] = 0
	}
	p.SetNext(-1)
}
