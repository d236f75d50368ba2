package recordmgr

import (
	"encoding/binary"

	"github.com/OneOfOne/xxhash"
	jerrors "github.com/juju/errors"
)

// headerFieldsSize is the meaningful portion of the global header's seven
// fields: pageSize(4) + managedTreeCount(4) + firstFreePage(8) +
// currentBobOffset(8) + previousBobOffset(8) + currentCpbOffset(8) +
// previousCpbOffset(8).
const headerFieldsSize = 4 + 4 + 8 + 8 + 8 + 8 + 8

// checksumSize is the trailing xxhash-64 of the 48 meaningful bytes, placed
// right after them; everything past it, up to pageSize, is zero padding.
const checksumSize = 8

// globalHeader is the one-page record rewritten in place on every commit.
type globalHeader struct {
	pageSize          uint32
	managedTreeCount  uint32
	firstFreePage     int64
	currentBobOffset  int64
	previousBobOffset int64
	currentCpbOffset  int64
	previousCpbOffset int64
}

func (h *globalHeader) marshal(pageSize uint32) []byte {
	buf := make([]byte, pageSize)
	binary.BigEndian.PutUint32(buf[0:4], h.pageSize)
	binary.BigEndian.PutUint32(buf[4:8], h.managedTreeCount)
	binary.BigEndian.PutUint64(buf[8:16], uint64(h.firstFreePage))
	binary.BigEndian.PutUint64(buf[16:24], uint64(h.currentBobOffset))
	binary.BigEndian.PutUint64(buf[24:32], uint64(h.previousBobOffset))
	binary.BigEndian.PutUint64(buf[32:40], uint64(h.currentCpbOffset))
	binary.BigEndian.PutUint64(buf[40:48], uint64(h.previousCpbOffset))
	sum := checksum(buf[:headerFieldsSize])
	binary.BigEndian.PutUint64(buf[headerFieldsSize:headerFieldsSize+checksumSize], sum)
	return buf
}

// checksum hashes b with xxhash-64.
func checksum(b []byte) uint64 {
	h := xxhash.New64()
	h.Write(b)
	return h.Sum64()
}

// unmarshalHeader parses buf and verifies its checksum, returning
// errInvalidHeader (wrapped) on a mismatch. recordmgr.Open gives up on such
// a header; its fallback to the previous offsets (SUPPLEMENTED FEATURES
// item 5) covers only an unreadable BTreeHeader record.
func unmarshalHeader(buf []byte) (*globalHeader, error) {
	if len(buf) < headerFieldsSize+checksumSize {
		return nil, wrap("unmarshalHeader", errInvalidHeader)
	}
	want := binary.BigEndian.Uint64(buf[headerFieldsSize : headerFieldsSize+checksumSize])
	got := checksum(buf[:headerFieldsSize])
	if want != got {
		return nil, jerrors.Annotatef(errInvalidHeader, "recordmgr: header checksum mismatch (want %x got %x)", want, got)
	}
	h := &globalHeader{
		pageSize:          binary.BigEndian.Uint32(buf[0:4]),
		managedTreeCount:  binary.BigEndian.Uint32(buf[4:8]),
		firstFreePage:     int64(binary.BigEndian.Uint64(buf[8:16])),
		currentBobOffset:  int64(binary.BigEndian.Uint64(buf[16:24])),
		previousBobOffset: int64(binary.BigEndian.Uint64(buf[24:32])),
		currentCpbOffset:  int64(binary.BigEndian.Uint64(buf[32:40])),
		previousCpbOffset: int64(binary.BigEndian.Uint64(buf[40:48])),
	}
	return h, nil
}
