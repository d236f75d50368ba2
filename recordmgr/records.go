package recordmgr

import (
	"github.com/mvbtree/mvbtree/pageio"
	"github.com/mvbtree/mvbtree/record"
)

// btreeInfo is the immutable per-tree descriptor, written once when a tree
// starts being managed. The fan-out field (max children per node) is
// spelled fanout here to avoid colliding with the physical pageSize the
// global header already owns.
type btreeInfo struct {
	fanout          uint32
	name            string
	keyCodecName    string
	valueCodecName  string
	allowDuplicates bool
}

// encodeBTreeInfo serializes info with a trailing xxhash-64.
func encodeBTreeInfo(info *btreeInfo) []byte {
	w := record.NewWriter()
	w.WriteUint32(info.fanout)
	w.WriteBlob([]byte(info.name))
	w.WriteBlob([]byte(info.keyCodecName))
	w.WriteBlob([]byte(info.valueCodecName))
	if info.allowDuplicates {
		w.WriteUint32(1)
	} else {
		w.WriteUint32(0)
	}
	body := w.Bytes()
	sum := checksum(body)
	full := record.NewWriter()
	full.WriteRaw(body)
	full.WriteUint64(sum)
	return full.Bytes()
}

func writeBTreeInfo(mgr *pageio.Manager, info *btreeInfo) (int64, []*pageio.Page, error) {
	return record.WritePages(mgr, encodeBTreeInfo(info))
}

func readBTreeInfo(mgr *pageio.Manager, offset int64) (*btreeInfo, error) {
	r, err := record.ReadRecord(mgr, offset)
	if err != nil {
		return nil, wrap("readBTreeInfo", err)
	}
	fanout, err := r.ReadUint32()
	if err != nil {
		return nil, wrap("readBTreeInfo: fanout", err)
	}
	name, err := r.ReadBlob()
	if err != nil {
		return nil, wrap("readBTreeInfo: name", err)
	}
	keyCodecName, err := r.ReadBlob()
	if err != nil {
		return nil, wrap("readBTreeInfo: keyCodecName", err)
	}
	valCodecName, err := r.ReadBlob()
	if err != nil {
		return nil, wrap("readBTreeInfo: valueCodecName", err)
	}
	dupFlag, err := r.ReadUint32()
	if err != nil {
		return nil, wrap("readBTreeInfo: allowDuplicates", err)
	}
	bodyLen := r.Pos()
	want, err := r.ReadUint64()
	if err != nil {
		return nil, wrap("readBTreeInfo: checksum", err)
	}
	r.Seek(0)
	body, err := r.ReadRaw(int(bodyLen))
	if err != nil {
		return nil, wrap("readBTreeInfo: reread body", err)
	}
	if got := checksum(body); got != want {
		return nil, wrap("readBTreeInfo", errInvalidHeader)
	}
	return &btreeInfo{
		fanout:          fanout,
		name:            string(name),
		keyCodecName:    string(keyCodecName),
		valueCodecName:  string(valCodecName),
		allowDuplicates: dupFlag != 0,
	}, nil
}

// btreeHeaderRecord is the per-revision pointer record: fixed 32 bytes, no
// checksum, its layout pinned exactly unlike btreeInfo and the global
// header.
type btreeHeaderRecord struct {
	revision        uint64
	elementCount    uint64
	rootPageOffset  int64
	btreeInfoOffset int64
}

func writeBTreeHeader(mgr *pageio.Manager, h *btreeHeaderRecord) (int64, []*pageio.Page, error) {
	w := record.NewWriter()
	w.WriteUint64(h.revision)
	w.WriteUint64(h.elementCount)
	w.WriteInt64(h.rootPageOffset)
	w.WriteInt64(h.btreeInfoOffset)
	return record.WritePages(mgr, w.Bytes())
}

func readBTreeHeader(mgr *pageio.Manager, offset int64) (*btreeHeaderRecord, error) {
	r, err := record.ReadRecord(mgr, offset)
	if err != nil {
		return nil, wrap("readBTreeHeader", err)
	}
	rev, err := r.ReadUint64()
	if err != nil {
		return nil, wrap("readBTreeHeader: revision", err)
	}
	count, err := r.ReadUint64()
	if err != nil {
		return nil, wrap("readBTreeHeader: elementCount", err)
	}
	root, err := r.ReadInt64()
	if err != nil {
		return nil, wrap("readBTreeHeader: rootPageOffset", err)
	}
	info, err := r.ReadInt64()
	if err != nil {
		return nil, wrap("readBTreeHeader: btreeInfoOffset", err)
	}
	return &btreeHeaderRecord{revision: rev, elementCount: count, rootPageOffset: root, btreeInfoOffset: info}, nil
}
