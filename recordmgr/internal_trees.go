package recordmgr

import (
	"bytes"
	"encoding/binary"
)

// bobKey is the Btree-of-Btrees key: (treeName, revision) per the glossary.
type bobKey struct {
	Name     string
	Revision uint64
}

// bobKeyCodec orders bobKey first by name, then by revision — so a cursor
// walk over one name's entries is contiguous and ascending by revision.
// Manager.reopenManagedTrees walks every entry and keeps the highest
// revision per name in a map.
type bobKeyCodec struct{}

func (bobKeyCodec) Name() string { return "$bobkey" }

func (bobKeyCodec) Encode(v interface{}) []byte {
	k := v.(bobKey)
	b := make([]byte, 4+len(k.Name)+8)
	binary.BigEndian.PutUint32(b[0:4], uint32(len(k.Name)))
	copy(b[4:], k.Name)
	binary.BigEndian.PutUint64(b[4+len(k.Name):], k.Revision)
	return b
}

func (bobKeyCodec) Decode(b []byte) interface{} {
	n := binary.BigEndian.Uint32(b[0:4])
	name := string(b[4 : 4+n])
	rev := binary.BigEndian.Uint64(b[4+n:])
	return bobKey{Name: name, Revision: rev}
}

func (bobKeyCodec) Compare(a, b interface{}) int {
	ak, bk := a.(bobKey), b.(bobKey)
	if c := bytes.Compare([]byte(ak.Name), []byte(bk.Name)); c != 0 {
		return c
	}
	switch {
	case ak.Revision < bk.Revision:
		return -1
	case ak.Revision > bk.Revision:
		return 1
	default:
		return 0
	}
}

// offsetCodec stores a single BTreeHeader offset as 8 big-endian bytes, the
// Btree-of-Btrees value type (glossary: "(treeName, revision) →
// btreeHeaderOffset").
type offsetCodec struct{}

func (offsetCodec) Name() string { return "$offset" }
func (offsetCodec) Encode(v interface{}) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v.(int64)))
	return b
}
func (offsetCodec) Decode(b []byte) interface{} { return int64(binary.BigEndian.Uint64(b)) }

// cpbKey is the CopiedPagesBtree key: (revision, treeName) per the glossary
// (reversed from bobKey so a cursor walk groups all trees shadowed by one
// revision together; ReleaseRevision looks up a single (revision, name) key).
type cpbKey struct {
	Revision uint64
	Name     string
}

type cpbKeyCodec struct{}

func (cpbKeyCodec) Name() string { return "$cpbkey" }

func (cpbKeyCodec) Encode(v interface{}) []byte {
	k := v.(cpbKey)
	b := make([]byte, 8+len(k.Name))
	binary.BigEndian.PutUint64(b[0:8], k.Revision)
	copy(b[8:], k.Name)
	return b
}

func (cpbKeyCodec) Decode(b []byte) interface{} {
	rev := binary.BigEndian.Uint64(b[0:8])
	return cpbKey{Revision: rev, Name: string(b[8:])}
}

func (cpbKeyCodec) Compare(a, b interface{}) int {
	ak, bk := a.(cpbKey), b.(cpbKey)
	switch {
	case ak.Revision < bk.Revision:
		return -1
	case ak.Revision > bk.Revision:
		return 1
	}
	return bytes.Compare([]byte(ak.Name), []byte(bk.Name))
}

// RevisionOffsets bundles a revision with the pages it shadowed while a
// transaction ran. Apache Mavibot's equivalent type compares only the
// revision for equality; this type's Equal compares both fields together,
// since two RevisionOffsets sharing a revision but disagreeing on which
// pages it shadowed are not actually equal.
type RevisionOffsets struct {
	Revision uint64
	Offsets  []int64
}

// Equal reports whether r and o carry the same revision and, in order, the
// same offsets.
func (r RevisionOffsets) Equal(o RevisionOffsets) bool {
	if r.Revision != o.Revision || len(r.Offsets) != len(o.Offsets) {
		return false
	}
	for i := range r.Offsets {
		if r.Offsets[i] != o.Offsets[i] {
			return false
		}
	}
	return true
}

// revisionOffsetsCodec stores a RevisionOffsets, the CopiedPagesBtree value
// type: revision(8) + count(4) + offsets.
type revisionOffsetsCodec struct{}

func (revisionOffsetsCodec) Name() string { return "$revisionoffsets" }

func (revisionOffsetsCodec) Encode(v interface{}) []byte {
	ro := v.(RevisionOffsets)
	b := make([]byte, 8+4+8*len(ro.Offsets))
	binary.BigEndian.PutUint64(b[0:8], ro.Revision)
	binary.BigEndian.PutUint32(b[8:12], uint32(len(ro.Offsets)))
	for i, o := range ro.Offsets {
		binary.BigEndian.PutUint64(b[12+8*i:], uint64(o))
	}
	return b
}

func (revisionOffsetsCodec) Decode(b []byte) interface{} {
	rev := binary.BigEndian.Uint64(b[0:8])
	n := binary.BigEndian.Uint32(b[8:12])
	offs := make([]int64, n)
	for i := range offs {
		offs[i] = int64(binary.BigEndian.Uint64(b[12+8*i:]))
	}
	return RevisionOffsets{Revision: rev, Offsets: offs}
}
