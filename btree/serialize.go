package btree

import (
	"encoding/binary"

	"github.com/mvbtree/mvbtree/record"
)

// encodeNode serializes a Node's payload: [revision:8][-nbChildren:4]
// [dataSize:4][data], data = (childOffset:8,childLastOffset:8,keyLen:4,
// keyBytes) per non-rightmost child, then a trailing (childOffset,
// childLastOffset) for the rightmost child.
func encodeNode(t *Tree, n *Node) ([]byte, error) {
	body := record.NewWriter()
	for i := 0; i < len(n.children)-1; i++ {
		body.WriteInt64(n.children[i].Offset())
		body.WriteInt64(n.children[i].LastOffset())
		body.WriteBlob(n.keys[i].Bytes())
	}
	last := n.children[len(n.children)-1]
	body.WriteInt64(last.Offset())
	body.WriteInt64(last.LastOffset())
	data := body.Bytes()

	full := record.NewWriter()
	full.WriteUint64(n.revision)
	full.WriteUint32(uint32(int32(-len(n.children))))
	full.WriteUint32(uint32(len(data)))
	full.WriteRaw(data)
	return full.Bytes(), nil
}

func decodeNode(t *Tree, r *record.Reader, revision uint64, nbChildren int) (*Node, error) {
	n := &Node{revision: revision, offset: -1, lastOffset: -1}
	n.keys = make([]*keyHolder, 0, nbChildren-1)
	n.children = make([]*childRef, 0, nbChildren)
	for i := 0; i < nbChildren-1; i++ {
		off, err := r.ReadInt64()
		if err != nil {
			return nil, wrapf("decodeNode: childOffset", err)
		}
		last, err := r.ReadInt64()
		if err != nil {
			return nil, wrapf("decodeNode: childLastOffset", err)
		}
		keyBytes, err := r.ReadBlob()
		if err != nil {
			return nil, wrapf("decodeNode: key", err)
		}
		n.children = append(n.children, unresolvedChild(off, last))
		n.keys = append(n.keys, newKeyHolder(keyBytes))
	}
	off, err := r.ReadInt64()
	if err != nil {
		return nil, wrapf("decodeNode: rightmost offset", err)
	}
	last, err := r.ReadInt64()
	if err != nil {
		return nil, wrapf("decodeNode: rightmost lastOffset", err)
	}
	n.children = append(n.children, unresolvedChild(off, last))
	return n, nil
}

// encodeLeaf serializes a Leaf's payload: [revision:8][+nbEntries:4]
// [dataSize:4][data], data = (nbValues:4, values-block, keyLen:4, keyBytes)
// per entry.
func encodeLeaf(t *Tree, l *Leaf) ([]byte, error) {
	body := record.NewWriter()
	for i, kh := range l.keys {
		vh := l.values[i]
		if vh.kind == valueInline {
			body.WriteUint32(uint32(len(vh.inline)))
			body.WriteBlob(encodeValueArray(vh.inline))
		} else {
			body.WriteUint32(uint32(int32(-(vh.subtreeCount + 1))))
			body.WriteInt64(vh.subtree)
		}
		body.WriteBlob(kh.Bytes())
	}
	data := body.Bytes()

	full := record.NewWriter()
	full.WriteUint64(l.revision)
	full.WriteUint32(uint32(len(l.keys)))
	full.WriteUint32(uint32(len(data)))
	full.WriteRaw(data)
	return full.Bytes(), nil
}

func decodeLeaf(t *Tree, r *record.Reader, revision uint64, nbEntries int) (*Leaf, error) {
	l := &Leaf{revision: revision, offset: -1, lastOffset: -1}
	l.keys = make([]*keyHolder, 0, nbEntries)
	l.values = make([]*valueHolder, 0, nbEntries)
	for i := 0; i < nbEntries; i++ {
		rawNb, err := r.ReadUint32()
		if err != nil {
			return nil, wrapf("decodeLeaf: nbValues", err)
		}
		nb := int32(rawNb)
		var vh *valueHolder
		if nb >= 0 {
			arr, err := r.ReadBlob()
			if err != nil {
				return nil, wrapf("decodeLeaf: values array", err)
			}
			values, err := decodeValueArray(arr, int(nb))
			if err != nil {
				return nil, err
			}
			vh = newInlineValues(values)
		} else {
			count := int(-nb) - 1
			off, err := r.ReadInt64()
			if err != nil {
				return nil, wrapf("decodeLeaf: subtree offset", err)
			}
			vh = newSubtreeValue(off)
			vh.subtreeCount = count
		}
		keyBytes, err := r.ReadBlob()
		if err != nil {
			return nil, wrapf("decodeLeaf: key", err)
		}
		l.keys = append(l.keys, newKeyHolder(keyBytes))
		l.values = append(l.values, vh)
	}
	return l, nil
}

// encodeValueArray frames n encoded values as a concatenation of
// length-prefixed blobs, nested inside the outer "arrayLen:4, bytes"
// framing; length-prefixing each value lets a duplicate slot hold more than
// one value before it needs a subtree.
func encodeValueArray(values [][]byte) []byte {
	w := record.NewWriter()
	for _, v := range values {
		w.WriteBlob(v)
	}
	return w.Bytes()
}

func decodeValueArray(buf []byte, n int) ([][]byte, error) {
	values := make([][]byte, 0, n)
	pos := 0
	for i := 0; i < n; i++ {
		if pos+4 > len(buf) {
			return nil, wrapf("decodeValueArray", errInvalidPage)
		}
		l := int(binary.BigEndian.Uint32(buf[pos : pos+4]))
		pos += 4
		if pos+l > len(buf) {
			return nil, wrapf("decodeValueArray", errInvalidPage)
		}
		values = append(values, buf[pos:pos+l])
		pos += l
	}
	return values, nil
}
