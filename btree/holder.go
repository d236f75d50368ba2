package btree

import (
	"sync"

	"github.com/mvbtree/mvbtree/codec"
)

// keyHolder lazily decodes the raw key bytes stored in its owning page, so
// a traversal that only needs to compare against a handful of separator
// keys never pays to decode the rest.
type keyHolder struct {
	raw     []byte
	mu      sync.Mutex
	decoded interface{}
	ok      bool
}

func newKeyHolder(raw []byte) *keyHolder { return &keyHolder{raw: raw} }

// Decode decodes and memoizes the key using kc.
func (h *keyHolder) Decode(kc codec.KeyCodec) (interface{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.ok {
		h.decoded = kc.Decode(h.raw)
		h.ok = true
	}
	return h.decoded, nil
}

// Bytes returns the raw, still-encoded key.
func (h *keyHolder) Bytes() []byte { return h.raw }

// childRef is a polymorphic child reference for a Node: either resolved
// (holding the child page in memory, e.g. freshly allocated by a CoW step)
// or unresolved (holding only its on-disk offsets), resolving on first
// access and memoizing the result for the holder's lifetime.
type childRef struct {
	mu       sync.Mutex
	resolved PageNode
	offset   int64
	last     int64
}

func resolvedChild(p PageNode) *childRef {
	return &childRef{resolved: p, offset: p.Offset(), last: p.LastOffset()}
}

func unresolvedChild(offset, last int64) *childRef {
	return &childRef{offset: offset, last: last}
}

// Resolve fetches and deserializes the child page on first access.
func (c *childRef) Resolve(t *Tree) (PageNode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved != nil {
		return c.resolved, nil
	}
	p, err := t.loadPage(c.offset, c.last)
	if err != nil {
		return nil, err
	}
	c.resolved = p
	return p, nil
}

// Offset returns the child's on-disk first-page offset, resolving it from
// the in-memory page if this reference hasn't been flushed yet.
func (c *childRef) Offset() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved != nil {
		return c.resolved.Offset()
	}
	return c.offset
}

func (c *childRef) LastOffset() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved != nil {
		return c.resolved.LastOffset()
	}
	return c.last
}

// valueKind tags the two value-block variants a Leaf slot can hold.
type valueKind int

const (
	valueInline valueKind = iota
	valueSubtree
)

// valueHolder is a Leaf slot's value: either an inline array of encoded
// values (a non-duplicate tree always has exactly one) or a reference to a
// nested duplicate-value subtree once the inline array outgrows the
// configured threshold.
type valueHolder struct {
	kind         valueKind
	inline       [][]byte // raw encoded values, len>=1
	subtree      int64    // root page offset of the nested duplicate-value tree
	subtreeCount int      // duplicate count once delegated to subtree

	mu      sync.Mutex
	dupTree *Tree // memoized wrapper, built lazily from subtree
}

func newInlineValue(encoded []byte) *valueHolder {
	return &valueHolder{kind: valueInline, inline: [][]byte{encoded}}
}

func newInlineValues(encoded [][]byte) *valueHolder {
	return &valueHolder{kind: valueInline, inline: encoded}
}

func newSubtreeValue(offset int64) *valueHolder {
	return &valueHolder{kind: valueSubtree, subtree: offset}
}

// dupSubtree returns the memoized Tree wrapper over the nested
// duplicate-value subtree, constructing it on first access.
func (v *valueHolder) dupSubtree(t *Tree) *Tree {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.dupTree == nil {
		v.dupTree = t.dupTreeConfig()
	}
	return v.dupTree
}
