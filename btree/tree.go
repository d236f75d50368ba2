package btree

import (
	"sync"

	"github.com/mvbtree/mvbtree/codec"
	"github.com/mvbtree/mvbtree/pageio"
	"github.com/mvbtree/mvbtree/record"
)

// DefaultDupThreshold is the inline-array size above which a Leaf slot
// delegates further duplicate values to a nested subtree (SUPPLEMENTED
// FEATURES item 3).
const DefaultDupThreshold = 8

// Config describes one managed tree's shape: the information persisted in
// its BTreeInfo record, resolved into live codecs.
type Config struct {
	Name            string
	Fanout          uint32 // m: max children per Node / max entries per Leaf
	KeyCodec        codec.KeyCodec
	ValueCodec      codec.ValueCodec
	AllowDuplicates bool
	DupThreshold    int
}

// Tree binds a Config to a pageio.Manager; it has no notion of "the
// current root" — callers (recordmgr) hold root offsets per revision and
// pass them into Search/Insert/Delete explicitly.
type Tree struct {
	mgr        *pageio.Manager
	cfg        Config
	keyCodec   codec.KeyCodec
	valueCodec codec.ValueCodec

	pendingMu sync.Mutex
	pending   []*pageio.Page
}

// NewTree constructs a Tree over mgr using cfg. cfg.DupThreshold defaults
// to DefaultDupThreshold when zero.
func NewTree(mgr *pageio.Manager, cfg Config) *Tree {
	if cfg.DupThreshold == 0 {
		cfg.DupThreshold = DefaultDupThreshold
	}
	return &Tree{mgr: mgr, cfg: cfg, keyCodec: cfg.KeyCodec, valueCodec: cfg.ValueCodec}
}

func (t *Tree) Fanout() uint32    { return t.cfg.Fanout }
func (t *Tree) minOccupancy() int { return (int(t.cfg.Fanout) + 1) / 2 }

// NewEmptyRoot builds a fresh, in-memory empty Leaf for a brand new tree
// (recordmgr's AddTree and the two internal trees start from one).
func (t *Tree) NewEmptyRoot(revision uint64) *Leaf { return newLeaf(revision) }

// dupTreeConfig returns the Config for a nested duplicate-value subtree:
// keyed by this tree's values, holding no payload of its own.
func (t *Tree) dupTreeConfig() *Tree {
	return NewTree(t.mgr, Config{
		Name:         t.cfg.Name + "$dup",
		Fanout:       t.cfg.Fanout,
		KeyCodec:     valueAsKeyCodec{t.valueCodec},
		ValueCodec:   emptyCodec{},
		DupThreshold: t.cfg.DupThreshold,
	})
}

// LoadRoot fetches and deserializes the page chain at offset as a subtree
// root, for callers (recordmgr) resolving a BTreeHeader's rootPageOffset
// into a live PageNode.
func (t *Tree) LoadRoot(offset, lastOffset int64) (PageNode, error) {
	return t.loadPage(offset, lastOffset)
}

// loadPage fetches and deserializes the page chain at offset, dispatching
// to Leaf or Node decoding based on the sign of the stored child count.
func (t *Tree) loadPage(offset, lastOffset int64) (PageNode, error) {
	r, err := record.ReadRecord(t.mgr, offset)
	if err != nil {
		return nil, wrapf("loadPage", err)
	}
	revision, err := r.ReadUint64()
	if err != nil {
		return nil, wrapf("loadPage: revision", err)
	}
	rawCount, err := r.ReadUint32()
	if err != nil {
		return nil, wrapf("loadPage: count", err)
	}
	dataSize, err := r.ReadUint32()
	if err != nil {
		return nil, wrapf("loadPage: dataSize", err)
	}
	startPos := r.Pos()
	count := int32(rawCount)

	var page PageNode
	if count < 0 {
		page, err = decodeNode(t, r, revision, int(-count))
	} else {
		page, err = decodeLeaf(t, r, revision, int(count))
	}
	if err != nil {
		return nil, err
	}
	if consumed := r.Pos() - startPos; consumed != int64(dataSize) {
		return nil, wrapf("loadPage", errInvalidPage)
	}

	pages := r.Pages()
	page.setOffsets(pages[0].Offset, pages[len(pages)-1].Offset)
	return page, nil
}

// FlushRoot writes page's chain immediately, for callers (recordmgr)
// establishing a brand new tree's empty root outside the normal
// Insert/Delete CoW path.
func (t *Tree) FlushRoot(page PageNode) ([]*pageio.Page, error) {
	return t.flush(page)
}

// flush serializes page and writes its page chain, recording the chain's
// offsets onto page itself. It does not call Manager.Flush; callers batch
// flushes for an entire transaction, written before the transaction's
// parent commits.
func (t *Tree) flush(page PageNode) ([]*pageio.Page, error) {
	var data []byte
	var err error
	switch p := page.(type) {
	case *Leaf:
		data, err = encodeLeaf(t, p)
	case *Node:
		data, err = encodeNode(t, p)
	default:
		return nil, wrapf("flush", errInvalidPage)
	}
	if err != nil {
		return nil, err
	}
	offset, pages, err := record.WritePages(t.mgr, data)
	if err != nil {
		return nil, wrapf("flush", err)
	}
	page.setOffsets(offset, pages[len(pages)-1].Offset)
	t.pendingMu.Lock()
	t.pending = append(t.pending, pages...)
	t.pendingMu.Unlock()
	return pages, nil
}

// TakePending drains and returns every physical page written by flush since
// the last call, for the caller (recordmgr) to hand to Manager.Flush as one
// batch before recording the transaction's new root offsets.
func (t *Tree) TakePending() []*pageio.Page {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	pages := t.pending
	t.pending = nil
	return pages
}

// adoptPending folds other's pending pages into t's, used when a duplicate
// subtree's own flushes (appendDuplicate) need to ride
// along with the parent tree's transaction-wide batch.
func (t *Tree) adoptPending(other *Tree) {
	pages := other.TakePending()
	if len(pages) == 0 {
		return
	}
	t.pendingMu.Lock()
	t.pending = append(t.pending, pages...)
	t.pendingMu.Unlock()
}

// valueAsKeyCodec adapts a ValueCodec (no Compare method) into a KeyCodec
// for a duplicate subtree keyed by the parent tree's values. Ordering
// compares the re-encoded bytes, shorter encodings first and equal lengths
// byte by byte, which is stable and sufficient since the subtree is never range-scanned by callers
// for anything beyond membership.
type valueAsKeyCodec struct{ codec.ValueCodec }

func (c valueAsKeyCodec) Compare(a, b interface{}) int {
	ab, bb := c.Encode(a), c.Encode(b)
	switch {
	case len(ab) < len(bb):
		return -1
	case len(ab) > len(bb):
		return 1
	}
	for i := range ab {
		if ab[i] != bb[i] {
			if ab[i] < bb[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// emptyCodec encodes/decodes the always-empty payload of a duplicate
// subtree's values.
type emptyCodec struct{}

func (emptyCodec) Name() string                    { return "$empty" }
func (emptyCodec) Encode(interface{}) []byte       { return nil }
func (emptyCodec) Decode([]byte) interface{}       { return nil }
