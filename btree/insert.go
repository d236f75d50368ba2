package btree

import "fmt"

// InsertOutcome is the result Insert hands back to the caller (recordmgr):
// the new subtree root plus whatever bookkeeping the caller needs to fold
// into the transaction's CopiedPagesBtree entry.
type InsertOutcome struct {
	NewRoot     PageNode
	OldValue    interface{}
	HadOldValue bool
	Shadowed    []int64
}

type insertTag int

const (
	tagExistingValue insertTag = iota
	tagModified
	tagSplit
)

// insertStep is the recursive step result: ExistingValue / Modified /
// Split.
type insertStep struct {
	tag         insertTag
	page        PageNode
	oldValue    interface{}
	hadOld      bool
	leftPage    PageNode
	rightPage   PageNode
	promotedKey interface{}
	shadowed    []int64
}

// Insert descends from root, CoW-copying every touched page into a freshly
// allocated chain under revision, and wraps a root-level Split into a new
// Node of height+1.
func Insert(t *Tree, root PageNode, revision uint64, key, value interface{}) (*InsertOutcome, error) {
	step, err := insertInto(t, root, revision, key, value)
	if err != nil {
		return nil, wrapf("insert", err)
	}
	switch step.tag {
	case tagExistingValue:
		return &InsertOutcome{NewRoot: root, OldValue: step.oldValue, HadOldValue: step.hadOld}, nil
	case tagModified:
		return &InsertOutcome{NewRoot: step.page, OldValue: step.oldValue, HadOldValue: step.hadOld, Shadowed: step.shadowed}, nil
	case tagSplit:
		newRoot := &Node{
			revision: revision,
			offset:   -1,
			lastOffset: -1,
			keys:     []*keyHolder{newKeyHolder(t.keyCodec.Encode(step.promotedKey))},
			children: []*childRef{resolvedChild(step.leftPage), resolvedChild(step.rightPage)},
		}
		if _, err := t.flush(newRoot); err != nil {
			return nil, wrapf("insert: flush new root", err)
		}
		return &InsertOutcome{NewRoot: newRoot, Shadowed: step.shadowed}, nil
	default:
		return nil, wrapf("insert", errInvalidPage)
	}
}

func insertInto(t *Tree, page PageNode, revision uint64, key, value interface{}) (*insertStep, error) {
	if leaf, ok := page.(*Leaf); ok {
		return leafInsert(t, leaf, revision, key, value)
	}
	return nodeInsert(t, page.(*Node), revision, key, value)
}

func cloneLeafEntries(l *Leaf) ([]*keyHolder, []*valueHolder) {
	return append([]*keyHolder(nil), l.keys...), append([]*valueHolder(nil), l.values...)
}

func leafInsert(t *Tree, l *Leaf, revision uint64, key, value interface{}) (*insertStep, error) {
	idx, found, err := leafFind(t, l, key)
	if err != nil {
		return nil, err
	}
	encoded := t.valueCodec.Encode(value)
	keys, vals := cloneLeafEntries(l)

	if found {
		vh := vals[idx]
		if !t.cfg.AllowDuplicates {
			old := t.valueCodec.Decode(vh.inline[0])
			return &insertStep{tag: tagExistingValue, oldValue: old, hadOld: true}, nil
		}
		already, err := containsEncoded(t, vh, encoded)
		if err != nil {
			return nil, err
		}
		if already {
			return &insertStep{tag: tagExistingValue}, nil
		}
		newVh, shadow, err := appendDuplicate(t, vh, revision, encoded)
		if err != nil {
			return nil, err
		}
		vals[idx] = newVh
		if l.offset != -1 {
			shadow = append(shadow, l.offset)
		}
		newLeaf := &Leaf{revision: revision, offset: -1, lastOffset: -1, keys: keys, values: vals}
		if _, err := t.flush(newLeaf); err != nil {
			return nil, err
		}
		return &insertStep{tag: tagModified, page: newLeaf, shadowed: shadow}, nil
	}

	keys = insertKeyAt(keys, idx, newKeyHolder(t.keyCodec.Encode(key)))
	vals = insertValueAt(vals, idx, newInlineValue(encoded))

	var shadow []int64
	if l.offset != -1 {
		shadow = append(shadow, l.offset)
	}

	if len(keys) <= int(t.cfg.Fanout) {
		newLeaf := &Leaf{revision: revision, offset: -1, lastOffset: -1, keys: keys, values: vals}
		if _, err := t.flush(newLeaf); err != nil {
			return nil, err
		}
		return &insertStep{tag: tagModified, page: newLeaf, shadowed: shadow}, nil
	}

	// Split: "when nbElems+1 is odd, the extra element stays left" — the
	// left half takes ceil(total/2), computed as (total+1)/2 for both
	// parities.
	total := len(keys)
	leftCount := (total + 1) / 2
	leftLeaf := &Leaf{revision: revision, offset: -1, lastOffset: -1, keys: keys[:leftCount], values: vals[:leftCount]}
	rightLeaf := &Leaf{revision: revision, offset: -1, lastOffset: -1, keys: keys[leftCount:], values: vals[leftCount:]}
	if _, err := t.flush(leftLeaf); err != nil {
		return nil, err
	}
	if _, err := t.flush(rightLeaf); err != nil {
		return nil, err
	}
	promoted, err := rightLeaf.keys[0].Decode(t.keyCodec)
	if err != nil {
		return nil, err
	}
	return &insertStep{tag: tagSplit, leftPage: leftLeaf, rightPage: rightLeaf, promotedKey: promoted, shadowed: shadow}, nil
}

// appendDuplicate adds encoded to vh, growing the inline array, promoting
// it to a nested subtree past the configured threshold, or inserting into
// an already-promoted subtree (SUPPLEMENTED FEATURES item 3).
func appendDuplicate(t *Tree, vh *valueHolder, revision uint64, encoded []byte) (*valueHolder, []int64, error) {
	if vh.kind == valueInline {
		if len(vh.inline)+1 <= t.cfg.DupThreshold {
			merged := append(append([][]byte(nil), vh.inline...), encoded)
			return newInlineValues(merged), nil, nil
		}
		sub := t.dupTreeConfig()
		var cur PageNode = sub.NewEmptyRoot(revision)
		var shadow []int64
		for _, b := range vh.inline {
			outcome, err := Insert(sub, cur, revision, sub.keyCodec.Decode(b), nil)
			if err != nil {
				return nil, nil, wrapf("appendDuplicate: promote", fmt.Errorf("%w: %v", errBTreeCreationFail, err))
			}
			cur = outcome.NewRoot
			shadow = append(shadow, outcome.Shadowed...)
		}
		outcome, err := Insert(sub, cur, revision, sub.keyCodec.Decode(encoded), nil)
		if err != nil {
			return nil, nil, wrapf("appendDuplicate: promote", fmt.Errorf("%w: %v", errBTreeCreationFail, err))
		}
		t.adoptPending(sub)
		nv := newSubtreeValue(outcome.NewRoot.Offset())
		nv.subtreeCount = len(vh.inline) + 1
		nv.dupTree = sub
		return nv, append(shadow, outcome.Shadowed...), nil
	}

	sub := vh.dupSubtree(t)
	root, err := sub.loadPage(vh.subtree, -1)
	if err != nil {
		return nil, nil, err
	}
	outcome, err := Insert(sub, root, revision, sub.keyCodec.Decode(encoded), nil)
	if err != nil {
		return nil, nil, wrapf("appendDuplicate: existing subtree", fmt.Errorf("%w: %v", errBTreeCreationFail, err))
	}
	t.adoptPending(sub)
	// outcome.Shadowed already lists the old subtree root (vh.subtree).
	shadow := outcome.Shadowed
	nv := newSubtreeValue(outcome.NewRoot.Offset())
	nv.subtreeCount = vh.subtreeCount + 1
	nv.dupTree = sub
	return nv, shadow, nil
}

func nodeInsert(t *Tree, n *Node, revision uint64, key, value interface{}) (*insertStep, error) {
	idx, err := n.childIndex(t, key)
	if err != nil {
		return nil, err
	}
	child, err := n.children[idx].Resolve(t)
	if err != nil {
		return nil, err
	}
	childStep, err := insertInto(t, child, revision, key, value)
	if err != nil {
		return nil, err
	}

	switch childStep.tag {
	case tagExistingValue:
		return childStep, nil

	case tagModified:
		children := cloneChildren(n.children)
		keys := cloneKeys(n.keys)
		children[idx] = resolvedChild(childStep.page)
		shadow := childStep.shadowed
		if n.offset != -1 {
			shadow = append(shadow, n.offset)
		}
		newNode := &Node{revision: revision, offset: -1, lastOffset: -1, keys: keys, children: children}
		if _, err := t.flush(newNode); err != nil {
			return nil, err
		}
		return &insertStep{tag: tagModified, page: newNode, shadowed: shadow}, nil

	case tagSplit:
		children := cloneChildren(n.children)
		keys := cloneKeys(n.keys)
		children[idx] = resolvedChild(childStep.leftPage)
		children = insertChildAt(children, idx+1, resolvedChild(childStep.rightPage))
		keys = insertKeyAt(keys, idx, newKeyHolder(t.keyCodec.Encode(childStep.promotedKey)))

		shadow := childStep.shadowed
		if n.offset != -1 {
			shadow = append(shadow, n.offset)
		}

		if len(children) <= int(t.cfg.Fanout) {
			newNode := &Node{revision: revision, offset: -1, lastOffset: -1, keys: keys, children: children}
			if _, err := t.flush(newNode); err != nil {
				return nil, err
			}
			return &insertStep{tag: tagModified, page: newNode, shadowed: shadow}, nil
		}

		// Node split: the median key is promoted, not retained.
		leftChildCount := (len(children) + 1) / 2
		leftNode := &Node{revision: revision, offset: -1, lastOffset: -1,
			keys: keys[:leftChildCount-1], children: children[:leftChildCount]}
		rightNode := &Node{revision: revision, offset: -1, lastOffset: -1,
			keys: keys[leftChildCount:], children: children[leftChildCount:]}
		median := keys[leftChildCount-1]
		if _, err := t.flush(leftNode); err != nil {
			return nil, err
		}
		if _, err := t.flush(rightNode); err != nil {
			return nil, err
		}
		promoted, err := median.Decode(t.keyCodec)
		if err != nil {
			return nil, err
		}
		return &insertStep{tag: tagSplit, leftPage: leftNode, rightPage: rightNode, promotedKey: promoted, shadowed: shadow}, nil

	default:
		return nil, errInvalidPage
	}
}

func cloneChildren(c []*childRef) []*childRef { return append([]*childRef(nil), c...) }
func cloneKeys(k []*keyHolder) []*keyHolder   { return append([]*keyHolder(nil), k...) }

func insertChildAt(c []*childRef, idx int, v *childRef) []*childRef {
	c = append(c, nil)
	copy(c[idx+1:], c[idx:])
	c[idx] = v
	return c
}

func insertKeyAt(k []*keyHolder, idx int, v *keyHolder) []*keyHolder {
	k = append(k, nil)
	copy(k[idx+1:], k[idx:])
	k[idx] = v
	return k
}

func insertValueAt(v []*valueHolder, idx int, nv *valueHolder) []*valueHolder {
	v = append(v, nil)
	copy(v[idx+1:], v[idx:])
	v[idx] = nv
	return v
}
