package btree

// Search descends from root to find key, returning every value stored
// under it (more than one only when the tree allows duplicates).
func Search(t *Tree, root PageNode, key interface{}) ([]interface{}, bool, error) {
	page := root
	for {
		if leaf, ok := page.(*Leaf); ok {
			idx, found, err := leafFind(t, leaf, key)
			if err != nil || !found {
				return nil, false, err
			}
			vals, err := decodeHolderValues(t, leaf.values[idx])
			return vals, err == nil, err
		}
		node := page.(*Node)
		idx, err := node.childIndex(t, key)
		if err != nil {
			return nil, false, err
		}
		page, err = node.children[idx].Resolve(t)
		if err != nil {
			return nil, false, err
		}
	}
}

// leafFind binary-searches a leaf's keys, returning the insertion index and
// whether key is present there.
func leafFind(t *Tree, l *Leaf, key interface{}) (int, bool, error) {
	lo, hi := 0, len(l.keys)
	for lo < hi {
		mid := (lo + hi) / 2
		k, err := l.keys[mid].Decode(t.keyCodec)
		if err != nil {
			return 0, false, err
		}
		c := t.keyCodec.Compare(key, k)
		switch {
		case c == 0:
			return mid, true, nil
		case c < 0:
			hi = mid
		default:
			lo = mid + 1
		}
	}
	return lo, false, nil
}

// decodeHolderValues materializes every value under a Leaf slot: the
// inline array directly, or the full set of keys of a duplicate subtree
// (where the subtree's keys are themselves the duplicate values).
func decodeHolderValues(t *Tree, vh *valueHolder) ([]interface{}, error) {
	if vh.kind == valueInline {
		out := make([]interface{}, len(vh.inline))
		for i, b := range vh.inline {
			out[i] = t.valueCodec.Decode(b)
		}
		return out, nil
	}
	sub := vh.dupSubtree(t)
	root, err := sub.loadPage(vh.subtree, -1)
	if err != nil {
		return nil, err
	}
	var out []interface{}
	err = Walk(sub, root, func(key interface{}, _ []interface{}) error {
		out = append(out, key)
		return nil
	})
	return out, err
}

// containsEncoded reports whether encoded already appears among vh's
// values, used to make duplicate inserts of an identical value idempotent:
// ExistingValue fires when the value is identical, not merely same-key.
func containsEncoded(t *Tree, vh *valueHolder, encoded []byte) (bool, error) {
	if vh.kind == valueInline {
		for _, b := range vh.inline {
			if bytesEqual(b, encoded) {
				return true, nil
			}
		}
		return false, nil
	}
	sub := vh.dupSubtree(t)
	root, err := sub.loadPage(vh.subtree, -1)
	if err != nil {
		return false, err
	}
	decodedTarget := sub.keyCodec.Decode(encoded)
	found := false
	err = Walk(sub, root, func(key interface{}, _ []interface{}) error {
		if sub.keyCodec.Compare(key, decodedTarget) == 0 {
			found = true
		}
		return nil
	})
	return found, err
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Walk performs an in-order traversal of the subtree rooted at root,
// invoking visit with each leaf entry's decoded key and values, in
// ascending key order. Used by the duplicate-subtree machinery above and
// by the cursor package's browse implementation.
func Walk(t *Tree, root PageNode, visit func(key interface{}, values []interface{}) error) error {
	switch p := root.(type) {
	case *Leaf:
		for i, kh := range p.keys {
			k, err := kh.Decode(t.keyCodec)
			if err != nil {
				return err
			}
			vals, err := decodeHolderValues(t, p.values[i])
			if err != nil {
				return err
			}
			if err := visit(k, vals); err != nil {
				return err
			}
		}
		return nil
	case *Node:
		for _, c := range p.children {
			child, err := c.Resolve(t)
			if err != nil {
				return err
			}
			if err := Walk(t, child, visit); err != nil {
				return err
			}
		}
		return nil
	default:
		return errInvalidPage
	}
}
