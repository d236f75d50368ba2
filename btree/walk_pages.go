package btree

// WalkPages visits every PageNode reachable from root — including nested
// duplicate-value subtrees — calling visit once per page before descending
// into its children. The integrity checker uses this to enumerate every
// logical page chain a tree owns, independent of Walk's key/value view.
func WalkPages(t *Tree, root PageNode, visit func(PageNode) error) error {
	if err := visit(root); err != nil {
		return err
	}
	switch p := root.(type) {
	case *Node:
		for _, c := range p.children {
			child, err := c.Resolve(t)
			if err != nil {
				return wrapf("WalkPages", err)
			}
			if err := WalkPages(t, child, visit); err != nil {
				return err
			}
		}
	case *Leaf:
		for _, v := range p.values {
			if v.kind != valueSubtree {
				continue
			}
			sub := v.dupSubtree(t)
			subRoot, err := sub.loadPage(v.subtree, -1)
			if err != nil {
				return wrapf("WalkPages: dup subtree", err)
			}
			if err := WalkPages(sub, subRoot, visit); err != nil {
				return err
			}
		}
	}
	return nil
}
