// Package cursor is the ordered (key, value) browse façade over a tree: an
// in-order snapshot of a tree (or one of its past revisions) that a caller
// steps through with Next, and can restart by calling Open again.
package cursor

import (
	"github.com/mvbtree/mvbtree/btree"
	"github.com/mvbtree/mvbtree/recordmgr"
)

// Entry is one (key, values) pair the cursor yields, in ascending key
// order. Values has more than one element only for a duplicate-allowing
// tree's key.
type Entry struct {
	Key    interface{}
	Values []interface{}
}

// Cursor is a materialized, read-only snapshot of one tree revision's
// entries. It is not restartable in place — callers that need to browse
// again call Open (or Browse) once more, which walks the revision fresh.
type Cursor struct {
	entries []Entry
	pos     int
}

// Open walks root's entire subtree in order and returns a Cursor positioned
// before the first entry.
func Open(t *btree.Tree, root btree.PageNode) (*Cursor, error) {
	var entries []Entry
	err := btree.Walk(t, root, func(key interface{}, values []interface{}) error {
		entries = append(entries, Entry{Key: key, Values: values})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Cursor{entries: entries, pos: -1}, nil
}

// Browse resolves name's root at revision (-1 for current) through rm and
// opens a Cursor over it, the library-level entry point for browsing a
// managed tree.
func Browse(rm *recordmgr.Manager, name string, revision int64) (*Cursor, error) {
	t, root, err := rm.TreeAt(name, revision)
	if err != nil {
		return nil, err
	}
	return Open(t, root)
}

// Next advances the cursor, reporting whether an entry is now available.
func (c *Cursor) Next() bool {
	if c.pos+1 >= len(c.entries) {
		return false
	}
	c.pos++
	return true
}

// Entry returns the entry the most recent Next call landed on. Calling it
// before any Next, or after Next returns false, panics — mirroring the
// teacher's iterator idiom of trusting the caller's loop shape.
func (c *Cursor) Entry() Entry {
	return c.entries[c.pos]
}

// Len returns the total number of entries this cursor will yield.
func (c *Cursor) Len() int { return len(c.entries) }
