// Package mvbtree is the public surface of the embedded copy-on-write
// multi-version B+Tree storage engine: Open a file, AddTree to register a
// managed tree, then Insert/Delete/Get/Browse against it.
package mvbtree

import (
	"github.com/mvbtree/mvbtree/codec"
	"github.com/mvbtree/mvbtree/config"
	"github.com/mvbtree/mvbtree/cursor"
	"github.com/mvbtree/mvbtree/logger"
	"github.com/mvbtree/mvbtree/recordmgr"
)

// RecordManager is recordmgr.Manager, re-exported so callers never need to
// import the internal package directly.
type RecordManager = recordmgr.Manager

// Open opens path using opts (zero value is DefaultEngineOptions), creating
// a new file if one doesn't already exist.
func Open(path string, opts config.EngineOptions) (*RecordManager, error) {
	if opts.PageSize == 0 && opts.LogLevel == "" {
		opts = config.DefaultEngineOptions()
	}
	if opts.LogLevel != "" {
		_ = logger.InitLogger(logger.Config{Level: opts.LogLevel})
	}
	rm, err := recordmgr.Open(path, opts.PageSize)
	if err != nil {
		return nil, err
	}
	rm.SetKeepRevisions(opts.KeepRevisions)
	return rm, nil
}

// Tree is a thin, named handle over one managed tree, so callers don't have
// to thread the tree name through every call.
type Tree struct {
	rm   *RecordManager
	name string
}

// AddTree registers name as a managed tree on rm and returns a handle to it.
// It fails if name is already managed.
func AddTree(rm *RecordManager, name string, keyCodec codec.KeyCodec, valueCodec codec.ValueCodec, allowDuplicates bool) (*Tree, error) {
	if err := rm.AddTree(name, keyCodec, valueCodec, allowDuplicates); err != nil {
		return nil, err
	}
	return &Tree{rm: rm, name: name}, nil
}

// OpenTree returns a handle to an already-managed tree (e.g. after
// reopening a file), failing with recordmgr.IsNotManaged-checkable error if
// name was never added.
func OpenTree(rm *RecordManager, name string) (*Tree, error) {
	if _, err := rm.CurrentRevision(name); err != nil {
		return nil, err
	}
	return &Tree{rm: rm, name: name}, nil
}

// Insert stores value under key, returning the previous value (and whether
// one existed) for a non-duplicate tree.
func (t *Tree) Insert(key, value interface{}) (interface{}, bool, error) {
	return t.rm.Insert(t.name, key, value)
}

// Delete removes key, returning the value that was removed.
func (t *Tree) Delete(key interface{}) (interface{}, bool, error) {
	return t.rm.Delete(t.name, key)
}

// Get looks up key at revision (-1 for current), returning every value
// stored under it.
func (t *Tree) Get(key interface{}, revision int64) ([]interface{}, bool, error) {
	return t.rm.Get(t.name, key, revision)
}

// Revision returns the tree's most recently committed revision number.
func (t *Tree) Revision() (uint64, error) {
	return t.rm.CurrentRevision(t.name)
}

// Browse opens a Cursor over the tree at revision (-1 for current).
func (t *Tree) Browse(revision int64) (*cursor.Cursor, error) {
	return cursor.Browse(t.rm, t.name, revision)
}

// ReleaseRevision drops a retained revision's shadowed pages, undoing what
// setKeepRevisions accumulated for it.
func (t *Tree) ReleaseRevision(revision uint64) error {
	return t.rm.ReleaseRevision(t.name, revision)
}
