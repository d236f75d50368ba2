package recordmgr

import (
	"github.com/mvbtree/mvbtree/btree"
	"github.com/mvbtree/mvbtree/codec"
)

// Begin takes the writer lock, incrementing the reentrant depth counter.
// The outermost Begin snapshots every managed tree's current root so a
// matching Rollback can restore it exactly.
func (m *Manager) Begin() {
	if m.lock.begin() {
		m.pendingRevision = m.revision + 1
		m.snapshotForRollback()
	}
}

func (m *Manager) snapshotForRollback() {
	m.preBobRoot, m.preBobHdr = m.bobRoot, m.bobHdr
	m.preCpbRoot, m.preCpbHdr = m.cpbRoot, m.cpbHdr
	m.treesMu.Lock()
	for _, mt := range m.trees {
		mt.preTxnRoot = mt.root
		mt.preTxnRevision = mt.revision
		mt.preTxnCount = mt.elementCount
		mt.preTxnHeaderOff = mt.headerOffset
	}
	m.treesMu.Unlock()
}

// Commit decrements the depth counter; at zero it performs the two-phase
// header write that keeps the file crash-consistent.
func (m *Manager) Commit() error {
	if !m.lock.end() {
		return nil
	}
	return m.finalizeCommit()
}

// Rollback decrements the depth counter; at zero it returns every page
// allocated during the transaction to the free list and discards the
// in-memory root/revision changes, symmetric with Commit.
func (m *Manager) Rollback() error {
	if !m.lock.end() {
		return nil
	}
	return m.finalizeRollback()
}

func (m *Manager) finalizeRollback() error {
	var offsets []int64
	for _, p := range m.txPending {
		offsets = append(offsets, p.Offset)
	}
	if len(offsets) > 0 {
		if err := m.pio.Free(offsets); err != nil {
			return wrap("Rollback", err)
		}
	}

	m.bobRoot, m.bobHdr = m.preBobRoot, m.preBobHdr
	m.cpbRoot, m.cpbHdr = m.preCpbRoot, m.preCpbHdr

	m.treesMu.Lock()
	for _, mt := range m.trees {
		mt.root = mt.preTxnRoot
		mt.revision = mt.preTxnRevision
		mt.elementCount = mt.preTxnCount
		mt.headerOffset = mt.preTxnHeaderOff
		mt.dirty = false
		mt.pendingShadowed = nil
	}
	m.treesMu.Unlock()

	m.txPending = nil
	m.txFreed = nil
	m.pendingRevision = 0
	return nil
}

func (m *Manager) finalizeCommit() error {
	rev := m.pendingRevision
	m.treesMu.Lock()
	var dirty []*managedTree
	for _, mt := range m.trees {
		if mt.dirty {
			dirty = append(dirty, mt)
		}
	}
	m.treesMu.Unlock()

	if len(dirty) == 0 && len(m.txPending) == 0 && len(m.txFreed) == 0 {
		m.txPending = nil
		m.txFreed = nil
		m.pendingRevision = 0
		return nil
	}

	for _, mt := range dirty {
		off, pages, err := writeBTreeHeader(m.pio, &btreeHeaderRecord{
			revision: rev, elementCount: mt.elementCount,
			rootPageOffset: mt.root.Offset(), btreeInfoOffset: mt.infoOffset,
		})
		if err != nil {
			return wrap("Commit: write tree header", err)
		}
		m.txPending = append(m.txPending, pages...)

		bobOut, err := btree.Insert(m.bob, m.bobRoot, rev, bobKey{Name: mt.info.name, Revision: rev}, off)
		if err != nil {
			return wrap("Commit: bob insert", err)
		}
		m.bobRoot = bobOut.NewRoot
		m.txFreed = append(m.txFreed, bobOut.Shadowed...)
		m.txPending = append(m.txPending, m.bob.TakePending()...)

		if m.keepRevisions && len(mt.pendingShadowed) > 0 {
			cpbOut, err := btree.Insert(m.cpb, m.cpbRoot, rev, cpbKey{Revision: rev, Name: mt.info.name},
				RevisionOffsets{Revision: rev, Offsets: mt.pendingShadowed})
			if err != nil {
				return wrap("Commit: cpb insert", err)
			}
			m.cpbRoot = cpbOut.NewRoot
			m.txFreed = append(m.txFreed, cpbOut.Shadowed...)
			m.txPending = append(m.txPending, m.cpb.TakePending()...)
		} else {
			m.txFreed = append(m.txFreed, mt.pendingShadowed...)
		}

		mt.headerOffset = off
		mt.revision = rev
		mt.dirty = false
		mt.pendingShadowed = nil
	}

	bobHdrOff, bobHdrPages, err := writeBTreeHeader(m.pio, &btreeHeaderRecord{
		revision: rev, rootPageOffset: m.bobRoot.Offset(), btreeInfoOffset: m.bobInfo,
	})
	if err != nil {
		return wrap("Commit: write bob header", err)
	}
	m.txPending = append(m.txPending, bobHdrPages...)

	cpbHdrOff, cpbHdrPages, err := writeBTreeHeader(m.pio, &btreeHeaderRecord{
		revision: rev, rootPageOffset: m.cpbRoot.Offset(), btreeInfoOffset: m.cpbInfo,
	})
	if err != nil {
		return wrap("Commit: write cpb header", err)
	}
	m.txPending = append(m.txPending, cpbHdrPages...)

	if err := m.pio.Flush(m.txPending...); err != nil {
		return wrap("Commit: flush pages", err)
	}

	oldBobHdr, oldCpbHdr := m.bobHdr, m.cpbHdr
	m.header = globalHeader{
		pageSize:          m.pageSize,
		managedTreeCount:  uint32(len(m.trees)),
		firstFreePage:     m.pio.FirstFreePage(),
		currentBobOffset:  bobHdrOff,
		previousBobOffset: oldBobHdr,
		currentCpbOffset:  cpbHdrOff,
		previousCpbOffset: oldCpbHdr,
	}
	if err := m.writeHeader(); err != nil {
		return wrap("Commit: write header phase 1", err)
	}

	if err := m.pio.Free(m.txFreed); err != nil {
		return wrap("Commit: free shadowed pages", err)
	}

	m.header.firstFreePage = m.pio.FirstFreePage()
	m.header.previousBobOffset = -1
	m.header.previousCpbOffset = -1
	if err := m.writeHeader(); err != nil {
		return wrap("Commit: write header phase 2", err)
	}

	m.bobHdr, m.cpbHdr = bobHdrOff, cpbHdrOff
	m.revision = rev
	m.txPending = nil
	m.txFreed = nil
	m.pendingRevision = 0
	return nil
}

func (m *Manager) writeHeader() error {
	buf := m.header.marshal(m.pageSize)
	p, err := m.pio.Fetch(0)
	if err != nil {
		return err
	}
	copy(p.Raw(), buf)
	return m.pio.Flush(p)
}

func (m *Manager) require(name string) (*managedTree, error) {
	m.treesMu.Lock()
	mt, ok := m.trees[name]
	m.treesMu.Unlock()
	if !ok {
		return nil, wrap(name, errNotManaged)
	}
	return mt, nil
}

// AddTree registers a new managed tree, failing with errAlreadyManaged if
// name is taken.
func (m *Manager) AddTree(name string, keyCodec codec.KeyCodec, valueCodec codec.ValueCodec, allowDuplicates bool) error {
	return m.AddTreeWithFanout(name, DefaultFanout, keyCodec, valueCodec, allowDuplicates)
}

// AddTreeWithFanout is AddTree with an explicit fan-out, used by tests and
// by callers that want a smaller m for exercising split/merge paths.
func (m *Manager) AddTreeWithFanout(name string, fanout uint32, keyCodec codec.KeyCodec, valueCodec codec.ValueCodec, allowDuplicates bool) error {
	m.treesMu.Lock()
	_, exists := m.trees[name]
	m.treesMu.Unlock()
	if exists {
		return wrap(name, errAlreadyManaged)
	}

	m.Begin()
	info := &btreeInfo{
		fanout: fanout, name: name,
		keyCodecName: keyCodec.Name(), valueCodecName: valueCodec.Name(),
		allowDuplicates: allowDuplicates,
	}
	infoOff, infoPages, err := writeBTreeInfo(m.pio, info)
	if err != nil {
		m.Rollback()
		return wrap("AddTree: write info", err)
	}
	m.txPending = append(m.txPending, infoPages...)

	tree := btree.NewTree(m.pio, btree.Config{
		Name: name, Fanout: fanout, KeyCodec: keyCodec, ValueCodec: valueCodec, AllowDuplicates: allowDuplicates,
	})
	root := tree.NewEmptyRoot(0)
	if _, err := tree.FlushRoot(root); err != nil {
		m.Rollback()
		return wrap("AddTree: flush empty root", err)
	}
	m.txPending = append(m.txPending, tree.TakePending()...)

	mt := &managedTree{
		info: *info, tree: tree, infoOffset: infoOff,
		root: root, dirty: true,
	}
	m.treesMu.Lock()
	m.trees[name] = mt
	m.treesMu.Unlock()

	if err := m.Commit(); err != nil {
		return wrap("AddTree: commit", err)
	}
	return nil
}

// Insert inserts (key, value) into the named tree, returning the previous
// value for a non-duplicate tree.
func (m *Manager) Insert(name string, key, value interface{}) (interface{}, bool, error) {
	m.Begin()
	mt, err := m.require(name)
	if err != nil {
		m.Rollback()
		return nil, false, err
	}
	out, err := btree.Insert(mt.tree, mt.root, m.pendingRevision, key, value)
	if err != nil {
		m.txPending = append(m.txPending, mt.tree.TakePending()...)
		m.Rollback()
		return nil, false, wrap("Insert", err)
	}
	mt.root = out.NewRoot
	mt.pendingShadowed = append(mt.pendingShadowed, out.Shadowed...)
	mt.dirty = true
	if !out.HadOldValue {
		mt.elementCount++
	}
	m.txPending = append(m.txPending, mt.tree.TakePending()...)
	if err := m.Commit(); err != nil {
		return nil, false, err
	}
	return out.OldValue, out.HadOldValue, nil
}

// Delete removes key from the named tree, reporting whether it was present
// and the value that was removed.
func (m *Manager) Delete(name string, key interface{}) (interface{}, bool, error) {
	m.Begin()
	mt, err := m.require(name)
	if err != nil {
		m.Rollback()
		return nil, false, err
	}
	out, err := btree.Delete(mt.tree, mt.root, m.pendingRevision, key)
	if err != nil {
		m.txPending = append(m.txPending, mt.tree.TakePending()...)
		m.Rollback()
		return nil, false, wrap("Delete", err)
	}
	if !out.Found {
		m.Rollback()
		return nil, false, nil
	}
	mt.root = out.NewRoot
	mt.pendingShadowed = append(mt.pendingShadowed, out.Shadowed...)
	mt.dirty = true
	mt.elementCount--
	m.txPending = append(m.txPending, mt.tree.TakePending()...)
	if err := m.Commit(); err != nil {
		return nil, false, err
	}
	return out.Removed.Value, true, nil
}

// Get looks up key in the named tree at revision (-1 for the current
// revision), returning every value stored under it.
func (m *Manager) Get(name string, key interface{}, revision int64) ([]interface{}, bool, error) {
	mt, err := m.require(name)
	if err != nil {
		return nil, false, err
	}
	root := mt.root
	if revision >= 0 && uint64(revision) != mt.revision {
		root, err = m.loadHistoricalRoot(mt, uint64(revision))
		if err != nil {
			return nil, false, err
		}
	}
	return btree.Search(mt.tree, root, key)
}

// CurrentRevision returns the named tree's most recently committed revision.
func (m *Manager) CurrentRevision(name string) (uint64, error) {
	mt, err := m.require(name)
	if err != nil {
		return 0, err
	}
	return mt.revision, nil
}

// Root returns the named tree's live Tree and its current in-memory root,
// for the cursor package's browse implementation.
func (m *Manager) Root(name string) (*btree.Tree, btree.PageNode, error) {
	mt, err := m.require(name)
	if err != nil {
		return nil, nil, err
	}
	return mt.tree, mt.root, nil
}

// TreeAt returns the named tree's Tree and the root it had at revision
// (-1 for the current revision), for the cursor package's browse(revision)
// entry point.
func (m *Manager) TreeAt(name string, revision int64) (*btree.Tree, btree.PageNode, error) {
	mt, err := m.require(name)
	if err != nil {
		return nil, nil, err
	}
	if revision < 0 || uint64(revision) == mt.revision {
		return mt.tree, mt.root, nil
	}
	root, err := m.loadHistoricalRoot(mt, uint64(revision))
	if err != nil {
		return nil, nil, err
	}
	return mt.tree, root, nil
}

// loadHistoricalRoot resolves the highest committed BoB entry for name at
// or before revision. The Btree-of-Btrees has no dedicated predecessor-seek
// operation, so this walks every entry for name; acceptable for the
// embedded scale this engine targets (see DESIGN.md).
func (m *Manager) loadHistoricalRoot(mt *managedTree, revision uint64) (btree.PageNode, error) {
	var best *bobKey
	var bestOffset int64
	err := btree.Walk(m.bob, m.bobRoot, func(k interface{}, vals []interface{}) error {
		bk := k.(bobKey)
		if bk.Name != mt.info.name || bk.Revision > revision {
			return nil
		}
		if best == nil || bk.Revision > best.Revision {
			cp := bk
			best = &cp
			bestOffset = vals[0].(int64)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, wrap("loadHistoricalRoot", errNotManaged)
	}
	hdrRec, err := readBTreeHeader(m.pio, bestOffset)
	if err != nil {
		return nil, err
	}
	return mt.tree.LoadRoot(hdrRec.rootPageOffset, -1)
}

// ReleaseRevision drops a retained revision's shadowed pages back to the
// free list and removes its CopiedPagesBtree entry (SUPPLEMENTED FEATURES
// item 7).
func (m *Manager) ReleaseRevision(treeName string, revision uint64) error {
	m.Begin()
	vals, found, err := btree.Search(m.cpb, m.cpbRoot, cpbKey{Revision: revision, Name: treeName})
	if err != nil {
		m.Rollback()
		return wrap("ReleaseRevision: search", err)
	}
	if !found {
		m.Rollback()
		return nil
	}
	ro := vals[0].(RevisionOffsets)
	if !ro.Equal(RevisionOffsets{Revision: revision, Offsets: ro.Offsets}) {
		m.Rollback()
		return wrap("ReleaseRevision: decode", errCPBMismatch)
	}
	offsets := ro.Offsets

	delOut, err := btree.Delete(m.cpb, m.cpbRoot, m.pendingRevision, cpbKey{Revision: revision, Name: treeName})
	if err != nil {
		m.txPending = append(m.txPending, m.cpb.TakePending()...)
		m.Rollback()
		return wrap("ReleaseRevision: delete", err)
	}
	m.cpbRoot = delOut.NewRoot
	m.txFreed = append(m.txFreed, delOut.Shadowed...)
	m.txPending = append(m.txPending, m.cpb.TakePending()...)
	m.txFreed = append(m.txFreed, offsets...)

	return m.Commit()
}
