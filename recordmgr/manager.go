// Package recordmgr owns the single file, the global header, the two
// internal bookkeeping trees (Btree-of-Btrees and CopiedPagesBtree), and
// the transaction protocol that ties page allocation to the crash-safe
// header swap.
package recordmgr

import (
	"os"
	"sync"

	jerrors "github.com/juju/errors"

	"github.com/mvbtree/mvbtree/btree"
	"github.com/mvbtree/mvbtree/codec"
	"github.com/mvbtree/mvbtree/logger"
	"github.com/mvbtree/mvbtree/pageio"
)

// DefaultPageSize is used by Open when the caller doesn't specify one.
const DefaultPageSize = 512

// DefaultFanout is used for the two internal trees and is the fan-out
// AddTree gives a tree (AddTreeWithFanout takes an explicit one).
const DefaultFanout = 32

const (
	bobName = "$bob"
	cpbName = "$cpb"
)

// managedTree is Manager's bookkeeping for one user tree: its live Tree
// plus the in-memory root/revision/shadow state of whatever transaction is
// currently open (or, outside a transaction, the last committed state).
type managedTree struct {
	info         btreeInfo
	tree         *btree.Tree
	infoOffset   int64
	headerOffset int64
	revision     uint64
	elementCount uint64

	root             btree.PageNode
	dirty            bool
	pendingShadowed  []int64
	preTxnRoot       btree.PageNode
	preTxnRevision   uint64
	preTxnCount      uint64
	preTxnHeaderOff  int64
}

// Manager is the root handle over one open storage file.
type Manager struct {
	pio        *pageio.Manager
	pageSize   uint32
	headerSize uint32 // = pageSize, instance state per SUPPLEMENTED FEATURES item 4

	lock txnLock
	keepRevisions bool

	header globalHeader

	bob      *btree.Tree
	bobRoot  btree.PageNode
	bobInfo  int64
	bobHdr   int64
	preBobRoot btree.PageNode
	preBobHdr  int64

	cpb      *btree.Tree
	cpbRoot  btree.PageNode
	cpbInfo  int64
	cpbHdr   int64
	preCpbRoot btree.PageNode
	preCpbHdr  int64

	revision        uint64
	pendingRevision uint64

	treesMu sync.Mutex
	trees   map[string]*managedTree

	txPending []*pageio.Page
	txFreed   []int64
}

// Open opens path, creating a new file (with a fresh header and both
// internal trees) if it doesn't exist. pageSize is only consulted on
// creation; it must be >= pageio.MinPageSize.
func Open(path string, pageSize uint32) (*Manager, error) {
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if pageSize < pageio.MinPageSize {
		return nil, jerrors.Errorf("recordmgr: pageSize %d below minimum %d", pageSize, pageio.MinPageSize)
	}

	info, statErr := os.Stat(path)
	fresh := statErr != nil
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, wrap("Open", err)
	}
	if !fresh && info.Size() == 0 {
		fresh = true
	}

	if fresh {
		return newFile(f, pageSize)
	}
	return loadFile(f)
}

func newFile(f *os.File, pageSize uint32) (*Manager, error) {
	pio := pageio.New(f, pageSize, -1)
	m := &Manager{
		pio:        pio,
		pageSize:   pageSize,
		headerSize: pageSize,
		trees:      map[string]*managedTree{},
	}

	headerPage, err := m.pio.Allocate()
	if err != nil {
		return nil, wrap("newFile: allocate header", err)
	}
	if headerPage.Offset != 0 {
		return nil, jerrors.New("recordmgr: header page did not land at offset 0")
	}

	m.bob = btree.NewTree(m.pio, btree.Config{Name: bobName, Fanout: DefaultFanout, KeyCodec: bobKeyCodec{}, ValueCodec: offsetCodec{}})
	m.cpb = btree.NewTree(m.pio, btree.Config{Name: cpbName, Fanout: DefaultFanout, KeyCodec: cpbKeyCodec{}, ValueCodec: revisionOffsetsCodec{}})
	m.bobRoot = m.bob.NewEmptyRoot(0)
	m.cpbRoot = m.cpb.NewEmptyRoot(0)

	if err := m.initInternalTree(m.bob, &m.bobRoot, bobName, &m.bobInfo, &m.bobHdr); err != nil {
		return nil, wrap("newFile: init bob", err)
	}
	if err := m.initInternalTree(m.cpb, &m.cpbRoot, cpbName, &m.cpbInfo, &m.cpbHdr); err != nil {
		return nil, wrap("newFile: init cpb", err)
	}

	m.header = globalHeader{
		pageSize:          pageSize,
		managedTreeCount:  0,
		firstFreePage:     -1,
		currentBobOffset:  m.bobHdr,
		previousBobOffset: -1,
		currentCpbOffset:  m.cpbHdr,
		previousCpbOffset: -1,
	}
	_ = headerPage // claims offset 0; writeHeader below fills its real content
	if err := m.writeHeader(); err != nil {
		return nil, wrap("newFile: write header", err)
	}
	return m, nil
}

// initInternalTree writes the empty root page and the info+header records
// for a freshly created internal tree, wiring its BTreeInfo/BTreeHeader offsets into the
// Manager's direct fields (BoB and CPB are never looked up through
// themselves).
func (m *Manager) initInternalTree(t *btree.Tree, root *btree.PageNode, name string, infoOff, hdrOff *int64) error {
	info := &btreeInfo{fanout: t.Fanout(), name: name}
	off, pages, err := writeBTreeInfo(m.pio, info)
	if err != nil {
		return err
	}
	*infoOff = off
	if err := m.pio.Flush(pages...); err != nil {
		return err
	}

	if _, err := t.FlushRoot(*root); err != nil {
		return err
	}
	if err := m.pio.Flush(t.TakePending()...); err != nil {
		return err
	}

	hOff, hPages, err := writeBTreeHeader(m.pio, &btreeHeaderRecord{revision: 0, elementCount: 0, rootPageOffset: (*root).Offset(), btreeInfoOffset: *infoOff})
	if err != nil {
		return err
	}
	*hdrOff = hOff
	return m.pio.Flush(hPages...)
}

func loadFile(f *os.File) (*Manager, error) {
	// Probe the page size from a minimally-sized read: the first 4 bytes of
	// the header are always pageSize, regardless of the file's real page
	// size, since the header occupies offset 0 on a single page.
	probe := make([]byte, 4)
	if _, err := f.ReadAt(probe, 0); err != nil {
		return nil, wrap("loadFile: probe pageSize", err)
	}
	pageSize := beUint32(probe)
	if pageSize < pageio.MinPageSize {
		return nil, jerrors.Errorf("recordmgr: on-disk pageSize %d invalid", pageSize)
	}

	pio := pageio.New(f, pageSize, -1)
	buf := make([]byte, pageSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, wrap("loadFile: read header", err)
	}
	hdr, err := unmarshalHeader(buf)
	if err != nil {
		logger.Warnf("recordmgr: primary header invalid (%v), not retrying with previous offsets: no fallback path stored beyond bob/cpb", err)
		return nil, wrap("loadFile", err)
	}

	m := &Manager{
		pio:        pio,
		pageSize:   pageSize,
		headerSize: pageSize,
		header:     *hdr,
		trees:      map[string]*managedTree{},
	}
	m.pio.SetFirstFreePage(hdr.firstFreePage)

	bobHdrRec, err := readBTreeHeaderWithFallback(pio, hdr.currentBobOffset, hdr.previousBobOffset)
	if err != nil {
		return nil, wrap("loadFile: bob header", err)
	}
	m.bobHdr = hdr.currentBobOffset
	m.bobInfo = bobHdrRec.btreeInfoOffset
	m.bob = btree.NewTree(pio, btree.Config{Name: bobName, Fanout: DefaultFanout, KeyCodec: bobKeyCodec{}, ValueCodec: offsetCodec{}})
	m.bobRoot, err = m.bob.LoadRoot(bobHdrRec.rootPageOffset, -1)
	if err != nil {
		return nil, wrap("loadFile: bob root", err)
	}

	cpbHdrRec, err := readBTreeHeaderWithFallback(pio, hdr.currentCpbOffset, hdr.previousCpbOffset)
	if err != nil {
		return nil, wrap("loadFile: cpb header", err)
	}
	m.cpbHdr = hdr.currentCpbOffset
	m.cpbInfo = cpbHdrRec.btreeInfoOffset
	m.cpb = btree.NewTree(pio, btree.Config{Name: cpbName, Fanout: DefaultFanout, KeyCodec: cpbKeyCodec{}, ValueCodec: revisionOffsetsCodec{}})
	m.cpbRoot, err = m.cpb.LoadRoot(cpbHdrRec.rootPageOffset, -1)
	if err != nil {
		return nil, wrap("loadFile: cpb root", err)
	}

	if err := m.reopenManagedTrees(); err != nil {
		return nil, wrap("loadFile: reopen trees", err)
	}
	return m, nil
}

// readBTreeHeaderWithFallback implements SUPPLEMENTED FEATURES item 5:
// retry with previousOffset if the primary fails basic validation.
func readBTreeHeaderWithFallback(pio *pageio.Manager, primary, previous int64) (*btreeHeaderRecord, error) {
	if h, err := readBTreeHeader(pio, primary); err == nil {
		return h, nil
	}
	if previous == -1 {
		return nil, jerrors.New("recordmgr: primary header record invalid and no previous offset recorded")
	}
	return readBTreeHeader(pio, previous)
}

// reopenManagedTrees iterates the Btree-of-Btrees keeping, per name, the
// entry with the highest revision.
func (m *Manager) reopenManagedTrees() error {
	latest := map[string]bobKey{}
	err := btree.Walk(m.bob, m.bobRoot, func(key interface{}, _ []interface{}) error {
		bk := key.(bobKey)
		if cur, ok := latest[bk.Name]; !ok || bk.Revision > cur.Revision {
			latest[bk.Name] = bk
		}
		return nil
	})
	if err != nil {
		return err
	}
	for name, bk := range latest {
		vals, found, err := btree.Search(m.bob, m.bobRoot, bk)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		headerOffset := vals[0].(int64)
		hdrRec, err := readBTreeHeader(m.pio, headerOffset)
		if err != nil {
			return err
		}
		info, err := readBTreeInfo(m.pio, hdrRec.btreeInfoOffset)
		if err != nil {
			return err
		}
		mt, err := m.openManagedTree(info, hdrRec, headerOffset)
		if err != nil {
			return err
		}
		m.trees[name] = mt
	}
	return nil
}

func (m *Manager) openManagedTree(info *btreeInfo, hdrRec *btreeHeaderRecord, headerOffset int64) (*managedTree, error) {
	kc, ok := codec.LookupKeyCodec(info.keyCodecName)
	if !ok {
		return nil, jerrors.Errorf("recordmgr: unknown key codec %q for tree %q", info.keyCodecName, info.name)
	}
	vc, ok := codec.LookupValueCodec(info.valueCodecName)
	if !ok {
		return nil, jerrors.Errorf("recordmgr: unknown value codec %q for tree %q", info.valueCodecName, info.name)
	}
	tree := btree.NewTree(m.pio, btree.Config{
		Name:            info.name,
		Fanout:          info.fanout,
		KeyCodec:        kc,
		ValueCodec:      vc,
		AllowDuplicates: info.allowDuplicates,
	})
	root, err := tree.LoadRoot(hdrRec.rootPageOffset, -1)
	if err != nil {
		return nil, err
	}
	return &managedTree{
		info:         *info,
		tree:         tree,
		infoOffset:   hdrRec.btreeInfoOffset,
		headerOffset: headerOffset,
		revision:     hdrRec.revision,
		elementCount: hdrRec.elementCount,
		root:         root,
	}, nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// PageSize returns the file's fixed physical page size.
func (m *Manager) PageSize() uint32 { return m.pageSize }

// Close syncs the file's buffered writes to disk; commits themselves do not
// sync. It does not close the underlying file handle.
func (m *Manager) Close() error {
	return m.pio.Sync()
}

// SetKeepRevisions controls whether a commit registers shadowed pages in
// the CopiedPagesBtree (true) or returns them straight to the free list
// (false, the default).
func (m *Manager) SetKeepRevisions(keep bool) { m.keepRevisions = keep }

// ManagedTrees lists the names currently managed, excluding the two
// internal trees (SUPPLEMENTED FEATURES item 6).
func (m *Manager) ManagedTrees() []string {
	m.treesMu.Lock()
	defer m.treesMu.Unlock()
	names := make([]string, 0, len(m.trees))
	for name := range m.trees {
		names = append(names, name)
	}
	return names
}

// PageIO exposes the underlying page manager, for the integrity checker's
// free-list and page-chain walks.
func (m *Manager) PageIO() *pageio.Manager { return m.pio }

// VerifyHeader re-reads and checksum-verifies the on-disk global header,
// independent of whatever copy Open already validated.
func (m *Manager) VerifyHeader() error {
	p, err := m.pio.Fetch(0)
	if err != nil {
		return wrap("VerifyHeader", err)
	}
	_, err = unmarshalHeader(p.Raw())
	return wrap("VerifyHeader", err)
}

// VerifyTreeInfo re-reads and checksum-verifies the named tree's BTreeInfo
// record.
func (m *Manager) VerifyTreeInfo(name string) error {
	mt, err := m.require(name)
	if err != nil {
		return err
	}
	_, err = readBTreeInfo(m.pio, mt.infoOffset)
	return wrap("VerifyTreeInfo", err)
}

// InternalTrees exposes the Btree-of-Btrees and CopiedPagesBtree handles and
// their current roots, for the integrity checker's page walk.
func (m *Manager) InternalTrees() (bobTree, cpbTree *btree.Tree, bobRoot, cpbRoot btree.PageNode) {
	return m.bob, m.cpb, m.bobRoot, m.cpbRoot
}

// InternalTreeOffsets exposes the BTreeHeader/BTreeInfo record offsets of
// the two internal trees, so the integrity checker can include their own
// bookkeeping chains in its live-page set.
func (m *Manager) InternalTreeOffsets() (bobHeaderOff, bobInfoOff, cpbHeaderOff, cpbInfoOff int64) {
	return m.bobHdr, m.bobInfo, m.cpbHdr, m.cpbInfo
}

// TreeOffsets exposes a managed tree's current BTreeHeader/BTreeInfo record
// offsets.
func (m *Manager) TreeOffsets(name string) (headerOffset, infoOffset int64, err error) {
	mt, err := m.require(name)
	if err != nil {
		return 0, 0, err
	}
	return mt.headerOffset, mt.infoOffset, nil
}
