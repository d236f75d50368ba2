package recordmgr

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvbtree/mvbtree/btree"
	"github.com/mvbtree/mvbtree/codec"
)

func openTemp(t *testing.T, pageSize uint32) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.mvb")
	m, err := Open(path, pageSize)
	require.NoError(t, err)
	return m, path
}

func TestOpenCreatesFreshFile(t *testing.T) {
	m, _ := openTemp(t, 256)
	defer m.Close()
	assert.Equal(t, uint32(256), m.PageSize())
	assert.Empty(t, m.ManagedTrees())
}

func TestAddTreeRejectsDuplicateName(t *testing.T) {
	m, _ := openTemp(t, 256)
	defer m.Close()

	require.NoError(t, m.AddTreeWithFanout("widgets", 4, codec.StringCodec{}, codec.StringCodec{}, false))
	err := m.AddTreeWithFanout("widgets", 4, codec.StringCodec{}, codec.StringCodec{}, false)
	require.Error(t, err)
	assert.True(t, IsAlreadyManaged(err))
}

func TestInsertGetDeleteRoundTrip(t *testing.T) {
	m, _ := openTemp(t, 256)
	defer m.Close()
	require.NoError(t, m.AddTreeWithFanout("widgets", 4, codec.StringCodec{}, codec.StringCodec{}, false))

	_, had, err := m.Insert("widgets", "a", "1")
	require.NoError(t, err)
	assert.False(t, had)

	old, had, err := m.Insert("widgets", "a", "2")
	require.NoError(t, err)
	assert.True(t, had)
	assert.Equal(t, "1", old)

	vals, found, err := m.Get("widgets", "a", -1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []interface{}{"2"}, vals)

	removed, found, err := m.Delete("widgets", "a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2", removed)

	_, found, err = m.Get("widgets", "a", -1)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetOnUnmanagedTreeReportsNotManaged(t *testing.T) {
	m, _ := openTemp(t, 256)
	defer m.Close()

	_, _, err := m.Get("ghost", "a", -1)
	require.Error(t, err)
	assert.True(t, IsNotManaged(err))
}

func TestManyInsertsForceSplitsAndSurviveReload(t *testing.T) {
	m, path := openTemp(t, 256)
	require.NoError(t, m.AddTreeWithFanout("nums", 4, codec.Uint64Codec{}, codec.StringCodec{}, false))

	for i := uint64(0); i < 100; i++ {
		_, _, err := m.Insert("nums", i, "v")
		require.NoError(t, err)
	}
	require.NoError(t, m.Close())

	reopened, err := Open(path, 0)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Contains(t, reopened.ManagedTrees(), "nums")
	for i := uint64(0); i < 100; i++ {
		vals, found, err := reopened.Get("nums", i, -1)
		require.NoError(t, err)
		require.True(t, found, "key %d", i)
		assert.Equal(t, []interface{}{"v"}, vals)
	}
}

func TestDeleteMissingKeyReportsNotFound(t *testing.T) {
	m, _ := openTemp(t, 256)
	defer m.Close()
	require.NoError(t, m.AddTreeWithFanout("widgets", 4, codec.StringCodec{}, codec.StringCodec{}, false))

	_, found, err := m.Delete("widgets", "ghost")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestKeepRevisionsPreservesHistoricalGet(t *testing.T) {
	m, _ := openTemp(t, 256)
	defer m.Close()
	m.SetKeepRevisions(true)
	require.NoError(t, m.AddTreeWithFanout("widgets", 4, codec.StringCodec{}, codec.StringCodec{}, false))

	_, _, err := m.Insert("widgets", "a", "v1")
	require.NoError(t, err)
	firstRev, err := m.CurrentRevision("widgets")
	require.NoError(t, err)

	_, _, err = m.Insert("widgets", "a", "v2")
	require.NoError(t, err)

	vals, found, err := m.Get("widgets", "a", int64(firstRev))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []interface{}{"v1"}, vals)

	vals, found, err = m.Get("widgets", "a", -1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []interface{}{"v2"}, vals)
}

func TestReleaseRevisionDropsRetainedPages(t *testing.T) {
	m, _ := openTemp(t, 256)
	defer m.Close()
	m.SetKeepRevisions(true)
	require.NoError(t, m.AddTreeWithFanout("widgets", 4, codec.StringCodec{}, codec.StringCodec{}, false))

	_, _, err := m.Insert("widgets", "a", "v1")
	require.NoError(t, err)
	firstRev, err := m.CurrentRevision("widgets")
	require.NoError(t, err)

	_, _, err = m.Insert("widgets", "a", "v2")
	require.NoError(t, err)

	require.NoError(t, m.ReleaseRevision("widgets", firstRev))

	vals, found, err := m.Get("widgets", "a", -1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []interface{}{"v2"}, vals)
}

func TestDuplicateValuesAcrossManyInserts(t *testing.T) {
	m, _ := openTemp(t, 256)
	defer m.Close()
	require.NoError(t, m.AddTreeWithFanout("tags", 4, codec.StringCodec{}, codec.Uint64Codec{}, true))

	for i := uint64(0); i < 20; i++ {
		_, _, err := m.Insert("tags", "color", i)
		require.NoError(t, err)
	}

	vals, found, err := m.Get("tags", "color", -1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, vals, 20)
}

// TestCrashBeforeHeaderRewriteShowsOnlyPreviousRevision hand-drives a
// commit's page writes up through the point where every new page is
// durable, stopping before the global header is rewritten to point at
// them, then truncates to that exact page-aligned EOF and reopens. Property
// 8: a crash there must leave the previous revision intact, never a mix of
// old and new.
func TestCrashBeforeHeaderRewriteShowsOnlyPreviousRevision(t *testing.T) {
	m, path := openTemp(t, 256)
	require.NoError(t, m.AddTreeWithFanout("widgets", 4, codec.StringCodec{}, codec.StringCodec{}, false))
	_, _, err := m.Insert("widgets", "k1", "v1")
	require.NoError(t, err)
	require.NoError(t, m.Close())

	m2, err := Open(path, 0)
	require.NoError(t, err)

	m2.Begin()
	mt, err := m2.require("widgets")
	require.NoError(t, err)
	out, err := btree.Insert(mt.tree, mt.root, m2.pendingRevision, "k2", "v2")
	require.NoError(t, err)
	mt.root = out.NewRoot
	mt.dirty = true
	mt.elementCount++
	m2.txPending = append(m2.txPending, mt.tree.TakePending()...)

	rev := m2.pendingRevision
	off, pages, err := writeBTreeHeader(m2.pio, &btreeHeaderRecord{
		revision: rev, elementCount: mt.elementCount,
		rootPageOffset: mt.root.Offset(), btreeInfoOffset: mt.infoOffset,
	})
	require.NoError(t, err)
	m2.txPending = append(m2.txPending, pages...)

	bobOut, err := btree.Insert(m2.bob, m2.bobRoot, rev, bobKey{Name: mt.info.name, Revision: rev}, off)
	require.NoError(t, err)
	m2.bobRoot = bobOut.NewRoot
	m2.txPending = append(m2.txPending, m2.bob.TakePending()...)

	_, bobHdrPages, err := writeBTreeHeader(m2.pio, &btreeHeaderRecord{
		revision: rev, rootPageOffset: m2.bobRoot.Offset(), btreeInfoOffset: m2.bobInfo,
	})
	require.NoError(t, err)
	m2.txPending = append(m2.txPending, bobHdrPages...)

	_, cpbHdrPages, err := writeBTreeHeader(m2.pio, &btreeHeaderRecord{
		revision: rev, rootPageOffset: m2.cpbRoot.Offset(), btreeInfoOffset: m2.cpbInfo,
	})
	require.NoError(t, err)
	m2.txPending = append(m2.txPending, cpbHdrPages...)

	require.NoError(t, m2.pio.Flush(m2.txPending...))

	// Every page for revision rev is durable, but the global header on disk
	// still names the previous commit's bob/cpb offsets — m2.writeHeader was
	// never called. Truncating to the current page-aligned EOF mirrors a
	// reopen right at this instant, with nothing further ever written.
	size, err := m2.pio.FileSize()
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, size))

	reopened, err := Open(path, 0)
	require.NoError(t, err)
	defer reopened.Close()

	_, found, err := reopened.Get("widgets", "k2", -1)
	require.NoError(t, err)
	assert.False(t, found, "revision %d never became visible: header was never rewritten", rev)

	vals, found, err := reopened.Get("widgets", "k1", -1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []interface{}{"v1"}, vals)
}

// TestCrashAfterHeaderRewriteShowsNewRevision is the other half of property
// 8's either/or: truncating at the page-aligned EOF right after a commit
// fully completes (both header-rewrite phases done) must show the new
// revision whole, not a partial mix.
func TestCrashAfterHeaderRewriteShowsNewRevision(t *testing.T) {
	m, path := openTemp(t, 256)
	require.NoError(t, m.AddTreeWithFanout("widgets", 4, codec.StringCodec{}, codec.StringCodec{}, false))
	_, _, err := m.Insert("widgets", "k1", "v1")
	require.NoError(t, err)
	_, _, err = m.Insert("widgets", "k2", "v2")
	require.NoError(t, err)
	size, err := m.pio.FileSize()
	require.NoError(t, err)
	require.NoError(t, m.Close())

	require.NoError(t, os.Truncate(path, size))

	reopened, err := Open(path, 0)
	require.NoError(t, err)
	defer reopened.Close()

	vals, found, err := reopened.Get("widgets", "k1", -1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []interface{}{"v1"}, vals)

	vals, found, err = reopened.Get("widgets", "k2", -1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []interface{}{"v2"}, vals)
}

func TestRollbackOnUnmanagedInsertLeavesNoTrace(t *testing.T) {
	m, _ := openTemp(t, 256)
	defer m.Close()

	_, _, err := m.Insert("ghost", "a", "1")
	require.Error(t, err)
	assert.True(t, IsNotManaged(err))
	assert.Empty(t, m.ManagedTrees())
}
