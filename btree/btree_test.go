package btree

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvbtree/mvbtree/codec"
	"github.com/mvbtree/mvbtree/pageio"
)

func tempTree(t *testing.T, fanout uint32, allowDup bool) (*pageio.Manager, *Tree) {
	t.Helper()
	f, err := os.CreateTemp("", "btree-*.db")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(f.Name()) })
	mgr := pageio.New(f, 256, -1)
	tr := NewTree(mgr, Config{
		Name:            "t",
		Fanout:          fanout,
		KeyCodec:        codec.Uint64Codec{},
		ValueCodec:      codec.StringCodec{},
		AllowDuplicates: allowDup,
	})
	return mgr, tr
}

// flushAll drains and persists every page written to tr since the last call,
// simulating the batched transaction flush recordmgr will perform.
func flushAll(t *testing.T, mgr *pageio.Manager, tr *Tree) {
	t.Helper()
	require.NoError(t, mgr.Flush(tr.TakePending()...))
}

func TestInsertSingleAndSearch(t *testing.T) {
	mgr, tr := tempTree(t, 4, false)
	root := PageNode(tr.NewEmptyRoot(1))

	out, err := Insert(tr, root, 1, uint64(42), "hello")
	require.NoError(t, err)
	flushAll(t, mgr, tr)

	vals, found, err := Search(tr, out.NewRoot, uint64(42))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []interface{}{"hello"}, vals)

	_, found, err = Search(tr, out.NewRoot, uint64(7))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInsertExistingValueIsNoOp(t *testing.T) {
	mgr, tr := tempTree(t, 4, false)
	root := PageNode(tr.NewEmptyRoot(1))

	out, err := Insert(tr, root, 1, uint64(1), "a")
	require.NoError(t, err)
	flushAll(t, mgr, tr)

	out2, err := Insert(tr, out.NewRoot, 2, uint64(1), "b")
	require.NoError(t, err)
	flushAll(t, mgr, tr)

	assert.True(t, out2.HadOldValue)
	assert.Equal(t, "a", out2.OldValue)
	assert.Equal(t, out.NewRoot, out2.NewRoot)

	vals, found, err := Search(tr, out2.NewRoot, uint64(1))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []interface{}{"a"}, vals)
}

func TestInsertForcesLeafSplit(t *testing.T) {
	mgr, tr := tempTree(t, 4, false)
	var root PageNode = tr.NewEmptyRoot(1)

	for i := uint64(0); i < 6; i++ {
		out, err := Insert(tr, root, i+1, i, fmt.Sprintf("v%d", i))
		require.NoError(t, err)
		flushAll(t, mgr, tr)
		root = out.NewRoot
	}

	n, ok := root.(*Node)
	require.True(t, ok, "root should have split into a Node by the 6th insert")
	assert.GreaterOrEqual(t, len(n.children), 2)

	for i := uint64(0); i < 6; i++ {
		vals, found, err := Search(tr, root, i)
		require.NoError(t, err)
		assert.True(t, found, "key %d should be present", i)
		assert.Equal(t, []interface{}{fmt.Sprintf("v%d", i)}, vals)
	}
}

func TestInsertAndReloadFromDisk(t *testing.T) {
	mgr, tr := tempTree(t, 4, false)
	var root PageNode = tr.NewEmptyRoot(1)

	for i := uint64(0); i < 10; i++ {
		out, err := Insert(tr, root, i+1, i, fmt.Sprintf("v%d", i))
		require.NoError(t, err)
		flushAll(t, mgr, tr)
		root = out.NewRoot
	}

	// Reload the root purely from its on-disk offset, forcing every child
	// reference below it to resolve lazily from disk.
	reloaded, err := tr.loadPage(root.Offset(), root.LastOffset())
	require.NoError(t, err)

	for i := uint64(0); i < 10; i++ {
		vals, found, err := Search(tr, reloaded, i)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []interface{}{fmt.Sprintf("v%d", i)}, vals)
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	mgr, tr := tempTree(t, 4, false)
	var root PageNode = tr.NewEmptyRoot(1)

	out, err := Insert(tr, root, 1, uint64(1), "a")
	require.NoError(t, err)
	flushAll(t, mgr, tr)
	root = out.NewRoot

	out2, err := Insert(tr, root, 2, uint64(2), "b")
	require.NoError(t, err)
	flushAll(t, mgr, tr)
	root = out2.NewRoot

	del, err := Delete(tr, root, 3, uint64(1))
	require.NoError(t, err)
	flushAll(t, mgr, tr)
	require.True(t, del.Found)
	assert.Equal(t, "a", del.Removed.Value)

	_, found, err := Search(tr, del.NewRoot, uint64(1))
	require.NoError(t, err)
	assert.False(t, found)

	vals, found, err := Search(tr, del.NewRoot, uint64(2))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []interface{}{"b"}, vals)
}

func TestDeleteMissingKeyReportsNotFound(t *testing.T) {
	mgr, tr := tempTree(t, 4, false)
	root := PageNode(tr.NewEmptyRoot(1))

	out, err := Insert(tr, root, 1, uint64(1), "a")
	require.NoError(t, err)
	flushAll(t, mgr, tr)

	del, err := Delete(tr, out.NewRoot, 2, uint64(99))
	require.NoError(t, err)
	assert.False(t, del.Found)
	assert.Equal(t, out.NewRoot, del.NewRoot)
}

// TestDeleteTriggersBorrowAndMerge drives enough inserts to build a
// multi-level tree, then deletes keys from a leaf until it underflows,
// exercising the borrow/merge rebalancing path.
func TestDeleteTriggersBorrowAndMerge(t *testing.T) {
	mgr, tr := tempTree(t, 4, false)
	var root PageNode = tr.NewEmptyRoot(1)

	const n = 24
	rev := uint64(1)
	for i := uint64(0); i < n; i++ {
		out, err := Insert(tr, root, rev, i, fmt.Sprintf("v%d", i))
		require.NoError(t, err)
		flushAll(t, mgr, tr)
		root = out.NewRoot
		rev++
	}

	present := map[uint64]bool{}
	for i := uint64(0); i < n; i++ {
		present[i] = true
	}

	for i := uint64(0); i < n-2; i++ {
		del, err := Delete(tr, root, rev, i)
		require.NoError(t, err)
		flushAll(t, mgr, tr)
		require.True(t, del.Found, "key %d should have been found", i)
		root = del.NewRoot
		delete(present, i)
		rev++

		for k := range present {
			vals, found, err := Search(tr, root, k)
			require.NoError(t, err)
			require.True(t, found, "key %d lost after deleting %d", k, i)
			assert.Equal(t, []interface{}{fmt.Sprintf("v%d", k)}, vals)
		}
	}
}

func TestDuplicateValuesInsertAndSearch(t *testing.T) {
	mgr, tr := tempTree(t, 4, true)
	var root PageNode = tr.NewEmptyRoot(1)

	out, err := Insert(tr, root, 1, uint64(1), "a")
	require.NoError(t, err)
	flushAll(t, mgr, tr)
	root = out.NewRoot

	out, err = Insert(tr, root, 2, uint64(1), "b")
	require.NoError(t, err)
	flushAll(t, mgr, tr)
	root = out.NewRoot

	out, err = Insert(tr, root, 3, uint64(1), "c")
	require.NoError(t, err)
	flushAll(t, mgr, tr)
	root = out.NewRoot

	vals, found, err := Search(tr, root, uint64(1))
	require.NoError(t, err)
	require.True(t, found)
	assert.ElementsMatch(t, []interface{}{"a", "b", "c"}, vals)
}

func TestDuplicateValueReinsertIsIdempotent(t *testing.T) {
	mgr, tr := tempTree(t, 4, true)
	var root PageNode = tr.NewEmptyRoot(1)

	out, err := Insert(tr, root, 1, uint64(1), "a")
	require.NoError(t, err)
	flushAll(t, mgr, tr)
	root = out.NewRoot

	out, err = Insert(tr, root, 2, uint64(1), "a")
	require.NoError(t, err)
	flushAll(t, mgr, tr)
	root = out.NewRoot

	vals, found, err := Search(tr, root, uint64(1))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []interface{}{"a"}, vals)
}

func TestDuplicateValuesPromoteToSubtree(t *testing.T) {
	mgr, tr := tempTree(t, 4, true)
	tr.cfg.DupThreshold = 2
	var root PageNode = tr.NewEmptyRoot(1)

	rev := uint64(1)
	want := []string{"a", "b", "c", "d", "e"}
	for _, v := range want {
		out, err := Insert(tr, root, rev, uint64(1), v)
		require.NoError(t, err)
		flushAll(t, mgr, tr)
		root = out.NewRoot
		rev++
	}

	vals, found, err := Search(tr, root, uint64(1))
	require.NoError(t, err)
	require.True(t, found)
	got := make([]string, len(vals))
	for i, v := range vals {
		got[i] = v.(string)
	}
	assert.ElementsMatch(t, want, got)
}

func TestDuplicatePromotionWrapsUnderlyingFailure(t *testing.T) {
	f, err := os.CreateTemp("", "btree-*.db")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(f.Name()) })
	mgr := pageio.New(f, 256, -1)
	tr := NewTree(mgr, Config{
		Name:            "t",
		Fanout:          4,
		KeyCodec:        codec.Uint64Codec{},
		ValueCodec:      codec.StringCodec{},
		AllowDuplicates: true,
		DupThreshold:    1,
	})
	root := PageNode(tr.NewEmptyRoot(1))

	out, err := Insert(tr, root, 1, uint64(1), "a")
	require.NoError(t, err)
	require.NoError(t, mgr.Flush(tr.TakePending()...))

	// Closing the file makes the nested subtree's own flush (inside
	// appendDuplicate) fail, the only way duplicate-subtree materialization
	// can fail.
	require.NoError(t, f.Close())

	_, err = Insert(tr, out.NewRoot, 2, uint64(1), "b")
	require.Error(t, err)
	assert.True(t, IsBTreeCreationFail(err))
}
