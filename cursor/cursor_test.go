package cursor

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvbtree/mvbtree/codec"
	"github.com/mvbtree/mvbtree/recordmgr"
)

func TestBrowseYieldsAscendingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.mvb")
	m, err := recordmgr.Open(path, 256)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.AddTreeWithFanout("accounts", 4, codec.Uint64Codec{}, codec.StringCodec{}, false))
	inserted := []uint64{30, 10, 50, 20, 40}
	for _, k := range inserted {
		_, _, err := m.Insert("accounts", k, "v")
		require.NoError(t, err)
	}

	cur, err := Browse(m, "accounts", -1)
	require.NoError(t, err)
	require.Equal(t, len(inserted), cur.Len())

	var got []uint64
	for cur.Next() {
		got = append(got, cur.Entry().Key.(uint64))
	}
	assert.Equal(t, []uint64{10, 20, 30, 40, 50}, got)
}

func TestBrowseHistoricalRevision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.mvb")
	m, err := recordmgr.Open(path, 256)
	require.NoError(t, err)
	defer m.Close()
	m.SetKeepRevisions(true)

	require.NoError(t, m.AddTreeWithFanout("accounts", 4, codec.Uint64Codec{}, codec.StringCodec{}, false))
	_, _, err = m.Insert("accounts", uint64(1), "v1")
	require.NoError(t, err)
	firstRevision, err := m.CurrentRevision("accounts")
	require.NoError(t, err)

	_, _, err = m.Insert("accounts", uint64(2), "v2")
	require.NoError(t, err)

	cur, err := Browse(m, "accounts", int64(firstRevision))
	require.NoError(t, err)
	assert.Equal(t, 1, cur.Len())

	cur, err = Browse(m, "accounts", -1)
	require.NoError(t, err)
	assert.Equal(t, 2, cur.Len())
}
