package record

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvbtree/mvbtree/pageio"
)

func tempMgr(t *testing.T, pageSize uint32) *pageio.Manager {
	t.Helper()
	f, err := os.CreateTemp("", "record-*.db")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(f.Name()) })
	return pageio.New(f, pageSize, -1)
}

func TestWriteReadRoundTripSinglePage(t *testing.T) {
	mgr := tempMgr(t, 64)

	w := NewWriter()
	w.WriteUint64(42)
	w.WriteBlob([]byte("hi"))

	offset, pages, err := WritePages(mgr, w.Bytes())
	require.NoError(t, err)
	require.NoError(t, mgr.Flush(pages...))
	require.Len(t, pages, 1)

	r, err := ReadRecord(mgr, offset)
	require.NoError(t, err)

	v, err := r.ReadUint64()
	require.NoError(t, err)
	assert.EqualValues(t, 42, v)

	b, err := r.ReadBlob()
	require.NoError(t, err)
	assert.Equal(t, "hi", string(b))
}

func TestWriteReadRoundTripSpansPages(t *testing.T) {
	mgr := tempMgr(t, 32)

	w := NewWriter()
	for i := uint32(0); i < 20; i++ {
		w.WriteUint32(i)
	}

	offset, pages, err := WritePages(mgr, w.Bytes())
	require.NoError(t, err)
	require.NoError(t, mgr.Flush(pages...))
	require.Greater(t, len(pages), 1)

	r, err := ReadRecord(mgr, offset)
	require.NoError(t, err)
	assert.EqualValues(t, 80, r.Len())

	for i := uint32(0); i < 20; i++ {
		v, err := r.ReadUint32()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

func TestReadPastEndReturnsError(t *testing.T) {
	mgr := tempMgr(t, 64)
	w := NewWriter()
	w.WriteUint32(1)
	offset, pages, err := WritePages(mgr, w.Bytes())
	require.NoError(t, err)
	require.NoError(t, mgr.Flush(pages...))

	r, err := ReadRecord(mgr, offset)
	require.NoError(t, err)
	_, err = r.ReadUint64()
	assert.Error(t, err)
}

func TestOffsetToPagePos(t *testing.T) {
	idx, pos := OffsetToPagePos(0, 64)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 0, pos)

	idx, pos = OffsetToPagePos(51, 64) // firstPayload=52
	assert.Equal(t, 0, idx)
	assert.Equal(t, 51, pos)

	idx, pos = OffsetToPagePos(52, 64) // first byte past first page
	assert.Equal(t, 1, idx)
	assert.Equal(t, 0, pos)

	idx, pos = OffsetToPagePos(52+56, 64) // one full continuation page (extPayload=56) later
	assert.Equal(t, 2, idx)
	assert.Equal(t, 0, pos)
}

func TestWriteBlobAbsentIsNil(t *testing.T) {
	mgr := tempMgr(t, 64)
	w := NewWriter()
	w.WriteBlob(nil)
	offset, pages, err := WritePages(mgr, w.Bytes())
	require.NoError(t, err)
	require.NoError(t, mgr.Flush(pages...))

	r, err := ReadRecord(mgr, offset)
	require.NoError(t, err)
	b, err := r.ReadBlob()
	require.NoError(t, err)
	assert.Nil(t, b)
}
