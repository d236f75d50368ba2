package pageio

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempManager(t *testing.T, pageSize uint32) *Manager {
	t.Helper()
	f, err := os.CreateTemp("", "pageio-*.db")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(f.Name()) })
	return New(f, pageSize, -1)
}

func TestAllocateExtendsFile(t *testing.T) {
	m := tempManager(t, 128)

	p1, err := m.Allocate()
	require.NoError(t, err)
	assert.Equal(t, int64(0), p1.Offset)
	assert.Equal(t, int64(-1), p1.Next())

	p2, err := m.Allocate()
	require.NoError(t, err)
	assert.Equal(t, int64(128), p2.Offset)

	stats := m.Stats()
	assert.EqualValues(t, 2, stats.Allocations())
	assert.EqualValues(t, 2, stats.FileExtensions())
	assert.EqualValues(t, 0, stats.FromFreeList())
}

func TestFreeThenAllocateReusesLIFO(t *testing.T) {
	m := tempManager(t, 128)

	p1, err := m.Allocate()
	require.NoError(t, err)
	p2, err := m.Allocate()
	require.NoError(t, err)
	p3, err := m.Allocate()
	require.NoError(t, err)
	require.NoError(t, m.Flush(p1, p2, p3))

	require.NoError(t, m.Free([]int64{p1.Offset, p2.Offset}))
	assert.Equal(t, p2.Offset, m.FirstFreePage())

	reused, err := m.Allocate()
	require.NoError(t, err)
	assert.Equal(t, p2.Offset, reused.Offset)

	reused2, err := m.Allocate()
	require.NoError(t, err)
	assert.Equal(t, p1.Offset, reused2.Offset)
	assert.Equal(t, int64(-1), m.FirstFreePage())

	stats := m.Stats()
	assert.EqualValues(t, 2, stats.FromFreeList())
}

func TestFetchRoundTripsPayload(t *testing.T) {
	m := tempManager(t, 64)

	p, err := m.Allocate()
	require.NoError(t, err)
	copy(p.FirstPayload(), []byte("hello"))
	p.SetLogicalSize(5)
	require.NoError(t, m.Flush(p))

	fetched, err := m.Fetch(p.Offset)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), fetched.LogicalSize())
	assert.Equal(t, "hello", string(fetched.FirstPayload()[:5]))
}

func TestCheckOffsetRejectsMisaligned(t *testing.T) {
	m := tempManager(t, 64)
	_, err := m.Allocate()
	require.NoError(t, err)

	assert.NoError(t, m.CheckOffset(-1))
	assert.NoError(t, m.CheckOffset(0))
	assert.Error(t, m.CheckOffset(1))
	assert.Error(t, m.CheckOffset(640))
	assert.True(t, IsInvalidOffset(m.CheckOffset(1)))
}

func TestReadChainWalksLinkedPages(t *testing.T) {
	m := tempManager(t, 32)

	p1, err := m.Allocate()
	require.NoError(t, err)
	p2, err := m.Allocate()
	require.NoError(t, err)

	copy(p1.FirstPayload(), []byte("AB"))
	p1.SetLogicalSize(2)
	p1.SetNext(p2.Offset)
	copy(p2.ExtPayload(), []byte("CD"))

	require.NoError(t, m.Flush(p1, p2))

	pages, err := m.ReadChain(p1.Offset, 0)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, p2.Offset, pages[0].Next())
	assert.Equal(t, int64(-1), pages[1].Next())
}
