package segment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotdb/slottedpage"
	"slotdb/storeerr"
	"slotdb/types"
)

const testPageSize = 256

func newAllocator(t *testing.T) *Allocator {
	t.Helper()
	a, err := NewAllocator(t.TempDir(), testPageSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAllocatePageGrowsSequentially(t *testing.T) {
	a := newAllocator(t)
	p0, err := a.AllocatePage(1)
	require.NoError(t, err)
	p1, err := a.AllocatePage(1)
	require.NoError(t, err)
	assert.EqualValues(t, 0, p0)
	assert.EqualValues(t, 1, p1)
}

func TestFreePageIsReusedLIFO(t *testing.T) {
	a := newAllocator(t)
	p0, err := a.AllocatePage(1)
	require.NoError(t, err)
	p1, err := a.AllocatePage(1)
	require.NoError(t, err)

	require.NoError(t, a.FreePage(1, p0))
	require.NoError(t, a.FreePage(1, p1))

	// LIFO: last freed (p1) comes back first.
	got, err := a.AllocatePage(1)
	require.NoError(t, err)
	assert.Equal(t, p1, got)

	got, err = a.AllocatePage(1)
	require.NoError(t, err)
	assert.Equal(t, p0, got)
}

func TestSegmentsAreIndependent(t *testing.T) {
	a := newAllocator(t)
	pA, err := a.AllocatePage(1)
	require.NoError(t, err)
	pB, err := a.AllocatePage(2)
	require.NoError(t, err)
	assert.Equal(t, pA, pB, "each segment starts its own page-id sequence from 0")
}

func TestProbePageFreeReflectsInitializedPage(t *testing.T) {
	a := newAllocator(t)
	pid, err := a.AllocatePage(1)
	require.NoError(t, err)

	buf := make([]byte, testPageSize)
	slottedpage.InitNew(buf, uint32(pid), testPageSize)
	_, err = slottedpage.Insert(buf, testPageSize, []byte("row"))
	require.NoError(t, err)

	f, err := a.File(1)
	require.NoError(t, err)
	require.NoError(t, f.WritePage(int64(pid), buf))

	free, err := a.ProbePageFree(1, pid)
	require.NoError(t, err)
	assert.Equal(t, slottedpage.FreeSize(buf), free)
}

func TestProbePageFreeCacheInvalidatedOnRealloc(t *testing.T) {
	a := newAllocator(t)
	pid, err := a.AllocatePage(1)
	require.NoError(t, err)

	buf := make([]byte, testPageSize)
	slottedpage.InitNew(buf, uint32(pid), testPageSize)
	f, err := a.File(1)
	require.NoError(t, err)
	require.NoError(t, f.WritePage(int64(pid), buf))

	_, err = a.ProbePageFree(1, pid)
	require.NoError(t, err)

	require.NoError(t, a.FreePage(1, pid))
	// ristretto's Set is processed asynchronously via its ring buffer;
	// give it a moment so Del is guaranteed to land before the next Get.
	time.Sleep(10 * time.Millisecond)

	got, err := a.AllocatePage(1)
	require.NoError(t, err)
	assert.Equal(t, pid, got)

	// The reused page now holds a record; the probe must read its new
	// free_size from disk rather than the value cached before the free.
	_, err = slottedpage.Insert(buf, testPageSize, []byte("row"))
	require.NoError(t, err)
	require.NoError(t, f.WritePage(int64(pid), buf))

	free, err := a.ProbePageFree(1, pid)
	require.NoError(t, err)
	assert.Equal(t, slottedpage.FreeSize(buf), free)
}

func TestProbePageFreeBeyondEOFIsNotFound(t *testing.T) {
	a := newAllocator(t)
	_, err := a.ProbePageFree(1, types.PageID(5))
	require.Error(t, err)
	assert.Equal(t, storeerr.NotFound, storeerr.KindOf(err))
}
