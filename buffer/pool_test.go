package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotdb/replacer"
	"slotdb/segment"
	"slotdb/slottedpage"
	"slotdb/storeerr"
	"slotdb/types"
)

const testPageSize = 256

func newTestPool(t *testing.T, capacity int, kind replacer.Kind) (*Pool, *segment.Allocator) {
	t.Helper()
	alloc, err := segment.NewAllocator(t.TempDir(), testPageSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = alloc.Close() })
	return NewPool(alloc, testPageSize, capacity, kind, 2), alloc
}

func TestNewPageThenFetchRoundTrips(t *testing.T) {
	pool, _ := newTestPool(t, 4, replacer.KindClock)

	f, pid, err := pool.NewPage(1)
	require.NoError(t, err)
	slotID, err := slottedpage.Insert(f.Data(), testPageSize, []byte("row"))
	require.NoError(t, err)
	require.NoError(t, pool.UnpinPage(1, pid, true))

	got, err := pool.FetchPage(1, pid)
	require.NoError(t, err)
	rec, err := slottedpage.Get(got.Data(), testPageSize, slotID)
	require.NoError(t, err)
	assert.Equal(t, []byte("row"), rec)
	require.NoError(t, pool.UnpinPage(1, pid, false))
}

func TestFetchPageIsCacheHitForResidentPage(t *testing.T) {
	pool, _ := newTestPool(t, 4, replacer.KindClock)

	_, pid, err := pool.NewPage(1)
	require.NoError(t, err)
	require.NoError(t, pool.UnpinPage(1, pid, false))

	_, err = pool.FetchPage(1, pid)
	require.NoError(t, err)
	require.NoError(t, pool.UnpinPage(1, pid, false))

	stats := pool.GetStats()
	assert.EqualValues(t, 1, stats.Hits)
}

func TestUnpinUnknownPageIsNotFound(t *testing.T) {
	pool, _ := newTestPool(t, 4, replacer.KindClock)
	err := pool.UnpinPage(1, 99, false)
	assert.Equal(t, storeerr.NotFound, storeerr.KindOf(err))
}

func TestEvictionFlushesDirtyVictim(t *testing.T) {
	pool, alloc := newTestPool(t, 1, replacer.KindClock)

	f1, p1, err := pool.NewPage(1)
	require.NoError(t, err)
	_, err = slottedpage.Insert(f1.Data(), testPageSize, []byte("keepme"))
	require.NoError(t, err)
	require.NoError(t, pool.UnpinPage(1, p1, true))

	// Forces eviction of p1's frame since capacity is 1.
	_, p2, err := pool.NewPage(1)
	require.NoError(t, err)
	require.NoError(t, pool.UnpinPage(1, p2, false))

	stats := pool.GetStats()
	assert.EqualValues(t, 1, stats.Evictions)
	assert.GreaterOrEqual(t, stats.Flushes, uint64(1))

	file, err := alloc.File(1)
	require.NoError(t, err)
	buf := make([]byte, testPageSize)
	require.NoError(t, file.ReadPage(int64(p1), buf))
	got, err := slottedpage.Get(buf, testPageSize, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("keepme"), got)
}

func TestFetchingAllPinnedFramesIsUnavailable(t *testing.T) {
	pool, _ := newTestPool(t, 1, replacer.KindClock)

	_, _, err := pool.NewPage(1) // leaves the only frame pinned
	require.NoError(t, err)

	_, _, err = pool.NewPage(2)
	require.Error(t, err)
	assert.Equal(t, storeerr.Unavailable, storeerr.KindOf(err))
}

func TestFlushCallbackInvokedOnFlush(t *testing.T) {
	pool, _ := newTestPool(t, 2, replacer.KindClock)

	var seen []types.PageKey
	pool.RegisterFlushCallback(func(key types.PageKey, pageLSN uint64) {
		seen = append(seen, key)
	})

	_, pid, err := pool.NewPage(1)
	require.NoError(t, err)
	require.NoError(t, pool.UnpinPage(1, pid, true))
	require.NoError(t, pool.FlushAll())

	require.Len(t, seen, 1)
	assert.Equal(t, types.PageKey{Segment: 1, Page: pid}, seen[0])
}
