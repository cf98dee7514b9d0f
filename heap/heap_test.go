package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotdb/buffer"
	"slotdb/fsm"
	"slotdb/replacer"
	"slotdb/segment"
	"slotdb/slottedpage"
	"slotdb/storeerr"
	"slotdb/types"
)

const testPageSize = 256

func newTestHeap(t *testing.T, capacity int) *TableHeap {
	t.Helper()
	alloc, err := segment.NewAllocator(t.TempDir(), testPageSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = alloc.Close() })

	pool := buffer.NewPool(alloc, testPageSize, capacity, replacer.KindClock, 2)
	mgr := fsm.New([]int{32, 64, 128})
	return New(1, pool, alloc, mgr, testPageSize)
}

func TestInsertThenGetRoundTrips(t *testing.T) {
	h := newTestHeap(t, 4)
	rid, err := h.Insert(types.Tuple("hello world"))
	require.NoError(t, err)

	got, err := h.Get(rid)
	require.NoError(t, err)
	assert.Equal(t, types.Tuple("hello world"), got)
}

func TestInsertSpillsToNewPageWhenFirstIsFull(t *testing.T) {
	h := newTestHeap(t, 4)
	chunk := make([]byte, 100)

	var rids []types.RID
	for i := 0; i < 4; i++ {
		rid, err := h.Insert(types.Tuple(chunk))
		require.NoError(t, err)
		rids = append(rids, rid)
	}

	assert.NotEqual(t, rids[0].PageID, rids[len(rids)-1].PageID)
}

// TestUpdateOverflowMigratesRow is scenario S2: growing a tuple beyond
// what its home page can hold (even after compaction) erases the old
// slot and re-inserts the tuple elsewhere. Per spec.md's recorded open
// question, the new RID is not surfaced to the caller; a scan is the
// only way to find the migrated row.
func TestUpdateOverflowMigratesRow(t *testing.T) {
	h := newTestHeap(t, 4)
	rid, err := h.Insert(types.Tuple("small"))
	require.NoError(t, err)

	// The largest tuple a fresh page can hold; the home page, which
	// already carries "small", cannot fit it even after compaction.
	huge := make([]byte, testPageSize-slottedpage.HeaderSize-slottedpage.SlotSize)
	require.NoError(t, h.Update(rid, types.Tuple(huge)))

	_, err = h.Get(rid)
	assert.Equal(t, storeerr.NotFound, storeerr.KindOf(err), "old RID is tombstoned")

	it, err := h.Begin()
	require.NoError(t, err)
	require.True(t, it.Valid())
	assert.Equal(t, types.Tuple(huge), it.Value(), "migrated row is found by scan instead")
}

func TestUpdateInPlaceKeepsRID(t *testing.T) {
	h := newTestHeap(t, 4)
	rid, err := h.Insert(types.Tuple("abcdef"))
	require.NoError(t, err)

	require.NoError(t, h.Update(rid, types.Tuple("xy")))

	got, err := h.Get(rid)
	require.NoError(t, err)
	assert.Equal(t, types.Tuple("xy"), got)
}

func TestEraseThenGetIsNotFound(t *testing.T) {
	h := newTestHeap(t, 4)
	rid, err := h.Insert(types.Tuple("row"))
	require.NoError(t, err)

	require.NoError(t, h.Erase(rid))
	_, err = h.Get(rid)
	assert.Equal(t, storeerr.NotFound, storeerr.KindOf(err))
}

// TestScanSkipsTombstones is scenario S6.
func TestScanSkipsTombstones(t *testing.T) {
	h := newTestHeap(t, 4)
	r1, err := h.Insert(types.Tuple("one"))
	require.NoError(t, err)
	_, err = h.Insert(types.Tuple("two"))
	require.NoError(t, err)
	r3, err := h.Insert(types.Tuple("three"))
	require.NoError(t, err)

	require.NoError(t, h.Erase(r1))

	it, err := h.Begin()
	require.NoError(t, err)

	var seen []types.RID
	for it.Valid() {
		seen = append(seen, it.RID())
		it.Next()
	}
	require.NoError(t, it.Err())
	assert.True(t, it.End())

	assert.NotContains(t, seen, r1)
	assert.Contains(t, seen, r3)
	assert.Len(t, seen, 2)
}

func TestScanOverEmptyHeapEndsImmediately(t *testing.T) {
	h := newTestHeap(t, 4)
	it, err := h.Begin()
	require.NoError(t, err)
	assert.False(t, it.Valid())
	assert.True(t, it.End())
}
