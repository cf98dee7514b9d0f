package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotdb/storeerr"
	"slotdb/types"
)

func key(pid uint32) types.PageKey {
	return types.PageKey{Segment: 1, Page: types.PageID(pid)}
}

// TestBucketingMatchesThresholds is scenario S5: with thresholds
// [128, 512, 1024] there are four buckets (B0..B3), and pages with
// free bytes 50, 300, 800, 2000 land one per bucket.
func TestBucketingMatchesThresholds(t *testing.T) {
	m := New([]int{128, 512, 1024})

	m.Update(key(1), 50)   // B0 = [0,128)
	m.Update(key(2), 300)  // B1 = [128,512)
	m.Update(key(3), 800)  // B2 = [512,1024)
	m.Update(key(4), 2000) // B3 = [1024,inf)

	assert.Equal(t, []int{1, 1, 1, 1}, m.BinSizes())
}

func TestFindReturnsSmallestQualifyingPage(t *testing.T) {
	m := New([]int{128, 512, 1024})
	m.Update(key(5), 300)
	m.Update(key(3), 800)
	m.Update(key(7), 2000)

	got, err := m.Find(260)
	require.NoError(t, err)
	assert.Equal(t, key(5), got)
}

func TestFindAboveEveryThresholdIsNotFound(t *testing.T) {
	m := New([]int{128, 512, 1024})
	m.Update(key(1), 50)

	_, err := m.Find(3000)
	assert.Equal(t, storeerr.NotFound, storeerr.KindOf(err))
}

func TestFindSkipsBucketsTooSmall(t *testing.T) {
	m := New([]int{128, 512, 1024})
	m.Update(key(1), 50) // too small for need=300

	_, err := m.Find(300)
	assert.Equal(t, storeerr.NotFound, storeerr.KindOf(err))
}

func TestUpdateMovesPageBetweenBuckets(t *testing.T) {
	m := New([]int{128, 512})
	m.Update(key(1), 50)
	assert.Equal(t, []int{1, 0, 0}, m.BinSizes())

	m.Update(key(1), 300)
	assert.Equal(t, []int{0, 1, 0}, m.BinSizes())
}

func TestRemoveDropsPageFromTracking(t *testing.T) {
	m := New([]int{128, 512})
	m.Update(key(1), 50)
	m.Remove(key(1))

	_, err := m.Find(10)
	assert.Error(t, err)
}

func TestRebuildFromSegmentWithoutProbeIsUnavailable(t *testing.T) {
	m := New([]int{128, 512})
	err := m.RebuildFromSegment(1)
	assert.Equal(t, storeerr.Unavailable, storeerr.KindOf(err))
}

func TestRebuildFromSegmentRepopulatesBuckets(t *testing.T) {
	m := New([]int{128, 512})
	free := map[types.PageID]uint16{0: 50, 1: 300}

	m.RegisterSegmentProbe(
		func(seg types.SegmentID, pid types.PageID) (uint16, error) {
			v, ok := free[pid]
			if !ok {
				return 0, storeerr.New(storeerr.NotFound, "no such page")
			}
			return v, nil
		},
		func(seg types.SegmentID) (int64, error) { return 2, nil },
	)

	require.NoError(t, m.RebuildFromSegment(1))
	assert.Equal(t, []int{1, 1, 0}, m.BinSizes())
}
