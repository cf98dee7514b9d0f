// Package fsm implements component G: the Free Space Manager. Pages
// are bucketed by an ascending vector of free-byte thresholds so
// Find(need) only has to scan the buckets whose range could possibly
// satisfy need, rather than every page in a segment. The bucketing
// idea is grounded on other_examples/HayatoShiba-ppdb__fsm.go's
// free-space-class approach, adapted to spec.md §4.G's simpler
// fixed-threshold design (no dynamic rebalancing of bucket ranges).
package fsm

import (
	"sort"
	"sync"

	"slotdb/storeerr"
	"slotdb/types"
)

// Manager tracks, per segment, which pages have at least how much free
// space, bucketed against a shared threshold vector. With N ascending
// thresholds t_0..t_{N-1}, there are N+1 buckets B_0..B_N: B_0 =
// [0, t_0), B_k = [t_{k-1}, t_k) for 0 < k < N, and B_N = [t_{N-1}, inf).
// Every public operation is serialized under a single mutex, per
// spec.md §4.G/§5 — the same discipline buffer.Pool and
// segment.Allocator use.
type Manager struct {
	mu sync.Mutex

	thresholds []int // ascending, deduplicated
	buckets    []map[types.PageKey]struct{}

	pid2bucket map[types.PageKey]int
	pid2free   map[types.PageKey]uint16

	probeFree func(seg types.SegmentID, pid types.PageID) (uint16, error)
	pageCount func(seg types.SegmentID) (int64, error)
}

// New builds a Manager with the given ascending free-byte thresholds
// (e.g. config.Config.FSMThresholds). Thresholds are sorted and
// deduplicated defensively.
func New(thresholds []int) *Manager {
	ts := append([]int(nil), thresholds...)
	sort.Ints(ts)
	deduped := ts[:0]
	for i, v := range ts {
		if i == 0 || v != ts[i-1] {
			deduped = append(deduped, v)
		}
	}

	m := &Manager{
		thresholds: deduped,
		buckets:    make([]map[types.PageKey]struct{}, len(deduped)+1),
		pid2bucket: make(map[types.PageKey]int),
		pid2free:   make(map[types.PageKey]uint16),
	}
	for i := range m.buckets {
		m.buckets[i] = make(map[types.PageKey]struct{})
	}
	return m
}

// BinSizes returns, for each threshold bucket in ascending order, the
// number of pages currently assigned to it — used for the loader's end
// of run histogram log.
func (m *Manager) BinSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	sizes := make([]int, len(m.buckets))
	for i, b := range m.buckets {
		sizes[i] = len(b)
	}
	return sizes
}

// bucketFor returns the index of B_k such that free falls in
// [t_{k-1}, t_k), or the last (unbounded) bucket if free >= every
// threshold.
func (m *Manager) bucketFor(free uint16) int {
	for i, t := range m.thresholds {
		if int(free) < t {
			return i
		}
	}
	return len(m.thresholds)
}

// Update records key's current free byte count, moving it between
// buckets as needed.
func (m *Manager) Update(key types.PageKey, free uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateLocked(key, free)
}

func (m *Manager) updateLocked(key types.PageKey, free uint16) {
	m.removeLocked(key)
	b := m.bucketFor(free)
	m.buckets[b][key] = struct{}{}
	m.pid2bucket[key] = b
	m.pid2free[key] = free
}

// Remove drops key from tracking entirely (e.g. the page was freed).
func (m *Manager) Remove(key types.PageKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(key)
}

func (m *Manager) removeLocked(key types.PageKey) {
	if b, ok := m.pid2bucket[key]; ok {
		delete(m.buckets[b], key)
		delete(m.pid2bucket, key)
		delete(m.pid2free, key)
	}
}

// Find returns a page believed to have at least need bytes free,
// scanning buckets from the smallest one that could hold need upward.
// Within a bucket, pages are considered in ascending PageID order for
// determinism. Returns storeerr.NotFound if no tracked page qualifies.
func (m *Manager) Find(need uint16) (types.PageKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.bucketFor(need)

	for i := start; i < len(m.buckets); i++ {
		candidates := make([]types.PageKey, 0, len(m.buckets[i]))
		for key := range m.buckets[i] {
			if m.pid2free[key] >= need {
				candidates = append(candidates, key)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		sort.Slice(candidates, func(a, b int) bool {
			if candidates[a].Segment != candidates[b].Segment {
				return candidates[a].Segment < candidates[b].Segment
			}
			return candidates[a].Page < candidates[b].Page
		})
		return candidates[0], nil
	}
	return types.PageKey{}, storeerr.New(storeerr.NotFound, "no tracked page has >= %d bytes free", need)
}

// RegisterSegmentProbe attaches the callbacks RebuildFromSegment needs:
// probeFree reads a single page's current free_size, pageCount reports
// how many pages a segment currently has. Kept as plain function
// values (rather than an interface) so fsm never imports segment
// directly.
func (m *Manager) RegisterSegmentProbe(
	probeFree func(seg types.SegmentID, pid types.PageID) (uint16, error),
	pageCount func(seg types.SegmentID) (int64, error),
) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probeFree = probeFree
	m.pageCount = pageCount
}

// RebuildFromSegment clears the tracking of seg's pages (other
// segments' entries are kept) and re-populates it by probing every
// page [0, page_count(seg)) of seg, for recovery after a
// restart when the in-memory FSM state was lost. Fails Unavailable if
// RegisterSegmentProbe was never called.
func (m *Manager) RebuildFromSegment(seg types.SegmentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.probeFree == nil || m.pageCount == nil {
		return storeerr.New(storeerr.Unavailable, "no segment probe registered")
	}

	for b := range m.buckets {
		for key := range m.buckets[b] {
			if key.Segment == seg {
				delete(m.buckets[b], key)
				delete(m.pid2bucket, key)
				delete(m.pid2free, key)
			}
		}
	}

	count, err := m.pageCount(seg)
	if err != nil {
		return err
	}
	for pid := int64(0); pid < count; pid++ {
		free, err := m.probeFree(seg, types.PageID(pid))
		if err != nil {
			if storeerr.KindOf(err) == storeerr.NotFound {
				continue
			}
			return err
		}
		m.updateLocked(types.PageKey{Segment: seg, Page: types.PageID(pid)}, free)
	}
	return nil
}
