package replacer

// LRUK implements the LRU-K victim policy (K=2 by default per
// spec.md §4.E): among evictable frames, the victim is the one with
// the largest backward K-distance — how long ago its K-th most recent
// access happened. Frames with fewer than K recorded accesses have an
// effectively infinite distance and are preferred for eviction over
// any frame that has been accessed K times, oldest-first-access
// breaking ties within that group. A monotonically increasing access
// counter stands in for wall-clock time so the policy is deterministic
// and doesn't depend on timer resolution.
type LRUK struct {
	capacity int
	k        int
	present  []bool
	history  [][]int64 // most recent access timestamps, newest first, capped at k
	tick     int64
}

// NewLRUK allocates an LRUK replacer over capacity frame slots. k < 2
// is clamped to 2.
func NewLRUK(capacity int, k int) *LRUK {
	if k < 2 {
		k = 2
	}
	return &LRUK{
		capacity: capacity,
		k:        k,
		present:  make([]bool, capacity),
		history:  make([][]int64, capacity),
	}
}

func (l *LRUK) RecordAccess(frame int) {
	if frame < 0 || frame >= l.capacity {
		return
	}
	l.tick++
	h := l.history[frame]
	h = append([]int64{l.tick}, h...)
	if len(h) > l.k {
		h = h[:l.k]
	}
	l.history[frame] = h
}

func (l *LRUK) Pin(frame int) {
	if frame < 0 || frame >= l.capacity {
		return
	}
	l.present[frame] = false
}

func (l *LRUK) Unpin(frame int) {
	if frame < 0 || frame >= l.capacity {
		return
	}
	l.present[frame] = true
}

// kthDistance returns the backward K-distance for frame and whether it
// has a finite one (i.e. at least k recorded accesses).
func (l *LRUK) kthDistance(frame int) (int64, bool) {
	h := l.history[frame]
	if len(h) < l.k {
		return 0, false
	}
	kth := h[l.k-1]
	return l.tick - kth, true
}

// earliestAccess returns the oldest recorded access time for frame, or
// 0 if it has never been accessed.
func (l *LRUK) earliestAccess(frame int) int64 {
	h := l.history[frame]
	if len(h) == 0 {
		return 0
	}
	return h[len(h)-1]
}

func (l *LRUK) Victim() (int, bool) {
	bestFrame := -1
	bestInfinite := false
	var bestDist int64
	var bestEarliest int64

	for frame := 0; frame < l.capacity; frame++ {
		if !l.present[frame] {
			continue
		}
		dist, finite := l.kthDistance(frame)
		infinite := !finite
		earliest := l.earliestAccess(frame)

		if bestFrame == -1 {
			bestFrame, bestInfinite, bestDist, bestEarliest = frame, infinite, dist, earliest
			continue
		}

		switch {
		case infinite && !bestInfinite:
			bestFrame, bestInfinite, bestDist, bestEarliest = frame, infinite, dist, earliest
		case infinite == bestInfinite && infinite:
			if earliest < bestEarliest {
				bestFrame, bestEarliest = frame, earliest
			}
		case infinite == bestInfinite && !infinite:
			if dist > bestDist {
				bestFrame, bestDist = frame, dist
			}
		}
		// !infinite && bestInfinite: current candidate cannot win, skip.
	}

	if bestFrame == -1 {
		return 0, false
	}
	l.present[bestFrame] = false
	return bestFrame, true
}

func (l *LRUK) Size() int {
	n := 0
	for _, p := range l.present {
		if p {
			n++
		}
	}
	return n
}
