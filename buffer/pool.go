// Package buffer implements components D and F: the frame arena and
// page table, and the buffer pool manager built on top of them.
// Generalized from the teacher's storage_engine/bufferpool/bufferpool.go,
// whose hardcoded accessOrder LRU array is replaced here by a
// replacer.Replacer chosen once at construction, per spec.md §9.
package buffer

import (
	"sync"

	"slotdb/replacer"
	"slotdb/segment"
	"slotdb/slottedpage"
	"slotdb/storeerr"
	"slotdb/types"
)

// Stats mirrors the teacher's bufferpool hit/miss counters, extended
// with evictions and flushes per spec.md §4.F's GetStats.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Flushes   uint64
}

// FlushCallback is the pre-write hook: invoked with a page's identity
// and its current page_lsn just before the pool writes it back to
// disk, giving a future WAL layer a chance to force its log up to
// page_lsn first (write-ahead logging) without the pool knowing
// anything about the log.
type FlushCallback func(key types.PageKey, pageLSN uint64)

// Pool is the buffer pool manager: a fixed arena of frames, a page
// table mapping (segment, page) to frame, and a pluggable victim
// policy for picking what to evict when the arena is full.
type Pool struct {
	pageSize int
	alloc    *segment.Allocator

	mu        sync.Mutex
	frames    []*Frame
	freeList  []int
	pageTable map[types.PageKey]int
	rep       replacer.Replacer
	callbacks []FlushCallback
	stats     Stats
}

// NewPool allocates capacity frames of pageSize bytes each, backed by
// alloc for page I/O, using the named replacer variant.
func NewPool(alloc *segment.Allocator, pageSize, capacity int, kind replacer.Kind, replacerK int) *Pool {
	frames := make([]*Frame, capacity)
	freeList := make([]int, capacity)
	for i := 0; i < capacity; i++ {
		frames[i] = newFrame(i, pageSize)
		freeList[i] = capacity - 1 - i // pop from the tail -> frame 0 handed out first
	}

	return &Pool{
		pageSize:  pageSize,
		alloc:     alloc,
		frames:    frames,
		freeList:  freeList,
		pageTable: make(map[types.PageKey]int),
		rep:       replacer.New(kind, capacity, replacerK),
	}
}

// RegisterFlushCallback adds cb to the set invoked just before every
// page write-back.
func (p *Pool) RegisterFlushCallback(cb FlushCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = append(p.callbacks, cb)
}

// GetStats returns a snapshot of the pool's counters.
func (p *Pool) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// FetchPage pins and returns the frame holding (seg, pid), loading it
// from disk on a page-table miss. Callers must UnpinPage when done.
func (p *Pool) FetchPage(seg types.SegmentID, pid types.PageID) (*Frame, error) {
	key := types.PageKey{Segment: seg, Page: pid}

	p.mu.Lock()
	if idx, ok := p.pageTable[key]; ok {
		p.stats.Hits++
		f := p.frames[idx]
		p.pinFrameLocked(idx)
		p.mu.Unlock()
		return f, nil
	}
	p.stats.Misses++

	idx, err := p.acquireFrameLocked()
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	f := p.frames[idx]
	p.mu.Unlock()

	f.Lock()
	file, err := p.alloc.File(seg)
	if err != nil {
		f.Unlock()
		p.releaseAcquiredFrame(idx)
		return nil, err
	}
	if err := file.ReadPage(int64(pid), f.data); err != nil {
		f.Unlock()
		p.releaseAcquiredFrame(idx)
		return nil, err
	}
	f.key = key
	f.valid = true
	f.dirty = false
	f.Unlock()

	p.mu.Lock()
	p.pageTable[key] = idx
	p.pinFrameLocked(idx)
	p.mu.Unlock()

	return f, nil
}

// NewPage allocates a fresh page in seg, initializes it as an empty
// slotted page, and returns its pinned frame.
func (p *Pool) NewPage(seg types.SegmentID) (*Frame, types.PageID, error) {
	pid, err := p.alloc.AllocatePage(seg)
	if err != nil {
		return nil, 0, err
	}
	key := types.PageKey{Segment: seg, Page: pid}

	p.mu.Lock()
	idx, err := p.acquireFrameLocked()
	if err != nil {
		p.mu.Unlock()
		return nil, 0, err
	}
	f := p.frames[idx]
	p.mu.Unlock()

	f.Lock()
	slottedpage.InitNew(f.data, uint32(pid), p.pageSize)
	f.key = key
	f.valid = true
	f.dirty = true
	f.Unlock()

	p.mu.Lock()
	p.pageTable[key] = idx
	p.pinFrameLocked(idx)
	p.mu.Unlock()

	return f, pid, nil
}

// UnpinPage decrements the pin count on (seg, pid)'s frame, marking it
// dirty if isDirty, and makes it evictable again once the count hits
// zero.
func (p *Pool) UnpinPage(seg types.SegmentID, pid types.PageID, isDirty bool) error {
	key := types.PageKey{Segment: seg, Page: pid}

	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[key]
	if !ok {
		return storeerr.New(storeerr.NotFound, "page (%d,%d) not resident", seg, pid)
	}
	f := p.frames[idx]

	f.mu.Lock()
	if isDirty {
		f.dirty = true
	}
	if f.pinCount == 0 {
		f.mu.Unlock()
		return storeerr.New(storeerr.InvalidArgument, "page (%d,%d) already unpinned", seg, pid)
	}
	f.pinCount--
	evictable := f.pinCount == 0
	f.mu.Unlock()

	if evictable {
		p.rep.Unpin(idx)
	}
	return nil
}

// FlushPage writes (seg, pid)'s frame to disk if dirty, invoking every
// registered flush callback first; a clean frame is a no-op. Returns
// storeerr.NotFound if the page is not currently resident.
func (p *Pool) FlushPage(seg types.SegmentID, pid types.PageID) error {
	key := types.PageKey{Segment: seg, Page: pid}

	p.mu.Lock()
	idx, ok := p.pageTable[key]
	if !ok {
		p.mu.Unlock()
		return storeerr.New(storeerr.NotFound, "page (%d,%d) not resident", seg, pid)
	}
	f := p.frames[idx]
	p.mu.Unlock()

	return p.flushFrame(f)
}

// FlushAll writes back every resident page and clears their dirty bits.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	frames := make([]*Frame, 0, len(p.pageTable))
	for _, idx := range p.pageTable {
		frames = append(frames, p.frames[idx])
	}
	p.mu.Unlock()

	for _, f := range frames {
		if err := p.flushFrame(f); err != nil {
			return err
		}
	}
	return nil
}

// flushFrame writes f back to disk if it holds a valid, dirty page; a
// clean or empty frame is a no-op, matching FlushPage's "if resident
// and dirty" contract.
func (p *Pool) flushFrame(f *Frame) error {
	f.Lock()
	if !f.valid || !f.dirty {
		f.Unlock()
		return nil
	}
	key := f.key
	pageLSN := slottedpage.ReadHeader(f.data).PageLSN
	data := make([]byte, len(f.data))
	copy(data, f.data)
	f.dirty = false
	f.Unlock()

	p.mu.Lock()
	callbacks := p.callbacks
	p.mu.Unlock()
	for _, cb := range callbacks {
		cb(key, pageLSN)
	}

	file, err := p.alloc.File(key.Segment)
	if err != nil {
		return err
	}
	if err := file.WritePage(int64(key.Page), data); err != nil {
		return err
	}

	p.mu.Lock()
	p.stats.Flushes++
	p.mu.Unlock()
	return nil
}

// pinFrameLocked increments pinCount and removes the frame from
// eviction consideration. p.mu must be held.
func (p *Pool) pinFrameLocked(idx int) {
	f := p.frames[idx]
	f.mu.Lock()
	f.pinCount++
	f.mu.Unlock()
	p.rep.Pin(idx)
	p.rep.RecordAccess(idx)
}

// acquireFrameLocked returns a frame index ready to hold a new page,
// preferring the free list and falling back to evicting a victim.
// p.mu must be held; on success the returned frame has no page table
// entry yet.
func (p *Pool) acquireFrameLocked() (int, error) {
	if n := len(p.freeList); n > 0 {
		idx := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return idx, nil
	}

	idx, ok := p.rep.Victim()
	if !ok {
		return 0, storeerr.New(storeerr.Unavailable, "buffer pool exhausted: all frames pinned")
	}
	p.stats.Evictions++

	f := p.frames[idx]
	oldKey := f.key
	dirty := f.dirty

	p.mu.Unlock()
	var flushErr error
	if dirty {
		flushErr = p.flushFrame(f)
	}
	p.mu.Lock()
	if flushErr != nil {
		return 0, flushErr
	}

	delete(p.pageTable, oldKey)
	f.mu.Lock()
	f.valid = false
	f.mu.Unlock()

	return idx, nil
}

// releaseAcquiredFrame returns a frame obtained via acquireFrameLocked
// back to the free list when a subsequent step (e.g. the disk read in
// FetchPage) fails before the frame is published to the page table.
func (p *Pool) releaseAcquiredFrame(idx int) {
	p.mu.Lock()
	p.freeList = append(p.freeList, idx)
	p.mu.Unlock()
}
