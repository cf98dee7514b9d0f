// Package heap implements component H: the table heap, composing the
// slotted page format, buffer pool, free space manager and segment
// allocator into insert/get/update/erase plus a sequential scan.
// Grounded on the teacher's storage_engine/access/heapfile_manager's
// row_ops_external.go / row_ops_internal.go split between the
// caller-facing API and the page-level mechanics, generalized from the
// teacher's hardcoded row layout to spec.md's opaque tuple contract.
package heap

import (
	"slotdb/buffer"
	"slotdb/fsm"
	"slotdb/segment"
	"slotdb/slottedpage"
	"slotdb/storeerr"
	"slotdb/types"
)

// TableHeap is one heap-organized table, backed by a single segment.
type TableHeap struct {
	seg      types.SegmentID
	pool     *buffer.Pool
	alloc    *segment.Allocator
	fsmMgr   *fsm.Manager
	pageSize int
}

// New wires a TableHeap for segment seg over an already-constructed
// buffer pool, segment allocator and free space manager, registering
// the FSM's segment probe against alloc so Open can rebuild tracking.
func New(seg types.SegmentID, pool *buffer.Pool, alloc *segment.Allocator, fsmMgr *fsm.Manager, pageSize int) *TableHeap {
	fsmMgr.RegisterSegmentProbe(alloc.ProbePageFree, func(seg types.SegmentID) (int64, error) {
		file, err := alloc.File(seg)
		if err != nil {
			return 0, err
		}
		return file.PageCount()
	})
	return &TableHeap{seg: seg, pool: pool, alloc: alloc, fsmMgr: fsmMgr, pageSize: pageSize}
}

// Open rebuilds the heap's free space tracking from the segment's
// current on-disk state, for use after process restart when the FSM's
// in-memory buckets were lost.
func (h *TableHeap) Open() error {
	return h.fsmMgr.RebuildFromSegment(h.seg)
}

// Insert stores tuple on an existing page with enough room, or a newly
// allocated one, and returns its RID.
func (h *TableHeap) Insert(tuple types.Tuple) (types.RID, error) {
	if len(tuple) == 0 {
		return types.RID{}, storeerr.New(storeerr.InvalidArgument, "tuple must not be empty")
	}
	need := uint16(len(tuple)) + slottedpage.SlotSize

	if key, err := h.fsmMgr.Find(need); err == nil {
		rid, insErr := h.tryInsertInto(key.Page, tuple)
		if insErr == nil {
			return rid, nil
		}
		if storeerr.KindOf(insErr) != storeerr.OutOfRange {
			return types.RID{}, insErr
		}
		// FSM's hint was stale (another writer beat us to the space);
		// fall through to allocating a fresh page.
	}

	frame, pid, err := h.pool.NewPage(h.seg)
	if err != nil {
		return types.RID{}, err
	}
	frame.Lock()
	slotID, err := slottedpage.Insert(frame.Data(), h.pageSize, tuple)
	free := slottedpage.FreeSize(frame.Data())
	frame.Unlock()
	if err != nil {
		_ = h.pool.UnpinPage(h.seg, pid, false)
		return types.RID{}, err
	}
	if err := h.pool.UnpinPage(h.seg, pid, true); err != nil {
		return types.RID{}, err
	}
	h.fsmMgr.Update(types.PageKey{Segment: h.seg, Page: pid}, free)
	return types.RID{PageID: pid, Slot: types.SlotID(slotID)}, nil
}

func (h *TableHeap) tryInsertInto(pid types.PageID, tuple types.Tuple) (types.RID, error) {
	frame, err := h.pool.FetchPage(h.seg, pid)
	if err != nil {
		return types.RID{}, err
	}
	frame.Lock()
	slotID, err := slottedpage.Insert(frame.Data(), h.pageSize, tuple)
	free := slottedpage.FreeSize(frame.Data())
	frame.Unlock()
	if err != nil {
		_ = h.pool.UnpinPage(h.seg, pid, false)
		return types.RID{}, err
	}
	if uerr := h.pool.UnpinPage(h.seg, pid, true); uerr != nil {
		return types.RID{}, uerr
	}
	h.fsmMgr.Update(types.PageKey{Segment: h.seg, Page: pid}, free)
	return types.RID{PageID: pid, Slot: types.SlotID(slotID)}, nil
}

// Get returns a copy of the tuple at rid.
func (h *TableHeap) Get(rid types.RID) (types.Tuple, error) {
	frame, err := h.pool.FetchPage(h.seg, rid.PageID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = h.pool.UnpinPage(h.seg, rid.PageID, false) }()

	frame.RLock()
	defer frame.RUnlock()
	rec, err := slottedpage.Get(frame.Data(), h.pageSize, uint16(rid.Slot))
	if err != nil {
		return nil, err
	}
	out := make(types.Tuple, len(rec))
	copy(out, rec)
	return out, nil
}

// Update overwrites rid's tuple. If it no longer fits on its home page
// even after compaction, the row is migrated: the old slot is erased
// and the tuple is re-inserted, possibly on a different page. Per
// spec.md §4.H/§9, the new RID is not returned to the caller and no
// forwarding pointer is left behind — a caller that needs the new
// location must re-discover the row via a sequential scan. This is a
// recorded open-question decision (see DESIGN.md), not an oversight.
func (h *TableHeap) Update(rid types.RID, tuple types.Tuple) error {
	if len(tuple) == 0 {
		return storeerr.New(storeerr.InvalidArgument, "tuple must not be empty")
	}

	frame, err := h.pool.FetchPage(h.seg, rid.PageID)
	if err != nil {
		return err
	}

	frame.Lock()
	err = slottedpage.Update(frame.Data(), h.pageSize, uint16(rid.Slot), tuple)
	free := slottedpage.FreeSize(frame.Data())
	frame.Unlock()

	if err == nil {
		if uerr := h.pool.UnpinPage(h.seg, rid.PageID, true); uerr != nil {
			return uerr
		}
		h.fsmMgr.Update(types.PageKey{Segment: h.seg, Page: rid.PageID}, free)
		return nil
	}

	if storeerr.KindOf(err) != storeerr.OutOfRange {
		_ = h.pool.UnpinPage(h.seg, rid.PageID, false)
		return err
	}

	// Overflow: the home page can't hold the grown tuple even after
	// compaction. Unpin it clean and insert the new content fresh first,
	// so a failure here leaves the original row untouched; only once
	// that succeeds do we go back and tombstone the old slot.
	if uerr := h.pool.UnpinPage(h.seg, rid.PageID, false); uerr != nil {
		return uerr
	}
	if _, err := h.Insert(tuple); err != nil {
		return err
	}

	frame, err = h.pool.FetchPage(h.seg, rid.PageID)
	if err != nil {
		return err
	}
	frame.Lock()
	eraseErr := slottedpage.Erase(frame.Data(), h.pageSize, uint16(rid.Slot))
	freeAfterErase := slottedpage.FreeSize(frame.Data())
	frame.Unlock()
	if uerr := h.pool.UnpinPage(h.seg, rid.PageID, true); uerr != nil {
		return uerr
	}
	if eraseErr != nil {
		return eraseErr
	}
	h.fsmMgr.Update(types.PageKey{Segment: h.seg, Page: rid.PageID}, freeAfterErase)
	return nil
}

// Erase tombstones rid's slot. The space is reclaimed on the page's
// next Compact, triggered by a later Insert/Update on that page.
func (h *TableHeap) Erase(rid types.RID) error {
	frame, err := h.pool.FetchPage(h.seg, rid.PageID)
	if err != nil {
		return err
	}

	frame.Lock()
	err = slottedpage.Erase(frame.Data(), h.pageSize, uint16(rid.Slot))
	free := slottedpage.FreeSize(frame.Data())
	frame.Unlock()

	if err != nil {
		_ = h.pool.UnpinPage(h.seg, rid.PageID, false)
		return err
	}
	if uerr := h.pool.UnpinPage(h.seg, rid.PageID, true); uerr != nil {
		return uerr
	}
	h.fsmMgr.Update(types.PageKey{Segment: h.seg, Page: rid.PageID}, free)
	return nil
}
