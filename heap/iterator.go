package heap

import (
	"slotdb/slottedpage"
	"slotdb/types"
)

// Iterator walks every live (non-tombstoned) tuple in a TableHeap in
// RID order: ascending page id, then ascending slot id within a page.
// Per scenario S6, erased slots are skipped transparently.
type Iterator struct {
	h *TableHeap

	pageCount int64
	pid       types.PageID
	slot      types.SlotID

	cur    types.RID
	curVal types.Tuple
	done   bool
	err    error
}

// Begin opens a sequential scan over every page currently in the
// heap's segment.
func (h *TableHeap) Begin() (*Iterator, error) {
	file, err := h.alloc.File(h.seg)
	if err != nil {
		return nil, err
	}
	count, err := file.PageCount()
	if err != nil {
		return nil, err
	}
	it := &Iterator{h: h, pageCount: count}
	it.advance()
	return it, nil
}

// Valid reports whether Value/RID return a live tuple.
func (it *Iterator) Valid() bool {
	return !it.done && it.err == nil
}

// Err returns the first error encountered during the scan, if any.
func (it *Iterator) Err() error {
	return it.err
}

// RID returns the current tuple's record id.
func (it *Iterator) RID() types.RID {
	return it.cur
}

// Value returns a copy of the current tuple.
func (it *Iterator) Value() types.Tuple {
	return it.curVal
}

// Next advances the iterator to the next live tuple.
func (it *Iterator) Next() {
	if it.done || it.err != nil {
		return
	}
	it.slot++
	it.advance()
}

// advance scans forward from the current (pid, slot) position until it
// lands on a live slot or exhausts the segment (End).
func (it *Iterator) advance() {
	for int64(it.pid) < it.pageCount {
		frame, err := it.h.pool.FetchPage(it.h.seg, it.pid)
		if err != nil {
			it.err = err
			return
		}

		frame.RLock()
		slotCount := slottedpage.SlotCount(frame.Data())
		for uint16(it.slot) < slotCount {
			if slottedpage.IsLive(frame.Data(), it.h.pageSize, uint16(it.slot)) {
				rec, gerr := slottedpage.Get(frame.Data(), it.h.pageSize, uint16(it.slot))
				if gerr != nil {
					frame.RUnlock()
					_ = it.h.pool.UnpinPage(it.h.seg, it.pid, false)
					it.err = gerr
					return
				}
				val := make(types.Tuple, len(rec))
				copy(val, rec)
				frame.RUnlock()
				_ = it.h.pool.UnpinPage(it.h.seg, it.pid, false)

				it.cur = types.RID{PageID: it.pid, Slot: it.slot}
				it.curVal = val
				return
			}
			it.slot++
		}
		frame.RUnlock()
		_ = it.h.pool.UnpinPage(it.h.seg, it.pid, false)

		it.pid++
		it.slot = 0
	}

	it.done = true
}

// End reports the exhausted sentinel state: no live tuple remains and
// no error occurred. A caller distinguishes End from a failed scan via Err.
func (it *Iterator) End() bool {
	return it.done && it.err == nil
}
