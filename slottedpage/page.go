// Package slottedpage implements component C: the in-page record
// store with a slot directory and in-page compaction, generalized
// from the teacher's storage_engine/access/heapfile_manager/heap_page.go
// binary layout (header-then-records-growing-forward, slot directory
// growing backward from the page tail) into the opaque-tuple contract
// spec.md §4.C names.
package slottedpage

import (
	"encoding/binary"
	"sort"

	"slotdb/storeerr"
)

// HeaderSize is the fixed on-disk page header size in bytes (<=64 per
// spec.md §3; 32 leaves room for the reserved checksum/version fields
// without crowding the record area on small pages).
const HeaderSize = 32

// SlotSize is the byte size of one slot directory entry: offset(2) + length(2).
const SlotSize = 4

// FormatVersion is stamped into every page InitNew writes.
const FormatVersion = 1

const (
	offPageID        = 0  // uint32
	offPageLSN        = 4  // uint64
	offSlotCount      = 12 // uint16
	offFreeOff        = 14 // uint16
	offFreeSize       = 16 // uint16
	offChecksum       = 18 // uint32 (reserved, always zero — see DESIGN.md)
	offFormatVersion  = 22 // uint32
)

// Header is the decoded form of the 32-byte page header at offset 0.
type Header struct {
	PageID         uint32
	PageLSN        uint64
	SlotCount      uint16
	FreeOff        uint16
	FreeSize       uint16
	Checksum       uint32
	FormatVersion  uint32
}

// ReadHeader decodes the header from the first HeaderSize bytes of page.
func ReadHeader(page []byte) Header {
	return Header{
		PageID:        binary.LittleEndian.Uint32(page[offPageID:]),
		PageLSN:       binary.LittleEndian.Uint64(page[offPageLSN:]),
		SlotCount:     binary.LittleEndian.Uint16(page[offSlotCount:]),
		FreeOff:       binary.LittleEndian.Uint16(page[offFreeOff:]),
		FreeSize:      binary.LittleEndian.Uint16(page[offFreeSize:]),
		Checksum:      binary.LittleEndian.Uint32(page[offChecksum:]),
		FormatVersion: binary.LittleEndian.Uint32(page[offFormatVersion:]),
	}
}

func writeHeader(page []byte, h Header) {
	binary.LittleEndian.PutUint32(page[offPageID:], h.PageID)
	binary.LittleEndian.PutUint64(page[offPageLSN:], h.PageLSN)
	binary.LittleEndian.PutUint16(page[offSlotCount:], h.SlotCount)
	binary.LittleEndian.PutUint16(page[offFreeOff:], h.FreeOff)
	binary.LittleEndian.PutUint16(page[offFreeSize:], h.FreeSize)
	binary.LittleEndian.PutUint32(page[offChecksum:], h.Checksum)
	binary.LittleEndian.PutUint32(page[offFormatVersion:], h.FormatVersion)
}

// SetPageLSN stamps the page_lsn field; upper layers (future WAL
// integration) own when this is called.
func SetPageLSN(page []byte, lsn uint64) {
	binary.LittleEndian.PutUint64(page[offPageLSN:], lsn)
}

// slot is one 4-byte directory entry. length == 0 denotes a tombstone.
type slot struct {
	offset uint16
	length uint16
}

func slotAt(page []byte, pageSize int, i uint16) slot {
	base := pageSize - (int(i)+1)*SlotSize
	return slot{
		offset: binary.LittleEndian.Uint16(page[base:]),
		length: binary.LittleEndian.Uint16(page[base+2:]),
	}
}

func setSlotAt(page []byte, pageSize int, i uint16, s slot) {
	base := pageSize - (int(i)+1)*SlotSize
	binary.LittleEndian.PutUint16(page[base:], s.offset)
	binary.LittleEndian.PutUint16(page[base+2:], s.length)
}

// InitNew zeroes buf and writes a fresh empty-page header, per
// spec.md 4.C InitNew.
func InitNew(page []byte, pageID uint32, pageSize int) {
	for i := range page {
		page[i] = 0
	}
	writeHeader(page, Header{
		PageID:        pageID,
		SlotCount:     0,
		FreeOff:       HeaderSize,
		FreeSize:      uint16(pageSize - HeaderSize),
		FormatVersion: FormatVersion,
	})
}

// Insert writes rec into page, reusing the lowest-numbered tombstone
// slot if one exists, else appending a new slot. Returns the slot id.
//
// On insufficient space it compacts once and retries; if still
// insufficient it returns storeerr.OutOfRange, the signal §4.H's
// TableHeap uses to allocate a fresh page (insert) or migrate the row
// (update).
func Insert(page []byte, pageSize int, rec []byte) (uint16, error) {
	if len(rec) == 0 {
		return 0, storeerr.New(storeerr.InvalidArgument, "record must not be empty")
	}
	recLen := uint16(len(rec))

	h := ReadHeader(page)
	reuseSlot, found := findTombstone(page, pageSize, h.SlotCount)
	need := int(recLen)
	if !found {
		need += SlotSize
	}

	if int(h.FreeSize) < need {
		Compact(page, pageSize)
		h = ReadHeader(page)
		if int(h.FreeSize) < need {
			return 0, storeerr.New(storeerr.OutOfRange, "need %d bytes, have %d free", need, h.FreeSize)
		}
	}

	var slotID uint16
	if found {
		slotID = reuseSlot
	} else {
		slotID = h.SlotCount
	}

	copy(page[h.FreeOff:int(h.FreeOff)+int(recLen)], rec)
	setSlotAt(page, pageSize, slotID, slot{offset: h.FreeOff, length: recLen})

	h.FreeOff += recLen
	h.FreeSize -= recLen
	if !found {
		h.FreeSize -= SlotSize
		h.SlotCount++
	}
	writeHeader(page, h)

	return slotID, nil
}

func findTombstone(page []byte, pageSize int, slotCount uint16) (uint16, bool) {
	for i := uint16(0); i < slotCount; i++ {
		if slotAt(page, pageSize, i).length == 0 {
			return i, true
		}
	}
	return 0, false
}

// Get returns a zero-copy view of the record at slot, valid only while
// the underlying page buffer is not mutated or reclaimed.
func Get(page []byte, pageSize int, slotID uint16) ([]byte, error) {
	h := ReadHeader(page)
	if slotID >= h.SlotCount {
		return nil, storeerr.New(storeerr.NotFound, "slot %d >= slot count %d", slotID, h.SlotCount)
	}
	s := slotAt(page, pageSize, slotID)
	if s.length == 0 {
		return nil, storeerr.New(storeerr.NotFound, "slot %d is a tombstone", slotID)
	}
	end := int(s.offset) + int(s.length)
	if int(s.offset) < HeaderSize || end > int(h.FreeOff) {
		return nil, storeerr.New(storeerr.Corruption, "slot %d range [%d,%d) escapes page bounds", slotID, s.offset, end)
	}
	return page[s.offset:end], nil
}

// Update overwrites the record at slot with rec. If rec fits within
// the current allocation it is rewritten in place (leaving internal
// fragmentation); otherwise it behaves like a re-allocation,
// compacting once if needed, and returns storeerr.OutOfRange if the
// page still cannot hold it — the table heap's signal to migrate.
func Update(page []byte, pageSize int, slotID uint16, rec []byte) error {
	h := ReadHeader(page)
	if slotID >= h.SlotCount {
		return storeerr.New(storeerr.NotFound, "slot %d >= slot count %d", slotID, h.SlotCount)
	}
	s := slotAt(page, pageSize, slotID)
	if s.length == 0 {
		return storeerr.New(storeerr.NotFound, "slot %d is a tombstone", slotID)
	}

	newLen := uint16(len(rec))
	if newLen <= s.length {
		copy(page[s.offset:int(s.offset)+int(newLen)], rec)
		setSlotAt(page, pageSize, slotID, slot{offset: s.offset, length: newLen})
		return nil
	}

	if int(h.FreeSize) < int(newLen) {
		Compact(page, pageSize)
		h = ReadHeader(page)
		if int(h.FreeSize) < int(newLen) {
			return storeerr.New(storeerr.OutOfRange, "need %d bytes, have %d free", newLen, h.FreeSize)
		}
		// Compaction may have moved this slot's old bytes; re-read its
		// (now-compacted) offset is irrelevant since we are overwriting.
	}

	copy(page[h.FreeOff:int(h.FreeOff)+int(newLen)], rec)
	setSlotAt(page, pageSize, slotID, slot{offset: h.FreeOff, length: newLen})
	h.FreeOff += newLen
	h.FreeSize -= newLen
	writeHeader(page, h)
	return nil
}

// Erase marks slot as a tombstone. Bytes are not reclaimed until the
// next Compact.
func Erase(page []byte, pageSize int, slotID uint16) error {
	h := ReadHeader(page)
	if slotID >= h.SlotCount {
		return storeerr.New(storeerr.NotFound, "slot %d >= slot count %d", slotID, h.SlotCount)
	}
	s := slotAt(page, pageSize, slotID)
	if s.length == 0 {
		return storeerr.New(storeerr.NotFound, "slot %d already erased", slotID)
	}
	setSlotAt(page, pageSize, slotID, slot{offset: 0, length: 0})
	return nil
}

// FreeSize returns the header's current free_size field.
func FreeSize(page []byte) uint16 {
	return ReadHeader(page).FreeSize
}

// SlotCount returns the header's current slot_count field.
func SlotCount(page []byte) uint16 {
	return ReadHeader(page).SlotCount
}

// IsLive reports whether slot is a non-tombstone slot within range.
func IsLive(page []byte, pageSize int, slotID uint16) bool {
	h := ReadHeader(page)
	if slotID >= h.SlotCount {
		return false
	}
	return slotAt(page, pageSize, slotID).length != 0
}

type liveEntry struct {
	slotID uint16
	offset uint16
	length uint16
}

// Compact coalesces every live record against the header, reclaiming
// internal fragmentation left by Erase/Update while keeping slot ids
// (and thus every RID pointing at this page) stable: the directory is
// never shrunk, only the record area is slid down.
func Compact(page []byte, pageSize int) {
	h := ReadHeader(page)

	entries := make([]liveEntry, 0, h.SlotCount)
	for i := uint16(0); i < h.SlotCount; i++ {
		s := slotAt(page, pageSize, i)
		if s.length != 0 {
			entries = append(entries, liveEntry{slotID: i, offset: s.offset, length: s.length})
		}
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].offset < entries[b].offset })

	cursor := uint16(HeaderSize)
	for _, e := range entries {
		if e.offset != cursor {
			copy(page[cursor:int(cursor)+int(e.length)], page[e.offset:int(e.offset)+int(e.length)])
			setSlotAt(page, pageSize, e.slotID, slot{offset: cursor, length: e.length})
		}
		cursor += e.length
	}

	h.FreeOff = cursor
	h.FreeSize = uint16(pageSize) - cursor - h.SlotCount*SlotSize
	writeHeader(page, h)
}
