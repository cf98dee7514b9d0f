// Package segment implements component B: the Segment Allocator. Each
// segment is one backing file under a base directory; pages are
// allocated within a segment off a LIFO free-list or by appending, and
// freed pages are never returned to the OS (the file never shrinks),
// mirroring the teacher's storage_engine/disk_manager global page
// allocation generalized down to a single segment's worth of pages.
package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"slotdb/logging"
	"slotdb/pageio"
	"slotdb/slottedpage"
	"slotdb/storeerr"
	"slotdb/types"
)

// FileSuffix is the on-disk extension for a segment's backing file,
// per spec.md §6's base_dir/seg_<seg_id>.dbseg naming.
const FileSuffix = ".dbseg"

// Allocator owns the backing files for every segment touched so far,
// lazily opening one on first use.
type Allocator struct {
	baseDir  string
	pageSize int

	mu        sync.Mutex
	files     map[types.SegmentID]*pageio.File
	freeLists map[types.SegmentID][]types.PageID

	// probeCache is an advisory cache of the last-probed free_size per
	// (segment, page); a stale hit only costs FSM an extra failed
	// Insert attempt, so eviction/race semantics are not load-bearing
	// here, unlike the buffer pool's page cache.
	probeCache *ristretto.Cache[string, uint16]
}

// NewAllocator creates the base directory if needed and returns an
// Allocator over it.
func NewAllocator(baseDir string, pageSize int) (*Allocator, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, storeerr.Wrap(storeerr.IOError, err, "create base dir %s", baseDir)
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, uint16]{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, storeerr.Wrap(storeerr.Unknown, err, "create probe cache")
	}

	return &Allocator{
		baseDir:    baseDir,
		pageSize:   pageSize,
		files:      make(map[types.SegmentID]*pageio.File),
		freeLists:  make(map[types.SegmentID][]types.PageID),
		probeCache: cache,
	}, nil
}

// segmentPath returns the deterministic backing-file path for seg.
func (a *Allocator) segmentPath(seg types.SegmentID) string {
	return filepath.Join(a.baseDir, fmt.Sprintf("seg_%d%s", seg, FileSuffix))
}

func (a *Allocator) fileFor(seg types.SegmentID) (*pageio.File, error) {
	if f, ok := a.files[seg]; ok {
		return f, nil
	}
	f, err := pageio.Open(a.segmentPath(seg), a.pageSize)
	if err != nil {
		return nil, err
	}
	a.files[seg] = f
	return f, nil
}

// AllocatePage returns a page id within seg, preferring the top of the
// segment's free-list over growing the file.
func (a *Allocator) AllocatePage(seg types.SegmentID) (types.PageID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := a.fileFor(seg)
	if err != nil {
		return 0, err
	}

	if fl := a.freeLists[seg]; len(fl) > 0 {
		pid := fl[len(fl)-1]
		a.freeLists[seg] = fl[:len(fl)-1]
		a.invalidateProbe(seg, pid)
		return pid, nil
	}

	count, err := f.PageCount()
	if err != nil {
		return 0, err
	}
	pid := types.PageID(count)
	if err := f.Resize(count + 1); err != nil {
		return 0, err
	}
	a.invalidateProbe(seg, pid)
	return pid, nil
}

// FreePage pushes pid back onto seg's free-list. The backing file is
// never truncated; the space is only reused by a later AllocatePage.
func (a *Allocator) FreePage(seg types.SegmentID, pid types.PageID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.fileFor(seg); err != nil {
		return err
	}
	a.freeLists[seg] = append(a.freeLists[seg], pid)
	a.invalidateProbe(seg, pid)
	return nil
}

// ProbePageFree reads pid's current free_size directly from disk
// (bypassing the buffer pool — this is a maintenance-path probe, not a
// query-path fetch), validating the page's format_version. A cache hit
// skips the read entirely; a corrupt or unrecognized page reports 0
// free bytes rather than failing the caller, per spec.md §4.B.
func (a *Allocator) ProbePageFree(seg types.SegmentID, pid types.PageID) (uint16, error) {
	key := probeKey(seg, pid)
	if v, ok := a.probeCache.Get(key); ok {
		return v, nil
	}

	a.mu.Lock()
	f, err := a.fileFor(seg)
	a.mu.Unlock()
	if err != nil {
		return 0, err
	}

	buf := make([]byte, a.pageSize)
	if err := f.ReadPage(int64(pid), buf); err != nil {
		if storeerr.KindOf(err) == storeerr.NotFound {
			return 0, err
		}
		logging.Component("segment").WithError(err).Warn("probe read failed, reporting 0 free bytes")
		return 0, nil
	}

	h := slottedpage.ReadHeader(buf)
	if h.FormatVersion != slottedpage.FormatVersion {
		return 0, nil
	}

	a.probeCache.SetWithTTL(key, h.FreeSize, 1, 0)
	return h.FreeSize, nil
}

func (a *Allocator) invalidateProbe(seg types.SegmentID, pid types.PageID) {
	a.probeCache.Del(probeKey(seg, pid))
}

func probeKey(seg types.SegmentID, pid types.PageID) string {
	return fmt.Sprintf("%d:%d", seg, pid)
}

// File returns the lazily-opened backing file for seg, for callers
// (the buffer pool) that need direct page I/O.
func (a *Allocator) File(seg types.SegmentID) (*pageio.File, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fileFor(seg)
}

// Close closes every segment file opened so far.
func (a *Allocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var firstErr error
	for _, f := range a.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
