// The loader CLI bulk-loads pipe-delimited rows into a table heap,
// exercising the full storage stack end to end. Grounded on the
// teacher's cmd/seed/main.go CLI shape and on
// original_source/Integration/main_storage_load.cpp's progress/done
// log lines and exit code convention, generalized from that file's
// fixed TPC-H supplier schema to the opaque-tuple contract the rest of
// this module uses: each non-empty input line becomes one tuple,
// stored verbatim.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/OneOfOne/xxhash"
	"github.com/spf13/cobra"

	"slotdb/buffer"
	"slotdb/config"
	"slotdb/fsm"
	"slotdb/heap"
	"slotdb/logging"
	"slotdb/replacer"
	"slotdb/segment"
	"slotdb/types"
)

// exitError carries the process exit code a failure should produce,
// matching original_source's 1/2/3 usage/setup/open-file convention.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		code := 1
		if ee, ok := err.(*exitError); ok {
			code = ee.code
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(code)
	}
}

func newRootCmd() *cobra.Command {
	var (
		baseDir      string
		pageSize     int
		frames       int
		replacerName string
		k            int
		logEvery     int
		seg          uint32
	)

	cmd := &cobra.Command{
		Use:   "loader <data-file>",
		Short: "Bulk-load pipe-delimited rows into a table heap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			cfg.BaseDir = baseDir
			cfg.PageSize = pageSize
			cfg.BufferPoolCapacity = frames
			cfg.Replacer = config.ReplacerKind(replacerName)
			cfg.ReplacerK = k
			cfg.LoaderReportEvery = logEvery
			if err := cfg.Validate(); err != nil {
				return &exitError{code: 1, err: err}
			}
			return runLoad(cfg, types.SegmentID(seg), args[0])
		},
	}

	cmd.Flags().StringVar(&baseDir, "base-dir", "./dbdata", "segment/page output directory")
	cmd.Flags().IntVar(&pageSize, "page-size", 8192, "page size in bytes")
	cmd.Flags().IntVar(&frames, "frames", 256, "buffer pool frame count")
	cmd.Flags().StringVar(&replacerName, "replacer", "clock", "victim policy: clock|lruk")
	cmd.Flags().IntVar(&k, "k", 2, "K for the lruk replacer")
	cmd.Flags().IntVar(&logEvery, "log-every", 1000, "rows between progress log lines")
	cmd.Flags().Uint32Var(&seg, "seg", 1, "segment id to load into")

	return cmd
}

func runLoad(cfg config.Config, seg types.SegmentID, dataFile string) error {
	log := logging.Component("loader")

	alloc, err := segment.NewAllocator(cfg.BaseDir, cfg.PageSize)
	if err != nil {
		return &exitError{code: 2, err: fmt.Errorf("ensure segment dir: %w", err)}
	}
	defer func() { _ = alloc.Close() }()

	pool := buffer.NewPool(alloc, cfg.PageSize, cfg.BufferPoolCapacity, replacer.Kind(cfg.Replacer), cfg.ReplacerK)
	fsmMgr := fsm.New(cfg.FSMThresholds)
	table := heap.New(seg, pool, alloc, fsmMgr, cfg.PageSize)

	f, err := os.Open(dataFile)
	if err != nil {
		return &exitError{code: 3, err: fmt.Errorf("open data file: %w", err)}
	}
	defer f.Close()

	log.WithFields(map[string]interface{}{
		"file":      dataFile,
		"page_size": cfg.PageSize,
		"frames":    cfg.BufferPoolCapacity,
		"replacer":  cfg.Replacer,
	}).Info("[LOAD] begin")

	var rows, bad int
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), cfg.PageSize*4)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		sum := xxhash.ChecksumString64(line)
		rid, err := table.Insert(types.Tuple(line))
		if err != nil {
			bad++
			log.WithError(err).WithField("hash", sum).Debug("row rejected")
			continue
		}
		rows++
		log.WithField("hash", sum).WithField("rid", rid).Trace("row inserted")

		if cfg.LoaderReportEvery > 0 && rows%cfg.LoaderReportEvery == 0 {
			logProgress(log, pool, alloc, fsmMgr, seg, rows)
		}
	}
	if err := scanner.Err(); err != nil {
		return &exitError{code: 3, err: fmt.Errorf("read data file: %w", err)}
	}

	if err := pool.FlushAll(); err != nil {
		return &exitError{code: 2, err: fmt.Errorf("flush all: %w", err)}
	}

	pages := pageCount(alloc, seg)
	st := pool.GetStats()
	fmt.Printf("[LOAD] done: rows=%d bad=%d pages=%d | stats: hits=%d, misses=%d, evictions=%d, flushes=%d\n",
		rows, bad, pages, st.Hits, st.Misses, st.Evictions, st.Flushes)

	logFSM(fsmMgr)
	return previewScan(table)
}

func logProgress(log *logging.Entry, pool *buffer.Pool, alloc *segment.Allocator, fsmMgr *fsm.Manager, seg types.SegmentID, rows int) {
	st := pool.GetStats()
	fmt.Printf("[LOAD] progress: rows=%d hits=%d misses=%d evictions=%d flushes=%d pages=%d\n",
		rows, st.Hits, st.Misses, st.Evictions, st.Flushes, pageCount(alloc, seg))
	logFSM(fsmMgr)
}

func pageCount(alloc *segment.Allocator, seg types.SegmentID) int64 {
	f, err := alloc.File(seg)
	if err != nil {
		return 0
	}
	n, err := f.PageCount()
	if err != nil {
		return 0
	}
	return n
}

func logFSM(fsmMgr *fsm.Manager) {
	bins := fsmMgr.BinSizes()
	parts := make([]string, len(bins))
	for i, n := range bins {
		parts[i] = fmt.Sprintf("%d", n)
	}
	fmt.Printf("FSM bins = [%s]\n", strings.Join(parts, ", "))
}

// previewScan walks the whole table, printing the first few rows, the
// same sanity check original_source's loader performs after a bulk
// load.
func previewScan(table *heap.TableHeap) error {
	it, err := table.Begin()
	if err != nil {
		return err
	}

	total, preview := 0, 5
	for it.Valid() {
		total++
		if preview > 0 {
			fmt.Printf("[ROW] RID=(%d,%d) len=%d\n", it.RID().PageID, it.RID().Slot, len(it.Value()))
			preview--
		}
		it.Next()
	}
	if err := it.Err(); err != nil {
		return err
	}
	fmt.Printf("[SCAN] total rows = %d\n", total)
	return nil
}
