// background.go implements background tasks like flush and compaction.
//
// BackgroundWork handles scheduling and execution of background tasks
// including memtable flushes and level-to-level compactions.
package db

import (
	"fmt"
	"sync"

	"github.com/kvforge/rockyardkv/internal/compaction"
	"github.com/kvforge/rockyardkv/internal/manifest"
)

// BackgroundWork handles background tasks like compaction.
type BackgroundWork struct {
	db *DBImpl

	// Compaction picker
	picker compaction.CompactionPicker

	// Rate limiter for background I/O (optional)
	rateLimiter RateLimiter

	// Channels for coordination
	compactionCh   chan struct{}
	flushCh        chan struct{}
	shutdownCh     chan struct{}
	backgroundDone sync.WaitGroup

	// State
	mu                sync.Mutex
	compactionRunning bool
	flushRunning      bool
	backgroundErrors  int
	paused            bool
	pauseCond         *sync.Cond
}

// newBackgroundWork creates a new background work handler.
func newBackgroundWork(db *DBImpl, opts *Options) *BackgroundWork {
	bg := &BackgroundWork{
		db:           db,
		picker:       createCompactionPicker(opts),
		rateLimiter:  opts.RateLimiter,
		compactionCh: make(chan struct{}, 1),
		flushCh:      make(chan struct{}, 1),
		shutdownCh:   make(chan struct{}),
	}
	bg.pauseCond = sync.NewCond(&bg.mu)
	return bg
}

// createCompactionPicker creates the appropriate picker based on options.
func createCompactionPicker(opts *Options) compaction.CompactionPicker {
	switch opts.CompactionStyle {
	case CompactionStyleSizeTiered:
		return compaction.DefaultSizeTieredCompactionPicker()
	default:
		picker := compaction.DefaultLeveledCompactionPicker()
		if opts.Level0FileNumCompactionTrigger > 0 {
			picker.L0CompactionTrigger = opts.Level0FileNumCompactionTrigger
		}
		if opts.MaxBytesForLevelBase > 0 {
			picker.MaxBytesForLevelBase = uint64(opts.MaxBytesForLevelBase)
		}
		return picker
	}
}

// Start starts the background workers.
func (bg *BackgroundWork) Start() {
	bg.backgroundDone.Add(1)
	go bg.backgroundLoop()
}

// Stop stops the background workers and waits for them to finish.
func (bg *BackgroundWork) Stop() {
	close(bg.shutdownCh)
	bg.backgroundDone.Wait()
}

// Pause pauses all background work.
func (bg *BackgroundWork) Pause() {
	bg.mu.Lock()
	defer bg.mu.Unlock()
	bg.paused = true
}

// Continue resumes background work after Pause.
func (bg *BackgroundWork) Continue() {
	bg.mu.Lock()
	defer bg.mu.Unlock()
	bg.paused = false
	bg.pauseCond.Broadcast()
}

// IsPaused returns true if background work is paused.
func (bg *BackgroundWork) IsPaused() bool {
	bg.mu.Lock()
	defer bg.mu.Unlock()
	return bg.paused
}

// WaitIfPaused waits if background work is paused.
// Call this before performing background operations.
func (bg *BackgroundWork) WaitIfPaused() {
	bg.mu.Lock()
	for bg.paused {
		bg.pauseCond.Wait()
	}
	bg.mu.Unlock()
}

// MaybeScheduleCompaction signals that compaction may be needed.
func (bg *BackgroundWork) MaybeScheduleCompaction() {
	select {
	case bg.compactionCh <- struct{}{}:
	default:
		// Already signaled
	}
}

// MaybeScheduleFlush signals that flush may be needed.
func (bg *BackgroundWork) MaybeScheduleFlush() {
	select {
	case bg.flushCh <- struct{}{}:
	default:
		// Already signaled
	}
}

// backgroundLoop is the main background worker loop.
func (bg *BackgroundWork) backgroundLoop() {
	defer bg.backgroundDone.Done()

	for {
		select {
		case <-bg.shutdownCh:
			return

		case <-bg.flushCh:
			bg.doFlushWork()

		case <-bg.compactionCh:
			bg.doCompactionWork()
		}
	}
}

// doFlushWork performs background flush if needed.
func (bg *BackgroundWork) doFlushWork() {
	bg.mu.Lock()
	if bg.flushRunning {
		bg.mu.Unlock()
		return
	}
	bg.flushRunning = true
	bg.mu.Unlock()

	defer func() {
		bg.mu.Lock()
		bg.flushRunning = false
		bg.mu.Unlock()
	}()

	bg.db.mu.Lock()
	needsFlush := bg.db.imm != nil
	bg.db.mu.Unlock()

	if !needsFlush {
		return
	}

	if err := bg.db.Flush(nil); err != nil {
		bg.db.SetBackgroundError(err)
		bg.IncrementBackgroundErrors()
	}

	// After flush, check if compaction is needed
	bg.MaybeScheduleCompaction()
}

// doCompactionWork performs background compaction if needed.
func (bg *BackgroundWork) doCompactionWork() {
	bg.mu.Lock()
	if bg.compactionRunning {
		bg.mu.Unlock()
		return
	}
	bg.compactionRunning = true
	bg.mu.Unlock()

	defer func() {
		bg.mu.Lock()
		bg.compactionRunning = false
		bg.mu.Unlock()
	}()

	bg.db.mu.RLock()
	v := bg.db.versions.Current()
	if v != nil {
		v.Ref()
	}
	bg.db.mu.RUnlock()

	if v == nil {
		return
	}
	defer v.Unref()

	if !bg.picker.NeedsCompaction(v) {
		return
	}

	bg.db.mu.Lock()
	c := bg.picker.PickCompaction(v)
	if c == nil {
		bg.db.mu.Unlock()
		return
	}
	// Mark files as being compacted under lock to prevent a concurrent pick
	// of the same files.
	c.MarkFilesBeingCompacted(true)
	bg.db.mu.Unlock()

	defer func() {
		bg.db.mu.Lock()
		c.MarkFilesBeingCompacted(false)
		bg.db.mu.Unlock()
	}()

	if err := bg.executeCompaction(c); err != nil {
		bg.db.SetBackgroundError(err)
		bg.IncrementBackgroundErrors()
		return
	}

	// Check if more compaction is needed
	bg.MaybeScheduleCompaction()
}

// executeCompaction runs a compaction job and installs its output files.
func (bg *BackgroundWork) executeCompaction(c *compaction.Compaction) error {
	bg.db.mu.Lock()
	dbPath := bg.db.name
	fs := bg.db.fs
	tableCache := bg.db.tableCache
	versions := bg.db.versions

	// Verify all input files still exist before proceeding
	for _, input := range c.Inputs {
		for _, f := range input.Files {
			path := fmt.Sprintf("%s/%06d.sst", dbPath, f.FD.GetNumber())
			if !fs.Exists(path) {
				bg.db.mu.Unlock()
				return fmt.Errorf("input file %d no longer exists", f.FD.GetNumber())
			}
		}
	}
	bg.db.mu.Unlock()

	nextFileNum := func() uint64 {
		return versions.NextFileNumber()
	}

	var rl compaction.RateLimiter
	if bg.rateLimiter != nil {
		rl = &rateLimiterAdapter{limiter: bg.rateLimiter}
	}

	earliestSnapshot := bg.db.earliestSnapshotSequence()
	job := compaction.NewCompactionJobWithRateLimiter(c, dbPath, fs, tableCache, nextFileNum, earliestSnapshot, rl)
	outputFiles, err := job.Run()
	if err != nil {
		return err
	}

	// Mark input files for deletion
	c.AddInputDeletions()

	// Apply the version edit
	bg.db.mu.Lock()
	defer bg.db.mu.Unlock()

	if err := versions.LogAndApply(c.Edit); err != nil {
		return err
	}

	// Recalculate write stall condition after compaction
	bg.db.recalculateWriteStall()

	// Evict input files from table cache
	for _, input := range c.Inputs {
		for _, f := range input.Files {
			tableCache.Evict(f.FD.GetNumber())
		}
	}

	_ = outputFiles

	return nil
}

// IsCompactionPending returns true if compaction has been scheduled but not yet started.
func (bg *BackgroundWork) IsCompactionPending() bool {
	bg.mu.Lock()
	defer bg.mu.Unlock()

	select {
	case <-bg.compactionCh:
		// Put it back
		select {
		case bg.compactionCh <- struct{}{}:
		default:
		}
		return true
	default:
		return false
	}
}

// NumRunningFlushes returns the number of currently running flush operations.
func (bg *BackgroundWork) NumRunningFlushes() int {
	bg.mu.Lock()
	defer bg.mu.Unlock()
	if bg.flushRunning {
		return 1
	}
	return 0
}

// NumRunningCompactions returns the number of currently running compaction operations.
func (bg *BackgroundWork) NumRunningCompactions() int {
	bg.mu.Lock()
	defer bg.mu.Unlock()
	if bg.compactionRunning {
		return 1
	}
	return 0
}

// NumBackgroundErrors returns the number of background errors that have occurred.
func (bg *BackgroundWork) NumBackgroundErrors() int {
	bg.mu.Lock()
	defer bg.mu.Unlock()
	return bg.backgroundErrors
}

// IncrementBackgroundErrors increments the background error count.
func (bg *BackgroundWork) IncrementBackgroundErrors() {
	bg.mu.Lock()
	defer bg.mu.Unlock()
	bg.backgroundErrors++
}

// rateLimiterAdapter adapts the db.RateLimiter interface to compaction.RateLimiter.
type rateLimiterAdapter struct {
	limiter RateLimiter
}

// Request implements compaction.RateLimiter.
func (a *rateLimiterAdapter) Request(bytes int64, priority int) {
	if a.limiter != nil {
		a.limiter.Request(bytes, IOPriority(priority))
	}
}
