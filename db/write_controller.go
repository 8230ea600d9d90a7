// write_controller.go implements WriteController for managing write stalling.
//
// Write stalling prevents the database from being overwhelmed when compaction
// cannot keep up with writes. It has three states:
//   - Normal: writes proceed at full speed
//   - Delayed: writes are slowed down (backpressure)
//   - Stopped: writes are blocked until compaction catches up
//
package db

import (
	"sync"
	"time"
)

// WriteStallCondition describes the write stall condition.
type WriteStallCondition int

const (
	// WriteStallConditionNormal means no stall.
	WriteStallConditionNormal WriteStallCondition = iota
	// WriteStallConditionDelayed means writes are delayed.
	WriteStallConditionDelayed
	// WriteStallConditionStopped means writes are stopped.
	WriteStallConditionStopped
)

// String returns the string representation of the write stall condition.
func (c WriteStallCondition) String() string {
	switch c {
	case WriteStallConditionNormal:
		return "Normal"
	case WriteStallConditionDelayed:
		return "Delayed"
	case WriteStallConditionStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// WriteStallCause indicates why writes are being stalled.
type WriteStallCause int

const (
	// WriteStallCauseNone means no stall.
	WriteStallCauseNone WriteStallCause = iota
	// WriteStallCauseMemtableLimit means too many unflushed memtables.
	WriteStallCauseMemtableLimit
	// WriteStallCauseL0FileCountLimit means too many L0 files.
	WriteStallCauseL0FileCountLimit
	// WriteStallCausePendingCompactionBytes names a stall on pending
	// compaction bytes; RecalculateWriteStallCondition never returns it.
	WriteStallCausePendingCompactionBytes
)

// String returns a human-readable description of the stall cause.
func (c WriteStallCause) String() string {
	switch c {
	case WriteStallCauseNone:
		return "none"
	case WriteStallCauseMemtableLimit:
		return "memtable_limit"
	case WriteStallCauseL0FileCountLimit:
		return "l0_file_count_limit"
	case WriteStallCausePendingCompactionBytes:
		return "pending_compaction_bytes"
	default:
		return "unknown"
	}
}

// WriteController manages write stalling to prevent compaction from falling behind.
type WriteController struct {
	mu sync.Mutex

	condition WriteStallCondition
	cause     WriteStallCause

	// stallCond is signaled when a Stopped write is allowed to proceed.
	stallCond *sync.Cond

	// delayedWriteRate is the throttle applied while Delayed, in bytes/sec.
	delayedWriteRate uint64

	// closed indicates shutdown has been requested. When true,
	// MaybeStallWrite returns immediately instead of blocking.
	closed bool

	totalStopped uint64
	totalDelayed uint64
}

// NewWriteController creates a new write controller.
func NewWriteController() *WriteController {
	wc := &WriteController{
		condition:        WriteStallConditionNormal,
		cause:            WriteStallCauseNone,
		delayedWriteRate: 16 * 1024 * 1024, // 16 MB/s default
	}
	wc.stallCond = sync.NewCond(&wc.mu)
	return wc
}

// GetStallCondition returns the current stall condition and cause.
func (wc *WriteController) GetStallCondition() (WriteStallCondition, WriteStallCause) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	return wc.condition, wc.cause
}

// SetStallCondition updates the stall condition, waking any writer blocked
// on a Stopped condition if the new condition is no longer Stopped.
func (wc *WriteController) SetStallCondition(condition WriteStallCondition, cause WriteStallCause) {
	wc.mu.Lock()
	defer wc.mu.Unlock()

	prevCondition := wc.condition
	wc.condition = condition
	wc.cause = cause

	if prevCondition == WriteStallConditionStopped && condition != WriteStallConditionStopped {
		wc.stallCond.Broadcast()
	}

	switch condition {
	case WriteStallConditionStopped:
		wc.totalStopped++
	case WriteStallConditionDelayed:
		wc.totalDelayed++
	}
}

// MaybeStallWrite blocks or sleeps according to the current stall condition.
// If the controller has been released (shutdown), it returns immediately.
func (wc *WriteController) MaybeStallWrite(writeSize int) {
	wc.mu.Lock()
	defer wc.mu.Unlock()

	for wc.condition == WriteStallConditionStopped && !wc.closed {
		wc.stallCond.Wait()
	}

	if wc.closed {
		return
	}

	if wc.condition == WriteStallConditionDelayed && wc.delayedWriteRate > 0 {
		delayNs := int64(writeSize) * int64(time.Second) / int64(wc.delayedWriteRate)
		if delayNs > 0 {
			wc.mu.Unlock()
			time.Sleep(time.Duration(delayNs))
			wc.mu.Lock()
		}
	}
}

// SetDelayedWriteRate sets the throttle rate applied while Delayed.
func (wc *WriteController) SetDelayedWriteRate(rate uint64) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	wc.delayedWriteRate = rate
}

// GetStats returns the cumulative stop/delay counts.
func (wc *WriteController) GetStats() (stopped, delayed uint64) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	return wc.totalStopped, wc.totalDelayed
}

// ReleaseWriteStall marks the controller closed and wakes every writer
// blocked in MaybeStallWrite. Used during shutdown.
func (wc *WriteController) ReleaseWriteStall() {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	wc.closed = true
	wc.stallCond.Broadcast()
}

// RecalculateWriteStallCondition determines the write stall condition from
// the current unflushed-memtable count and L0 file count.
func RecalculateWriteStallCondition(
	numUnflushedMemtables int,
	numL0Files int,
	maxWriteBufferNumber int,
	level0SlowdownTrigger int,
	level0StopTrigger int,
	disableAutoCompactions bool,
) (WriteStallCondition, WriteStallCause) {
	if numUnflushedMemtables >= maxWriteBufferNumber {
		return WriteStallConditionStopped, WriteStallCauseMemtableLimit
	}

	if !disableAutoCompactions {
		if numL0Files >= level0StopTrigger {
			return WriteStallConditionStopped, WriteStallCauseL0FileCountLimit
		}
		if numL0Files >= level0SlowdownTrigger {
			return WriteStallConditionDelayed, WriteStallCauseL0FileCountLimit
		}
	}

	if maxWriteBufferNumber > 3 && numUnflushedMemtables >= maxWriteBufferNumber-1 {
		return WriteStallConditionDelayed, WriteStallCauseMemtableLimit
	}

	return WriteStallConditionNormal, WriteStallCauseNone
}
