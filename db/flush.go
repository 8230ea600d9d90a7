// Package db provides the main database interface and implementation.
// This file implements the flush operation that writes a sealed memtable
// to a level-0 SST file.
package db

import (
	"fmt"
	"path/filepath"

	"github.com/kvforge/rockyardkv/internal/dbformat"
	"github.com/kvforge/rockyardkv/internal/manifest"
	"github.com/kvforge/rockyardkv/internal/memtable"
	"github.com/kvforge/rockyardkv/internal/table"
)

// FlushJob flushes a memtable to an SST file.
type FlushJob struct {
	db *DBImpl

	// The memtable being flushed
	mem *memtable.MemTable

	// Output file number
	fileNum uint64
}

// newFlushJob creates a new flush job for the given memtable.
func newFlushJob(db *DBImpl, mem *memtable.MemTable) *FlushJob {
	return &FlushJob{
		db:  db,
		mem: mem,
	}
}

// Run executes the flush job.
// Returns the metadata of the created SST file, or an error. A nil
// metadata and nil error means the memtable held no entries and no file
// was produced.
func (fj *FlushJob) Run() (*manifest.FileMetaData, error) {
	// Allocate a file number for the new SST file
	fj.fileNum = fj.db.versions.NextFileNumber()

	// Create the SST file
	sstPath := fj.db.sstFilePath(fj.fileNum)
	file, err := fj.db.fs.Create(sstPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create SST file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// Create table builder
	opts := table.DefaultBuilderOptions()
	opts.ComparatorName = fj.db.comparator.Name()
	builder := table.NewTableBuilder(file, opts)

	// Iterate over the memtable and add all entries
	iter := fj.mem.NewIterator()
	var firstKey, lastKey []byte
	var smallestSeq, largestSeq dbformat.SequenceNumber

	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		key := iter.Key()
		value := iter.Value()

		// The key from memtable iterator is an internal key
		if err := builder.Add(key, value); err != nil {
			builder.Abandon()
			return nil, fmt.Errorf("failed to add entry to SST: %w", err)
		}

		seq := dbformat.ExtractSequenceNumber(key)
		if firstKey == nil {
			firstKey = append([]byte{}, key...)
			smallestSeq = seq
		}
		lastKey = append(lastKey[:0], key...)
		if seq < smallestSeq {
			smallestSeq = seq
		}
		if seq > largestSeq {
			largestSeq = seq
		}
	}

	// Check for iterator errors
	if err := iter.Error(); err != nil {
		builder.Abandon()
		return nil, fmt.Errorf("memtable iteration error: %w", err)
	}

	// If no entries were written, abandon the file
	if builder.NumEntries() == 0 {
		builder.Abandon()
		_ = fj.db.fs.Remove(sstPath) // best-effort cleanup
		return nil, nil
	}

	// Finish the SST file
	if err := builder.Finish(); err != nil {
		return nil, fmt.Errorf("failed to finish SST file: %w", err)
	}
	fileSize := builder.FileSize()

	// Sync the file
	if err := file.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync SST file: %w", err)
	}

	// Create file metadata
	meta := manifest.NewFileMetaData()
	meta.FD = manifest.NewFileDescriptor(fj.fileNum, 0, fileSize)
	meta.FD.SmallestSeqno = manifest.SequenceNumber(smallestSeq)
	meta.FD.LargestSeqno = manifest.SequenceNumber(largestSeq)
	meta.Smallest = firstKey
	meta.Largest = lastKey

	return meta, nil
}

// sstFilePath returns the path to an SST file.
func (db *DBImpl) sstFilePath(number uint64) string {
	return filepath.Join(db.name, sstFileName(number))
}

// sstFileName returns the filename for an SST file.
func sstFileName(number uint64) string {
	return fmt.Sprintf("%06d.sst", number)
}

// doFlush performs the actual flush of the immutable memtable. This is
// called from the background flush worker or synchronously from Flush.
func (db *DBImpl) doFlush() error {
	db.mu.Lock()
	if db.imm == nil {
		db.mu.Unlock()
		return nil // Nothing to flush
	}
	imm := db.imm
	db.mu.Unlock()

	// Create and run the flush job
	job := newFlushJob(db, imm)
	meta, err := job.Run()
	if err != nil {
		return err
	}

	// If the memtable was empty, just clear the immutable memtable
	if meta == nil {
		db.mu.Lock()
		db.imm = nil
		if db.immCond != nil {
			db.immCond.Broadcast()
		}
		db.mu.Unlock()
		return nil
	}

	db.mu.Lock()
	// Update the version with the new file
	edit := &manifest.VersionEdit{
		HasLogNumber:    true,
		LogNumber:       db.logFileNumber,
		HasLastSequence: true,
		LastSequence:    meta.FD.LargestSeqno,
	}
	edit.NewFiles = append(edit.NewFiles, manifest.NewFileEntry{
		Level: 0, // Flush always goes to L0
		Meta:  meta,
	})

	// Apply the version edit
	if err := db.versions.LogAndApply(edit); err != nil {
		db.mu.Unlock()
		return fmt.Errorf("failed to log version edit: %w", err)
	}

	// Clear the immutable memtable
	db.imm = nil

	if db.immCond != nil {
		db.immCond.Broadcast()
	}

	// Recalculate write stall condition after flush
	db.recalculateWriteStall()

	db.mu.Unlock()

	return nil
}
