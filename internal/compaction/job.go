// job.go implements CompactionJob which executes a single compaction.
//
// CompactionJob runs the compaction process: reading input files,
// merging keys, dropping superseded versions and eligible tombstones,
// and writing output files.
//
package compaction

import (
	"fmt"
	"path/filepath"

	"github.com/kvforge/rockyardkv/internal/block"
	"github.com/kvforge/rockyardkv/internal/dbformat"
	"github.com/kvforge/rockyardkv/internal/iterator"
	"github.com/kvforge/rockyardkv/internal/manifest"
	"github.com/kvforge/rockyardkv/internal/table"
	"github.com/kvforge/rockyardkv/internal/vfs"
)

// RateLimiter is an interface for rate limiting I/O operations.
type RateLimiter interface {
	Request(bytes int64, priority int)
}

// IOPriority constants for rate limiting.
const (
	IOPriorityLow  = 0 // Background operations (compaction, flush)
	IOPriorityHigh = 1 // User reads/writes
)

// CompactionJob performs a single compaction operation.
// It reads from input files, merges them, and writes to new output files.
type CompactionJob struct {
	compaction *Compaction
	dbPath     string
	fs         vfs.FS
	tableCache *table.TableCache

	// File number generator
	nextFileNum func() uint64

	// Output files created by this job
	outputFiles []*manifest.FileMetaData

	// Earliest snapshot sequence number (for garbage collection decisions)
	earliestSnapshot dbformat.SequenceNumber

	// Rate limiter for controlling I/O rate (optional)
	rateLimiter RateLimiter

	// Dedup/elision state tracked across processEntries
	haveLastUserKey bool
	lastUserKey     []byte

	// Statistics
	droppedRecords uint64
}

// NewCompactionJob creates a new compaction job.
func NewCompactionJob(
	c *Compaction,
	dbPath string,
	fs vfs.FS,
	tableCache *table.TableCache,
	nextFileNum func() uint64,
) *CompactionJob {
	return NewCompactionJobWithSnapshot(c, dbPath, fs, tableCache, nextFileNum, c.EarliestSnapshotSeq)
}

// NewCompactionJobWithSnapshot creates a new compaction job with an earliest snapshot.
// Entries with sequence numbers <= earliestSnapshot are invisible to every open
// snapshot and become candidates for dedup/tombstone elision.
func NewCompactionJobWithSnapshot(
	c *Compaction,
	dbPath string,
	fs vfs.FS,
	tableCache *table.TableCache,
	nextFileNum func() uint64,
	earliestSnapshot dbformat.SequenceNumber,
) *CompactionJob {
	return &CompactionJob{
		compaction:       c,
		dbPath:           dbPath,
		fs:               fs,
		tableCache:       tableCache,
		nextFileNum:      nextFileNum,
		earliestSnapshot: earliestSnapshot,
	}
}

// NewCompactionJobWithRateLimiter creates a new compaction job with a rate limiter.
func NewCompactionJobWithRateLimiter(
	c *Compaction,
	dbPath string,
	fs vfs.FS,
	tableCache *table.TableCache,
	nextFileNum func() uint64,
	earliestSnapshot dbformat.SequenceNumber,
	rateLimiter RateLimiter,
) *CompactionJob {
	return &CompactionJob{
		compaction:       c,
		dbPath:           dbPath,
		fs:               fs,
		tableCache:       tableCache,
		nextFileNum:      nextFileNum,
		earliestSnapshot: earliestSnapshot,
		rateLimiter:      rateLimiter,
	}
}

// DroppedRecords returns the count of entries dropped by dedup/tombstone elision.
func (j *CompactionJob) DroppedRecords() uint64 {
	return j.droppedRecords
}

// Run executes the compaction.
// Returns the list of output files created.
func (j *CompactionJob) Run() ([]*manifest.FileMetaData, error) {
	// Check for trivial move
	if j.compaction.IsTrivialMove {
		return j.doTrivialMove()
	}

	// Create iterators for all input files
	iters, err := j.createInputIterators()
	if err != nil {
		return nil, fmt.Errorf("create input iterators: %w", err)
	}

	// Create merging iterator. Internal-key ordering places the newest version
	// of a user key first, which is what the dedup pass below relies on.
	mergingIter := iterator.NewMergingIterator(iters, block.CompareInternalKeys)

	// Process all entries
	err = j.processEntries(mergingIter)
	if err != nil {
		return nil, fmt.Errorf("process entries: %w", err)
	}

	return j.outputFiles, nil
}

// doTrivialMove handles trivial move compactions (just update metadata).
func (j *CompactionJob) doTrivialMove() ([]*manifest.FileMetaData, error) {
	// For trivial move, we just update the level in the edit
	// The file itself doesn't need to be rewritten
	for _, input := range j.compaction.Inputs {
		for _, f := range input.Files {
			// Add the file to the output level
			outputMeta := manifest.NewFileMetaData()
			outputMeta.FD = f.FD
			outputMeta.Smallest = f.Smallest
			outputMeta.Largest = f.Largest
			j.compaction.Edit.AddFile(j.compaction.OutputLevel, outputMeta)

			// Delete from the input level
			j.compaction.Edit.DeleteFile(input.Level, f.FD.GetNumber())
		}
	}
	return nil, nil
}

// createInputIterators creates iterators for all input files.
func (j *CompactionJob) createInputIterators() ([]iterator.Iterator, error) {
	var iters []iterator.Iterator
	var openedFiles []uint64 // Track opened files for cleanup on error

	for _, input := range j.compaction.Inputs {
		for _, f := range input.Files {
			// Construct the file path
			filePath := j.sstPath(f.FD.GetNumber())

			// Verify file exists before opening
			if !j.fs.Exists(filePath) {
				// Clean up already opened files
				for _, fileNum := range openedFiles {
					j.tableCache.Release(fileNum)
				}
				return nil, fmt.Errorf("input file %d does not exist: %s", f.FD.GetNumber(), filePath)
			}

			reader, err := j.tableCache.Get(f.FD.GetNumber(), filePath)
			if err != nil {
				// Clean up already opened files
				for _, fileNum := range openedFiles {
					j.tableCache.Release(fileNum)
				}
				return nil, fmt.Errorf("get table reader %d: %w", f.FD.GetNumber(), err)
			}
			openedFiles = append(openedFiles, f.FD.GetNumber())

			// Wrap the table iterator
			iters = append(iters, &tableIteratorWrapper{
				iter:       reader.NewIterator(),
				fileNumber: f.FD.GetNumber(),
			})
		}
	}

	return iters, nil
}

// sstPath returns the path to an SST file.
func (j *CompactionJob) sstPath(fileNum uint64) string {
	return filepath.Join(j.dbPath, fmt.Sprintf("%06d.sst", fileNum))
}

// processEntries iterates through all entries, dedups/elides superseded
// versions, and writes the survivors to output files.
func (j *CompactionJob) processEntries(iter *iterator.MergingIterator) error {
	var builder *table.TableBuilder
	var currentFile *compactionOutputFile
	var err error

	j.haveLastUserKey = false
	j.lastUserKey = nil

	iter.SeekToFirst()

	for iter.Valid() {
		key := iter.Key()
		value := iter.Value()

		if j.shouldDrop(key) {
			iter.Next()
			continue
		}

		// Check if we should start a new output file
		if builder == nil || j.shouldFinishFile(builder, currentFile, key) {
			// Finish current file if any
			if builder != nil {
				err = j.finishOutputFile(builder, currentFile)
				if err != nil {
					return err
				}
			}

			// Start new file
			currentFile, builder, err = j.startOutputFile()
			if err != nil {
				return err
			}
		}

		// Add the key-value pair
		err = builder.Add(key, value)
		if err != nil {
			return fmt.Errorf("add to builder: %w", err)
		}

		// Track key range
		if currentFile.smallest == nil {
			currentFile.smallest = append([]byte{}, key...)
		}
		currentFile.largest = append(currentFile.largest[:0], key...)

		iter.Next()
	}

	if err := iter.Error(); err != nil {
		return fmt.Errorf("iterator error: %w", err)
	}

	// Finish the last file
	if builder != nil {
		err = j.finishOutputFile(builder, currentFile)
		if err != nil {
			return err
		}
	}

	return nil
}

// shouldDrop decides whether an entry can be omitted from the output.
//
// Two cases drop an entry:
//  1. It is not the newest surviving version of its user key and its
//     sequence number is at or below the earliest live snapshot, so no
//     snapshot can observe it.
//  2. It is a Deletion tombstone, the output level is the bottommost level
//     holding data for that key, and its sequence number is at or below the
//     earliest live snapshot, so there is nothing left underneath for it to
//     shadow.
//
// The merging iterator yields entries for a given user key newest-first, so
// the first occurrence seen here is always kept.
func (j *CompactionJob) shouldDrop(internalKey []byte) bool {
	if len(internalKey) < dbformat.NumInternalBytes {
		return false
	}

	userKey := dbformat.ExtractUserKey(internalKey)
	seq := dbformat.ExtractSequenceNumber(internalKey)
	typ := dbformat.ExtractValueType(internalKey)

	isFirstForKey := !j.haveLastUserKey || !bytesEqual(userKey, j.lastUserKey)
	if isFirstForKey {
		j.lastUserKey = append(j.lastUserKey[:0], userKey...)
		j.haveLastUserKey = true
	}

	belowSnapshotFloor := seq <= j.earliestSnapshot

	if !isFirstForKey && belowSnapshotFloor {
		j.droppedRecords++
		return true
	}

	if isFirstForKey && typ == dbformat.TypeDeletion && belowSnapshotFloor && j.compaction.IsBottommostLevel {
		j.droppedRecords++
		return true
	}

	return false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type compactionOutputFile struct {
	fileNumber uint64
	file       vfs.WritableFile
	path       string
	smallest   []byte
	largest    []byte
}

// startOutputFile creates a new output file.
func (j *CompactionJob) startOutputFile() (*compactionOutputFile, *table.TableBuilder, error) {
	fileNum := j.nextFileNum()
	fileName := fmt.Sprintf("%06d.sst", fileNum)
	filePath := filepath.Join(j.dbPath, fileName)

	file, err := j.fs.Create(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("create file %s: %w", filePath, err)
	}

	opts := table.DefaultBuilderOptions()
	builder := table.NewTableBuilder(file, opts)

	output := &compactionOutputFile{
		fileNumber: fileNum,
		file:       file,
		path:       filePath,
	}

	return output, builder, nil
}

// finishOutputFile completes an output file and records its metadata.
func (j *CompactionJob) finishOutputFile(builder *table.TableBuilder, output *compactionOutputFile) error {
	err := builder.Finish()
	if err != nil {
		_ = output.file.Close()
		return fmt.Errorf("finish builder: %w", err)
	}

	fileSize := builder.FileSize()

	// Apply rate limiting for the I/O if configured
	if j.rateLimiter != nil {
		j.rateLimiter.Request(int64(fileSize), IOPriorityLow)
	}

	err = output.file.Sync()
	if err != nil {
		_ = output.file.Close()
		return fmt.Errorf("sync file: %w", err)
	}

	err = output.file.Close()
	if err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	// Sync directory to make SST file entry durable.
	// This is required before updating MANIFEST to reference this SST.
	// Without this, a crash could leave MANIFEST referencing a non-existent SST.
	if err := j.fs.SyncDir(j.dbPath); err != nil {
		return fmt.Errorf("sync directory after compaction SST write: %w", err)
	}

	// Record the output file metadata
	fileMeta := manifest.NewFileMetaData()
	fileMeta.FD = manifest.NewFileDescriptor(output.fileNumber, 0, fileSize)
	fileMeta.Smallest = output.smallest
	fileMeta.Largest = output.largest

	j.outputFiles = append(j.outputFiles, fileMeta)

	// Add to the edit
	j.compaction.Edit.AddFile(j.compaction.OutputLevel, fileMeta)

	return nil
}

// shouldFinishFile returns true if the current output file should be closed
// and a new one started before adding key. A file is only rolled once it has
// reached the compaction's target size, and only at a user-key boundary:
// every version of a given user key must land in the same output file, or a
// later read could see a stale version in one file shadow a newer one split
// into another.
func (j *CompactionJob) shouldFinishFile(builder *table.TableBuilder, current *compactionOutputFile, key []byte) bool {
	if current == nil {
		return true
	}

	if j.compaction.MaxOutputFileSize == 0 || builder.FileSize() < j.compaction.MaxOutputFileSize {
		return false
	}

	if len(current.largest) < dbformat.NumInternalBytes || len(key) < dbformat.NumInternalBytes {
		return false
	}
	return !bytesEqual(dbformat.ExtractUserKey(current.largest), dbformat.ExtractUserKey(key))
}

// tableIteratorWrapper wraps a table.TableIterator to implement iterator.Iterator.
type tableIteratorWrapper struct {
	iter       *table.TableIterator
	fileNumber uint64
}

func (w *tableIteratorWrapper) Valid() bool {
	return w.iter.Valid()
}

func (w *tableIteratorWrapper) Key() []byte {
	return w.iter.Key()
}

func (w *tableIteratorWrapper) Value() []byte {
	return w.iter.Value()
}

func (w *tableIteratorWrapper) SeekToFirst() {
	w.iter.SeekToFirst()
}

func (w *tableIteratorWrapper) SeekToLast() {
	w.iter.SeekToLast()
}

func (w *tableIteratorWrapper) Seek(target []byte) {
	w.iter.Seek(target)
}

func (w *tableIteratorWrapper) Next() {
	w.iter.Next()
}

func (w *tableIteratorWrapper) Prev() {
	w.iter.Prev()
}

func (w *tableIteratorWrapper) Error() error {
	return w.iter.Error()
}
