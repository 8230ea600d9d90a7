// Package db provides the main database interface and implementation.
package db

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/kvforge/rockyardkv/internal/batch"
	"github.com/kvforge/rockyardkv/internal/compaction"
	"github.com/kvforge/rockyardkv/internal/dbformat"
	"github.com/kvforge/rockyardkv/internal/logging"
	"github.com/kvforge/rockyardkv/internal/manifest"
	"github.com/kvforge/rockyardkv/internal/memtable"
	"github.com/kvforge/rockyardkv/internal/table"
	"github.com/kvforge/rockyardkv/internal/version"
	"github.com/kvforge/rockyardkv/internal/vfs"
	"github.com/kvforge/rockyardkv/internal/wal"
)

// Common errors returned by DB operations.
var (
	ErrDBClosed        = errors.New("db: database is closed")
	ErrNotFound        = errors.New("db: key not found")
	ErrDBExists        = errors.New("db: database already exists")
	ErrDBNotFound      = errors.New("db: database not found")
	ErrCorruption      = errors.New("db: corruption detected")
	ErrInvalidOptions  = errors.New("db: invalid options")
	ErrBackgroundError = errors.New("db: unrecoverable background error")
)

// DB is the main interface for interacting with the database.
type DB interface {
	// Put sets the value for the given key.
	Put(opts *WriteOptions, key, value []byte) error

	// Get retrieves the value for the given key.
	// Returns ErrNotFound if the key does not exist.
	Get(opts *ReadOptions, key []byte) ([]byte, error)

	// MultiGet retrieves multiple values for the given keys.
	// Returns a slice of values in the same order as keys.
	// If a key doesn't exist, the corresponding value is nil and error is ErrNotFound.
	MultiGet(opts *ReadOptions, keys [][]byte) ([][]byte, []error)

	// Delete removes the given key.
	Delete(opts *WriteOptions, key []byte) error

	// Write applies a batch of operations atomically.
	Write(opts *WriteOptions, batch *batch.WriteBatch) error

	// NewIterator creates an iterator over the whole keyspace.
	NewIterator(opts *ReadOptions) Iterator

	// GetSnapshot creates a new snapshot of the database.
	GetSnapshot() *Snapshot

	// ReleaseSnapshot releases a previously acquired snapshot.
	ReleaseSnapshot(s *Snapshot)

	// Flush flushes the memtable to disk.
	Flush(opts *FlushOptions) error

	// Close closes the database, releasing all resources.
	Close() error

	// GetProperty returns the value of a database property.
	GetProperty(name string) (string, bool)

	// CompactRange manually triggers compaction for the specified key range.
	// If start and end are nil, the entire database is compacted.
	CompactRange(opts *CompactRangeOptions, start, end []byte) error

	// SyncWAL syncs the current WAL to disk, ensuring all data is durable.
	SyncWAL() error

	// FlushWAL flushes the WAL buffer to the file system.
	// If sync is true, it also syncs the WAL to disk (equivalent to SyncWAL).
	FlushWAL(sync bool) error

	// GetLatestSequenceNumber returns the sequence number of the most recent write.
	GetLatestSequenceNumber() uint64
}

// Open opens the database at the specified path.
func Open(path string, opts *Options) (DB, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	fs := opts.FS
	if fs == nil {
		fs = vfs.Default()
	}

	comparator := opts.Comparator
	if comparator == nil {
		comparator = DefaultComparator()
	}

	exists := fs.Exists(filepath.Join(path, "CURRENT"))

	if exists && opts.ErrorIfExists {
		return nil, ErrDBExists
	}

	if !exists && !opts.CreateIfMissing {
		return nil, ErrDBNotFound
	}

	if !exists {
		if err := fs.MkdirAll(path, 0755); err != nil {
			return nil, err
		}
	}

	logger := logging.OrDefault(opts.Logger)

	db := &DBImpl{
		name:            path,
		options:         opts,
		fs:              fs,
		comparator:      comparator,
		shutdownCh:      make(chan struct{}),
		tableCache:      table.NewTableCache(fs, table.DefaultTableCacheOptions()),
		writeController: NewWriteController(),
		logger:          logger,
	}
	db.immCond = sync.NewCond(&db.mu)

	vsOpts := version.VersionSetOptions{
		DBName:              path,
		FS:                  fs,
		MaxManifestFileSize: 1024 * 1024 * 1024, // 1GB
		NumLevels:           version.MaxNumLevels,
		ComparatorName:      comparator.Name(),
	}
	db.versions = version.NewVersionSet(vsOpts)

	if exists {
		if err := db.recover(); err != nil {
			return nil, err
		}
	} else {
		if err := db.create(); err != nil {
			return nil, err
		}
	}

	db.bgWork = newBackgroundWork(db, opts)
	db.bgWork.Start()
	db.bgWork.MaybeScheduleCompaction()

	return db, nil
}

// DBImpl is the concrete implementation of the DB interface.
type DBImpl struct {
	name string

	options    *Options
	fs         vfs.FS
	comparator Comparator

	mu sync.RWMutex

	versions *version.VersionSet

	logFile       vfs.WritableFile
	logFileNumber uint64
	logWriter     *wal.Writer

	mem *memtable.MemTable
	imm *memtable.MemTable
	seq uint64

	tableCache *table.TableCache

	snapshots    *Snapshot
	snapshotLock sync.Mutex

	bgWork *BackgroundWork

	writeController *WriteController

	backgroundError error

	immCond *sync.Cond

	logger Logger

	walDisabledWarned bool

	closed     bool
	shutdownCh chan struct{}
}

// create initializes a new database.
func (db *DBImpl) create() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.versions.Create(); err != nil {
		return err
	}

	logNumber := db.versions.NextFileNumber()
	logPath := db.logFilePath(logNumber)

	logFile, err := db.fs.Create(logPath)
	if err != nil {
		return err
	}

	db.logFile = logFile
	db.logFileNumber = logNumber
	db.logWriter = wal.NewWriter(logFile)

	db.mem = memtable.NewMemTable(db.comparator.Compare)
	db.seq = 0

	edit := &manifest.VersionEdit{
		HasLogNumber: true,
		LogNumber:    logNumber,
	}
	if err := db.versions.LogAndApply(edit); err != nil {
		return err
	}

	return nil
}

// recover rebuilds the database from an existing directory: it reconstructs
// the current Version from the MANIFEST, replays every WAL segment newer
// than the last flushed memtable, and opens a fresh WAL for new writes.
// A non-empty recovered memtable is flushed immediately, so the MANIFEST's
// LogNumber always advances past any log this call has already consumed -
// otherwise a second crash before the first post-recovery flush would need
// to replay a log whose on-disk tail may already differ from what was read.
func (db *DBImpl) recover() error {
	db.mu.Lock()

	if err := db.versions.Recover(); err != nil {
		db.mu.Unlock()
		return err
	}

	db.seq = db.versions.LastSequence()

	if err := db.replayWAL(); err != nil {
		db.mu.Unlock()
		return fmt.Errorf("WAL replay failed: %w", err)
	}

	oldLogNumber := db.versions.LogNumber()

	logNumber := db.versions.NextFileNumber()
	logPath := db.logFilePath(logNumber)

	logFile, err := db.fs.Create(logPath)
	if err != nil {
		db.mu.Unlock()
		return err
	}

	recovered := db.mem
	db.logFile = logFile
	db.logFileNumber = logNumber
	db.logWriter = wal.NewWriter(logFile)

	if recovered.Empty() {
		db.mem = recovered
		edit := &manifest.VersionEdit{HasLogNumber: true, LogNumber: logNumber}
		err := db.versions.LogAndApply(edit)
		db.mu.Unlock()
		if err != nil {
			return err
		}
		if oldLogNumber != 0 && oldLogNumber != logNumber {
			_ = db.fs.Remove(db.logFilePath(oldLogNumber))
		}
		return nil
	}

	db.imm = recovered
	var memCmp memtable.Comparator
	if db.comparator != nil {
		memCmp = db.comparator.Compare
	}
	db.mem = memtable.NewMemTable(memCmp)
	db.mu.Unlock()

	if err := db.doFlush(); err != nil {
		return err
	}

	if oldLogNumber != 0 && oldLogNumber != logNumber {
		_ = db.fs.Remove(db.logFilePath(oldLogNumber))
	}

	return nil
}

// replayWAL reads the WAL segment referenced by the recovered MANIFEST and
// replays every record into a fresh memtable, seeding the sequence counter
// as it goes. Replay stops at the first corrupted or truncated record,
// matching how the writer itself halts on crash.
// REQUIRES: db.mu is held.
func (db *DBImpl) replayWAL() error {
	logNumber := db.versions.LogNumber()
	if logNumber == 0 {
		var memCmp memtable.Comparator
		if db.comparator != nil {
			memCmp = db.comparator.Compare
		}
		db.mem = memtable.NewMemTable(memCmp)
		return nil
	}

	logPath := db.logFilePath(logNumber)
	if !db.fs.Exists(logPath) {
		var memCmp memtable.Comparator
		if db.comparator != nil {
			memCmp = db.comparator.Compare
		}
		db.mem = memtable.NewMemTable(memCmp)
		return nil
	}

	file, err := db.fs.Open(logPath)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	var memCmp memtable.Comparator
	if db.comparator != nil {
		memCmp = db.comparator.Compare
	}
	mem := memtable.NewMemTable(memCmp)

	reader := wal.NewReader(file)
	var maxSeq uint64
	for {
		rec, err := reader.ReadRecord()
		if err != nil {
			break // io.EOF, ErrCorruptedRecord, or ErrShortRecord: stop here.
		}
		switch rec.Type {
		case dbformat.TypeValue:
			mem.Put(rec.Sequence, rec.Key, rec.Value)
		case dbformat.TypeDeletion:
			mem.Delete(rec.Sequence, rec.Key)
		}
		if uint64(rec.Sequence) > maxSeq {
			maxSeq = uint64(rec.Sequence)
		}
	}

	db.mem = mem
	if maxSeq > db.seq {
		db.seq = maxSeq
	}

	return nil
}

// Put sets the value for the given key.
func (db *DBImpl) Put(opts *WriteOptions, key, value []byte) error {
	wb := batch.New()
	wb.Put(key, value)
	return db.Write(opts, wb)
}

// Get retrieves the value for the given key.
func (db *DBImpl) Get(opts *ReadOptions, key []byte) ([]byte, error) {
	if opts == nil {
		opts = DefaultReadOptions()
	}

	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return nil, ErrDBClosed
	}

	var snapshot uint64
	if opts.Snapshot != nil {
		snapshot = opts.Snapshot.Sequence()
	} else {
		snapshot = db.seq
	}

	mem := db.mem
	imm := db.imm
	db.mu.RUnlock()

	if mem != nil {
		value, found, deleted := mem.Get(key, dbformat.SequenceNumber(snapshot))
		if deleted {
			return nil, ErrNotFound
		}
		if found {
			return copySlice(value), nil
		}
	}

	if imm != nil {
		value, found, deleted := imm.Get(key, dbformat.SequenceNumber(snapshot))
		if deleted {
			return nil, ErrNotFound
		}
		if found {
			return copySlice(value), nil
		}
	}

	db.mu.RLock()
	current := db.versions.Current()
	if current != nil {
		current.Ref()
	}
	db.mu.RUnlock()

	if current != nil {
		defer current.Unref()
		value, err := db.getFromVersion(current, key, dbformat.SequenceNumber(snapshot))
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	return nil, ErrNotFound
}

// MultiGet retrieves multiple values for the given keys.
func (db *DBImpl) MultiGet(opts *ReadOptions, keys [][]byte) ([][]byte, []error) {
	if len(keys) == 0 {
		return nil, nil
	}

	values := make([][]byte, len(keys))
	errs := make([]error, len(keys))

	for i, key := range keys {
		value, err := db.Get(opts, key)
		values[i] = value
		errs[i] = err
	}

	return values, errs
}

// getFromVersion searches for a key across every level's SST files,
// newest data first. L0 files may overlap so they are searched in full,
// newest-written first; L1+ files are searched the same way since
// compaction does not yet guarantee strictly non-overlapping files.
func (db *DBImpl) getFromVersion(v *version.Version, key []byte, seq dbformat.SequenceNumber) ([]byte, error) {
	for level := range v.NumLevels() {
		files := v.Files(level)
		for i := len(files) - 1; i >= 0; i-- {
			f := files[i]
			if db.comparator.Compare(key, dbformat.ExtractUserKey(f.Smallest)) < 0 {
				continue
			}
			if db.comparator.Compare(key, dbformat.ExtractUserKey(f.Largest)) > 0 {
				continue
			}

			value, found, deleted, err := db.getFromFile(f, key, seq)
			if err != nil {
				return nil, err
			}
			if found {
				if deleted {
					return nil, ErrNotFound
				}
				return copySlice(value), nil
			}
		}
	}

	return nil, ErrNotFound
}

// copySlice creates a copy of a byte slice to prevent aliasing with
// internal buffers. Memtable entries and cached SST blocks are shared;
// callers must not be able to mutate them through a returned value.
func copySlice(src []byte) []byte {
	if src == nil {
		return nil
	}
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}

// getFromFile searches for a key in a single SST file.
// Returns: value, found, deleted, error.
func (db *DBImpl) getFromFile(f *manifest.FileMetaData, key []byte, seq dbformat.SequenceNumber) ([]byte, bool, bool, error) {
	fileNum := f.FD.GetNumber()
	path := db.sstFilePath(fileNum)

	reader, err := db.tableCache.Get(fileNum, path)
	if err != nil {
		return nil, false, false, err
	}
	defer db.tableCache.Release(fileNum)

	seekKey := dbformat.NewInternalKey(key, seq, dbformat.ValueTypeForSeek)

	iter := reader.NewIterator()
	iter.Seek(seekKey)

	if !iter.Valid() {
		return nil, false, false, nil
	}

	foundKey := iter.Key()
	if db.comparator.Compare(dbformat.ExtractUserKey(foundKey), key) != 0 {
		return nil, false, false, nil
	}

	if dbformat.ExtractValueType(foundKey) == dbformat.TypeDeletion {
		return nil, true, true, nil
	}

	return iter.Value(), true, false, nil
}

// Delete removes the given key from the database.
func (db *DBImpl) Delete(opts *WriteOptions, key []byte) error {
	wb := batch.New()
	wb.Delete(key)
	return db.Write(opts, wb)
}

// Write applies a batch of operations atomically. Every record in the
// batch is assigned the same sequence number at the batch level; the
// per-record sequence visible to memtable/SST lookups increments by
// position so each write still has a distinct point in the total order.
func (db *DBImpl) Write(opts *WriteOptions, wb *batch.WriteBatch) error {
	if opts == nil {
		opts = DefaultWriteOptions()
	}

	writeSize := len(wb.Data())
	db.writeController.MaybeStallWrite(writeSize)

	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return ErrDBClosed
	}
	if db.backgroundError != nil {
		err := fmt.Errorf("%w: %w", ErrBackgroundError, db.backgroundError)
		db.mu.Unlock()
		return err
	}

	count := wb.Count()
	firstSeq := db.seq + 1
	wb.SetSequence(firstSeq)
	db.seq += uint64(count)

	if opts.DisableWAL {
		if !db.walDisabledWarned {
			db.walDisabledWarned = true
			if db.logger != nil {
				db.logger.Warnf("DisableWAL=true: writes will be lost if process crashes before Flush()")
			}
		}
	} else if db.logWriter != nil {
		seq := firstSeq
		if err := wb.Iterate(&walRecordWriter{writer: db.logWriter, sequence: &seq}); err != nil {
			db.mu.Unlock()
			return err
		}

		if opts.Sync {
			if err := db.logWriter.Sync(); err != nil {
				db.mu.Unlock()
				return err
			}
		}
	}

	mem := db.mem
	handler := &memtableInserter{mem: mem, sequence: firstSeq}
	db.mu.Unlock()

	if err := wb.Iterate(handler); err != nil {
		return err
	}

	return nil
}

// walRecordWriter turns each batch record into one WAL record, assigning
// sequence numbers in the same order memtableInserter will use so replay
// after a crash reproduces the exact same state.
type walRecordWriter struct {
	writer   *wal.Writer
	sequence *uint64
}

func (w *walRecordWriter) Put(key, value []byte) error {
	seq := *w.sequence
	*w.sequence++
	_, err := w.writer.AddRecord(wal.Record{
		Sequence: dbformat.SequenceNumber(seq),
		Type:     dbformat.TypeValue,
		Key:      key,
		Value:    value,
	})
	return err
}

func (w *walRecordWriter) Delete(key []byte) error {
	seq := *w.sequence
	*w.sequence++
	_, err := w.writer.AddRecord(wal.Record{
		Sequence: dbformat.SequenceNumber(seq),
		Type:     dbformat.TypeDeletion,
		Key:      key,
	})
	return err
}

func (w *walRecordWriter) LogData(blob []byte) {}

// memtableInserter applies batch operations to the active memtable,
// assigning the same per-record sequence numbers the WAL write used.
type memtableInserter struct {
	mem      *memtable.MemTable
	sequence uint64
}

func (m *memtableInserter) Put(key, value []byte) error {
	m.mem.Put(dbformat.SequenceNumber(m.sequence), key, value)
	m.sequence++
	return nil
}

func (m *memtableInserter) Delete(key []byte) error {
	m.mem.Delete(dbformat.SequenceNumber(m.sequence), key)
	m.sequence++
	return nil
}

func (m *memtableInserter) LogData(blob []byte) {}

// NewIterator creates an iterator over the whole keyspace.
func (db *DBImpl) NewIterator(opts *ReadOptions) Iterator {
	if opts == nil {
		opts = DefaultReadOptions()
	}

	var snapshot *Snapshot
	ownsSnapshot := false
	if opts.Snapshot != nil {
		snapshot = opts.Snapshot
	} else {
		snapshot = db.GetSnapshot()
		ownsSnapshot = true
	}

	iter := newDBIterator(db, snapshot)
	iter.ownsSnapshot = ownsSnapshot

	iter.prefixExtractor = db.options.PrefixExtractor
	iter.iterateUpperBound = opts.IterateUpperBound
	iter.iterateLowerBound = opts.IterateLowerBound
	iter.prefixSameAsStart = opts.PrefixSameAsStart
	iter.totalOrderSeek = opts.TotalOrderSeek

	return iter
}

// GetSnapshot creates a new snapshot of the database.
func (db *DBImpl) GetSnapshot() *Snapshot {
	db.mu.RLock()
	seq := db.seq
	db.mu.RUnlock()

	s := newSnapshot(db, seq)

	db.snapshotLock.Lock()
	s.next = db.snapshots
	if db.snapshots != nil {
		db.snapshots.prev = s
	}
	db.snapshots = s
	db.snapshotLock.Unlock()

	return s
}

// ReleaseSnapshot releases a previously acquired snapshot.
func (db *DBImpl) ReleaseSnapshot(s *Snapshot) {
	s.Release()
}

// releaseSnapshot is called when a snapshot's reference count reaches zero.
func (db *DBImpl) releaseSnapshot(s *Snapshot) {
	db.snapshotLock.Lock()
	defer db.snapshotLock.Unlock()

	if s.prev != nil {
		s.prev.next = s.next
	} else {
		db.snapshots = s.next
	}
	if s.next != nil {
		s.next.prev = s.prev
	}
}

// Flush flushes the memtable to disk.
func (db *DBImpl) Flush(opts *FlushOptions) error {
	if opts == nil {
		opts = DefaultFlushOptions()
	}

	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return ErrDBClosed
	}
	if db.backgroundError != nil {
		err := fmt.Errorf("%w: %w", ErrBackgroundError, db.backgroundError)
		db.mu.Unlock()
		return err
	}

	for db.imm != nil {
		if db.closed {
			db.mu.Unlock()
			return ErrDBClosed
		}
		if db.backgroundError != nil {
			err := fmt.Errorf("%w: %w", ErrBackgroundError, db.backgroundError)
			db.mu.Unlock()
			return err
		}
		db.immCond.Wait()
	}

	if db.mem.Empty() {
		db.mu.Unlock()
		return nil
	}

	// Seal the active memtable and roll to a fresh WAL so new writes never
	// land in the segment the flush is about to persist. The old WAL stays
	// open until the flush installs its SST, then gets removed.
	newLogNumber := db.versions.NextFileNumber()
	newLogPath := db.logFilePath(newLogNumber)
	newLogFile, err := db.fs.Create(newLogPath)
	if err != nil {
		db.mu.Unlock()
		return fmt.Errorf("failed to create new WAL: %w", err)
	}

	oldLogFile := db.logFile
	oldLogNumber := db.logFileNumber

	db.imm = db.mem
	var memCmp memtable.Comparator
	if db.comparator != nil {
		memCmp = db.comparator.Compare
	}
	db.mem = memtable.NewMemTable(memCmp)
	db.logFile = newLogFile
	db.logFileNumber = newLogNumber
	db.logWriter = wal.NewWriter(newLogFile)

	db.recalculateWriteStall()
	db.mu.Unlock()

	if err := db.doFlush(); err != nil {
		return err
	}

	if oldLogFile != nil {
		_ = oldLogFile.Close()
	}
	oldLogPath := db.logFilePath(oldLogNumber)
	_ = db.fs.Remove(oldLogPath)

	if db.bgWork != nil {
		db.bgWork.MaybeScheduleCompaction()
	}

	return nil
}

// SyncWAL syncs the current WAL to disk, ensuring all data is durable.
func (db *DBImpl) SyncWAL() error {
	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return ErrDBClosed
	}
	logWriter := db.logWriter
	db.mu.RUnlock()

	if logWriter == nil {
		return nil
	}

	return logWriter.Sync()
}

// FlushWAL flushes the WAL buffer to the file system. If sync is true, it
// also syncs the WAL to disk (equivalent to SyncWAL). Writes are never
// buffered in memory ahead of the WAL file, so FlushWAL(false) is a no-op.
func (db *DBImpl) FlushWAL(sync bool) error {
	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return ErrDBClosed
	}
	logFile := db.logFile
	db.mu.RUnlock()

	if logFile == nil {
		return nil
	}

	if sync {
		return db.SyncWAL()
	}

	return nil
}

// GetLatestSequenceNumber returns the sequence number of the most recent write.
func (db *DBImpl) GetLatestSequenceNumber() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.seq
}

// Close closes the database, releasing all resources.
func (db *DBImpl) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	db.mu.Unlock()

	if db.bgWork != nil {
		db.bgWork.Stop()
	}

	db.writeController.ReleaseWriteStall()

	db.mu.Lock()
	defer db.mu.Unlock()

	close(db.shutdownCh)

	if db.logFile != nil {
		_ = db.logFile.Close()
		db.logFile = nil
		db.logWriter = nil
	}

	if db.tableCache != nil {
		_ = db.tableCache.Close()
	}

	if db.versions != nil {
		_ = db.versions.Close()
	}

	return nil
}

// SetBackgroundError sets an unrecoverable background error. Once set, new
// write operations fail with this error; it is sticky until the database
// is reopened.
func (db *DBImpl) SetBackgroundError(err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.backgroundError == nil && err != nil {
		db.backgroundError = err
	}
}

// GetBackgroundError returns the current background error, if any.
func (db *DBImpl) GetBackgroundError() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.backgroundError
}

// Property name constants for GetProperty.
const (
	PropertyNumImmutableMemTable = "rockyardkv.num-immutable-mem-table"
	PropertyMemTableFlushPending = "rockyardkv.mem-table-flush-pending"
	PropertyCurSizeActiveMemTable = "rockyardkv.cur-size-active-mem-table"
	PropertyCurSizeAllMemTables  = "rockyardkv.cur-size-all-mem-tables"
	PropertyNumEntriesActiveMemTable = "rockyardkv.num-entries-active-mem-table"

	PropertyCompactionPending     = "rockyardkv.compaction-pending"
	PropertyNumRunningFlushes     = "rockyardkv.num-running-flushes"
	PropertyNumRunningCompactions = "rockyardkv.num-running-compactions"

	PropertyNumFilesAtLevelPrefix = "rockyardkv.num-files-at-level"
	PropertyLevelStats            = "rockyardkv.levelstats"

	PropertyNumSnapshots       = "rockyardkv.num-snapshots"
	PropertyOldestSnapshotTime = "rockyardkv.oldest-snapshot-time"

	PropertyEstimateNumKeys = "rockyardkv.estimate-num-keys"

	PropertyEstimateLiveDataSize = "rockyardkv.estimate-live-data-size"
	PropertyTotalSstFilesSize    = "rockyardkv.total-sst-files-size"
	PropertyLiveSstFilesSize     = "rockyardkv.live-sst-files-size"

	PropertyBackgroundErrors = "rockyardkv.background-errors"

	PropertyNumLiveVersions           = "rockyardkv.num-live-versions"
	PropertyCurrentSuperVersionNumber = "rockyardkv.current-super-version-number"
)

// GetProperty returns the value of a database property.
func (db *DBImpl) GetProperty(name string) (string, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return "", false
	}

	if after, ok := strings.CutPrefix(name, PropertyNumFilesAtLevelPrefix); ok {
		level, err := strconv.Atoi(after)
		if err != nil || level < 0 || level >= version.MaxNumLevels {
			return "", false
		}
		v := db.versions.Current()
		if v == nil {
			return "0", true
		}
		return strconv.Itoa(len(v.Files(level))), true
	}

	switch name {
	case PropertyNumImmutableMemTable:
		count := 0
		if db.imm != nil {
			count = 1
		}
		return strconv.Itoa(count), true

	case PropertyMemTableFlushPending:
		pending := 0
		if db.imm != nil {
			pending = 1
		}
		return strconv.Itoa(pending), true

	case PropertyCurSizeActiveMemTable:
		if db.mem != nil {
			return strconv.FormatUint(uint64(db.mem.ApproximateMemoryUsage()), 10), true
		}
		return "0", true

	case PropertyCurSizeAllMemTables:
		size := uint64(0)
		if db.mem != nil {
			size += uint64(db.mem.ApproximateMemoryUsage())
		}
		if db.imm != nil {
			size += uint64(db.imm.ApproximateMemoryUsage())
		}
		return strconv.FormatUint(size, 10), true

	case PropertyNumEntriesActiveMemTable:
		if db.mem != nil {
			return strconv.FormatInt(db.mem.Count(), 10), true
		}
		return "0", true

	case PropertyCompactionPending:
		if db.bgWork != nil && db.bgWork.IsCompactionPending() {
			return "1", true
		}
		return "0", true

	case PropertyNumRunningFlushes:
		if db.bgWork != nil {
			return strconv.Itoa(db.bgWork.NumRunningFlushes()), true
		}
		return "0", true

	case PropertyNumRunningCompactions:
		if db.bgWork != nil {
			return strconv.Itoa(db.bgWork.NumRunningCompactions()), true
		}
		return "0", true

	case PropertyLevelStats:
		return db.getLevelStats(), true

	case PropertyNumSnapshots:
		return strconv.Itoa(db.countSnapshots()), true

	case PropertyOldestSnapshotTime:
		oldest := db.getOldestSnapshotTime()
		if oldest == 0 {
			return "0", true
		}
		return strconv.FormatInt(oldest, 10), true

	case PropertyEstimateNumKeys:
		return strconv.FormatUint(db.estimateNumKeys(), 10), true

	case PropertyTotalSstFilesSize, PropertyLiveSstFilesSize, PropertyEstimateLiveDataSize:
		return strconv.FormatUint(db.getTotalSstFilesSize(), 10), true

	case PropertyBackgroundErrors:
		if db.bgWork != nil {
			return strconv.Itoa(db.bgWork.NumBackgroundErrors()), true
		}
		return "0", true

	case PropertyNumLiveVersions:
		if db.versions != nil {
			return strconv.Itoa(db.versions.NumLiveVersions()), true
		}
		return "1", true

	case PropertyCurrentSuperVersionNumber:
		if db.versions != nil {
			return strconv.FormatUint(db.versions.CurrentVersionNumber(), 10), true
		}
		return "0", true

	default:
		return "", false
	}
}

// getLevelStats returns a formatted string with level statistics.
func (db *DBImpl) getLevelStats() string {
	v := db.versions.Current()
	if v == nil {
		return "Level Files Size(MB)\n"
	}

	var sb strings.Builder
	sb.WriteString("Level Files Size(MB)\n")
	for level := range v.NumLevels() {
		files := v.Files(level)
		var totalSize uint64
		for _, f := range files {
			totalSize += f.FD.FileSize
		}
		sizeMB := float64(totalSize) / (1024 * 1024)
		sb.WriteString(fmt.Sprintf("  %d   %5d %8.2f\n", level, len(files), sizeMB))
	}
	return sb.String()
}

// earliestSnapshotSequence returns the minimum sequence number pinned by any
// live snapshot, or the current sequence number when there are no live
// snapshots (so nothing is pinned and a compaction is free to collapse every
// superseded version and drop every tombstone it reaches). Compaction jobs
// use this as the floor below which older versions of a key and, at the
// bottommost level, tombstones themselves may be physically dropped.
func (db *DBImpl) earliestSnapshotSequence() uint64 {
	db.snapshotLock.Lock()
	var oldest *Snapshot
	for s := db.snapshots; s != nil; s = s.next {
		if oldest == nil || s.sequence < oldest.sequence {
			oldest = s
		}
	}
	db.snapshotLock.Unlock()

	if oldest == nil {
		db.mu.RLock()
		seq := db.seq
		db.mu.RUnlock()
		return seq
	}
	return oldest.sequence
}

// countSnapshots counts the number of active snapshots.
func (db *DBImpl) countSnapshots() int {
	db.snapshotLock.Lock()
	defer db.snapshotLock.Unlock()

	count := 0
	for s := db.snapshots; s != nil; s = s.next {
		count++
	}
	return count
}

// getOldestSnapshotTime returns the creation time of the oldest snapshot (Unix timestamp).
func (db *DBImpl) getOldestSnapshotTime() int64 {
	db.snapshotLock.Lock()
	defer db.snapshotLock.Unlock()

	if db.snapshots == nil {
		return 0
	}

	oldest := db.snapshots
	for s := db.snapshots.next; s != nil; s = s.next {
		if s.sequence < oldest.sequence {
			oldest = s
		}
	}
	return oldest.createdAt
}

// estimateNumKeys estimates the total number of keys in the database.
func (db *DBImpl) estimateNumKeys() uint64 {
	var estimate uint64

	if db.mem != nil {
		estimate += uint64(db.mem.Count())
	}
	if db.imm != nil {
		estimate += uint64(db.imm.Count())
	}

	v := db.versions.Current()
	if v != nil {
		for level := range v.NumLevels() {
			for _, f := range v.Files(level) {
				// Rough estimate: one entry per 100 bytes of file size.
				estimate += f.FD.FileSize / 100
			}
		}
	}

	return estimate
}

// getTotalSstFilesSize returns the total size of all SST files.
func (db *DBImpl) getTotalSstFilesSize() uint64 {
	v := db.versions.Current()
	if v == nil {
		return 0
	}

	var totalSize uint64
	for level := range v.NumLevels() {
		for _, f := range v.Files(level) {
			totalSize += f.FD.FileSize
		}
	}
	return totalSize
}

// CompactRangeOptions specifies options for manual compaction.
type CompactRangeOptions struct {
	// ChangeLevel when true, writes each level's compaction output to
	// TargetLevel instead of the next level, when TargetLevel is deeper.
	ChangeLevel bool
	// TargetLevel specifies the target level for the compacted files.
	TargetLevel int
	// ExclusiveManualCompaction is accepted but not read by CompactRange;
	// manual compactions are not serialized against each other by it.
	ExclusiveManualCompaction bool
}

// CompactRange manually triggers compaction for the specified key range.
// If start and end are nil, the entire database is compacted.
func (db *DBImpl) CompactRange(opts *CompactRangeOptions, start, end []byte) error {
	if opts == nil {
		opts = &CompactRangeOptions{}
	}

	if err := db.Flush(nil); err != nil {
		return err
	}

	db.mu.RLock()
	v := db.versions.Current()
	if v != nil {
		v.Ref()
	}
	db.mu.RUnlock()

	if v == nil {
		return nil
	}
	defer v.Unref()

	for level := 0; level < v.NumLevels()-1; level++ {
		if err := db.compactLevel(v, level, start, end, opts); err != nil {
			return err
		}

		db.mu.RLock()
		v.Unref()
		v = db.versions.Current()
		if v != nil {
			v.Ref()
		}
		db.mu.RUnlock()

		if v == nil {
			return nil
		}
	}

	return nil
}

// compactLevel compacts files in a specific level that overlap the given range.
func (db *DBImpl) compactLevel(v *version.Version, level int, start, end []byte, opts *CompactRangeOptions) error {
	files := v.Files(level)
	if len(files) == 0 {
		return nil
	}

	var overlappingFiles []*manifest.FileMetaData
	for _, f := range files {
		if f.BeingCompacted {
			continue
		}
		if len(start) > 0 && bytes.Compare(f.Largest, start) < 0 {
			continue
		}
		if len(end) > 0 && bytes.Compare(f.Smallest, end) >= 0 {
			continue
		}
		overlappingFiles = append(overlappingFiles, f)
	}

	if len(overlappingFiles) == 0 {
		return nil
	}

	outputLevel := level + 1
	if opts.ChangeLevel && opts.TargetLevel > outputLevel {
		outputLevel = opts.TargetLevel
	}

	input := &compaction.CompactionInputFiles{
		Level: level,
		Files: overlappingFiles,
	}

	var smallest, largest []byte
	for _, f := range overlappingFiles {
		if smallest == nil || bytes.Compare(f.Smallest, smallest) < 0 {
			smallest = f.Smallest
		}
		if largest == nil || bytes.Compare(f.Largest, largest) > 0 {
			largest = f.Largest
		}
	}

	outputFiles := v.OverlappingInputs(outputLevel, smallest, largest)
	var outputAvailable []*manifest.FileMetaData
	for _, f := range outputFiles {
		if !f.BeingCompacted {
			outputAvailable = append(outputAvailable, f)
		}
	}

	inputs := []*compaction.CompactionInputFiles{input}
	if len(outputAvailable) > 0 {
		inputs = append(inputs, &compaction.CompactionInputFiles{
			Level: outputLevel,
			Files: outputAvailable,
		})
	}

	c := compaction.NewCompaction(inputs, outputLevel)
	c.Reason = compaction.CompactionReasonManualCompaction

	db.mu.Lock()
	c.MarkFilesBeingCompacted(true)
	db.mu.Unlock()

	defer func() {
		db.mu.Lock()
		c.MarkFilesBeingCompacted(false)
		db.mu.Unlock()
	}()

	return db.bgWork.executeCompaction(c)
}

// logFilePath returns the path to a log file.
func (db *DBImpl) logFilePath(number uint64) string {
	return filepath.Join(db.name, logFileName(number))
}

// logFileName returns the filename for a log file.
func logFileName(number uint64) string {
	return fmt.Sprintf("%06d.log", number)
}

// recalculateWriteStall recalculates and updates the write stall condition.
// REQUIRES: db.mu is held.
func (db *DBImpl) recalculateWriteStall() {
	numUnflushed := 1
	if db.imm != nil {
		numUnflushed++
	}

	numL0Files := 0
	if v := db.versions.Current(); v != nil {
		numL0Files = len(v.Files(0))
	}

	condition, cause := RecalculateWriteStallCondition(
		numUnflushed,
		numL0Files,
		db.options.MaxWriteBufferNumber,
		db.options.Level0SlowdownWritesTrigger,
		db.options.Level0StopWritesTrigger,
		db.options.DisableAutoCompactions,
	)

	db.writeController.SetStallCondition(condition, cause)
}
