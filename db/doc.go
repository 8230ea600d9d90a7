// Package db provides an embedded, ordered key-value store built on an
// LSM-tree: a write-ahead log for durability, in-memory memtables that
// flush to sorted SST files, and background compaction that keeps read
// amplification bounded as the dataset grows.
//
// # Quick Start
//
// Opening and using a database:
//
//	import "github.com/kvforge/rockyardkv/db"
//
//	// Open or create a database
//	opts := db.DefaultOptions()
//	opts.CreateIfMissing = true
//	database, err := db.Open("/path/to/db", opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer database.Close()
//
//	// Write data
//	err = database.Put(db.DefaultWriteOptions(), []byte("key"), []byte("value"))
//
//	// Read data
//	value, err := database.Get(nil, []byte("key"))
//
//	// Delete data
//	err = database.Delete(db.DefaultWriteOptions(), []byte("key"))
//
// # Batch Writes
//
// For atomic multi-key operations, use a WriteBatch: every Put and Delete
// queued on it lands in the write-ahead log and the memtable as a single
// unit.
//
//	wb := batch.New()
//	wb.Put([]byte("key1"), []byte("value1"))
//	wb.Put([]byte("key2"), []byte("value2"))
//	wb.Delete([]byte("key3"))
//	err := database.Write(db.DefaultWriteOptions(), wb)
//
// # Iteration
//
// Iterate over keys in sorted order:
//
//	iter := database.NewIterator(db.DefaultReadOptions())
//	defer iter.Close()
//
//	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
//	    fmt.Printf("%s: %s\n", iter.Key(), iter.Value())
//	}
//
//	// Seek to a specific key
//	iter.Seek([]byte("prefix"))
//
// # Snapshots
//
// Read a consistent view of the database as of a point in time:
//
//	snap := database.GetSnapshot()
//	defer database.ReleaseSnapshot(snap)
//
//	opts := db.DefaultReadOptions()
//	opts.Snapshot = snap
//	value, err := database.Get(opts, []byte("key"))
//
// # Features
//
//   - LSM-tree architecture with memtable and SST files
//   - Write-ahead log (WAL) for durability, replayed on recovery
//   - Background flush and leveled or size-tiered compaction
//   - Bloom filters for read optimization
//   - Snapshots and iterators with MVCC-consistent views
//   - Manual range compaction via CompactRange
//
// # Thread Safety
//
// A DB instance is safe for concurrent access by multiple goroutines.
// Writes are serialized internally; reads never block on writers or on
// background compaction. Individual Iterator instances are NOT safe for
// concurrent access - each goroutine should create its own iterator.
//
// # Performance
//
// For best performance:
//   - Use batch writes for multiple keys
//
// The write-buffer, bloom-filter, block and compression settings in Options
// are not applied by the engine; see the Options field comments.
package db
