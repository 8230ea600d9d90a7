// options.go implements database configuration options.
//
// These types were originally part of the top-level package that wraps
// this engine; they are defined here directly since the engine has no
// outer wrapper in this tree.
package db

import (
	"fmt"

	"github.com/kvforge/rockyardkv/internal/checksum"
	"github.com/kvforge/rockyardkv/internal/compression"
	"github.com/kvforge/rockyardkv/internal/logging"
	"github.com/kvforge/rockyardkv/internal/vfs"
)

// Logger is an alias for the logging.Logger interface, letting callers
// supply their own implementation.
type Logger = logging.Logger

// CompressionType is an alias for the compression type.
type CompressionType = compression.Type

// Compression type constants.
const (
	CompressionNone   = compression.NoCompression
	CompressionSnappy = compression.SnappyCompression
	CompressionZstd   = compression.ZstdCompression
	CompressionLZ4    = compression.LZ4Compression
)

// ChecksumType is an alias for the checksum type.
type ChecksumType = checksum.Type

// Checksum type constants.
const (
	ChecksumTypeNoChecksum = checksum.TypeNoChecksum
	ChecksumTypeCRC32C     = checksum.TypeCRC32C
	ChecksumTypeXXHash     = checksum.TypeXXHash
	ChecksumTypeXXHash64   = checksum.TypeXXHash64
	ChecksumTypeXXH3       = checksum.TypeXXH3
)

// CompactionStyle specifies the compaction strategy.
type CompactionStyle int

const (
	// CompactionStyleLevel organizes files into levels with a size limit
	// per level. Optimized for read-heavy workloads.
	CompactionStyleLevel CompactionStyle = iota

	// CompactionStyleSizeTiered keeps all files in level 0 and merges them
	// together once a trigger count is reached. Lower write amplification,
	// higher space amplification than leveled compaction.
	CompactionStyleSizeTiered
)

// String returns the string representation of the compaction style.
func (cs CompactionStyle) String() string {
	switch cs {
	case CompactionStyleLevel:
		return "Level"
	case CompactionStyleSizeTiered:
		return "SizeTiered"
	default:
		return "Unknown"
	}
}

// Options contains all configuration options for opening a database.
type Options struct {
	// CreateIfMissing causes Open to create the database if it does not exist.
	CreateIfMissing bool

	// ErrorIfExists causes Open to return an error if the database already exists.
	ErrorIfExists bool

	// ParanoidChecks is accepted but not read by the engine; setting it
	// enables no additional checks.
	ParanoidChecks bool

	// FS is the filesystem implementation to use.
	// If nil, the OS filesystem is used.
	FS vfs.FS

	// Comparator defines the order of keys in the database.
	// If nil, a default bytewise comparator is used.
	Comparator Comparator

	// WriteBufferSize is the memtable size setting. It is defaulted and
	// validated but not read by the write path: writes never seal or flush
	// the memtable by size; a memtable is flushed only by an explicit call
	// such as Flush.
	// Default: 4MB
	WriteBufferSize int

	// MaxWriteBufferNumber is the maximum number of memtables (mutable plus
	// unflushed immutable) kept in memory before writes stop.
	// Default: 2
	MaxWriteBufferNumber int

	// MaxOpenFiles is the maximum number of SST files to keep open. It is
	// defaulted but not read; Open creates the table cache with
	// table.DefaultTableCacheOptions.
	// Default: 1000
	MaxOpenFiles int

	// BlockSize is the approximate size of data blocks within SST files.
	// It is defaulted but not passed to the table builder: flushes and
	// compactions write SST files with table.DefaultBuilderOptions (4KB).
	// Default: 4KB
	BlockSize int

	// BlockRestartInterval is how often to create restart points in blocks.
	// It is defaulted but not passed to the table builder, which uses the
	// table.DefaultBuilderOptions value (16).
	// Default: 16
	BlockRestartInterval int

	// BlockCacheBytes is the capacity of the shared block cache. It is
	// defaulted but not read; Open creates the table cache with
	// table.DefaultTableCacheOptions.
	// Default: 8MB
	BlockCacheBytes int64

	// ChecksumType specifies the checksum algorithm for SST files. It is
	// not passed to the table builder, which always writes CRC32C block
	// trailers.
	// Default: CRC32C
	ChecksumType ChecksumType

	// FormatVersion is the SST file format version. It is defaulted but not
	// passed to the table builder.
	FormatVersion uint32

	// PrefixExtractor extracts prefixes from keys for prefix-based operations.
	// When set, iterators use it for prefix seek, so iteration within a
	// prefix can stop once the prefix changes. The table builder does not
	// receive it: bloom filters are built over whole keys either way.
	// If nil, no prefix optimization is used.
	PrefixExtractor PrefixExtractor

	// Level0FileNumCompactionTrigger is the number of files in level-0 that
	// triggers compaction to level-1.
	// Default: 4
	Level0FileNumCompactionTrigger int

	// MaxBytesForLevelBase is the maximum total data size for level-1.
	// Default: 256MB
	MaxBytesForLevelBase int64

	// BloomFilterBitsPerKey is the number of bits per key for bloom filters.
	// WithDefaults replaces 0 with the default. The value is not passed to
	// the table builder, which builds filters with 10 bits per key.
	// Default: 10
	BloomFilterBitsPerKey int

	// Level0SlowdownWritesTrigger is the number of L0 files that triggers
	// write slowdown. When L0 file count exceeds this, writes are delayed.
	Level0SlowdownWritesTrigger int

	// Level0StopWritesTrigger is the number of L0 files that stops writes.
	// Default: 12
	Level0StopWritesTrigger int

	// DisableAutoCompactions disables background compaction.
	DisableAutoCompactions bool

	// CompactionStyle specifies the compaction strategy.
	// Default: CompactionStyleLevel
	CompactionStyle CompactionStyle

	// MaxLevels is the number of levels setting. It is defaulted and
	// validated but not passed to the version set or the compaction picker.
	// Default: 7
	MaxLevels int

	// LevelSizeMultiplier is the size growth factor setting. It is defaulted
	// but not passed to the compaction picker.
	// Default: 10
	LevelSizeMultiplier float64

	// RateLimiter controls the rate of background I/O operations.
	// If nil, no rate limiting is applied.
	RateLimiter RateLimiter

	// Compression specifies the compression algorithm for SST blocks. It is
	// not passed to the table builder: SST blocks are written uncompressed.
	// Default: CompressionNone
	Compression CompressionType

	// Logger receives operational log messages.
	// If nil, a default logger writing to stderr is used.
	Logger Logger
}

// WithDefaults returns a copy of opts with zero-valued fields replaced by
// their defaults. It never mutates opts.
func (opts Options) WithDefaults() Options {
	d := DefaultOptions()
	if opts.WriteBufferSize <= 0 {
		opts.WriteBufferSize = d.WriteBufferSize
	}
	if opts.MaxWriteBufferNumber <= 0 {
		opts.MaxWriteBufferNumber = d.MaxWriteBufferNumber
	}
	if opts.MaxOpenFiles <= 0 {
		opts.MaxOpenFiles = d.MaxOpenFiles
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = d.BlockSize
	}
	if opts.BlockRestartInterval <= 0 {
		opts.BlockRestartInterval = d.BlockRestartInterval
	}
	if opts.BlockCacheBytes <= 0 {
		opts.BlockCacheBytes = d.BlockCacheBytes
	}
	if opts.FormatVersion == 0 {
		opts.FormatVersion = d.FormatVersion
	}
	if opts.Level0FileNumCompactionTrigger <= 0 {
		opts.Level0FileNumCompactionTrigger = d.Level0FileNumCompactionTrigger
	}
	if opts.MaxBytesForLevelBase <= 0 {
		opts.MaxBytesForLevelBase = d.MaxBytesForLevelBase
	}
	if opts.Level0SlowdownWritesTrigger <= 0 {
		opts.Level0SlowdownWritesTrigger = d.Level0SlowdownWritesTrigger
	}
	if opts.Level0StopWritesTrigger <= 0 {
		opts.Level0StopWritesTrigger = d.Level0StopWritesTrigger
	}
	if opts.MaxLevels <= 0 {
		opts.MaxLevels = d.MaxLevels
	}
	if opts.LevelSizeMultiplier <= 0 {
		opts.LevelSizeMultiplier = d.LevelSizeMultiplier
	}
	if opts.BloomFilterBitsPerKey == 0 {
		opts.BloomFilterBitsPerKey = d.BloomFilterBitsPerKey
	}
	if opts.Comparator == nil {
		opts.Comparator = DefaultComparator()
	}
	return opts
}

// Validate reports whether opts describes a well-formed configuration.
func (opts Options) Validate() error {
	if opts.WriteBufferSize < 0 {
		return fmt.Errorf("%w: WriteBufferSize must be >= 0", ErrInvalidOptions)
	}
	if opts.Level0StopWritesTrigger > 0 && opts.Level0FileNumCompactionTrigger > 0 &&
		opts.Level0StopWritesTrigger < opts.Level0FileNumCompactionTrigger {
		return fmt.Errorf("%w: Level0StopWritesTrigger must be >= Level0FileNumCompactionTrigger", ErrInvalidOptions)
	}
	if opts.MaxLevels < 0 {
		return fmt.Errorf("%w: MaxLevels must be >= 0", ErrInvalidOptions)
	}
	return nil
}

// DefaultOptions returns a new Options with default values.
func DefaultOptions() *Options {
	return &Options{
		CreateIfMissing:                false,
		ErrorIfExists:                  false,
		ParanoidChecks:                 false,
		WriteBufferSize:                4 * 1024 * 1024, // 4MiB
		MaxWriteBufferNumber:           2,
		MaxOpenFiles:                   1000,
		BlockSize:                      4096,
		BlockRestartInterval:           16,
		BlockCacheBytes:                8 * 1024 * 1024, // 8MiB
		ChecksumType:                   ChecksumTypeCRC32C,
		FormatVersion:                  3,
		Level0FileNumCompactionTrigger: 4,
		MaxBytesForLevelBase:           256 * 1024 * 1024, // 256MB
		BloomFilterBitsPerKey:          10,
		Level0SlowdownWritesTrigger:    8,
		Level0StopWritesTrigger:        12,
		DisableAutoCompactions:         false,
		CompactionStyle:                CompactionStyleLevel,
		MaxLevels:                      7,
		LevelSizeMultiplier:            10,
	}
}

// ReadOptions contains options for read operations.
type ReadOptions struct {
	// VerifyChecksums enables checksum verification when reading.
	VerifyChecksums bool

	// FillCache indicates whether to fill the block cache on reads.
	FillCache bool

	// Snapshot provides a consistent view of the database.
	// If nil, the most recent state is used.
	Snapshot *Snapshot

	// TotalOrderSeek enables total order seek.
	// When true, prefix bloom filters are bypassed and all keys are considered.
	TotalOrderSeek bool

	// PrefixSameAsStart optimizes iteration when the caller knows the
	// iteration will stay within the prefix of the initial Seek key.
	PrefixSameAsStart bool

	// IterateUpperBound sets an upper bound for iteration.
	IterateUpperBound []byte

	// IterateLowerBound sets a lower bound for iteration.
	IterateLowerBound []byte
}

// DefaultReadOptions returns ReadOptions with default values.
func DefaultReadOptions() *ReadOptions {
	return &ReadOptions{
		VerifyChecksums: true,
		FillCache:       true,
	}
}

// WriteOptions contains options for write operations.
type WriteOptions struct {
	// Sync causes writes to be flushed to the WAL and fsynced before returning.
	Sync bool

	// DisableWAL disables the write-ahead log for this write.
	//
	// WARNING: with DisableWAL=true, writes go directly to the memtable. If
	// the process crashes before Flush is called, data is lost. Call Flush
	// explicitly before shutdown to persist unflushed data.
	DisableWAL bool
}

// DefaultWriteOptions returns WriteOptions with default values.
func DefaultWriteOptions() *WriteOptions {
	return &WriteOptions{}
}

// FlushOptions contains options for flush operations.
type FlushOptions struct {
	// Wait indicates whether to wait for the flush to complete.
	Wait bool

	// AllowWriteStall indicates whether to allow write stalls during flush.
	AllowWriteStall bool
}

// DefaultFlushOptions returns FlushOptions with default values.
func DefaultFlushOptions() *FlushOptions {
	return &FlushOptions{
		Wait: true,
	}
}
