package table

import (
	"errors"
	"fmt"
	"io"

	"github.com/kvforge/rockyardkv/internal/block"
	"github.com/kvforge/rockyardkv/internal/cache"
	"github.com/kvforge/rockyardkv/internal/checksum"
	"github.com/kvforge/rockyardkv/internal/compression"
	"github.com/kvforge/rockyardkv/internal/encoding"
	"github.com/kvforge/rockyardkv/internal/filter"
)

var (
	// ErrInvalidSST indicates the file is not a valid SST file.
	ErrInvalidSST = errors.New("table: invalid SST file")

	// ErrChecksumMismatch indicates a block checksum verification failed.
	ErrChecksumMismatch = errors.New("table: checksum mismatch")

	// ErrBlockNotFound indicates a requested block was not found.
	ErrBlockNotFound = errors.New("table: block not found")
)

// ReadableFile is an interface for reading from an SST file.
type ReadableFile interface {
	io.Closer

	// ReadAt reads len(p) bytes from the file starting at offset.
	ReadAt(p []byte, off int64) (n int, err error)

	// Size returns the total size of the file.
	Size() int64
}

// ReaderOptions controls the behavior of the table reader.
type ReaderOptions struct {
	// VerifyChecksums enables checksum verification for all blocks.
	VerifyChecksums bool
}

// Reader reads an SST file in the block-based table format.
type Reader struct {
	file    ReadableFile
	size    int64
	options ReaderOptions

	footer *block.Footer

	indexBlock *block.Block
	properties *TableProperties

	filterReader *filter.BloomFilterReader

	// fileNum and blockCache together key cached, decompressed data blocks so
	// repeated seeks against a hot file skip the ReadAt + decompress +
	// checksum path. blockCache may be nil, in which case every block read
	// goes straight to disk.
	fileNum    uint64
	blockCache cache.Cache
}

// Open opens an SST file for reading with no block cache.
func Open(file ReadableFile, opts ReaderOptions) (*Reader, error) {
	return OpenWithCache(file, opts, 0, nil)
}

// OpenWithCache opens an SST file for reading, routing data block reads
// through blockCache keyed by (fileNum, block offset). blockCache may be
// nil to disable block caching.
func OpenWithCache(file ReadableFile, opts ReaderOptions, fileNum uint64, blockCache cache.Cache) (*Reader, error) {
	size := file.Size()
	if size < int64(block.EncodedLength) {
		return nil, ErrInvalidSST
	}

	r := &Reader{
		file:       file,
		size:       size,
		options:    opts,
		fileNum:    fileNum,
		blockCache: blockCache,
	}

	if err := r.readFooter(); err != nil {
		return nil, err
	}

	if err := r.readIndex(); err != nil {
		return nil, err
	}

	if err := r.readFilter(); err != nil {
		// A missing or corrupt filter is not fatal; reads just skip the
		// may-match check and fall through to the data blocks.
		r.filterReader = nil
	}

	return r, nil
}

// readFooter reads and parses the footer from the end of the file.
func (r *Reader) readFooter() error {
	buf := make([]byte, block.EncodedLength)
	offset := r.size - int64(block.EncodedLength)
	if _, err := r.file.ReadAt(buf, offset); err != nil {
		return err
	}

	footer, err := block.DecodeFooter(buf)
	if err != nil {
		return err
	}

	r.footer = footer
	return nil
}

// readIndex reads and caches the index block.
func (r *Reader) readIndex() error {
	if r.footer.IndexHandle.IsNull() {
		return ErrBlockNotFound
	}

	indexBlock, err := r.readBlock(r.footer.IndexHandle)
	if err != nil {
		return err
	}

	r.indexBlock = indexBlock
	return nil
}

// readFilter reads and caches the filter block if present.
func (r *Reader) readFilter() error {
	if r.footer.FilterHandle.IsNull() {
		return nil
	}

	filterBlock, err := r.readBlock(r.footer.FilterHandle)
	if err != nil {
		return err
	}

	r.filterReader = filter.NewBloomFilterReader(filterBlock.Data())
	return nil
}

// KeyMayMatch returns true if the key may be in this SST file. It returns
// false only when the filter definitively rules the key out.
func (r *Reader) KeyMayMatch(key []byte) bool {
	if r.filterReader == nil {
		return true
	}
	return r.filterReader.MayContain(key)
}

// HasFilter returns true if this table has a Bloom filter.
func (r *Reader) HasFilter() bool {
	return r.filterReader != nil
}

// maxBlockSize bounds the memory a single corrupted block handle can claim.
const maxBlockSize = 256 * 1024 * 1024

// readBlock reads, checksums, and decompresses a block from the file,
// consulting the reader's block cache first when one is configured.
func (r *Reader) readBlock(handle block.Handle) (*block.Block, error) {
	const maxInt64AsUint64 = ^uint64(0) >> 1
	if handle.Offset > maxInt64AsUint64 {
		return nil, fmt.Errorf("block offset %d exceeds maximum %d: %w", handle.Offset, maxInt64AsUint64, ErrInvalidSST)
	}
	if handle.Size > maxBlockSize {
		return nil, fmt.Errorf("block size %d exceeds maximum %d: %w", handle.Size, maxBlockSize, ErrInvalidSST)
	}

	var cacheKey cache.CacheKey
	if r.blockCache != nil {
		cacheKey = cache.CacheKey{FileNumber: r.fileNum, BlockOffset: handle.Offset}
		if h := r.blockCache.Lookup(cacheKey); h != nil {
			data := append([]byte(nil), h.Value()...)
			r.blockCache.Release(h)
			return block.NewBlock(data)
		}
	}

	totalSize := int(handle.Size) + blockTrailerSize
	end := handle.Offset + uint64(totalSize)
	if end < handle.Offset || end > uint64(r.size) {
		return nil, fmt.Errorf("block at offset %d size %d exceeds file size %d: %w",
			handle.Offset, totalSize, r.size, ErrInvalidSST)
	}

	buf := make([]byte, totalSize)
	n, err := r.file.ReadAt(buf, int64(handle.Offset))
	if err != nil {
		return nil, err
	}
	if n < totalSize {
		return nil, ErrInvalidSST
	}

	blockData := buf[:handle.Size]
	compressionType := compression.Type(buf[len(buf)-blockTrailerSize])
	storedChecksum := encoding.DecodeFixed32(buf[len(buf)-4:])

	if r.options.VerifyChecksums {
		computed := checksum.ComputeCRC32CChecksumWithLastByte(blockData, byte(compressionType))
		if computed != storedChecksum {
			return nil, ErrChecksumMismatch
		}
	}

	if compressionType != compression.NoCompression {
		decompressed, err := compression.Decompress(compressionType, blockData)
		if err != nil {
			return nil, fmt.Errorf("decompress block: %w", err)
		}
		blockData = decompressed
	}

	if r.blockCache != nil {
		h := r.blockCache.Insert(cacheKey, blockData, uint64(len(blockData)))
		r.blockCache.Release(h)
	}

	return block.NewBlock(blockData)
}

// NewIterator returns an iterator over the table contents. The iterator is
// initially invalid; call SeekToFirst or Seek before use.
func (r *Reader) NewIterator() *TableIterator {
	return &TableIterator{
		reader:    r,
		indexIter: r.indexBlock.NewIterator(),
	}
}

// Close releases resources associated with the reader.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Footer returns the parsed footer.
func (r *Reader) Footer() *block.Footer {
	return r.footer
}

// Properties returns the table properties, reading and parsing the
// properties block on first use. Readers that only need Get/Scan never
// pay this cost.
func (r *Reader) Properties() (*TableProperties, error) {
	if r.properties != nil {
		return r.properties, nil
	}

	if r.footer.PropertiesHandle.IsNull() {
		return nil, ErrBlockNotFound
	}

	propsBlock, err := r.readBlock(r.footer.PropertiesHandle)
	if err != nil {
		return nil, err
	}

	props, err := ParsePropertiesBlock(propsBlock.Data())
	if err != nil {
		return nil, err
	}

	r.properties = props
	return props, nil
}

// TableIterator iterates over key-value pairs in an SST file.
type TableIterator struct {
	reader    *Reader
	indexIter *block.Iterator
	dataBlock *block.Block
	dataIter  *block.Iterator
	err       error
}

// Valid returns true if the iterator is positioned at a valid entry.
func (it *TableIterator) Valid() bool {
	return it.err == nil && it.dataIter != nil && it.dataIter.Valid()
}

// SeekToFirst positions the iterator at the first entry.
func (it *TableIterator) SeekToFirst() {
	it.indexIter.SeekToFirst()
	it.loadDataBlock()
	if it.dataIter != nil {
		it.dataIter.SeekToFirst()
	}
}

// SeekToLast positions the iterator at the last entry.
func (it *TableIterator) SeekToLast() {
	it.indexIter.SeekToLast()
	it.loadDataBlock()
	if it.dataIter != nil {
		it.dataIter.SeekToLast()
	}
}

// Seek positions the iterator at the first entry with key >= target.
func (it *TableIterator) Seek(target []byte) {
	it.indexIter.Seek(target)
	if !it.indexIter.Valid() {
		it.dataIter = nil
		return
	}
	it.loadDataBlock()
	if it.dataIter != nil {
		it.dataIter.Seek(target)
	}
}

// Next moves to the next entry.
func (it *TableIterator) Next() {
	if it.dataIter == nil {
		return
	}
	it.dataIter.Next()
	if !it.dataIter.Valid() {
		it.indexIter.Next()
		it.loadDataBlock()
		if it.dataIter != nil {
			it.dataIter.SeekToFirst()
		}
	}
}

// Prev moves to the previous entry.
func (it *TableIterator) Prev() {
	if it.dataIter == nil {
		return
	}
	it.dataIter.Prev()
	if !it.dataIter.Valid() {
		it.indexIter.Prev()
		it.loadDataBlock()
		if it.dataIter != nil {
			it.dataIter.SeekToLast()
		}
	}
}

// Key returns the current key.
func (it *TableIterator) Key() []byte {
	if it.dataIter == nil {
		return nil
	}
	return it.dataIter.Key()
}

// Value returns the current value.
func (it *TableIterator) Value() []byte {
	if it.dataIter == nil {
		return nil
	}
	return it.dataIter.Value()
}

// Error returns any error encountered during iteration.
func (it *TableIterator) Error() error {
	if it.err != nil {
		return it.err
	}
	if it.dataIter != nil {
		return it.dataIter.Error()
	}
	return nil
}

// loadDataBlock loads the data block pointed to by the current index entry.
func (it *TableIterator) loadDataBlock() {
	if !it.indexIter.Valid() {
		it.dataBlock = nil
		it.dataIter = nil
		return
	}

	handle, _, err := block.DecodeHandle(it.indexIter.Value())
	if err != nil {
		it.err = err
		it.dataBlock = nil
		it.dataIter = nil
		return
	}

	dataBlock, err := it.reader.readBlock(handle)
	if err != nil {
		it.err = err
		it.dataBlock = nil
		it.dataIter = nil
		return
	}

	it.dataBlock = dataBlock
	it.dataIter = dataBlock.NewIterator()
}
