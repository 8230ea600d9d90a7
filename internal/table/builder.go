// Package table provides SSTable file reading and writing: a sequence of
// prefix-compressed data blocks plus a filter block, an index block, and a
// fixed-size footer tying them together.
package table

import (
	"encoding/binary"
	"errors"
	"io"
	"sort"

	"github.com/kvforge/rockyardkv/internal/block"
	"github.com/kvforge/rockyardkv/internal/checksum"
	"github.com/kvforge/rockyardkv/internal/compression"
	"github.com/kvforge/rockyardkv/internal/dbformat"
	"github.com/kvforge/rockyardkv/internal/encoding"
	"github.com/kvforge/rockyardkv/internal/filter"
)

// blockTrailerSize is the per-block trailer: compression type (1 byte) +
// CRC32C checksum (4 bytes).
const blockTrailerSize = 5

// BuilderOptions configures the TableBuilder.
type BuilderOptions struct {
	// BlockSize is the target size for data blocks (default: 4KB).
	BlockSize int

	// BlockRestartInterval is the number of keys between restart points (default: 16).
	BlockRestartInterval int

	// ComparatorName is the name of the key comparator, written into the
	// properties block so a reopen can detect a mismatched comparator.
	ComparatorName string

	// FilterBitsPerKey controls Bloom filter accuracy (default: 10 = ~1% FP rate).
	// Set to 0 to disable the filter.
	FilterBitsPerKey int

	// Compression is the compression type applied uniformly to every data
	// block in the file.
	Compression compression.Type
}

// DefaultBuilderOptions returns default options for TableBuilder.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		BlockSize:            4096,
		BlockRestartInterval: 16,
		ComparatorName:       "bytewise",
		FilterBitsPerKey:     10,
		Compression:          compression.NoCompression,
	}
}

// TableBuilder builds SSTable files in the block-based format.
type TableBuilder struct {
	writer  io.Writer
	options BuilderOptions

	dataBlock     *block.Builder
	indexBlock    *block.Builder
	filterBuilder *filter.BloomFilterBuilder

	// Pending index entry for the last flushed data block.
	pendingIndexEntry bool
	pendingHandle     block.Handle
	lastKey           []byte

	offset uint64

	numEntries    uint64
	numDataBlocks uint64
	rawKeySize    uint64
	rawValueSize  uint64
	dataSize      uint64
	indexSize     uint64
	filterSize    uint64

	minSeq uint64
	maxSeq uint64

	finished bool
	err      error
}

// NewTableBuilder creates a new TableBuilder that writes to w.
func NewTableBuilder(w io.Writer, opts BuilderOptions) *TableBuilder {
	if opts.BlockSize <= 0 {
		opts.BlockSize = 4096
	}
	if opts.BlockRestartInterval <= 0 {
		opts.BlockRestartInterval = 16
	}
	if opts.ComparatorName == "" {
		opts.ComparatorName = "bytewise"
	}

	tb := &TableBuilder{
		writer:     w,
		options:    opts,
		dataBlock:  block.NewBuilder(opts.BlockRestartInterval),
		indexBlock: block.NewBuilder(1),
		minSeq:     ^uint64(0),
	}

	if opts.FilterBitsPerKey > 0 {
		tb.filterBuilder = filter.NewBloomFilterBuilder(opts.FilterBitsPerKey)
	}

	return tb
}

// Add adds an internal key-value pair to the table. key is an internal key
// (user key plus the 8-byte sequence/type trailer); keys must be added in
// ascending internal-key order.
func (tb *TableBuilder) Add(key, value []byte) error {
	if tb.finished {
		return errors.New("table: builder already finished")
	}
	if tb.err != nil {
		return tb.err
	}

	if tb.pendingIndexEntry {
		tb.indexBlock.Add(tb.lastKey, tb.pendingHandle.EncodeToSlice())
		tb.pendingIndexEntry = false
	}

	tb.dataBlock.Add(key, value)
	tb.numEntries++
	tb.rawKeySize += uint64(len(key))
	tb.rawValueSize += uint64(len(value))

	userKey := key
	if parsed, err := dbformat.ParseInternalKey(key); err == nil {
		userKey = parsed.UserKey
		seq := uint64(parsed.Sequence)
		if seq < tb.minSeq {
			tb.minSeq = seq
		}
		if seq > tb.maxSeq {
			tb.maxSeq = seq
		}
	}

	if tb.filterBuilder != nil {
		tb.filterBuilder.AddKey(userKey)
	}

	tb.lastKey = append(tb.lastKey[:0], key...)

	if tb.dataBlock.EstimatedSize() >= tb.options.BlockSize {
		if err := tb.flushDataBlock(); err != nil {
			tb.err = err
			return err
		}
	}

	return nil
}

func (tb *TableBuilder) flushDataBlock() error {
	if tb.dataBlock.Empty() {
		return nil
	}

	blockContents := tb.dataBlock.Finish()

	handle, err := tb.writeBlockWithTrailer(blockContents)
	if err != nil {
		return err
	}

	tb.dataSize += handle.Size
	tb.numDataBlocks++

	tb.pendingHandle = handle
	tb.pendingIndexEntry = true

	tb.dataBlock.Reset()

	return nil
}

// writeBlockWithTrailer writes a block with its trailer (compression type +
// checksum), returning the handle (offset, size) of the written block.
func (tb *TableBuilder) writeBlockWithTrailer(blockData []byte) (block.Handle, error) {
	compressedData := blockData
	compressionType := compression.NoCompression

	if tb.options.Compression != compression.NoCompression {
		compressed, err := compression.Compress(tb.options.Compression, blockData)
		if err == nil && compressed != nil && len(compressed) < len(blockData) {
			compressedData = compressed
			compressionType = tb.options.Compression
		}
	}

	handle := block.Handle{
		Offset: tb.offset,
		Size:   uint64(len(compressedData)),
	}

	n, err := tb.writer.Write(compressedData)
	if err != nil {
		return block.Handle{}, err
	}
	tb.offset += uint64(n)

	trailer := make([]byte, blockTrailerSize)
	trailer[0] = byte(compressionType)
	cksum := checksum.ComputeCRC32CChecksumWithLastByte(compressedData, trailer[0])
	binary.LittleEndian.PutUint32(trailer[1:], cksum)

	n, err = tb.writer.Write(trailer)
	if err != nil {
		return block.Handle{}, err
	}
	tb.offset += uint64(n)

	return handle, nil
}

// Finish finalizes the table: flushes the trailing data block, writes the
// filter, properties, and index blocks, and appends the footer. After
// Finish the builder must not be reused.
func (tb *TableBuilder) Finish() error {
	if tb.finished {
		return errors.New("table: builder already finished")
	}
	if tb.err != nil {
		return tb.err
	}
	tb.finished = true

	if err := tb.flushDataBlock(); err != nil {
		tb.err = err
		return err
	}

	if tb.pendingIndexEntry {
		tb.indexBlock.Add(tb.lastKey, tb.pendingHandle.EncodeToSlice())
		tb.pendingIndexEntry = false
	}

	var filterHandle block.Handle
	if tb.filterBuilder != nil && tb.filterBuilder.NumKeys() > 0 {
		var err error
		filterHandle, err = tb.writeFilterBlock()
		if err != nil {
			tb.err = err
			return err
		}
	}

	propertiesHandle, err := tb.writePropertiesBlock()
	if err != nil {
		tb.err = err
		return err
	}

	indexContents := tb.indexBlock.Finish()
	indexHandle, err := tb.writeBlockWithTrailer(indexContents)
	if err != nil {
		tb.err = err
		return err
	}
	tb.indexSize = indexHandle.Size

	if err := tb.writeFooter(indexHandle, filterHandle, propertiesHandle); err != nil {
		tb.err = err
		return err
	}

	return nil
}

func (tb *TableBuilder) writeFilterBlock() (block.Handle, error) {
	filterData := tb.filterBuilder.Finish()
	tb.filterSize = uint64(len(filterData))

	handle := block.Handle{Offset: tb.offset, Size: uint64(len(filterData))}

	n, err := tb.writer.Write(filterData)
	if err != nil {
		return block.Handle{}, err
	}
	tb.offset += uint64(n)

	trailer := make([]byte, blockTrailerSize)
	trailer[0] = byte(compression.NoCompression)
	cksum := checksum.ComputeCRC32CChecksumWithLastByte(filterData, trailer[0])
	binary.LittleEndian.PutUint32(trailer[1:], cksum)

	n, err = tb.writer.Write(trailer)
	if err != nil {
		return block.Handle{}, err
	}
	tb.offset += uint64(n)

	return handle, nil
}

func (tb *TableBuilder) writePropertiesBlock() (block.Handle, error) {
	type prop struct {
		name  string
		value []byte
	}
	var properties []prop

	addUint64Prop := func(name string, value uint64) {
		buf := make([]byte, encoding.MaxVarintLen64)
		n := encoding.PutVarint64(buf, value)
		properties = append(properties, prop{name: name, value: buf[:n]})
	}
	addStringProp := func(name string, value string) {
		properties = append(properties, prop{name: name, value: []byte(value)})
	}

	addStringProp(PropComparator, tb.options.ComparatorName)
	addStringProp(PropCompression, tb.options.Compression.String())
	addUint64Prop(PropDataSize, tb.dataSize)
	addUint64Prop(PropFilterSize, tb.filterSize)
	addUint64Prop(PropIndexSize, tb.indexSize)
	addUint64Prop(PropNumDataBlocks, tb.numDataBlocks)
	addUint64Prop(PropNumEntries, tb.numEntries)
	addUint64Prop(PropRawKeySize, tb.rawKeySize)
	addUint64Prop(PropRawValueSize, tb.rawValueSize)

	sort.Slice(properties, func(i, j int) bool { return properties[i].name < properties[j].name })

	props := block.NewBuilder(1)
	for _, p := range properties {
		props.Add([]byte(p.name), p.value)
	}

	propsContents := props.Finish()
	return tb.writeBlockWithTrailer(propsContents)
}

func (tb *TableBuilder) writeFooter(indexHandle, filterHandle, propertiesHandle block.Handle) error {
	if tb.minSeq == ^uint64(0) {
		tb.minSeq = 0
	}

	footer := &block.Footer{
		IndexHandle:      indexHandle,
		FilterHandle:     filterHandle,
		PropertiesHandle: propertiesHandle,
		MinSeq:           tb.minSeq,
		MaxSeq:           tb.maxSeq,
		FormatVersion:    block.FormatVersion,
		Compression:      tb.options.Compression,
		TableMagicNumber: block.TableMagicNumber,
	}

	footerData := footer.EncodeTo(nil)
	_, err := tb.writer.Write(footerData)
	if err != nil {
		return err
	}
	tb.offset += uint64(len(footerData))

	return nil
}

// Abandon abandons the table being built. After calling Abandon, the
// TableBuilder should not be used.
func (tb *TableBuilder) Abandon() {
	tb.finished = true
}

// NumEntries returns the number of entries added so far.
func (tb *TableBuilder) NumEntries() uint64 {
	return tb.numEntries
}

// FileSize returns the size of the file generated so far.
func (tb *TableBuilder) FileSize() uint64 {
	return tb.offset
}

// Status returns any error encountered during building.
func (tb *TableBuilder) Status() error {
	return tb.err
}
