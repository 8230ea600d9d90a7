package table

import (
	"github.com/kvforge/rockyardkv/internal/block"
	"github.com/kvforge/rockyardkv/internal/encoding"
)

// Property name constants written by TableBuilder.
const (
	PropComparator    = "rockyardkv.comparator"
	PropCompression   = "rockyardkv.compression"
	PropDataSize      = "rockyardkv.data.size"
	PropFilterSize    = "rockyardkv.filter.size"
	PropIndexSize     = "rockyardkv.index.size"
	PropNumDataBlocks = "rockyardkv.num.data.blocks"
	PropNumEntries    = "rockyardkv.num.entries"
	PropRawKeySize    = "rockyardkv.raw.key.size"
	PropRawValueSize  = "rockyardkv.raw.value.size"
)

// TableProperties holds diagnostic metadata about an SST file, written
// once into a dedicated block when the file is built.
type TableProperties struct {
	DataSize      uint64
	FilterSize    uint64
	IndexSize     uint64
	NumDataBlocks uint64
	NumEntries    uint64
	RawKeySize    uint64
	RawValueSize  uint64

	ComparatorName  string
	CompressionName string

	// UserCollectedProperties holds any entry whose name isn't one of the
	// constants above, so forward-compatible readers don't drop data.
	UserCollectedProperties map[string]string
}

// ParsePropertiesBlock parses a properties block into TableProperties.
func ParsePropertiesBlock(data []byte) (*TableProperties, error) {
	blk, err := block.NewBlock(data)
	if err != nil {
		return nil, err
	}

	props := &TableProperties{
		UserCollectedProperties: make(map[string]string),
	}

	iter := blk.NewIterator()
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		key := string(iter.Key())
		value := iter.Value()

		if parseUint64Property(props, key, value) {
			continue
		}
		if parseStringProperty(props, key, value) {
			continue
		}
		props.UserCollectedProperties[key] = string(value)
	}
	if iter.Error() != nil {
		return nil, iter.Error()
	}

	return props, nil
}

func parseUint64Property(props *TableProperties, key string, value []byte) bool {
	var target *uint64

	switch key {
	case PropDataSize:
		target = &props.DataSize
	case PropFilterSize:
		target = &props.FilterSize
	case PropIndexSize:
		target = &props.IndexSize
	case PropNumDataBlocks:
		target = &props.NumDataBlocks
	case PropNumEntries:
		target = &props.NumEntries
	case PropRawKeySize:
		target = &props.RawKeySize
	case PropRawValueSize:
		target = &props.RawValueSize
	default:
		return false
	}

	v, _, err := encoding.DecodeVarint64(value)
	if err != nil {
		return false
	}
	*target = v
	return true
}

func parseStringProperty(props *TableProperties, key string, value []byte) bool {
	switch key {
	case PropComparator:
		props.ComparatorName = string(value)
	case PropCompression:
		props.CompressionName = string(value)
	default:
		return false
	}
	return true
}
