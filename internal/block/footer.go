// footer.go implements the fixed-size SSTable footer: pointers to the index,
// filter, and properties blocks, the file's sequence-number bounds, and a
// magic number identifying the file as one of ours.
package block

import (
	"github.com/kvforge/rockyardkv/internal/compression"
	"github.com/kvforge/rockyardkv/internal/encoding"
)

// TableMagicNumber identifies a valid SSTable file. It has no meaning
// beyond distinguishing our files from garbage or foreign formats.
const TableMagicNumber uint64 = 0x88e241b785f4cff7

// MagicNumberLength is the length of the magic number in bytes.
const MagicNumberLength = 8

// FormatVersion is the only footer layout this package produces. It is
// carried on disk so a future incompatible layout change can be detected
// on open rather than misread.
const FormatVersion uint32 = 1

// EncodedLength is the fixed size of an encoded footer: three 12-byte
// handles, two 8-byte sequence bounds, a 4-byte format version, an 8-byte
// magic number, and a 1-byte compression-type tag governing every data
// block in the file.
//
//	index_handle(12) + filter_handle(12) + properties_handle(12) +
//	  min_seq(8) + max_seq(8) + format_version(4) + magic(8) +
//	  compression_type(1) = 65
const EncodedLength = 3*FixedEncodedLength + 8 + 8 + 4 + MagicNumberLength + 1

// Footer is the fixed trailer written at the end of every SSTable file.
type Footer struct {
	IndexHandle      Handle
	FilterHandle     Handle
	PropertiesHandle Handle
	MinSeq           uint64
	MaxSeq           uint64
	FormatVersion    uint32
	Compression      compression.Type
	TableMagicNumber uint64
}

// EncodeTo appends the footer's fixed-size encoding to dst.
func (f *Footer) EncodeTo(dst []byte) []byte {
	dst = f.IndexHandle.EncodeFixedTo(dst)
	dst = f.FilterHandle.EncodeFixedTo(dst)
	dst = f.PropertiesHandle.EncodeFixedTo(dst)
	dst = encoding.AppendFixed64(dst, f.MinSeq)
	dst = encoding.AppendFixed64(dst, f.MaxSeq)
	dst = encoding.AppendFixed32(dst, f.FormatVersion)
	dst = encoding.AppendFixed64(dst, f.TableMagicNumber)
	dst = append(dst, byte(f.Compression))
	return dst
}

// DecodeFooter decodes a footer from the trailing EncodedLength bytes of an
// SSTable file. Any length or magic-number mismatch is reported as
// ErrBadBlockFooter, the signal callers use to treat the file as corrupt.
func DecodeFooter(data []byte) (*Footer, error) {
	if len(data) != EncodedLength {
		return nil, ErrBadBlockFooter
	}

	indexHandle, err := DecodeFixedHandle(data[0:])
	if err != nil {
		return nil, ErrBadBlockFooter
	}
	filterHandle, err := DecodeFixedHandle(data[FixedEncodedLength:])
	if err != nil {
		return nil, ErrBadBlockFooter
	}
	propertiesHandle, err := DecodeFixedHandle(data[2*FixedEncodedLength:])
	if err != nil {
		return nil, ErrBadBlockFooter
	}

	cur := 3 * FixedEncodedLength
	minSeq := encoding.DecodeFixed64(data[cur : cur+8])
	cur += 8
	maxSeq := encoding.DecodeFixed64(data[cur : cur+8])
	cur += 8
	formatVersion := encoding.DecodeFixed32(data[cur : cur+4])
	cur += 4
	magic := encoding.DecodeFixed64(data[cur : cur+8])
	cur += 8
	compressionType := compression.Type(data[cur])

	if magic != TableMagicNumber {
		return nil, ErrBadBlockFooter
	}
	if formatVersion > FormatVersion {
		return nil, ErrBadBlockFooter
	}

	return &Footer{
		IndexHandle:      indexHandle,
		FilterHandle:     filterHandle,
		PropertiesHandle: propertiesHandle,
		MinSeq:           minSeq,
		MaxSeq:           maxSeq,
		FormatVersion:    formatVersion,
		Compression:      compressionType,
		TableMagicNumber: magic,
	}, nil
}
