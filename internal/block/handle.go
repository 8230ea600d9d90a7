// Package block implements the on-disk block format used by SSTable files:
// entries, restart points, and the block handles and footer that tie them
// together.
//
// A data block holds a sequence of prefix-compressed key-value pairs:
//
//	entries: key-value pairs with prefix compression
//	restarts: uint32[num_restarts] - absolute offsets of restart points
//	num_restarts: uint32
//
// Each entry has the format:
//
//	shared_bytes: varint32 (shared prefix with the previous key)
//	unshared_bytes: varint32 (unshared key suffix length)
//	value_length: varint32
//	key_delta: char[unshared_bytes]
//	value: char[value_length]
package block

import (
	"errors"

	"github.com/kvforge/rockyardkv/internal/encoding"
)

// MaxVarint64Length is the maximum length of a varint64 encoding.
const MaxVarint64Length = 10

var (
	// ErrBadBlockHandle is returned when a block handle is corrupted.
	ErrBadBlockHandle = errors.New("block: bad block handle")

	// ErrBadBlockFooter is returned when a block footer is corrupted.
	ErrBadBlockFooter = errors.New("block: bad block footer")

	// ErrBadBlock is returned when a block is corrupted.
	ErrBadBlock = errors.New("block: corrupted block")
)

// Handle is a pointer to the extent of a file that stores a data, filter,
// or index block: an offset and a size.
type Handle struct {
	Offset uint64
	Size   uint64
}

// NullHandle is a block handle with offset=0 and size=0, representing "no block".
var NullHandle = Handle{Offset: 0, Size: 0}

// MaxEncodedLength is the maximum varint encoding length of a Handle.
const MaxEncodedLength = 2 * MaxVarint64Length

// FixedEncodedLength is the encoding length used inside the footer, where
// handles are fixed-width rather than varint-packed: an 8-byte offset and a
// 4-byte size.
const FixedEncodedLength = 8 + 4

// IsNull returns true if this is a null block handle.
func (h Handle) IsNull() bool {
	return h.Offset == 0 && h.Size == 0
}

// EncodeTo appends the varint encoding of h to dst. Used for index-block
// entries, where compactness matters more than fixed offsets.
func (h Handle) EncodeTo(dst []byte) []byte {
	dst = encoding.AppendVarint64(dst, h.Offset)
	dst = encoding.AppendVarint64(dst, h.Size)
	return dst
}

// EncodeToSlice encodes the handle into a new slice.
func (h Handle) EncodeToSlice() []byte {
	return h.EncodeTo(nil)
}

// EncodedLength returns the varint-encoded length of this handle.
func (h Handle) EncodedLength() int {
	return encoding.VarintLength(h.Offset) + encoding.VarintLength(h.Size)
}

// DecodeHandle decodes a varint-encoded block handle from data and returns
// the remaining bytes.
func DecodeHandle(data []byte) (Handle, []byte, error) {
	var h Handle

	offset, n1, err := encoding.DecodeVarint64(data)
	if err != nil {
		return Handle{}, nil, ErrBadBlockHandle
	}
	h.Offset = offset
	data = data[n1:]

	size, n2, err := encoding.DecodeVarint64(data)
	if err != nil {
		return Handle{}, nil, ErrBadBlockHandle
	}
	h.Size = size
	data = data[n2:]

	return h, data, nil
}

// DecodeHandleFrom decodes a varint-encoded block handle without returning
// remaining bytes.
func DecodeHandleFrom(data []byte) (Handle, error) {
	h, _, err := DecodeHandle(data)
	return h, err
}

// EncodeFixedTo appends the fixed-width footer encoding of h to dst.
func (h Handle) EncodeFixedTo(dst []byte) []byte {
	dst = encoding.AppendFixed64(dst, h.Offset)
	dst = encoding.AppendFixed32(dst, uint32(h.Size))
	return dst
}

// DecodeFixedHandle decodes a fixed-width footer handle from the first
// FixedEncodedLength bytes of data.
func DecodeFixedHandle(data []byte) (Handle, error) {
	if len(data) < FixedEncodedLength {
		return Handle{}, ErrBadBlockHandle
	}
	return Handle{
		Offset: encoding.DecodeFixed64(data[0:8]),
		Size:   uint64(encoding.DecodeFixed32(data[8:12])),
	}, nil
}
