// Package wal implements the write-ahead log: a flat sequence of
// self-describing, checksummed records appended before each write is
// applied to the memtable.
//
// Record format (all integers little-endian):
//
//	length   u32  bytes following this field
//	crc32c   u32  checksum over every byte after this field
//	type     u8   dbformat.ValueType (TypeValue or TypeDeletion)
//	sequence u64  sequence number assigned to this write
//	key_len  u32
//	key      []byte
//	value_len u32 (0 for deletions)
//	value    []byte
package wal

import (
	"github.com/kvforge/rockyardkv/internal/dbformat"
)

// HeaderSize is the size of the length+crc32c prefix preceding the
// checksummed body of a record.
const HeaderSize = 4 + 4

// minBodySize is the smallest possible checksummed body: type + sequence +
// key_len + value_len, with empty key and value.
const minBodySize = 1 + 8 + 4 + 4

// Record is a single logical write recorded in the log.
type Record struct {
	Sequence dbformat.SequenceNumber
	Type     dbformat.ValueType
	Key      []byte
	Value    []byte
}
