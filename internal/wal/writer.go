// writer.go implements WAL record serialization.
package wal

import (
	"io"

	"github.com/kvforge/rockyardkv/internal/checksum"
	"github.com/kvforge/rockyardkv/internal/encoding"
)

// Writer appends records to a WAL file.
type Writer struct {
	dest   io.Writer
	offset int64
}

// NewWriter creates a WAL writer appending to dest.
func NewWriter(dest io.Writer) *Writer {
	return &Writer{dest: dest}
}

// AddRecord serializes and appends a record, returning the number of bytes
// written.
func (w *Writer) AddRecord(rec Record) (int, error) {
	bodyLen := minBodySize + len(rec.Key) + len(rec.Value)
	buf := make([]byte, HeaderSize+bodyLen)

	body := buf[HeaderSize:]
	body[0] = byte(rec.Type)
	encoding.EncodeFixed64(body[1:9], uint64(rec.Sequence))
	encoding.EncodeFixed32(body[9:13], uint32(len(rec.Key)))
	n := 13
	copy(body[n:], rec.Key)
	n += len(rec.Key)
	encoding.EncodeFixed32(body[n:n+4], uint32(len(rec.Value)))
	n += 4
	copy(body[n:], rec.Value)

	encoding.EncodeFixed32(buf[0:4], uint32(bodyLen))
	crc := checksum.MaskedValue(body)
	encoding.EncodeFixed32(buf[4:8], crc)

	written, err := w.dest.Write(buf)
	w.offset += int64(written)
	return written, err
}

// Offset returns the number of bytes written so far.
func (w *Writer) Offset() int64 {
	return w.offset
}

// Sync flushes the underlying writer if it supports it.
func (w *Writer) Sync() error {
	if syncer, ok := w.dest.(interface{ Sync() error }); ok {
		return syncer.Sync()
	}
	return nil
}
