// reader.go implements sequential WAL record replay.
package wal

import (
	"errors"
	"io"

	"github.com/kvforge/rockyardkv/internal/checksum"
	"github.com/kvforge/rockyardkv/internal/dbformat"
	"github.com/kvforge/rockyardkv/internal/encoding"
)

var (
	// ErrCorruptedRecord indicates a record with an invalid checksum.
	ErrCorruptedRecord = errors.New("wal: corrupted record (bad checksum)")

	// ErrShortRecord indicates a record truncated before its declared length.
	ErrShortRecord = errors.New("wal: short record")
)

// Reader replays records from a WAL file in order.
//
// Any CRC mismatch or truncated header is treated as the crash point: the
// reader stops there and returns ErrCorruptedRecord/ErrShortRecord, and the
// caller discards everything from that point on rather than treating it as
// a hard failure.
type Reader struct {
	src io.Reader
	buf []byte // unconsumed bytes read from src
	eof bool
}

// NewReader creates a reader replaying records from src.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src}
}

// ReadRecord returns the next record, or io.EOF when the log is exhausted
// cleanly. A corrupted or truncated record at the tail is reported once via
// ErrCorruptedRecord/ErrShortRecord and then the reader reports io.EOF on
// every subsequent call.
func (r *Reader) ReadRecord() (*Record, error) {
	header, err := r.fill(HeaderSize)
	if err != nil {
		return nil, err
	}

	bodyLen := int(encoding.DecodeFixed32(header[0:4]))
	crcStored := encoding.DecodeFixed32(header[4:8])

	if bodyLen < minBodySize {
		r.buf = nil
		r.eof = true
		return nil, ErrShortRecord
	}

	body, err := r.fillAfter(HeaderSize, bodyLen)
	if err != nil {
		r.buf = nil
		r.eof = true
		if errors.Is(err, io.EOF) {
			return nil, ErrShortRecord
		}
		return nil, err
	}

	if checksum.MaskedValue(body) != crcStored {
		r.buf = nil
		r.eof = true
		return nil, ErrCorruptedRecord
	}

	rec, err := decodeBody(body)
	r.consume(HeaderSize + bodyLen)
	return rec, err
}

func decodeBody(body []byte) (*Record, error) {
	if len(body) < minBodySize {
		return nil, ErrShortRecord
	}
	typ := dbformat.ValueType(body[0])
	seq := dbformat.SequenceNumber(encoding.DecodeFixed64(body[1:9]))
	keyLen := int(encoding.DecodeFixed32(body[9:13]))
	n := 13
	if n+keyLen+4 > len(body) {
		return nil, ErrShortRecord
	}
	key := body[n : n+keyLen]
	n += keyLen
	valueLen := int(encoding.DecodeFixed32(body[n : n+4]))
	n += 4
	if n+valueLen != len(body) {
		return nil, ErrShortRecord
	}
	value := body[n : n+valueLen]

	return &Record{
		Sequence: seq,
		Type:     typ,
		Key:      append([]byte(nil), key...),
		Value:    append([]byte(nil), value...),
	}, nil
}

// fill ensures at least n bytes are buffered, reading from src as needed,
// and returns them without consuming.
func (r *Reader) fill(n int) ([]byte, error) {
	return r.fillAfter(0, n)
}

// fillAfter ensures at least offset+n bytes are buffered and returns the
// slice [offset:offset+n].
func (r *Reader) fillAfter(offset, n int) ([]byte, error) {
	need := offset + n
	for len(r.buf) < need {
		if r.eof {
			return nil, io.EOF
		}
		chunk := make([]byte, 4096)
		read, err := r.src.Read(chunk)
		if read > 0 {
			r.buf = append(r.buf, chunk[:read]...)
		}
		if err != nil {
			r.eof = true
			if !errors.Is(err, io.EOF) {
				return nil, err
			}
		}
	}
	return r.buf[offset:need], nil
}

// consume drops the first n bytes of the buffer.
func (r *Reader) consume(n int) {
	r.buf = r.buf[n:]
}
