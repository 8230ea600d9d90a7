package block

import (
	"bytes"
	"testing"
)

// TestGoldenBlockHandleFormat pins the varint encoding of block handles used
// inside index entries.
func TestGoldenBlockHandleFormat(t *testing.T) {
	testCases := []struct {
		name     string
		offset   uint64
		size     uint64
		expected []byte
	}{
		{
			name:     "zero handle",
			offset:   0,
			size:     0,
			expected: []byte{0x00, 0x00},
		},
		{
			name:     "small values",
			offset:   100,
			size:     50,
			expected: []byte{0x64, 0x32},
		},
		{
			name:     "larger values",
			offset:   1000,
			size:     500,
			expected: []byte{0xe8, 0x07, 0xf4, 0x03},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := Handle{Offset: tc.offset, Size: tc.size}
			encoded := h.EncodeToSlice()

			if !bytes.Equal(encoded, tc.expected) {
				t.Errorf("Handle{%d, %d}.EncodeToSlice() = %x, want %x",
					tc.offset, tc.size, encoded, tc.expected)
			}

			decoded, remaining, err := DecodeHandle(encoded)
			if err != nil {
				t.Fatalf("DecodeHandle failed: %v", err)
			}
			if len(remaining) != 0 {
				t.Errorf("DecodeHandle left %d bytes unconsumed", len(remaining))
			}
			if decoded.Offset != tc.offset || decoded.Size != tc.size {
				t.Errorf("DecodeHandle = {%d, %d}, want {%d, %d}",
					decoded.Offset, decoded.Size, tc.offset, tc.size)
			}
		})
	}
}

// TestGoldenFixedHandleFormat pins the fixed-width handle encoding used in
// the footer: 8-byte offset, 4-byte size.
func TestGoldenFixedHandleFormat(t *testing.T) {
	h := Handle{Offset: 0x0102030405060708, Size: 0x090a0b0c}
	encoded := h.EncodeFixedTo(nil)
	if len(encoded) != FixedEncodedLength {
		t.Fatalf("fixed handle length = %d, want %d", len(encoded), FixedEncodedLength)
	}
	decoded, err := DecodeFixedHandle(encoded)
	if err != nil {
		t.Fatalf("DecodeFixedHandle: %v", err)
	}
	if decoded != h {
		t.Errorf("DecodeFixedHandle = %+v, want %+v", decoded, h)
	}
}

// TestGoldenBlockFooterSize pins the fixed footer layout size.
func TestGoldenBlockFooterSize(t *testing.T) {
	if EncodedLength != 65 {
		t.Errorf("EncodedLength = %d, want 65", EncodedLength)
	}
	if MagicNumberLength != 8 {
		t.Errorf("MagicNumberLength = %d, want 8", MagicNumberLength)
	}
}

// TestGoldenBlockBuilderFormat tests block builder output format.
func TestGoldenBlockBuilderFormat(t *testing.T) {
	builder := NewBuilder(2) // restart interval = 2

	builder.Add([]byte("key1"), []byte("val1"))
	builder.Add([]byte("key2"), []byte("val2"))
	builder.Add([]byte("key3"), []byte("val3"))

	data := builder.Finish()

	block, err := NewBlock(data)
	if err != nil {
		t.Fatalf("NewBlock failed: %v", err)
	}

	iter := block.NewIterator()
	iter.SeekToFirst()

	expected := []struct {
		key   string
		value string
	}{
		{"key1", "val1"},
		{"key2", "val2"},
		{"key3", "val3"},
	}

	for i, exp := range expected {
		if !iter.Valid() {
			t.Fatalf("Iterator not valid at entry %d", i)
		}
		if string(iter.Key()) != exp.key {
			t.Errorf("Entry %d key = %q, want %q", i, iter.Key(), exp.key)
		}
		if string(iter.Value()) != exp.value {
			t.Errorf("Entry %d value = %q, want %q", i, iter.Value(), exp.value)
		}
		iter.Next()
	}

	if iter.Valid() {
		t.Error("Iterator still valid after last entry")
	}
}
