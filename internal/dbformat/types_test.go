package dbformat

import (
	"bytes"
	"errors"
	"testing"
)

func TestPackUnpackSequenceAndType(t *testing.T) {
	tests := []struct {
		name string
		seq  SequenceNumber
		typ  ValueType
	}{
		{"zero", 0, TypeDeletion},
		{"one_value", 1, TypeValue},
		{"max_seq", MaxSequenceNumber, TypeValue},
		{"mid_seq", 12345, TypeValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packed := PackSequenceAndType(tt.seq, tt.typ)
			gotSeq, gotType := UnpackSequenceAndType(packed)

			if gotSeq != tt.seq {
				t.Errorf("Sequence mismatch: got %d, want %d", gotSeq, tt.seq)
			}
			if gotType != tt.typ {
				t.Errorf("Type mismatch: got %d, want %d", gotType, tt.typ)
			}
		})
	}
}

func TestInternalKeyEncodeDecode(t *testing.T) {
	tests := []struct {
		name    string
		userKey []byte
		seq     SequenceNumber
		typ     ValueType
	}{
		{"empty_key", []byte{}, 0, TypeValue},
		{"simple", []byte("hello"), 1, TypeValue},
		{"binary_key", []byte{0x00, 0x01, 0xFF}, 12345, TypeValue},
		{"max_seq", []byte("test"), MaxSequenceNumber, TypeDeletion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := NewInternalKey(tt.userKey, tt.seq, tt.typ)

			expectedLen := len(tt.userKey) + NumInternalBytes
			if len(key) != expectedLen {
				t.Errorf("Key length = %d, want %d", len(key), expectedLen)
			}

			parsed, err := key.Parse()
			if err != nil {
				t.Fatalf("Parse error: %v", err)
			}

			if !bytes.Equal(parsed.UserKey, tt.userKey) {
				t.Errorf("UserKey mismatch: got %v, want %v", parsed.UserKey, tt.userKey)
			}
			if parsed.Sequence != tt.seq {
				t.Errorf("Sequence mismatch: got %d, want %d", parsed.Sequence, tt.seq)
			}
			if parsed.Type != tt.typ {
				t.Errorf("Type mismatch: got %d, want %d", parsed.Type, tt.typ)
			}

			if !bytes.Equal(key.UserKey(), tt.userKey) {
				t.Errorf("UserKey() mismatch")
			}
			if key.Sequence() != tt.seq {
				t.Errorf("Sequence() mismatch")
			}
			if key.Type() != tt.typ {
				t.Errorf("Type() mismatch")
			}
		})
	}
}

func TestInternalKeyValid(t *testing.T) {
	tests := []struct {
		name  string
		key   InternalKey
		valid bool
	}{
		{"valid_simple", NewInternalKey([]byte("test"), 1, TypeValue), true},
		{"valid_empty_user_key", NewInternalKey([]byte{}, 0, TypeValue), true},
		{"too_short", InternalKey([]byte{0, 1, 2}), false},
		{"empty", InternalKey([]byte{}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestParseInternalKeyErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty", []byte{}, ErrKeyTooSmall},
		{"too_short_1", []byte{0x00}, ErrKeyTooSmall},
		{"too_short_7", []byte{0, 1, 2, 3, 4, 5, 6}, ErrKeyTooSmall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseInternalKey(tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseInternalKey error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsValueType(t *testing.T) {
	for _, vt := range []ValueType{TypeDeletion, TypeValue} {
		if !IsValueType(vt) {
			t.Errorf("IsValueType(%d) = false, want true", vt)
		}
	}
	if IsValueType(ValueType(0x7F)) {
		t.Error("IsValueType(0x7F) = true, want false")
	}
}

func TestExtractFunctions(t *testing.T) {
	userKey := []byte("mykey")
	seq := SequenceNumber(12345)
	typ := TypeValue

	key := NewInternalKey(userKey, seq, typ)

	if !bytes.Equal(ExtractUserKey(key), userKey) {
		t.Error("ExtractUserKey mismatch")
	}
	if ExtractSequenceNumber(key) != seq {
		t.Error("ExtractSequenceNumber mismatch")
	}
	if ExtractValueType(key) != typ {
		t.Error("ExtractValueType mismatch")
	}
}

func TestParsedInternalKeyEncodedLength(t *testing.T) {
	pik := &ParsedInternalKey{
		UserKey:  []byte("hello"),
		Sequence: 100,
		Type:     TypeValue,
	}

	expectedLen := 5 + 8
	if pik.EncodedLength() != expectedLen {
		t.Errorf("EncodedLength() = %d, want %d", pik.EncodedLength(), expectedLen)
	}
}

func TestMaxSequenceNumber(t *testing.T) {
	expected := SequenceNumber((1 << 56) - 1)
	if MaxSequenceNumber != expected {
		t.Errorf("MaxSequenceNumber = %d, want %d", MaxSequenceNumber, expected)
	}

	packed := PackSequenceAndType(MaxSequenceNumber, TypeValue)
	gotSeq, _ := UnpackSequenceAndType(packed)
	if gotSeq != MaxSequenceNumber {
		t.Errorf("Max sequence roundtrip failed: got %d", gotSeq)
	}
}

// TestInternalKeyGoldenFormat pins the exact on-disk byte layout: user key
// bytes followed by the little-endian packed trailer.
func TestInternalKeyGoldenFormat(t *testing.T) {
	userKey := []byte("key")
	seq := SequenceNumber(0x123456789AB)
	typ := TypeValue

	key := NewInternalKey(userKey, seq, typ)

	// Packed = (0x123456789AB << 8) | 0x01 = 0x123456789AB01
	expectedTrailer := []byte{0x01, 0xAB, 0x89, 0x67, 0x45, 0x23, 0x01, 0x00}
	expected := append([]byte("key"), expectedTrailer...)

	if !bytes.Equal(key, expected) {
		t.Errorf("Internal key binary format mismatch:\ngot:  %v\nwant: %v", []byte(key), expected)
	}
}

func TestUpdateInternalKey(t *testing.T) {
	userKey := []byte("abcdefghijklmnopqrstuvwxyz")
	key := NewInternalKey(userKey, 100, TypeValue)
	originalLen := len(key)

	newSeq := SequenceNumber(0x123456)
	newType := TypeDeletion

	UpdateInternalKey(&key, newSeq, newType)

	if len(key) != originalLen {
		t.Errorf("Length changed: got %d, want %d", len(key), originalLen)
	}

	parsed, err := key.Parse()
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if !bytes.Equal(parsed.UserKey, userKey) {
		t.Errorf("UserKey changed")
	}
	if parsed.Sequence != newSeq {
		t.Errorf("Sequence = %d, want %d", parsed.Sequence, newSeq)
	}
	if parsed.Type != newType {
		t.Errorf("Type = %d, want %d", parsed.Type, newType)
	}
}

func TestInternalKeyEncodeDecodeComprehensive(t *testing.T) {
	keys := []string{"", "k", "hello", "longggggggggggggggggggggg"}
	seqs := []SequenceNumber{
		1, 2, 3,
		(1 << 8) - 1, 1 << 8, (1 << 8) + 1,
		(1 << 16) - 1, 1 << 16, (1 << 16) + 1,
		(1 << 32) - 1, 1 << 32, (1 << 32) + 1,
	}

	for _, keyStr := range keys {
		for _, seq := range seqs {
			for _, typ := range []ValueType{TypeValue, TypeDeletion} {
				key := NewInternalKey([]byte(keyStr), seq, typ)
				parsed, err := key.Parse()
				if err != nil {
					t.Fatalf("Parse error for key=%q seq=%d type=%d: %v", keyStr, seq, typ, err)
				}
				if string(parsed.UserKey) != keyStr {
					t.Errorf("UserKey mismatch")
				}
				if parsed.Sequence != seq {
					t.Errorf("Sequence mismatch: got %d, want %d", parsed.Sequence, seq)
				}
				if parsed.Type != typ {
					t.Errorf("Type mismatch")
				}
			}
		}
	}
}

func TestInternalKeyCompareOrdering(t *testing.T) {
	// Same user key, higher sequence sorts first (lower byte value).
	k1 := NewInternalKey([]byte("foo"), 100, TypeValue)
	k2 := NewInternalKey([]byte("foo"), 99, TypeValue)
	k3 := NewInternalKey([]byte("foo"), 101, TypeValue)
	k4 := NewInternalKey([]byte("bar"), 100, TypeValue)

	if CompareInternalKeys(k1, k2) >= 0 {
		t.Error("expected seq=100 to sort before seq=99 for same user key")
	}
	if CompareInternalKeys(k3, k1) >= 0 {
		t.Error("expected seq=101 to sort before seq=100 for same user key")
	}
	if CompareInternalKeys(k4, k1) >= 0 {
		t.Error("expected \"bar\" to sort before \"foo\"")
	}
}

func TestNumInternalBytes(t *testing.T) {
	if NumInternalBytes != 8 {
		t.Errorf("NumInternalBytes = %d, want 8", NumInternalBytes)
	}
}

func TestValueTypeConstants(t *testing.T) {
	if TypeDeletion != 0x0 {
		t.Errorf("TypeDeletion = %d, want 0", TypeDeletion)
	}
	if TypeValue != 0x1 {
		t.Errorf("TypeValue = %d, want 1", TypeValue)
	}
}

func TestInternalKeyUserKeySlice(t *testing.T) {
	original := []byte("myuserkey")
	key := NewInternalKey(original, 100, TypeValue)

	userKey := key.UserKey()
	if !bytes.Equal(userKey, original) {
		t.Errorf("UserKey mismatch")
	}
}

func TestPackingEdgeCases(t *testing.T) {
	tests := []struct {
		seq SequenceNumber
		typ ValueType
	}{
		{0, TypeDeletion},
		{0, TypeValue},
		{1, TypeDeletion},
		{MaxSequenceNumber, TypeDeletion},
		{(1 << 56) - 1, TypeValue},
	}

	for _, tt := range tests {
		packed := PackSequenceAndType(tt.seq, tt.typ)
		gotSeq, gotType := UnpackSequenceAndType(packed)

		if gotSeq != tt.seq {
			t.Errorf("Sequence roundtrip failed for seq=%d: got %d", tt.seq, gotSeq)
		}
		if gotType != tt.typ {
			t.Errorf("Type roundtrip failed for type=%d: got %d", tt.typ, gotType)
		}
	}
}

func TestParsedInternalKeyDebug(t *testing.T) {
	pik := &ParsedInternalKey{
		UserKey:  []byte("test"),
		Sequence: 12345,
		Type:     TypeValue,
	}

	str := pik.DebugString()
	if str == "" {
		t.Error("DebugString returned empty string")
	}
}

func TestParsedInternalKeyString(t *testing.T) {
	pik := &ParsedInternalKey{
		UserKey:  []byte("mykey"),
		Sequence: 999,
		Type:     TypeDeletion,
	}

	str := pik.String()
	if str == "" {
		t.Error("String returned empty string")
	}
	if !bytes.Contains([]byte(str), []byte("mykey")) {
		t.Errorf("String should contain user key: %s", str)
	}
}

func TestExtractUserKeyTooShort(t *testing.T) {
	shortKey := []byte("short")
	result := ExtractUserKey(shortKey)
	if result != nil {
		t.Errorf("Expected nil for short key, got %v", result)
	}
}

func TestExtractValueTypeTooShort(t *testing.T) {
	shortKey := []byte("short")
	result := ExtractValueType(shortKey)
	if result != TypeValue {
		t.Errorf("Expected TypeValue for short key, got %d", result)
	}
}

func TestExtractSequenceNumberTooShort(t *testing.T) {
	shortKey := []byte("short")
	result := ExtractSequenceNumber(shortKey)
	if result != 0 {
		t.Errorf("Expected 0 for short key, got %d", result)
	}
}

func TestUpdateInternalKeyTooShort(t *testing.T) {
	shortKey := InternalKey([]byte("short"))
	originalLen := len(shortKey)

	UpdateInternalKey(&shortKey, 999, TypeValue)

	if len(shortKey) != originalLen {
		t.Error("Short key should be unchanged")
	}
}

func TestUpdateInternalKeyValid(t *testing.T) {
	key := NewInternalKey([]byte("test"), 100, TypeValue)

	UpdateInternalKey(&key, 200, TypeDeletion)

	parsed, err := ParseInternalKey(key)
	if err != nil {
		t.Fatalf("ParseInternalKey failed: %v", err)
	}
	if parsed.Sequence != 200 {
		t.Errorf("Sequence = %d, want 200", parsed.Sequence)
	}
	if parsed.Type != TypeDeletion {
		t.Errorf("Type = %d, want TypeDeletion", parsed.Type)
	}
}

func TestInternalKeyComparatorCustomUserCompare(t *testing.T) {
	reverseCompare := func(a, b []byte) int {
		return BytewiseCompare(b, a)
	}
	cmp := NewInternalKeyComparator("reverse", reverseCompare)

	if cmp.Name() != "reverse" {
		t.Errorf("Name() = %q, want reverse", cmp.Name())
	}

	a := NewInternalKey([]byte("a"), 1, TypeValue)
	b := NewInternalKey([]byte("b"), 1, TypeValue)

	if cmp.Compare(a, b) <= 0 {
		t.Error("expected reversed comparator to sort \"a\" after \"b\"")
	}
}
