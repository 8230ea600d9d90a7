// Package filter implements a classic double-hashing Bloom filter used for
// per-SSTable membership tests.
//
// Filter block format (little-endian):
//
//	data[0:8]       = m, number of bits in the filter (multiple of 64)
//	data[8:12]      = k, number of hash probes per key
//	data[12:]       = bit array, stored as little-endian 64-bit words
package filter

import (
	"math"

	"github.com/kvforge/rockyardkv/internal/encoding"
	"github.com/zeebo/xxh3"
)

const (
	// headerLen is the size of the m/k header preceding the bit array.
	headerLen = 12

	// minBits is the smallest filter size, used even for tiny key sets.
	minBits = 64
)

// BitsPerKeyForFalsePositiveRate returns the bits-per-key setting that
// targets the given false positive probability p, per the standard Bloom
// filter sizing formula bits_per_key = ceil(-1.44 * log2(p)).
func BitsPerKeyForFalsePositiveRate(p float64) int {
	if p <= 0 {
		p = 0.01
	}
	if p >= 1 {
		return 1
	}
	bits := math.Ceil(-1.44 * math.Log2(p))
	if bits < 1 {
		bits = 1
	}
	return int(bits)
}

// numProbes derives k = max(1, round(bitsPerKey * ln(2))) from bitsPerKey.
func numProbes(bitsPerKey int) int {
	k := int(math.Round(float64(bitsPerKey) * math.Ln2))
	if k < 1 {
		k = 1
	}
	return k
}

// hash128 produces the two 64-bit halves used for double hashing. h2 is
// forced odd so the probe sequence (h1 + i*h2) mod m cannot degenerate into
// a fixed point for even m.
func hash128(key []byte) (h1, h2 uint64) {
	sum := xxh3.Hash128(key)
	h1 = sum.Lo
	h2 = sum.Hi | 1
	return h1, h2
}

// BloomFilterBuilder accumulates user keys and builds a serialized filter.
type BloomFilterBuilder struct {
	bitsPerKey int
	keys       [][]byte
}

// NewBloomFilterBuilder creates a builder targeting bitsPerKey bits of
// filter state per inserted key.
func NewBloomFilterBuilder(bitsPerKey int) *BloomFilterBuilder {
	if bitsPerKey < 1 {
		bitsPerKey = 1
	}
	return &BloomFilterBuilder{bitsPerKey: bitsPerKey}
}

// NewBloomFilterBuilderForFPR creates a builder sized to hit the given
// target false positive rate.
func NewBloomFilterBuilderForFPR(fpr float64) *BloomFilterBuilder {
	return NewBloomFilterBuilder(BitsPerKeyForFalsePositiveRate(fpr))
}

// AddKey adds a user key to the filter.
func (b *BloomFilterBuilder) AddKey(key []byte) {
	b.keys = append(b.keys, append([]byte(nil), key...))
}

// NumKeys returns the number of keys added.
func (b *BloomFilterBuilder) NumKeys() int {
	return len(b.keys)
}

// Reset clears the builder for reuse.
func (b *BloomFilterBuilder) Reset() {
	b.keys = b.keys[:0]
}

// EstimatedSize returns the estimated serialized filter size in bytes.
func (b *BloomFilterBuilder) EstimatedSize() int {
	m := filterBits(len(b.keys), b.bitsPerKey)
	return headerLen + int(m)/8
}

// Finish builds the filter and returns its serialized form, including the
// m/k header. The builder is left empty and ready for reuse.
func (b *BloomFilterBuilder) Finish() []byte {
	n := len(b.keys)
	m := filterBits(n, b.bitsPerKey)
	k := numProbes(b.bitsPerKey)

	buf := make([]byte, headerLen+int(m)/8)
	encoding.EncodeFixed64(buf[0:8], m)
	encoding.EncodeFixed32(buf[8:12], uint32(k))

	bits := buf[headerLen:]
	for _, key := range b.keys {
		h1, h2 := hash128(key)
		insert(bits, m, k, h1, h2)
	}

	b.keys = b.keys[:0]
	return buf
}

// filterBits computes m = max(minBits, n*bitsPerKey) rounded up to a
// multiple of 64.
func filterBits(n, bitsPerKey int) uint64 {
	total := uint64(n) * uint64(bitsPerKey)
	if total < minBits {
		total = minBits
	}
	return (total + 63) / 64 * 64
}

// insert sets the k probe bits for a key's (h1, h2) pair.
func insert(bits []byte, m uint64, k int, h1, h2 uint64) {
	for i := 0; i < k; i++ {
		pos := (h1 + uint64(i)*h2) % m
		bits[pos/8] |= 1 << (pos % 8)
	}
}

// probeMatch reports whether all k probe bits for (h1, h2) are set.
func probeMatch(bits []byte, m uint64, k int, h1, h2 uint64) bool {
	for i := 0; i < k; i++ {
		pos := (h1 + uint64(i)*h2) % m
		if bits[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
	}
	return true
}

// BloomFilterReader answers membership queries against a serialized filter.
type BloomFilterReader struct {
	bits []byte
	m    uint64
	k    int
}

// NewBloomFilterReader parses a serialized filter. Returns nil if the data
// is too short to contain a header.
func NewBloomFilterReader(data []byte) *BloomFilterReader {
	if len(data) < headerLen {
		return nil
	}
	m := encoding.DecodeFixed64(data[0:8])
	k := int(encoding.DecodeFixed32(data[8:12]))
	bits := data[headerLen:]
	if m == 0 || uint64(len(bits))*8 < m {
		return &BloomFilterReader{bits: nil, m: 0, k: 0}
	}
	return &BloomFilterReader{bits: bits, m: m, k: k}
}

// MayContain reports whether key may be present in the set. A false result
// means the key is definitely absent; a true result may be a false positive.
func (r *BloomFilterReader) MayContain(key []byte) bool {
	if r == nil || r.m == 0 || r.k == 0 {
		return false
	}
	h1, h2 := hash128(key)
	return probeMatch(r.bits, r.m, r.k, h1, h2)
}
