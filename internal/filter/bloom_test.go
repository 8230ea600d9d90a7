package filter

import (
	"fmt"
	"math/rand"
	"testing"
)

func TestBloomFilterNoFalseNegatives(t *testing.T) {
	b := NewBloomFilterBuilder(10)
	keys := make([][]byte, 0, 1000)
	for i := range 1000 {
		k := []byte(fmt.Sprintf("key-%06d", i))
		keys = append(keys, k)
		b.AddKey(k)
	}

	data := b.Finish()
	r := NewBloomFilterReader(data)

	for _, k := range keys {
		if !r.MayContain(k) {
			t.Fatalf("false negative for key %q", k)
		}
	}
}

func TestBloomFilterFalsePositiveRate(t *testing.T) {
	bitsPerKey := BitsPerKeyForFalsePositiveRate(0.01)
	b := NewBloomFilterBuilder(bitsPerKey)

	rng := rand.New(rand.NewSource(1))
	inserted := make(map[string]bool, 100000)
	for range 100000 {
		k := make([]byte, 16)
		rng.Read(k)
		b.AddKey(k)
		inserted[string(k)] = true
	}

	data := b.Finish()
	r := NewBloomFilterReader(data)

	falsePositives := 0
	trials := 100000
	for range trials {
		k := make([]byte, 16)
		rng.Read(k)
		if inserted[string(k)] {
			continue
		}
		if r.MayContain(k) {
			falsePositives++
		}
	}

	rate := float64(falsePositives) / float64(trials)
	if rate > 0.015 {
		t.Errorf("false positive rate %f exceeds 1.5%% budget for a 1%% target", rate)
	}
}

func TestBloomFilterEmpty(t *testing.T) {
	b := NewBloomFilterBuilder(10)
	data := b.Finish()
	r := NewBloomFilterReader(data)

	if r.MayContain([]byte("anything")) {
		t.Error("empty filter should reject all keys")
	}
}

func TestBloomFilterSizing(t *testing.T) {
	tests := []struct {
		n, bitsPerKey int
		wantMinBits   uint64
	}{
		{0, 10, minBits},
		{1, 10, minBits},
		{1000, 10, 10000},
	}

	for _, tt := range tests {
		got := filterBits(tt.n, tt.bitsPerKey)
		if got%64 != 0 {
			t.Errorf("filterBits(%d, %d) = %d, not a multiple of 64", tt.n, tt.bitsPerKey, got)
		}
		if got < tt.wantMinBits {
			t.Errorf("filterBits(%d, %d) = %d, want >= %d", tt.n, tt.bitsPerKey, got, tt.wantMinBits)
		}
	}
}

func TestBitsPerKeyForFalsePositiveRate(t *testing.T) {
	tests := []struct {
		p    float64
		want int
	}{
		{0.01, 10},
		{0.05, 7},
	}
	for _, tt := range tests {
		got := BitsPerKeyForFalsePositiveRate(tt.p)
		if got != tt.want {
			t.Errorf("BitsPerKeyForFalsePositiveRate(%v) = %d, want %d", tt.p, got, tt.want)
		}
	}
}

func TestNumProbes(t *testing.T) {
	if k := numProbes(10); k < 1 {
		t.Errorf("numProbes(10) = %d, want >= 1", k)
	}
	if k := numProbes(1); k != 1 {
		t.Errorf("numProbes(1) = %d, want 1", k)
	}
}

func TestBloomFilterReaderRejectsShortData(t *testing.T) {
	if r := NewBloomFilterReader([]byte{1, 2, 3}); r != nil {
		t.Error("expected nil reader for data shorter than header")
	}
}

func TestBloomFilterBuilderReset(t *testing.T) {
	b := NewBloomFilterBuilder(10)
	b.AddKey([]byte("a"))
	b.AddKey([]byte("b"))
	if b.NumKeys() != 2 {
		t.Fatalf("NumKeys() = %d, want 2", b.NumKeys())
	}
	b.Reset()
	if b.NumKeys() != 0 {
		t.Errorf("NumKeys() after Reset = %d, want 0", b.NumKeys())
	}
}

func TestHash128Deterministic(t *testing.T) {
	h1a, h2a := hash128([]byte("some-key"))
	h1b, h2b := hash128([]byte("some-key"))
	if h1a != h1b || h2a != h2b {
		t.Error("hash128 not deterministic")
	}
	if h2a%2 == 0 {
		t.Error("h2 must be forced odd")
	}
}
