// prefix_extractor.go implements PrefixExtractor for prefix seek optimization.
//
// Prefix seek allows efficient iteration over keys with a common prefix.
// When a prefix extractor is configured, Seek(prefix)+Next() can stop as
// soon as the prefix changes. Bloom filters are built over whole keys; the
// extractor is not used when SST files are written.
//
package db

// PrefixExtractor extracts prefixes from keys for prefix-based operations.
//
// Together PrefixExtractor and Comparator must satisfy: if Compare(k1, k2)
// <= 0 and Compare(k2, k3) <= 0 and InDomain(k1) and InDomain(k3) and
// Transform(k1) == Transform(k3), then InDomain(k2) and Transform(k2) ==
// Transform(k1). In other words, all keys sharing a prefix must be
// contiguous under the comparator's order.
type PrefixExtractor interface {
	// Name returns a unique identifier for this prefix extractor.
	Name() string

	// Transform extracts the prefix from the given key.
	// REQUIRES: InDomain(key) == true
	Transform(key []byte) []byte

	// InDomain returns true if the key has a valid prefix.
	InDomain(key []byte) bool
}

// FixedPrefixExtractor uses the first n bytes of each key as the prefix.
// Keys shorter than n bytes are out of domain.
type FixedPrefixExtractor struct {
	prefixLen int
}

// NewFixedPrefixExtractor creates a prefix extractor that uses the first n bytes.
func NewFixedPrefixExtractor(prefixLen int) *FixedPrefixExtractor {
	if prefixLen <= 0 {
		prefixLen = 1
	}
	return &FixedPrefixExtractor{prefixLen: prefixLen}
}

func (e *FixedPrefixExtractor) Name() string { return "fixed.prefix" }

func (e *FixedPrefixExtractor) Transform(key []byte) []byte {
	if len(key) < e.prefixLen {
		return key
	}
	return key[:e.prefixLen]
}

func (e *FixedPrefixExtractor) InDomain(key []byte) bool {
	return len(key) >= e.prefixLen
}
