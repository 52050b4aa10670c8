package cache

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint uniquely identifies a cacheable query: the table, the result
// limit, the canonical serialization of the search options, and a hash of
// the query vector. Two queries with equal fingerprints are interchangeable
// within the result cache's TTL window.
type Fingerprint struct {
	Table      string
	Limit      int
	Options    string
	VectorHash uint64
}

// HashVector returns a stable 64-bit hash of a query vector.
func HashVector(vector []float32) uint64 {
	h := xxhash.New()
	var buf [4]byte
	for _, v := range vector {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

// HashStrings returns a stable 64-bit hash of a sequence of strings.
// A length prefix per element keeps ("ab","c") distinct from ("a","bc").
func HashStrings(parts ...string) uint64 {
	h := xxhash.New()
	var buf [4]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint32(buf[:], uint32(len(p)))
		_, _ = h.Write(buf[:])
		_, _ = h.WriteString(p)
	}
	return h.Sum64()
}
