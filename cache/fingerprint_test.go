package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashVector(t *testing.T) {
	a := []float32{0.1, 0.2, 0.3}
	b := []float32{0.1, 0.2, 0.3}
	c := []float32{0.1, 0.2, 0.30001}

	assert.Equal(t, HashVector(a), HashVector(b))
	assert.NotEqual(t, HashVector(a), HashVector(c))
	assert.NotEqual(t, HashVector(a), HashVector(a[:2]))
}

func TestHashStrings(t *testing.T) {
	assert.Equal(t, HashStrings("a", "b"), HashStrings("a", "b"))
	assert.NotEqual(t, HashStrings("a", "b"), HashStrings("b", "a"))

	// Length prefixing keeps element boundaries distinct.
	assert.NotEqual(t, HashStrings("ab", "c"), HashStrings("a", "bc"))
	assert.NotEqual(t, HashStrings("ab"), HashStrings("a", "b"))
}

func TestFingerprint_AsCacheKey(t *testing.T) {
	vector := []float32{1, 0, 0}
	fp1 := Fingerprint{Table: "docs", Limit: 5, Options: "", VectorHash: HashVector(vector)}
	fp2 := Fingerprint{Table: "docs", Limit: 5, Options: "", VectorHash: HashVector(vector)}
	assert.Equal(t, fp1, fp2)

	fp3 := fp1
	fp3.Limit = 10
	assert.NotEqual(t, fp1, fp3)
}
