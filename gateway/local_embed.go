package gateway

import (
	"math"
	"strings"
)

// DefaultLocalDims is the dimensionality of the local fallback embedding.
const DefaultLocalDims = 256

// fnv-style odd multiplier used to spread the trigram hash across buckets.
const hashMix = 2654435761

// LocalEmbedding produces a deterministic embedding without any network
// dependency: the text is lowercased and trimmed, every 3-character sliding
// window is hashed with a rolling polynomial hash into one of dims buckets
// (sign taken from the hash sign), and the result is L2-normalized. The same
// text always embeds to the same vector, which keeps tests deterministic.
func LocalEmbedding(text string, dims int) []float64 {
	if dims <= 0 {
		dims = DefaultLocalDims
	}
	vec := make([]float64, dims)

	runes := []rune(strings.ToLower(strings.TrimSpace(text)))
	if len(runes) == 0 {
		return vec
	}
	// Short inputs still get one window so they embed to something non-zero.
	if len(runes) < 3 {
		addTrigram(vec, runes)
	}
	for i := 0; i+3 <= len(runes); i++ {
		addTrigram(vec, runes[i:i+3])
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func addTrigram(vec []float64, window []rune) {
	var h int64
	for _, r := range window {
		h = h*131 + int64(r)
	}
	h *= hashMix // deliberate overflow; negative values carry the sign
	sign := 1.0
	if h < 0 {
		sign = -1.0
	}
	vec[uint64(h)%uint64(len(vec))] += sign
}
