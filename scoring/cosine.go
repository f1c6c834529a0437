package scoring

import "math"

// CosineSimilarity returns the cosine of the angle between a and b. It
// returns 0 when either vector is empty, the lengths differ, or either norm
// is zero, so degenerate inputs never poison a score with NaN.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
