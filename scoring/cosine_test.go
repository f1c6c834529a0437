package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarityDegenerateInputs(t *testing.T) {
	assert.Zero(t, CosineSimilarity(nil, nil))
	assert.Zero(t, CosineSimilarity([]float64{1, 2}, nil))
	assert.Zero(t, CosineSimilarity([]float64{1, 2}, []float64{1, 2, 3}))
	assert.Zero(t, CosineSimilarity([]float64{0, 0}, []float64{1, 2}))
	assert.Zero(t, CosineSimilarity([]float64{1, 2}, []float64{0, 0}))
}

func TestCosineSimilaritySymmetric(t *testing.T) {
	a := []float64{0.3, -0.7, 0.1, 0.9}
	b := []float64{0.2, 0.4, -0.5, 0.6}
	assert.InDelta(t, CosineSimilarity(a, b), CosineSimilarity(b, a), 1e-12)
}

func TestCosineSimilarityBounds(t *testing.T) {
	cases := [][2][]float64{
		{{1, 0}, {1, 0}},
		{{1, 0}, {-1, 0}},
		{{1, 0}, {0, 1}},
		{{0.5, 0.5, 0.5}, {0.1, 0.9, 0.4}},
	}
	for _, c := range cases {
		sim := CosineSimilarity(c[0], c[1])
		assert.GreaterOrEqual(t, sim, -1.0-1e-12)
		assert.LessOrEqual(t, sim, 1.0+1e-12)
	}

	assert.InDelta(t, 1.0, CosineSimilarity([]float64{2, 2}, []float64{4, 4}), 1e-12)
	assert.InDelta(t, -1.0, CosineSimilarity([]float64{1, 1}, []float64{-1, -1}), 1e-12)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-12)
}
